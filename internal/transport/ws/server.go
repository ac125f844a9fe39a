package ws

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gobwas/ws"
	"github.com/rs/zerolog"

	"github.com/omochice/chat-session/internal/chat"
)

// Accept upgrades the request to a WebSocket connection.
func Accept(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	conn, rw, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}
	c := NewConn(conn, nil, r.RemoteAddr)
	if rw != nil {
		c.reader = rw.Reader
	}
	return c, nil
}

// Serve registers client on hub and pumps its frames until the connection
// ends. It closes the connection before returning.
func Serve(ctx context.Context, hub *chat.Hub, client *chat.Client, log zerolog.Logger) {
	hub.Register(client)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		writeLoop(client, log)
	}()

	hub.HandleClient(ctx, client)
	close(client.Outgoing)
	<-writerDone
	client.Conn.Close()
}

func writeLoop(client *chat.Client, log zerolog.Logger) {
	for data := range client.Outgoing {
		if err := client.Conn.Write(context.Background(), data); err != nil {
			log.Warn().Err(err).Str("client", client.ID).Msg("failed to write to WebSocket client")
			client.Conn.Close()
			return
		}
	}
}
