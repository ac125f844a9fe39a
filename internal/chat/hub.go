package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/omochice/chat-session/internal/logger"
	"github.com/omochice/chat-session/pkg/protocol"
)

// Client represents a connected participant.
type Client struct {
	ID   string
	Conn Conn
	// Name is the authenticated display name.
	Name     string
	Outgoing chan []byte

	joined bool
}

// Hub manages the connected clients of the room and handles broadcast.
type Hub struct {
	clients map[*Client]bool
	// order keeps registration order for the roster.
	order []*Client
	mu    sync.RWMutex
	log   zerolog.Logger
	now   func() time.Time
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		log:     logger.Module("chat"),
		now:     time.Now,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[client] {
		return
	}
	h.clients[client] = true
	h.order = append(h.order, client)
}

// Unregister removes a client from the hub. It reports whether the client
// had joined the room.
func (h *Hub) Unregister(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.clients[client] {
		return false
	}
	delete(h.clients, client)
	for i, c := range h.order {
		if c == client {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	return client.joined
}

// ClientCount returns number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ActiveUsers returns the names of joined clients in join order. A user
// connected twice appears twice.
func (h *Hub) ActiveUsers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.order))
	for _, c := range h.order {
		if c.joined {
			names = append(names, c.Name)
		}
	}
	return names
}

// join marks client as present and reports whether it was new.
func (h *Hub) join(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client.joined || !h.clients[client] {
		return false
	}
	client.joined = true
	// Move to the end so the roster reflects join order.
	for i, c := range h.order {
		if c == client {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	h.order = append(h.order, client)
	return true
}

// Broadcast sends a frame to every registered client except the sender.
// A nil sender includes everyone.
func (h *Hub) Broadcast(frame protocol.Frame, sender *Client) {
	data, err := frame.Encode()
	if err != nil {
		h.log.Error().Err(err).Str("event", frame.Event).Msg("failed to encode broadcast")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if client == sender {
			continue
		}
		select {
		case client.Outgoing <- data:
		default:
			h.log.Warn().Str("client", client.ID).Msg("client channel full, skipping")
		}
	}
}

// Send queues a frame for a single client.
func (h *Hub) Send(client *Client, frame protocol.Frame) {
	data, err := frame.Encode()
	if err != nil {
		h.log.Error().Err(err).Str("event", frame.Event).Msg("failed to encode frame")
		return
	}
	select {
	case client.Outgoing <- data:
	default:
		h.log.Warn().Str("client", client.ID).Msg("client channel full, skipping")
	}
}

// HandleClient reads frames from client until the connection ends, then
// unregisters it and announces its departure. The client must already be
// registered. The caller owns client.Outgoing.
func (h *Hub) HandleClient(ctx context.Context, client *Client) {
	log := h.log.With().Str("client", client.ID).Str("remote", client.Conn.RemoteAddr()).Logger()
	defer func() {
		if h.Unregister(client) {
			log.Info().Str("user", client.Name).Msg("user left")
			h.Broadcast(protocol.Frame{Event: protocol.EventUserLeft, Data: client.Name}, client)
		}
	}()

	for {
		data, err := client.Conn.Read(ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				log.Debug().Err(err).Msg("read failed")
			}
			return
		}

		var frame protocol.Frame
		if err := frame.Decode(data); err != nil {
			log.Warn().Err(err).Msg("failed to decode frame")
			continue
		}
		h.handleFrame(log, client, frame)
	}
}

func (h *Hub) handleFrame(log zerolog.Logger, client *Client, frame protocol.Frame) {
	switch frame.Event {
	case protocol.EventJoin:
		if name := protocol.DecodeName(frame.Data); name != client.Name {
			log.Debug().Str("announced", name).Str("user", client.Name).Msg("join name differs from token, using token")
		}
		if h.join(client) {
			log.Info().Str("user", client.Name).Msg("user joined")
			h.Broadcast(protocol.Frame{Event: protocol.EventUserJoined, Data: client.Name}, client)
		}

	case protocol.EventMessage:
		payload, err := protocol.DecodeSendPayload(frame.Data)
		if err != nil {
			h.Send(client, protocol.Frame{Event: protocol.EventError, Data: protocol.ErrorPayload{Message: err.Error()}})
			return
		}
		content := strings.TrimSpace(payload.Content)
		if content == "" {
			return
		}
		h.Broadcast(protocol.Frame{
			Event: protocol.EventNewMessage,
			Data: protocol.ChatMessage{
				User:      client.Name,
				Content:   content,
				Timestamp: h.now(),
			},
		}, nil)

	case protocol.EventActiveUsers:
		h.Send(client, protocol.Frame{Event: protocol.EventActiveUsers, Data: h.ActiveUsers()})

	default:
		log.Debug().Str("event", frame.Event).Msg("unknown event")
		h.Send(client, protocol.Frame{Event: protocol.EventError, Data: protocol.ErrorPayload{Message: "unknown event " + frame.Event}})
	}
}
