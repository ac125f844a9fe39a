// Package ws provides the WebSocket transport for the chat server.
package ws

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Conn adapts a hijacked gobwas connection to chat.Conn.
type Conn struct {
	conn       net.Conn
	reader     io.Reader
	remoteAddr string
	pending    [][]byte

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// NewConn wraps an upgraded connection. br may hold bytes buffered during
// the handshake and may be nil.
func NewConn(conn net.Conn, br *bufio.Reader, addr string) *Conn {
	c := &Conn{conn: conn, reader: conn, remoteAddr: addr}
	if br != nil {
		c.reader = br
	}
	return c
}

// Read implements chat.Conn.
// Control frames are answered inline; only data frames are returned.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	if len(c.pending) > 0 {
		data := c.pending[0]
		c.pending = c.pending[1:]
		return data, nil
	}

	stop := context.AfterFunc(ctx, func() {
		c.conn.SetReadDeadline(time.Unix(1, 0))
	})
	defer stop()

	for {
		msgs, err := wsutil.ReadClientMessage(c.reader, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, normalizeErr(err)
		}
		for _, msg := range msgs {
			if msg.OpCode.IsControl() {
				if err := c.writeFrame(func(w io.Writer) error {
					return wsutil.HandleClientControlMessage(w, msg)
				}); err != nil {
					return nil, normalizeErr(err)
				}
				continue
			}
			c.pending = append(c.pending, msg.Payload)
		}
		if len(c.pending) > 0 {
			data := c.pending[0]
			c.pending = c.pending[1:]
			return data, nil
		}
	}
}

// Write implements chat.Conn.
// Writes a binary message to the WebSocket connection.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetWriteDeadline(deadline)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	return c.writeFrame(func(w io.Writer) error {
		return wsutil.WriteServerBinary(w, data)
	})
}

// Close implements chat.Conn.
func (c *Conn) Close() error {
	err := net.ErrClosed
	c.closeOnce.Do(func() {
		_ = c.writeFrame(func(w io.Writer) error {
			return wsutil.WriteServerMessage(w, ws.OpClose, ws.NewCloseFrameBody(ws.StatusNormalClosure, ""))
		})
		err = c.conn.Close()
	})
	return err
}

// RemoteAddr implements chat.Conn.
func (c *Conn) RemoteAddr() string {
	return c.remoteAddr
}

// writeFrame encodes a whole frame and writes it at once so control replies
// never interleave with data frames. Bytes produced before an encode error
// are still written.
func (c *Conn) writeFrame(encode func(w io.Writer) error) error {
	var buf bytes.Buffer
	err := encode(&buf)
	if buf.Len() > 0 {
		c.writeMu.Lock()
		_, werr := c.conn.Write(buf.Bytes())
		c.writeMu.Unlock()
		if err == nil {
			err = werr
		}
	}
	return err
}

func normalizeErr(err error) error {
	var closed wsutil.ClosedError
	if errors.As(err, &closed) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrUnexpectedEOF) {
		return io.EOF
	}
	return err
}
