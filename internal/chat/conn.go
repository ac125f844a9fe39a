// Package chat implements the single chat room served to every client.
package chat

import "context"

// Conn carries encoded protocol frames for one room participant. The hub
// only sees frames; the transport owns framing, control messages and
// deadlines.
type Conn interface {
	// Read blocks for the next frame. It returns io.EOF once the peer has
	// gone away and ctx.Err() when ctx ends first.
	Read(ctx context.Context) ([]byte, error)

	// Write sends one frame, honoring the ctx deadline.
	Write(ctx context.Context, data []byte) error

	Close() error

	// RemoteAddr identifies the peer in logs.
	RemoteAddr() string
}
