package chat_test

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/omochice/chat-session/internal/chat"
)

// fakeConn feeds queued frames to the hub. Frames written by the hub are
// not recorded: the hub delivers through Client.Outgoing.
type fakeConn struct {
	inbound    chan []byte
	eofOnce    sync.Once
	closed     atomic.Bool
	remoteAddr string
}

func newFakeConn(addr string) *fakeConn {
	return &fakeConn{
		inbound:    make(chan []byte, 10),
		remoteAddr: addr,
	}
}

func (f *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case data, ok := <-f.inbound:
		if !ok {
			return nil, io.EOF
		}
		return data, nil
	}
}

func (f *fakeConn) Write(ctx context.Context, data []byte) error {
	if f.closed.Load() {
		return io.ErrClosedPipe
	}
	return ctx.Err()
}

func (f *fakeConn) Close() error {
	f.closed.Store(true)
	return nil
}

// hangUp makes Read return io.EOF once queued frames are drained.
func (f *fakeConn) hangUp() {
	f.eofOnce.Do(func() { close(f.inbound) })
}

func (f *fakeConn) RemoteAddr() string {
	return f.remoteAddr
}

var _ chat.Conn = (*fakeConn)(nil)
