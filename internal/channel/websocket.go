package channel

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/rs/zerolog"

	"github.com/omochice/chat-session/pkg/protocol"
)

const (
	defaultQueueSize        = 32
	defaultHandshakeTimeout = 10 * time.Second
)

// WebSocketDialer opens channels carried over a WebSocket connection.
type WebSocketDialer struct {
	Logger zerolog.Logger
	// QueueSize bounds the outbound frame queue.
	QueueSize int
	// HandshakeTimeout bounds each dial attempt.
	HandshakeTimeout time.Duration
}

// Open starts connecting to endpoint in the background.
func (d WebSocketDialer) Open(ctx context.Context, endpoint string, opts Options) (Channel, error) {
	u, err := url.ParseRequestURI(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("invalid endpoint %q: scheme must be ws or wss", endpoint)
	}

	queueSize := d.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = defaultHandshakeTimeout
	}

	header := http.Header{}
	if opts.Token != "" {
		header.Set("Authorization", "Bearer "+opts.Token)
	}

	ctx, cancel := context.WithCancel(ctx)
	c := &wsChannel{
		endpoint: endpoint,
		opts:     opts,
		dialer: ws.Dialer{
			Header:  ws.HandshakeHeaderHTTP(header),
			Timeout: timeout,
		},
		log:      d.Logger.With().Str("endpoint", endpoint).Logger(),
		events:   make(chan Event),
		outgoing: make(chan []byte, queueSize),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go c.run()
	return c, nil
}

type wsChannel struct {
	endpoint string
	opts     Options
	dialer   ws.Dialer
	log      zerolog.Logger

	events   chan Event
	outgoing chan []byte

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once

	mu   sync.Mutex
	conn *frameConn
}

// Events implements Channel.
func (c *wsChannel) Events() <-chan Event {
	return c.events
}

// Emit implements Channel. Frames queued while the connection is down are
// sent after the next successful reconnect.
func (c *wsChannel) Emit(name string, payload any) error {
	if c.ctx.Err() != nil {
		return ErrClosed
	}
	frame := protocol.Frame{Event: name, Data: payload}
	data, err := frame.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	select {
	case c.outgoing <- data:
		return nil
	default:
		return fmt.Errorf("outgoing queue full, dropped %s", name)
	}
}

// Disconnect implements Channel.
func (c *wsChannel) Disconnect() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn != nil {
			_ = conn.writeFrame(func(w io.Writer) error {
				return wsutil.WriteClientMessage(w, ws.OpClose, ws.NewCloseFrameBody(ws.StatusNormalClosure, ""))
			})
			conn.Close()
		}
	})
	<-c.done
}

// run dials, serves and redials until the channel is closed, the server
// rejects the credentials, or the reconnection attempts are exhausted.
func (c *wsChannel) run() {
	defer close(c.done)
	defer close(c.events)

	attempts := 0
	for {
		conn, err := c.dial()
		if err == nil {
			attempts = 0
			if !c.deliver(Event{Name: EventConnect}) {
				conn.Close()
				return
			}
			err = c.serve(conn)
			if c.ctx.Err() != nil {
				return
			}
			if errors.Is(err, ErrAuthentication) {
				c.deliver(Event{Name: EventConnectError, Err: err})
				return
			}
			c.log.Info().Err(err).Msg("connection lost")
			if !c.deliver(Event{Name: EventDisconnect, Err: err}) {
				return
			}
		} else {
			if c.ctx.Err() != nil {
				return
			}
			c.log.Debug().Err(err).Int("attempt", attempts).Msg("dial failed")
			if !c.deliver(Event{Name: EventConnectError, Err: err}) {
				return
			}
			if errors.Is(err, ErrAuthentication) {
				return
			}
		}

		if !c.opts.Reconnection {
			return
		}
		if c.opts.MaxAttempts > 0 && attempts >= c.opts.MaxAttempts {
			c.log.Warn().Int("attempts", attempts).Msg("giving up reconnecting")
			return
		}
		attempts++
		if !c.wait(c.opts.backoff(attempts)) {
			return
		}
	}
}

func (c *wsChannel) dial() (*frameConn, error) {
	conn, br, _, err := c.dialer.Dial(c.ctx, c.endpoint)
	if err != nil {
		var status ws.StatusError
		if errors.As(err, &status) && (int(status) == http.StatusUnauthorized || int(status) == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: handshake rejected with status %d", ErrAuthentication, int(status))
		}
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	return newFrameConn(conn, br), nil
}

// serve pumps frames for one connection and returns why it ended.
func (c *wsChannel) serve(conn *frameConn) error {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
	}()

	connCtx, stop := context.WithCancel(c.ctx)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop(connCtx, conn)
	}()
	go func() {
		<-connCtx.Done()
		conn.Close()
	}()
	defer func() {
		stop()
		<-writerDone
	}()

	for {
		msgs, err := wsutil.ReadServerMessage(conn, nil)
		if err != nil {
			return err
		}
		for _, msg := range msgs {
			if msg.OpCode.IsControl() {
				if err := conn.writeFrame(func(w io.Writer) error {
					return wsutil.HandleServerControlMessage(w, msg)
				}); err != nil {
					return err
				}
				continue
			}
			if msg.OpCode != ws.OpBinary {
				continue
			}

			var frame protocol.Frame
			if err := frame.Decode(msg.Payload); err != nil {
				c.log.Warn().Err(err).Msg("failed to decode frame")
				continue
			}
			ev := frameEvent(frame)
			if ev.IsAuthFailure() {
				return ev.Err
			}
			if !c.deliver(ev) {
				return c.ctx.Err()
			}
		}
	}
}

func (c *wsChannel) writeLoop(ctx context.Context, conn *frameConn) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-c.outgoing:
			if err := conn.writeFrame(func(w io.Writer) error {
				return wsutil.WriteClientBinary(w, data)
			}); err != nil {
				c.log.Warn().Err(err).Msg("failed to send frame")
				conn.Close()
				return
			}
		}
	}
}

// deliver hands ev to the consumer unless the channel is closed first.
func (c *wsChannel) deliver(ev Event) bool {
	if c.ctx.Err() != nil {
		return false
	}
	select {
	case c.events <- ev:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func (c *wsChannel) wait(d time.Duration) bool {
	if d <= 0 {
		return c.ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-c.ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// frameEvent maps a server frame to an Event. Error frames carry their
// message in Err; an authentication rejection wraps ErrAuthentication.
func frameEvent(f protocol.Frame) Event {
	ev := Event{Name: f.Event, Data: f.Data}
	if f.Event != protocol.EventConnectError && f.Event != protocol.EventError {
		return ev
	}
	msg := protocol.DecodeErrorMessage(f.Data)
	switch {
	case msg == AuthErrorMessage && f.Event == protocol.EventConnectError:
		ev.Err = ErrAuthentication
	case msg != "":
		ev.Err = errors.New(msg)
	default:
		ev.Err = errors.New(f.Event)
	}
	return ev
}

// frameConn reads through the handshake's buffered reader and writes whole
// frames under a lock so control replies never interleave with data frames.
type frameConn struct {
	net.Conn
	reader io.Reader
	mu     sync.Mutex
}

func newFrameConn(conn net.Conn, br *bufio.Reader) *frameConn {
	fc := &frameConn{Conn: conn, reader: conn}
	if br != nil {
		fc.reader = br
	}
	return fc
}

func (fc *frameConn) Read(p []byte) (int, error) {
	return fc.reader.Read(p)
}

// writeFrame flushes whatever encode produced, even when encode reports an
// error: a close reply is written before wsutil returns ClosedError.
func (fc *frameConn) writeFrame(encode func(w io.Writer) error) error {
	var buf bytes.Buffer
	err := encode(&buf)
	if buf.Len() > 0 {
		fc.mu.Lock()
		_, werr := fc.Conn.Write(buf.Bytes())
		fc.mu.Unlock()
		if err == nil {
			err = werr
		}
	}
	return err
}
