// Package channel provides the named-event duplex channel between the chat
// client and server, including automatic reconnection.
package channel

import (
	"context"
	"errors"
	"time"
)

// Lifecycle event names. Application events use the names in pkg/protocol.
const (
	EventConnect      = "connect"
	EventDisconnect   = "disconnect"
	EventConnectError = "connect_error"
	EventError        = "error"
)

// AuthErrorMessage is the message a server uses to reject credentials.
const AuthErrorMessage = "Authentication error"

var (
	// ErrAuthentication marks connection errors caused by rejected credentials.
	ErrAuthentication = errors.New("authentication error")

	// ErrClosed is returned when emitting on a channel that was disconnected.
	ErrClosed = errors.New("channel closed")
)

// Event is one inbound event. Lifecycle failures carry Err; application
// events carry the decoded payload in Data.
type Event struct {
	Name string
	Data any
	Err  error
}

// IsAuthFailure reports whether the event is a connection error caused by
// rejected credentials.
func (e Event) IsAuthFailure() bool {
	return e.Name == EventConnectError && errors.Is(e.Err, ErrAuthentication)
}

// Options configures a channel.
type Options struct {
	// Reconnection enables automatic redial after failures and drops.
	Reconnection bool
	// MaxAttempts bounds consecutive reconnection attempts; 0 means unlimited.
	MaxAttempts int
	// Delay is the wait before the first reconnection attempt.
	Delay time.Duration
	// MaxDelay caps exponential growth of Delay; 0 keeps the delay fixed.
	MaxDelay time.Duration
	// Token is attached to every handshake as a bearer credential.
	Token string
}

// backoff returns the wait before the given reconnection attempt (1-based).
func (o Options) backoff(attempt int) time.Duration {
	d := o.Delay
	if d <= 0 || o.MaxDelay <= 0 {
		return d
	}
	for i := 1; i < attempt && d < o.MaxDelay; i++ {
		d *= 2
	}
	if d > o.MaxDelay {
		d = o.MaxDelay
	}
	return d
}

// Channel is an open duplex event channel.
type Channel interface {
	// Events delivers inbound events in arrival order. It is closed once the
	// channel stops for good.
	Events() <-chan Event

	// Emit queues an outbound event without waiting for delivery.
	Emit(name string, payload any) error

	// Disconnect tears the channel down. No event is delivered after it
	// returns.
	Disconnect()
}

// Dialer opens channels. Open returns immediately; the connection outcome is
// reported through the channel's events.
type Dialer interface {
	Open(ctx context.Context, endpoint string, opts Options) (Channel, error)
}
