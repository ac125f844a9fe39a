package session_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/omochice/chat-session/internal/channel"
	"github.com/omochice/chat-session/internal/session"
)

type emission struct {
	name    string
	payload any
}

// fakeChannel records emissions; tests feed events through events.
type fakeChannel struct {
	events chan channel.Event

	mu           sync.Mutex
	emitted      []emission
	disconnected bool
}

var _ channel.Channel = (*fakeChannel)(nil)

func newFakeChannel() *fakeChannel {
	return &fakeChannel{events: make(chan channel.Event, 16)}
}

func (f *fakeChannel) Events() <-chan channel.Event {
	return f.events
}

func (f *fakeChannel) Emit(name string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.disconnected {
		return channel.ErrClosed
	}
	f.emitted = append(f.emitted, emission{name: name, payload: payload})
	return nil
}

func (f *fakeChannel) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = true
}

func (f *fakeChannel) Emitted() []emission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]emission(nil), f.emitted...)
}

func (f *fakeChannel) Disconnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnected
}

// fakeDialer hands out a new fakeChannel per Open.
type fakeDialer struct {
	mu        sync.Mutex
	err       error
	endpoints []string
	opts      []channel.Options
	channels  []*fakeChannel
}

var _ session.Dialer = (*fakeDialer)(nil)

func (d *fakeDialer) Open(_ context.Context, endpoint string, opts channel.Options) (channel.Channel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	ch := newFakeChannel()
	d.endpoints = append(d.endpoints, endpoint)
	d.opts = append(d.opts, opts)
	d.channels = append(d.channels, ch)
	return ch, nil
}

// slowDialer delays every Open so concurrent Starts overlap.
type slowDialer struct {
	fakeDialer
	delay time.Duration
}

func (d *slowDialer) Open(ctx context.Context, endpoint string, opts channel.Options) (channel.Channel, error) {
	time.Sleep(d.delay)
	return d.fakeDialer.Open(ctx, endpoint, opts)
}

func (d *fakeDialer) setErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

func (d *fakeDialer) Channel(i int) *fakeChannel {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.channels[i]
}

func (d *fakeDialer) Opened() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.channels)
}

// fakeCredentials is an in-memory credential store.
type fakeCredentials struct {
	mu       sync.Mutex
	token    string
	name     string
	clearErr error
	cleared  int
}

var _ session.Credentials = (*fakeCredentials)(nil)

func (f *fakeCredentials) Token() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token, f.token != ""
}

func (f *fakeCredentials) DisplayName() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.name, f.name != ""
}

func (f *fakeCredentials) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
	f.token, f.name = "", ""
	return f.clearErr
}

func (f *fakeCredentials) set(token, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token, f.name = token, name
}

var errDial = errors.New("dial failed")

// fakeLink stands in for the controller in Presence and Gate tests.
type fakeLink struct {
	state   session.State
	emitted []emission
}

var _ session.Link = (*fakeLink)(nil)

func (l *fakeLink) State() session.State { return l.state }

func (l *fakeLink) Emit(name string, payload any) {
	l.emitted = append(l.emitted, emission{name: name, payload: payload})
}
