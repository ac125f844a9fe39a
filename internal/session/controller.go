// Package session implements the chat session state machine: it owns the
// channel lifecycle, turns inbound events into log and roster updates, and
// gates outbound messages on connectivity.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/omochice/chat-session/internal/channel"
	"github.com/omochice/chat-session/internal/logger"
	"github.com/omochice/chat-session/pkg/protocol"
)

// Notices appended to the log.
const (
	NoticeReconnecting    = "Desconectado del servidor. Intentando reconectar..."
	NoticeConnectionError = "Error de conexión con el servidor"
	NoticeGenericError    = "Ha ocurrido un error"
)

// JoinedNotice is the notice appended when name joins the room.
func JoinedNotice(name string) string { return name + " se ha unido al chat" }

// LeftNotice is the notice appended when name leaves the room.
func LeftNotice(name string) string { return name + " ha dejado el chat" }

var (
	// ErrNoCredentials is returned by Start when no token or identity is stored.
	ErrNoCredentials = errors.New("no stored credentials")

	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("session closed")

	// ErrSuperseded is returned by a Start overtaken by a later Start
	// while its channel was opening. The later channel stays current.
	ErrSuperseded = errors.New("start superseded")
)

// Credentials supplies the token and identity for a session.
type Credentials interface {
	Token() (string, bool)
	DisplayName() (string, bool)
	// Clear invalidates both token and identity.
	Clear() error
}

// Dialer opens event channels. channel.WebSocketDialer satisfies it.
type Dialer interface {
	Open(ctx context.Context, endpoint string, opts channel.Options) (channel.Channel, error)
}

// Options configures a Controller.
type Options struct {
	Endpoint             string
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration

	// OnRedirect is called, outside the controller lock, when the user has
	// to log in again: no stored credentials, or the server rejected them.
	OnRedirect func()

	// Now stamps notices and messages without a timestamp. Defaults to time.Now.
	Now func() time.Time
}

type taggedEvent struct {
	gen uint64
	ev  channel.Event
}

// Controller owns one session. All handlers run one at a time under mu.
type Controller struct {
	dialer Dialer
	creds  Credentials
	opts   Options
	log    zerolog.Logger

	inbox chan taggedEvent
	done  chan struct{}
	wg    sync.WaitGroup

	mu          sync.Mutex
	state       State
	identity    Identity
	hasIdentity bool
	ch          channel.Channel
	stopPump    context.CancelFunc
	gen         uint64
	closed      bool
	entries     Log
	presence    *Presence
	gate        *Gate
	subs        map[int]chan Snapshot
	nextSub     int
}

// New returns a disconnected controller. Call Start to connect and Run to
// process events.
func New(dialer Dialer, creds Credentials, opts Options) *Controller {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	c := &Controller{
		dialer: dialer,
		creds:  creds,
		opts:   opts,
		log:    logger.Module("session").With().Str("session", uuid.NewString()).Logger(),
		inbox:  make(chan taggedEvent),
		done:   make(chan struct{}),
		state:  StateDisconnected,
		subs:   make(map[int]chan Snapshot),
	}
	l := link{c}
	c.presence = NewPresence(l)
	c.gate = NewGate(l)
	return c
}

// Start reads the stored credentials and opens a new channel, superseding
// any channel from an earlier Start. Events still in flight from the old
// channel are discarded. When Starts overlap only the last one keeps its
// channel; the others return ErrSuperseded.
func (c *Controller) Start(ctx context.Context) error {
	token, hasToken := c.creds.Token()
	name, hasName := c.creds.DisplayName()
	if !hasToken || !hasName {
		c.log.Info().Msg("no stored credentials, redirecting to login")
		c.redirect()
		return ErrNoCredentials
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	old := c.supersede()
	gen := c.gen
	c.setState(StateConnecting)
	c.publish()
	c.mu.Unlock()
	if old != nil {
		old.Disconnect()
	}

	ch, err := c.dialer.Open(ctx, c.opts.Endpoint, channel.Options{
		Reconnection: true,
		MaxAttempts:  c.opts.MaxReconnectAttempts,
		Delay:        c.opts.ReconnectDelay,
		Token:        token,
	})
	if err != nil {
		c.mu.Lock()
		if !c.closed && c.gen == gen {
			c.setState(StateDisconnected)
			c.publish()
		}
		c.mu.Unlock()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		ch.Disconnect()
		return ErrClosed
	case c.gen != gen:
		c.mu.Unlock()
		ch.Disconnect()
		return ErrSuperseded
	}
	defer c.mu.Unlock()
	c.identity = Identity{DisplayName: name}
	c.hasIdentity = true
	c.ch = ch
	pumpCtx, stop := context.WithCancel(context.Background())
	c.stopPump = stop
	c.wg.Add(1)
	go c.pump(pumpCtx, gen, ch)
	c.publish()
	return nil
}

// Run processes events from the current channel one at a time until ctx is
// done or Close is called.
func (c *Controller) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return nil
		case t := <-c.inbox:
			c.dispatch(t.gen, t.ev)
		}
	}
}

// Handle processes ev as if the current channel had delivered it.
func (c *Controller) Handle(ev channel.Event) {
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()
	c.dispatch(gen, ev)
}

// Send hands draft to the outbound gate.
func (c *Controller) Send(draft string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	return c.gate.Send(draft)
}

// Close ends the session. The channel is torn down and no handler runs after
// Close returns.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	old := c.supersede()
	c.setState(StateDisconnected)
	c.publish()
	for id, sub := range c.subs {
		close(sub)
		delete(c.subs, id)
	}
	close(c.done)
	c.mu.Unlock()

	if old != nil {
		old.Disconnect()
	}
	c.wg.Wait()
}

// State returns the connectivity state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Entries returns a copy of the conversation log.
func (c *Controller) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Entries()
}

// Roster returns a copy of the presence roster.
func (c *Controller) Roster() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.presence.Current()
}

// Identity returns the identity read at Start, and false before that.
func (c *Controller) Identity() (Identity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity, c.hasIdentity
}

// Snapshot returns the current observable state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

// Subscribe returns a channel receiving a snapshot after every processed
// event, and a function that cancels the subscription. Slow subscribers only
// see the latest snapshot.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub := make(chan Snapshot, 1)
	if c.closed {
		close(sub)
		return sub, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = sub
	sub <- c.snapshot()
	return sub, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if s, ok := c.subs[id]; ok {
			close(s)
			delete(c.subs, id)
		}
	}
}

// pump forwards events of one channel generation to the inbox.
func (c *Controller) pump(ctx context.Context, gen uint64, ch channel.Channel) {
	defer c.wg.Done()
	events := ch.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			select {
			case c.inbox <- taggedEvent{gen: gen, ev: ev}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// effects are side effects of a handler that must run outside mu.
type effects struct {
	clearCredentials bool
	teardown         channel.Channel
	redirect         bool
}

func (c *Controller) dispatch(gen uint64, ev channel.Event) {
	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.log.Debug().Str("event", ev.Name).Msg("dropping event from a closed channel")
		c.mu.Unlock()
		return
	}
	fx := c.handle(ev)
	c.publish()
	c.mu.Unlock()

	if fx.clearCredentials {
		if err := c.creds.Clear(); err != nil {
			c.log.Error().Err(err).Msg("failed to clear credentials")
		}
	}
	if fx.teardown != nil {
		fx.teardown.Disconnect()
	}
	if fx.redirect {
		c.redirect()
	}
}

// handle applies ev to the session. c.mu must be held.
func (c *Controller) handle(ev channel.Event) effects {
	if c.state == StateAuthFailed {
		c.log.Debug().Str("event", ev.Name).Msg("session failed authentication, ignoring event")
		return effects{}
	}

	switch ev.Name {
	case channel.EventConnect:
		c.setState(StateConnected)
		c.emit(protocol.EventJoin, c.identity.DisplayName)
		c.presence.RequestRefresh()

	case channel.EventDisconnect:
		c.setState(StateDisconnected)
		c.notice(NoticeReconnecting)

	case channel.EventConnectError:
		if ev.IsAuthFailure() {
			c.log.Warn().Err(ev.Err).Msg("authentication rejected")
			c.setState(StateAuthFailed)
			return effects{
				clearCredentials: true,
				teardown:         c.supersede(),
				redirect:         true,
			}
		}
		c.log.Debug().Err(ev.Err).Msg("connection error")
		c.notice(NoticeConnectionError)

	case channel.EventError:
		c.log.Debug().Err(ev.Err).Msg("channel error")
		c.notice(NoticeGenericError)

	case protocol.EventNewMessage:
		msg, err := protocol.DecodeChatMessage(ev.Data)
		if err != nil {
			c.log.Warn().Err(err).Msg("invalid chat message")
			return effects{}
		}
		sentAt := msg.Timestamp
		if sentAt.IsZero() {
			sentAt = c.opts.Now()
		}
		c.entries.Append(ChatMessage{
			Author: msg.User,
			Body:   msg.Content,
			SentAt: sentAt,
			IsOwn:  c.hasIdentity && msg.User == c.identity.DisplayName,
		})

	case protocol.EventUserJoined:
		c.notice(JoinedNotice(protocol.DecodeName(ev.Data)))
		c.presence.RequestRefresh()

	case protocol.EventUserLeft:
		name := protocol.DecodeName(ev.Data)
		if name == "" {
			c.log.Debug().Msg("userLeft without a name, ignoring")
			return effects{}
		}
		c.notice(LeftNotice(name))
		c.presence.RequestRefresh()

	case protocol.EventActiveUsers:
		names, err := protocol.DecodeNames(ev.Data)
		if err != nil {
			c.log.Warn().Err(err).Msg("invalid roster")
			return effects{}
		}
		c.presence.Replace(names)

	default:
		c.log.Debug().Str("event", ev.Name).Msg("unknown event")
	}
	return effects{}
}

// supersede detaches the current channel and invalidates its in-flight
// events. It returns the channel for the caller to disconnect outside mu.
// c.mu must be held.
func (c *Controller) supersede() channel.Channel {
	c.gen++
	if c.stopPump != nil {
		c.stopPump()
		c.stopPump = nil
	}
	old := c.ch
	c.ch = nil
	return old
}

func (c *Controller) setState(s State) {
	if c.state == s {
		return
	}
	c.log.Info().Stringer("from", c.state).Stringer("to", s).Msg("state changed")
	c.state = s
}

func (c *Controller) notice(body string) {
	c.entries.Append(SystemNotice{Body: body, OccurredAt: c.opts.Now()})
}

func (c *Controller) emit(name string, payload any) {
	if c.ch == nil {
		return
	}
	if err := c.ch.Emit(name, payload); err != nil {
		c.log.Warn().Err(err).Str("event", name).Msg("failed to emit")
	}
}

func (c *Controller) snapshot() Snapshot {
	return Snapshot{
		State:   c.state,
		Entries: c.entries.Entries(),
		Roster:  c.presence.Current(),
	}
}

// publish sends the current snapshot to every subscriber, replacing a
// snapshot the subscriber has not read yet. c.mu must be held.
func (c *Controller) publish() {
	if len(c.subs) == 0 {
		return
	}
	snap := c.snapshot()
	for _, sub := range c.subs {
		select {
		case <-sub:
		default:
		}
		sub <- snap
	}
}

func (c *Controller) redirect() {
	if c.opts.OnRedirect != nil {
		c.opts.OnRedirect()
	}
}

// link exposes the controller to its Presence and Gate. Its methods run with
// c.mu already held.
type link struct{ c *Controller }

func (l link) State() State                  { return l.c.state }
func (l link) Emit(name string, payload any) { l.c.emit(name, payload) }
