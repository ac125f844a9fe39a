package session

import (
	"slices"

	"github.com/omochice/chat-session/pkg/protocol"
)

// Link is what Presence and Gate need from the session that owns them.
type Link interface {
	State() State
	Emit(name string, payload any)
}

// Presence holds the server's latest roster snapshot.
type Presence struct {
	link   Link
	roster []string
}

// NewPresence returns an empty tracker bound to link.
func NewPresence(link Link) *Presence {
	return &Presence{link: link}
}

// Replace swaps the roster for names. Names are kept as sent: no sorting
// and no deduplication.
func (p *Presence) Replace(names []string) {
	p.roster = slices.Clone(names)
	if p.roster == nil {
		p.roster = []string{}
	}
}

// Current returns a copy of the roster.
func (p *Presence) Current() []string {
	return slices.Clone(p.roster)
}

// RequestRefresh asks the server for a fresh roster. It does nothing unless
// the session is connected.
func (p *Presence) RequestRefresh() bool {
	if p.link.State() != StateConnected {
		return false
	}
	p.link.Emit(protocol.EventActiveUsers, nil)
	return true
}
