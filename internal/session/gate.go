package session

import (
	"strings"

	"github.com/omochice/chat-session/pkg/protocol"
)

// CanSend reports whether draft may be sent in state.
func CanSend(draft string, state State) bool {
	return state == StateConnected && strings.TrimSpace(draft) != ""
}

// Gate holds the compose buffer and decides when it may go out.
type Gate struct {
	link  Link
	draft string
}

// NewGate returns a gate with an empty draft bound to link.
func NewGate(link Link) *Gate {
	return &Gate{link: link}
}

// SetDraft replaces the compose buffer.
func (g *Gate) SetDraft(draft string) {
	g.draft = draft
}

// Draft returns the compose buffer.
func (g *Gate) Draft() string {
	return g.draft
}

// Send stores draft and emits it trimmed when CanSend allows. On success the
// buffer is cleared; otherwise it is left as is and Send reports false.
func (g *Gate) Send(draft string) bool {
	g.draft = draft
	if !CanSend(draft, g.link.State()) {
		return false
	}
	g.link.Emit(protocol.EventMessage, protocol.SendPayload{Content: strings.TrimSpace(draft)})
	g.draft = ""
	return true
}
