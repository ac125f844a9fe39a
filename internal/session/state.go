package session

// State is the connectivity state of a session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	// StateAuthFailed is terminal until Start is called with fresh credentials.
	StateAuthFailed
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateAuthFailed:
		return "auth_failed"
	default:
		return "unknown"
	}
}

// Identity is the participant a session speaks for.
type Identity struct {
	DisplayName string
}

// Snapshot is the observable state handed to renderers.
type Snapshot struct {
	State   State
	Entries []Entry
	Roster  []string
}
