package session

import (
	"slices"
	"time"
)

// Entry is one line of the conversation: a ChatMessage or a SystemNotice.
type Entry interface {
	// Time is when the entry happened.
	Time() time.Time
	// Text is the entry body.
	Text() string

	isEntry()
}

// ChatMessage is a message authored by a participant.
type ChatMessage struct {
	Author string
	Body   string
	SentAt time.Time
	// IsOwn is fixed when the message is appended.
	IsOwn bool
}

func (m ChatMessage) Time() time.Time { return m.SentAt }
func (m ChatMessage) Text() string    { return m.Body }
func (ChatMessage) isEntry()          {}

// SystemNotice is a locally generated line about connectivity or membership.
type SystemNotice struct {
	Body       string
	OccurredAt time.Time
}

func (n SystemNotice) Time() time.Time { return n.OccurredAt }
func (n SystemNotice) Text() string    { return n.Body }
func (SystemNotice) isEntry()          {}

// Log is the append-only conversation record, kept in arrival order.
// It is not safe for concurrent use; Controller serializes access.
type Log struct {
	entries []Entry
}

// Append adds e to the end of the log.
func (l *Log) Append(e Entry) {
	l.entries = append(l.entries, e)
}

// Entries returns a copy of the log in arrival order.
func (l *Log) Entries() []Entry {
	return slices.Clone(l.entries)
}

// Len returns the number of entries.
func (l *Log) Len() int {
	return len(l.entries)
}
