// Package render formats a chat session for the terminal.
package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/omochice/chat-session/internal/session"
)

const timeLayout = "15:04"

var (
	authorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	ownStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	timeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	noticeStyle = lipgloss.NewStyle().
			Italic(true).
			Foreground(lipgloss.Color("214"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	stateStyles = map[session.State]lipgloss.Style{
		session.StateDisconnected: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		session.StateConnecting:   lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		session.StateConnected:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		session.StateAuthFailed:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

// Renderer lays out entries for a terminal of a fixed width.
type Renderer struct {
	width int
}

// New returns a Renderer for width columns. Widths below 20 are raised to 20.
func New(width int) *Renderer {
	if width < 20 {
		width = 20
	}
	return &Renderer{width: width}
}

// Entry renders one log entry. Own messages are right-aligned.
func (r *Renderer) Entry(e session.Entry) string {
	switch e := e.(type) {
	case session.ChatMessage:
		return r.message(e)
	case session.SystemNotice:
		return timeStyle.Render(e.OccurredAt.Format(timeLayout)) + " " + noticeStyle.Render("* "+e.Body)
	default:
		return e.Text()
	}
}

func (r *Renderer) message(m session.ChatMessage) string {
	stamp := timeStyle.Render(m.SentAt.Format(timeLayout))
	if m.IsOwn {
		line := ownStyle.Render(m.Body) + " " + stamp
		return lipgloss.NewStyle().Width(r.width).Align(lipgloss.Right).Render(line)
	}
	line := stamp + " " + authorStyle.Render(m.Author+":") + " " + m.Body
	return lipgloss.NewStyle().Width(r.width).Render(line)
}

// Roster renders the active participants.
func (r *Renderer) Roster(names []string) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("Usuarios activos (%d)", len(names))))
	for _, name := range names {
		b.WriteString("\n  - ")
		b.WriteString(name)
	}
	return b.String()
}

// Status renders the connectivity state.
func (r *Renderer) Status(s session.State) string {
	style, ok := stateStyles[s]
	if !ok {
		style = lipgloss.NewStyle()
	}
	return style.Render("[" + s.String() + "]")
}
