package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/omochice/chat-session/internal/render"
	"github.com/omochice/chat-session/internal/session"
)

func TestPrintSnapshots(t *testing.T) {
	r := render.New(60)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	joined := session.SystemNotice{Body: session.JoinedNotice("Luis Gomez"), OccurredAt: at}
	hola := session.ChatMessage{Author: "Luis Gomez", Body: "hola", SentAt: at}
	own := session.ChatMessage{Author: "Ana Ruiz", Body: "buenas", SentAt: at, IsOwn: true}
	dropped := session.SystemNotice{Body: session.NoticeReconnecting, OccurredAt: at}

	tests := []struct {
		name  string
		snaps []session.Snapshot
		want  []string
	}{
		{
			name:  "initial state only",
			snaps: []session.Snapshot{{State: session.StateConnecting}},
			want:  []string{r.Status(session.StateConnecting)},
		},
		{
			name: "prints each entry once",
			snaps: []session.Snapshot{
				{State: session.StateConnected, Entries: []session.Entry{joined}},
				{State: session.StateConnected, Entries: []session.Entry{joined, hola}},
				{State: session.StateConnected, Entries: []session.Entry{joined, hola}},
			},
			want: []string{r.Status(session.StateConnected), r.Entry(joined), r.Entry(hola)},
		},
		{
			name: "catches up on skipped snapshots",
			snaps: []session.Snapshot{
				{State: session.StateConnected},
				{State: session.StateDisconnected, Entries: []session.Entry{hola, own, dropped}},
			},
			want: []string{
				r.Status(session.StateConnected),
				r.Status(session.StateDisconnected),
				r.Entry(hola), r.Entry(own), r.Entry(dropped),
			},
		},
		{
			name: "state change without entries",
			snaps: []session.Snapshot{
				{State: session.StateConnecting},
				{State: session.StateAuthFailed},
			},
			want: []string{r.Status(session.StateConnecting), r.Status(session.StateAuthFailed)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snaps := make(chan session.Snapshot, len(tt.snaps))
			for _, s := range tt.snaps {
				snaps <- s
			}
			close(snaps)

			var buf bytes.Buffer
			printSnapshots(&syncWriter{w: &buf}, r, snaps)

			want := strings.Join(tt.want, "\n") + "\n"
			if got := buf.String(); got != want {
				t.Errorf("output = %q, want %q", got, want)
			}
		})
	}
}
