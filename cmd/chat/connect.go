package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/omochice/chat-session/internal/channel"
	"github.com/omochice/chat-session/internal/logger"
	"github.com/omochice/chat-session/internal/render"
	"github.com/omochice/chat-session/internal/session"
)

const (
	cmdQuit = "/quit"
	cmdWho  = "/who"
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Join the chat room",
	Long: `Join the chat room with the stored credentials.

Type a message and press enter to send it.
  /who    list the active participants
  /quit   leave the room`,
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, closeStore, err := openProvider()
		if err != nil {
			return err
		}
		defer closeStore()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out := &syncWriter{w: cmd.OutOrStdout()}
		r := render.New(cfg.Width)

		ctrl := session.New(channel.WebSocketDialer{Logger: logger.Module("channel")}, provider, session.Options{
			Endpoint:             cfg.ServerURL,
			MaxReconnectAttempts: cfg.MaxReconnectAttempts,
			ReconnectDelay:       cfg.ReconnectDelay,
			OnRedirect: func() {
				out.println("Sesión no válida. Ejecuta 'chat login' para iniciar sesión.")
				stop()
			},
		})
		defer ctrl.Close()

		snaps, unsubscribe := ctrl.Subscribe()
		defer unsubscribe()

		if err := ctrl.Start(ctx); err != nil {
			if errors.Is(err, session.ErrNoCredentials) {
				return fmt.Errorf("not logged in, run 'chat login'")
			}
			return err
		}
		go ctrl.Run(ctx)

		printed := make(chan struct{})
		go func() {
			defer close(printed)
			printSnapshots(out, r, snaps)
		}()

		lines := make(chan string)
		go func() {
			defer close(lines)
			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				select {
				case lines <- scanner.Text():
				case <-ctx.Done():
					return
				}
			}
			if err := scanner.Err(); err != nil {
				log := logger.Module("main")
				log.Error().Err(err).Msg("failed to read input")
			}
		}()

	loop:
		for {
			select {
			case <-ctx.Done():
				break loop
			case line, ok := <-lines:
				if !ok {
					break loop
				}
				switch text := strings.TrimSpace(line); text {
				case "":
				case cmdQuit:
					break loop
				case cmdWho:
					out.println(r.Roster(ctrl.Roster()))
				default:
					if !ctrl.Send(text) {
						out.println(r.Status(ctrl.State()) + " sin conexión, mensaje no enviado")
					}
				}
			}
		}

		ctrl.Close()
		<-printed
		return nil
	},
}

func init() {
	rootCmd.AddCommand(connectCmd)
}

// printSnapshots prints log entries as they are appended and the state
// whenever it changes, until snaps is closed.
func printSnapshots(out *syncWriter, r *render.Renderer, snaps <-chan session.Snapshot) {
	seen := 0
	last := session.State(-1)
	for snap := range snaps {
		if snap.State != last {
			out.println(r.Status(snap.State))
			last = snap.State
		}
		for _, e := range snap.Entries[min(seen, len(snap.Entries)):] {
			out.println(r.Entry(e))
		}
		seen = max(seen, len(snap.Entries))
	}
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) println(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.w, line)
}
