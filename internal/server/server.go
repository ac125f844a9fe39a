// Package server implements the reference chat server: a single room served
// over WebSocket, with token login.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/omochice/chat-session/internal/auth"
	"github.com/omochice/chat-session/internal/chat"
	"github.com/omochice/chat-session/internal/config"
	"github.com/omochice/chat-session/internal/logger"
)

// outgoingBuffer is the per-client queue of frames awaiting write.
const outgoingBuffer = 32

// Server represents the chat server.
type Server struct {
	address string
	hub     *chat.Hub
	issuer  *auth.Issuer
	router  *chi.Mux
	log     zerolog.Logger

	mu       sync.Mutex
	listener net.Listener
	http     *http.Server
	stopping bool

	// ctx ends every WebSocket session on Stop.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Server from cfg.
func New(cfg config.Server) (*Server, error) {
	issuer, err := auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create token issuer: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		address: cfg.Addr,
		hub:     chat.NewHub(),
		issuer:  issuer,
		router:  chi.NewRouter(),
		log:     logger.Module("server"),
		ctx:     ctx,
		cancel:  cancel,
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(requestLogger(s.log))
	s.router.Use(middleware.Recoverer)

	s.router.Get("/health", s.health)
	s.router.Post("/api/login", s.login)
	s.router.Get("/ws", s.handleWebSocket)

	return s, nil
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the room served by s.
func (s *Server) Hub() *chat.Hub {
	return s.hub
}

// Issuer returns the token issuer used for login and WebSocket auth.
func (s *Server) Issuer() *auth.Issuer {
	return s.issuer
}

// Start listens on the configured address and serves until Stop is called.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	s.mu.Lock()
	s.listener = listener
	s.http = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.http
	s.mu.Unlock()

	s.log.Info().Str("addr", listener.Addr().String()).Msg("chat server started")

	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Addr returns the server's listening address.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// Stop stops accepting requests, ends every WebSocket session and waits for
// them to finish.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopping = true
	srv := s.http
	s.mu.Unlock()
	s.cancel()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

// track counts a WebSocket session for Stop. It reports false once Stop has
// begun.
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping {
		return false
	}
	s.wg.Add(1)
	return true
}
