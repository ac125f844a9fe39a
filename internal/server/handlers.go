package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/omochice/chat-session/internal/chat"
	transportws "github.com/omochice/chat-session/internal/transport/ws"
)

type loginRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email,omitempty"`
}

type userRecord struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email,omitempty"`
}

type loginResponse struct {
	Token string     `json:"token"`
	User  userRecord `json:"user"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"clients": s.hub.ClientCount(),
	})
}

// login issues a token for the given name. There is no password: the
// reference server trusts whoever asks.
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	if req.FirstName == "" || req.LastName == "" {
		writeError(w, http.StatusBadRequest, "first_name and last_name are required")
		return
	}

	user := userRecord{
		ID:        uuid.NewString(),
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     strings.TrimSpace(req.Email),
	}
	token, err := s.issuer.Issue(user.ID, user.FirstName, user.LastName)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to issue token")
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	s.log.Info().Str("user", user.ID).Msg("login")
	writeJSON(w, http.StatusOK, loginResponse{Token: token, User: user})
}

// handleWebSocket authenticates the bearer token, then upgrades and serves
// the connection in the room.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	claims, err := s.issuer.Verify(r.Header.Get("Authorization"))
	if err != nil {
		s.log.Info().Err(err).Str("remote", r.RemoteAddr).Msg("rejected websocket handshake")
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	if !s.track() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.wg.Done()

	conn, err := transportws.Accept(w, r)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to accept websocket connection")
		return
	}

	client := &chat.Client{
		ID:       uuid.NewString(),
		Conn:     conn,
		Name:     claims.DisplayName(),
		Outgoing: make(chan []byte, outgoingBuffer),
	}
	log := s.log.With().Str("client", client.ID).Str("user", claims.UserID).Logger()
	log.Debug().Msg("client connected")
	transportws.Serve(s.ctx, s.hub, client, log)
	log.Debug().Msg("client disconnected")
}
