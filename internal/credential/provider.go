// Package credential stores the access token and user record of the logged
// in participant.
package credential

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/omochice/chat-session/internal/logger"
)

// Store keys.
const (
	KeyToken = "access_token"
	KeyUser  = "user"
)

// User is the stored profile of the logged in participant.
type User struct {
	ID        string `json:"id" yaml:"id"`
	FirstName string `json:"first_name" yaml:"first_name"`
	LastName  string `json:"last_name" yaml:"last_name"`
	Email     string `json:"email,omitempty" yaml:"email,omitempty"`
}

// DisplayName is the name the participant is known by in the room.
func (u User) DisplayName() string {
	return u.FirstName + " " + u.LastName
}

// Provider reads and writes session credentials on a Store.
type Provider struct {
	store Store
	log   zerolog.Logger
	now   func() time.Time
}

// NewProvider returns a provider over store.
func NewProvider(store Store) *Provider {
	return &Provider{
		store: store,
		log:   logger.Module("credential"),
		now:   time.Now,
	}
}

// Save stores token and user, replacing earlier credentials. If the user
// cannot be stored the token is removed again.
func (p *Provider) Save(token string, user User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to encode user: %w", err)
	}
	if err := p.store.Set(KeyToken, token); err != nil {
		return err
	}
	if err := p.store.Set(KeyUser, string(data)); err != nil {
		if derr := p.store.Delete(KeyToken, KeyUser); derr != nil {
			p.log.Error().Err(derr).Msg("failed to roll back partial credentials")
		}
		return err
	}
	return nil
}

// Token returns the stored access token. A JWT whose exp claim has passed is
// reported as absent; tokens that are not JWTs are returned as is.
func (p *Provider) Token() (string, bool) {
	token, ok, err := p.store.Get(KeyToken)
	if err != nil {
		p.log.Error().Err(err).Msg("failed to read token")
		return "", false
	}
	if !ok || token == "" {
		return "", false
	}
	if p.expired(token) {
		p.log.Info().Msg("stored token has expired")
		return "", false
	}
	return token, true
}

// User returns the stored user record.
func (p *Provider) User() (User, bool) {
	raw, ok, err := p.store.Get(KeyUser)
	if err != nil {
		p.log.Error().Err(err).Msg("failed to read user")
		return User{}, false
	}
	if !ok || raw == "" {
		return User{}, false
	}
	var u User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		p.log.Warn().Err(err).Msg("stored user is not valid JSON")
		return User{}, false
	}
	return u, true
}

// DisplayName returns the stored user's display name.
func (p *Provider) DisplayName() (string, bool) {
	u, ok := p.User()
	if !ok || (u.FirstName == "" && u.LastName == "") {
		return "", false
	}
	return u.DisplayName(), true
}

// Clear removes both token and user.
func (p *Provider) Clear() error {
	if err := p.store.Delete(KeyToken, KeyUser); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	return nil
}

func (p *Provider) expired(token string) bool {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false
	}
	return claims.ExpiresAt != nil && !claims.ExpiresAt.After(p.now())
}
