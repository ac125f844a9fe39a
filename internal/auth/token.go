// Package auth issues and verifies the access tokens used by the chat server.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "chat-session"

// ErrInvalidToken is returned for tokens that are malformed, forged or expired.
var ErrInvalidToken = errors.New("invalid token")

// Claims identify the participant a token was issued to.
type Claims struct {
	UserID    string
	FirstName string
	LastName  string
	ExpiresAt time.Time
}

// DisplayName is the name the participant is known by in the room.
func (c Claims) DisplayName() string {
	return c.FirstName + " " + c.LastName
}

type tokenClaims struct {
	jwt.RegisteredClaims
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Issuer signs and verifies HS256 tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer returns an Issuer. Tokens live for ttl.
func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, errors.New("token secret is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue returns a signed token for the given user.
func (i *Issuer) Issue(userID, firstName, lastName string) (string, error) {
	now := i.now()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		FirstName: firstName,
		LastName:  lastName,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// Verify checks the signature and expiry of token. A "Bearer " prefix is
// accepted.
func (i *Issuer) Verify(token string) (Claims, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return Claims{}, fmt.Errorf("%w: token is required", ErrInvalidToken)
	}

	var parsed tokenClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if parsed.Subject == "" {
		return Claims{}, fmt.Errorf("%w: subject is required", ErrInvalidToken)
	}

	return Claims{
		UserID:    parsed.Subject,
		FirstName: parsed.FirstName,
		LastName:  parsed.LastName,
		ExpiresAt: parsed.ExpiresAt.Time,
	}, nil
}
