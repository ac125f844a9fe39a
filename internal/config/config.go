// Package config loads client and server settings from the environment.
// Command-line flags override the environment values.
package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// Client holds chat client configuration.
type Client struct {
	ServerURL            string        `env:"CHAT_SERVER_URL"             envDefault:"ws://localhost:8080/ws"`
	APIURL               string        `env:"CHAT_API_URL"                envDefault:"http://localhost:8080"`
	CredentialsPath      string        `env:"CHAT_CREDENTIALS"`
	MaxReconnectAttempts int           `env:"CHAT_MAX_RECONNECT_ATTEMPTS" envDefault:"5"`
	ReconnectDelay       time.Duration `env:"CHAT_RECONNECT_DELAY"        envDefault:"1s"`
	LogLevel             string        `env:"CHAT_LOG_LEVEL"              envDefault:"warn"`
	Width                int           `env:"CHAT_WIDTH"                  envDefault:"80"`
}

// Server holds reference chat server configuration.
type Server struct {
	Addr      string        `env:"CHAT_ADDR"       envDefault:":8080"`
	JWTSecret string        `env:"CHAT_JWT_SECRET" envDefault:"dev-secret"`
	TokenTTL  time.Duration `env:"CHAT_TOKEN_TTL"  envDefault:"24h"`
	LogLevel  string        `env:"CHAT_LOG_LEVEL"  envDefault:"info"`
}

// LoadClient parses the client configuration from the environment.
func LoadClient() (Client, error) {
	var cfg Client
	if err := env.Parse(&cfg); err != nil {
		return Client{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.CredentialsPath == "" {
		cfg.CredentialsPath = DefaultCredentialsPath()
	}
	return cfg, nil
}

// Validate reports settings the client cannot run with.
func (c Client) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server url is required")
	}
	if c.MaxReconnectAttempts < 0 {
		return fmt.Errorf("max reconnect attempts must be >= 0, got %d", c.MaxReconnectAttempts)
	}
	if c.ReconnectDelay < 0 {
		return fmt.Errorf("reconnect delay must be >= 0, got %s", c.ReconnectDelay)
	}
	return nil
}

// DefaultCredentialsPath returns the credentials file under the user's home
// directory, falling back to the working directory.
func DefaultCredentialsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "credentials.yaml"
	}
	return filepath.Join(home, ".chat-session", "credentials.yaml")
}

// ParseServer parses environment and flags into a Server config.
func ParseServer(fs *flag.FlagSet, args []string) (Server, error) {
	var cfg Server
	if err := env.Parse(&cfg); err != nil {
		return Server{}, fmt.Errorf("parse env: %w", err)
	}

	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address (e.g., :8080)")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", cfg.JWTSecret, "HMAC secret for access tokens")
	fs.DurationVar(&cfg.TokenTTL, "token-ttl", cfg.TokenTTL, "access token lifetime")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	if err := fs.Parse(args); err != nil {
		return Server{}, fmt.Errorf("parse flags: %w", err)
	}
	if cfg.JWTSecret == "" {
		return Server{}, fmt.Errorf("jwt secret is required")
	}
	return cfg, nil
}
