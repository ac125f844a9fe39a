package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/omochice/chat-session/internal/config"
	"github.com/omochice/chat-session/internal/credential"
	"github.com/omochice/chat-session/internal/logger"
)

var (
	cfg config.Client

	serverURL       string
	apiURL          string
	credentialsPath string
	logLevel        string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "chat",
	Short: "Terminal client for the chat room",
	Long: `A terminal client for a single real-time chat room.

Quick Start:
  chat login --first Ana --last Ruiz   # Get and store an access token
  chat connect                         # Join the room
  chat logout                          # Forget the stored credentials`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.LoadClient()
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		if flags.Changed("server") {
			loaded.ServerURL = serverURL
		}
		if flags.Changed("api") {
			loaded.APIURL = apiURL
		}
		if flags.Changed("credentials") {
			loaded.CredentialsPath = credentialsPath
		}
		if flags.Changed("log-level") {
			loaded.LogLevel = logLevel
		}
		if err := loaded.Validate(); err != nil {
			return err
		}
		cfg = loaded
		logger.Init(cfg.LogLevel, os.Stderr, true)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "WebSocket endpoint of the chat server (env CHAT_SERVER_URL)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", "", "Base URL of the login API (env CHAT_API_URL)")
	rootCmd.PersistentFlags().StringVar(&credentialsPath, "credentials", "", "Credentials file; .db/.sqlite paths use SQLite (env CHAT_CREDENTIALS)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (env CHAT_LOG_LEVEL)")
}

// openProvider opens the configured credential store. The returned function
// closes it.
func openProvider() (*credential.Provider, func(), error) {
	store, err := credential.OpenStore(cfg.CredentialsPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open credentials: %w", err)
	}
	closeStore := func() {
		if err := store.Close(); err != nil {
			log := logger.Module("credential")
			log.Warn().Err(err).Msg("failed to close credential store")
		}
	}
	return credential.NewProvider(store), closeStore, nil
}
