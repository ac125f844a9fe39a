package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/omochice/chat-session/internal/credential"
)

var (
	loginFirst string
	loginLast  string
	loginEmail string
)

type loginResponse struct {
	Token string          `json:"token"`
	User  credential.User `json:"user"`
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store the access token",
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := json.Marshal(map[string]string{
			"first_name": loginFirst,
			"last_name":  loginLast,
			"email":      loginEmail,
		})
		if err != nil {
			return fmt.Errorf("failed to encode login request: %w", err)
		}

		client := &http.Client{Timeout: 10 * time.Second}
		resp, err := client.Post(strings.TrimSuffix(cfg.APIURL, "/")+"/api/login", "application/json", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to reach login api: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			var apiErr struct {
				Error string `json:"error"`
			}
			json.NewDecoder(resp.Body).Decode(&apiErr)
			return fmt.Errorf("login rejected (%d): %s", resp.StatusCode, apiErr.Error)
		}

		var out loginResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("failed to decode login response: %w", err)
		}

		provider, closeStore, err := openProvider()
		if err != nil {
			return err
		}
		defer closeStore()
		if err := provider.Save(out.Token, out.User); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Sesión iniciada como %s\n", out.User.DisplayName())
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, closeStore, err := openProvider()
		if err != nil {
			return err
		}
		defer closeStore()
		if err := provider.Clear(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Sesión cerrada")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the stored identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, closeStore, err := openProvider()
		if err != nil {
			return err
		}
		defer closeStore()

		user, ok := provider.User()
		if _, hasToken := provider.Token(); !ok || !hasToken {
			return fmt.Errorf("not logged in, run 'chat login'")
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, user.DisplayName())
		if user.Email != "" {
			fmt.Fprintln(out, user.Email)
		}
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginFirst, "first", "", "First name")
	loginCmd.Flags().StringVar(&loginLast, "last", "", "Last name")
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "Email address")
	loginCmd.MarkFlagRequired("first")
	loginCmd.MarkFlagRequired("last")

	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd)
}
