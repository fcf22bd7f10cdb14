package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var loginPassword string

func init() {
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "Password (defaults to $FORUM_PASSWORD, then a prompt)")
	rootCmd.AddCommand(loginCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login <email-or-username>",
	Short: "Log in and store the session locally",
	Long:  "Log in to the forum backend and store the returned session token in the local configuration file.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		identifier := args[0]

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		log, err := newLogger()
		if err != nil {
			return err
		}
		defer log.Sync()

		client, err := getClient(cfg, log)
		if err != nil {
			return err
		}

		password := loginPassword
		if password == "" {
			password = os.Getenv("FORUM_PASSWORD")
		}
		if password == "" {
			fmt.Fprint(cmd.OutOrStdout(), "Password: ")
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("failed to read password: %w", err)
			}
			password = strings.TrimRight(line, "\r\n")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := client.Login(ctx, identifier, password); err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
		token := client.Token()
		if token == "" {
			return fmt.Errorf("login succeeded but the backend set no session cookie")
		}

		status, err := client.UserStatus(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch session status: %w", err)
		}

		// Store token and identity in config.
		cfg.Auth = ConfigAuth{
			Token:      token,
			UserID:     status.UserID,
			Identifier: identifier,
		}
		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), "Login successful!")
		fmt.Fprintf(cmd.OutOrStdout(), "  User ID: %d\n", status.UserID)
		return nil
	},
}
