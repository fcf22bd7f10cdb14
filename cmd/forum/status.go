package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current configuration and session status",
	Long:  "Display the current configuration, check the stored session against the backend and show unread messages.",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// Print config summary.
		fmt.Fprintln(out, "Configuration:")
		fmt.Fprintf(out, "  Base URL: %s\n", valueOrDefault(baseURL(cfg), "(not set)"))

		fmt.Fprintln(out)
		fmt.Fprintln(out, "Auth:")
		if token := sessionToken(cfg); token != "" {
			fmt.Fprintf(out, "  Login:    %s\n", valueOrDefault(cfg.Auth.Identifier, "(unknown)"))
			if cfg.Auth.UserID != 0 {
				fmt.Fprintf(out, "  User ID:  %d\n", cfg.Auth.UserID)
			}
			fmt.Fprintf(out, "  Token:    %s\n", maskKey(token))
		} else {
			fmt.Fprintln(out, "  Token:    (not logged in)")
			return nil
		}
		if baseURL(cfg) == "" {
			return nil
		}

		fmt.Fprintln(out)
		fmt.Fprintln(out, "Live status:")

		log, err := newLogger()
		if err != nil {
			return err
		}
		defer log.Sync()
		client, err := getClient(cfg, log)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		status, err := client.UserStatus(ctx)
		if err != nil {
			fmt.Fprintf(out, "  Error fetching session status: %v\n", err)
			return nil
		}
		if !status.IsLoggedIn {
			fmt.Fprintln(out, "  Session:  EXPIRED (run 'forum login' again)")
			return nil
		}
		fmt.Fprintln(out, "  Session:  valid")

		unread, err := client.UnreadCount(ctx)
		if err != nil {
			fmt.Fprintf(out, "  Error fetching unread count: %v\n", err)
			return nil
		}
		fmt.Fprintf(out, "  Unread:   %d\n", unread)

		list, err := client.Conversations(ctx)
		if err != nil {
			fmt.Fprintf(out, "  Error fetching conversations: %v\n", err)
			return nil
		}
		fmt.Fprintf(out, "  Conversations: %d\n", len(list.Conversations))
		for _, c := range list.Conversations {
			presence := "offline"
			if c.IsOnline {
				presence = "online"
			}
			fmt.Fprintf(out, "    #%d %-16s %-7s unread=%d\n", c.UserID, c.Username, presence, c.UnreadCount)
		}
		return nil
	},
}
