package main

import (
	"context"
	"fmt"
	"time"

	forum "github.com/rtforum/forum-sdk-go"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(logoutCmd)
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Log out and end running chat sessions",
	Long:  "End the session on the backend, signal running 'forum chat' and 'forum listen' processes to stop, and forget the stored token.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		log, err := newLogger()
		if err != nil {
			return err
		}
		defer log.Sync()

		client, err := getSessionClient(cfg, log)
		if err != nil {
			return err
		}
		rt, err := client.Realtime(&forum.RealtimeConfig{UserID: cfg.Auth.UserID})
		if err != nil {
			return err
		}
		store, err := signalStore(log)
		if err != nil {
			return err
		}
		sess, err := forum.NewSession(client, rt, forum.SessionOptions{
			Navigator:   forum.NavigatorFunc(func(string) {}),
			Store:       store,
			Credentials: client.Credentials(),
			Logger:      log,
		})
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := sess.Logout(ctx); err != nil {
			return err
		}

		cfg.Auth = ConfigAuth{}
		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
		return nil
	},
}
