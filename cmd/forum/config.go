package main

import (
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage forum configuration",
	Long:  "View or modify the forum CLI configuration stored in ~/.forum/config.toml.",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current configuration with the session token masked",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configPath()
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			fmt.Fprintln(cmd.OutOrStdout(), "No configuration file found. Run 'forum init <base-url>' to create one.")
			return nil
		}

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		data, err := renderConfig(cfg)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "# %s\n", path)
		fmt.Fprint(out, string(data))
		if v := os.Getenv("FORUM_BASE_URL"); v != "" {
			fmt.Fprintf(out, "# FORUM_BASE_URL overrides default.base_url: %s\n", v)
		}
		if v := os.Getenv("FORUM_TOKEN"); v != "" {
			fmt.Fprintf(out, "# FORUM_TOKEN overrides auth.token: %s\n", maskKey(v))
		}
		return nil
	},
}

// renderConfig encodes cfg as TOML with the session token masked.
func renderConfig(cfg *Config) ([]byte, error) {
	shown := *cfg
	if shown.Auth.Token != "" {
		shown.Auth.Token = maskKey(shown.Auth.Token)
	}
	data, err := toml.Marshal(&shown)
	if err != nil {
		return nil, fmt.Errorf("cannot marshal config: %w", err)
	}
	return data, nil
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value using dot notation.
Example: forum config set default.base_url http://localhost:8080

Changing default.base_url forgets the saved session.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		shown := value
		switch key {
		case "default.base_url":
			if err := validateBaseURL(value); err != nil {
				return err
			}
			if cfg.Default.BaseURL != value {
				cfg.Auth = ConfigAuth{}
			}
		case "auth.token":
			shown = maskKey(value)
		}

		if err := setConfigValue(cfg, key, value); err != nil {
			return err
		}

		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, shown)
		return nil
	},
}
