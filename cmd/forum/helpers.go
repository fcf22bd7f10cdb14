package main

import (
	"fmt"
	"os"
	"path/filepath"

	forum "github.com/rtforum/forum-sdk-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// baseURL returns $FORUM_BASE_URL or the configured base URL.
func baseURL(cfg *Config) string {
	if v := os.Getenv("FORUM_BASE_URL"); v != "" {
		return v
	}
	return cfg.Default.BaseURL
}

// sessionToken returns $FORUM_TOKEN or the saved session token.
func sessionToken(cfg *Config) string {
	if v := os.Getenv("FORUM_TOKEN"); v != "" {
		return v
	}
	return cfg.Auth.Token
}

// getClient creates a forum client for the configured backend, carrying the
// saved session if any.
func getClient(cfg *Config, log *zap.Logger) (*forum.Client, error) {
	base := baseURL(cfg)
	if base == "" {
		return nil, fmt.Errorf("no base URL configured; run 'forum init <base-url>' first")
	}
	client := forum.NewClient(base, forum.WithLogger(log))
	if token := sessionToken(cfg); token != "" {
		client.SetToken(token)
	}
	return client, nil
}

// getSessionClient is getClient for commands that need a logged-in session.
func getSessionClient(cfg *Config, log *zap.Logger) (*forum.Client, error) {
	if sessionToken(cfg) == "" {
		return nil, fmt.Errorf("not logged in; run 'forum login <email>' first")
	}
	return getClient(cfg, log)
}

// signalStore opens the cross-process logout channel under the config dir.
func signalStore(log *zap.Logger) (*forum.FileSharedStore, error) {
	dir, err := configDir()
	if err != nil {
		return nil, err
	}
	return forum.NewFileSharedStore(filepath.Join(dir, "signals"), 0, log)
}

// newLogger logs warnings to stderr, or everything with --verbose.
func newLogger() (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.DisableStacktrace = true
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		cfg.DisableCaller = true
	}
	return cfg.Build()
}

// maskKey shows the first 4 and last 4 characters of a secret.
func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

func valueOrDefault(val, def string) string {
	if val == "" {
		return def
	}
	return val
}
