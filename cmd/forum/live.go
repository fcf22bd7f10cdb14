package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	forum "github.com/rtforum/forum-sdk-go"
	"go.uber.org/zap"
)

var errSessionEnded = errors.New("session ended; run 'forum login' to start a new one")

// liveSession is the realtime session of one long-running CLI process. The
// process plays the part of a tab: a 'forum logout' elsewhere, or the server
// expiring the session, ends it.
type liveSession struct {
	log     *zap.Logger
	client  *forum.Client
	rt      *forum.RealtimeClient
	session *forum.Session
	ended   chan struct{}
}

// newLiveSession wires a session without connecting, so callers can
// subscribe before start.
func newLiveSession(cfg *Config, log *zap.Logger, metrics *forum.Metrics) (*liveSession, error) {
	client, err := getSessionClient(cfg, log)
	if err != nil {
		return nil, err
	}
	rt, err := client.Realtime(&forum.RealtimeConfig{UserID: cfg.Auth.UserID, Metrics: metrics})
	if err != nil {
		return nil, err
	}
	store, err := signalStore(log)
	if err != nil {
		return nil, err
	}

	ls := &liveSession{log: log, client: client, rt: rt, ended: make(chan struct{})}
	var once sync.Once
	ls.session, err = forum.NewSession(client, rt, forum.SessionOptions{
		Navigator:   forum.NavigatorFunc(func(string) { once.Do(func() { close(ls.ended) }) }),
		Store:       store,
		Credentials: client.Credentials(),
		Logger:      log,
	})
	if err != nil {
		return nil, err
	}
	return ls, nil
}

// start checks the session and connects.
func (ls *liveSession) start(ctx context.Context) error {
	ok, err := ls.session.Start(ctx)
	if !ok {
		forgetSession(ls.log)
		return errSessionEnded
	}
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	return nil
}

// wait blocks until ctx is done or the session is ended elsewhere.
func (ls *liveSession) wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case <-ls.ended:
		return errSessionEnded
	}
}

func (ls *liveSession) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ls.session.Close(ctx)
}

// forgetSession drops the stored token once the backend no longer honours it.
func forgetSession(log *zap.Logger) {
	cfg, err := loadConfig()
	if err != nil {
		log.Warn("cannot load config to forget session", zap.Error(err))
		return
	}
	if cfg.Auth == (ConfigAuth{}) {
		return
	}
	cfg.Auth = ConfigAuth{}
	if err := saveConfig(cfg); err != nil {
		log.Warn("cannot forget session", zap.Error(err))
	}
}
