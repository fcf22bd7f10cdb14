package forum

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LogoutSignalKey is the shared-store key of the cross-tab logout broadcast.
const LogoutSignalKey = "forum.logout"

// Navigator receives navigation requests, e.g. to the login page.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a func to Navigator.
type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

// AuthAPI is the part of the REST API a Session needs. *Client implements it.
type AuthAPI interface {
	UserStatus(ctx context.Context) (*UserStatus, error)
	Logout(ctx context.Context) error
}

// SessionOptions configures a Session. Navigator is required.
type SessionOptions struct {
	Navigator   Navigator
	Store       SharedStore
	Credentials CredentialStore
	Logger      *zap.Logger
	// TabID identifies this client in cross-tab signals. Generated if empty.
	TabID string
	// ExpiryTimeout bounds the disconnect forced by a session_expired frame.
	ExpiryTimeout time.Duration
}

type logoutSignal struct {
	At     int64  `json:"at"`
	Origin string `json:"origin"`
}

// Session turns connection lifecycle and control frames into application
// effects: forced logout on session expiry, cross-tab logout, and reconnect
// when the client becomes visible again.
type Session struct {
	api   AuthAPI
	rt    *RealtimeClient
	nav   Navigator
	store SharedStore
	creds CredentialStore
	log   *zap.Logger
	tabID string

	expiryTimeout time.Duration

	mu             sync.Mutex
	stopWatch      func()
	disposeExpired func()
	loggedOut      bool
}

// NewSession wires api, rt and the injected browser services together. Call
// Start to check the session and connect.
func NewSession(api AuthAPI, rt *RealtimeClient, opts SessionOptions) (*Session, error) {
	if opts.Navigator == nil {
		return nil, fmt.Errorf("%w: session needs a navigator", ErrInvalidConfig)
	}
	if opts.Store == nil {
		opts.Store = NewMemorySharedStore()
	}
	if opts.Credentials == nil {
		opts.Credentials = noCredentials{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.TabID == "" {
		opts.TabID = uuid.NewString()
	}
	if opts.ExpiryTimeout <= 0 {
		opts.ExpiryTimeout = 5 * time.Second
	}
	return &Session{
		api:           api,
		rt:            rt,
		nav:           opts.Navigator,
		store:         opts.Store,
		creds:         opts.Credentials,
		log:           opts.Logger.Named("session").With(zap.String("tab", opts.TabID)),
		tabID:         opts.TabID,
		expiryTimeout: opts.ExpiryTimeout,
	}, nil
}

// TabID returns this client's cross-tab identity.
func (s *Session) TabID() string {
	return s.tabID
}

// Start checks the session over REST. A failed check counts as logged out
// and navigates to the login page. When logged in it arms the session
// listeners and connects; the connect error, if any, is returned.
func (s *Session) Start(ctx context.Context) (bool, error) {
	status, err := s.api.UserStatus(ctx)
	if err != nil {
		s.log.Warn("auth status check failed", zap.Error(err))
		s.navigateToLogin()
		return false, nil
	}
	if !status.IsLoggedIn {
		s.navigateToLogin()
		return false, nil
	}

	s.rt.SetUserID(status.UserID)
	s.arm()
	if err := s.rt.Connect(ctx); err != nil {
		s.log.Warn("initial connect failed", zap.Error(err))
		return true, err
	}
	return true, nil
}

func (s *Session) arm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loggedOut = false
	if s.disposeExpired == nil {
		s.disposeExpired = s.rt.OnSessionExpired(s.handleSessionExpired)
	}
	if s.stopWatch == nil {
		s.stopWatch = s.store.Watch(LogoutSignalKey, s.handleLogoutSignal)
	}
}

// Logout ends the session and tells sibling clients through the shared
// store. The signal is cleared once the backend confirms.
func (s *Session) Logout(ctx context.Context) error {
	sig, err := json.Marshal(logoutSignal{At: time.Now().UnixMilli(), Origin: s.tabID})
	if err != nil {
		return fmt.Errorf("encode logout signal: %w", err)
	}
	if err := s.store.Set(LogoutSignalKey, string(sig)); err != nil {
		s.log.Warn("broadcast logout failed", zap.Error(err))
	}

	if err := s.api.Logout(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}

	s.unwatch()
	if err := s.store.Remove(LogoutSignalKey); err != nil {
		s.log.Warn("clear logout signal failed", zap.Error(err))
	}
	s.localLogout(ctx)
	return nil
}

// HandleVisibilityChange reconnects when the client becomes visible with no
// connection open.
func (s *Session) HandleVisibilityChange(ctx context.Context, visible bool) error {
	if !visible || s.rt.Connected() {
		return nil
	}
	s.mu.Lock()
	loggedOut := s.loggedOut
	s.mu.Unlock()
	if loggedOut {
		return nil
	}
	s.log.Debug("visible without connection, reconnecting")
	return s.rt.Connect(ctx)
}

// Close detaches the session listeners and disconnects.
func (s *Session) Close(ctx context.Context) {
	s.unwatch()
	s.mu.Lock()
	dispose := s.disposeExpired
	s.disposeExpired = nil
	s.mu.Unlock()
	if dispose != nil {
		dispose()
	}
	s.rt.Disconnect(ctx)
}

func (s *Session) handleSessionExpired(f SessionExpiredFrame) {
	s.log.Info("session expired by server", zap.String("reason", f.Message))
	ctx, cancel := context.WithTimeout(context.Background(), s.expiryTimeout)
	defer cancel()
	s.localLogout(ctx)
}

// handleLogoutSignal fires at most once per arm: it removes itself before
// logging out so the local logout cannot rebroadcast.
func (s *Session) handleLogoutSignal(value string, ok bool) {
	if !ok {
		return
	}
	var sig logoutSignal
	if err := json.Unmarshal([]byte(value), &sig); err != nil {
		s.log.Warn("ignoring malformed logout signal", zap.Error(err))
		return
	}
	if sig.Origin == s.tabID {
		return
	}
	if !s.unwatch() {
		return
	}
	s.log.Info("logout signalled by another tab", zap.String("origin", sig.Origin))

	ctx, cancel := context.WithTimeout(context.Background(), s.expiryTimeout)
	defer cancel()
	s.localLogout(ctx)
}

func (s *Session) unwatch() bool {
	s.mu.Lock()
	stop := s.stopWatch
	s.stopWatch = nil
	s.mu.Unlock()
	if stop == nil {
		return false
	}
	stop()
	return true
}

func (s *Session) localLogout(ctx context.Context) {
	s.rt.Disconnect(ctx)
	s.creds.ClearCredentials()
	s.navigateToLogin()
}

// navigateToLogin navigates once per logged-in period.
func (s *Session) navigateToLogin() {
	s.mu.Lock()
	if s.loggedOut {
		s.mu.Unlock()
		return
	}
	s.loggedOut = true
	s.mu.Unlock()
	s.nav.Navigate(LoginPath)
}

type noCredentials struct{}

func (noCredentials) ClearCredentials() {}
