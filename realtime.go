package forum

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"nhooyr.io/websocket"
)

// ============================================================================
// Transport
// ============================================================================

// Transport is one open persistent connection.
type Transport interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close(reason string) error
}

// Dialer opens transports.
type Dialer interface {
	Dial(ctx context.Context, url string) (Transport, error)
}

// OfflineFlusher marks the current user offline over REST. *Client
// implements it.
type OfflineFlusher interface {
	MarkOffline(ctx context.Context) error
}

type wsDialer struct {
	httpClient *http.Client
	readLimit  int64
}

func (d *wsDialer) Dial(ctx context.Context, url string) (Transport, error) {
	// The handshake is bounded by ctx; websocket rejects clients with a Timeout.
	hc := *d.httpClient
	hc.Timeout = 0

	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPClient: &hc})
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(d.readLimit)
	return &wsTransport{conn: conn}, nil
}

type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) Read(ctx context.Context) ([]byte, error) {
	for {
		typ, data, err := t.conn.Read(ctx)
		if err != nil {
			return nil, err
		}
		if typ == websocket.MessageText {
			return data, nil
		}
	}
}

func (t *wsTransport) Write(ctx context.Context, data []byte) error {
	return t.conn.Write(ctx, websocket.MessageText, data)
}

func (t *wsTransport) Close(reason string) error {
	return t.conn.Close(websocket.StatusNormalClosure, reason)
}

// ============================================================================
// RealtimeClient
// ============================================================================

// RealtimeState represents the connection state.
type RealtimeState string

const (
	StateDisconnected RealtimeState = "disconnected"
	StateConnecting   RealtimeState = "connecting"
	StateConnected    RealtimeState = "connected"
	StateReconnecting RealtimeState = "reconnecting"
)

// RealtimeClient owns the single persistent connection to the forum backend:
// connect/disconnect, fire-and-forget sends, inbound dispatch and bounded
// automatic reconnection.
type RealtimeClient struct {
	url        string
	config     *RealtimeConfig
	log        *zap.Logger
	dispatcher *eventDispatcher
	recon      *reconnector

	mu         sync.Mutex
	state      RealtimeState
	transport  Transport
	cancelRead context.CancelFunc
	pending    *connectAttempt
	epoch      uint64
	userID     int
}

type connectAttempt struct {
	done chan struct{}
	err  error
}

// NewRealtimeClient creates a client for the connection endpoint url. Call
// Connect to open it.
func NewRealtimeClient(url string, config *RealtimeConfig) (*RealtimeClient, error) {
	var cfg RealtimeConfig
	if config != nil {
		cfg = *config
	}
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := configValidator.Var(url, "required,url"); err != nil {
		return nil, fmt.Errorf("%w: connection url %q", ErrInvalidConfig, url)
	}

	log := cfg.Logger.Named("realtime")
	return &RealtimeClient{
		url:        url,
		config:     &cfg,
		log:        log,
		dispatcher: newEventDispatcher(log, cfg.Metrics),
		recon:      newReconnector(&cfg),
		state:      StateDisconnected,
		userID:     cfg.UserID,
	}, nil
}

// OnMessage registers a handler for new messages. The returned func removes it.
func (rt *RealtimeClient) OnMessage(h func(Message)) func() {
	return rt.dispatcher.messages.add(h)
}

// OnStatusChange registers a handler for presence changes, including our own
// connection going online or offline.
func (rt *RealtimeClient) OnStatusChange(h func(OnlineStatus)) func() {
	return rt.dispatcher.statuses.add(h)
}

// OnTypingStatus registers a handler for typing indicators.
func (rt *RealtimeClient) OnTypingStatus(h func(TypingStatus)) func() {
	return rt.dispatcher.typing.add(h)
}

// OnSessionExpired registers a handler for server-initiated logout. Session
// frames never reach the other registries.
func (rt *RealtimeClient) OnSessionExpired(h func(SessionExpiredFrame)) func() {
	return rt.dispatcher.sessionExpired.add(h)
}

// State returns the current connection state.
func (rt *RealtimeClient) State() RealtimeState {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.state
}

// Connected reports whether a transport is open.
func (rt *RealtimeClient) Connected() bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.transport != nil
}

// SetUserID records our own user id for local presence notifications.
func (rt *RealtimeClient) SetUserID(id int) {
	rt.mu.Lock()
	rt.userID = id
	rt.mu.Unlock()
}

// UserID returns the id set by SetUserID or the config.
func (rt *RealtimeClient) UserID() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.userID
}

// ReconnectAttempts returns the current reconnect attempt counter.
func (rt *RealtimeClient) ReconnectAttempts() int {
	return rt.recon.attempts()
}

// Connect opens the connection. It is idempotent: with a transport open it
// returns nil at once, and with a dial in flight it waits for that dial. A
// pending automatic reconnect is cancelled; a failed dial hands over to the
// reconnect policy with the remaining attempt budget.
func (rt *RealtimeClient) Connect(ctx context.Context) error {
	rt.recon.cancel()
	return rt.connect(ctx)
}

func (rt *RealtimeClient) connect(ctx context.Context) error {
	rt.mu.Lock()
	if rt.transport != nil {
		rt.mu.Unlock()
		return nil
	}
	if a := rt.pending; a != nil {
		rt.mu.Unlock()
		select {
		case <-a.done:
			return a.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	a := &connectAttempt{done: make(chan struct{})}
	rt.pending = a
	rt.state = StateConnecting
	epoch := rt.epoch
	rt.mu.Unlock()

	err := rt.open(ctx, epoch)
	a.err = err
	close(a.done)

	if err != nil && !errors.Is(err, ErrConnectSuperseded) {
		rt.mu.Lock()
		live := epoch == rt.epoch
		rt.mu.Unlock()
		if live {
			rt.scheduleReconnect()
		}
	}
	return err
}

// open dials, announces presence and starts the read loop. A Disconnect
// that bumps the epoch before presence is announced supersedes it.
func (rt *RealtimeClient) open(ctx context.Context, epoch uint64) error {
	dialCtx, cancel := context.WithTimeout(ctx, rt.config.DialTimeout)
	t, err := rt.config.Dialer.Dial(dialCtx, rt.url)
	cancel()

	rt.mu.Lock()
	rt.pending = nil
	if epoch != rt.epoch {
		rt.mu.Unlock()
		if t != nil {
			_ = t.Close("superseded")
		}
		return ErrConnectSuperseded
	}
	if err != nil {
		rt.state = StateDisconnected
		rt.mu.Unlock()
		return fmt.Errorf("websocket dial: %w", err)
	}
	readCtx, cancelRead := context.WithCancel(context.Background())
	rt.transport = t
	rt.cancelRead = cancelRead
	rt.state = StateConnected
	rt.mu.Unlock()

	rt.recon.reset()
	rt.config.Metrics.opened()
	rt.log.Info("websocket connected", zap.String("url", rt.url))

	if err := rt.write(ctx, t, ReconnectFrame{}); err != nil {
		rt.log.Warn("presence announce failed", zap.Error(err))
	}

	rt.mu.Lock()
	if rt.transport != t {
		rt.mu.Unlock()
		cancelRead()
		return ErrConnectSuperseded
	}
	userID := rt.userID
	rt.mu.Unlock()

	rt.dispatcher.emitStatus(OnlineStatus{UserID: userID, IsOnline: true})
	go rt.readLoop(readCtx, t)
	return nil
}

// Disconnect closes the connection gracefully. With a transport open it sends
// offline_status, flushes presence over REST and waits the close grace before
// closing. It never fails; problems are logged.
func (rt *RealtimeClient) Disconnect(ctx context.Context) {
	rt.recon.cancel()

	rt.mu.Lock()
	t := rt.transport
	cancelRead := rt.cancelRead
	rt.transport = nil
	rt.cancelRead = nil
	rt.epoch++
	rt.state = StateDisconnected
	userID := rt.userID
	rt.mu.Unlock()

	if t == nil {
		return
	}

	if err := rt.write(ctx, t, OfflineStatusFrame{}); err != nil {
		rt.log.Warn("offline announce failed", zap.Error(err))
	}

	var g errgroup.Group
	if rt.config.Offline != nil {
		g.Go(func() error {
			flushCtx, cancel := context.WithTimeout(ctx, rt.config.OfflineTimeout)
			defer cancel()
			if err := rt.config.Offline.MarkOffline(flushCtx); err != nil {
				return fmt.Errorf("offline flush: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		return sleepContext(ctx, rt.config.CloseGrace)
	})
	if err := g.Wait(); err != nil {
		rt.log.Warn("graceful disconnect incomplete", zap.Error(err))
	}

	if err := t.Close("client disconnect"); err != nil {
		rt.log.Debug("close transport", zap.Error(err))
	}
	cancelRead()
	rt.config.Metrics.closed()
	rt.log.Info("websocket disconnected by client")
	rt.dispatcher.emitStatus(OnlineStatus{UserID: userID, IsOnline: false})
}

// SendMessage writes a new_message frame. It returns false without writing
// when no connection is open.
func (rt *RealtimeClient) SendMessage(ctx context.Context, receiverID int, content string) bool {
	t := rt.current()
	if t == nil {
		return false
	}
	if err := rt.write(ctx, t, SendMessageFrame{ReceiverID: receiverID, Content: content}); err != nil {
		rt.log.Warn("send message failed", zap.Int("receiver_id", receiverID), zap.Error(err))
		return false
	}
	return true
}

// UpdateTypingStatus writes a typing frame; a no-op when disconnected.
func (rt *RealtimeClient) UpdateTypingStatus(ctx context.Context, receiverID int, isTyping bool) {
	t := rt.current()
	if t == nil {
		return
	}
	if err := rt.write(ctx, t, TypingFrame{ReceiverID: receiverID, IsTyping: isTyping}); err != nil {
		rt.log.Debug("typing update failed", zap.Int("receiver_id", receiverID), zap.Error(err))
	}
}

func (rt *RealtimeClient) current() Transport {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.transport
}

func (rt *RealtimeClient) write(ctx context.Context, t Transport, f OutboundFrame) error {
	data, err := EncodeOutbound(f)
	if err != nil {
		return err
	}
	if err := t.Write(ctx, data); err != nil {
		return err
	}
	rt.config.Metrics.frameSent(f.Type())
	return nil
}

func (rt *RealtimeClient) readLoop(ctx context.Context, t Transport) {
	for {
		data, err := t.Read(ctx)
		if err != nil {
			rt.handleClose(t, err)
			return
		}
		rt.dispatcher.handleRaw(data)
	}
}

// handleClose runs when t stops reading. Closes initiated by Disconnect have
// already detached t and are ignored here.
func (rt *RealtimeClient) handleClose(t Transport, cause error) {
	rt.mu.Lock()
	if rt.transport != t {
		rt.mu.Unlock()
		return
	}
	rt.transport = nil
	if rt.cancelRead != nil {
		rt.cancelRead()
		rt.cancelRead = nil
	}
	rt.state = StateDisconnected
	userID := rt.userID
	rt.mu.Unlock()

	_ = t.Close("read failed")
	rt.config.Metrics.closed()
	rt.log.Info("websocket disconnected", zap.Error(cause))
	rt.dispatcher.emitStatus(OnlineStatus{UserID: userID, IsOnline: false})
	rt.scheduleReconnect()
}

func (rt *RealtimeClient) scheduleReconnect() {
	if rt.config.DisableReconnect {
		return
	}
	scheduled := rt.recon.schedule(func(attempt int) {
		rt.config.Metrics.reconnectAttempt()
		rt.log.Info("attempting to reconnect",
			zap.Int("attempt", attempt), zap.Int("max", rt.config.MaxReconnectAttempts))

		// A failed dial reschedules itself from connect.
		if err := rt.connect(context.Background()); err != nil && !errors.Is(err, ErrConnectSuperseded) {
			rt.log.Warn("reconnect failed", zap.Int("attempt", attempt), zap.Error(err))
		}
	})
	if !scheduled {
		rt.log.Warn("max reconnection attempts reached", zap.Int("max", rt.config.MaxReconnectAttempts))
		return
	}

	rt.mu.Lock()
	if rt.transport == nil && rt.pending == nil {
		rt.state = StateReconnecting
	}
	rt.mu.Unlock()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
