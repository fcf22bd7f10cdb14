package forum

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test Helpers
// ============================================================================

var errTransportClosed = errors.New("fake transport closed")

type fakeTransport struct {
	inbound   chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	written [][]byte
	reason  string
	// hold, when set, blocks the first Write until it is closed or the
	// transport closes. holding is closed once that Write is blocked.
	hold    chan struct{}
	holding chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbound: make(chan []byte, 16),
		closed:  make(chan struct{}),
	}
}

func (t *fakeTransport) Read(ctx context.Context) ([]byte, error) {
	select {
	case b := <-t.inbound:
		return b, nil
	case <-t.closed:
		return nil, errTransportClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *fakeTransport) Write(ctx context.Context, data []byte) error {
	t.mu.Lock()
	hold := t.hold
	t.hold = nil
	t.mu.Unlock()
	if hold != nil {
		close(t.holding)
		select {
		case <-hold:
		case <-t.closed:
			return errTransportClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	select {
	case <-t.closed:
		return errTransportClosed
	default:
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.written = append(t.written, append([]byte(nil), data...))
	return nil
}

func (t *fakeTransport) Close(reason string) error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.reason = reason
		t.mu.Unlock()
		close(t.closed)
	})
	return nil
}

// push queues an inbound payload.
func (t *fakeTransport) push(s string) {
	t.inbound <- []byte(s)
}

// drop simulates the server going away.
func (t *fakeTransport) drop() {
	t.Close("server gone")
}

func (t *fakeTransport) isClosed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}

func (t *fakeTransport) frames() []Envelope {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Envelope, 0, len(t.written))
	for _, w := range t.written {
		var env Envelope
		_ = json.Unmarshal(w, &env)
		out = append(out, env)
	}
	return out
}

func (t *fakeTransport) framesOfType(ft FrameType) []Envelope {
	var out []Envelope
	for _, env := range t.frames() {
		if env.Type == ft {
			out = append(out, env)
		}
	}
	return out
}

type fakeDialer struct {
	mu         sync.Mutex
	dials      int
	transports []*fakeTransport
	// fail, when set, decides per 1-based dial number whether to fail.
	fail func(n int) bool
	gate chan struct{}
	// holdWrite and holding are handed to the next dialed transport.
	holdWrite chan struct{}
	holding   chan struct{}
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Transport, error) {
	d.mu.Lock()
	d.dials++
	n := d.dials
	fail := d.fail
	gate := d.gate
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail != nil && fail(n) {
		return nil, errors.New("connection refused")
	}
	t := newFakeTransport()
	d.mu.Lock()
	if d.holdWrite != nil {
		t.hold, t.holding = d.holdWrite, d.holding
		d.holdWrite, d.holding = nil, nil
	}
	d.transports = append(d.transports, t)
	d.mu.Unlock()
	return t, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) last() *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.transports) == 0 {
		return nil
	}
	return d.transports[len(d.transports)-1]
}

type fakeFlusher struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeFlusher) MarkOffline(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func (f *fakeFlusher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestRealtime(t *testing.T, d *fakeDialer, mutate func(*RealtimeConfig)) *RealtimeClient {
	t.Helper()
	cfg := &RealtimeConfig{
		UserID:         9,
		ReconnectDelay: 10 * time.Millisecond,
		CloseGrace:     time.Millisecond,
		Dialer:         d,
	}
	if mutate != nil {
		mutate(cfg)
	}
	rt, err := NewRealtimeClient("ws://forum.test/api/ws", cfg)
	require.NoError(t, err)
	t.Cleanup(func() { rt.Disconnect(context.Background()) })
	return rt
}

// recorder collects callback values in order.
type recorder[T any] struct {
	mu     sync.Mutex
	values []T
}

func (r *recorder[T]) add(v T) {
	r.mu.Lock()
	r.values = append(r.values, v)
	r.mu.Unlock()
}

func (r *recorder[T]) all() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.values...)
}

func (r *recorder[T]) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.values)
}

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)
