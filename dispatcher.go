package forum

import (
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ============================================================================
// Callback registry
// ============================================================================

// registry is an ordered set of subscriber callbacks for one frame category.
type registry[T any] struct {
	mu      sync.RWMutex
	nextID  uint64
	entries []registryEntry[T]
}

type registryEntry[T any] struct {
	id uint64
	fn func(T)
}

// add appends fn and returns a disposer removing exactly that entry.
func (r *registry[T]) add(fn func(T)) func() {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.entries = append(r.entries, registryEntry[T]{id: id, fn: fn})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(id) })
	}
}

func (r *registry[T]) remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if e.id == id {
			r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
			return
		}
	}
}

func (r *registry[T]) snapshot() []func(T) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fns := make([]func(T), len(r.entries))
	for i, e := range r.entries {
		fns[i] = e.fn
	}
	return fns
}

func (r *registry[T]) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// ============================================================================
// Event Dispatcher
// ============================================================================

type eventDispatcher struct {
	log     *zap.Logger
	metrics *Metrics

	messages       registry[Message]
	statuses       registry[OnlineStatus]
	typing         registry[TypingStatus]
	sessionExpired registry[SessionExpiredFrame]
}

func newEventDispatcher(log *zap.Logger, metrics *Metrics) *eventDispatcher {
	return &eventDispatcher{log: log, metrics: metrics}
}

// handleRaw decodes one payload and fans it out. Bad frames are logged and
// dropped.
func (d *eventDispatcher) handleRaw(data []byte) {
	frame, err := DecodeInbound(data)
	if err != nil {
		reason := "malformed"
		if errors.Is(err, ErrUnknownFrameType) {
			reason = "unknown_type"
		}
		d.metrics.frameDropped(reason)
		d.log.Warn("dropping inbound frame", zap.Error(err), zap.Int("size", len(data)))
		return
	}
	d.metrics.frameReceived(frame.Type())
	d.dispatch(frame)
}

func (d *eventDispatcher) dispatch(frame InboundFrame) {
	switch f := frame.(type) {
	case MessageFrame:
		fanOut(d.log, f.Type(), &d.messages, f.Message)
	case OnlineStatusFrame:
		fanOut(d.log, f.Type(), &d.statuses, f.Status)
	case TypingStatusFrame:
		fanOut(d.log, f.Type(), &d.typing, f.Status)
	case SessionExpiredFrame:
		if d.sessionExpired.len() == 0 {
			d.log.Warn("session expired with no session handler attached")
			return
		}
		fanOut(d.log, f.Type(), &d.sessionExpired, f)
	}
}

func (d *eventDispatcher) emitStatus(s OnlineStatus) {
	fanOut(d.log, FrameOnlineStatus, &d.statuses, s)
}

func fanOut[T any](log *zap.Logger, t FrameType, r *registry[T], v T) {
	for _, h := range r.snapshot() {
		invoke(log, t, h, v)
	}
}

func invoke[T any](log *zap.Logger, t FrameType, h func(T), v T) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("subscriber panicked", zap.String("type", string(t)), zap.Any("panic", p))
		}
	}()
	h(v)
}
