package forum

import (
	"sync"
	"time"
)

// reconnector is the bounded, fixed-delay reconnect policy. It owns at most
// one pending scheduled attempt; scheduling or cancelling supersedes it.
type reconnector struct {
	delay       time.Duration
	maxAttempts int

	mu      sync.Mutex
	attempt int
	timer   *time.Timer
	gen     uint64
}

func newReconnector(config *RealtimeConfig) *reconnector {
	return &reconnector{
		delay:       config.ReconnectDelay,
		maxAttempts: config.MaxReconnectAttempts,
	}
}

// schedule arms fn to run after the fixed delay with the incremented attempt
// number. It returns false once the attempt budget is spent.
func (r *reconnector) schedule(fn func(attempt int)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.attempt >= r.maxAttempts {
		return false
	}
	if r.timer != nil {
		r.timer.Stop()
	}
	r.gen++
	gen := r.gen
	r.timer = time.AfterFunc(r.delay, func() {
		r.mu.Lock()
		if gen != r.gen {
			r.mu.Unlock()
			return
		}
		r.timer = nil
		r.attempt++
		attempt := r.attempt
		r.mu.Unlock()

		fn(attempt)
	})
	return true
}

// cancel drops a pending attempt, if any.
func (r *reconnector) cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

// reset restores the full attempt budget after a successful open.
func (r *reconnector) reset() {
	r.mu.Lock()
	r.attempt = 0
	r.mu.Unlock()
}

func (r *reconnector) attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempt
}

func (r *reconnector) pending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timer != nil
}
