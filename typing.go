package forum

import (
	"context"
	"sync"
	"time"
)

// TypingSender sends typing indicators. *RealtimeClient implements it.
type TypingSender interface {
	UpdateTypingStatus(ctx context.Context, receiverID int, isTyping bool)
}

// TypingNotifier turns keystrokes into typing indicators: each keystroke
// reports typing, and a quiet period reports that typing stopped.
type TypingNotifier struct {
	sender TypingSender
	idle   time.Duration

	mu       sync.Mutex
	receiver int
	timer    *time.Timer
	gen      uint64
}

// NewTypingNotifier creates a notifier. A zero idle uses DefaultTypingIdle.
func NewTypingNotifier(sender TypingSender, idle time.Duration) *TypingNotifier {
	if idle <= 0 {
		idle = DefaultTypingIdle
	}
	return &TypingNotifier{sender: sender, idle: idle}
}

// Keystroke reports typing to receiverID and restarts the idle timer. A
// pending stop for another receiver is sent first.
func (n *TypingNotifier) Keystroke(ctx context.Context, receiverID int) {
	n.mu.Lock()
	prev, hadPrev := n.receiver, n.timer != nil
	if n.timer != nil {
		n.timer.Stop()
	}
	n.receiver = receiverID
	n.gen++
	gen := n.gen
	n.timer = time.AfterFunc(n.idle, func() {
		n.mu.Lock()
		if gen != n.gen {
			n.mu.Unlock()
			return
		}
		n.timer = nil
		n.mu.Unlock()
		n.sender.UpdateTypingStatus(context.Background(), receiverID, false)
	})
	n.mu.Unlock()

	if hadPrev && prev != receiverID {
		n.sender.UpdateTypingStatus(ctx, prev, false)
	}
	n.sender.UpdateTypingStatus(ctx, receiverID, true)
}

// Stop cancels the idle timer and reports typing stopped, if pending.
func (n *TypingNotifier) Stop(ctx context.Context) {
	n.mu.Lock()
	if n.timer == nil {
		n.mu.Unlock()
		return
	}
	n.timer.Stop()
	n.timer = nil
	n.gen++
	receiver := n.receiver
	n.mu.Unlock()

	n.sender.UpdateTypingStatus(ctx, receiver, false)
}
