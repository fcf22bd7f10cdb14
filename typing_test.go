package forum

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTypingSender struct {
	mu    sync.Mutex
	calls []string
}

func (s *fakeTypingSender) UpdateTypingStatus(ctx context.Context, receiverID int, isTyping bool) {
	s.mu.Lock()
	s.calls = append(s.calls, fmt.Sprintf("%d:%t", receiverID, isTyping))
	s.mu.Unlock()
}

func (s *fakeTypingSender) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func TestTypingNotifier(t *testing.T) {
	t.Run("idle sends stop", func(t *testing.T) {
		s := &fakeTypingSender{}
		n := NewTypingNotifier(s, 20*time.Millisecond)

		n.Keystroke(context.Background(), 2)
		n.Keystroke(context.Background(), 2)

		require.Eventually(t, func() bool { return len(s.all()) == 3 }, waitFor, tick)
		assert.Equal(t, []string{"2:true", "2:true", "2:false"}, s.all())

		time.Sleep(50 * time.Millisecond)
		assert.Len(t, s.all(), 3)
	})

	t.Run("switching receiver stops the previous one", func(t *testing.T) {
		s := &fakeTypingSender{}
		n := NewTypingNotifier(s, time.Hour)

		n.Keystroke(context.Background(), 2)
		n.Keystroke(context.Background(), 3)
		n.Stop(context.Background())

		assert.Equal(t, []string{"2:true", "2:false", "3:true", "3:false"}, s.all())
	})

	t.Run("stop without typing is a no-op", func(t *testing.T) {
		s := &fakeTypingSender{}
		n := NewTypingNotifier(s, 0)
		n.Stop(context.Background())
		assert.Empty(t, s.all())
		assert.Equal(t, DefaultTypingIdle, n.idle)
	})

	t.Run("stop cancels the idle timer", func(t *testing.T) {
		s := &fakeTypingSender{}
		n := NewTypingNotifier(s, 20*time.Millisecond)

		n.Keystroke(context.Background(), 2)
		n.Stop(context.Background())
		time.Sleep(50 * time.Millisecond)

		assert.Equal(t, []string{"2:true", "2:false"}, s.all())
	})
}
