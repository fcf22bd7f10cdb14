package forum

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRenderer struct {
	mu     sync.Mutex
	events []string
}

func (r *fakeRenderer) record(format string, args ...any) {
	r.mu.Lock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
	r.mu.Unlock()
}

func (r *fakeRenderer) RenderMessage(m Message) { r.record("render %d", m.ID) }
func (r *fakeRenderer) UpdateLastMessage(peerID int, content string) {
	r.record("last %d %s", peerID, content)
}
func (r *fakeRenderer) MarkRead(peerID int)   { r.record("read %d", peerID) }
func (r *fakeRenderer) RefreshConversations() { r.record("refresh") }

func (r *fakeRenderer) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func TestConversationViewDeliver(t *testing.T) {
	incoming := Message{ID: 1, SenderID: 2, ReceiverID: 9, Content: "hey"}

	t.Run("active conversation", func(t *testing.T) {
		r := &fakeRenderer{}
		v := NewConversationView(9, r)
		v.Open(2)

		assert.True(t, v.Deliver(incoming))
		assert.False(t, v.Deliver(incoming))

		assert.Equal(t, []string{"render 1", "read 2", "last 2 hey"}, r.all())
	})

	t.Run("own echo is not marked read", func(t *testing.T) {
		r := &fakeRenderer{}
		v := NewConversationView(9, r)
		v.Open(2)

		v.Deliver(Message{ID: 5, SenderID: 9, ReceiverID: 2, Content: "sup"})

		assert.Equal(t, []string{"render 5", "last 2 sup"}, r.all())
	})

	t.Run("other conversation refreshes the list", func(t *testing.T) {
		r := &fakeRenderer{}
		v := NewConversationView(9, r)
		v.Open(3)

		v.Deliver(incoming)

		assert.Equal(t, []string{"refresh"}, r.all())
	})

	t.Run("own message to another peer refreshes the list", func(t *testing.T) {
		r := &fakeRenderer{}
		v := NewConversationView(9, r)
		v.Open(2)

		v.Deliver(Message{ID: 6, SenderID: 9, ReceiverID: 4, Content: "elsewhere"})

		assert.Equal(t, []string{"refresh"}, r.all())
	})

	t.Run("closed view refreshes the list", func(t *testing.T) {
		r := &fakeRenderer{}
		v := NewConversationView(9, r)

		v.Deliver(incoming)
		assert.Equal(t, []string{"refresh"}, r.all())
		assert.Equal(t, 0, v.ActivePeer())
	})

	t.Run("reopening forgets processed messages", func(t *testing.T) {
		r := &fakeRenderer{}
		v := NewConversationView(9, r)
		v.Open(2)
		v.Deliver(incoming)

		v.Close()
		v.Open(2)
		assert.True(t, v.Deliver(incoming))
		assert.Equal(t, 2, v.ActivePeer())
	})

	t.Run("same id from different senders are distinct", func(t *testing.T) {
		r := &fakeRenderer{}
		v := NewConversationView(9, r)
		v.Open(2)

		assert.True(t, v.Deliver(incoming))
		assert.True(t, v.Deliver(Message{ID: 1, SenderID: 9, ReceiverID: 2}))
	})
}

func TestConversationViewLoad(t *testing.T) {
	history := []Message{
		{ID: 1, SenderID: 2, ReceiverID: 9, Content: "hey"},
		{ID: 2, SenderID: 9, ReceiverID: 2, Content: "hi"},
		{ID: 7, SenderID: 4, ReceiverID: 9, Content: "other"},
	}

	t.Run("renders the open conversation", func(t *testing.T) {
		r := &fakeRenderer{}
		v := NewConversationView(9, r)
		v.Open(2)

		assert.Equal(t, 2, v.Load(history))
		assert.Equal(t, []string{"render 1", "render 2", "last 2 hi"}, r.all())
	})

	t.Run("pushed then loaded renders once", func(t *testing.T) {
		r := &fakeRenderer{}
		v := NewConversationView(9, r)
		v.Open(2)

		require.True(t, v.Deliver(history[0]))
		assert.Equal(t, 1, v.Load(history))
		assert.Equal(t, []string{"render 1", "read 2", "last 2 hey", "render 2", "last 2 hi"}, r.all())
	})

	t.Run("loaded then pushed is a duplicate", func(t *testing.T) {
		r := &fakeRenderer{}
		v := NewConversationView(9, r)
		v.Open(2)

		v.Load(history)
		assert.False(t, v.Deliver(history[0]))
		assert.Equal(t, 0, v.Load(history))
		assert.Equal(t, []string{"render 1", "render 2", "last 2 hi"}, r.all())
	})

	t.Run("closed view renders nothing", func(t *testing.T) {
		r := &fakeRenderer{}
		v := NewConversationView(9, r)

		assert.Equal(t, 0, v.Load(history))
		assert.Empty(t, r.all())
	})
}

func TestConversationViewAttach(t *testing.T) {
	d := &fakeDialer{}
	rt := newTestRealtime(t, d, nil)
	r := &fakeRenderer{}
	v := NewConversationView(9, r)
	v.Open(2)
	detach := v.Attach(rt)
	require.NoError(t, rt.Connect(context.Background()))

	frame := `{"type":"new_message","payload":{"id":1,"sender_id":2,"receiver_id":9,"content":"hey"}}`
	d.last().push(frame)
	d.last().push(frame)
	d.last().push(`{"type":"online_status","payload":{"user_id":2,"is_online":true}}`)

	require.Eventually(t, func() bool { return len(r.all()) == 3 }, waitFor, tick)
	assert.Equal(t, []string{"render 1", "read 2", "last 2 hey"}, r.all())

	detach()
	var statuses recorder[OnlineStatus]
	rt.OnStatusChange(statuses.add)
	d.last().push(`{"type":"new_message","payload":{"id":2,"sender_id":2,"receiver_id":9,"content":"again"}}`)
	d.last().push(`{"type":"online_status","payload":{"user_id":2,"is_online":false}}`)
	require.Eventually(t, func() bool {
		all := statuses.all()
		return len(all) > 0 && !all[len(all)-1].IsOnline
	}, waitFor, tick)
	assert.Len(t, r.all(), 3)
}
