package forum

import "sync"

// ConversationRenderer is the UI behind a ConversationView.
type ConversationRenderer interface {
	RenderMessage(m Message)
	UpdateLastMessage(peerID int, content string)
	MarkRead(peerID int)
	RefreshConversations()
}

// ConversationView routes pushed messages to the open conversation and
// renders each message at most once per opened conversation.
type ConversationView struct {
	selfID   int
	renderer ConversationRenderer

	mu        sync.Mutex
	peerID    int
	processed map[MessageKey]struct{}
}

// NewConversationView creates a closed view for user selfID.
func NewConversationView(selfID int, r ConversationRenderer) *ConversationView {
	return &ConversationView{
		selfID:    selfID,
		renderer:  r,
		processed: make(map[MessageKey]struct{}),
	}
}

// Open makes peerID the active conversation and forgets processed messages.
func (v *ConversationView) Open(peerID int) {
	v.mu.Lock()
	v.peerID = peerID
	clear(v.processed)
	v.mu.Unlock()
}

// Close tears the view down.
func (v *ConversationView) Close() {
	v.Open(0)
}

// ActivePeer returns the open conversation's peer, or 0.
func (v *ConversationView) ActivePeer() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.peerID
}

// Deliver handles one pushed message. It returns false for a duplicate.
func (v *ConversationView) Deliver(m Message) bool {
	v.mu.Lock()
	key := m.Key()
	if _, seen := v.processed[key]; seen {
		v.mu.Unlock()
		return false
	}
	v.processed[key] = struct{}{}
	peer := v.peerID
	v.mu.Unlock()

	if peer != 0 && (m.SenderID == peer || m.ReceiverID == peer) {
		v.renderer.RenderMessage(m)
		if m.ReceiverID == v.selfID && m.SenderID == peer {
			v.renderer.MarkRead(peer)
		}
		v.renderer.UpdateLastMessage(peer, m.Content)
		return true
	}
	v.renderer.RefreshConversations()
	return true
}

// Load renders fetched history for the open conversation, oldest first,
// skipping messages already rendered by Deliver or an earlier Load. Messages
// outside the open conversation are ignored. It returns the number rendered.
func (v *ConversationView) Load(msgs []Message) int {
	v.mu.Lock()
	peer := v.peerID
	if peer == 0 {
		v.mu.Unlock()
		return 0
	}
	fresh := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.SenderID != peer && m.ReceiverID != peer {
			continue
		}
		key := m.Key()
		if _, seen := v.processed[key]; seen {
			continue
		}
		v.processed[key] = struct{}{}
		fresh = append(fresh, m)
	}
	v.mu.Unlock()

	for _, m := range fresh {
		v.renderer.RenderMessage(m)
	}
	if n := len(fresh); n > 0 {
		v.renderer.UpdateLastMessage(peer, fresh[n-1].Content)
	}
	return len(fresh)
}

// Attach subscribes the view to rt's messages. The returned func detaches it.
func (v *ConversationView) Attach(rt *RealtimeClient) func() {
	return rt.OnMessage(func(m Message) { v.Deliver(m) })
}
