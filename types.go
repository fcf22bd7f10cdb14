package forum

import (
	"strconv"
	"time"
)

// ============================================================================
// Shared Types
// ============================================================================

// APIError is returned for any non-2xx response from the forum backend.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return "forum api: HTTP " + strconv.Itoa(e.StatusCode)
	}
	return "forum api: HTTP " + strconv.Itoa(e.StatusCode) + ": " + e.Message
}

// ============================================================================
// Messaging Types
// ============================================================================

// Message is a direct message between two users.
type Message struct {
	ID         int    `json:"id"`
	SenderID   int    `json:"sender_id"`
	ReceiverID int    `json:"receiver_id"`
	Content    string `json:"content"`
	SentAt     string `json:"sent_at"`
	SenderName string `json:"sender_name,omitempty"`
	IsRead     bool   `json:"is_read,omitempty"`
}

// MessageKey identifies a delivered message for de-duplication.
type MessageKey struct {
	ID         int
	SenderID   int
	ReceiverID int
}

// Key returns the de-duplication key of m.
func (m Message) Key() MessageKey {
	return MessageKey{ID: m.ID, SenderID: m.SenderID, ReceiverID: m.ReceiverID}
}

// SentTime parses SentAt as RFC 3339.
func (m Message) SentTime() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, m.SentAt)
}

// OnlineStatus reports a user's presence.
type OnlineStatus struct {
	UserID   int  `json:"user_id"`
	IsOnline bool `json:"is_online"`
}

// TypingStatus reports whether a user is typing to us.
type TypingStatus struct {
	UserID   int  `json:"user_id"`
	IsTyping bool `json:"is_typing"`
}

// Conversation is one entry of the conversation list.
type Conversation struct {
	UserID          int       `json:"user_id"`
	Username        string    `json:"username"`
	LastMessage     string    `json:"last_message"`
	LastMessageTime time.Time `json:"last_message_time"`
	UnreadCount     int       `json:"unread_count"`
	IsOnline        bool      `json:"is_online"`
}

// ConversationList is the response of GET /api/messages.
type ConversationList struct {
	Conversations []Conversation `json:"conversations"`
	NewUsers      []Conversation `json:"newUsers"`
}

// MessagePage is one page of a conversation's history.
type MessagePage struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"hasMore"`
}

// ============================================================================
// Auth Types
// ============================================================================

// UserStatus is the response of GET /api/user/status.
type UserStatus struct {
	IsLoggedIn bool `json:"isLoggedIn"`
	UserID     int  `json:"userId,omitempty"`
}
