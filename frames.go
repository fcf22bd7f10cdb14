package forum

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// FrameType is the discriminant carried in every frame's "type" field.
type FrameType string

// Inbound frame types.
const (
	FrameNewMessage     FrameType = "new_message"
	FrameOnlineStatus   FrameType = "online_status"
	FrameTypingStatus   FrameType = "typing_status"
	FrameSessionExpired FrameType = "session_expired"
)

// Outbound-only frame types. new_message is shared with inbound.
const (
	FrameTyping        FrameType = "typing"
	FrameReconnect     FrameType = "reconnect"
	FrameOfflineStatus FrameType = "offline_status"
)

// Envelope is the wire format for all frames.
type Envelope struct {
	Type    FrameType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ============================================================================
// Inbound
// ============================================================================

// InboundFrame is one of MessageFrame, OnlineStatusFrame, TypingStatusFrame
// or SessionExpiredFrame.
type InboundFrame interface {
	Type() FrameType
	inbound()
}

// MessageFrame delivers a new direct message.
type MessageFrame struct {
	Message Message
}

// OnlineStatusFrame announces a presence change.
type OnlineStatusFrame struct {
	Status OnlineStatus
}

// TypingStatusFrame announces a typing change.
type TypingStatusFrame struct {
	Status TypingStatus
}

// SessionExpiredFrame tells the client its session was revoked server-side.
type SessionExpiredFrame struct {
	Message string `json:"message,omitempty"`
}

func (MessageFrame) Type() FrameType        { return FrameNewMessage }
func (OnlineStatusFrame) Type() FrameType   { return FrameOnlineStatus }
func (TypingStatusFrame) Type() FrameType   { return FrameTypingStatus }
func (SessionExpiredFrame) Type() FrameType { return FrameSessionExpired }

func (MessageFrame) inbound()        {}
func (OnlineStatusFrame) inbound()   {}
func (TypingStatusFrame) inbound()   {}
func (SessionExpiredFrame) inbound() {}

// DecodeInbound parses one received payload. Errors wrap ErrMalformedFrame
// or ErrUnknownFrameType.
func DecodeInbound(data []byte) (InboundFrame, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch env.Type {
	case FrameNewMessage:
		var m Message
		if err := decodePayload(env, &m); err != nil {
			return nil, err
		}
		return MessageFrame{Message: m}, nil
	case FrameOnlineStatus:
		var s OnlineStatus
		if err := decodePayload(env, &s); err != nil {
			return nil, err
		}
		return OnlineStatusFrame{Status: s}, nil
	case FrameTypingStatus:
		var s TypingStatus
		if err := decodePayload(env, &s); err != nil {
			return nil, err
		}
		return TypingStatusFrame{Status: s}, nil
	case FrameSessionExpired:
		var f SessionExpiredFrame
		if isEmptyPayload(env.Payload) {
			return f, nil
		}
		if err := json.Unmarshal(env.Payload, &f); err != nil {
			return nil, fmt.Errorf("%w: session_expired payload: %v", ErrMalformedFrame, err)
		}
		return f, nil
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrameType, env.Type)
	}
}

func decodePayload(env Envelope, v any) error {
	if isEmptyPayload(env.Payload) {
		return fmt.Errorf("%w: %s without payload", ErrMalformedFrame, env.Type)
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformedFrame, env.Type, err)
	}
	return nil
}

func isEmptyPayload(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// ============================================================================
// Outbound
// ============================================================================

// OutboundFrame is one of SendMessageFrame, TypingFrame, ReconnectFrame or
// OfflineStatusFrame.
type OutboundFrame interface {
	Type() FrameType
	payload() any
}

// SendMessageFrame asks the server to store and deliver a message.
type SendMessageFrame struct {
	ReceiverID int    `json:"receiver_id"`
	Content    string `json:"content"`
}

// TypingFrame tells the receiver whether we are typing.
type TypingFrame struct {
	ReceiverID int  `json:"receiver_id"`
	IsTyping   bool `json:"is_typing"`
}

// ReconnectFrame asserts presence after a handshake.
type ReconnectFrame struct{}

// OfflineStatusFrame announces a voluntary disconnect.
type OfflineStatusFrame struct{}

type presencePayload struct {
	IsOnline bool `json:"is_online"`
}

func (SendMessageFrame) Type() FrameType   { return FrameNewMessage }
func (TypingFrame) Type() FrameType        { return FrameTyping }
func (ReconnectFrame) Type() FrameType     { return FrameReconnect }
func (OfflineStatusFrame) Type() FrameType { return FrameOfflineStatus }

func (f SendMessageFrame) payload() any { return f }
func (f TypingFrame) payload() any      { return f }
func (ReconnectFrame) payload() any     { return presencePayload{IsOnline: true} }
func (OfflineStatusFrame) payload() any { return presencePayload{IsOnline: false} }

// EncodeOutbound renders f as a JSON envelope.
func EncodeOutbound(f OutboundFrame) ([]byte, error) {
	payload, err := json.Marshal(f.payload())
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", f.Type(), err)
	}
	return json.Marshal(Envelope{Type: f.Type(), Payload: payload})
}
