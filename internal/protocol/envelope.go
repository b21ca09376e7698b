// Package protocol defines the push-channel wire format. The channel
// exchanges flat JSON envelopes discriminated by a "type" field; delivery is
// best-effort with no acknowledgments or sequence numbers.
package protocol

import (
	"encoding/json"

	"github.com/playtrade/chatkit/internal/domain"
)

// EventType is the envelope discriminant.
type EventType string

const (
	// Outbound types.
	EventJoin    EventType = "join"
	EventMessage EventType = "message"
	EventTyping  EventType = "typing"

	// Inbound types.
	EventNewMessage EventType = "new_message"
	EventJoined     EventType = "joined"
	EventError      EventType = "error"
)

// Envelope is a single frame in either direction. Fields beyond Type are
// populated depending on the event type and omitted otherwise.
type Envelope struct {
	Type           EventType       `json:"type"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Content        string          `json:"content,omitempty"`
	Attachments    []string        `json:"attachments,omitempty"`
	IsTyping       *bool           `json:"is_typing,omitempty"`
	UserID         string          `json:"user_id,omitempty"`
	Message        *domain.Message `json:"message,omitempty"`
	Error          string          `json:"error,omitempty"`
}

// Join announces interest in a conversation. The server keeps no durable
// subscription state, so this must be re-sent after every reconnect.
func Join(conversationID string) Envelope {
	return Envelope{Type: EventJoin, ConversationID: conversationID}
}

// MessageSend carries an outbound chat message.
func MessageSend(conversationID, content string, attachments []string) Envelope {
	return Envelope{
		Type:           EventMessage,
		ConversationID: conversationID,
		Content:        content,
		Attachments:    attachments,
	}
}

// Typing signals the start or end of a typing session.
func Typing(conversationID string, isTyping bool) Envelope {
	return Envelope{Type: EventTyping, ConversationID: conversationID, IsTyping: &isTyping}
}

// Encode marshals the envelope for the wire.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses an inbound frame. Malformed payloads and frames without a
// type return ok=false; callers skip those instead of erroring, so one bad
// frame never breaks subsequent event processing.
func Decode(data []byte) (Envelope, bool) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, false
	}
	if env.Type == "" {
		return Envelope{}, false
	}
	return env, true
}

// Known reports whether the inbound type is one the client handles.
// Unrecognized types are ignored as a forward-compatible no-op.
func (e Envelope) Known() bool {
	switch e.Type {
	case EventNewMessage, EventTyping, EventJoined, EventError:
		return true
	}
	return false
}
