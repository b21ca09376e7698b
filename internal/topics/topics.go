// Package topics names every event carried on the in-process bus, together
// with its payload type. Components publish and subscribe through these
// definitions instead of sharing raw topic strings.
package topics

import (
	"github.com/playtrade/chatkit/internal/domain"
	"github.com/playtrade/chatkit/internal/protocol"
	"github.com/playtrade/chatkit/internal/pubsub"
)

// StatusUpdate is published on every connection lifecycle transition.
// Consumers typically drive a live/offline indicator from it.
type StatusUpdate struct {
	Status  string `json:"status"`
	Attempt int    `json:"attempt,omitempty"`
}

// TypingUpdate is the full set of users currently typing in a conversation.
// Publishing the snapshot instead of deltas keeps consumers stateless.
type TypingUpdate struct {
	ConversationID string   `json:"conversation_id"`
	UserIDs        []string `json:"user_ids"`
}

// SummaryRefresh asks consumers to re-fetch the conversation summary list.
// It fires for every inbound message regardless of the active conversation,
// so unread counts and previews stay current.
type SummaryRefresh struct {
	ConversationID string `json:"conversation_id,omitempty"`
}

// Notice is a user-visible transient notification. Nothing carried here is
// fatal; the conversation UI stays usable after any notice.
type Notice struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

var (
	// Inbound carries every decoded push-channel frame, unfiltered. The
	// conversation client is its primary consumer; nothing else should
	// need to reach below this topic to the socket itself.
	Inbound = pubsub.NewEvent[protocol.Envelope]("chat.channel.inbound")

	// ConnectionStatus carries channel lifecycle transitions.
	ConnectionStatus = pubsub.NewEvent[StatusUpdate]("chat.connection.status")

	// MessageReceived carries every confirmed inbound message, for any
	// conversation the session participates in.
	MessageReceived = pubsub.NewEvent[domain.Message]("chat.message.received")

	// TypingUpdated carries typing-state snapshots for a conversation.
	TypingUpdated = pubsub.NewEvent[TypingUpdate]("chat.typing.updated")

	// SummariesStale signals that the conversation list should be refreshed.
	SummariesStale = pubsub.NewEvent[SummaryRefresh]("chat.summary.refresh")

	// Notices carries transient, user-visible notifications.
	Notices = pubsub.NewEvent[Notice]("chat.notice")
)
