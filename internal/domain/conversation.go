package domain

import "time"

// ConversationType mirrors the backend's conversation_type enum.
type ConversationType string

const (
	// ConversationCasual is a buyer-seller direct message thread.
	ConversationCasual ConversationType = "casual"
	// ConversationOrder is the group chat attached to an order.
	ConversationOrder ConversationType = "order"
	// ConversationSupport is a user-to-admin support thread.
	ConversationSupport ConversationType = "support"
)

// SupportStatus is the lifecycle of a support conversation.
type SupportStatus string

const (
	SupportPending SupportStatus = "pending"
	SupportActive  SupportStatus = "active"
	SupportClosed  SupportStatus = "closed"
)

// Conversation is the client's working copy of a server-owned conversation.
// The server is authoritative for the persisted content; the client only
// holds what it needs for rendering and unread bookkeeping.
type Conversation struct {
	ID             string           `json:"id"`
	Type           ConversationType `json:"conversation_type"`
	OrderID        string           `json:"order_id,omitempty"`
	ListingID      string           `json:"listing_id,omitempty"`
	ParticipantIDs []string         `json:"participant_ids"`
	Name           string           `json:"name,omitempty"`
	AdminJoined    bool             `json:"admin_joined"`
	SupportStatus  SupportStatus    `json:"support_status,omitempty"`
	SupportSubject string           `json:"support_subject,omitempty"`
	LastMessageAt  *time.Time       `json:"last_message_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	LastMessage    *Message         `json:"last_message,omitempty"`
	UnreadCount    int              `json:"unread_count"`
}
