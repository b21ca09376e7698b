package domain

import "time"

// Sender is the denormalized author info the backend attaches to messages.
type Sender struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Message is a single conversation message. Instances arrive either from the
// REST history endpoint or from a push event; both carry the server-assigned
// ID, which is the deduplication key between the two paths.
type Message struct {
	ID              string    `json:"id"`
	ConversationID  string    `json:"conversation_id"`
	SenderID        string    `json:"sender_id,omitempty"`
	Sender          *Sender   `json:"sender,omitempty"`
	Content         string    `json:"content"`
	Attachments     []string  `json:"attachments"`
	ReadBy          []string  `json:"read_by"`
	IsSystemMessage bool      `json:"is_system_message"`
	CreatedAt       time.Time `json:"created_at"`
}

// ReadByUser reports whether the given user already appears in ReadBy.
func (m *Message) ReadByUser(userID string) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

// MarkReadBy appends the user to ReadBy if not already present. Marking the
// same reader twice is a no-op, never an error.
func (m *Message) MarkReadBy(userID string) {
	if !m.ReadByUser(userID) {
		m.ReadBy = append(m.ReadBy, userID)
	}
}
