package typing

import (
	"sort"
	"sync"
)

// Tracker holds the set of users currently typing, per conversation. It is
// mutated by inbound typing events and cleared wholesale when the active
// conversation changes, so stale badges never leak across conversations.
type Tracker struct {
	mu     sync.RWMutex
	typing map[string]map[string]struct{}
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{typing: make(map[string]map[string]struct{})}
}

// Apply updates the conversation's typing set from an inbound event and
// reports whether the set changed. Events about the local user are ignored;
// there is no self-typing indicator.
func (t *Tracker) Apply(conversationID, userID string, isTyping bool, selfID string) bool {
	if userID == "" || userID == selfID {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	users := t.typing[conversationID]
	if isTyping {
		if users == nil {
			users = make(map[string]struct{})
			t.typing[conversationID] = users
		}
		if _, ok := users[userID]; ok {
			return false
		}
		users[userID] = struct{}{}
		return true
	}

	if users == nil {
		return false
	}
	if _, ok := users[userID]; !ok {
		return false
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(t.typing, conversationID)
	}
	return true
}

// ActiveUsers returns the users typing in a conversation, sorted for stable
// output.
func (t *Tracker) ActiveUsers(conversationID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	users := t.typing[conversationID]
	if len(users) == 0 {
		return nil
	}
	out := make([]string, 0, len(users))
	for id := range users {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Reset drops all typing state for a conversation.
func (t *Tracker) Reset(conversationID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.typing, conversationID)
}
