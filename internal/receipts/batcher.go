// Package receipts reconciles read receipts: it watches message lists for
// unacknowledged inbound messages and acknowledges them to the server in
// batches, at most one request per evaluation.
package receipts

import (
	"context"
	"log/slog"
	"sync"

	"github.com/playtrade/chatkit/internal/domain"
)

// Acker is the slice of the REST client the batcher needs.
type Acker interface {
	MarkRead(ctx context.Context, conversationID string, messageIDs []string) (int, error)
}

// Batcher tracks which message IDs have been acknowledged and which are in
// flight, so a given ID is never double-counted toward an unread counter
// and never acknowledged twice concurrently.
type Batcher struct {
	acker  Acker
	logger *slog.Logger

	mu       sync.Mutex
	acked    map[string]struct{}
	inflight map[string]struct{}
}

// NewBatcher creates a batcher that acknowledges through the given Acker.
func NewBatcher(acker Acker) *Batcher {
	return &Batcher{
		acker:    acker,
		logger:   slog.Default().With("service", "receipts"),
		acked:    make(map[string]struct{}),
		inflight: make(map[string]struct{}),
	}
}

// Process evaluates a conversation's message list and acknowledges every
// message the local user has observed but not yet acknowledged, in a single
// batched call. It returns the IDs newly acknowledged; their count is
// exactly the amount any unread counter should be decremented by.
//
// Nothing is acknowledged when the view is unfocused. On failure the IDs
// stay unacknowledged; the next evaluation retries them implicitly.
func (b *Batcher) Process(ctx context.Context, conversationID string, msgs []domain.Message, selfID string, focused bool) ([]string, error) {
	if !focused {
		return nil, nil
	}

	ids := b.collect(msgs, selfID)
	if len(ids) == 0 {
		return nil, nil
	}

	_, err := b.acker.MarkRead(ctx, conversationID, ids)

	b.mu.Lock()
	for _, id := range ids {
		delete(b.inflight, id)
		if err == nil {
			b.acked[id] = struct{}{}
		}
	}
	b.mu.Unlock()

	if err != nil {
		b.logger.Warn("Failed to acknowledge read receipts", "conversation_id", conversationID, "count", len(ids), "error", err)
		return nil, err
	}
	return ids, nil
}

// collect picks the message IDs that still need acknowledging: inbound
// messages the local user has not read, excluding anything already
// acknowledged or currently in flight. Collected IDs are marked in flight.
func (b *Batcher) collect(msgs []domain.Message, selfID string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var ids []string
	for i := range msgs {
		msg := &msgs[i]
		if msg.ID == "" || msg.SenderID == selfID {
			continue
		}
		if msg.ReadByUser(selfID) {
			continue
		}
		if _, ok := b.acked[msg.ID]; ok {
			continue
		}
		if _, ok := b.inflight[msg.ID]; ok {
			continue
		}
		b.inflight[msg.ID] = struct{}{}
		ids = append(ids, msg.ID)
	}
	return ids
}

// Acknowledged reports whether an ID has been acknowledged already.
func (b *Batcher) Acknowledged(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.acked[id]
	return ok
}
