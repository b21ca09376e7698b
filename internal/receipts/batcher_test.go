package receipts

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playtrade/chatkit/internal/domain"
)

// mockAcker records every MarkRead call for inspection.
type mockAcker struct {
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (m *mockAcker) MarkRead(ctx context.Context, conversationID string, messageIDs []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, append([]string(nil), messageIDs...))
	if m.err != nil {
		return 0, m.err
	}
	return len(messageIDs), nil
}

func (m *mockAcker) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func inbound(id, sender string) domain.Message {
	return domain.Message{ID: id, SenderID: sender}
}

func TestBatcher_AcknowledgesUnreadInbound(t *testing.T) {
	acker := &mockAcker{}
	b := NewBatcher(acker)

	msgs := []domain.Message{inbound("m1", "alice"), inbound("m2", "alice")}
	acked, err := b.Process(context.Background(), "conv-1", msgs, "me", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, acked)
	assert.Equal(t, 1, acker.callCount(), "one batched request per evaluation")
}

func TestBatcher_NeverAcknowledgesTwice(t *testing.T) {
	acker := &mockAcker{}
	b := NewBatcher(acker)

	msgs := []domain.Message{inbound("m1", "alice")}
	_, err := b.Process(context.Background(), "conv-1", msgs, "me", true)
	require.NoError(t, err)

	// Same list again: nothing new, no request.
	acked, err := b.Process(context.Background(), "conv-1", msgs, "me", true)
	require.NoError(t, err)
	assert.Empty(t, acked)
	assert.Equal(t, 1, acker.callCount())
	assert.True(t, b.Acknowledged("m1"))
}

func TestBatcher_SkipsOwnAndAlreadyRead(t *testing.T) {
	acker := &mockAcker{}
	b := NewBatcher(acker)

	msgs := []domain.Message{
		inbound("m1", "me"),
		{ID: "m2", SenderID: "alice", ReadBy: []string{"me"}},
		inbound("m3", "alice"),
		{SenderID: "alice"}, // no ID yet
	}
	acked, err := b.Process(context.Background(), "conv-1", msgs, "me", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"m3"}, acked)
}

func TestBatcher_UnfocusedDoesNothing(t *testing.T) {
	acker := &mockAcker{}
	b := NewBatcher(acker)

	msgs := []domain.Message{inbound("m1", "alice")}
	acked, err := b.Process(context.Background(), "conv-1", msgs, "me", false)
	require.NoError(t, err)
	assert.Empty(t, acked)
	assert.Equal(t, 0, acker.callCount())
}

func TestBatcher_FailureRetriesNextEvaluation(t *testing.T) {
	acker := &mockAcker{err: errors.New("boom")}
	b := NewBatcher(acker)

	msgs := []domain.Message{inbound("m1", "alice")}
	acked, err := b.Process(context.Background(), "conv-1", msgs, "me", true)
	require.Error(t, err)
	assert.Empty(t, acked)
	assert.False(t, b.Acknowledged("m1"))

	// Server recovers; the same ID is retried.
	acker.mu.Lock()
	acker.err = nil
	acker.mu.Unlock()

	acked, err = b.Process(context.Background(), "conv-1", msgs, "me", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, acked)
	assert.True(t, b.Acknowledged("m1"))
}

func TestBatcher_EmptyBatchSkipsRequest(t *testing.T) {
	acker := &mockAcker{}
	b := NewBatcher(acker)

	acked, err := b.Process(context.Background(), "conv-1", nil, "me", true)
	require.NoError(t, err)
	assert.Empty(t, acked)
	assert.Equal(t, 0, acker.callCount())
}
