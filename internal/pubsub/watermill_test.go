package pubsub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPayload struct {
	Value string `json:"value"`
}

func TestWatermillBus_PublishSubscribe(t *testing.T) {
	bus := NewWatermillBus()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var received []Message
	err := bus.Subscribe(ctx, "test.topic", func(ctx context.Context, msg Message) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, msg)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, Message{Topic: "test.topic", Payload: []byte(`{"value":"one"}`)}))
	require.NoError(t, bus.Publish(ctx, Message{Topic: "other.topic", Payload: []byte(`{"value":"two"}`)}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "test.topic", received[0].Topic)
	assert.JSONEq(t, `{"value":"one"}`, string(received[0].Payload))
}

func TestWatermillBus_HandlerErrorDoesNotStopSubscription(t *testing.T) {
	bus := NewWatermillBus()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	calls := 0
	err := bus.Subscribe(ctx, "test.topic", func(ctx context.Context, msg Message) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return errors.New("first one fails")
		}
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, Message{Topic: "test.topic", Payload: []byte(`1`)}))
	require.NoError(t, bus.Publish(ctx, Message{Topic: "test.topic", Payload: []byte(`2`)}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 2
	}, 5*time.Second, 10*time.Millisecond)
}

func TestTypedEvents_RoundTrip(t *testing.T) {
	bus := NewWatermillBus()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	event := NewEvent[testPayload]("typed.topic")

	payloads := make(chan testPayload, 1)
	err := SubscribeTo(ctx, bus, event, func(ctx context.Context, p testPayload) error {
		payloads <- p
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, Publish(ctx, bus, event, testPayload{Value: "hello"}))

	select {
	case p := <-payloads:
		assert.Equal(t, "hello", p.Value)
	case <-time.After(5 * time.Second):
		t.Fatal("typed payload never arrived")
	}
}

func TestTypedEvents_MalformedPayloadRejected(t *testing.T) {
	bus := NewWatermillBus()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	event := NewEvent[testPayload]("typed.topic")

	payloads := make(chan testPayload, 2)
	err := SubscribeTo(ctx, bus, event, func(ctx context.Context, p testPayload) error {
		payloads <- p
		return nil
	})
	require.NoError(t, err)

	// Raw garbage on the same topic must not reach the typed handler.
	require.NoError(t, bus.Publish(ctx, Message{Topic: "typed.topic", Payload: []byte(`{broken`)}))
	require.NoError(t, Publish(ctx, bus, event, testPayload{Value: "after"}))

	select {
	case p := <-payloads:
		assert.Equal(t, "after", p.Value, "only the well-formed payload is delivered")
	case <-time.After(5 * time.Second):
		t.Fatal("well-formed payload never arrived")
	}
}
