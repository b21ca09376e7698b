package pubsub

import (
	"context"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// WatermillBus implements Bus using watermill's in-memory GoChannel.
// It is the single fan-out point between the connection manager and every
// component that consumes push events.
type WatermillBus struct {
	pub message.Publisher
	sub message.Subscriber
}

// NewWatermillBus initializes the in-memory bus.
func NewWatermillBus() *WatermillBus {
	logger := watermill.NewStdLogger(false, false)
	goChannel := gochannel.NewGoChannel(
		gochannel.Config{
			// A small buffer absorbs bursts of push events without
			// blocking the channel read loop.
			OutputChannelBuffer: 64,
		},
		logger,
	)

	return &WatermillBus{
		pub: goChannel,
		sub: goChannel,
	}
}

// Publish implements the Publisher interface.
func (b *WatermillBus) Publish(ctx context.Context, msg Message) error {
	wmMsg := message.NewMessage(watermill.NewUUID(), msg.Payload)
	for k, v := range msg.Metadata {
		wmMsg.Metadata.Set(k, v)
	}
	return b.pub.Publish(msg.Topic, wmMsg)
}

// Subscribe implements the Subscriber interface. The handler runs on a
// dedicated goroutine per topic. A handler error is logged and the message
// dropped; acking it anyway prevents the in-memory channel from redelivering
// the same bad payload forever.
func (b *WatermillBus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	messages, err := b.sub.Subscribe(ctx, topic)
	if err != nil {
		return err
	}

	go func() {
		for wmMsg := range messages {
			msg := Message{
				Topic:    topic,
				Payload:  wmMsg.Payload,
				Metadata: wmMsg.Metadata,
			}

			if err := handler(ctx, msg); err != nil {
				slog.Error("Failed to handle bus message", "topic", topic, "msg_id", wmMsg.UUID, "error", err)
			}
			wmMsg.Ack()
		}
		slog.Debug("Subscription message loop ended", "topic", topic)
	}()

	return nil
}

// Close shuts down the bus and terminates all subscription loops.
func (b *WatermillBus) Close() error {
	return b.sub.Close()
}
