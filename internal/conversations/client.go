// Package conversations implements the real-time conversation client: one
// facade owning compose state, per-conversation message lists, typing
// signals, read receipts, and the choice between channel and REST delivery.
package conversations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/playtrade/chatkit/internal/api"
	"github.com/playtrade/chatkit/internal/channel"
	"github.com/playtrade/chatkit/internal/domain"
	"github.com/playtrade/chatkit/internal/protocol"
	"github.com/playtrade/chatkit/internal/pubsub"
	"github.com/playtrade/chatkit/internal/receipts"
	"github.com/playtrade/chatkit/internal/topics"
	"github.com/playtrade/chatkit/internal/typing"
)

const maxContentLength = 5000

var (
	// ErrNoActiveConversation is returned when an operation needs a
	// selected conversation and none is active.
	ErrNoActiveConversation = errors.New("no active conversation")

	// ErrEmptyMessage is returned when both content and attachments are
	// empty. Rejected locally, never sent to the server.
	ErrEmptyMessage = errors.New("message needs content or attachments")

	// ErrContentTooLong is returned when content exceeds the server's
	// 5000 character limit.
	ErrContentTooLong = errors.New("message content too long")
)

// Channel is the slice of the connection manager the client uses.
type Channel interface {
	Status() channel.Status
	Send(ctx context.Context, env protocol.Envelope) error
	SetJoinIntent(conversationID string)
	ClearJoinIntent()
}

// API is the slice of the REST client the facade needs directly. Read
// acknowledgments go through the receipts batcher instead.
type API interface {
	ListConversations(ctx context.Context, convType domain.ConversationType) ([]domain.Conversation, error)
	ListMessages(ctx context.Context, conversationID string, before time.Time, limit int) ([]domain.Message, error)
	SendMessage(ctx context.Context, conversationID string, req api.SendMessageRequest) (*domain.Message, error)
}

// Compose is the draft state for the active conversation. It is cleared
// optimistically on send and restored verbatim when delivery fails.
type Compose struct {
	Content     string
	Attachments []string
}

// Client is the real-time conversation client. All mutable state is owned
// here; the UI reads snapshots and reacts to bus events.
type Client struct {
	session *domain.Session
	channel Channel
	api     API
	bus     pubsub.Bus
	batcher *receipts.Batcher
	logger  *slog.Logger

	debounce time.Duration
	now      func() time.Time

	mu          sync.Mutex
	active      string
	epoch       int
	fetchCancel context.CancelFunc
	messages    map[string][]domain.Message
	seen        map[string]struct{}
	compose     Compose
	unread      int
	debouncer   *typing.Debouncer
	tracker     *typing.Tracker
	typingTimer *time.Timer
	closed      bool
}

// Option configures a Client.
type Option func(*Client)

// WithTypingDebounce overrides the typing quiet period.
func WithTypingDebounce(d time.Duration) Option {
	return func(c *Client) {
		c.debounce = d
	}
}

// WithClock overrides the time source. Tests drive the debounce machine
// with a simulated clock.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient wires the facade together. Call Start to begin consuming
// inbound events.
func NewClient(session *domain.Session, ch Channel, restAPI API, bus pubsub.Bus, batcher *receipts.Batcher, opts ...Option) *Client {
	c := &Client{
		session:   session,
		channel:   ch,
		api:       restAPI,
		bus:       bus,
		batcher:   batcher,
		logger:    slog.Default().With("service", "conversations"),
		debounce:  2 * time.Second,
		now:       time.Now,
		messages:  make(map[string][]domain.Message),
		seen:      make(map[string]struct{}),
		debouncer: nil,
		tracker:   typing.NewTracker(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.debouncer = typing.NewDebouncer(c.debounce)
	return c
}

// Start subscribes to inbound channel events. The subscription lives until
// ctx is canceled or the bus closes.
func (c *Client) Start(ctx context.Context) error {
	return pubsub.SubscribeTo(ctx, c.bus, topics.Inbound, c.handleInbound)
}

// Close cancels timers and any in-flight history fetch. The channel manager
// is owned by the caller and closed separately.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.debouncer.Cancel()
	if c.typingTimer != nil {
		c.typingTimer.Stop()
	}
	if c.fetchCancel != nil {
		c.fetchCancel()
		c.fetchCancel = nil
	}
}

// Active returns the active conversation ID, empty when none is selected.
func (c *Client) Active() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// ComposeState returns a copy of the current draft.
func (c *Client) ComposeState() Compose {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Compose{
		Content:     c.compose.Content,
		Attachments: append([]string(nil), c.compose.Attachments...),
	}
}

// Attach appends an uploaded attachment URL to the draft.
func (c *Client) Attach(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.compose.Attachments = append(c.compose.Attachments, url)
}

// Messages returns a copy of the conversation's message list in arrival
// order.
func (c *Client) Messages(conversationID string) []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Message(nil), c.messages[conversationID]...)
}

// TypingUsers returns who is typing in the active conversation.
func (c *Client) TypingUsers() []string {
	c.mu.Lock()
	active := c.active
	c.mu.Unlock()
	if active == "" {
		return nil
	}
	return c.tracker.ActiveUsers(active)
}

// Unread returns the global unread counter.
func (c *Client) Unread() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unread
}

// SetActive switches the active conversation. The previous conversation's
// in-flight history fetch is canceled, its typing state cleared, and the
// pending typing debounce dropped without emitting. History for the new
// conversation loads asynchronously; a response that arrives after another
// switch is discarded.
func (c *Client) SetActive(ctx context.Context, conversationID string) {
	c.mu.Lock()
	previous := c.active
	if c.fetchCancel != nil {
		c.fetchCancel()
		c.fetchCancel = nil
	}
	c.debouncer.Cancel()
	if c.typingTimer != nil {
		c.typingTimer.Stop()
	}
	c.active = conversationID
	c.epoch++
	epoch := c.epoch

	var fetchCtx context.Context
	if conversationID != "" {
		fetchCtx, c.fetchCancel = context.WithCancel(ctx)
	}
	c.mu.Unlock()

	if previous != "" && previous != conversationID {
		c.tracker.Reset(previous)
		c.publishTypingSnapshot(ctx, previous)
	}

	if conversationID == "" {
		c.channel.ClearJoinIntent()
		return
	}

	c.channel.SetJoinIntent(conversationID)
	go c.fetchHistory(fetchCtx, conversationID, epoch)
}

// fetchHistory loads the newest page of messages. The epoch tag guards
// against the stale-response race: if the user has navigated away by the
// time the response lands, it is discarded instead of overwriting the view.
func (c *Client) fetchHistory(ctx context.Context, conversationID string, epoch int) {
	msgs, err := c.api.ListMessages(ctx, conversationID, time.Time{}, 0)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Warn("Failed to fetch history", "conversation_id", conversationID, "error", err)
		}
		return
	}

	c.mu.Lock()
	if c.epoch != epoch || c.active != conversationID {
		c.mu.Unlock()
		c.logger.Debug("Discarding stale history response", "conversation_id", conversationID)
		return
	}

	// Merge: fetched history first, then any already-applied entries the
	// page does not contain (e.g. pushed while the fetch was in flight).
	fetched := make(map[string]struct{}, len(msgs))
	for i := range msgs {
		fetched[msgs[i].ID] = struct{}{}
		c.seen[msgs[i].ID] = struct{}{}
	}
	merged := append([]domain.Message(nil), msgs...)
	for _, existing := range c.messages[conversationID] {
		if _, ok := fetched[existing.ID]; !ok {
			merged = append(merged, existing)
		}
	}
	c.messages[conversationID] = merged
	c.mu.Unlock()
}

// Compose records a keystroke in the draft. While the channel is open and a
// conversation is active it emits "typing: true" at the start of a burst
// and arms the debounce that will emit "typing: false" after the quiet
// period. Each keystroke re-arms the timer.
func (c *Client) Compose(ctx context.Context, text string) {
	c.mu.Lock()
	c.compose.Content = text
	active := c.active
	open := c.channel.Status() == channel.StatusOpen
	if !open || active == "" {
		c.mu.Unlock()
		return
	}

	emitStart := c.debouncer.Keystroke(c.now())
	c.armTypingTimerLocked()
	c.mu.Unlock()

	if emitStart {
		if err := c.channel.Send(ctx, protocol.Typing(active, true)); err != nil {
			c.logger.Debug("Failed to send typing start", "error", err)
		}
	}
}

// armTypingTimerLocked (re-)arms the wall-clock timer backing the debounce
// machine. Callers hold c.mu.
func (c *Client) armTypingTimerLocked() {
	if c.typingTimer == nil {
		c.typingTimer = time.AfterFunc(c.debounce, c.typingExpired)
		return
	}
	c.typingTimer.Reset(c.debounce)
}

// typingExpired runs when the debounce timer fires. If the machine is not
// due yet (the timer raced a later keystroke) it re-arms for the remainder.
func (c *Client) typingExpired() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	now := c.now()
	if c.debouncer.Armed() && now.Before(c.debouncer.Deadline()) {
		c.typingTimer.Reset(c.debouncer.Deadline().Sub(now))
		c.mu.Unlock()
		return
	}
	emitStop := c.debouncer.Tick(now)
	active := c.active
	c.mu.Unlock()

	if emitStop && active != "" {
		if err := c.channel.Send(context.Background(), protocol.Typing(active, false)); err != nil {
			c.logger.Debug("Failed to send typing stop", "error", err)
		}
	}
}

// Send delivers the current draft to the active conversation. The draft is
// cleared optimistically; when the request/response path fails it is
// restored exactly so the user never loses it. Channel delivery is used
// only while the channel is open, and is best-effort: a refused or failed
// channel write downgrades to the REST path in the same call.
func (c *Client) Send(ctx context.Context) error {
	c.mu.Lock()
	active := c.active
	draft := Compose{
		Content:     c.compose.Content,
		Attachments: append([]string(nil), c.compose.Attachments...),
	}
	c.mu.Unlock()

	if active == "" {
		return ErrNoActiveConversation
	}
	if draft.Content == "" && len(draft.Attachments) == 0 {
		return ErrEmptyMessage
	}
	if len(draft.Content) > maxContentLength {
		return ErrContentTooLong
	}

	// Optimistic clear. Sending also ends the typing session, so drop any
	// pending "stopped typing" emission.
	c.mu.Lock()
	c.compose = Compose{}
	c.debouncer.Cancel()
	if c.typingTimer != nil {
		c.typingTimer.Stop()
	}
	c.mu.Unlock()

	if c.channel.Status() == channel.StatusOpen {
		err := c.channel.Send(ctx, protocol.MessageSend(active, draft.Content, draft.Attachments))
		if err == nil {
			// Explicit end-of-typing signal accompanies every
			// channel-delivered message.
			if err := c.channel.Send(ctx, protocol.Typing(active, false)); err != nil {
				c.logger.Debug("Failed to send typing stop after message", "error", err)
			}
			return nil
		}
		c.logger.Warn("Channel send failed, falling back to REST", "conversation_id", active, "error", err)
	}

	msg, err := c.api.SendMessage(ctx, active, api.SendMessageRequest{
		Content:     draft.Content,
		Attachments: draft.Attachments,
	})
	if err != nil {
		c.mu.Lock()
		c.compose = draft
		c.mu.Unlock()
		c.notify(ctx, "error", "Message could not be sent")
		return fmt.Errorf("sending message: %w", err)
	}

	c.applyMessage(ctx, *msg)
	return nil
}

// MarkVisible acknowledges every unread inbound message in the active
// conversation, in one batched call, and decrements the unread counter by
// exactly the acknowledged count. Unfocused views acknowledge nothing.
func (c *Client) MarkVisible(ctx context.Context, focused bool) (int, error) {
	c.mu.Lock()
	active := c.active
	msgs := append([]domain.Message(nil), c.messages[active]...)
	c.mu.Unlock()

	if active == "" {
		return 0, nil
	}

	acked, err := c.batcher.Process(ctx, active, msgs, c.session.UserID, focused)
	if err != nil || len(acked) == 0 {
		return 0, err
	}

	c.mu.Lock()
	ackedSet := make(map[string]struct{}, len(acked))
	for _, id := range acked {
		ackedSet[id] = struct{}{}
	}
	list := c.messages[active]
	for i := range list {
		if _, ok := ackedSet[list[i].ID]; ok {
			list[i].MarkReadBy(c.session.UserID)
		}
	}
	c.unread -= len(acked)
	if c.unread < 0 {
		c.unread = 0
	}
	c.mu.Unlock()

	return len(acked), nil
}

// RefreshSummaries re-fetches the conversation list and recomputes the
// global unread counter from the server's per-conversation counts.
func (c *Client) RefreshSummaries(ctx context.Context) ([]domain.Conversation, error) {
	convs, err := c.api.ListConversations(ctx, "")
	if err != nil {
		return nil, err
	}

	total := 0
	for i := range convs {
		total += convs[i].UnreadCount
	}
	c.mu.Lock()
	c.unread = total
	c.mu.Unlock()

	return convs, nil
}

// handleInbound is the dispatch table for push events. Every branch fails
// soft: a surprising payload is dropped, never allowed to take down the
// subscription.
func (c *Client) handleInbound(ctx context.Context, env protocol.Envelope) error {
	switch env.Type {
	case protocol.EventNewMessage:
		if env.Message == nil {
			c.logger.Debug("new_message event without message payload")
			return nil
		}
		msg := *env.Message
		if msg.ConversationID == "" {
			msg.ConversationID = env.ConversationID
		}
		c.applyMessage(ctx, msg)

	case protocol.EventTyping:
		if env.IsTyping == nil {
			return nil
		}
		c.mu.Lock()
		active := c.active
		c.mu.Unlock()
		if env.ConversationID != active {
			return nil
		}
		if c.tracker.Apply(env.ConversationID, env.UserID, *env.IsTyping, c.session.UserID) {
			c.publishTypingSnapshot(ctx, env.ConversationID)
		}

	case protocol.EventJoined:
		c.logger.Debug("Joined conversation", "conversation_id", env.ConversationID)

	case protocol.EventError:
		msg := env.Error
		if msg == "" {
			msg = "Chat service reported an error"
		}
		c.notify(ctx, "error", msg)
	}
	return nil
}

// applyMessage reconciles one confirmed message into local state: appended
// to the active conversation's list (deduplicated by server ID), counted as
// unread when appropriate, and announced on the bus. The summary list is
// marked stale for every message regardless of which conversation it
// belongs to.
func (c *Client) applyMessage(ctx context.Context, msg domain.Message) {
	c.mu.Lock()
	_, dup := c.seen[msg.ID]
	if !dup && msg.ID != "" {
		c.seen[msg.ID] = struct{}{}
		if msg.ConversationID == c.active {
			c.messages[msg.ConversationID] = append(c.messages[msg.ConversationID], msg)
		}
		if msg.SenderID != c.session.UserID && !msg.ReadByUser(c.session.UserID) {
			c.unread++
		}
	}
	c.mu.Unlock()

	if dup || msg.ID == "" {
		return
	}

	if err := pubsub.Publish(ctx, c.bus, topics.MessageReceived, msg); err != nil {
		c.logger.Error("Failed to publish received message", "error", err)
	}
	if err := pubsub.Publish(ctx, c.bus, topics.SummariesStale, topics.SummaryRefresh{ConversationID: msg.ConversationID}); err != nil {
		c.logger.Error("Failed to publish summary refresh", "error", err)
	}
}

func (c *Client) publishTypingSnapshot(ctx context.Context, conversationID string) {
	update := topics.TypingUpdate{
		ConversationID: conversationID,
		UserIDs:        c.tracker.ActiveUsers(conversationID),
	}
	if err := pubsub.Publish(ctx, c.bus, topics.TypingUpdated, update); err != nil {
		c.logger.Error("Failed to publish typing update", "error", err)
	}
}

func (c *Client) notify(ctx context.Context, level, message string) {
	if err := pubsub.Publish(ctx, c.bus, topics.Notices, topics.Notice{Level: level, Message: message}); err != nil {
		c.logger.Error("Failed to publish notice", "error", err)
	}
}
