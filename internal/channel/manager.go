// Package channel owns the push-channel connection: exactly one logical
// connection per session, reconnected indefinitely with a fixed delay while
// the session lives. Inbound frames are decoded and republished on the bus;
// no other component ever touches the socket.
package channel

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/playtrade/chatkit/internal/protocol"
	"github.com/playtrade/chatkit/internal/pubsub"
	"github.com/playtrade/chatkit/internal/topics"
)

// Status is the connection lifecycle state.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusOpen         Status = "open"
	// StatusClosed is terminal: entered on explicit Close, never left.
	StatusClosed Status = "closed"
)

const writeTimeout = 10 * time.Second

// ErrNotOpen is returned by Send when the channel is not currently open.
// Callers fall back to the request/response path.
var ErrNotOpen = errors.New("channel is not open")

// Manager dials the push channel and keeps it alive. All state transitions
// are published as topics.ConnectionStatus events.
type Manager struct {
	endpoint       string
	token          string
	clientID       string
	bus            pubsub.Publisher
	logger         *slog.Logger
	reconnectDelay time.Duration

	mu         sync.Mutex
	status     Status
	conn       *websocket.Conn
	attempt    int
	joinIntent string

	done chan struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithReconnectDelay overrides the fixed delay between reconnect attempts.
func WithReconnectDelay(d time.Duration) Option {
	return func(m *Manager) {
		m.reconnectDelay = d
	}
}

// NewManager creates a manager for the given websocket endpoint. The token
// is appended as a query parameter when dialing.
func NewManager(endpoint, token string, bus pubsub.Publisher, opts ...Option) *Manager {
	clientID := uuid.NewString()
	m := &Manager{
		endpoint:       endpoint,
		token:          token,
		clientID:       clientID,
		bus:            bus,
		logger:         slog.Default().With("service", "channel", "client_id", clientID),
		reconnectDelay: 3 * time.Second,
		status:         StatusDisconnected,
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Status returns the current lifecycle state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// SetJoinIntent records which conversation should be announced to the
// server. The intent is re-sent on every transition to Open because the
// server keeps no subscription state across reconnects. If the channel is
// already open the announcement goes out immediately.
func (m *Manager) SetJoinIntent(conversationID string) {
	m.mu.Lock()
	m.joinIntent = conversationID
	open := m.status == StatusOpen
	conn := m.conn
	m.mu.Unlock()

	if open && conn != nil && conversationID != "" {
		if err := m.write(context.Background(), conn, protocol.Join(conversationID)); err != nil {
			m.logger.Warn("Failed to announce join", "conversation_id", conversationID, "error", err)
		}
	}
}

// ClearJoinIntent forgets the current join intent.
func (m *Manager) ClearJoinIntent() {
	m.mu.Lock()
	m.joinIntent = ""
	m.mu.Unlock()
}

// Send writes an envelope over the open channel. Delivery is best-effort:
// a successful write is not an acknowledgment. When the channel is not open
// it fails fast with ErrNotOpen so the caller can use the REST path instead.
func (m *Manager) Send(ctx context.Context, env protocol.Envelope) error {
	m.mu.Lock()
	conn := m.conn
	open := m.status == StatusOpen
	m.mu.Unlock()

	if !open || conn == nil {
		return ErrNotOpen
	}
	return m.write(ctx, conn, env)
}

func (m *Manager) write(ctx context.Context, conn *websocket.Conn, env protocol.Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

// Run dials and maintains the connection until Close is called or the
// context is canceled. It blocks; start it on its own goroutine.
func (m *Manager) Run(ctx context.Context) {
	for {
		if m.closing(ctx) {
			return
		}

		m.transition(ctx, StatusConnecting)
		conn, err := m.dial(ctx)
		if err != nil {
			if m.closing(ctx) {
				return
			}
			m.logger.Warn("Channel dial failed", "attempt", m.currentAttempt(), "error", err)
			m.transition(ctx, StatusDisconnected)
			if !m.sleep(ctx) {
				return
			}
			continue
		}

		m.mu.Lock()
		if m.status == StatusClosed {
			m.mu.Unlock()
			conn.Close(websocket.StatusNormalClosure, "client closed")
			return
		}
		m.conn = conn
		m.status = StatusOpen
		m.attempt = 0
		join := m.joinIntent
		m.mu.Unlock()

		// Joining is not durable across reconnects; re-announce the
		// active conversation before anything else.
		if join != "" {
			if err := m.write(ctx, conn, protocol.Join(join)); err != nil {
				m.logger.Warn("Failed to announce join after connect", "conversation_id", join, "error", err)
			}
		}
		m.publishStatus(ctx, StatusOpen)

		m.readLoop(ctx, conn)

		m.mu.Lock()
		m.conn = nil
		closed := m.status == StatusClosed
		if !closed {
			m.status = StatusDisconnected
		}
		m.mu.Unlock()

		if closed {
			return
		}
		m.publishStatus(ctx, StatusDisconnected)
		if !m.sleep(ctx) {
			return
		}
	}
}

// Close tears the connection down for good. No reconnect attempts happen
// after Close; the manager cannot be reused.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.status == StatusClosed {
		m.mu.Unlock()
		return nil
	}
	m.status = StatusClosed
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	close(m.done)
	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "logout")
	}
	return nil
}

func (m *Manager) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(m.endpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("token", m.token)
	// Identifies this connection instance in server logs; a reload or a
	// second device produces a different ID under the same user.
	q.Set("client_id", m.clientID)
	u.RawQuery = q.Encode()

	m.mu.Lock()
	m.attempt++
	m.mu.Unlock()

	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	return conn, err
}

func (m *Manager) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				m.logger.Info("Channel closed by server")
			} else if ctx.Err() == nil && !m.isClosed() {
				m.logger.Warn("Channel read error", "error", err)
			}
			return
		}

		env, ok := protocol.Decode(data)
		if !ok {
			m.logger.Debug("Skipping malformed channel frame", "bytes", len(data))
			continue
		}
		if !env.Known() {
			m.logger.Debug("Ignoring unrecognized channel event", "type", env.Type)
			continue
		}

		if err := pubsub.Publish(ctx, m.bus, topics.Inbound, env); err != nil {
			m.logger.Error("Failed to publish inbound event", "type", env.Type, "error", err)
		}
	}
}

func (m *Manager) transition(ctx context.Context, s Status) {
	m.mu.Lock()
	if m.status == StatusClosed {
		m.mu.Unlock()
		return
	}
	m.status = s
	m.mu.Unlock()
	m.publishStatus(ctx, s)
}

func (m *Manager) publishStatus(ctx context.Context, s Status) {
	update := topics.StatusUpdate{Status: string(s), Attempt: m.currentAttempt()}
	if err := pubsub.Publish(ctx, m.bus, topics.ConnectionStatus, update); err != nil {
		m.logger.Error("Failed to publish connection status", "status", s, "error", err)
	}
}

func (m *Manager) currentAttempt() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempt
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status == StatusClosed
}

func (m *Manager) closing(ctx context.Context) bool {
	select {
	case <-m.done:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// sleep waits out the fixed reconnect delay. It returns false when the
// manager closed or the context ended during the wait.
func (m *Manager) sleep(ctx context.Context) bool {
	timer := time.NewTimer(m.reconnectDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-m.done:
		return false
	case <-ctx.Done():
		return false
	}
}
