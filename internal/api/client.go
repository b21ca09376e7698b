// Package api is the request/response client for the conversation backend.
// It is both the fallback delivery path when the push channel is down and
// the only source of conversation history and summaries.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/playtrade/chatkit/internal/domain"
)

const (
	defaultTimeout  = 15 * time.Second
	defaultPageSize = 50
	maxPageSize     = 100
)

// Error is a failure reported by the backend, decoded from its
// {"success":false,"error":{...}} payload.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api: %s (%s)", e.Message, e.Code)
	}
	return fmt.Sprintf("api: %s", e.Message)
}

// Client talks to the conversation REST API on behalf of one session.
type Client struct {
	baseURL  string
	token    string
	http     *http.Client
	validate *validator.Validate
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// NewClient creates a REST client rooted at baseURL, authenticating every
// request with the given bearer token.
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:  baseURL,
		token:    token,
		http:     &http.Client{Timeout: defaultTimeout},
		validate: validator.New(),
		logger:   slog.Default().With("service", "api"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StartConversationRequest opens (or reuses) a casual DM, optionally seeded
// from a listing.
type StartConversationRequest struct {
	RecipientID    string `json:"recipient_id" validate:"required"`
	ListingID      string `json:"listing_id,omitempty"`
	InitialMessage string `json:"initial_message,omitempty" validate:"max=5000"`
}

// SendMessageRequest is validated before any network call: empty sends are
// rejected locally and never reach the server.
type SendMessageRequest struct {
	Content     string   `json:"content" validate:"required_without=Attachments,max=5000"`
	Attachments []string `json:"attachments" validate:"dive,url"`
}

// SupportRequest opens a support conversation with the admin team.
type SupportRequest struct {
	Subject        string `json:"subject" validate:"required,max=255"`
	InitialMessage string `json:"initial_message,omitempty" validate:"max=5000"`
}

type markReadRequest struct {
	MessageIDs []string `json:"message_ids"`
}

// ListConversations returns the session's conversation summaries, newest
// activity first. An empty convType lists all types.
func (c *Client) ListConversations(ctx context.Context, convType domain.ConversationType) ([]domain.Conversation, error) {
	path := "/chats"
	if convType != "" {
		path += "?type=" + url.QueryEscape(string(convType))
	}

	var out struct {
		Conversations []domain.Conversation `json:"conversations"`
		Total         int                   `json:"total"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

// StartConversation opens or reuses a casual conversation with a user.
func (c *Client) StartConversation(ctx context.Context, req StartConversationRequest) (*domain.Conversation, error) {
	if err := c.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid start request: %w", err)
	}
	var conv domain.Conversation
	if err := c.do(ctx, http.MethodPost, "/chats/start", req, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// OrderConversation fetches the group chat attached to an order.
func (c *Client) OrderConversation(ctx context.Context, orderID string) (*domain.Conversation, error) {
	var conv domain.Conversation
	if err := c.do(ctx, http.MethodGet, "/chats/order/"+url.PathEscape(orderID), nil, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// ListMessages fetches up to limit messages in a conversation, oldest first.
// A non-zero before bounds the page to messages created earlier than it.
func (c *Client) ListMessages(ctx context.Context, conversationID string, before time.Time, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if !before.IsZero() {
		q.Set("before", before.UTC().Format(time.RFC3339Nano))
	}
	path := "/chats/" + url.PathEscape(conversationID) + "/messages?" + q.Encode()

	var out struct {
		Messages []domain.Message `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// SendMessage delivers a message over the request/response path. The server
// responds with the persisted message, including its assigned ID.
func (c *Client) SendMessage(ctx context.Context, conversationID string, req SendMessageRequest) (*domain.Message, error) {
	if err := c.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}
	var msg domain.Message
	if err := c.do(ctx, http.MethodPost, "/chats/"+url.PathEscape(conversationID)+"/messages", req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// MarkRead acknowledges the given message IDs in one batched call and
// returns how many the server newly marked.
func (c *Client) MarkRead(ctx context.Context, conversationID string, messageIDs []string) (int, error) {
	if len(messageIDs) == 0 {
		return 0, nil
	}
	var out struct {
		MarkedCount int `json:"marked_count"`
	}
	err := c.do(ctx, http.MethodPost, "/chats/"+url.PathEscape(conversationID)+"/read", markReadRequest{MessageIDs: messageIDs}, &out)
	if err != nil {
		return 0, err
	}
	return out.MarkedCount, nil
}

// InviteAdmin asks an admin to join an order conversation.
func (c *Client) InviteAdmin(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	var conv domain.Conversation
	if err := c.do(ctx, http.MethodPost, "/chats/"+url.PathEscape(conversationID)+"/invite-admin", nil, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// CreateSupportRequest opens a pending support conversation.
func (c *Client) CreateSupportRequest(ctx context.Context, req SupportRequest) (*domain.Conversation, error) {
	if err := c.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid support request: %w", err)
	}
	var conv domain.Conversation
	if err := c.do(ctx, http.MethodPost, "/chats/support", req, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// AcceptSupportRequest marks a pending support conversation active. Admin
// console only; regular users get an authorization error from the server.
func (c *Client) AcceptSupportRequest(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	var conv domain.Conversation
	if err := c.do(ctx, http.MethodPost, "/chats/"+url.PathEscape(conversationID)+"/support/accept", nil, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// CloseSupportRequest closes a support conversation.
func (c *Client) CloseSupportRequest(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	var conv domain.Conversation
	if err := c.do(ctx, http.MethodPost, "/chats/"+url.PathEscape(conversationID)+"/support/close", nil, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *Error          `json:"error"`
}

// do sends one request and decodes the backend's response envelope into out.
// Backend-reported failures come back as *Error regardless of HTTP status.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return &Error{Message: http.StatusText(resp.StatusCode), Status: resp.StatusCode}
	}

	if !env.Success || resp.StatusCode >= 400 {
		apiErr := env.Error
		if apiErr == nil {
			apiErr = &Error{Message: http.StatusText(resp.StatusCode)}
		}
		apiErr.Status = resp.StatusCode
		c.logger.Debug("Request rejected", "method", method, "path", path, "status", resp.StatusCode, "code", apiErr.Code)
		return apiErr
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decoding response data: %w", err)
		}
	}
	return nil
}
