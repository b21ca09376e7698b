package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playtrade/chatkit/internal/domain"
)

// newBackend stands up a fake conversation backend on the given echo routes.
func newBackend(t *testing.T, register func(e *echo.Echo)) *httptest.Server {
	t.Helper()
	e := echo.New()
	register(e)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv
}

func ok(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, map[string]any{"success": true, "data": data})
}

func fail(c echo.Context, status int, code, message string) error {
	return c.JSON(status, map[string]any{
		"success": false,
		"error":   map[string]string{"code": code, "message": message},
	})
}

func TestClient_ListConversations(t *testing.T) {
	srv := newBackend(t, func(e *echo.Echo) {
		e.GET("/chats", func(c echo.Context) error {
			assert.Equal(t, "Bearer test-token", c.Request().Header.Get("Authorization"))
			assert.Equal(t, "order", c.QueryParam("type"))
			return ok(c, map[string]any{
				"conversations": []domain.Conversation{
					{ID: "conv-1", Type: domain.ConversationOrder, UnreadCount: 2},
				},
				"total": 1,
			})
		})
	})

	client := NewClient(srv.URL, "test-token")
	convs, err := client.ListConversations(context.Background(), domain.ConversationOrder)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "conv-1", convs[0].ID)
	assert.Equal(t, 2, convs[0].UnreadCount)
}

func TestClient_ListMessages_PaginationParams(t *testing.T) {
	before := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	srv := newBackend(t, func(e *echo.Echo) {
		e.GET("/chats/:id/messages", func(c echo.Context) error {
			assert.Equal(t, "conv-1", c.Param("id"))
			assert.Equal(t, "100", c.QueryParam("limit"), "limit is clamped to the maximum page size")
			assert.Equal(t, before.Format(time.RFC3339Nano), c.QueryParam("before"))
			return ok(c, map[string]any{
				"messages": []domain.Message{{ID: "m1", Content: "first"}, {ID: "m2", Content: "second"}},
			})
		})
	})

	client := NewClient(srv.URL, "test-token")
	msgs, err := client.ListMessages(context.Background(), "conv-1", before, 500)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Content)
}

func TestClient_ListMessages_DefaultLimit(t *testing.T) {
	srv := newBackend(t, func(e *echo.Echo) {
		e.GET("/chats/:id/messages", func(c echo.Context) error {
			assert.Equal(t, "50", c.QueryParam("limit"))
			assert.Empty(t, c.QueryParam("before"))
			return ok(c, map[string]any{"messages": []domain.Message{}})
		})
	})

	client := NewClient(srv.URL, "test-token")
	_, err := client.ListMessages(context.Background(), "conv-1", time.Time{}, 0)
	require.NoError(t, err)
}

func TestClient_SendMessage(t *testing.T) {
	srv := newBackend(t, func(e *echo.Echo) {
		e.POST("/chats/:id/messages", func(c echo.Context) error {
			var req SendMessageRequest
			require.NoError(t, json.NewDecoder(c.Request().Body).Decode(&req))
			assert.Equal(t, "hello", req.Content)
			return ok(c, domain.Message{ID: "m9", ConversationID: c.Param("id"), Content: req.Content})
		})
	})

	client := NewClient(srv.URL, "test-token")
	msg, err := client.SendMessage(context.Background(), "conv-1", SendMessageRequest{Content: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "m9", msg.ID)
	assert.Equal(t, "conv-1", msg.ConversationID)
}

func TestClient_SendMessage_RejectsEmptyLocally(t *testing.T) {
	called := false
	srv := newBackend(t, func(e *echo.Echo) {
		e.POST("/chats/:id/messages", func(c echo.Context) error {
			called = true
			return ok(c, domain.Message{})
		})
	})

	client := NewClient(srv.URL, "test-token")
	_, err := client.SendMessage(context.Background(), "conv-1", SendMessageRequest{})
	require.Error(t, err)
	assert.False(t, called, "validation failures must not reach the server")
}

func TestClient_SendMessage_AttachmentsOnly(t *testing.T) {
	srv := newBackend(t, func(e *echo.Echo) {
		e.POST("/chats/:id/messages", func(c echo.Context) error {
			return ok(c, domain.Message{ID: "m1"})
		})
	})

	client := NewClient(srv.URL, "test-token")
	_, err := client.SendMessage(context.Background(), "conv-1", SendMessageRequest{
		Attachments: []string{"https://cdn.example.com/img.png"},
	})
	require.NoError(t, err, "attachment-only messages are valid")
}

func TestClient_MarkRead(t *testing.T) {
	srv := newBackend(t, func(e *echo.Echo) {
		e.POST("/chats/:id/read", func(c echo.Context) error {
			var req struct {
				MessageIDs []string `json:"message_ids"`
			}
			require.NoError(t, json.NewDecoder(c.Request().Body).Decode(&req))
			assert.Equal(t, []string{"m1", "m2"}, req.MessageIDs)
			return ok(c, map[string]int{"marked_count": 2})
		})
	})

	client := NewClient(srv.URL, "test-token")
	count, err := client.MarkRead(context.Background(), "conv-1", []string{"m1", "m2"})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestClient_MarkRead_EmptyIsNoop(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", "test-token")
	count, err := client.MarkRead(context.Background(), "conv-1", nil)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestClient_BackendErrorEnvelope(t *testing.T) {
	srv := newBackend(t, func(e *echo.Echo) {
		e.POST("/chats/start", func(c echo.Context) error {
			return fail(c, http.StatusForbidden, "BLOCKED", "recipient has blocked you")
		})
	})

	client := NewClient(srv.URL, "test-token")
	_, err := client.StartConversation(context.Background(), StartConversationRequest{RecipientID: "u2"})
	require.Error(t, err)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "BLOCKED", apiErr.Code)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Contains(t, apiErr.Error(), "blocked")
}

func TestClient_NonJSONErrorResponse(t *testing.T) {
	srv := newBackend(t, func(e *echo.Echo) {
		e.GET("/chats", func(c echo.Context) error {
			return c.HTML(http.StatusBadGateway, "<html>bad gateway</html>")
		})
	})

	client := NewClient(srv.URL, "test-token")
	_, err := client.ListConversations(context.Background(), "")
	require.Error(t, err)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
}

func TestClient_SupportLifecycle(t *testing.T) {
	srv := newBackend(t, func(e *echo.Echo) {
		e.POST("/chats/support", func(c echo.Context) error {
			var req SupportRequest
			require.NoError(t, json.NewDecoder(c.Request().Body).Decode(&req))
			assert.Equal(t, "missing delivery", req.Subject)
			return ok(c, domain.Conversation{ID: "sup-1", Type: domain.ConversationSupport, SupportStatus: domain.SupportPending})
		})
		e.POST("/chats/:id/support/accept", func(c echo.Context) error {
			return ok(c, domain.Conversation{ID: c.Param("id"), SupportStatus: domain.SupportActive})
		})
		e.POST("/chats/:id/support/close", func(c echo.Context) error {
			return ok(c, domain.Conversation{ID: c.Param("id"), SupportStatus: domain.SupportClosed})
		})
	})

	client := NewClient(srv.URL, "test-token")

	conv, err := client.CreateSupportRequest(context.Background(), SupportRequest{Subject: "missing delivery"})
	require.NoError(t, err)
	assert.Equal(t, domain.SupportPending, conv.SupportStatus)

	conv, err = client.AcceptSupportRequest(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SupportActive, conv.SupportStatus)

	conv, err = client.CloseSupportRequest(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SupportClosed, conv.SupportStatus)
}

func TestClient_ConnectionRefused(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", "test-token")
	_, err := client.ListConversations(context.Background(), "")
	require.Error(t, err)

	var apiErr *Error
	assert.False(t, errors.As(err, &apiErr), "transport failures are not backend errors")
}
