package network

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buchat/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(ClientOptions{
		BaseURL:     server.URL + "/",
		TokenSource: StaticToken("secret"),
	})
	require.NoError(t, err)
	return client
}

func TestNewClientRejectsBadBaseURL(t *testing.T) {
	_, err := NewClient(ClientOptions{})
	require.Error(t, err)

	_, err = NewClient(ClientOptions{BaseURL: "ftp://example.com"})
	require.Error(t, err)
}

func TestSendMessageAcceptsEnvelopeAndBareMessage(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "u2", body["recipientId"])
		assert.Equal(t, "hi", body["content"])
		assert.Equal(t, "text", body["messageType"])
		assert.Equal(t, []any{}, body["media"])

		if calls == 1 {
			_, _ = io.WriteString(w, `{"message":{"messageId":"m1","conversationId":"u1#u2","status":"sent"}}`)
			return
		}
		_, _ = io.WriteString(w, `{"messageId":"m2","conversationId":"u1#u2","status":"sent"}`)
	})

	ctx := context.Background()
	first, err := client.SendMessage(ctx, models.SendMessageRequest{RecipientID: "u2", Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "m1", first.MessageID)
	assert.Equal(t, models.StatusSent, first.Status)

	second, err := client.SendMessage(ctx, models.SendMessageRequest{RecipientID: "u2", Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "m2", second.MessageID)
}

func TestListMessagesEscapesConversationAndPassesCursor(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/conversations/u1%23u2/messages", r.URL.EscapedPath())
		assert.Equal(t, "20", r.URL.Query().Get("limit"))
		assert.Equal(t, "abc", r.URL.Query().Get("lastKey"))
		_, _ = io.WriteString(w, `{"messages":[{"messageId":"m1","createdAt":"2024-01-01T00:00:00Z"}],"lastKey":{"pk":"x"}}`)
	})

	page, err := client.ListMessages(context.Background(), "u1#u2", 20, "abc")
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "m1", page.Messages[0].MessageID)
	assert.Equal(t, models.Cursor(`{"pk":"x"}`), page.LastKey)
}

func TestListMessagesNormalizesMissingArray(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("lastKey"))
		_, _ = io.WriteString(w, `{}`)
	})

	page, err := client.ListMessages(context.Background(), "u1#u2", 50, "")
	require.NoError(t, err)
	assert.NotNil(t, page.Messages)
	assert.Empty(t, page.Messages)
}

func TestAPIErrorDecoding(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/messages/missing/read":
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"error":"not found","code":"MESSAGE_NOT_FOUND"}`)
		case "/messages/busy/delivered":
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = io.WriteString(w, "upstream down")
		default:
			w.WriteHeader(http.StatusForbidden)
		}
	})

	ctx := context.Background()
	err := client.MarkRead(ctx, "missing", true)
	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "MESSAGE_NOT_FOUND", apiErr.Code)
	assert.Equal(t, "not found", apiErr.Message)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsRetryable(err))

	err = client.MarkDelivered(ctx, "busy")
	require.Error(t, err)
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "upstream down", apiErr.Message)
	assert.True(t, IsRetryable(err))

	err = client.DeleteMessage(ctx, "other", false)
	assert.False(t, IsRetryable(err))
	assert.Contains(t, err.Error(), "403")
}

func TestIsRetryableTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	client, err := NewClient(ClientOptions{BaseURL: server.URL, RequestTimeout: time.Second})
	require.NoError(t, err)

	err = client.MarkDelivered(context.Background(), "m1")
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
	assert.Error(t, client.Ping(context.Background()))
	assert.False(t, IsRetryable(nil))
}

func TestDeleteMessageSendsScopeBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/messages/m1", r.URL.Path)
		var body map[string]bool
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.True(t, body["deleteForEveryone"])
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, client.DeleteMessage(context.Background(), "m1", true))
}

func TestPresignAndPutObject(t *testing.T) {
	var uploaded []byte
	var uploadAuth string
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	mux.HandleFunc("/media/presign", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "photo.png", body["filename"])
		assert.Equal(t, "image/png", body["contentType"])
		assert.EqualValues(t, 3, body["size"])
		_ = json.NewEncoder(w).Encode(map[string]string{
			"uploadUrl": server.URL + "/bucket/abc",
			"s3Key":     "uploads/abc",
		})
	})
	mux.HandleFunc("/bucket/abc", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "image/png", r.Header.Get("Content-Type"))
		uploadAuth = r.Header.Get("Authorization")
		uploaded, _ = io.ReadAll(r.Body)
	})

	client, err := NewClient(ClientOptions{BaseURL: server.URL, TokenSource: StaticToken("secret")})
	require.NoError(t, err)

	ctx := context.Background()
	presign, err := client.PresignUpload(ctx, "photo.png", "image/png", 3)
	require.NoError(t, err)
	assert.Equal(t, "uploads/abc", presign.Key)

	require.NoError(t, client.PutObject(ctx, presign.UploadURL, "image/png", []byte{1, 2, 3}))
	assert.Equal(t, []byte{1, 2, 3}, uploaded)
	assert.Empty(t, uploadAuth)
}

func TestPresignRejectsIncompleteResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"uploadUrl":""}`)
	})

	_, err := client.PresignUpload(context.Background(), "a.txt", "text/plain", 1)
	require.Error(t, err)
}

func TestTypingAndRequests(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.EscapedPath() == "/conversations/u1%23u2/typing":
			_, _ = io.WriteString(w, `{"typingUsers":[{"userId":"u2"}]}`)
		case r.Method == http.MethodPost && r.URL.EscapedPath() == "/conversations/u1%23u2/typing":
			var body map[string]bool
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.True(t, body["isTyping"])
		case r.Method == http.MethodGet && r.URL.Path == "/messages/requests":
			assert.Equal(t, "u1", r.URL.Query().Get("userId"))
			_, _ = io.WriteString(w, `{"requests":[{"requestId":"r1","senderId":"u3","status":"pending"}]}`)
		case r.Method == http.MethodPut && r.URL.Path == "/messages/requests/r1":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "accept", body["action"])
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.String())
			w.WriteHeader(http.StatusTeapot)
		}
	})

	ctx := context.Background()
	users, err := client.TypingUsers(ctx, "u1#u2")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "u2", users[0].UserID)

	require.NoError(t, client.SetTyping(ctx, "u1#u2", true))

	requests, err := client.MessageRequests(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, "u3", requests[0].SenderID)

	require.NoError(t, client.RespondMessageRequest(ctx, "r1", "accept"))
}

func TestEditAndReactions(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/messages/m1":
			_, _ = io.WriteString(w, `{"message":{"messageId":"m1","content":"edited","editedAt":"2024-01-01T00:00:00Z"}}`)
		case r.Method == http.MethodPost && r.URL.Path == "/messages/m1/reactions":
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodDelete && r.URL.Path == "/messages/m1/reactions":
			assert.Equal(t, "👍", r.URL.Query().Get("emoji"))
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodPut && r.URL.EscapedPath() == "/messages/conversations/u1%23u2/read":
		case r.Method == http.MethodDelete && r.URL.EscapedPath() == "/messages/conversations/u1%23u2/clear":
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.String())
		}
	})

	ctx := context.Background()
	edited, err := client.EditMessage(ctx, "m1", "edited")
	require.NoError(t, err)
	assert.Equal(t, "edited", edited.Content)
	require.NotNil(t, edited.EditedAt)

	require.NoError(t, client.AddReaction(ctx, "m1", "👍"))
	require.NoError(t, client.RemoveReaction(ctx, "m1", "👍"))
	require.NoError(t, client.MarkConversationRead(ctx, "u1#u2"))
	require.NoError(t, client.ClearConversation(ctx, "u1#u2"))
}

func TestListConversations(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/conversations", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		_, _ = io.WriteString(w, `{"conversations":[{"conversationId":"u1#u2","unreadCount":2}]}`)
	})

	conversations, err := client.ListConversations(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, conversations, 1)
	assert.Equal(t, 2, conversations[0].UnreadCount)
}
