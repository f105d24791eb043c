package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"buchat/models"
)

var errBackendDown = errors.New("backend down")

type deleteCall struct {
	MessageID   string
	ForEveryone bool
}

type fakeTransport struct {
	mu sync.Mutex

	self    string
	base    time.Time
	nextID  int
	pages   map[string][]models.Message
	listErr error

	sendGate  chan struct{}
	sendError func(models.SendMessageRequest) error
	sent      []models.SendMessageRequest

	uploadErr error
	uploads   map[string][]byte

	readError     func(messageID string) error
	readAttempts  int
	read          []string
	delivered     []string
	deleteErr     error
	deleted       []deleteCall
	listCalls     int
	conversations []models.Conversation
	convErr       error
	typing        []models.TypingUser
	typingSignals []bool
	reactions     []string
	cleared       []string
}

func newFakeTransport(self string) *fakeTransport {
	return &fakeTransport{
		self:    self,
		base:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		pages:   make(map[string][]models.Message),
		uploads: make(map[string][]byte),
	}
}

func (f *fakeTransport) serverMessage(id, sender, recipient, content string, offset time.Duration) models.Message {
	return models.Message{
		MessageID:      id,
		ConversationID: models.ConversationID(sender, recipient),
		SenderID:       sender,
		RecipientID:    recipient,
		Content:        content,
		Status:         models.StatusSent,
		CreatedAt:      f.base.Add(offset),
	}
}

func (f *fakeTransport) setPage(conversationID string, messages ...models.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[conversationID] = messages
}

func (f *fakeTransport) sentContents() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, request := range f.sent {
		out = append(out, request.Content)
	}
	return out
}

func (f *fakeTransport) counts() (read, delivered, lists int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.read), len(f.delivered), f.listCalls
}

func (f *fakeTransport) SendMessage(ctx context.Context, request models.SendMessageRequest) (models.Message, error) {
	f.mu.Lock()
	gate := f.sendGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return models.Message{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, request)
	if f.sendError != nil {
		if err := f.sendError(request); err != nil {
			return models.Message{}, err
		}
	}
	f.nextID++
	msg := models.Message{
		MessageID:      fmt.Sprintf("srv_%d", f.nextID),
		ConversationID: models.ConversationID(f.self, request.RecipientID),
		SenderID:       f.self,
		RecipientID:    request.RecipientID,
		Content:        request.Content,
		MessageType:    request.MessageType,
		Media:          request.Media,
		Status:         models.StatusSent,
		CreatedAt:      f.base.Add(time.Hour + time.Duration(f.nextID)*time.Second),
	}
	return msg, nil
}

func (f *fakeTransport) ListMessages(ctx context.Context, conversationID string, limit int, lastKey string) (models.MessagePage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return models.MessagePage{}, f.listErr
	}
	messages := make([]models.Message, 0, len(f.pages[conversationID]))
	for _, msg := range f.pages[conversationID] {
		messages = append(messages, msg.Clone())
	}
	return models.MessagePage{Messages: messages}, nil
}

func (f *fakeTransport) ListConversations(ctx context.Context, limit int) ([]models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.convErr != nil {
		return nil, f.convErr
	}
	return append([]models.Conversation(nil), f.conversations...), nil
}

func (f *fakeTransport) MarkRead(ctx context.Context, messageID string, isViewingConversation bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readAttempts++
	if f.readError != nil {
		if err := f.readError(messageID); err != nil {
			return err
		}
	}
	f.read = append(f.read, messageID)
	return nil
}

func (f *fakeTransport) MarkDelivered(ctx context.Context, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered = append(f.delivered, messageID)
	return nil
}

func (f *fakeTransport) DeleteMessage(ctx context.Context, messageID string, forEveryone bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, deleteCall{MessageID: messageID, ForEveryone: forEveryone})
	return f.deleteErr
}

func (f *fakeTransport) EditMessage(ctx context.Context, messageID, content string) (models.Message, error) {
	return models.Message{MessageID: messageID, Content: content}, nil
}

func (f *fakeTransport) AddReaction(ctx context.Context, messageID, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions = append(f.reactions, "+"+emoji)
	return nil
}

func (f *fakeTransport) RemoveReaction(ctx context.Context, messageID, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions = append(f.reactions, "-"+emoji)
	return nil
}

func (f *fakeTransport) MarkConversationRead(ctx context.Context, conversationID string) error {
	return nil
}

func (f *fakeTransport) ClearConversation(ctx context.Context, conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, conversationID)
	return nil
}

func (f *fakeTransport) PresignUpload(ctx context.Context, filename, contentType string, size int64) (models.Presign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return models.Presign{}, f.uploadErr
	}
	return models.Presign{
		UploadURL: "https://bucket.example.com/uploads/" + filename + "?sig=abc",
		Key:       "uploads/" + filename,
	}, nil
}

func (f *fakeTransport) PutObject(ctx context.Context, uploadURL, contentType string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads[uploadURL] = append([]byte(nil), data...)
	return nil
}

func (f *fakeTransport) TypingUsers(ctx context.Context, conversationID string) ([]models.TypingUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.TypingUser(nil), f.typing...), nil
}

func (f *fakeTransport) SetTyping(ctx context.Context, conversationID string, isTyping bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typingSignals = append(f.typingSignals, isTyping)
	return nil
}

func (f *fakeTransport) MessageRequests(ctx context.Context, userID string, limit int) ([]models.MessageRequest, error) {
	return []models.MessageRequest{{RequestID: "r1", SenderID: "u9", Status: "pending"}}, nil
}

func (f *fakeTransport) RespondMessageRequest(ctx context.Context, requestID, action string) error {
	if action != RequestAccept && action != RequestDecline {
		return fmt.Errorf("bad action %q", action)
	}
	return nil
}

type recordingNotifier struct {
	mu        sync.Mutex
	permitted bool
	tags      []string
}

func (n *recordingNotifier) Permitted() bool { return n.permitted }

func (n *recordingNotifier) Notify(notification Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tags = append(n.tags, notification.Tag)
}

func (n *recordingNotifier) notified() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.tags...)
}

// steppingClock advances one second per call so placeholders keep send order.
type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestEngine(t *testing.T, transport *fakeTransport, mutate func(*Options)) *Engine {
	t.Helper()

	clock := &steppingClock{now: transport.base}
	options := Options{
		Transport:    transport,
		Clock:        clock.Now,
		MediaBaseURL: "https://cdn.example.com/",
	}
	if mutate != nil {
		mutate(&options)
	}

	engine, err := New(options)
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	return engine
}

func waitSettled(t *testing.T, out *Outgoing) models.Message {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, err := out.Wait(ctx)
	require.NoError(t, err)
	return msg
}
