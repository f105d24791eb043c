package messaging

import (
	"context"

	"buchat/models"
	"buchat/network"
)

// Transport is the REST surface the engine consumes.
type Transport interface {
	SendMessage(ctx context.Context, request models.SendMessageRequest) (models.Message, error)
	ListMessages(ctx context.Context, conversationID string, limit int, lastKey string) (models.MessagePage, error)
	ListConversations(ctx context.Context, limit int) ([]models.Conversation, error)
	MarkRead(ctx context.Context, messageID string, isViewingConversation bool) error
	MarkDelivered(ctx context.Context, messageID string) error
	DeleteMessage(ctx context.Context, messageID string, forEveryone bool) error
	EditMessage(ctx context.Context, messageID, content string) (models.Message, error)
	AddReaction(ctx context.Context, messageID, emoji string) error
	RemoveReaction(ctx context.Context, messageID, emoji string) error
	MarkConversationRead(ctx context.Context, conversationID string) error
	ClearConversation(ctx context.Context, conversationID string) error

	PresignUpload(ctx context.Context, filename, contentType string, size int64) (models.Presign, error)
	PutObject(ctx context.Context, uploadURL, contentType string, data []byte) error

	TypingUsers(ctx context.Context, conversationID string) ([]models.TypingUser, error)
	SetTyping(ctx context.Context, conversationID string, isTyping bool) error

	MessageRequests(ctx context.Context, userID string, limit int) ([]models.MessageRequest, error)
	RespondMessageRequest(ctx context.Context, requestID, action string) error
}

var _ Transport = (*network.Client)(nil)
