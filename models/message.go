package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the delivery state of one message.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusFailed    Status = "failed"
)

const (
	// MessageTypeText is used when a message carries no media.
	MessageTypeText = "text"

	// DeletedPlaceholder replaces the content of a message deleted for everyone.
	DeletedPlaceholder = "This message was deleted"

	temporaryIDPrefix = "temp_"
)

// Message is one chat message as exchanged with the REST backend.
type Message struct {
	MessageID      string     `json:"messageId"`
	ConversationID string     `json:"conversationId"`
	SenderID       string     `json:"senderId"`
	RecipientID    string     `json:"recipientId"`
	Content        string     `json:"content"`
	MessageType    string     `json:"messageType,omitempty"`
	Media          []Media    `json:"media,omitempty"`
	Status         Status     `json:"status"`
	CreatedAt      time.Time  `json:"createdAt"`
	DeliveredAt    *time.Time `json:"deliveredAt,omitempty"`
	ReadAt         *time.Time `json:"readAt,omitempty"`
	EditedAt       *time.Time `json:"editedAt,omitempty"`
	DeletedForBoth bool       `json:"deletedForBoth,omitempty"`
	Reactions      []Reaction `json:"reactions,omitempty"`
}

// Reaction is one emoji reaction left on a message.
type Reaction struct {
	UserID string `json:"userId"`
	Emoji  string `json:"emoji"`
}

// Clone returns a deep copy safe to hand out of locked state.
func (m Message) Clone() Message {
	out := m
	if m.Media != nil {
		out.Media = append([]Media(nil), m.Media...)
	}
	if m.Reactions != nil {
		out.Reactions = append([]Reaction(nil), m.Reactions...)
	}
	out.DeliveredAt = cloneTime(m.DeliveredAt)
	out.ReadAt = cloneTime(m.ReadAt)
	out.EditedAt = cloneTime(m.EditedAt)
	return out
}

// IsPlaceholder reports whether the message only exists locally.
func (m Message) IsPlaceholder() bool {
	return IsTemporaryID(m.MessageID)
}

// Preview returns the text shown in conversation lists and notifications.
func (m Message) Preview() string {
	if m.DeletedForBoth {
		return DeletedPlaceholder
	}
	if m.Content != "" {
		return m.Content
	}
	if len(m.Media) > 0 {
		return fmt.Sprintf("[%s file]", m.Media[0].Type)
	}
	return "New message"
}

// NewTemporaryID returns a client-side message ID for optimistic entries.
func NewTemporaryID(now time.Time) string {
	return fmt.Sprintf("%s%d_%s", temporaryIDPrefix, now.UnixMilli(), uuid.NewString()[:8])
}

// IsTemporaryID reports whether id was produced by NewTemporaryID.
func IsTemporaryID(id string) bool {
	return strings.HasPrefix(id, temporaryIDPrefix)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
