package models

import (
	"sort"
	"strings"
	"time"
)

// ConversationSeparator joins the two participant IDs of a conversation key.
const ConversationSeparator = "#"

// Conversation is a one-to-one thread summary.
type Conversation struct {
	ConversationID     string    `json:"conversationId"`
	Participants       [2]string `json:"participants"`
	LastMessagePreview string    `json:"lastMessagePreview,omitempty"`
	LastMessageAt      time.Time `json:"lastMessageAt,omitempty"`
	UnreadCount        int       `json:"unreadCount"`
}

// TypingUser is one participant currently composing a message.
type TypingUser struct {
	UserID    string    `json:"userId"`
	Username  string    `json:"username,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// MessageRequest is a pending first-contact request from a non-friend.
type MessageRequest struct {
	RequestID string    `json:"requestId"`
	SenderID  string    `json:"senderId"`
	Status    string    `json:"status"`
	Preview   string    `json:"preview,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// ConversationID returns the order-independent key for two participants.
func ConversationID(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, ConversationSeparator)
}

// Participants splits a conversation key back into its two user IDs.
func Participants(conversationID string) ([2]string, bool) {
	parts := strings.Split(conversationID, ConversationSeparator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return [2]string{}, false
	}
	return [2]string{parts[0], parts[1]}, true
}

// RemoteParty returns the participant that is not self.
func RemoteParty(conversationID, self string) (string, bool) {
	pair, ok := Participants(conversationID)
	if !ok {
		return "", false
	}
	switch self {
	case pair[0]:
		return pair[1], true
	case pair[1]:
		return pair[0], true
	default:
		return "", false
	}
}
