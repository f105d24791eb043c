package cache

import (
	"fmt"
	"strings"
	"time"
)

// TTLs per cached payload.
const (
	TTLMessages      = 60 * time.Second // message pages mutate often
	TTLConversations = 30 * time.Second
	TTLMessage       = 5 * time.Minute
)

const (
	prefixMessages      = "conv_"
	prefixConversations = "user_conversations_"
	prefixMessage       = "msg_"
)

// MessagesKey identifies one page of a conversation.
func MessagesKey(conversationID string, limit int, cursor string) string {
	if cursor == "" {
		cursor = "first"
	}
	return fmt.Sprintf("%s%s_%d_%s", prefixMessages, conversationID, limit, cursor)
}

// MessagesPrefix matches every cached page of a conversation.
func MessagesPrefix(conversationID string) string {
	return prefixMessages + conversationID + "_"
}

// ConversationsKey identifies a user's conversation list of a given size.
func ConversationsKey(userID string, limit int) string {
	return fmt.Sprintf("%s%s_%d", prefixConversations, userID, limit)
}

// MessageKey identifies one confirmed message.
func MessageKey(messageID string) string {
	return prefixMessage + messageID
}

// HasPrefix is a convenience matcher for FIFO.DeleteFunc.
func HasPrefix(prefix string) func(string) bool {
	return func(key string) bool {
		return strings.HasPrefix(key, prefix)
	}
}
