package messaging

import (
	"sync"

	"github.com/rs/zerolog"

	"buchat/models"
)

// Notification is a desktop alert for one incoming message. Tag is the
// message ID so the host can collapse duplicates.
type Notification struct {
	Tag            string
	ConversationID string
	SenderID       string
	Body           string
}

// Notifier raises desktop notifications.
type Notifier interface {
	Permitted() bool
	Notify(Notification)
}

// LogNotifier writes notifications to a logger. Hosts without a desktop use it.
type LogNotifier struct {
	Logger zerolog.Logger
}

// Permitted always reports true.
func (n LogNotifier) Permitted() bool { return true }

// Notify logs n at info level.
func (n LogNotifier) Notify(notification Notification) {
	n.Logger.Info().
		Str("tag", notification.Tag).
		Str("conversation_id", notification.ConversationID).
		Str("sender_id", notification.SenderID).
		Str("body", notification.Body).
		Msg("new message")
}

func notificationFor(message models.Message) Notification {
	return Notification{
		Tag:            message.MessageID,
		ConversationID: message.ConversationID,
		SenderID:       message.SenderID,
		Body:           message.Preview(),
	}
}

// SeenLog remembers incoming message IDs that already produced a delivery
// receipt and a notification. storage.Store implements it durably.
type SeenLog interface {
	FilterUnseen(messageIDs []string) ([]string, error)
	InsertSeenID(messageID string, receivedAt int64) error
}

type memorySeenLog struct {
	mu  sync.Mutex
	ids map[string]int64
}

func newMemorySeenLog() *memorySeenLog {
	return &memorySeenLog{ids: make(map[string]int64)}
}

func (l *memorySeenLog) FilterUnseen(messageIDs []string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var unseen []string
	for _, id := range messageIDs {
		if _, ok := l.ids[id]; !ok {
			unseen = append(unseen, id)
		}
	}
	return unseen, nil
}

func (l *memorySeenLog) InsertSeenID(messageID string, receivedAt int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.ids[messageID]; !ok {
		l.ids[messageID] = receivedAt
	}
	return nil
}
