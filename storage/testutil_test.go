package storage

import (
	"testing"
	"time"

	"buchat/models"
	"buchat/queue"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	dataDir := t.TempDir()
	store, _, err := Open(dataDir)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close test store: %v", err)
		}
	})

	return store
}

func isSeen(t *testing.T, store *Store, messageID string) bool {
	t.Helper()

	unseen, err := store.FilterUnseen([]string{messageID})
	if err != nil {
		t.Fatalf("FilterUnseen %s failed: %v", messageID, err)
	}
	return len(unseen) == 0
}

func testEntry(tempID, content string, enqueuedAt time.Time) queue.Entry {
	return queue.Entry{
		TempID:      tempID,
		SenderID:    "u1",
		RecipientID: "u2",
		Content:     content,
		Options:     queue.Options{MessageType: models.MessageTypeText},
		EnqueuedAt:  enqueuedAt,
	}
}
