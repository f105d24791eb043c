package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"buchat/models"
)

// Options carries the per-message send parameters kept with a queued entry.
type Options struct {
	MessageType string              `json:"messageType,omitempty"`
	Media       []models.Media      `json:"media,omitempty"`
	Attachments []models.Attachment `json:"attachments,omitempty"`
}

// Entry is one outgoing message waiting for connectivity.
type Entry struct {
	TempID      string    `json:"tempId"`
	SenderID    string    `json:"senderId"`
	RecipientID string    `json:"recipientId"`
	Content     string    `json:"content"`
	Options     Options   `json:"options"`
	EnqueuedAt  time.Time `json:"enqueuedAt"`
}

// SendFunc replays one entry. A non-nil error keeps the entry queued.
type SendFunc func(ctx context.Context, entry Entry) error

// DrainResult reports the outcome of one drain cycle.
type DrainResult struct {
	Sent     []Entry
	Requeued []Entry
}

// Persister mirrors the queue to durable storage.
type Persister interface {
	SaveOutboxEntry(entry Entry, position int64) error
	DeleteOutboxEntry(tempID string) error
	ReplaceOutbox(entries []Entry) error
	LoadOutbox() ([]Entry, error)
}

// Queue is an ordered offline send queue.
type Queue struct {
	mu       sync.Mutex
	entries  []Entry
	nextPos  int64
	draining bool

	persister Persister
	logger    zerolog.Logger
}

// New creates an in-memory queue. A nil persister keeps it memory-only.
func New(persister Persister, logger *zerolog.Logger) *Queue {
	l := zerolog.Nop()
	if logger != nil {
		l = *logger
	}
	return &Queue{
		persister: persister,
		logger:    l.With().Str("component", "queue").Logger(),
	}
}

// Restore loads previously persisted entries, appending them in stored order.
func (q *Queue) Restore() (int, error) {
	if q.persister == nil {
		return 0, nil
	}
	stored, err := q.persister.LoadOutbox()
	if err != nil {
		return 0, fmt.Errorf("load outbox: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, stored...)
	q.nextPos += int64(len(stored))
	return len(stored), nil
}

// Enqueue appends entry to the back of the queue.
func (q *Queue) Enqueue(entry Entry) {
	if entry.EnqueuedAt.IsZero() {
		entry.EnqueuedAt = time.Now()
	}

	q.mu.Lock()
	q.entries = append(q.entries, entry)
	q.nextPos++
	pos := q.nextPos
	q.mu.Unlock()

	if q.persister != nil {
		if err := q.persister.SaveOutboxEntry(entry, pos); err != nil {
			q.logger.Error().Err(err).Str("temp_id", entry.TempID).Msg("persist queued message")
		}
	}
}

// Remove drops the entry with tempID. It reports whether one was found.
func (q *Queue) Remove(tempID string) bool {
	q.mu.Lock()
	found := false
	for i, entry := range q.entries {
		if entry.TempID == tempID {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			found = true
			break
		}
	}
	q.mu.Unlock()

	if found && q.persister != nil {
		if err := q.persister.DeleteOutboxEntry(tempID); err != nil {
			q.logger.Error().Err(err).Str("temp_id", tempID).Msg("delete persisted queued message")
		}
	}
	return found
}

// Len returns the number of queued entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Entries returns a snapshot of the queue in FIFO order.
func (q *Queue) Entries() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Entry(nil), q.entries...)
}

// Clear drops every entry.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.entries = nil
	q.mu.Unlock()
	q.persist()
}

// Drain replays every queued entry in FIFO order. Entries whose send fails
// are collected, in order, into the rebuilt queue ahead of anything enqueued
// while the drain was running. Only one drain runs at a time; overlapping
// calls return an empty result.
func (q *Queue) Drain(ctx context.Context, send SendFunc) DrainResult {
	q.mu.Lock()
	if q.draining || len(q.entries) == 0 {
		q.mu.Unlock()
		return DrainResult{}
	}
	q.draining = true
	pending := q.entries
	q.entries = nil
	q.mu.Unlock()

	var result DrainResult
	for i, entry := range pending {
		if ctx.Err() != nil {
			result.Requeued = append(result.Requeued, pending[i:]...)
			break
		}
		if err := q.replay(ctx, send, entry); err != nil {
			q.logger.Warn().Err(err).Str("temp_id", entry.TempID).Msg("queued message replay failed, requeueing")
			result.Requeued = append(result.Requeued, entry)
			continue
		}
		result.Sent = append(result.Sent, entry)
	}

	q.mu.Lock()
	q.entries = append(append([]Entry(nil), result.Requeued...), q.entries...)
	q.draining = false
	q.mu.Unlock()
	q.persist()

	return result
}

func (q *Queue) replay(ctx context.Context, send SendFunc, entry Entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("replay panicked: %v", r)
		}
	}()
	return send(ctx, entry)
}

func (q *Queue) persist() {
	if q.persister == nil {
		return
	}
	if err := q.persister.ReplaceOutbox(q.Entries()); err != nil {
		q.logger.Error().Err(err).Msg("persist rebuilt queue")
	}
}
