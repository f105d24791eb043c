package messaging

import (
	"sort"

	"buchat/models"
)

// thread is the local state of one conversation, keyed by message ID
// (temporary or final). The ordered view is derived on read.
type thread struct {
	messages map[string]*models.Message
}

func newThread() *thread {
	return &thread{messages: make(map[string]*models.Message)}
}

func (t *thread) get(id string) (*models.Message, bool) {
	msg, ok := t.messages[id]
	return msg, ok
}

func (t *thread) has(id string) bool {
	_, ok := t.messages[id]
	return ok
}

func (t *thread) put(message models.Message) {
	clone := message.Clone()
	t.messages[message.MessageID] = &clone
}

func (t *thread) remove(id string) bool {
	if _, ok := t.messages[id]; !ok {
		return false
	}
	delete(t.messages, id)
	return true
}

// merge upserts a server copy. Confirmed statuses never move backwards,
// receipt timestamps are kept once known, and a tombstone sticks.
func (t *thread) merge(incoming models.Message) {
	if incoming.Status == "" {
		incoming.Status = models.StatusSent
	}
	existing, ok := t.messages[incoming.MessageID]
	if !ok {
		t.put(incoming)
		return
	}

	merged := incoming.Clone()
	merged.Status = models.Later(existing.Status, incoming.Status)
	if merged.DeliveredAt == nil && existing.DeliveredAt != nil {
		merged.DeliveredAt = existing.DeliveredAt
	}
	if merged.ReadAt == nil && existing.ReadAt != nil {
		merged.ReadAt = existing.ReadAt
	}
	if merged.CreatedAt.IsZero() {
		merged.CreatedAt = existing.CreatedAt
	}
	if existing.DeletedForBoth {
		tombstone(&merged)
	}
	t.put(merged)
}

// replace swaps a placeholder for its confirmed server copy. A placeholder
// that was removed locally stays removed.
func (t *thread) replace(tempID string, confirmed models.Message) bool {
	if _, ok := t.messages[tempID]; !ok {
		return false
	}
	delete(t.messages, tempID)
	t.merge(confirmed)
	return true
}

// sorted returns a copy ordered by CreatedAt ascending, ties broken by ID.
func (t *thread) sorted() []models.Message {
	out := make([]models.Message, 0, len(t.messages))
	for _, msg := range t.messages {
		out = append(out, msg.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].MessageID < out[j].MessageID
	})
	return out
}

func tombstone(msg *models.Message) {
	msg.DeletedForBoth = true
	msg.Content = models.DeletedPlaceholder
	msg.Media = nil
}
