package queue

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryPersister struct {
	mu      sync.Mutex
	entries []Entry
	saves   int
}

func (p *memoryPersister) SaveOutboxEntry(entry Entry, _ int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, entry)
	p.saves++
	return nil
}

func (p *memoryPersister) DeleteOutboxEntry(tempID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, entry := range p.entries {
		if entry.TempID == tempID {
			p.entries = append(p.entries[:i], p.entries[i+1:]...)
			break
		}
	}
	return nil
}

func (p *memoryPersister) ReplaceOutbox(entries []Entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append([]Entry(nil), entries...)
	return nil
}

func (p *memoryPersister) LoadOutbox() ([]Entry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Entry(nil), p.entries...), nil
}

func tempIDs(entries []Entry) []string {
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.TempID)
	}
	return ids
}

func TestDrainReplaysInFIFOOrder(t *testing.T) {
	q := New(nil, nil)
	for _, id := range []string{"t1", "t2", "t3"} {
		q.Enqueue(Entry{TempID: id, RecipientID: "u2", Content: id})
	}

	var order []string
	result := q.Drain(context.Background(), func(_ context.Context, entry Entry) error {
		order = append(order, entry.TempID)
		return nil
	})

	assert.Equal(t, []string{"t1", "t2", "t3"}, order)
	assert.Equal(t, []string{"t1", "t2", "t3"}, tempIDs(result.Sent))
	assert.Empty(t, result.Requeued)
	assert.Equal(t, 0, q.Len())
}

func TestDrainRequeuesFailuresWithoutAbortingTheRest(t *testing.T) {
	q := New(nil, nil)
	for _, id := range []string{"t1", "t2", "t3"} {
		q.Enqueue(Entry{TempID: id})
	}

	result := q.Drain(context.Background(), func(_ context.Context, entry Entry) error {
		switch entry.TempID {
		case "t2":
			return errors.New("backend unavailable")
		case "t3":
			panic("bad entry")
		}
		return nil
	})

	assert.Equal(t, []string{"t1"}, tempIDs(result.Sent))
	assert.Equal(t, []string{"t2", "t3"}, tempIDs(result.Requeued))
	assert.Equal(t, []string{"t2", "t3"}, tempIDs(q.Entries()))
}

func TestDrainPutsRequeuedAheadOfEntriesAddedDuringDrain(t *testing.T) {
	q := New(nil, nil)
	q.Enqueue(Entry{TempID: "t1"})

	q.Drain(context.Background(), func(_ context.Context, entry Entry) error {
		q.Enqueue(Entry{TempID: "late"})
		// Nested drains are rejected while the outer drain runs.
		nested := q.Drain(context.Background(), func(context.Context, Entry) error { return nil })
		assert.Empty(t, nested.Sent)
		return errors.New("offline again")
	})

	assert.Equal(t, []string{"t1", "late"}, tempIDs(q.Entries()))
}

func TestDrainStopsOnCancelledContext(t *testing.T) {
	q := New(nil, nil)
	q.Enqueue(Entry{TempID: "t1"})
	q.Enqueue(Entry{TempID: "t2"})

	ctx, cancel := context.WithCancel(context.Background())
	result := q.Drain(ctx, func(_ context.Context, entry Entry) error {
		cancel()
		return nil
	})

	assert.Equal(t, []string{"t1"}, tempIDs(result.Sent))
	assert.Equal(t, []string{"t2"}, tempIDs(q.Entries()))
}

func TestQueueMirrorsToPersister(t *testing.T) {
	persister := &memoryPersister{}
	q := New(persister, nil)
	q.Enqueue(Entry{TempID: "t1"})
	q.Enqueue(Entry{TempID: "t2"})
	require.True(t, q.Remove("t1"))
	assert.False(t, q.Remove("missing"))

	stored, err := persister.LoadOutbox()
	require.NoError(t, err)
	assert.Equal(t, []string{"t2"}, tempIDs(stored))

	restored := New(persister, nil)
	n, err := restored.Restore()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"t2"}, tempIDs(restored.Entries()))

	restored.Drain(context.Background(), func(context.Context, Entry) error { return nil })
	stored, err = persister.LoadOutbox()
	require.NoError(t, err)
	assert.Empty(t, stored)
}
