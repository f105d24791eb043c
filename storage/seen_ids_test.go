package storage

import (
	"testing"
)

func TestSeenMessageIDsOperations(t *testing.T) {
	store := newTestStore(t)

	oldTimestamp := nowUnixMilli() - 10_000
	newTimestamp := nowUnixMilli()

	if err := store.InsertSeenID("msg-old", oldTimestamp); err != nil {
		t.Fatalf("InsertSeenID old failed: %v", err)
	}
	if err := store.InsertSeenID("msg-new", newTimestamp); err != nil {
		t.Fatalf("InsertSeenID new failed: %v", err)
	}

	if !isSeen(t, store, "msg-old") {
		t.Fatalf("expected msg-old to exist in seen_message_ids")
	}
	if isSeen(t, store, "missing") {
		t.Fatalf("expected missing message ID to be unseen")
	}

	pruned, err := store.PruneOldEntries(nowUnixMilli() - 5_000)
	if err != nil {
		t.Fatalf("PruneOldEntries failed: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("expected 1 pruned seen message ID, got %d", pruned)
	}

	if isSeen(t, store, "msg-old") {
		t.Fatalf("expected msg-old to be pruned")
	}
	if !isSeen(t, store, "msg-new") {
		t.Fatalf("expected msg-new to remain after prune")
	}
}

func TestSeenIDInsertIsIdempotentAndFilterKeepsOrder(t *testing.T) {
	store := newTestStore(t)

	if err := store.InsertSeenID("msg-b", 0); err != nil {
		t.Fatalf("InsertSeenID failed: %v", err)
	}
	if err := store.InsertSeenID("msg-b", 0); err != nil {
		t.Fatalf("repeated InsertSeenID failed: %v", err)
	}

	unseen, err := store.FilterUnseen([]string{"msg-c", "msg-b", "msg-a"})
	if err != nil {
		t.Fatalf("FilterUnseen failed: %v", err)
	}
	if len(unseen) != 2 || unseen[0] != "msg-c" || unseen[1] != "msg-a" {
		t.Fatalf("unexpected unseen IDs: %v", unseen)
	}

	none, err := store.FilterUnseen(nil)
	if err != nil || none != nil {
		t.Fatalf("expected nil result for empty input, got %v, %v", none, err)
	}
}
