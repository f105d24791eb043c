package messaging

import (
	"context"
	"fmt"
	"sort"

	"buchat/cache"
	"buchat/models"
)

// FetchOptions selects one page of a conversation.
type FetchOptions struct {
	Limit    int
	UseCache bool
	Cursor   string
}

// Page is one page of messages. An empty page returned together with an
// error wrapping ErrFetchFailed means "unknown", not "no messages".
type Page struct {
	Messages []models.Message `json:"messages"`
	Cursor   string           `json:"cursor,omitempty"`
	HasMore  bool             `json:"hasMore"`
}

// ReconcileOptions tunes one polling step. Known lists message IDs the
// caller already shows; Visible reports whether the conversation is on
// screen.
type ReconcileOptions struct {
	Known   []string
	Visible bool
}

// ReconcileResult holds the messages first seen by this step and the full
// sorted local view after the merge.
type ReconcileResult struct {
	New      []models.Message
	Messages []models.Message
}

// FetchMessages returns one page of a conversation, from cache when allowed
// and fresh, otherwise from the backend. Fetched messages are merged into
// the local view.
func (e *Engine) FetchMessages(ctx context.Context, conversationID string, options FetchOptions) (Page, error) {
	page, fromCache, err := e.fetchPage(ctx, conversationID, options)
	if err != nil {
		return page, err
	}
	if !fromCache {
		e.mu.Lock()
		t := e.threadLocked(conversationID)
		for _, msg := range page.Messages {
			t.merge(msg)
		}
		e.mu.Unlock()
	}
	return page, nil
}

// Reconcile is the polling step: it force-fetches the latest page, merges it
// into the local view, and raises receipts and notifications for messages it
// has not seen before. Optimistic placeholders survive the merge.
func (e *Engine) Reconcile(ctx context.Context, currentUserID, conversationID string, options ReconcileOptions) (ReconcileResult, error) {
	page, _, err := e.fetchPage(ctx, conversationID, FetchOptions{Limit: e.options.PageLimit})
	if err != nil {
		return ReconcileResult{New: []models.Message{}, Messages: e.Messages(conversationID)}, err
	}

	known := make(map[string]struct{}, len(options.Known))
	for _, id := range options.Known {
		known[id] = struct{}{}
	}

	e.mu.Lock()
	t := e.threadLocked(conversationID)
	fresh := make([]models.Message, 0)
	for _, msg := range page.Messages {
		_, alreadyKnown := known[msg.MessageID]
		if !alreadyKnown && !t.has(msg.MessageID) {
			fresh = append(fresh, msg.Clone())
		}
		t.merge(msg)
	}
	snapshot := t.sorted()
	e.mu.Unlock()

	sort.SliceStable(fresh, func(i, j int) bool {
		return fresh[i].CreatedAt.Before(fresh[j].CreatedAt)
	})
	e.metrics.newMessages(len(fresh))

	remote, _ := models.RemoteParty(conversationID, currentUserID)
	incoming := make([]models.Message, 0, len(fresh))
	for _, msg := range fresh {
		if msg.SenderID == currentUserID || (remote != "" && msg.SenderID != remote) {
			continue
		}
		incoming = append(incoming, msg)
	}
	e.handleIncoming(incoming, options.Visible)
	if options.Visible {
		e.sendReadReceipts(snapshot, currentUserID)
	}

	return ReconcileResult{New: fresh, Messages: snapshot}, nil
}

// GetUserConversations returns the caller's conversation list, cached
// briefly. On failure the last known list (or an empty one) is returned
// together with the error.
func (e *Engine) GetUserConversations(ctx context.Context, currentUserID string, limit int) ([]models.Conversation, error) {
	if limit <= 0 {
		limit = e.options.PageLimit
	}
	key := cache.ConversationsKey(currentUserID, limit)

	var cached []models.Conversation
	if e.cache.GetJSON(ctx, key, &cached) {
		e.metrics.cacheLookup(true)
		return cached, nil
	}
	e.metrics.cacheLookup(false)

	conversations, err := e.transport.ListConversations(ctx, limit)
	if err != nil {
		e.logger.Warn().Err(err).Str("user_id", currentUserID).Msg("list conversations failed")
		e.mu.Lock()
		stale, ok := e.conversations[key]
		e.mu.Unlock()
		if ok {
			return append([]models.Conversation(nil), stale...), err
		}
		return []models.Conversation{}, err
	}

	if err := e.cache.SetJSON(ctx, key, conversations, e.options.ConversationsTTL); err != nil {
		e.logger.Warn().Err(err).Msg("cache conversations")
	}
	e.mu.Lock()
	e.conversations[key] = append([]models.Conversation(nil), conversations...)
	e.mu.Unlock()
	return conversations, nil
}

func (e *Engine) fetchPage(ctx context.Context, conversationID string, options FetchOptions) (Page, bool, error) {
	limit := options.Limit
	if limit <= 0 {
		limit = e.options.PageLimit
	}
	key := cache.MessagesKey(conversationID, limit, options.Cursor)

	if options.UseCache {
		var cached Page
		if e.cache.GetJSON(ctx, key, &cached) {
			e.metrics.cacheLookup(true)
			if cached.Messages == nil {
				cached.Messages = []models.Message{}
			}
			return cached, true, nil
		}
		e.metrics.cacheLookup(false)
	}

	fetched, err := e.transport.ListMessages(ctx, conversationID, limit, options.Cursor)
	if err != nil {
		e.logger.Warn().Err(err).Str("conversation_id", conversationID).Msg("fetch messages failed")
		return Page{Messages: []models.Message{}}, false, fmt.Errorf("%w: %s: %w", ErrFetchFailed, conversationID, err)
	}

	page := Page{
		Messages: make([]models.Message, 0, len(fetched.Messages)),
		Cursor:   string(fetched.LastKey),
		HasMore:  fetched.LastKey != "",
	}
	for _, msg := range fetched.Messages {
		if msg.ConversationID == "" {
			msg.ConversationID = conversationID
		}
		if msg.Status == "" {
			msg.Status = models.StatusSent
		}
		if msg.DeletedForBoth {
			tombstone(&msg)
		}
		page.Messages = append(page.Messages, msg)
	}

	if err := e.cache.SetJSON(ctx, key, page, e.options.MessagesTTL); err != nil {
		e.logger.Warn().Err(err).Str("conversation_id", conversationID).Msg("cache message page")
	}
	return page, false, nil
}

// handleIncoming raises the delivery receipt and, for hidden conversations,
// the notification for each message from the remote party. Each message ID
// is handled once per seen log.
func (e *Engine) handleIncoming(messages []models.Message, visible bool) {
	if len(messages) == 0 {
		return
	}
	ids := make([]string, 0, len(messages))
	for _, msg := range messages {
		ids = append(ids, msg.MessageID)
	}
	unseen, err := e.seen.FilterUnseen(ids)
	if err != nil {
		e.logger.Warn().Err(err).Int("count", len(ids)).Msg("check seen messages")
		unseen = ids
	}
	pending := make(map[string]struct{}, len(unseen))
	for _, id := range unseen {
		pending[id] = struct{}{}
	}

	notifier := e.options.Notifier
	for _, msg := range messages {
		if _, ok := pending[msg.MessageID]; !ok {
			continue
		}
		if err := e.seen.InsertSeenID(msg.MessageID, e.now().UnixMilli()); err != nil {
			e.logger.Warn().Err(err).Str("message_id", msg.MessageID).Msg("record seen message")
		}

		if msg.Status.Rank() < models.StatusDelivered.Rank() {
			messageID := msg.MessageID
			e.goAsync(func(ctx context.Context) {
				err := e.transport.MarkDelivered(ctx, messageID)
				e.metrics.receipt("delivered", err)
				if err != nil {
					e.logger.Warn().Err(err).Str("message_id", messageID).Msg("delivery receipt failed")
				}
			})
		}

		if !visible && notifier != nil && notifier.Permitted() {
			notifier.Notify(notificationFor(msg))
		}
	}
}

// sendReadReceipts marks every unread remote message read, once per ID.
// A failed receipt is forgotten so the next visible reconcile sends it again.
func (e *Engine) sendReadReceipts(messages []models.Message, currentUserID string) {
	for _, msg := range messages {
		if msg.SenderID == currentUserID || msg.IsPlaceholder() || msg.ReadAt != nil || msg.Status == models.StatusRead {
			continue
		}

		e.mu.Lock()
		if e.readSent[msg.MessageID] {
			e.mu.Unlock()
			continue
		}
		e.readSent[msg.MessageID] = true
		e.mu.Unlock()

		messageID := msg.MessageID
		e.goAsync(func(ctx context.Context) {
			err := e.transport.MarkRead(ctx, messageID, true)
			e.metrics.receipt("read", err)
			if err != nil {
				e.logger.Warn().Err(err).Str("message_id", messageID).Msg("read receipt failed")
				e.mu.Lock()
				delete(e.readSent, messageID)
				e.mu.Unlock()
			}
		})
	}
}
