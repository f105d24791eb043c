package messaging

import (
	"context"
	"fmt"
	"strings"

	"buchat/cache"
	"buchat/models"
	"buchat/network"
)

// Message request responses.
const (
	RequestAccept  = "accept"
	RequestDecline = "decline"
)

// Delete removes a message. Placeholders that never reached the server are
// dropped locally, and from the offline queue, without a network call.
// A placeholder that is still sending cannot be deleted until it settles.
// Otherwise the server is called first: on success a "for me" delete
// removes the local entry and a "for everyone" delete tombstones it in place.
// A message the server no longer knows is removed locally either way.
// The caller enforces any time window on deleting for everyone.
func (e *Engine) Delete(ctx context.Context, conversationID, messageID string, forEveryone bool) error {
	if models.IsTemporaryID(messageID) {
		if msg, ok := e.Message(conversationID, messageID); ok && msg.Status == models.StatusSending {
			return fmt.Errorf("delete %s: %w", messageID, ErrSendInFlight)
		}
		dequeued := e.queue.Remove(messageID)
		e.metrics.setQueueDepth(e.queue.Len())

		e.mu.Lock()
		removed := false
		if t, ok := e.threads[conversationID]; ok {
			removed = t.remove(messageID)
		}
		e.mu.Unlock()

		if !removed && !dequeued {
			return fmt.Errorf("delete %s: %w", messageID, ErrUnknownMessage)
		}
		return nil
	}

	err := e.transport.DeleteMessage(ctx, messageID, forEveryone)
	gone := network.IsNotFound(err)
	if err != nil && !gone {
		return fmt.Errorf("delete message %s: %w", messageID, err)
	}

	e.mu.Lock()
	if t, ok := e.threads[conversationID]; ok {
		if forEveryone && !gone {
			if msg, ok := t.get(messageID); ok {
				tombstone(msg)
			}
		} else {
			t.remove(messageID)
		}
	}
	e.mu.Unlock()

	e.cache.Delete(ctx, cache.MessageKey(messageID))
	e.cache.DeletePrefix(ctx, cache.MessagesPrefix(conversationID))
	return nil
}

// Edit replaces the text of a confirmed message.
func (e *Engine) Edit(ctx context.Context, conversationID, messageID, content string) (models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return models.Message{}, ErrEmptyMessage
	}
	if models.IsTemporaryID(messageID) {
		return models.Message{}, fmt.Errorf("edit %s: message not confirmed yet: %w", messageID, ErrUnknownMessage)
	}

	updated, err := e.transport.EditMessage(ctx, messageID, content)
	if err != nil {
		return models.Message{}, fmt.Errorf("edit message %s: %w", messageID, err)
	}
	editedAt := e.now()
	if updated.EditedAt != nil {
		editedAt = *updated.EditedAt
	}

	e.mu.Lock()
	t := e.threadLocked(conversationID)
	msg, ok := t.get(messageID)
	if !ok {
		if updated.MessageID == "" {
			updated.MessageID = messageID
		}
		if updated.ConversationID == "" {
			updated.ConversationID = conversationID
		}
		t.merge(updated)
		msg, _ = t.get(messageID)
	}
	msg.Content = content
	msg.EditedAt = &editedAt
	result := msg.Clone()
	e.mu.Unlock()

	e.cache.Delete(ctx, cache.MessageKey(messageID))
	e.cache.DeletePrefix(ctx, cache.MessagesPrefix(conversationID))
	return result, nil
}

// AddReaction adds the caller's emoji to a message.
func (e *Engine) AddReaction(ctx context.Context, currentUserID, conversationID, messageID, emoji string) error {
	if emoji == "" {
		return fmt.Errorf("%w: emoji is required", ErrInvalidRequest)
	}
	if err := e.transport.AddReaction(ctx, messageID, emoji); err != nil {
		return fmt.Errorf("add reaction to %s: %w", messageID, err)
	}

	e.updateMessage(conversationID, messageID, func(msg *models.Message) {
		for _, reaction := range msg.Reactions {
			if reaction.UserID == currentUserID && reaction.Emoji == emoji {
				return
			}
		}
		msg.Reactions = append(msg.Reactions, models.Reaction{UserID: currentUserID, Emoji: emoji})
	})
	return nil
}

// RemoveReaction removes the caller's emoji from a message.
func (e *Engine) RemoveReaction(ctx context.Context, currentUserID, conversationID, messageID, emoji string) error {
	if err := e.transport.RemoveReaction(ctx, messageID, emoji); err != nil {
		return fmt.Errorf("remove reaction from %s: %w", messageID, err)
	}

	e.updateMessage(conversationID, messageID, func(msg *models.Message) {
		kept := msg.Reactions[:0]
		for _, reaction := range msg.Reactions {
			if reaction.UserID == currentUserID && reaction.Emoji == emoji {
				continue
			}
			kept = append(kept, reaction)
		}
		msg.Reactions = kept
	})
	return nil
}

// MarkRead sends a read receipt and updates the local copy. The error is
// returned to the caller; receipts raised by Reconcile are only logged.
func (e *Engine) MarkRead(ctx context.Context, conversationID, messageID string, isViewingConversation bool) error {
	err := e.transport.MarkRead(ctx, messageID, isViewingConversation)
	e.metrics.receipt("read", err)
	if err != nil {
		return fmt.Errorf("mark %s read: %w", messageID, err)
	}

	now := e.now()
	e.mu.Lock()
	e.readSent[messageID] = true
	e.mu.Unlock()
	e.updateMessage(conversationID, messageID, func(msg *models.Message) {
		msg.ReadAt = &now
		if msg.Status.CanTransition(models.StatusRead) {
			msg.Status = models.StatusRead
		}
	})

	var cached models.Message
	if e.cache.GetJSON(ctx, cache.MessageKey(messageID), &cached) {
		cached.Status = models.StatusRead
		cached.ReadAt = &now
		if err := e.cache.SetJSON(ctx, cache.MessageKey(messageID), cached, cache.TTLMessage); err != nil {
			e.logger.Warn().Err(err).Str("message_id", messageID).Msg("update cached message")
		}
	}
	return nil
}

// MarkDelivered sends a delivery receipt and updates the local copy.
func (e *Engine) MarkDelivered(ctx context.Context, conversationID, messageID string) error {
	err := e.transport.MarkDelivered(ctx, messageID)
	e.metrics.receipt("delivered", err)
	if err != nil {
		return fmt.Errorf("mark %s delivered: %w", messageID, err)
	}

	now := e.now()
	e.updateMessage(conversationID, messageID, func(msg *models.Message) {
		if msg.DeliveredAt == nil {
			msg.DeliveredAt = &now
		}
		if msg.Status.CanTransition(models.StatusDelivered) {
			msg.Status = models.StatusDelivered
		}
	})
	return nil
}

// MarkConversationRead marks every message from the remote party read.
func (e *Engine) MarkConversationRead(ctx context.Context, currentUserID, conversationID string) error {
	if err := e.transport.MarkConversationRead(ctx, conversationID); err != nil {
		return fmt.Errorf("mark conversation %s read: %w", conversationID, err)
	}

	now := e.now()
	e.mu.Lock()
	if t, ok := e.threads[conversationID]; ok {
		for id, msg := range t.messages {
			if msg.SenderID == currentUserID || msg.IsPlaceholder() {
				continue
			}
			if msg.ReadAt == nil {
				msg.ReadAt = &now
			}
			msg.Status = models.Later(msg.Status, models.StatusRead)
			e.readSent[id] = true
		}
	}
	e.mu.Unlock()
	return nil
}

// ClearConversation clears the caller's history on the server and drops
// every confirmed message locally. Unconfirmed placeholders stay.
func (e *Engine) ClearConversation(ctx context.Context, conversationID string) error {
	if err := e.transport.ClearConversation(ctx, conversationID); err != nil {
		return fmt.Errorf("clear conversation %s: %w", conversationID, err)
	}

	e.mu.Lock()
	if t, ok := e.threads[conversationID]; ok {
		for id, msg := range t.messages {
			if !msg.IsPlaceholder() {
				delete(t.messages, id)
			}
		}
	}
	e.mu.Unlock()

	e.cache.DeletePrefix(ctx, cache.MessagesPrefix(conversationID))
	return nil
}

// SetTyping publishes the caller's typing state in the background. It is a
// no-op while offline. Debouncing is the caller's job.
func (e *Engine) SetTyping(ctx context.Context, conversationID string, isTyping bool) {
	if !e.IsOnline() {
		return
	}
	e.goAsync(func(engineCtx context.Context) {
		if err := e.transport.SetTyping(engineCtx, conversationID, isTyping); err != nil {
			e.logger.Debug().Err(err).Str("conversation_id", conversationID).Msg("typing signal failed")
		}
	})
}

// GetTypingUsers lists who else is typing. Failures yield an empty list.
func (e *Engine) GetTypingUsers(ctx context.Context, currentUserID, conversationID string) []models.TypingUser {
	users, err := e.transport.TypingUsers(ctx, conversationID)
	if err != nil {
		e.logger.Debug().Err(err).Str("conversation_id", conversationID).Msg("typing users failed")
		return []models.TypingUser{}
	}

	others := make([]models.TypingUser, 0, len(users))
	for _, user := range users {
		if user.UserID != currentUserID {
			others = append(others, user)
		}
	}
	return others
}

// MessageRequests lists pending first-contact requests for the caller.
func (e *Engine) MessageRequests(ctx context.Context, currentUserID string, limit int) ([]models.MessageRequest, error) {
	if limit <= 0 {
		limit = 20
	}
	requests, err := e.transport.MessageRequests(ctx, currentUserID, limit)
	if err != nil {
		e.logger.Warn().Err(err).Msg("list message requests failed")
		return []models.MessageRequest{}, err
	}
	return requests, nil
}

// RespondMessageRequest accepts or declines a message request.
func (e *Engine) RespondMessageRequest(ctx context.Context, requestID string, accept bool) error {
	action := RequestDecline
	if accept {
		action = RequestAccept
	}
	if err := e.transport.RespondMessageRequest(ctx, requestID, action); err != nil {
		return fmt.Errorf("%s message request %s: %w", action, requestID, err)
	}
	return nil
}

func (e *Engine) updateMessage(conversationID, messageID string, fn func(*models.Message)) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.threads[conversationID]
	if !ok {
		return false
	}
	msg, ok := t.get(messageID)
	if !ok {
		return false
	}
	fn(msg)
	return true
}
