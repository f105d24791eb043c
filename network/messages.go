package network

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"buchat/models"
)

// SendMessage posts a new message and returns the server copy.
func (c *Client) SendMessage(ctx context.Context, request models.SendMessageRequest) (models.Message, error) {
	if request.MessageType == "" {
		request.MessageType = models.MessageTypeText
	}
	if request.Media == nil {
		request.Media = []models.Media{}
	}

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/messages", nil, request, &raw); err != nil {
		return models.Message{}, err
	}
	return decodeMessageEnvelope(raw)
}

// ListMessages returns one page of a conversation, newest page first.
func (c *Client) ListMessages(ctx context.Context, conversationID string, limit int, lastKey string) (models.MessagePage, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	if lastKey != "" {
		query.Set("lastKey", lastKey)
	}

	var page models.MessagePage
	path := "/conversations/" + pathSegment(conversationID) + "/messages"
	if err := c.do(ctx, http.MethodGet, path, query, nil, &page); err != nil {
		return models.MessagePage{}, err
	}
	if page.Messages == nil {
		page.Messages = []models.Message{}
	}
	return page, nil
}

// ListConversations returns the caller's conversations.
func (c *Client) ListConversations(ctx context.Context, limit int) ([]models.Conversation, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))

	var body struct {
		Conversations []models.Conversation `json:"conversations"`
	}
	if err := c.do(ctx, http.MethodGet, "/conversations", query, nil, &body); err != nil {
		return nil, err
	}
	if body.Conversations == nil {
		body.Conversations = []models.Conversation{}
	}
	return body.Conversations, nil
}

// MarkRead sends a read receipt for one message.
func (c *Client) MarkRead(ctx context.Context, messageID string, isViewingConversation bool) error {
	body := map[string]bool{"isViewingConversation": isViewingConversation}
	return c.do(ctx, http.MethodPut, "/messages/"+pathSegment(messageID)+"/read", nil, body, nil)
}

// MarkDelivered sends a delivery receipt for one message.
func (c *Client) MarkDelivered(ctx context.Context, messageID string) error {
	return c.do(ctx, http.MethodPut, "/messages/"+pathSegment(messageID)+"/delivered", nil, nil, nil)
}

// DeleteMessage deletes a message for the caller or, when forEveryone, for both sides.
func (c *Client) DeleteMessage(ctx context.Context, messageID string, forEveryone bool) error {
	body := map[string]bool{"deleteForEveryone": forEveryone}
	return c.do(ctx, http.MethodDelete, "/messages/"+pathSegment(messageID), nil, body, nil)
}

// EditMessage replaces the text of a message and returns the server copy.
func (c *Client) EditMessage(ctx context.Context, messageID, content string) (models.Message, error) {
	var raw json.RawMessage
	body := map[string]string{"content": content}
	if err := c.do(ctx, http.MethodPut, "/messages/"+pathSegment(messageID), nil, body, &raw); err != nil {
		return models.Message{}, err
	}
	return decodeMessageEnvelope(raw)
}

// AddReaction adds emoji to a message.
func (c *Client) AddReaction(ctx context.Context, messageID, emoji string) error {
	body := map[string]string{"emoji": emoji}
	return c.do(ctx, http.MethodPost, "/messages/"+pathSegment(messageID)+"/reactions", nil, body, nil)
}

// RemoveReaction removes emoji from a message.
func (c *Client) RemoveReaction(ctx context.Context, messageID, emoji string) error {
	query := url.Values{}
	query.Set("emoji", emoji)
	return c.do(ctx, http.MethodDelete, "/messages/"+pathSegment(messageID)+"/reactions", query, nil, nil)
}

// MarkConversationRead marks every message in a conversation read.
func (c *Client) MarkConversationRead(ctx context.Context, conversationID string) error {
	return c.do(ctx, http.MethodPut, "/messages/conversations/"+pathSegment(conversationID)+"/read", nil, nil, nil)
}

// ClearConversation removes the caller's copy of a conversation history.
func (c *Client) ClearConversation(ctx context.Context, conversationID string) error {
	return c.do(ctx, http.MethodDelete, "/messages/conversations/"+pathSegment(conversationID)+"/clear", nil, nil, nil)
}

// decodeMessageEnvelope accepts both {"message": {...}} and a bare message.
func decodeMessageEnvelope(raw json.RawMessage) (models.Message, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return models.Message{}, errors.New("empty message response")
	}

	var envelope struct {
		Message *models.Message `json:"message"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return models.Message{}, fmt.Errorf("decode message response: %w", err)
	}
	if envelope.Message != nil {
		return *envelope.Message, nil
	}

	var message models.Message
	if err := json.Unmarshal(raw, &message); err != nil {
		return models.Message{}, fmt.Errorf("decode message response: %w", err)
	}
	if message.MessageID == "" {
		return models.Message{}, errors.New("message response has no messageId")
	}
	return message, nil
}
