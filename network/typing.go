package network

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"buchat/models"
)

// TypingUsers lists who is currently typing in a conversation.
func (c *Client) TypingUsers(ctx context.Context, conversationID string) ([]models.TypingUser, error) {
	var body struct {
		TypingUsers []models.TypingUser `json:"typingUsers"`
	}
	path := "/conversations/" + pathSegment(conversationID) + "/typing"
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &body); err != nil {
		return nil, err
	}
	if body.TypingUsers == nil {
		body.TypingUsers = []models.TypingUser{}
	}
	return body.TypingUsers, nil
}

// SetTyping publishes the caller's typing state.
func (c *Client) SetTyping(ctx context.Context, conversationID string, isTyping bool) error {
	body := map[string]bool{"isTyping": isTyping}
	path := "/conversations/" + pathSegment(conversationID) + "/typing"
	return c.do(ctx, http.MethodPost, path, nil, body, nil)
}

// MessageRequests lists pending first-contact requests addressed to userID.
func (c *Client) MessageRequests(ctx context.Context, userID string, limit int) ([]models.MessageRequest, error) {
	query := url.Values{}
	query.Set("userId", userID)
	query.Set("limit", strconv.Itoa(limit))

	var body struct {
		Requests []models.MessageRequest `json:"requests"`
	}
	if err := c.do(ctx, http.MethodGet, "/messages/requests", query, nil, &body); err != nil {
		return nil, err
	}
	if body.Requests == nil {
		body.Requests = []models.MessageRequest{}
	}
	return body.Requests, nil
}

// RespondMessageRequest accepts or declines a message request.
func (c *Client) RespondMessageRequest(ctx context.Context, requestID, action string) error {
	body := map[string]string{"action": action}
	return c.do(ctx, http.MethodPut, "/messages/requests/"+pathSegment(requestID), nil, body, nil)
}
