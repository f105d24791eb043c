package models

import (
	"bytes"
	"encoding/json"
)

// Cursor is an opaque pagination key. The backend may return it either as a
// string or as a JSON object; objects are kept as compact JSON text.
type Cursor string

// UnmarshalJSON accepts strings, objects, and null.
func (c *Cursor) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		*c = ""
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		*c = Cursor(s)
		return nil
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return err
	}
	*c = Cursor(compact.String())
	return nil
}

// MessagePage is one page of a conversation as returned by the backend.
type MessagePage struct {
	Messages []Message `json:"messages"`
	LastKey  Cursor    `json:"lastKey,omitempty"`
}

// SendMessageRequest is the body of POST /messages.
type SendMessageRequest struct {
	RecipientID string  `json:"recipientId"`
	Content     string  `json:"content"`
	MessageType string  `json:"messageType"`
	Media       []Media `json:"media"`
}

// Presign is the backend's answer to an upload reservation.
type Presign struct {
	UploadURL string `json:"uploadUrl"`
	Key       string `json:"s3Key"`
}
