package messaging

import "errors"

var (
	// ErrEmptyMessage rejects a send with no text and no media.
	ErrEmptyMessage = errors.New("message has no content and no media")
	// ErrInvalidRequest wraps field validation failures.
	ErrInvalidRequest = errors.New("invalid send request")
	// ErrUpload aborts a send whose attachments could not be uploaded.
	ErrUpload = errors.New("media upload failed")
	// ErrFetchFailed marks an empty page that stands for "unknown", not "no messages".
	ErrFetchFailed = errors.New("fetch messages failed")
	// ErrUnknownMessage is returned when an ID is not in local state.
	ErrUnknownMessage = errors.New("unknown message")
	// ErrSendInFlight rejects deleting a placeholder whose send has not settled.
	ErrSendInFlight = errors.New("send still in flight")
	// ErrOffline is returned by operations that need connectivity.
	ErrOffline = errors.New("engine is offline")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("engine is closed")
)
