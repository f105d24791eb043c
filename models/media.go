package models

import "strings"

const (
	MediaTypeImage    = "image"
	MediaTypeVideo    = "video"
	MediaTypeAudio    = "audio"
	MediaTypeDocument = "document"
)

// Media describes an uploaded file attached to a message.
type Media struct {
	Type     string `json:"type" validate:"required,oneof=image video audio document"`
	URL      string `json:"url" validate:"required,url"`
	Name     string `json:"name"`
	Size     int64  `json:"size" validate:"gte=0"`
	MimeType string `json:"mimeType,omitempty"`
	Key      string `json:"key,omitempty"`
}

// Attachment is a local file that still has to be uploaded before sending.
type Attachment struct {
	Name        string `json:"name" validate:"required"`
	ContentType string `json:"contentType"`
	Data        []byte `json:"data" validate:"required"`
}

// Size returns the attachment length in bytes.
func (a Attachment) Size() int64 {
	return int64(len(a.Data))
}

// MediaTypeFor classifies a MIME type the same way the media picker does.
func MediaTypeFor(contentType string) string {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return MediaTypeImage
	case strings.HasPrefix(contentType, "video/"):
		return MediaTypeVideo
	case strings.HasPrefix(contentType, "audio/"):
		return MediaTypeAudio
	default:
		return MediaTypeDocument
	}
}
