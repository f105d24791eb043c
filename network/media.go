package network

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"buchat/models"
)

// PresignUpload reserves an upload slot for one file.
func (c *Client) PresignUpload(ctx context.Context, filename, contentType string, size int64) (models.Presign, error) {
	body := struct {
		Filename    string `json:"filename"`
		ContentType string `json:"contentType"`
		Size        int64  `json:"size"`
	}{filename, contentType, size}

	var presign models.Presign
	if err := c.do(ctx, http.MethodPost, "/media/presign", nil, body, &presign); err != nil {
		return models.Presign{}, err
	}
	if presign.UploadURL == "" || presign.Key == "" {
		return models.Presign{}, fmt.Errorf("presign response for %q is missing uploadUrl or s3Key", filename)
	}
	return presign, nil
}

// PutObject uploads raw bytes to a presigned URL. No auth header is sent:
// the URL itself carries the grant.
func (c *Client) PutObject(ctx context.Context, uploadURL, contentType string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.ContentLength = int64(len(data))

	resp, err := c.upload.Do(req)
	if err != nil {
		return fmt.Errorf("upload object: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Method: http.MethodPut, Path: "presigned upload", StatusCode: resp.StatusCode}
	}
	return nil
}
