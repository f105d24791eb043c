package messaging

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"

	"buchat/cache"
	"buchat/models"
	"buchat/network"
	"buchat/queue"
)

const defaultContentType = "application/octet-stream"

// SendOptions carries optional send parameters. Media is already uploaded;
// Attachments are uploaded by the engine before the message is posted.
type SendOptions struct {
	MessageType string
	Media       []models.Media
	Attachments []models.Attachment
}

type sendInput struct {
	SenderID    string              `validate:"required"`
	RecipientID string              `validate:"required"`
	Media       []models.Media      `validate:"dive"`
	Attachments []models.Attachment `validate:"dive"`
}

// Outgoing tracks one optimistic send. Placeholder is the entry inserted
// into the thread when Send returned.
type Outgoing struct {
	Placeholder models.Message

	done   chan struct{}
	result models.Message
	err    error
}

func newOutgoing(placeholder models.Message) *Outgoing {
	return &Outgoing{Placeholder: placeholder, done: make(chan struct{})}
}

func completedOutgoing(placeholder models.Message) *Outgoing {
	out := newOutgoing(placeholder)
	out.complete(placeholder, nil)
	return out
}

func (o *Outgoing) complete(result models.Message, err error) {
	o.result = result
	o.err = err
	close(o.done)
}

// Done is closed once the send has settled as sent, failed, or queued.
func (o *Outgoing) Done() <-chan struct{} {
	return o.done
}

// Wait blocks until the send settles and returns the final message. A
// transport failure is not an error here: the message comes back with
// status failed. Only ctx cancellation returns an error.
func (o *Outgoing) Wait(ctx context.Context) (models.Message, error) {
	select {
	case <-o.done:
		return o.result, nil
	case <-ctx.Done():
		return o.Placeholder, ctx.Err()
	}
}

// Err returns the delivery error after Done is closed.
func (o *Outgoing) Err() error {
	select {
	case <-o.done:
		return o.err
	default:
		return nil
	}
}

// Send posts a message optimistically. Offline, the message is queued and a
// queued placeholder is returned already settled. Online, attachments are
// uploaded first; an upload failure aborts the send with ErrUpload before
// any placeholder exists. Otherwise a sending placeholder is inserted and the
// post completes in the background.
func (e *Engine) Send(ctx context.Context, currentUserID, recipientID, content string, options SendOptions) (*Outgoing, error) {
	if strings.TrimSpace(content) == "" && len(options.Media) == 0 && len(options.Attachments) == 0 {
		return nil, ErrEmptyMessage
	}
	input := sendInput{
		SenderID:    currentUserID,
		RecipientID: recipientID,
		Media:       options.Media,
		Attachments: options.Attachments,
	}
	if err := e.validate.Struct(input); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	entry := queue.Entry{
		TempID:      models.NewTemporaryID(e.now()),
		SenderID:    currentUserID,
		RecipientID: recipientID,
		Content:     content,
		Options: queue.Options{
			MessageType: options.MessageType,
			Media:       append([]models.Media(nil), options.Media...),
			Attachments: options.Attachments,
		},
		EnqueuedAt: e.now(),
	}

	if !e.IsOnline() {
		e.queue.Enqueue(entry)
		placeholder := placeholderFor(entry, models.StatusQueued, entry.Options.Media)
		e.insertPlaceholder(placeholder)
		e.metrics.send(outcomeQueued)
		e.metrics.setQueueDepth(e.queue.Len())
		e.logger.Debug().Str("temp_id", entry.TempID).Msg("offline, message queued")
		return completedOutgoing(placeholder), nil
	}

	uploaded, err := e.uploadAttachments(ctx, options.Attachments)
	if err != nil {
		e.metrics.send(outcomeUpload)
		return nil, fmt.Errorf("%w: %w", ErrUpload, err)
	}
	media := append(entry.Options.Media, uploaded...)
	entry.Options.Attachments = nil

	placeholder := placeholderFor(entry, models.StatusSending, media)
	e.insertPlaceholder(placeholder)
	return e.startDelivery(placeholder), nil
}

// Retry re-sends a failed placeholder. It moves back to sending and settles
// like a fresh Send.
func (e *Engine) Retry(ctx context.Context, conversationID, tempID string) (*Outgoing, error) {
	if !e.IsOnline() {
		return nil, ErrOffline
	}

	e.mu.Lock()
	t, ok := e.threads[conversationID]
	var msg *models.Message
	if ok {
		msg, ok = t.get(tempID)
	}
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("retry %s: %w", tempID, ErrUnknownMessage)
	}
	if msg.Status != models.StatusFailed {
		status := msg.Status
		e.mu.Unlock()
		return nil, fmt.Errorf("retry %s: message is %s, not failed", tempID, status)
	}
	msg.Status = models.StatusSending
	placeholder := msg.Clone()
	e.mu.Unlock()

	e.logger.Debug().Str("temp_id", tempID).Msg("retrying failed message")
	return e.startDelivery(placeholder), nil
}

// DrainQueue replays the offline queue in order. Each success replaces its
// queued placeholder with the server copy; each failure leaves the
// placeholder queued and keeps the entry for the next drain.
func (e *Engine) DrainQueue(ctx context.Context) queue.DrainResult {
	if !e.IsOnline() {
		return queue.DrainResult{}
	}

	result := e.queue.Drain(ctx, func(ctx context.Context, entry queue.Entry) error {
		conversationID := models.ConversationID(entry.SenderID, entry.RecipientID)
		if !e.hasMessage(conversationID, entry.TempID) {
			e.logger.Debug().Str("temp_id", entry.TempID).Msg("queued message deleted locally, dropping")
			return nil
		}

		uploaded, err := e.uploadAttachments(ctx, entry.Options.Attachments)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrUpload, err)
		}
		media := append(append([]models.Media(nil), entry.Options.Media...), uploaded...)

		confirmed, err := e.transport.SendMessage(ctx, sendRequest(entry.RecipientID, entry.Content, entry.Options.MessageType, media))
		if err != nil {
			return err
		}
		e.confirm(ctx, conversationID, entry.TempID, confirmed)
		return nil
	})

	for range result.Sent {
		e.metrics.send(outcomeReplayed)
	}
	for range result.Requeued {
		e.metrics.send(outcomeRequeued)
	}
	e.metrics.setQueueDepth(e.queue.Len())

	if len(result.Sent) > 0 || len(result.Requeued) > 0 {
		e.logger.Info().
			Int("sent", len(result.Sent)).
			Int("requeued", len(result.Requeued)).
			Msg("offline queue drained")
	}
	return result
}

func (e *Engine) startDelivery(placeholder models.Message) *Outgoing {
	out := newOutgoing(placeholder)
	request := sendRequest(placeholder.RecipientID, placeholder.Content, placeholder.MessageType, placeholder.Media)

	started := e.goAsync(func(ctx context.Context) {
		result, err := e.deliver(ctx, placeholder, request)
		out.complete(result, err)
	})
	if !started {
		failed, _ := e.setStatus(placeholder.ConversationID, placeholder.MessageID, models.StatusFailed)
		out.complete(failed, ErrClosed)
	}
	return out
}

func (e *Engine) deliver(ctx context.Context, placeholder models.Message, request models.SendMessageRequest) (models.Message, error) {
	confirmed, err := e.transport.SendMessage(ctx, request)
	if err != nil {
		e.metrics.send(outcomeFailed)
		e.logger.Warn().
			Err(err).
			Str("temp_id", placeholder.MessageID).
			Bool("retryable", network.IsRetryable(err)).
			Msg("send failed")

		failed, ok := e.setStatus(placeholder.ConversationID, placeholder.MessageID, models.StatusFailed)
		if !ok {
			failed = placeholder
			failed.Status = models.StatusFailed
		}
		return failed, err
	}

	e.metrics.send(outcomeSent)
	return e.confirm(ctx, placeholder.ConversationID, placeholder.MessageID, confirmed), nil
}

// confirm swaps the placeholder for the server copy and refreshes the cache.
func (e *Engine) confirm(ctx context.Context, conversationID, tempID string, confirmed models.Message) models.Message {
	if confirmed.ConversationID == "" {
		confirmed.ConversationID = conversationID
	}
	if !confirmed.Status.Confirmed() {
		confirmed.Status = models.StatusSent
	}
	if confirmed.CreatedAt.IsZero() {
		confirmed.CreatedAt = e.now()
	}

	if !e.replacePlaceholder(conversationID, tempID, confirmed) {
		e.logger.Debug().Str("temp_id", tempID).Msg("placeholder deleted before confirmation")
	}

	if err := e.cache.SetJSON(ctx, cache.MessageKey(confirmed.MessageID), confirmed, cache.TTLMessage); err != nil {
		e.logger.Warn().Err(err).Str("message_id", confirmed.MessageID).Msg("cache confirmed message")
	}
	e.cache.DeletePrefix(ctx, cache.MessagesPrefix(conversationID))
	return confirmed
}

func (e *Engine) uploadAttachments(ctx context.Context, attachments []models.Attachment) ([]models.Media, error) {
	if len(attachments) == 0 {
		return nil, nil
	}

	media := make([]models.Media, len(attachments))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, attachment := range attachments {
		group.Go(func() error {
			uploaded, err := e.uploadOne(groupCtx, attachment)
			if err != nil {
				return fmt.Errorf("upload %q: %w", attachment.Name, err)
			}
			media[i] = uploaded
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return media, nil
}

func (e *Engine) uploadOne(ctx context.Context, attachment models.Attachment) (models.Media, error) {
	contentType := attachment.ContentType
	if contentType == "" {
		contentType = defaultContentType
	}

	presign, err := e.transport.PresignUpload(ctx, attachment.Name, contentType, attachment.Size())
	if err != nil {
		return models.Media{}, err
	}
	if err := e.transport.PutObject(ctx, presign.UploadURL, contentType, attachment.Data); err != nil {
		return models.Media{}, err
	}

	return models.Media{
		Type:     models.MediaTypeFor(contentType),
		URL:      e.mediaURL(presign),
		Name:     attachment.Name,
		Size:     attachment.Size(),
		MimeType: contentType,
		Key:      presign.Key,
	}, nil
}

// mediaURL builds the public URL of an uploaded object. Without a media
// base URL the presigned URL minus its signature query is used.
func (e *Engine) mediaURL(presign models.Presign) string {
	if e.options.MediaBaseURL != "" {
		return e.options.MediaBaseURL + "/" + strings.TrimLeft(presign.Key, "/")
	}
	parsed, err := url.Parse(presign.UploadURL)
	if err != nil {
		return presign.UploadURL
	}
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return parsed.String()
}

func placeholderFor(entry queue.Entry, status models.Status, media []models.Media) models.Message {
	all := append([]models.Media(nil), media...)
	for _, attachment := range entry.Options.Attachments {
		all = append(all, models.Media{
			Type:     models.MediaTypeFor(attachment.ContentType),
			Name:     attachment.Name,
			Size:     attachment.Size(),
			MimeType: attachment.ContentType,
		})
	}

	return models.Message{
		MessageID:      entry.TempID,
		ConversationID: models.ConversationID(entry.SenderID, entry.RecipientID),
		SenderID:       entry.SenderID,
		RecipientID:    entry.RecipientID,
		Content:        entry.Content,
		MessageType:    messageTypeFor(entry.Options.MessageType, all),
		Media:          all,
		Status:         status,
		CreatedAt:      entry.EnqueuedAt,
	}
}

func sendRequest(recipientID, content, messageType string, media []models.Media) models.SendMessageRequest {
	return models.SendMessageRequest{
		RecipientID: recipientID,
		Content:     content,
		MessageType: messageTypeFor(messageType, media),
		Media:       append([]models.Media{}, media...),
	}
}

func messageTypeFor(requested string, media []models.Media) string {
	if requested != "" {
		return requested
	}
	if len(media) > 0 && media[0].Type != "" {
		return media[0].Type
	}
	return models.MessageTypeText
}
