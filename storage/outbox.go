package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"buchat/models"
	"buchat/queue"
)

var _ queue.Persister = (*Store)(nil)

// SaveOutboxEntry inserts or replaces one queued outgoing message.
func (s *Store) SaveOutboxEntry(entry queue.Entry, position int64) error {
	if entry.TempID == "" {
		return errors.New("temp_id is required")
	}
	if entry.RecipientID == "" {
		return errors.New("recipient_id is required")
	}
	return s.insertOutboxEntry(s.db, entry, position)
}

// DeleteOutboxEntry removes one queued message by temporary ID.
func (s *Store) DeleteOutboxEntry(tempID string) error {
	if tempID == "" {
		return errors.New("temp_id is required")
	}

	res, err := s.db.Exec(`DELETE FROM outbox WHERE temp_id = ?`, tempID)
	if err != nil {
		return fmt.Errorf("delete outbox entry %q: %w", tempID, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("read rows affected for outbox delete %q: %w", tempID, err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplaceOutbox atomically rewrites the outbox with entries in order.
func (s *Store) ReplaceOutbox(entries []queue.Entry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin outbox transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.Exec(`DELETE FROM outbox`); err != nil {
		return fmt.Errorf("clear outbox: %w", err)
	}
	for i, entry := range entries {
		if err := s.insertOutboxEntry(tx, entry, int64(i+1)); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit outbox transaction: %w", err)
	}
	return nil
}

// LoadOutbox returns every queued message ordered by queue position.
func (s *Store) LoadOutbox() ([]queue.Entry, error) {
	rows, err := s.db.Query(
		`SELECT
			temp_id,
			sender_id,
			recipient_id,
			content,
			message_type,
			media,
			attachments,
			enqueued_at
		FROM outbox
		ORDER BY position ASC, enqueued_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("load outbox: %w", err)
	}
	defer rows.Close()

	entries := make([]queue.Entry, 0)
	for rows.Next() {
		entry, err := scanOutboxEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox rows: %w", err)
	}
	return entries, nil
}

// PruneExpiredOutbox deletes queued messages enqueued before cutoff.
func (s *Store) PruneExpiredOutbox(cutoffTimestamp int64) (int64, error) {
	if cutoffTimestamp <= 0 {
		return 0, errors.New("cutoff timestamp must be > 0")
	}

	res, err := s.db.Exec(`DELETE FROM outbox WHERE enqueued_at < ?`, cutoffTimestamp)
	if err != nil {
		return 0, fmt.Errorf("prune expired outbox: %w", err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("read rows affected for outbox prune: %w", err)
	}
	return rowsAffected, nil
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func (s *Store) insertOutboxEntry(db execer, entry queue.Entry, position int64) error {
	messageType := entry.Options.MessageType
	if messageType == "" {
		messageType = models.MessageTypeText
	}
	enqueuedAt := entry.EnqueuedAt.UnixMilli()
	if entry.EnqueuedAt.IsZero() {
		enqueuedAt = nowUnixMilli()
	}

	media := entry.Options.Media
	if media == nil {
		media = []models.Media{}
	}
	mediaJSON, err := json.Marshal(media)
	if err != nil {
		return fmt.Errorf("encode outbox media %q: %w", entry.TempID, err)
	}
	var attachments []byte
	if len(entry.Options.Attachments) > 0 {
		attachments, err = json.Marshal(entry.Options.Attachments)
		if err != nil {
			return fmt.Errorf("encode outbox attachments %q: %w", entry.TempID, err)
		}
	}

	_, err = db.Exec(
		`INSERT INTO outbox (
			temp_id,
			position,
			sender_id,
			recipient_id,
			content,
			message_type,
			media,
			attachments,
			enqueued_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(temp_id) DO UPDATE SET position = excluded.position`,
		entry.TempID,
		position,
		entry.SenderID,
		entry.RecipientID,
		entry.Content,
		messageType,
		string(mediaJSON),
		nullBytes(attachments),
		enqueuedAt,
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry %q: %w", entry.TempID, err)
	}
	return nil
}

func scanOutboxEntry(row scanner) (*queue.Entry, error) {
	var (
		entry       queue.Entry
		mediaJSON   string
		attachments []byte
		enqueuedAt  sql.NullInt64
	)

	if err := row.Scan(
		&entry.TempID,
		&entry.SenderID,
		&entry.RecipientID,
		&entry.Content,
		&entry.Options.MessageType,
		&mediaJSON,
		&attachments,
		&enqueuedAt,
	); err != nil {
		return nil, err
	}

	if mediaJSON != "" {
		if err := json.Unmarshal([]byte(mediaJSON), &entry.Options.Media); err != nil {
			return nil, fmt.Errorf("decode media: %w", err)
		}
		if len(entry.Options.Media) == 0 {
			entry.Options.Media = nil
		}
	}
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &entry.Options.Attachments); err != nil {
			return nil, fmt.Errorf("decode attachments: %w", err)
		}
	}
	entry.EnqueuedAt = time.UnixMilli(int64OrZero(enqueuedAt))

	return &entry, nil
}
