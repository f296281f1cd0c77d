package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by transition helpers when the item is missing.
var ErrNotFound = errors.New("queue item not found")

// MarkTranscribing moves an uploaded item into transcribing. The worker
// calls this before any slow work so a crash leaves an inspectable record.
func (s *Store) MarkTranscribing(ctx context.Context, id string) error {
	return s.transition(ctx, id, StatusTranscribing, func(item *Item) {
		item.ErrorMessage = ""
	})
}

// MarkFailed moves an item into error with the failure message attached.
func (s *Store) MarkFailed(ctx context.Context, id, message string) error {
	return s.transition(ctx, id, StatusError, func(item *Item) {
		item.ErrorMessage = message
	})
}

// ResetToUploaded returns an errored item to the queue for another attempt.
func (s *Store) ResetToUploaded(ctx context.Context, id string) error {
	return s.transition(ctx, id, StatusUploaded, func(item *Item) {
		item.ErrorMessage = ""
	})
}

// Advance applies a user-driven review transition (reviewed, in_progress,
// closed, archived) subject to the state machine.
func (s *Store) Advance(ctx context.Context, id string, to Status) error {
	return s.transition(ctx, id, to, nil)
}

// CompleteProcessing persists the outcome of a successful pipeline run as a
// single atomic update: transcript texts, routing metadata, and the final
// status (initial or enhanced) with its history entry.
func (s *Store) CompleteProcessing(ctx context.Context, id string, final Status, rawText, finalText, metadataJSON string) error {
	if final != StatusInitial && final != StatusEnhanced {
		return fmt.Errorf("complete processing: invalid final status %s", final)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin complete: %w", err)
	}

	item, err := getForUpdate(ctx, tx, id)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := CheckTransition(item.Status, final); err != nil {
		_ = tx.Rollback()
		return err
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(
		ctx,
		`UPDATE queue_items
         SET status = ?, raw_text = ?, final_text = ?, metadata_json = ?,
             error_message = NULL, updated_at = ?
         WHERE id = ?`,
		final,
		nullableString(rawText),
		nullableString(finalText),
		nullableString(metadataJSON),
		now.Format(time.RFC3339Nano),
		id,
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("complete processing: %w", err)
	}
	if err := appendHistory(ctx, tx, id, item.Status, final, now); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit complete: %w", err)
	}
	return nil
}

// transition validates and applies a single status change, appending to the
// item's history inside the same transaction.
func (s *Store) transition(ctx context.Context, id string, to Status, mutate func(*Item)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transition: %w", err)
	}

	item, err := getForUpdate(ctx, tx, id)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := CheckTransition(item.Status, to); err != nil {
		_ = tx.Rollback()
		return err
	}

	from := item.Status
	item.Status = to
	if mutate != nil {
		mutate(item)
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(
		ctx,
		`UPDATE queue_items SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		item.Status,
		nullableString(item.ErrorMessage),
		now.Format(time.RFC3339Nano),
		id,
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("apply transition: %w", err)
	}
	if err := appendHistory(ctx, tx, id, from, to, now); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transition: %w", err)
	}
	return nil
}

func getForUpdate(ctx context.Context, tx *sql.Tx, id string) (*Item, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM queue_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load item for update: %w", err)
	}
	return item, nil
}

func appendHistory(ctx context.Context, tx *sql.Tx, id string, from, to Status, at time.Time) error {
	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO item_history (item_id, from_status, to_status, changed_at) VALUES (?, ?, ?, ?)`,
		id,
		string(from),
		string(to),
		at.Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}
