package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewUpload inserts a new item for an uploaded audio file. The content hash
// serves as a fallback lookup key when the audio path later goes stale.
func (s *Store) NewUpload(ctx context.Context, audioPath, contentHash string) (*Item, error) {
	if strings.TrimSpace(audioPath) == "" && strings.TrimSpace(contentHash) == "" {
		return nil, errors.New("upload requires an audio path or content hash")
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin insert: %w", err)
	}
	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO queue_items (
            id, title, status, audio_path, content_hash, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id,
		inferTitleFromPath(audioPath),
		StatusUploaded,
		nullableString(audioPath),
		nullableString(contentHash),
		timestamp,
		timestamp,
	); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("insert upload: %w", err)
	}
	if err := appendHistory(ctx, tx, id, "", StatusUploaded, now); err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit insert: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a queue item by its full identifier. A missing item
// returns (nil, nil).
func (s *Store) GetByID(ctx context.Context, id string) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM queue_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// FindByIDPrefix resolves a full identifier or an unambiguous prefix.
// A missing item returns (nil, nil); multiple matches return ErrAmbiguousID.
func (s *Store) FindByIDPrefix(ctx context.Context, prefix string) (*Item, error) {
	trimmed := strings.TrimSpace(prefix)
	if trimmed == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+itemColumns+` FROM queue_items WHERE id LIKE ? ORDER BY id LIMIT 2`,
		trimmed+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("find by prefix: %w", err)
	}
	defer rows.Close()

	var matches []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return matches[0], nil
	default:
		// An exact id that is also a prefix of another id still wins.
		if matches[0].ID == trimmed {
			return matches[0], nil
		}
		return nil, ErrAmbiguousID
	}
}

// FindByHash returns the first item recorded with a content hash.
func (s *Store) FindByHash(ctx context.Context, hash string) (*Item, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+itemColumns+` FROM queue_items WHERE content_hash = ? ORDER BY created_at LIMIT 1`,
		hash,
	)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by hash: %w", err)
	}
	return item, nil
}

// List returns queue items filtered by status set (or all items when no
// status is provided), oldest first.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Item, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + itemColumns + ` FROM queue_items`
	orderClause := ` ORDER BY created_at`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list queue items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// NextUploaded returns the oldest item waiting for processing, or nil.
func (s *Store) NextUploaded(ctx context.Context) (*Item, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+itemColumns+` FROM queue_items WHERE status = ? ORDER BY created_at LIMIT 1`,
		StatusUploaded,
	)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next uploaded: %w", err)
	}
	return item, nil
}

// RecentlyConcluded returns items whose status changed after the cutoff and
// that are no longer pending or processing, most recent first, capped.
func (s *Store) RecentlyConcluded(ctx context.Context, cutoff time.Time, limit int) ([]*Item, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+itemColumns+` FROM queue_items
         WHERE status NOT IN (?, ?) AND updated_at >= ?
         ORDER BY updated_at DESC LIMIT ?`,
		StatusUploaded,
		StatusTranscribing,
		cutoff.UTC().Format(time.RFC3339Nano),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recently concluded: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// History returns an item's status transitions in append order.
func (s *Store) History(ctx context.Context, id string) ([]Transition, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT from_status, to_status, changed_at FROM item_history WHERE item_id = ? ORDER BY seq`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("item history: %w", err)
	}
	defer rows.Close()

	var history []Transition
	for rows.Next() {
		var (
			from, to string
			atRaw    string
		)
		if err := rows.Scan(&from, &to, &atRaw); err != nil {
			return nil, err
		}
		entry := Transition{From: Status(from), To: Status(to)}
		if at, err := parseTimeString(atRaw); err == nil {
			entry.ChangedAt = at
		}
		history = append(history, entry)
	}
	return history, rows.Err()
}

// Remove deletes an item and its history.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM queue_items WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// Stats returns a count of items grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM queue_items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// HealthSummary describes aggregated queue counts per key lifecycle state.
type HealthSummary struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Errored    int `json:"errored"`
	Concluded  int `json:"concluded"`
}

// Health aggregates queue state for the health surface.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusUploaded:
			health.Pending += count
		case StatusTranscribing:
			health.Processing += count
		case StatusError:
			health.Errored += count
		default:
			health.Concluded += count
		}
	}
	return health, nil
}

func inferTitleFromPath(path string) string {
	base := strings.TrimSpace(filepath.Base(path))
	if base == "" || base == "." {
		return "Untitled Upload"
	}
	base = strings.TrimSuffix(base, filepath.Ext(base))
	cleaned := strings.TrimSpace(base)
	if cleaned == "" {
		return "Untitled Upload"
	}
	return cleaned
}
