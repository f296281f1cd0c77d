package api

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"scrivener/internal/config"
	"scrivener/internal/logging"
	"scrivener/internal/queue"
)

// ItemView is the external shape of a queue item. Transcript bodies are
// excluded; they travel through the resource surface instead.
type ItemView struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Status       string    `json:"status"`
	AudioPath    string    `json:"audio_path,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// StatusCounts aggregates the queue for the status tool.
type StatusCounts struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Errored    int `json:"errored"`
	Total      int `json:"total"`
}

// StatusResult partitions the queue for the status tool.
type StatusResult struct {
	Pending           []ItemView   `json:"pending"`
	Processing        []ItemView   `json:"processing"`
	RecentlyConcluded []ItemView   `json:"recently_concluded"`
	Counts            StatusCounts `json:"counts"`
}

// LookupResult carries one item or records its absence.
type LookupResult struct {
	Found     bool               `json:"found"`
	Ambiguous bool               `json:"ambiguous,omitempty"`
	Item      *ItemView          `json:"item,omitempty"`
	History   []queue.Transition `json:"history,omitempty"`
}

// ActionResult reports a retry or cancel outcome. A refused action returns
// OK=false with a reason rather than an error; the caller did nothing wrong
// at the transport level.
type ActionResult struct {
	OK     bool   `json:"ok"`
	ItemID string `json:"item_id,omitempty"`
	Status string `json:"status,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// QueueService applies queue control rules over the store.
type QueueService struct {
	cfg    *config.Config
	store  *queue.Store
	logger *slog.Logger
}

// NewQueueService wires the service.
func NewQueueService(cfg *config.Config, store *queue.Store, logger *slog.Logger) *QueueService {
	return &QueueService{
		cfg:    cfg,
		store:  store,
		logger: logging.WithComponent(logger, "api"),
	}
}

// Status returns pending and processing items plus recently concluded ones
// inside the configured window, capped at the configured limit.
func (s *QueueService) Status(ctx context.Context) (*StatusResult, error) {
	result := &StatusResult{
		Pending:           []ItemView{},
		Processing:        []ItemView{},
		RecentlyConcluded: []ItemView{},
	}

	pending, err := s.store.List(ctx, queue.StatusUploaded)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	for _, item := range pending {
		result.Pending = append(result.Pending, viewOf(item))
	}

	processing, err := s.store.List(ctx, queue.StatusTranscribing)
	if err != nil {
		return nil, fmt.Errorf("list processing: %w", err)
	}
	for _, item := range processing {
		result.Processing = append(result.Processing, viewOf(item))
	}

	window := time.Duration(s.cfg.Workflow.RecentWindowMinutes) * time.Minute
	concluded, err := s.store.RecentlyConcluded(ctx, time.Now().Add(-window), s.cfg.Workflow.RecentLimit)
	if err != nil {
		return nil, fmt.Errorf("list concluded: %w", err)
	}
	for _, item := range concluded {
		result.RecentlyConcluded = append(result.RecentlyConcluded, viewOf(item))
	}

	health, err := s.store.Health(ctx)
	if err != nil {
		return nil, fmt.Errorf("queue health: %w", err)
	}
	result.Counts = StatusCounts{
		Pending:    health.Pending,
		Processing: health.Processing,
		Errored:    health.Errored,
		Total:      health.Total,
	}
	return result, nil
}

// Lookup resolves an item by full id or unambiguous prefix, including its
// status history. A missing item is a result, not an error.
func (s *QueueService) Lookup(ctx context.Context, idOrPrefix string) (*LookupResult, error) {
	item, err := s.store.FindByIDPrefix(ctx, idOrPrefix)
	if err == queue.ErrAmbiguousID {
		return &LookupResult{Ambiguous: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup %q: %w", idOrPrefix, err)
	}
	if item == nil {
		return &LookupResult{}, nil
	}

	history, err := s.store.History(ctx, item.ID)
	if err != nil {
		return nil, fmt.Errorf("history for %s: %w", item.ID, err)
	}
	view := viewOf(item)
	return &LookupResult{Found: true, Item: &view, History: history}, nil
}

// Retry returns an errored item to the queue. Any other starting status is
// refused with a reason.
func (s *QueueService) Retry(ctx context.Context, idOrPrefix string) (*ActionResult, error) {
	item, result, err := s.resolve(ctx, idOrPrefix)
	if item == nil {
		return result, err
	}
	if item.Status != queue.StatusError {
		return refused(item, fmt.Sprintf("retry requires status %s, item is %s", queue.StatusError, item.Status)), nil
	}

	if err := s.store.ResetToUploaded(ctx, item.ID); err != nil {
		return nil, fmt.Errorf("retry %s: %w", item.ID, err)
	}
	s.logger.Info("item requeued", logging.String(logging.FieldItemID, item.ID))
	return &ActionResult{OK: true, ItemID: item.ID, Status: string(queue.StatusUploaded)}, nil
}

// Cancel aborts a pending or in-flight item. A soft cancel parks it in
// error with a standard reason; a hard cancel deletes it outright. An item
// already past transcribing is refused. A cancelled in-flight item is not
// interrupted; its pipeline output is discarded at completion time.
func (s *QueueService) Cancel(ctx context.Context, idOrPrefix string, hard bool) (*ActionResult, error) {
	item, result, err := s.resolve(ctx, idOrPrefix)
	if item == nil {
		return result, err
	}
	if item.Status != queue.StatusUploaded && item.Status != queue.StatusTranscribing {
		return refused(item, fmt.Sprintf("cancel requires a pending or processing item, item is %s", item.Status)), nil
	}

	if hard {
		if _, err := s.store.Remove(ctx, item.ID); err != nil {
			return nil, fmt.Errorf("remove %s: %w", item.ID, err)
		}
		s.logger.Info("item removed", logging.String(logging.FieldItemID, item.ID))
		return &ActionResult{OK: true, ItemID: item.ID, Status: "removed"}, nil
	}

	if err := s.store.MarkFailed(ctx, item.ID, queue.CancelReason); err != nil {
		return nil, fmt.Errorf("cancel %s: %w", item.ID, err)
	}
	s.logger.Info("item cancelled", logging.String(logging.FieldItemID, item.ID))
	return &ActionResult{OK: true, ItemID: item.ID, Status: string(queue.StatusError)}, nil
}

// Advance applies an explicit review transition (reviewed, in_progress,
// closed, archived) requested through the transcript review tool.
func (s *QueueService) Advance(ctx context.Context, idOrPrefix string, to queue.Status) (*ActionResult, error) {
	item, result, err := s.resolve(ctx, idOrPrefix)
	if item == nil {
		return result, err
	}
	if !queue.CanTransition(item.Status, to) {
		return refused(item, fmt.Sprintf("cannot move %s item to %s", item.Status, to)), nil
	}
	if err := s.store.Advance(ctx, item.ID, to); err != nil {
		return nil, fmt.Errorf("advance %s: %w", item.ID, err)
	}
	s.logger.Info("item advanced",
		logging.String(logging.FieldItemID, item.ID),
		logging.String(logging.FieldStatus, string(to)))
	return &ActionResult{OK: true, ItemID: item.ID, Status: string(to)}, nil
}

func (s *QueueService) resolve(ctx context.Context, idOrPrefix string) (*queue.Item, *ActionResult, error) {
	item, err := s.store.FindByIDPrefix(ctx, idOrPrefix)
	if err == queue.ErrAmbiguousID {
		return nil, &ActionResult{OK: false, Reason: fmt.Sprintf("id prefix %q is ambiguous", idOrPrefix)}, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("resolve %q: %w", idOrPrefix, err)
	}
	if item == nil {
		return nil, &ActionResult{OK: false, Reason: fmt.Sprintf("no item matches %q", idOrPrefix)}, nil
	}
	return item, nil, nil
}

func refused(item *queue.Item, reason string) *ActionResult {
	return &ActionResult{OK: false, ItemID: item.ID, Status: string(item.Status), Reason: reason}
}

func viewOf(item *queue.Item) ItemView {
	return ItemView{
		ID:           item.ID,
		Title:        item.Title,
		Status:       string(item.Status),
		AudioPath:    item.AudioPath,
		ErrorMessage: item.ErrorMessage,
		CreatedAt:    item.CreatedAt,
		UpdatedAt:    item.UpdatedAt,
	}
}
