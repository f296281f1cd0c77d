package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"scrivener/internal/fileutil"
	"scrivener/internal/logging"
	"scrivener/internal/pipeline"
	"scrivener/internal/queue"
	"scrivener/internal/textdiff"
)

func (s *Scanner) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		if ctx.Err() != nil {
			return
		}

		item, err := s.store.NextUploaded(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Error("queue poll failed", logging.Error(err))
			s.sleep(ctx)
			continue
		}
		if item == nil {
			s.sleep(ctx)
			continue
		}

		// The item runs to completion on its own context so a Stop between
		// polls never abandons half-finished work.
		s.processItem(context.Background(), item)
	}
}

func (s *Scanner) sleep(ctx context.Context) {
	timer := time.NewTimer(s.pollInterval())
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (s *Scanner) processItem(ctx context.Context, item *queue.Item) {
	logger := s.logger.With(logging.String(logging.FieldItemID, item.ID))

	if err := s.store.MarkTranscribing(ctx, item.ID); err != nil {
		// Usually a concurrent cancel; the item is no longer ours.
		logger.Warn("claim failed", logging.Error(err))
		return
	}
	s.setPhase(item.ID, "transcribing")
	s.logItemEvent(item.ID, "status", string(queue.StatusTranscribing))

	audioPath, err := s.resolveAudioPath(item)
	if err != nil {
		s.fail(ctx, logger, item.ID, err)
		return
	}

	callbacks := pipeline.Callbacks{
		OnPhase: func(phase string) {
			s.setPhase(item.ID, phase)
			s.logItemEvent(item.ID, "phase", phase)
		},
		OnToolStart: func(tool string) {
			s.logItemEvent(item.ID, "tool_start", tool)
		},
		OnToolDone: func(tool string, err error) {
			detail := tool
			if err != nil {
				detail = fmt.Sprintf("%s: %v", tool, err)
			}
			s.logItemEvent(item.ID, "tool_done", detail)
		},
	}

	result, err := s.engine.Process(ctx, audioPath, item.CreatedAt, item.ContentHash, callbacks)
	if err != nil {
		s.fail(ctx, logger, item.ID, err)
		return
	}

	final := queue.StatusInitial
	finalText := result.RawText
	if textdiff.MateriallyChanged(result.RawText, result.EnhancedText) {
		final = queue.StatusEnhanced
		finalText = result.EnhancedText
	}

	metadata, err := json.Marshal(map[string]any{
		"routing":            result.Routing,
		"confidence":         result.Confidence,
		"entities":           result.Entities,
		"tools_used":         result.ToolsUsed,
		"processing_time_ms": result.ProcessingTime.Milliseconds(),
	})
	if err != nil {
		s.fail(ctx, logger, item.ID, fmt.Errorf("encode metadata: %w", err))
		return
	}

	if err := s.store.CompleteProcessing(ctx, item.ID, final, result.RawText, finalText, string(metadata)); err != nil {
		var illegal *queue.IllegalTransitionError
		if errors.As(err, &illegal) {
			// The item left transcribing underneath us (cancelled); the
			// pipeline output is discarded rather than forced over it.
			logger.Warn("completion superseded", logging.Error(err))
			return
		}
		logger.Error("completion failed", logging.Error(err))
		s.fail(ctx, logger, item.ID, err)
		return
	}
	s.logItemEvent(item.ID, "status", string(final))

	s.writeTranscript(logger, item.ID, finalText)
	s.observeEntities(result.Entities)

	logger.Info("item processed",
		logging.String(logging.FieldStatus, string(final)),
		logging.Duration("elapsed", result.ProcessingTime))
	s.recordOutcome(item.ID, false)
}

func (s *Scanner) fail(ctx context.Context, logger *slog.Logger, itemID string, cause error) {
	logger.Error("item failed", logging.Error(cause))
	s.logItemEvent(itemID, "error", cause.Error())
	if err := s.store.MarkFailed(ctx, itemID, cause.Error()); err != nil {
		logger.Error("record failure", logging.Error(err))
	}
	s.recordOutcome(itemID, true)
}

// resolveAudioPath returns the item's audio file, falling back to a content
// hash scan of the upload directory when the recorded path went stale.
func (s *Scanner) resolveAudioPath(item *queue.Item) (string, error) {
	if item.AudioPath != "" {
		if _, err := os.Stat(item.AudioPath); err == nil {
			return item.AudioPath, nil
		}
	}
	if item.ContentHash == "" {
		return "", fmt.Errorf("audio file missing: %s", item.AudioPath)
	}

	entries, err := os.ReadDir(s.cfg.UploadDir)
	if err != nil {
		return "", fmt.Errorf("scan upload directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		candidate := filepath.Join(s.cfg.UploadDir, entry.Name())
		hash, err := fileutil.HashFile(candidate)
		if err != nil {
			continue
		}
		if hash == item.ContentHash {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no upload matches content hash %s", item.ContentHash)
}

func (s *Scanner) writeTranscript(logger *slog.Logger, itemID, text string) {
	if strings.TrimSpace(text) == "" || s.cfg.TranscriptDir == "" {
		return
	}
	path := filepath.Join(s.cfg.TranscriptDir, itemID+".md")
	if err := os.MkdirAll(s.cfg.TranscriptDir, 0o755); err != nil {
		logger.Warn("transcript directory", logging.Error(err))
		return
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		logger.Warn("transcript write", logging.Error(err))
	}
}

// observeEntities feeds the weighting model and persists it off the scan
// loop so a slow disk never stalls the next item.
func (s *Scanner) observeEntities(entities []string) {
	if len(entities) < 2 {
		return
	}
	s.model.Observe(entities)
	if s.cfg.WeightModelPath == "" {
		return
	}
	s.saves.Add(1)
	go func() {
		defer s.saves.Done()
		if err := s.model.Save(s.cfg.WeightModelPath); err != nil {
			s.logger.Warn("weight model save failed", logging.Error(err))
		}
	}()
}
