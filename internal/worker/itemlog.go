package worker

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"scrivener/internal/logging"
)

type itemEvent struct {
	Timestamp time.Time `json:"ts"`
	Event     string    `json:"event"`
	Detail    string    `json:"detail,omitempty"`
}

// logItemEvent appends one line to the item's JSONL event log. Failures are
// logged and swallowed; the event log never decides an item's fate.
func (s *Scanner) logItemEvent(itemID, event, detail string) {
	if s.cfg.LogDir == "" {
		return
	}
	dir := filepath.Join(s.cfg.LogDir, "items")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.logger.Warn("item log directory", logging.Error(err))
		return
	}

	line, err := json.Marshal(itemEvent{
		Timestamp: time.Now().UTC(),
		Event:     event,
		Detail:    detail,
	})
	if err != nil {
		s.logger.Warn("item log encode", logging.Error(err))
		return
	}

	path := filepath.Join(dir, itemID+".jsonl")
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		s.logger.Warn("item log open", logging.Error(err))
		return
	}
	defer file.Close()
	if _, err := file.Write(append(line, '\n')); err != nil {
		s.logger.Warn("item log write", logging.Error(err))
	}
}
