package daemon

import (
	"encoding/json"
	"net/http"
	"time"

	"scrivener/internal/logging"
	"scrivener/internal/queue"
	"scrivener/internal/worker"
)

type healthPayload struct {
	Status   string              `json:"status"`
	Uptime   string              `json:"uptime"`
	Queue    queue.HealthSummary `json:"queue"`
	Worker   worker.Status       `json:"worker"`
	Sessions int                 `json:"sessions"`
}

func (d *Daemon) handleHealth(w http.ResponseWriter, r *http.Request) {
	summary, err := d.store.Health(r.Context())
	if err != nil {
		d.logger.Error("health query failed", logging.Error(err))
		http.Error(w, "queue unavailable", http.StatusServiceUnavailable)
		return
	}

	payload := healthPayload{
		Status:   "ok",
		Uptime:   time.Since(d.startedAt).Round(time.Second).String(),
		Queue:    summary,
		Worker:   d.scanner.Status(),
		Sessions: d.mcpSrv.Registry().Count(),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		d.logger.Error("health encode failed", logging.Error(err))
	}
}
