package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"scrivener/internal/config"
	"scrivener/internal/logging"
	"scrivener/internal/pipeline"
	"scrivener/internal/queue"
	"scrivener/internal/weighting"
)

// Status is a point-in-time snapshot of the scanner.
type Status struct {
	Running         bool      `json:"running"`
	CurrentItemID   string    `json:"current_item_id,omitempty"`
	CurrentPhase    string    `json:"current_phase,omitempty"`
	Processed       int       `json:"processed"`
	Failed          int       `json:"failed"`
	LastItemID      string    `json:"last_item_id,omitempty"`
	LastProcessedAt time.Time `json:"last_processed_at,omitzero"`
	StartedAt       time.Time `json:"started_at,omitzero"`
	Uptime          string    `json:"uptime,omitempty"`
}

// Scanner drains the queue sequentially against the transcription engine.
type Scanner struct {
	cfg    *config.Config
	store  *queue.Store
	engine pipeline.Engine
	model  *weighting.Model
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	status  Status

	saves sync.WaitGroup
}

// New constructs a scanner. The weighting model may be nil, in which case an
// empty model is used.
func New(cfg *config.Config, store *queue.Store, engine pipeline.Engine, model *weighting.Model, logger *slog.Logger) *Scanner {
	if model == nil {
		model = weighting.New()
	}
	return &Scanner{
		cfg:    cfg,
		store:  store,
		engine: engine,
		model:  model,
		logger: logging.WithComponent(logger, "worker"),
	}
}

// Start launches the scan loop. Calling Start on a running scanner is a no-op.
func (s *Scanner) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	// Best effort: a corrupt or missing model file never blocks the worker.
	if err := s.model.Load(s.cfg.WeightModelPath); err != nil {
		s.logger.Warn("weight model load failed", logging.Error(err))
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true
	s.status = Status{Running: true, StartedAt: time.Now().UTC()}

	go s.run(runCtx, s.done)
	s.logger.Info("scanner started")
}

// Stop halts polling and waits for the in-flight item to finish. Calling
// Stop on an idle scanner is a no-op.
func (s *Scanner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.saves.Wait()

	s.mu.Lock()
	s.running = false
	s.status.Running = false
	s.status.CurrentItemID = ""
	s.status.CurrentPhase = ""
	s.mu.Unlock()
	s.logger.Info("scanner stopped")
}

// Restart stops the scanner if running and starts it again.
func (s *Scanner) Restart(ctx context.Context) {
	s.Stop()
	s.Start(ctx)
}

// Status returns a snapshot of scanner state.
func (s *Scanner) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.status
	if snapshot.Running && !snapshot.StartedAt.IsZero() {
		snapshot.Uptime = time.Since(snapshot.StartedAt).Round(time.Second).String()
	}
	return snapshot
}

// Running reports whether the scan loop is active.
func (s *Scanner) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scanner) pollInterval() time.Duration {
	seconds := s.cfg.Workflow.QueuePollInterval
	if seconds <= 0 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}

func (s *Scanner) setPhase(itemID, phase string) {
	s.mu.Lock()
	s.status.CurrentItemID = itemID
	s.status.CurrentPhase = phase
	s.mu.Unlock()
}

func (s *Scanner) recordOutcome(itemID string, failed bool) {
	s.mu.Lock()
	if failed {
		s.status.Failed++
	} else {
		s.status.Processed++
	}
	s.status.LastItemID = itemID
	s.status.LastProcessedAt = time.Now().UTC()
	s.status.CurrentItemID = ""
	s.status.CurrentPhase = ""
	s.mu.Unlock()
}
