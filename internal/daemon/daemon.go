package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"scrivener/internal/config"
	"scrivener/internal/logging"
	"scrivener/internal/mcp"
	"scrivener/internal/queue"
	"scrivener/internal/worker"
)

// Daemon coordinates the background services and enforces single-instance
// execution through a file lock.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *queue.Store
	scanner *worker.Scanner
	mcpSrv  *mcp.Server

	lockPath string
	lock     *flock.Flock

	running   atomic.Bool
	startedAt time.Time
	cancel    context.CancelFunc
	httpSrv   *http.Server
	listener  net.Listener
	watcher   *uploadWatcher
	loops     sync.WaitGroup
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, scanner *worker.Scanner, mcpSrv *mcp.Server, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || scanner == nil || mcpSrv == nil {
		return nil, errors.New("daemon requires config, store, scanner, and mcp server")
	}

	lockPath := filepath.Join(cfg.LogDir, "scrivenerd.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logging.WithComponent(logger, "daemon"),
		store:    store,
		scanner:  scanner,
		mcpSrv:   mcpSrv,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the lock and brings up the scanner, the upload watcher,
// the idle sweeper, and the HTTP server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another scrivener daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	listener, err := net.Listen("tcp", d.cfg.APIBind)
	if err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("listen on %s: %w", d.cfg.APIBind, err)
	}
	d.listener = listener

	mux := http.NewServeMux()
	mux.Handle("/mcp", d.mcpSrv)
	mux.HandleFunc("/healthz", d.handleHealth)
	d.httpSrv = &http.Server{Handler: mux}

	watcher, err := newUploadWatcher(d.cfg, d.store, d.logger, 0)
	if err != nil {
		cancel()
		listener.Close()
		_ = d.lock.Unlock()
		return fmt.Errorf("upload watcher: %w", err)
	}
	d.watcher = watcher

	d.scanner.Start(runCtx)
	d.watcher.Start(runCtx)

	d.loops.Add(2)
	go d.sweepLoop(runCtx)
	go d.serve()

	d.startedAt = time.Now().UTC()
	d.running.Store(true)
	d.logger.Info("daemon started",
		logging.String("addr", listener.Addr().String()),
		logging.String("lock", d.lockPath))
	return nil
}

// Addr returns the bound address of the HTTP server, or "" when stopped.
func (d *Daemon) Addr() string {
	if d.listener == nil {
		return ""
	}
	return d.listener.Addr().String()
}

func (d *Daemon) serve() {
	defer d.loops.Done()
	if err := d.httpSrv.Serve(d.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		d.logger.Error("http server exited", logging.Error(err))
	}
}

// sweepLoop drops sessions idle past the configured timeout.
func (d *Daemon) sweepLoop(ctx context.Context) {
	defer d.loops.Done()

	interval := time.Duration(d.cfg.Workflow.IdleSweepInterval) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	timeout := time.Duration(d.cfg.Workflow.SessionIdleTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := d.mcpSrv.Registry().SweepIdle(timeout)
			for _, id := range removed {
				d.logger.Info("idle session swept", logging.String(logging.FieldSessionID, id))
			}
		}
	}
}

// Stop shuts down background processing and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.httpSrv.Shutdown(shutdownCtx); err != nil {
		d.logger.Warn("http shutdown", logging.Error(err))
	}

	d.watcher.Stop()
	d.scanner.Stop()
	d.mcpSrv.Wait()
	d.loops.Wait()

	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close stops the daemon and releases the queue store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether the daemon is active.
func (d *Daemon) Running() bool {
	return d.running.Load()
}
