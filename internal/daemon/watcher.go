package daemon

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"scrivener/internal/config"
	"scrivener/internal/fileutil"
	"scrivener/internal/logging"
	"scrivener/internal/queue"
)

// audioExtensions lists the upload file types the watcher enqueues.
var audioExtensions = map[string]struct{}{
	".wav":  {},
	".mp3":  {},
	".m4a":  {},
	".mp4":  {},
	".flac": {},
	".ogg":  {},
	".opus": {},
	".aac":  {},
}

const defaultSettleDelay = 2 * time.Second

// uploadWatcher enqueues audio files dropped into the upload directory. A
// file is only enqueued once its writes settle, and a content hash guards
// against double-enqueueing the same recording.
type uploadWatcher struct {
	cfg    *config.Config
	store  *queue.Store
	logger *slog.Logger
	settle time.Duration

	fsw    *fsnotify.Watcher
	mu     sync.Mutex
	timers map[string]*time.Timer
	done   chan struct{}
}

func newUploadWatcher(cfg *config.Config, store *queue.Store, logger *slog.Logger, settle time.Duration) (*uploadWatcher, error) {
	if settle <= 0 {
		settle = defaultSettleDelay
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &uploadWatcher{
		cfg:    cfg,
		store:  store,
		logger: logging.WithComponent(logger, "watcher"),
		settle: settle,
		fsw:    fsw,
		timers: make(map[string]*time.Timer),
	}, nil
}

// Start watches the upload directory and enqueues any files already there.
func (w *uploadWatcher) Start(ctx context.Context) {
	w.done = make(chan struct{})

	if err := os.MkdirAll(w.cfg.UploadDir, 0o755); err != nil {
		w.logger.Error("upload directory", logging.Error(err))
	}
	if err := w.fsw.Add(w.cfg.UploadDir); err != nil {
		w.logger.Error("watch upload directory", logging.Error(err))
	}

	go w.loop(ctx)
	w.scanExisting(ctx)
}

func (w *uploadWatcher) Stop() {
	if w.done == nil {
		return
	}
	_ = w.fsw.Close()
	<-w.done
	w.mu.Lock()
	for path, timer := range w.timers {
		timer.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()
}

func (w *uploadWatcher) loop(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.schedule(ctx, event.Name)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", logging.Error(err))
		}
	}
}

// schedule arms (or re-arms) the settle timer for a path. Each write resets
// the timer, so the file is only enqueued after writes stop.
func (w *uploadWatcher) schedule(ctx context.Context, path string) {
	if !isAudioFile(path) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.timers[path]; ok {
		timer.Reset(w.settle)
		return
	}
	w.timers[path] = time.AfterFunc(w.settle, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.enqueue(ctx, path)
	})
}

func (w *uploadWatcher) scanExisting(ctx context.Context) {
	entries, err := os.ReadDir(w.cfg.UploadDir)
	if err != nil {
		w.logger.Warn("scan upload directory", logging.Error(err))
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(w.cfg.UploadDir, entry.Name())
		if isAudioFile(path) {
			w.enqueue(ctx, path)
		}
	}
}

func (w *uploadWatcher) enqueue(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() || info.Size() == 0 {
		return
	}

	hash, err := fileutil.HashFile(path)
	if err != nil {
		w.logger.Warn("hash upload", logging.String("path", path), logging.Error(err))
		return
	}

	existing, err := w.store.FindByHash(ctx, hash)
	if err != nil {
		w.logger.Error("dedupe lookup", logging.Error(err))
		return
	}
	if existing != nil {
		w.logger.Debug("upload already enqueued",
			logging.String("path", path),
			logging.String(logging.FieldItemID, existing.ID))
		return
	}

	item, err := w.store.NewUpload(ctx, path, hash)
	if err != nil {
		w.logger.Error("enqueue upload", logging.String("path", path), logging.Error(err))
		return
	}
	w.logger.Info("upload enqueued",
		logging.String(logging.FieldItemID, item.ID),
		logging.String("path", path))
}

func isAudioFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	_, ok := audioExtensions[ext]
	return ok
}
