package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"scrivener/internal/api"
	"scrivener/internal/config"
	"scrivener/internal/entities"
	"scrivener/internal/logging"
	"scrivener/internal/mcp"
	"scrivener/internal/pipeline"
	"scrivener/internal/queue"
	"scrivener/internal/testsupport"
	"scrivener/internal/worker"
)

func newTestDaemon(t *testing.T, cfg *config.Config) (*Daemon, *queue.Store) {
	t.Helper()

	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()

	engine, err := pipeline.NewWithRunner(pipeline.Config{Timeout: time.Minute}, func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte(`{"raw_text":"hello","enhanced_text":"hello"}`), nil
	})
	if err != nil {
		t.Fatalf("pipeline.NewWithRunner: %v", err)
	}
	scanner := worker.New(cfg, store, engine, nil, logger)

	entityStore, err := entities.OpenFile(filepath.Join(t.TempDir(), "entities.json"))
	if err != nil {
		t.Fatalf("entities.OpenFile: %v", err)
	}
	mcpSrv := mcp.NewServer(cfg, mcp.NewRegistry(), api.NewQueueService(cfg, store, logger), scanner, entityStore, store, logger)

	d, err := New(cfg, store, scanner, mcpSrv, logger)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d, store
}

func TestDaemonServesHealthAndMCP(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithPollInterval(1))
	d, _ := newTestDaemon(t, cfg)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(d.Stop)

	base := "http://" + d.Addr()

	resp, err := http.Get(base + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz returned %d", resp.StatusCode)
	}
	var health struct {
		Status string `json:"status"`
		Worker struct {
			Running bool `json:"running"`
		} `json:"worker"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != "ok" || !health.Worker.Running {
		t.Fatalf("unexpected health payload: %+v", health)
	}

	init, err := http.Post(base+"/mcp", "application/json",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`))
	if err != nil {
		t.Fatalf("POST /mcp: %v", err)
	}
	defer init.Body.Close()
	if init.StatusCode != http.StatusOK {
		t.Fatalf("initialize returned %d", init.StatusCode)
	}
	if init.Header.Get("Mcp-Session-Id") == "" {
		t.Fatal("initialize did not assign a session")
	}
}

func TestDaemonSingleInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first, _ := newTestDaemon(t, cfg)
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(first.Stop)

	second, _ := newTestDaemon(t, cfg)
	err := second.Start(context.Background())
	if err == nil {
		second.Stop()
		t.Fatal("second daemon should fail to acquire the lock")
	}
	if !strings.Contains(err.Error(), "already running") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDaemonStopIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, _ := newTestDaemon(t, cfg)

	d.Stop()

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !d.Running() {
		t.Fatal("daemon should report running")
	}
	d.Stop()
	d.Stop()
	if d.Running() {
		t.Fatal("daemon should report stopped")
	}
}

func TestDaemonProcessesDroppedUpload(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithPollInterval(1))
	d, store := newTestDaemon(t, cfg)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(d.Stop)

	path := filepath.Join(cfg.UploadDir, "dropped.wav")
	if err := writeFile(path, "audio-bytes"); err != nil {
		t.Fatalf("write upload: %v", err)
	}

	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		items, err := store.List(context.Background(), queue.StatusInitial)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(items) == 1 {
			if items[0].FinalText != "hello" {
				t.Fatalf("unexpected transcript: %q", items[0].FinalText)
			}
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("dropped upload was never processed")
}

func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
