package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"scrivener/internal/api"
	"scrivener/internal/entities"
	"scrivener/internal/logging"
	"scrivener/internal/mcp"
	"scrivener/internal/testsupport"
	"scrivener/internal/worker"
)

type idleWorker struct{}

func (idleWorker) Start(ctx context.Context)   {}
func (idleWorker) Stop()                       {}
func (idleWorker) Restart(ctx context.Context) {}
func (idleWorker) Status() worker.Status       { return worker.Status{} }

func TestHelpExecutes(t *testing.T) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--help"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("help failed: %v", err)
	}
	if !strings.Contains(out.String(), "queue") {
		t.Fatalf("help missing commands:\n%s", out.String())
	}
}

func TestQueueListAgainstDaemon(t *testing.T) {
	addr := startFakeDaemon(t)

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"queue", "list", "--addr", addr, "--json"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("queue list failed: %v", err)
	}
	if !strings.Contains(out.String(), "counts") {
		t.Fatalf("unexpected output:\n%s", out.String())
	}
}

func startFakeDaemon(t *testing.T) string {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	entityStore, err := entities.OpenFile(filepath.Join(t.TempDir(), "entities.json"))
	if err != nil {
		t.Fatalf("entities.OpenFile: %v", err)
	}

	logger := logging.NewNop()
	server := mcp.NewServer(cfg, mcp.NewRegistry(), api.NewQueueService(cfg, store, logger), idleWorker{}, entityStore, store, logger)

	mux := http.NewServeMux()
	mux.Handle("/mcp", server)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	return strings.TrimPrefix(ts.URL, "http://")
}
