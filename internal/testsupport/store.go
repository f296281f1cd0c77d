package testsupport

import (
	"context"
	"testing"

	"scrivener/internal/config"
	"scrivener/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewUpload creates a new upload item for tests using the provided store.
func NewUpload(t testing.TB, store *queue.Store, audioPath, hash string) *queue.Item {
	t.Helper()

	item, err := store.NewUpload(context.Background(), audioPath, hash)
	if err != nil {
		t.Fatalf("store.NewUpload: %v", err)
	}
	return item
}
