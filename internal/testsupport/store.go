package testsupport

import (
	"context"
	"testing"

	"audiocorpus/internal/config"
	"audiocorpus/internal/progress"
)

// MustOpenStore opens the configured progress store for tests and registers
// cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) progress.Store {
	t.Helper()

	store, err := progress.Open(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("progress.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// NewRecord creates a progress record for the given source path and returns
// its id.
func NewRecord(t testing.TB, store progress.Store, path string) string {
	t.Helper()

	id, err := store.CreateOrGet(context.Background(), path, map[string]any{"path": path})
	if err != nil {
		t.Fatalf("store.CreateOrGet: %v", err)
	}
	return id
}
