package testsupport

import (
	"context"
	"testing"

	"notesmith/internal/config"
	"notesmith/internal/task"
)

// MustOpenStore opens a task.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *task.Store {
	t.Helper()

	store, err := task.Open(cfg)
	if err != nil {
		t.Fatalf("task.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewMediaTask creates a media task for tests using the provided store.
func NewMediaTask(t testing.TB, store *task.Store, sourceType task.SourceType, title, originalPath string) *task.Task {
	t.Helper()

	created, err := store.NewMediaTask(context.Background(), sourceType, title, originalPath, "")
	if err != nil {
		t.Fatalf("store.NewMediaTask: %v", err)
	}
	return created
}

// NewTextTask creates a text task for tests using the provided store.
func NewTextTask(t testing.TB, store *task.Store, title, rawText string) *task.Task {
	t.Helper()

	created, err := store.NewTextTask(context.Background(), title, rawText)
	if err != nil {
		t.Fatalf("store.NewTextTask: %v", err)
	}
	return created
}
