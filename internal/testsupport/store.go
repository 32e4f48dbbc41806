package testsupport

import (
	"context"
	"encoding/json"
	"testing"

	"docflow/internal/config"
	"docflow/internal/queue"
	"docflow/internal/sdoc"
	"docflow/internal/tracker"
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

// MustOpenTracker attaches a status tracker to the store's database.
func MustOpenTracker(t testing.TB, store *queue.Store) *tracker.Tracker {
	t.Helper()

	tr, err := tracker.New(context.Background(), store.DB())
	if err != nil {
		t.Fatalf("tracker.New: %v", err)
	}
	return tr
}

// NewJob inserts a waiting job of the given type on the device lane.
func NewJob(t testing.TB, store *queue.Store, jobType string, device queue.Device, input any) *queue.Job {
	t.Helper()

	payload, err := json.Marshal(input)
	if err != nil {
		t.Fatalf("marshal job input: %v", err)
	}
	job := &queue.Job{Type: jobType, Device: device, Input: payload}
	if err := store.Create(context.Background(), job); err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return job
}

// MustOpenDocuments attaches the source-document store to the store's database.
func MustOpenDocuments(t testing.TB, store *queue.Store) *sdoc.Store {
	t.Helper()

	docs, err := sdoc.New(context.Background(), store.DB())
	if err != nil {
		t.Fatalf("sdoc.New: %v", err)
	}
	return docs
}
