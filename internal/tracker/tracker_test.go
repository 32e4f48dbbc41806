package tracker_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"docflow/internal/queue"
	"docflow/internal/testsupport"
	"docflow/internal/tracker"
)

func TestUpsertManyIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	tr := testsupport.MustOpenTracker(t, store)
	ctx := context.Background()

	first := []tracker.Record{
		{EntityID: "doc-1", JobType: "classify", Status: queue.StatusRunning},
		{EntityID: "doc-2", JobType: "classify", Status: queue.StatusRunning},
	}
	if _, err := tr.UpsertMany(ctx, first); err != nil {
		t.Fatalf("UpsertMany failed: %v", err)
	}

	second := []tracker.Record{
		{EntityID: "doc-1", JobType: "classify", Status: queue.StatusFinished},
		{EntityID: "doc-2", JobType: "classify", Status: queue.StatusError, Message: "boom"},
	}
	written, err := tr.UpsertMany(ctx, second)
	if err != nil {
		t.Fatalf("UpsertMany failed: %v", err)
	}
	if len(written) != 2 || written[0].Timestamp.IsZero() {
		t.Fatalf("unexpected written records: %+v", written)
	}

	for _, tt := range []struct {
		entity string
		want   queue.Status
	}{
		{"doc-1", queue.StatusFinished},
		{"doc-2", queue.StatusError},
	} {
		status, err := tr.StatusByType(ctx, tt.entity, "classify")
		if err != nil {
			t.Fatalf("StatusByType failed: %v", err)
		}
		if status != tt.want {
			t.Fatalf("%s: got %s want %s", tt.entity, status, tt.want)
		}
	}

	var count int
	if err := store.DB().QueryRowContext(ctx, `SELECT COUNT(1) FROM job_status`).Scan(&count); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected exactly one row per key, got %d rows", count)
	}
}

func TestUpsertManyDuplicateKeysLastWins(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	tr := testsupport.MustOpenTracker(t, testsupport.MustOpenStore(t, cfg))
	ctx := context.Background()

	written, err := tr.UpsertMany(ctx, []tracker.Record{
		{EntityID: "doc-1", JobType: "ingest", Status: queue.StatusRunning},
		{EntityID: "doc-1", JobType: "ingest", Status: queue.StatusFinished},
	})
	if err != nil {
		t.Fatalf("UpsertMany failed: %v", err)
	}
	if len(written) != 1 || written[0].Status != queue.StatusFinished {
		t.Fatalf("expected the last record to win, got %+v", written)
	}
}

func TestStatusByTypeNotFound(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	tr := testsupport.MustOpenTracker(t, testsupport.MustOpenStore(t, cfg))

	_, err := tr.StatusByType(context.Background(), "doc-9", "classify")
	if !errors.Is(err, tracker.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPendingAndProgress(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	tr := testsupport.MustOpenTracker(t, testsupport.MustOpenStore(t, cfg))
	ctx := context.Background()

	if _, err := tr.UpsertMany(ctx, []tracker.Record{
		{EntityID: "a", JobType: "classify", Status: queue.StatusFinished},
		{EntityID: "b", JobType: "classify", Status: queue.StatusError},
		{EntityID: "c", JobType: "other", Status: queue.StatusFinished},
	}); err != nil {
		t.Fatalf("UpsertMany failed: %v", err)
	}

	pending, err := tr.Pending(ctx, "classify", []string{"c", "a", "b", "d"})
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	want := []string{"c", "b", "d"}
	if len(pending) != len(want) {
		t.Fatalf("pending = %v, want %v", pending, want)
	}
	for i := range want {
		if pending[i] != want[i] {
			t.Fatalf("pending = %v, want %v", pending, want)
		}
	}

	progress, err := tr.Progress(ctx, "classify", []string{"a", "b", "c", "d"})
	if err != nil {
		t.Fatalf("Progress failed: %v", err)
	}
	if progress.Total != 4 || progress.Finished() != 1 || progress.Missing != 2 || progress.Counts[queue.StatusError] != 1 {
		t.Fatalf("unexpected progress: %+v", progress)
	}
	if progress.String() != "1 of 4 finished" {
		t.Fatalf("unexpected progress string %q", progress.String())
	}
}

func TestConcurrentUpsertsKeepOneRow(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	tr := testsupport.MustOpenTracker(t, store)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := tr.Upsert(ctx, tracker.Record{EntityID: "doc", JobType: "ingest", Status: queue.StatusRunning}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Upsert failed: %v", err)
	}

	records, err := tr.ListEntity(ctx, "doc")
	if err != nil {
		t.Fatalf("ListEntity failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one row, got %d", len(records))
	}
}
