package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"docflow/internal/queue"
	"docflow/internal/testsupport"
)

func TestCreateAndGet(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	idx := 2
	job := &queue.Job{
		Type:           "preprocess_document",
		Device:         queue.DeviceGPU,
		Input:          json.RawMessage(`{"path":"a.txt"}`),
		Priority:       5,
		Timeout:        90 * time.Second,
		ResultTTL:      time.Hour,
		MaxRetries:     2,
		RetryCountdown: 3 * time.Second,
		ParentID:       "parent-1",
		BranchIndex:    &idx,
	}
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if job.ID == "" || job.EntityID != job.ID {
		t.Fatalf("expected generated id and entity id, got %q / %q", job.ID, job.EntityID)
	}

	fetched, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.Status != queue.StatusWaiting || fetched.Device != queue.DeviceGPU {
		t.Fatalf("unexpected job: %+v", fetched)
	}
	if fetched.Timeout != 90*time.Second || fetched.ResultTTL != time.Hour || fetched.RetryCountdown != 3*time.Second {
		t.Fatalf("durations not preserved: %+v", fetched)
	}
	if fetched.BranchIndex == nil || *fetched.BranchIndex != 2 || fetched.ParentID != "parent-1" {
		t.Fatalf("branch fields not preserved: %+v", fetched)
	}
	if string(fetched.Input) != `{"path":"a.txt"}` {
		t.Fatalf("unexpected input %s", fetched.Input)
	}

	if _, err := store.GetByID(ctx, "missing"); !errors.Is(err, queue.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestClaimNextOrdersByPriorityThenAge(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	low := testsupport.NewJob(t, store, "a", queue.DeviceCPU, nil)
	first := &queue.Job{Type: "a", Device: queue.DeviceCPU, Priority: 10}
	if err := store.Create(ctx, first); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	second := &queue.Job{Type: "a", Device: queue.DeviceCPU, Priority: 10}
	if err := store.Create(ctx, second); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	testsupport.NewJob(t, store, "a", queue.DeviceGPU, nil)

	for _, want := range []string{first.ID, second.ID, low.ID} {
		claimed, err := store.ClaimNext(ctx, queue.DeviceCPU)
		if err != nil {
			t.Fatalf("ClaimNext failed: %v", err)
		}
		if claimed == nil || claimed.ID != want {
			t.Fatalf("expected %s, got %+v", want, claimed)
		}
		if claimed.Status != queue.StatusRunning || claimed.StartedAt == nil {
			t.Fatalf("claimed job not running: %+v", claimed)
		}
	}

	claimed, err := store.ClaimNext(ctx, queue.DeviceCPU)
	if err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if claimed != nil {
		t.Fatalf("expected empty cpu lane, got %+v", claimed)
	}
}

func TestClaimNextIsExclusive(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	const jobs = 10
	for i := 0; i < jobs; i++ {
		testsupport.NewJob(t, store, "a", queue.DeviceCPU, i)
	}

	var (
		mu      sync.Mutex
		seen    = map[string]int{}
		wg      sync.WaitGroup
		errOnce error
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, err := store.ClaimNext(ctx, queue.DeviceCPU)
				if err != nil {
					mu.Lock()
					errOnce = err
					mu.Unlock()
					return
				}
				if job == nil {
					return
				}
				mu.Lock()
				seen[job.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if errOnce != nil {
		t.Fatalf("ClaimNext failed: %v", errOnce)
	}
	if len(seen) != jobs {
		t.Fatalf("expected %d distinct claims, got %d", jobs, len(seen))
	}
	for id, count := range seen {
		if count != 1 {
			t.Fatalf("job %s claimed %d times", id, count)
		}
	}
}

func TestTransitionEnforcesStateMachine(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.NewJob(t, store, "a", queue.DeviceCPU, nil)

	if _, err := store.Transition(ctx, job.ID, queue.StatusWaiting, queue.StatusFinished, queue.Outcome{}); !errors.Is(err, queue.ErrInvalidTransition) {
		t.Fatalf("expected waiting->finished to be refused, got %v", err)
	}

	if _, err := store.ClaimNext(ctx, queue.DeviceCPU); err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	finished, err := store.Transition(ctx, job.ID, queue.StatusRunning, queue.StatusFinished, queue.Outcome{
		Message: "done",
		Output:  json.RawMessage(`{"ok":true}`),
	})
	if err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	if finished.Status != queue.StatusFinished || finished.FinishedAt == nil || string(finished.Output) != `{"ok":true}` {
		t.Fatalf("unexpected finished job: %+v", finished)
	}

	_, err = store.Transition(ctx, job.ID, queue.StatusFinished, queue.StatusRunning, queue.Outcome{})
	var transitionErr *queue.TransitionError
	if !errors.As(err, &transitionErr) {
		t.Fatalf("expected TransitionError from terminal state, got %v", err)
	}

	reloaded, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if reloaded.StatusMessage != "done" || string(reloaded.Output) != `{"ok":true}` {
		t.Fatalf("unexpected persisted job: %+v", reloaded)
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to queue.Status
		want     bool
	}{
		{queue.StatusWaiting, queue.StatusRunning, true},
		{queue.StatusWaiting, queue.StatusAborted, true},
		{queue.StatusWaiting, queue.StatusFinished, false},
		{queue.StatusRunning, queue.StatusFinished, true},
		{queue.StatusRunning, queue.StatusError, true},
		{queue.StatusRunning, queue.StatusAborted, true},
		{queue.StatusRunning, queue.StatusWaiting, true},
		{queue.StatusFinished, queue.StatusWaiting, false},
		{queue.StatusError, queue.StatusRunning, false},
		{queue.StatusAborted, queue.StatusRunning, false},
	}
	for _, tt := range tests {
		if got := queue.CanTransition(tt.from, tt.to); got != tt.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestRequestAbort(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	waiting := testsupport.NewJob(t, store, "a", queue.DeviceAPI, nil)
	aborted, err := store.RequestAbort(ctx, waiting.ID)
	if err != nil {
		t.Fatalf("RequestAbort waiting failed: %v", err)
	}
	if aborted.Status != queue.StatusAborted || aborted.FinishedAt == nil {
		t.Fatalf("expected waiting job to abort immediately, got %+v", aborted)
	}

	running := testsupport.NewJob(t, store, "a", queue.DeviceAPI, nil)
	if _, err := store.ClaimNext(ctx, queue.DeviceAPI); err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	flagged, err := store.RequestAbort(ctx, running.ID)
	if err != nil {
		t.Fatalf("RequestAbort running failed: %v", err)
	}
	if flagged.Status != queue.StatusRunning || !flagged.AbortRequested {
		t.Fatalf("expected running job flagged for abort, got %+v", flagged)
	}
	abort, err := store.Heartbeat(ctx, running.ID)
	if err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}
	if !abort {
		t.Fatal("expected heartbeat to report abort request")
	}

	if _, err := store.RequestAbort(ctx, waiting.ID); !errors.Is(err, queue.ErrInvalidTransition) {
		t.Fatalf("expected terminal abort to be refused, got %v", err)
	}
}

func TestReclaimStaleAndResetRunning(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	stale := testsupport.NewJob(t, store, "a", queue.DeviceCPU, nil)
	if _, err := store.ClaimNext(ctx, queue.DeviceCPU); err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}

	count, err := store.ReclaimStale(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("ReclaimStale failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected fresh heartbeat to be kept, reclaimed %d", count)
	}

	count, err = store.ReclaimStale(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("ReclaimStale failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one reclaimed job, got %d", count)
	}
	reloaded, err := store.GetByID(ctx, stale.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if reloaded.Status != queue.StatusWaiting || reloaded.StartedAt != nil {
		t.Fatalf("expected job back to waiting, got %+v", reloaded)
	}

	if _, err := store.ClaimNext(ctx, queue.DeviceCPU); err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if _, err := store.RequestAbort(ctx, stale.ID); err != nil {
		t.Fatalf("RequestAbort failed: %v", err)
	}
	count, err = store.ResetRunning(ctx)
	if err != nil {
		t.Fatalf("ResetRunning failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one reset job, got %d", count)
	}
	reloaded, err = store.GetByID(ctx, stale.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if reloaded.Status != queue.StatusAborted {
		t.Fatalf("expected abort-requested job to be aborted on reset, got %s", reloaded.Status)
	}
}

func TestPurgeExpiredHonoursTTL(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	expiring := &queue.Job{Type: "a", ResultTTL: time.Minute}
	forever := &queue.Job{Type: "a"}
	for _, job := range []*queue.Job{expiring, forever} {
		if err := store.Create(ctx, job); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if _, err := store.RequestAbort(ctx, job.ID); err != nil {
			t.Fatalf("RequestAbort failed: %v", err)
		}
	}

	purged, err := store.PurgeExpired(ctx, time.Now())
	if err != nil {
		t.Fatalf("PurgeExpired failed: %v", err)
	}
	if purged != 0 {
		t.Fatalf("expected nothing purged before ttl, got %d", purged)
	}

	purged, err = store.PurgeExpired(ctx, time.Now().Add(2*time.Minute))
	if err != nil {
		t.Fatalf("PurgeExpired failed: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected one purged job, got %d", purged)
	}
	if _, err := store.GetByID(ctx, forever.ID); err != nil {
		t.Fatalf("expected zero-ttl job to be kept: %v", err)
	}
}

func TestListFiltersAndStats(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.NewJob(t, store, "a", queue.DeviceCPU, nil)
	testsupport.NewJob(t, store, "b", queue.DeviceGPU, nil)
	testsupport.NewJob(t, store, "b", queue.DeviceGPU, nil)
	if _, err := store.ClaimNext(ctx, queue.DeviceGPU); err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}

	jobs, err := store.List(ctx, queue.ListFilter{Type: "b"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs of type b, got %d", len(jobs))
	}
	running, err := store.List(ctx, queue.ListFilter{Statuses: []queue.Status{queue.StatusRunning}})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(running) != 1 || running[0].Type != "b" {
		t.Fatalf("unexpected running jobs: %+v", running)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if len(stats) != 3 {
		t.Fatalf("expected a row per device, got %d", len(stats))
	}
	for _, lane := range stats {
		if lane.Device == queue.DeviceGPU && (lane.Waiting() != 1 || lane.Running() != 1) {
			t.Fatalf("unexpected gpu stats: %+v", lane.Counts)
		}
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if health.Total != 3 || health.Running != 1 || health.Waiting != 2 {
		t.Fatalf("unexpected health: %+v", health)
	}
}

func TestRetryDelay(t *testing.T) {
	fixed := queue.Job{RetryCountdown: 2 * time.Second}
	if got := fixed.RetryDelay(3); got != 2*time.Second {
		t.Fatalf("fixed delay = %s", got)
	}
	incremental := queue.Job{RetryCountdown: 2 * time.Second, RetryIncremental: true}
	if got := incremental.RetryDelay(3); got != 6*time.Second {
		t.Fatalf("incremental delay = %s", got)
	}
}
