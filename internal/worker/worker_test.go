package worker_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"docflow/internal/events"
	"docflow/internal/jobs"
	"docflow/internal/pipeline"
	"docflow/internal/queue"
	"docflow/internal/services"
	"docflow/internal/testsupport"
	"docflow/internal/tracker"
	"docflow/internal/worker"
)

type input struct {
	Mode string `json:"mode"`
}

func (in input) EntityID() string { return "entity-" + in.Mode }

type output struct {
	OK bool `json:"ok"`
}

type harness struct {
	store    *queue.Store
	tracker  *tracker.Tracker
	bus      *events.Bus
	service  *jobs.Service
	manager  *worker.Manager
	calls    atomic.Int32
	received []events.Event

	staged        *pipeline.Pipeline
	slowCompleted atomic.Bool
	nextRan       atomic.Bool
}

func newHarness(t *testing.T, retry jobs.RetryPolicy, timeout time.Duration) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	h := &harness{}
	h.store = testsupport.MustOpenStore(t, cfg)
	h.tracker = testsupport.MustOpenTracker(t, h.store)
	h.bus = events.NewBus(64, nil)
	for _, signal := range []events.Signal{events.SignalJobFinished, events.SignalJobFailed, events.SignalJobAborted} {
		h.bus.Subscribe(signal, "test", func(_ context.Context, evt events.Event) error {
			h.received = append(h.received, evt)
			return nil
		})
	}

	h.staged = pipeline.New("staged")
	h.staged.MustRegisterStep(pipeline.Step{
		Name:     "slow",
		Ordering: 1,
		Run: func(ctx context.Context, cargo *pipeline.Cargo) (*pipeline.Cargo, error) {
			select {
			case <-ctx.Done():
				return cargo, context.Cause(ctx)
			case <-time.After(300 * time.Millisecond):
			}
			h.slowCompleted.Store(true)
			return cargo, nil
		},
	})
	h.staged.MustRegisterStep(pipeline.Step{
		Name:     "next",
		Ordering: 2,
		Run: func(_ context.Context, cargo *pipeline.Cargo) (*pipeline.Cargo, error) {
			h.nextRan.Store(true)
			return cargo, nil
		},
	})
	h.staged.Freeze()

	reg := jobs.NewRegistry(time.Hour)
	jobs.MustRegister(reg, jobs.Definition[input, output]{
		Type:    "task",
		Options: jobs.Options{Device: queue.DeviceCPU, Timeout: timeout, Retry: retry},
		Handler: func(ctx context.Context, hd *jobs.Handle, in input) (output, error) {
			h.calls.Add(1)
			switch in.Mode {
			case "ok":
				return output{OK: true}, hd.SetMessage(ctx, "done")
			case "transient":
				return output{}, errors.New("upstream unavailable")
			case "invalid":
				return output{}, services.Wrap(services.ErrValidation, "task", "run", "bad document", nil)
			case "flaky":
				if hd.Attempt() < 2 {
					return output{}, errors.New("first try fails")
				}
				return output{OK: true}, nil
			case "block":
				select {
				case <-ctx.Done():
					return output{}, context.Cause(ctx)
				case <-services.StopSignal(ctx):
					return output{}, services.ErrStopRequested
				}
			case "staged":
				_, err := h.staged.Run(ctx, pipeline.NewCargo("entity-staged", nil))
				return output{OK: err == nil}, err
			}
			return output{}, nil
		},
	})

	var err error
	h.service, err = jobs.NewService(jobs.ServiceDeps{Registry: reg, Store: h.store, Tracker: h.tracker, Bus: h.bus})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	h.manager, err = worker.NewManager(worker.Deps{
		Config:   cfg,
		Store:    h.store,
		Registry: reg,
		Tracker:  h.tracker,
		Bus:      h.bus,
	}, worker.WithIntervals(worker.Intervals{
		Poll:      10 * time.Millisecond,
		Heartbeat: 10 * time.Millisecond,
	}))
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return h
}

func (h *harness) runOne(t *testing.T, mode string) *queue.Job {
	t.Helper()
	ctx := context.Background()
	if _, err := h.service.Submit(ctx, "task", input{Mode: mode}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	claimed, err := h.store.ClaimNext(ctx, queue.DeviceCPU)
	if err != nil || claimed == nil {
		t.Fatalf("ClaimNext failed: %v (job %v)", err, claimed)
	}
	final, err := h.manager.Execute(ctx, claimed)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	return final
}

func TestExecuteFinishesJob(t *testing.T) {
	h := newHarness(t, jobs.RetryPolicy{}, 0)
	job := h.runOne(t, "ok")

	if job.Status != queue.StatusFinished || string(job.Output) != `{"ok":true}` {
		t.Fatalf("unexpected final job %+v output=%s", job, job.Output)
	}
	if job.StatusMessage != "done" || job.Attempts != 1 {
		t.Fatalf("unexpected message/attempts %q/%d", job.StatusMessage, job.Attempts)
	}
	rows, err := h.tracker.ListEntity(context.Background(), "entity-ok")
	if err != nil {
		t.Fatalf("ListEntity failed: %v", err)
	}
	if len(rows) != 1 || rows[0].Status != queue.StatusFinished {
		t.Fatalf("expected one finished tracker row, got %+v", rows)
	}
	if len(h.received) != 1 || h.received[0].Signal != events.SignalJobFinished {
		t.Fatalf("expected one finished event, got %+v", h.received)
	}
}

func TestExecuteRetriesUpToMaxRetries(t *testing.T) {
	h := newHarness(t, jobs.RetryPolicy{MaxRetries: 2, Countdown: time.Millisecond}, 0)
	job := h.runOne(t, "transient")

	if job.Status != queue.StatusError {
		t.Fatalf("expected error, got %s", job.Status)
	}
	if got := h.calls.Load(); got != 3 {
		t.Fatalf("expected max_retries+1 = 3 attempts, got %d", got)
	}
	if job.Attempts != 3 || !strings.Contains(job.StatusMessage, "upstream unavailable") {
		t.Fatalf("unexpected final job %+v", job)
	}
	if len(h.received) != 1 || h.received[0].Signal != events.SignalJobFailed {
		t.Fatalf("expected one failure event, got %+v", h.received)
	}
}

func TestExecuteRecoversOnRetry(t *testing.T) {
	h := newHarness(t, jobs.RetryPolicy{MaxRetries: 3}, 0)
	job := h.runOne(t, "flaky")
	if job.Status != queue.StatusFinished || job.Attempts != 2 {
		t.Fatalf("expected finish on second attempt, got %s after %d", job.Status, job.Attempts)
	}
}

func TestExecuteDoesNotRetryPermanentErrors(t *testing.T) {
	h := newHarness(t, jobs.RetryPolicy{MaxRetries: 5}, 0)
	job := h.runOne(t, "invalid")
	if job.Status != queue.StatusError || h.calls.Load() != 1 {
		t.Fatalf("expected single failed attempt, got %s after %d", job.Status, h.calls.Load())
	}
	status, err := h.tracker.StatusByType(context.Background(), "entity-invalid", "task")
	if err != nil || status != queue.StatusError {
		t.Fatalf("expected tracker error row, got %s (%v)", status, err)
	}
}

func TestExecuteTimesOut(t *testing.T) {
	h := newHarness(t, jobs.RetryPolicy{MaxRetries: 3}, 30*time.Millisecond)
	job := h.runOne(t, "block")
	if job.Status != queue.StatusError {
		t.Fatalf("expected error, got %s", job.Status)
	}
	if job.StatusMessage != "timed out after 30ms" {
		t.Fatalf("unexpected message %q", job.StatusMessage)
	}
	if h.calls.Load() != 1 {
		t.Fatalf("expected timeouts not to be retried, got %d calls", h.calls.Load())
	}
}

func TestExecuteUnknownType(t *testing.T) {
	h := newHarness(t, jobs.RetryPolicy{}, 0)
	ctx := context.Background()
	testsupport.NewJob(t, h.store, "ghost", queue.DeviceCPU, map[string]any{})
	claimed, err := h.store.ClaimNext(ctx, queue.DeviceCPU)
	if err != nil || claimed == nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	job, err := h.manager.Execute(ctx, claimed)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if job.Status != queue.StatusError || !strings.Contains(job.StatusMessage, "unsupported job type") {
		t.Fatalf("unexpected job %+v", job)
	}
}

func TestAbortRunningJob(t *testing.T) {
	h := newHarness(t, jobs.RetryPolicy{}, 0)
	ctx := context.Background()
	submitted, err := h.service.Submit(ctx, "task", input{Mode: "block"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	claimed, err := h.store.ClaimNext(ctx, queue.DeviceCPU)
	if err != nil || claimed == nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}

	done := make(chan *queue.Job, 1)
	go func() {
		job, _ := h.manager.Execute(ctx, claimed)
		done <- job
	}()

	for h.calls.Load() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	requested, err := h.service.Abort(ctx, submitted.ID)
	if err != nil {
		t.Fatalf("Abort failed: %v", err)
	}
	if requested.Status != queue.StatusRunning || !requested.AbortRequested {
		t.Fatalf("expected abort flag on running job, got %+v", requested)
	}

	select {
	case job := <-done:
		if job.Status != queue.StatusAborted {
			t.Fatalf("expected aborted, got %s", job.Status)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("job was not aborted")
	}
	status, err := h.tracker.StatusByType(ctx, "entity-block", "task")
	if err != nil || status != queue.StatusAborted {
		t.Fatalf("expected tracker aborted row, got %s (%v)", status, err)
	}
}

func TestAbortWaitsForCurrentStep(t *testing.T) {
	h := newHarness(t, jobs.RetryPolicy{MaxRetries: 2}, 0)
	ctx := context.Background()
	submitted, err := h.service.Submit(ctx, "task", input{Mode: "staged"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	claimed, err := h.store.ClaimNext(ctx, queue.DeviceCPU)
	if err != nil || claimed == nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}

	done := make(chan *queue.Job, 1)
	go func() {
		job, _ := h.manager.Execute(ctx, claimed)
		done <- job
	}()

	for h.calls.Load() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	if _, err := h.service.Abort(ctx, submitted.ID); err != nil {
		t.Fatalf("Abort failed: %v", err)
	}

	select {
	case job := <-done:
		if job.Status != queue.StatusAborted {
			t.Fatalf("expected aborted, got %s (%s)", job.Status, job.StatusMessage)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("job was not aborted")
	}
	if !h.slowCompleted.Load() {
		t.Fatal("step in flight was interrupted by the abort")
	}
	if h.nextRan.Load() {
		t.Fatal("step after the abort should not run")
	}
	if got := h.calls.Load(); got != 1 {
		t.Fatalf("aborted job should not be retried, handler ran %d times", got)
	}
}

func TestManagerProcessesQueue(t *testing.T) {
	h := newHarness(t, jobs.RetryPolicy{}, 0)
	ctx := context.Background()
	submitted, err := h.service.Submit(ctx, "task", input{Mode: "ok"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if err := h.manager.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := h.manager.Start(ctx); err == nil {
		t.Fatal("expected second Start to fail")
	}
	defer h.manager.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for {
		job, err := h.service.Get(ctx, submitted.ID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if job.Status == queue.StatusFinished {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job not finished in time, status %s", job.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}

	summary := h.manager.Status(ctx)
	if !summary.Running || len(summary.Lanes) != 3 {
		t.Fatalf("unexpected status %+v", summary)
	}
	if summary.LastJobID != submitted.ID {
		t.Fatalf("expected last job %s, got %s", submitted.ID, summary.LastJobID)
	}
	h.manager.Stop()
	if h.manager.Status(ctx).Running {
		t.Fatal("expected manager stopped")
	}
}
