package daemon_test

import (
	"context"
	"testing"
	"time"

	"docflow/internal/daemon"
	"docflow/internal/daemonrun"
	"docflow/internal/queue"
	"docflow/internal/testsupport"
)

func newDaemon(t *testing.T, ctx context.Context) (*daemonrun.App, *daemon.Daemon) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(1, 0, 1))
	app, err := daemonrun.Build(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })
	d, err := app.NewDaemon()
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)
	return app, d
}

func TestDaemonStartStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	app, d := newDaemon(t, ctx)

	if held, err := daemon.LockHeld(app.Config); err != nil || held {
		t.Fatalf("expected lock free before start, held=%v err=%v", held, err)
	}
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status := d.Status(ctx)
	if !status.Running || !status.Workers.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.APIAddress == "" {
		t.Fatal("expected api address")
	}
	for _, result := range status.Preflight {
		if !result.Passed {
			t.Fatalf("preflight %s failed: %s", result.Name, result.Detail)
		}
	}
	if held, err := daemon.LockHeld(app.Config); err != nil || !held {
		t.Fatalf("expected lock held while running, held=%v err=%v", held, err)
	}

	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
	if held, err := daemon.LockHeld(app.Config); err != nil || held {
		t.Fatalf("expected lock released, held=%v err=%v", held, err)
	}
}

func TestSecondDaemonRefused(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	app, first := newDaemon(t, ctx)
	if err := first.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	other, err := daemonrun.Build(ctx, app.Config, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer other.Close()
	second, err := other.NewDaemon()
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := second.Start(ctx); err == nil {
		second.Stop()
		t.Fatal("expected lock contention error")
	}
}

func TestStartRequeuesInterruptedJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	app, d := newDaemon(t, ctx)

	job := testsupport.NewJob(t, app.Store, "unregistered", queue.DeviceGPU, map[string]string{})
	if _, err := app.Store.ClaimNext(ctx, queue.DeviceGPU); err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	got, err := app.Store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != queue.StatusWaiting {
		t.Fatalf("expected job requeued, got %s", got.Status)
	}
}

func TestPurgeExpired(t *testing.T) {
	ctx := context.Background()
	app, d := newDaemon(t, ctx)

	job := &queue.Job{Type: "unregistered", Device: queue.DeviceGPU, Input: []byte(`{}`), ResultTTL: time.Hour}
	if err := app.Store.Create(ctx, job); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := app.Store.ClaimNext(ctx, queue.DeviceGPU); err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if _, err := app.Store.Transition(ctx, job.ID, queue.StatusRunning, queue.StatusError, queue.Outcome{Message: "boom"}); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	purged, err := d.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if purged != 0 {
		t.Fatalf("fresh job should not be purged, got %d", purged)
	}
	purged, err = app.Store.PurgeExpired(ctx, time.Now().Add(2*time.Hour))
	if err != nil {
		t.Fatalf("store PurgeExpired: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected 1 purged job, got %d", purged)
	}
	if _, err := app.Store.GetByID(ctx, job.ID); err == nil {
		t.Fatal("expected expired job to be purged")
	}
}
