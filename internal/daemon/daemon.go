package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"docflow/internal/api"
	"docflow/internal/config"
	"docflow/internal/events"
	"docflow/internal/jobs"
	"docflow/internal/logging"
	"docflow/internal/preflight"
	"docflow/internal/queue"
	"docflow/internal/tracker"
	"docflow/internal/worker"
)

// Deps are the wired services the daemon runs.
type Deps struct {
	Config  *config.Config
	Store   *queue.Store
	Jobs    *jobs.Service
	Tracker *tracker.Tracker
	Bus     *events.Bus
	Workers *worker.Manager
	Logger  *slog.Logger
}

// Daemon coordinates the background services and enforces single-instance execution.
type Daemon struct {
	cfg     *config.Config
	store   *queue.Store
	workers *worker.Manager
	logger  *slog.Logger
	api     *apiServer

	lockPath string
	lock     *flock.Flock

	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
	group   *errgroup.Group

	resultsMu sync.Mutex
	preflight []preflight.Result
}

// New constructs a daemon with initialized dependencies.
func New(deps Deps) (*Daemon, error) {
	if deps.Config == nil || deps.Store == nil || deps.Jobs == nil || deps.Workers == nil {
		return nil, errors.New("daemon requires config, store, job service, and worker manager")
	}
	logger := logging.NewComponentLogger(deps.Logger, "daemon")
	d := &Daemon{
		cfg:      deps.Config,
		store:    deps.Store,
		workers:  deps.Workers,
		logger:   logger,
		lockPath: deps.Config.LockPath(),
		lock:     flock.New(deps.Config.LockPath()),
	}
	srv, err := newAPIServer(deps, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = srv
	return d, nil
}

// Start acquires the daemon lock, requeues interrupted jobs and launches the
// worker lanes, the API server and the maintenance loop.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := d.cfg.EnsureDirectories(); err != nil {
		return err
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another docflow daemon instance is already running")
	}

	results := preflight.RunAll(ctx, d.cfg)
	d.resultsMu.Lock()
	d.preflight = results
	d.resultsMu.Unlock()
	if err := preflight.Err(results); err != nil {
		_ = d.lock.Unlock()
		return err
	}

	if reset, err := d.store.ResetRunning(ctx); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("reset running jobs: %w", err)
	} else if reset > 0 {
		d.logger.Info("requeued interrupted jobs",
			logging.String(logging.FieldEventType, "jobs_requeued"),
			logging.Int64("count", reset),
		)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.workers.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workers: %w", err)
	}
	if err := d.api.start(runCtx); err != nil {
		cancel()
		d.workers.Stop()
		_ = d.lock.Unlock()
		return err
	}

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		d.maintenanceLoop(gctx)
		return nil
	})
	d.group = g
	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("docflow daemon started",
		logging.String(logging.FieldEventType, "daemon_start"),
		logging.String("lock", d.lockPath),
		logging.String("database", d.cfg.DatabasePath()),
		logging.String("api", d.api.address()),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.workers.Stop()
	if d.group != nil {
		_ = d.group.Wait()
		d.group = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("docflow daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

// PurgeExpired deletes terminal jobs whose result TTL has elapsed.
func (d *Daemon) PurgeExpired(ctx context.Context) (int64, error) {
	return d.store.PurgeExpired(ctx, time.Now())
}

func (d *Daemon) maintenanceLoop(ctx context.Context) {
	interval := d.cfg.MaintenanceInterval()
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := d.PurgeExpired(ctx)
			if err != nil {
				if ctx.Err() == nil {
					logging.WarnWithContext(d.logger, "result purge failed", "purge_failed",
						logging.String(logging.FieldErrorHint, "expired jobs will be retried next interval"),
						logging.Error(err),
					)
				}
				continue
			}
			if purged > 0 {
				d.logger.Info("purged expired jobs",
					logging.String(logging.FieldEventType, "jobs_purged"),
					logging.Int64("count", purged),
				)
			}
		}
	}
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) api.DaemonStatus {
	d.resultsMu.Lock()
	results := append([]preflight.Result(nil), d.preflight...)
	d.resultsMu.Unlock()
	return api.DaemonStatus{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DatabasePath: d.cfg.DatabasePath(),
		LockFilePath: d.lockPath,
		APIAddress:   d.api.address(),
		Workers:      d.workers.Status(ctx),
		Preflight:    results,
	}
}

// APIAddress reports the bound HTTP address, empty when the API is disabled
// or not started.
func (d *Daemon) APIAddress() string {
	return d.api.address()
}

// LockHeld reports whether another process owns the daemon lock for cfg.
func LockHeld(cfg *config.Config) (bool, error) {
	if _, err := os.Stat(cfg.LockPath()); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	candidate := flock.New(cfg.LockPath())
	ok, err := candidate.TryLock()
	if err != nil {
		return false, fmt.Errorf("check lock: %w", err)
	}
	if ok {
		_ = candidate.Unlock()
		return false, nil
	}
	return true, nil
}
