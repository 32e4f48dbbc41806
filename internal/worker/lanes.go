package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"docflow/internal/logging"
	"docflow/internal/queue"
)

// Start launches the lanes in the background. Stop ends them.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("worker manager already running")
	}
	if m.totalWorkers() == 0 {
		m.mu.Unlock()
		return errors.New("no worker lanes configured")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	go func() {
		defer close(done)
		if err := m.Run(runCtx); err != nil {
			m.setLastError(err)
		}
	}()
	return nil
}

// Stop cancels the lanes and waits for in-flight handlers to return. Jobs
// interrupted this way stay RUNNING until the next start resets them.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	done := m.done
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	<-done
}

// Run blocks running every lane and the stale-job reclaimer until ctx ends.
func (m *Manager) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, device := range queue.Devices() {
		count := m.workers[device]
		if count <= 0 {
			continue
		}
		laneLogger := m.logger.With(logging.String(logging.FieldDevice, string(device)))
		laneLogger.Info("worker lane started",
			logging.String(logging.FieldEventType, "lane_start"),
			logging.Int("workers", count),
		)
		for i := 0; i < count; i++ {
			device := device
			workerLogger := laneLogger.With(logging.String("worker", fmt.Sprintf("%s-%d", device, i+1)))
			g.Go(func() error {
				m.runWorker(gctx, device, workerLogger)
				return nil
			})
		}
	}
	g.Go(func() error {
		m.heartbeat.reclaimLoop(gctx)
		return nil
	})
	return g.Wait()
}

func (m *Manager) runWorker(ctx context.Context, device queue.Device, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := m.store.ClaimNext(ctx, device)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.handleClaimError(ctx, logger, err)
			continue
		}
		if job == nil {
			m.waitOrShutdown(ctx, m.pollInterval)
			continue
		}

		if _, err := m.Execute(ctx, job); err != nil && errors.Is(err, context.Canceled) {
			return
		}
	}
}

func (m *Manager) handleClaimError(ctx context.Context, logger *slog.Logger, err error) {
	m.setLastError(err)
	logger.Error("failed to claim next job",
		logging.Error(err),
		logging.String(logging.FieldEventType, "queue_claim_failed"),
		logging.String(logging.FieldErrorHint, "check queue database access"),
	)
	m.waitOrShutdown(ctx, m.errorRetryInterval)
}

func (m *Manager) waitOrShutdown(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (m *Manager) totalWorkers() int {
	total := 0
	for _, n := range m.workers {
		if n > 0 {
			total += n
		}
	}
	return total
}
