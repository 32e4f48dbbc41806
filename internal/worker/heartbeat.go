package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"docflow/internal/logging"
	"docflow/internal/queue"
)

// HeartbeatMonitor keeps running jobs alive and reclaims abandoned ones.
type HeartbeatMonitor struct {
	store    *queue.Store
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration
}

// beat stamps the job until ctx ends. The first time an abort request is
// seen it calls onAbort; beating continues so the step in flight can finish
// without the job looking stale.
func (h *HeartbeatMonitor) beat(ctx context.Context, jobID string, onAbort func()) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, h.logger.With(logging.String(logging.FieldComponent, "worker-heartbeat")))
	observed := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			abort, err := h.store.Heartbeat(ctx, jobID)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				logger.Warn("heartbeat update failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "heartbeat_failed"),
					logging.String(logging.FieldErrorHint, "job may be reclaimed by another worker"),
				)
				continue
			}
			if abort && !observed {
				observed = true
				logger.Info("abort observed", logging.String(logging.FieldEventType, "job_abort_observed"))
				onAbort()
			}
		}
	}
}

// ReclaimStale requeues RUNNING jobs whose last heartbeat is older than the
// timeout.
func (h *HeartbeatMonitor) ReclaimStale(ctx context.Context) (int64, error) {
	if h.timeout <= 0 {
		return 0, nil
	}
	reclaimed, err := h.store.ReclaimStale(ctx, time.Now().Add(-h.timeout))
	if err != nil {
		return 0, err
	}
	if reclaimed > 0 {
		h.logger.Info("reclaimed stale jobs",
			logging.Int64("count", reclaimed),
			logging.String(logging.FieldEventType, "heartbeat_reclaim"),
		)
	}
	return reclaimed, nil
}

func (h *HeartbeatMonitor) reclaimLoop(ctx context.Context) {
	if h.timeout <= 0 {
		return
	}
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := h.ReclaimStale(ctx); err != nil && !errors.Is(err, context.Canceled) {
				h.logger.Warn("reclaim stale jobs failed; stuck jobs may remain",
					logging.Error(err),
					logging.String(logging.FieldEventType, "heartbeat_reclaim_failed"),
					logging.String(logging.FieldErrorHint, "check queue database access"),
				)
			}
		}
	}
}
