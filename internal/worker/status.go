package worker

import (
	"context"

	"docflow/internal/logging"
	"docflow/internal/queue"
)

// LaneStatus summarises one device lane.
type LaneStatus struct {
	Device  queue.Device `json:"device"`
	Workers int          `json:"workers"`
	Waiting int          `json:"waiting"`
	Running int          `json:"running"`
}

// StatusSummary is the manager's diagnostic view.
type StatusSummary struct {
	Running   bool                `json:"running"`
	LastError string              `json:"last_error,omitempty"`
	LastJobID string              `json:"last_job_id,omitempty"`
	Lanes     []LaneStatus        `json:"lanes"`
	Health    queue.HealthSummary `json:"health"`
}

// Status returns the latest manager information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{Running: m.running}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	if m.lastJob != nil {
		summary.LastJobID = m.lastJob.ID
	}
	m.mu.RUnlock()

	counts := make(map[queue.Device]queue.LaneStats)
	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read queue stats", logging.Error(err))
	}
	for _, lane := range stats {
		counts[lane.Device] = lane
	}
	for _, device := range queue.Devices() {
		lane := counts[device]
		summary.Lanes = append(summary.Lanes, LaneStatus{
			Device:  device,
			Workers: m.workers[device],
			Waiting: lane.Waiting(),
			Running: lane.Running(),
		})
	}
	if health, err := m.store.Health(ctx); err == nil {
		summary.Health = health
	}
	return summary
}

func (m *Manager) setLastError(err error) {
	if err == nil {
		return
	}
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastJob(job *queue.Job) {
	m.mu.Lock()
	if job != nil {
		copy := *job
		m.lastJob = &copy
	}
	m.mu.Unlock()
}
