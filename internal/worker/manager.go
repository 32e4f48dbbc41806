package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"docflow/internal/config"
	"docflow/internal/events"
	"docflow/internal/jobs"
	"docflow/internal/logging"
	"docflow/internal/queue"
	"docflow/internal/tracker"
)

// Deps wires a Manager. Tracker and Bus are optional.
type Deps struct {
	Config   *config.Config
	Store    *queue.Store
	Registry *jobs.Registry
	Tracker  *tracker.Tracker
	Bus      *events.Bus
	Logger   *slog.Logger
}

// Intervals override the configured timings; zero fields keep the config value.
type Intervals struct {
	Poll       time.Duration
	ErrorRetry time.Duration
	Heartbeat  time.Duration
	// HeartbeatTimeout is the age after which a RUNNING job is reclaimed.
	HeartbeatTimeout time.Duration
}

// Option configures optional Manager behavior.
type Option func(*Manager)

// WithIntervals overrides poll and heartbeat timings.
func WithIntervals(iv Intervals) Option {
	return func(m *Manager) {
		if iv.Poll > 0 {
			m.pollInterval = iv.Poll
		}
		if iv.ErrorRetry > 0 {
			m.errorRetryInterval = iv.ErrorRetry
		}
		if iv.Heartbeat > 0 {
			m.heartbeat.interval = iv.Heartbeat
		}
		if iv.HeartbeatTimeout > 0 {
			m.heartbeat.timeout = iv.HeartbeatTimeout
		}
	}
}

// WithWorkers overrides the per-device lane sizes.
func WithWorkers(counts map[queue.Device]int) Option {
	return func(m *Manager) {
		for device, n := range counts {
			m.workers[device] = n
		}
	}
}

// Manager coordinates the device lanes.
type Manager struct {
	store    *queue.Store
	registry *jobs.Registry
	tracker  *tracker.Tracker
	bus      *events.Bus
	logger   *slog.Logger

	pollInterval       time.Duration
	errorRetryInterval time.Duration
	heartbeat          *HeartbeatMonitor
	workers            map[queue.Device]int

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	lastErr error
	lastJob *queue.Job
}

// NewManager constructs a worker manager.
func NewManager(deps Deps, opts ...Option) (*Manager, error) {
	if deps.Config == nil {
		return nil, errors.New("worker manager: config is required")
	}
	if deps.Store == nil || deps.Registry == nil {
		return nil, errors.New("worker manager: queue store and registry are required")
	}
	logger := logging.NewComponentLogger(deps.Logger, "worker")
	m := &Manager{
		store:              deps.Store,
		registry:           deps.Registry,
		tracker:            deps.Tracker,
		bus:                deps.Bus,
		logger:             logger,
		pollInterval:       deps.Config.PollInterval(),
		errorRetryInterval: deps.Config.ErrorRetryInterval(),
		heartbeat: &HeartbeatMonitor{
			store:    deps.Store,
			logger:   logger,
			interval: deps.Config.HeartbeatInterval(),
			timeout:  deps.Config.HeartbeatTimeout(),
		},
		workers: make(map[queue.Device]int, 3),
	}
	for _, device := range queue.Devices() {
		m.workers[device] = deps.Config.WorkerCount(string(device))
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}
