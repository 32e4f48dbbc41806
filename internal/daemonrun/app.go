package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"docflow/internal/branch"
	"docflow/internal/classify"
	"docflow/internal/config"
	"docflow/internal/events"
	"docflow/internal/ingest"
	"docflow/internal/jobs"
	"docflow/internal/jobtypes"
	"docflow/internal/logging"
	"docflow/internal/queue"
	"docflow/internal/sdoc"
	"docflow/internal/tracker"
	"docflow/internal/worker"
)

// App is the fully wired set of services shared by the daemon and the CLI.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Store     *queue.Store
	Tracker   *tracker.Tracker
	Documents *sdoc.Store
	Bus       *events.Bus
	Registry  *jobs.Registry
	Jobs      *jobs.Service
	Workers   *worker.Manager

	detach func()
}

// Build opens the database and wires every component. Workers are created
// but not started.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...worker.Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	store, err := queue.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open queue store: %w", err)
	}
	app := &App{Config: cfg, Logger: logger, Store: store}
	if err := app.wire(ctx, opts); err != nil {
		_ = store.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) wire(ctx context.Context, opts []worker.Option) error {
	cfg := a.Config
	var err error
	if a.Tracker, err = tracker.New(ctx, a.Store.DB()); err != nil {
		return fmt.Errorf("open status tracker: %w", err)
	}
	if a.Documents, err = sdoc.New(ctx, a.Store.DB()); err != nil {
		return fmt.Errorf("open document store: %w", err)
	}

	builder, err := ingest.NewBuilder(ingest.Collaborators{
		Documents:    a.Documents,
		Search:       a.Documents,
		Vectors:      a.Documents,
		Embedder:     ingest.HashingEmbedder{Dims: cfg.Ingest.EmbeddingDims},
		MaxFileBytes: cfg.Ingest.MaxFileBytes,
	}, a.Logger)
	if err != nil {
		return err
	}
	classifier, err := classify.NewKeywordClassifier(cfg.Classification.Labels)
	if err != nil {
		return fmt.Errorf("build classifier: %w", err)
	}

	a.Bus = events.NewBus(cfg.Jobs.EventHistory, a.Logger)
	a.Registry = jobs.NewRegistry(cfg.DefaultResultTTL())
	if err := jobtypes.Register(a.Registry, jobtypes.Deps{
		Builder:         builder,
		Documents:       a.Documents,
		Tracker:         a.Tracker,
		Classifier:      classifier,
		StagingDir:      cfg.Paths.StagingDir,
		MaxArchiveFiles: cfg.Ingest.MaxArchiveFiles,
		Logger:          a.Logger,
	}); err != nil {
		return fmt.Errorf("register job types: %w", err)
	}

	if a.Jobs, err = jobs.NewService(jobs.ServiceDeps{
		Registry: a.Registry,
		Store:    a.Store,
		Tracker:  a.Tracker,
		Bus:      a.Bus,
		Logger:   a.Logger,
	}); err != nil {
		return err
	}
	if a.Workers, err = worker.NewManager(worker.Deps{
		Config:   cfg,
		Store:    a.Store,
		Registry: a.Registry,
		Tracker:  a.Tracker,
		Bus:      a.Bus,
		Logger:   a.Logger,
	}, opts...); err != nil {
		return err
	}
	a.detach = branch.Attach(a.Bus, a.Jobs, a.Logger, jobtypes.Operators()...)
	return nil
}

// Close stops the workers if running and releases the database.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	if a.Workers != nil {
		a.Workers.Stop()
	}
	if a.detach != nil {
		a.detach()
	}
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}
