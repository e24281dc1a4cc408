package app

import (
	"context"
	"fmt"

	"github.com/yungbote/studygraph-ingest/internal/catalog"
	"github.com/yungbote/studygraph-ingest/internal/data/graph"
	"github.com/yungbote/studygraph-ingest/internal/ingest"
	"github.com/yungbote/studygraph-ingest/internal/observability"
	"github.com/yungbote/studygraph-ingest/internal/pipeline"
	"github.com/yungbote/studygraph-ingest/internal/platform/logger"
	"github.com/yungbote/studygraph-ingest/internal/platform/neo4jdb"
	"github.com/yungbote/studygraph-ingest/internal/source"
)

// memoryPoolSize bounds concurrency for dry runs against the in-memory store.
const memoryPoolSize = 8

type App struct {
	Log     *logger.Logger
	Cfg     Config
	Catalog *catalog.Catalog
	Store   ingest.Store
	Engine  *ingest.Engine
	Runner  *pipeline.Runner
	Metrics *observability.Metrics

	closers []func(ctx context.Context) error
}

// New loads configuration from the environment and wires one ingestion run.
func New(ctx context.Context) (*App, error) {
	cfg, err := LoadConfig("")
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.LogMode, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a, err := NewWithConfig(ctx, log, cfg)
	if err != nil {
		log.Sync()
		return nil, err
	}
	return a, nil
}

func NewWithConfig(ctx context.Context, log *logger.Logger, cfg Config) (*App, error) {
	a := &App{Log: log, Cfg: cfg, Metrics: observability.NewMetrics()}
	log.Info("Configuration loaded",
		"graph_store", cfg.GraphStore,
		"source_storage", cfg.Source.Storage,
		"partitions", cfg.Ingest.Partitions,
		"retry", cfg.RetryPolicy().String(),
		"kinds", cfg.Kinds,
	)

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	if len(cfg.Kinds) > 0 {
		if cat, err = cat.Select(cfg.Kinds); err != nil {
			return nil, fmt.Errorf("select kinds: %w", err)
		}
	}
	a.Catalog = cat

	shutdown := observability.InitTracing(ctx, log, cfg.TracingOptions())
	a.closers = append(a.closers, shutdown)

	store, err := a.wireStore()
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.Store = store

	engine, err := ingest.New(store, log, cfg.EngineOptions(a.Metrics))
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("init engine: %w", err)
	}
	a.Engine = engine

	opener, closeOpener, err := resolveSourceOpener(ctx, log, cfg.Source)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return closeOpener() })

	loader, err := source.NewLoader(opener, log)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	opts := pipeline.RunnerOptions{
		Reset:   cfg.Ingest.ResetStore,
		Metrics: a.Metrics,
		Tracer:  observability.Tracer(),
	}
	if cfg.Ingest.Preflight {
		opts.Preflight = opener
	}
	runner, err := pipeline.NewRunner(log, cat, engine, loader, opts)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.Runner = runner
	return a, nil
}

func (a *App) wireStore() (ingest.Store, error) {
	switch a.Cfg.GraphStore {
	case GraphStoreMemory:
		a.Log.Warn("Using in-memory graph store; nothing is persisted")
		return graph.NewMemoryStore(memoryPoolSize), nil
	default:
		client, err := neo4jdb.New(a.Cfg.Neo4jClientConfig(), a.Log)
		if err != nil {
			return nil, fmt.Errorf("init neo4j: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		store, err := graph.NewNeo4jStore(client, a.Log)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}

// Run executes one ingestion and pushes run metrics when a Pushgateway is
// configured.
func (a *App) Run(ctx context.Context) (*pipeline.Report, error) {
	if a == nil || a.Runner == nil {
		return nil, fmt.Errorf("app not initialized")
	}
	rep, runErr := a.Runner.Run(ctx)
	runID := ""
	if rep != nil {
		runID = rep.RunID.String()
	}
	if err := a.Metrics.Push(context.WithoutCancel(ctx), a.Cfg.PushgatewayURL, a.Cfg.PushgatewayJob, runID); err != nil {
		a.Log.Warn("Metrics push failed", "error", err)
	}
	return rep, runErr
}

// Close releases clients in reverse order of creation.
func (a *App) Close(ctx context.Context) {
	if a == nil {
		return
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil && a.Log != nil {
			a.Log.Warn("Shutdown step failed", "error", err)
		}
	}
	a.closers = nil
	if a.Log != nil {
		a.Log.Sync()
	}
}
