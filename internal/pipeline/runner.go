package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/studygraph-ingest/internal/catalog"
	"github.com/yungbote/studygraph-ingest/internal/domain"
	"github.com/yungbote/studygraph-ingest/internal/ingest"
	"github.com/yungbote/studygraph-ingest/internal/observability"
	"github.com/yungbote/studygraph-ingest/internal/platform/ctxutil"
	"github.com/yungbote/studygraph-ingest/internal/platform/logger"
	"github.com/yungbote/studygraph-ingest/internal/source"
)

type RunnerOptions struct {
	// Reset empties the store before any kind is written.
	Reset bool
	// Preflight, when set, is checked for every catalog source before the
	// store is touched.
	Preflight source.Opener
	Metrics   *observability.Metrics
	Tracer    trace.Tracer
}

// Report summarises a successful run.
type Report struct {
	RunID         uuid.UUID
	Nodes         []ingest.NodeResult
	Relationships []ingest.RelationshipResult
	// Batches counts non-empty relationship batches written.
	Batches  int
	Duration time.Duration
}

type Runner struct {
	log     *logger.Logger
	catalog *catalog.Catalog
	engine  *ingest.Engine
	loader  Loader
	opts    RunnerOptions
	tracer  trace.Tracer
}

func NewRunner(log *logger.Logger, cat *catalog.Catalog, engine *ingest.Engine, loader Loader, opts RunnerOptions) (*Runner, error) {
	if cat == nil || engine == nil || loader == nil {
		return nil, fmt.Errorf("pipeline: catalog, engine and loader are required")
	}
	if log == nil {
		log = logger.NewNop()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("pipeline")
	}
	return &Runner{
		log:     log.With("component", "PipelineRunner"),
		catalog: cat,
		engine:  engine,
		loader:  loader,
		opts:    opts,
		tracer:  tracer,
	}, nil
}

// Run ingests the whole catalog: verify, optional reset, node kinds, indexes,
// relationship kinds. A failed stage keeps the next stage from starting.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	started := time.Now()
	rep := &Report{RunID: uuid.New()}
	log := r.log.With("run_id", rep.RunID.String())
	ctx = ctxutil.WithRunData(ctx, &ctxutil.RunData{RunID: rep.RunID.String()})
	ctx, span := r.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("run_id", rep.RunID.String()),
		attribute.Int("node_kinds", len(r.catalog.Nodes)),
		attribute.Int("relationship_kinds", len(r.catalog.Relationships)),
	))
	defer span.End()
	log.Info("ingestion run starting",
		"node_kinds", len(r.catalog.Nodes),
		"relationship_kinds", len(r.catalog.Relationships),
		"concurrency", r.engine.Limit(),
		"reset", r.opts.Reset,
	)

	stages := []struct {
		name string
		fn   func(ctx context.Context) error
		skip bool
	}{
		{name: "preflight", fn: r.preflight, skip: r.opts.Preflight == nil},
		{name: "verify", fn: r.engine.Verify},
		{name: "reset", fn: r.engine.Reset, skip: !r.opts.Reset},
		{name: "nodes", fn: func(ctx context.Context) error { return r.runNodes(ctx, log, rep) }},
		{name: "indexes", fn: func(ctx context.Context) error { return r.engine.CreateIndexes(ctx, r.catalog.Nodes) }},
		{name: "relationships", fn: func(ctx context.Context) error { return r.runRelationships(ctx, log, rep) }},
	}
	for _, s := range stages {
		if s.skip {
			continue
		}
		if err := r.stage(ctx, log, s.name, s.fn); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			rep.Duration = time.Since(started)
			return rep, err
		}
	}
	rep.Duration = time.Since(started)
	log.Info("ingestion run finished",
		"nodes", len(rep.Nodes),
		"relationships", len(rep.Relationships),
		"batches", rep.Batches,
		"duration", rep.Duration.String(),
	)
	return rep, nil
}

func (r *Runner) stage(ctx context.Context, log *logger.Logger, name string, fn func(ctx context.Context) error) error {
	ctx, span := r.tracer.Start(ctx, "pipeline."+name)
	defer span.End()
	start := time.Now()
	log.Info("stage starting", "stage", name)
	err := fn(ctx)
	dur := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.opts.Metrics.ObserveStage(name, "failed", dur)
		log.Error("stage failed", "stage", name, "duration", dur.String(), "error", err.Error())
		return fmt.Errorf("stage %s: %w", name, err)
	}
	r.opts.Metrics.ObserveStage(name, "succeeded", dur)
	log.Info("stage finished", "stage", name, "duration", dur.String())
	return nil
}

func (r *Runner) preflight(ctx context.Context) error {
	datasets := make([]domain.Dataset, 0, len(r.catalog.Nodes)+len(r.catalog.Relationships))
	for _, n := range r.catalog.Nodes {
		datasets = append(datasets, n.Dataset)
	}
	for _, rel := range r.catalog.Relationships {
		datasets = append(datasets, rel.Dataset)
	}
	return source.Preflight(ctx, r.opts.Preflight, datasets)
}

func (r *Runner) runNodes(ctx context.Context, log *logger.Logger, rep *Report) error {
	pipes := make([]Pipeline, len(r.catalog.Nodes))
	for i, k := range r.catalog.Nodes {
		pipes[i] = NodePipeline(k, r.loader, r.engine)
	}
	states, err := r.runAll(ctx, log, pipes)
	for _, st := range states {
		if st != nil && st.Node.Kind != "" {
			rep.Nodes = append(rep.Nodes, st.Node)
		}
	}
	return err
}

func (r *Runner) runRelationships(ctx context.Context, log *logger.Logger, rep *Report) error {
	pipes := make([]Pipeline, len(r.catalog.Relationships))
	for i, k := range r.catalog.Relationships {
		pipes[i] = RelationshipPipeline(k, r.loader, r.engine)
	}
	states, err := r.runAll(ctx, log, pipes)
	for _, st := range states {
		if st != nil && st.Relationship.Kind != "" {
			rep.Relationships = append(rep.Relationships, st.Relationship)
			rep.Batches += st.Relationship.Batches
		}
	}
	return err
}

// runAll runs pipelines concurrently. Pipelines already running finish after
// a sibling fails; states are returned in input order.
func (r *Runner) runAll(ctx context.Context, log *logger.Logger, pipes []Pipeline) ([]*State, error) {
	states := make([]*State, len(pipes))
	errs := make([]error, len(pipes))
	var failed atomic.Bool
	g := new(errgroup.Group)
	for i, p := range pipes {
		g.Go(func() error {
			if failed.Load() {
				return nil
			}
			st, err := p.Run(ctx, log, r.opts.Metrics)
			states[i] = st
			if err != nil {
				failed.Store(true)
				errs[i] = err
			}
			return err
		})
	}
	_ = g.Wait()
	return states, errors.Join(errs...)
}
