// Package ingest writes catalog entities to the graph store: node kinds as
// one transaction each, relationship kinds as partitioned batches written
// concurrently. Every store call runs under the retry policy and holds one
// slot of a semaphore sized to the store's connection pool.
package ingest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/yungbote/studygraph-ingest/internal/domain"
	"github.com/yungbote/studygraph-ingest/internal/ingest/partition"
	"github.com/yungbote/studygraph-ingest/internal/observability"
	"github.com/yungbote/studygraph-ingest/internal/platform/logger"
	"github.com/yungbote/studygraph-ingest/internal/platform/retry"
)

// Store is the graph store surface the engine drives. Implementations make a
// single attempt per call and report retryable failures through
// retry.ErrTransient.
type Store interface {
	PoolSize() int
	VerifyConnectivity(ctx context.Context) error
	CreateNodes(ctx context.Context, kind domain.NodeKind, records []domain.Record) (int, error)
	CreateRelationships(ctx context.Context, kind domain.RelationshipKind, records []domain.Record) (int, error)
	CreateIndex(ctx context.Context, label, property string) error
	DropIndex(ctx context.Context, label, property string) error
	ClearDatabase(ctx context.Context) error
	DropAllConstraints(ctx context.Context) error
	DropAllIndexes(ctx context.Context) error
}

type Options struct {
	Policy retry.Policy
	// Partitions is the default partition count; relationship kinds may override it.
	Partitions int
	// Concurrency caps concurrent store calls. Zero or anything above the
	// store's pool size means the pool size.
	Concurrency int
	Metrics     *observability.Metrics
	Tracer      trace.Tracer
}

type Engine struct {
	store   Store
	log     *logger.Logger
	policy  retry.Policy
	limit   int
	sem     *semaphore.Weighted
	metrics *observability.Metrics
	tracer  trace.Tracer

	planner *partition.Planner
}

type NodeResult struct {
	Kind  string
	Label string
	Rows  int
}

type RelationshipResult struct {
	Kind    string
	Label   string
	Rows    int
	Created int
	// Batches counts non-empty batches written.
	Batches int
}

func New(store Store, log *logger.Logger, opts Options) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("ingest: store required")
	}
	if log == nil {
		log = logger.NewNop()
	}
	planner, err := partition.NewPlanner(opts.Partitions)
	if err != nil {
		return nil, err
	}
	limit := ConcurrencyLimit(opts.Concurrency, store.PoolSize())
	tracer := opts.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("ingest")
	}
	return &Engine{
		store:   store,
		log:     log.With("component", "IngestEngine"),
		policy:  opts.Policy,
		limit:   limit,
		sem:     semaphore.NewWeighted(int64(limit)),
		metrics: opts.Metrics,
		tracer:  tracer,
		planner: planner,
	}, nil
}

// ConcurrencyLimit resolves the configured concurrency against the pool size.
func ConcurrencyLimit(configured, poolSize int) int {
	if poolSize < 1 {
		poolSize = 1
	}
	if configured <= 0 || configured > poolSize {
		return poolSize
	}
	return configured
}

// Limit is the maximum number of concurrent store calls.
func (e *Engine) Limit() int { return e.limit }

// Verify checks store connectivity. Connectivity and transient errors are
// retried under the engine's backoff policy; anything else, such as rejected
// credentials, fails on the first attempt.
func (e *Engine) Verify(ctx context.Context) error {
	return e.call(ctx, "verify_connectivity", e.policy, func(ctx context.Context) error {
		return e.store.VerifyConnectivity(ctx)
	})
}

// Reset empties the store: all nodes and edges, then constraints, then indexes.
func (e *Engine) Reset(ctx context.Context) error {
	steps := []struct {
		op string
		fn func(context.Context) error
	}{
		{"clear_database", e.store.ClearDatabase},
		{"drop_constraints", e.store.DropAllConstraints},
		{"drop_indexes", e.store.DropAllIndexes},
	}
	for _, s := range steps {
		if err := e.call(ctx, s.op, e.policy, s.fn); err != nil {
			return fmt.Errorf("reset store: %w", err)
		}
	}
	return nil
}

// IngestNodes writes all records of one node kind in a single transaction.
func (e *Engine) IngestNodes(ctx context.Context, kind domain.NodeKind, records []domain.Record) (NodeResult, error) {
	res := NodeResult{Kind: kind.Name, Label: kind.Label}
	if len(records) == 0 {
		e.log.Info("node kind empty; nothing to write", "kind", kind.Name)
		return res, nil
	}
	ctx, span := e.tracer.Start(ctx, "ingest.nodes", trace.WithAttributes(
		attribute.String("kind", kind.Name),
		attribute.String("label", kind.Label),
		attribute.Int("rows", len(records)),
	))
	defer span.End()

	start := time.Now()
	var created int
	err := e.call(ctx, "create_nodes", e.policy, func(ctx context.Context) error {
		n, err := e.store.CreateNodes(ctx, kind, records)
		created = n
		return err
	})
	e.metrics.ObserveBatch(kind.Label, time.Since(start))
	if err != nil {
		endSpan(span, err)
		return res, fmt.Errorf("ingest nodes %s: %w", kind.Name, err)
	}
	res.Rows = created
	e.metrics.AddRows(string(domain.EntityNode), kind.Label, created)
	e.log.Info("nodes written", "kind", kind.Name, "label", kind.Label, "rows", created, "duration", time.Since(start).String())
	return res, nil
}

// Schedule returns the partition schedule used for kind.
func (e *Engine) Schedule(kind domain.RelationshipKind) (*partition.Schedule, error) {
	return e.planner.Schedule(kind)
}

// Partition annotates records with partition keys and splits them into the
// kind's schedule order.
func (e *Engine) Partition(kind domain.RelationshipKind, records []domain.Record) ([]partition.Batch, error) {
	return e.planner.Partition(kind, records)
}

// IngestRelationships partitions records and writes the batches.
func (e *Engine) IngestRelationships(ctx context.Context, kind domain.RelationshipKind, records []domain.Record) (RelationshipResult, error) {
	batches, err := e.Partition(kind, records)
	if err != nil {
		return RelationshipResult{Kind: kind.Name, Label: kind.Label}, err
	}
	return e.IngestBatches(ctx, kind, batches)
}

// IngestBatches writes each non-empty batch in its own transaction,
// concurrently up to the engine limit. After the first failure no further
// batch is started; batches already running are allowed to finish.
func (e *Engine) IngestBatches(ctx context.Context, kind domain.RelationshipKind, batches []partition.Batch) (RelationshipResult, error) {
	res := RelationshipResult{Kind: kind.Name, Label: kind.Label}
	work := partition.NonEmpty(batches)
	if len(work) == 0 {
		e.log.Info("relationship kind empty; nothing to write", "kind", kind.Name)
		return res, nil
	}

	var (
		failed  atomic.Bool
		mu      sync.Mutex
		started = time.Now()
	)
	g := new(errgroup.Group)
	g.SetLimit(e.limit)
	for _, b := range work {
		if failed.Load() || ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if failed.Load() {
				return nil
			}
			created, err := e.writeBatch(ctx, kind, b)
			if err != nil {
				failed.Store(true)
				return err
			}
			mu.Lock()
			res.Rows += len(b.Records)
			res.Created += created
			res.Batches++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, fmt.Errorf("ingest relationships %s: %w", kind.Name, err)
	}
	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("ingest relationships %s: %w", kind.Name, err)
	}
	e.metrics.AddRows(string(domain.EntityRelationship), kind.Label, res.Rows)
	e.log.Info("relationships written",
		"kind", kind.Name,
		"label", kind.Label,
		"rows", res.Rows,
		"created", res.Created,
		"batches", res.Batches,
		"duration", time.Since(started).String(),
	)
	return res, nil
}

func (e *Engine) writeBatch(ctx context.Context, kind domain.RelationshipKind, b partition.Batch) (int, error) {
	ctx, span := e.tracer.Start(ctx, "ingest.relationship_batch", trace.WithAttributes(
		attribute.String("kind", kind.Name),
		attribute.String("label", kind.Label),
		attribute.Int("batch", b.Index),
		attribute.Int("rows", len(b.Records)),
	))
	defer span.End()

	start := time.Now()
	var created int
	err := e.call(ctx, "create_relationships", e.policy, func(ctx context.Context) error {
		n, err := e.store.CreateRelationships(ctx, kind, b.Records)
		created = n
		return err
	})
	e.metrics.ObserveBatch(kind.Label, time.Since(start))
	if err != nil {
		endSpan(span, err)
		return 0, fmt.Errorf("batch %d (%d rows): %w", b.Index, len(b.Records), err)
	}
	e.log.Debug("relationship batch written", "kind", kind.Name, "batch", b.Index, "rows", len(b.Records), "created", created)
	return created, nil
}

// CreateIndexes creates the identifier index of every node kind concurrently.
func (e *Engine) CreateIndexes(ctx context.Context, kinds []domain.NodeKind) error {
	return e.eachIndex(ctx, "create_index", kinds, e.store.CreateIndex)
}

// DropIndexes drops the identifier index of every node kind concurrently.
func (e *Engine) DropIndexes(ctx context.Context, kinds []domain.NodeKind) error {
	return e.eachIndex(ctx, "drop_index", kinds, e.store.DropIndex)
}

func (e *Engine) eachIndex(ctx context.Context, op string, kinds []domain.NodeKind, fn func(ctx context.Context, label, property string) error) error {
	g := new(errgroup.Group)
	g.SetLimit(e.limit)
	seen := map[string]bool{}
	for _, k := range kinds {
		label, prop := k.Label, k.IDColumn
		if seen[label+"."+prop] {
			continue
		}
		seen[label+"."+prop] = true
		g.Go(func() error {
			ctx, span := e.tracer.Start(ctx, "ingest."+op, trace.WithAttributes(
				attribute.String("label", label),
				attribute.String("property", prop),
			))
			defer span.End()
			err := e.call(ctx, op, e.policy, func(ctx context.Context) error {
				return fn(ctx, label, prop)
			})
			if err != nil {
				endSpan(span, err)
				return fmt.Errorf("%s %s.%s: %w", op, label, prop, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// call runs one store operation under policy. Each attempt holds a
// semaphore slot; backoff sleeps do not.
func (e *Engine) call(ctx context.Context, op string, policy retry.Policy, fn func(ctx context.Context) error) error {
	attempts := 0
	err := retry.Do(ctx, e.log, op, policy, func(ctx context.Context) error {
		if err := e.sem.Acquire(ctx, 1); err != nil {
			return err
		}
		defer e.sem.Release(1)
		attempts++
		e.metrics.IncStoreAttempt(op)
		if attempts > 1 {
			e.metrics.IncStoreRetry(op)
		}
		return fn(ctx)
	})
	if err != nil {
		e.metrics.IncStoreFailure(op)
	}
	return err
}

func endSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
