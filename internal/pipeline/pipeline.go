// Package pipeline drives one ingestion run: per-kind step pipelines for the
// catalog's node and relationship kinds, run stage by stage.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/yungbote/studygraph-ingest/internal/domain"
	"github.com/yungbote/studygraph-ingest/internal/ingest"
	"github.com/yungbote/studygraph-ingest/internal/ingest/partition"
	"github.com/yungbote/studygraph-ingest/internal/observability"
	"github.com/yungbote/studygraph-ingest/internal/platform/logger"
	"github.com/yungbote/studygraph-ingest/internal/transform"
)

type Stage string

const (
	StageLoad      Stage = "load"
	StageRename    Stage = "rename"
	StageCast      Stage = "cast"
	StagePartition Stage = "partition"
	StageIngest    Stage = "ingest"
)

// Loader reads a dataset's rows.
type Loader interface {
	Load(ctx context.Context, d domain.Dataset) ([]domain.Record, error)
}

// Partitioner splits a relationship kind's rows into schedule batches.
type Partitioner interface {
	Partition(kind domain.RelationshipKind, records []domain.Record) ([]partition.Batch, error)
}

// State is threaded through the steps of one pipeline.
type State struct {
	Records      []domain.Record
	Batches      []partition.Batch
	Node         ingest.NodeResult
	Relationship ingest.RelationshipResult
}

type Step struct {
	Name  string
	Stage Stage
	Fn    func(ctx context.Context, st *State) error
}

type Pipeline struct {
	Name  string
	Kind  domain.EntityKind
	Steps []Step
}

// Run executes the steps in order. The first failing step stops the pipeline.
func (p Pipeline) Run(ctx context.Context, log *logger.Logger, metrics *observability.Metrics) (*State, error) {
	if log == nil {
		log = logger.NewNop()
	}
	log = log.With("pipeline", p.Name, "entity", string(p.Kind))
	st := &State{}
	for _, step := range p.Steps {
		if err := ctx.Err(); err != nil {
			return st, fmt.Errorf("%s: %w", p.Name, err)
		}
		start := time.Now()
		err := step.Fn(ctx, st)
		dur := time.Since(start)
		if err != nil {
			metrics.ObserveStage(string(step.Stage), "failed", dur)
			log.Error("pipeline step failed",
				"step", step.Name,
				"stage", step.Stage,
				"duration", dur.String(),
				"error", err.Error(),
			)
			return st, fmt.Errorf("%s/%s: %w", p.Name, step.Name, err)
		}
		metrics.ObserveStage(string(step.Stage), "succeeded", dur)
		log.Info("pipeline step finished",
			"step", step.Name,
			"stage", step.Stage,
			"rows", len(st.Records),
			"duration", dur.String(),
		)
	}
	return st, nil
}

func loadStep(loader Loader, d domain.Dataset) Step {
	return Step{
		Name:  "load_" + d.Name,
		Stage: StageLoad,
		Fn: func(ctx context.Context, st *State) error {
			records, err := loader.Load(ctx, d)
			if err != nil {
				return err
			}
			st.Records = records
			return nil
		},
	}
}

func renameStep(d domain.Dataset) Step {
	return Step{
		Name:  "rename_" + d.Name,
		Stage: StageRename,
		Fn: func(ctx context.Context, st *State) error {
			renamed, err := transform.Rename(d, st.Records)
			if err != nil {
				return err
			}
			st.Records = renamed
			return nil
		},
	}
}

func castStep(d domain.Dataset) Step {
	return Step{
		Name:  "cast_" + d.Name,
		Stage: StageCast,
		Fn: func(ctx context.Context, st *State) error {
			st.Records = transform.CastString(st.Records, d.StringColumns)
			return nil
		},
	}
}

// NodePipeline loads, renames and casts a node kind's rows, then writes them
// in one transaction.
func NodePipeline(kind domain.NodeKind, loader Loader, engine *ingest.Engine) Pipeline {
	return Pipeline{
		Name: kind.Name,
		Kind: domain.EntityNode,
		Steps: []Step{
			loadStep(loader, kind.Dataset),
			renameStep(kind.Dataset),
			castStep(kind.Dataset),
			{
				Name:  "ingest_" + kind.Name,
				Stage: StageIngest,
				Fn: func(ctx context.Context, st *State) error {
					res, err := engine.IngestNodes(ctx, kind, st.Records)
					st.Node = res
					return err
				},
			},
		},
	}
}

func partitionStep(kind domain.RelationshipKind, p Partitioner) Step {
	return Step{
		Name:  "partition_" + kind.Name,
		Stage: StagePartition,
		Fn: func(ctx context.Context, st *State) error {
			batches, err := p.Partition(kind, st.Records)
			if err != nil {
				return err
			}
			st.Batches = batches
			return nil
		},
	}
}

// PartitionPipeline loads, renames and casts a relationship kind's rows and
// splits them into batches without writing anything.
func PartitionPipeline(kind domain.RelationshipKind, loader Loader, p Partitioner) Pipeline {
	return Pipeline{
		Name: kind.Name,
		Kind: domain.EntityRelationship,
		Steps: []Step{
			loadStep(loader, kind.Dataset),
			renameStep(kind.Dataset),
			castStep(kind.Dataset),
			partitionStep(kind, p),
		},
	}
}

// RelationshipPipeline is PartitionPipeline followed by writing the batches
// concurrently.
func RelationshipPipeline(kind domain.RelationshipKind, loader Loader, engine *ingest.Engine) Pipeline {
	pl := PartitionPipeline(kind, loader, engine)
	pl.Steps = append(pl.Steps, Step{
		Name:  "ingest_" + kind.Name,
		Stage: StageIngest,
		Fn: func(ctx context.Context, st *State) error {
			res, err := engine.IngestBatches(ctx, kind, st.Batches)
			st.Relationship = res
			return err
		},
	})
	return pl
}
