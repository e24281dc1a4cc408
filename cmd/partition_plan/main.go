package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/yungbote/studygraph-ingest/internal/app"
	"github.com/yungbote/studygraph-ingest/internal/catalog"
	"github.com/yungbote/studygraph-ingest/internal/ingest/partition"
	"github.com/yungbote/studygraph-ingest/internal/pipeline"
	"github.com/yungbote/studygraph-ingest/internal/platform/logger"
)

// partition_plan prints the batch schedule for a partition count and, with
// -kind, how a relationship kind's rows spread over it.
// Without a Neo4j URI, run it with GRAPH_STORE=memory.
func main() {
	var partitions int
	var kindName string
	flag.IntVar(&partitions, "partitions", 0, "partition count (default: INGEST_PARTITIONS or the kind's override)")
	flag.StringVar(&kindName, "kind", "", "relationship kind to load and split")
	flag.Parse()

	if err := run(context.Background(), partitions, kindName); err != nil {
		fmt.Fprintf(os.Stderr, "partition_plan: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, partitions int, kindName string) error {
	cfg, err := app.LoadConfig("")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.LogMode, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	planner, err := partition.NewPlanner(cfg.Ingest.Partitions)
	if err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	if kindName == "" {
		p := partitions
		if p == 0 {
			p = planner.DefaultPartitions()
		}
		s, err := partition.NewSchedule(p)
		if err != nil {
			return fmt.Errorf("schedule: %w", err)
		}
		for i, keys := range s.Batches() {
			fmt.Printf("batch %2d: %s\n", i, strings.Join(keys, " "))
		}
		return nil
	}

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	kind, err := cat.Relationship(kindName)
	if err != nil {
		return err
	}
	if partitions != 0 {
		kind.Partitions = partitions
	}
	s, err := planner.Schedule(kind)
	if err != nil {
		return fmt.Errorf("schedule: %w", err)
	}

	loader, closeLoader, err := app.NewSourceLoader(ctx, log, cfg.Source)
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}
	defer closeLoader()

	st, err := pipeline.PartitionPipeline(kind, loader, planner).Run(ctx, log, nil)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d rows over %d batches (P=%d)\n", kind.Name, len(st.Records), len(st.Batches), s.Partitions())
	for _, b := range st.Batches {
		fmt.Printf("batch %2d: %6d rows\n", b.Index, len(b.Records))
	}
	return nil
}
