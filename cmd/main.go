package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/yungbote/studygraph-ingest/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init app: %v\n", err)
		os.Exit(1)
	}

	rep, err := application.Run(ctx)
	if err != nil {
		application.Log.Error("Ingestion failed", "error", err)
		application.Close(context.WithoutCancel(ctx))
		os.Exit(1)
	}
	application.Log.Info("Ingestion complete",
		"run_id", rep.RunID.String(),
		"node_kinds", len(rep.Nodes),
		"relationship_kinds", len(rep.Relationships),
		"batches", rep.Batches,
		"duration", rep.Duration.String(),
	)
	application.Close(context.WithoutCancel(ctx))
}
