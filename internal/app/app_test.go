package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/yungbote/studygraph-ingest/internal/catalog"
	"github.com/yungbote/studygraph-ingest/internal/data/graph"
	"github.com/yungbote/studygraph-ingest/internal/platform/logger"
)

func dryRunConfig(dir string) Config {
	return Config{
		GraphStore: GraphStoreMemory,
		Kinds:      []string{"courses", "professors", "teaches"},
		Ingest: IngestConfig{
			Partitions:        16,
			RetryMaxAttempts:  3,
			RetryExponentBase: 2,
			ResetStore:        true,
			Preflight:         true,
		},
		Source: SourceConfig{Storage: SourceStorageLocal, Directory: dir},
	}
}

func TestAppDryRunAgainstMemoryStore(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"courses.csv":    "course_id,course_code,course_name_mk,course_name_en,course_url,course_level\n10,F23L1W001,Алгебра,Algebra,,1\n11,F23L1W002,Логика,Logic,,1\n",
		"professors.csv": "professor_id,professor_name,professor_surname\n1,Ana,Petrova\n",
		"teaches.csv":    "teaches_id,course_id,professor_id\n100,10,1\n101,11,1\n",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	ctx := context.Background()
	a, err := NewWithConfig(ctx, logger.NewNop(), dryRunConfig(dir))
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}
	defer a.Close(ctx)

	rep, err := a.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rep.Nodes) != 2 || len(rep.Relationships) != 1 {
		t.Fatalf("report: want 2 node kinds and 1 relationship kind, got %d/%d", len(rep.Nodes), len(rep.Relationships))
	}
	mem, ok := a.Store.(*graph.MemoryStore)
	if !ok {
		t.Fatalf("store: want *graph.MemoryStore got %T", a.Store)
	}
	if got := len(mem.Edges("TAUGHT_BY")); got != 2 {
		t.Fatalf("TAUGHT_BY edges: want=2 got=%d", got)
	}
	if a.Engine.Limit() != memoryPoolSize {
		t.Fatalf("limit: want=%d got=%d", memoryPoolSize, a.Engine.Limit())
	}
}

func TestAppRejectsUnknownKind(t *testing.T) {
	cfg := dryRunConfig(t.TempDir())
	cfg.Kinds = []string{"lectures"}
	if _, err := NewWithConfig(context.Background(), logger.NewNop(), cfg); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}

func TestAppRejectsRelationshipWithoutEndpointKinds(t *testing.T) {
	cfg := dryRunConfig(t.TempDir())
	cfg.Kinds = []string{"teaches"}
	_, err := NewWithConfig(context.Background(), logger.NewNop(), cfg)
	var cfgErr *catalog.ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Code != catalog.ConfigErrorUnknownLabel {
		t.Fatalf("want unknown_label error got %v", err)
	}
}
