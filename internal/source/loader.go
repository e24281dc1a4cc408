package source

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/yungbote/studygraph-ingest/internal/catalog"
	"github.com/yungbote/studygraph-ingest/internal/domain"
	"github.com/yungbote/studygraph-ingest/internal/platform/logger"
)

// Loader turns dataset sources into records.
type Loader struct {
	opener Opener
	log    *logger.Logger
}

func NewLoader(opener Opener, log *logger.Logger) (*Loader, error) {
	if opener == nil {
		return nil, fmt.Errorf("source: opener required")
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Loader{opener: opener, log: log.With("component", "SourceLoader")}, nil
}

func (l *Loader) Opener() Opener { return l.opener }

// Load reads every row of the dataset's source. The decoder is chosen by the
// source's extension.
func (l *Loader) Load(ctx context.Context, d domain.Dataset) ([]domain.Record, error) {
	var decode func(io.Reader) ([]domain.Record, error)
	switch d.Format() {
	case domain.FormatCSV:
		decode = DecodeCSV
	case domain.FormatAvro:
		decode = DecodeAvro
	default:
		return nil, &catalog.ConfigError{Code: catalog.ConfigErrorUnsupportedSource, Entity: d.Name, Value: d.Source}
	}
	start := time.Now()
	rc, err := l.opener.Open(ctx, d.Source)
	if err != nil {
		return nil, fmt.Errorf("open %s source: %w", d.Name, err)
	}
	defer rc.Close()
	records, err := decode(rc)
	if err != nil {
		return nil, fmt.Errorf("decode %s source %s: %w", d.Name, d.Source, err)
	}
	l.log.Info("source loaded",
		"dataset", d.Name,
		"source", d.Source,
		"rows", len(records),
		"duration", time.Since(start).String(),
	)
	return records, nil
}
