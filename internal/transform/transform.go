// Package transform renames and casts loaded rows before ingestion.
package transform

import (
	"fmt"
	"strconv"

	"github.com/yungbote/studygraph-ingest/internal/catalog"
	"github.com/yungbote/studygraph-ingest/internal/domain"
)

// Rename projects every record onto the dataset's output columns. Input
// columns that are not mapped are dropped. A mapped input column missing from
// a record is a configuration error.
func Rename(dataset domain.Dataset, records []domain.Record) ([]domain.Record, error) {
	out := make([]domain.Record, len(records))
	for i, r := range records {
		renamed := make(domain.Record, len(dataset.Columns))
		for _, m := range dataset.Columns {
			v, ok := r[m.From]
			if !ok {
				return nil, &catalog.ConfigError{
					Code:   catalog.ConfigErrorMissingColumn,
					Entity: dataset.Name,
					Value:  m.From,
					Cause:  fmt.Errorf("row %d", i),
				}
			}
			renamed[m.To] = v
		}
		out[i] = renamed
	}
	return out, nil
}

// CastString renders the listed columns as strings in place. Nil stays nil.
func CastString(records []domain.Record, columns []string) []domain.Record {
	if len(columns) == 0 {
		return records
	}
	for _, r := range records {
		for _, c := range columns {
			v, ok := r[c]
			if !ok || v == nil {
				continue
			}
			r[c] = renderString(v)
		}
	}
	return records
}

func renderString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		// Integral floats (a CSV "7.0" or an Avro double) render without a fraction.
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
