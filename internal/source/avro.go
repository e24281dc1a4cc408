package source

import (
	"fmt"
	"io"

	"github.com/linkedin/goavro/v2"

	"github.com/yungbote/studygraph-ingest/internal/domain"
)

// DecodeAvro reads an Avro object container file of records.
func DecodeAvro(r io.Reader) ([]domain.Record, error) {
	ocf, err := goavro.NewOCFReader(r)
	if err != nil {
		return nil, fmt.Errorf("open avro container: %w", err)
	}
	var out []domain.Record
	for ocf.Scan() {
		datum, err := ocf.Read()
		if err != nil {
			return nil, fmt.Errorf("read avro record %d: %w", len(out), err)
		}
		fields, ok := datum.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("avro record %d: want record, got %T", len(out), datum)
		}
		rec := make(domain.Record, len(fields))
		for k, v := range fields {
			rec[k] = avroValue(v)
		}
		out = append(out, rec)
	}
	if err := ocf.Err(); err != nil {
		return nil, fmt.Errorf("scan avro container: %w", err)
	}
	return out, nil
}

// avroValue unwraps goavro's union encoding and widens 32-bit numbers so
// rows from Avro and CSV compare equal.
func avroValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if len(t) == 1 {
			for _, inner := range t {
				return avroValue(inner)
			}
		}
		return t
	case int32:
		return int64(t)
	case int:
		return int64(t)
	case float32:
		return float64(t)
	default:
		return v
	}
}
