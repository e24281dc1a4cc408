package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/yungbote/studygraph-ingest/internal/domain"
)

// DecodeCSV reads a headered CSV file. Cells are typed as int64, float64 or
// string; empty cells become nil.
func DecodeCSV(r io.Reader) ([]domain.Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 0
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	var out []domain.Record
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rec := make(domain.Record, len(header))
		for i, col := range header {
			rec[col] = inferCell(row[i])
		}
		out = append(out, rec)
	}
	return out, nil
}

func inferCell(raw string) any {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	// Codes such as "007" keep their leading zeros.
	if len(s) > 1 && s[0] == '0' && s[1] != '.' {
		return s
	}
	if !numericLead(s[0]) {
		return s
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return f
	}
	return s
}

// numericLead keeps words such as "Nan" or "Infinity" out of float parsing.
func numericLead(c byte) bool {
	return (c >= '0' && c <= '9') || c == '-' || c == '+' || c == '.'
}
