// Package partition assigns relationship records to partition cells and
// groups the cells into the disjoint batches the engine writes concurrently.
//
// A record's key is the last character of its rendered source identifier and
// the last character of its rendered target identifier, joined by "-". For a
// partition count P the schedule holds P batches; batch i owns the keys
// "{(i+j) mod P}-{j}" for j in [0, P). The scheme spreads rows across batches
// so that batches can run concurrently, but two batches may still touch the
// same node: contention is reduced, not eliminated.
package partition

import (
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/yungbote/studygraph-ingest/internal/domain"
)

const DefaultPartitions = 16

const separator = "-"

// Key derives the partition key for one record from its source and target
// identifier columns. Missing or empty identifiers contribute an empty side.
func Key(r domain.Record, sourceColumn, targetColumn string) string {
	return lastRune(r.Render(sourceColumn)) + separator + lastRune(r.Render(targetColumn))
}

func lastRune(s string) string {
	if s == "" {
		return ""
	}
	_, size := utf8.DecodeLastRuneInString(s)
	return s[len(s)-size:]
}

// AssignKeys returns copies of records annotated with their partition key.
// The input records are not modified.
func AssignKeys(records []domain.Record, kind domain.RelationshipKind) []domain.Record {
	out := make([]domain.Record, len(records))
	for i, r := range records {
		c := r.Clone()
		c[domain.PartitionKeyField] = Key(r, kind.SourceColumn, kind.TargetColumn)
		out[i] = c
	}
	return out
}

// Schedule is the precomputed covering of the P x P key space.
type Schedule struct {
	p       int
	batches [][]string
	index   map[string]int
}

func NewSchedule(p int) (*Schedule, error) {
	if p < 1 {
		return nil, fmt.Errorf("partition: invalid partition count %d", p)
	}
	batches := make([][]string, p)
	index := make(map[string]int, p*p)
	for i := 0; i < p; i++ {
		keys := make([]string, p)
		for j := 0; j < p; j++ {
			keys[j] = strconv.Itoa((i+j)%p) + separator + strconv.Itoa(j)
			index[keys[j]] = i
		}
		batches[i] = keys
	}
	return &Schedule{p: p, batches: batches, index: index}, nil
}

func (s *Schedule) Partitions() int { return s.p }

// Batches returns the key sets in schedule order. Callers must not modify them.
func (s *Schedule) Batches() [][]string { return s.batches }

// BatchOf returns the index of the batch owning key.
//
// Keys of the covering map to their batch directly. Any other key (trailing
// characters that are not digits below P, or empty identifiers) is folded
// into the key space: each side's value is its digit value for '0'-'9', its
// code point otherwise, 0 when empty, taken mod P. Cell (r, c) belongs to
// batch (r - c) mod P, the inverse of the covering. The mapping is a function
// of the key alone, so records sharing a key always share a batch.
func (s *Schedule) BatchOf(key string) int {
	if i, ok := s.index[key]; ok {
		return i
	}
	src, dst := splitKey(key)
	r := sideValue(src) % s.p
	c := sideValue(dst) % s.p
	return ((r-c)%s.p + s.p) % s.p
}

// splitKey recovers the two sides of a key built by Key. A lone separator
// rune is read as its left side.
func splitKey(key string) (rune, rune) {
	runes := []rune(key)
	switch {
	case len(runes) >= 3:
		return runes[0], runes[len(runes)-1]
	case len(runes) == 2 && string(runes[1]) == separator:
		return runes[0], 0
	case len(runes) == 2:
		return 0, runes[1]
	default:
		return 0, 0
	}
}

func sideValue(r rune) int {
	switch {
	case r <= 0:
		return 0
	case r >= '0' && r <= '9':
		return int(r - '0')
	default:
		return int(r)
	}
}

// Batch is one unit of transaction and concurrency.
type Batch struct {
	Index   int
	Keys    []string
	Records []domain.Record
}

// Split groups annotated records by batch, in schedule order. Records keep
// their relative input order within a batch and every record lands in exactly
// one batch; batches may be empty. A record without a partition key is keyed
// on the fly from kind's identifier columns.
func (s *Schedule) Split(records []domain.Record, kind domain.RelationshipKind) []Batch {
	out := make([]Batch, s.p)
	for i := range out {
		out[i] = Batch{Index: i, Keys: s.batches[i]}
	}
	for _, r := range records {
		key, ok := r[domain.PartitionKeyField].(string)
		if !ok {
			key = Key(r, kind.SourceColumn, kind.TargetColumn)
		}
		i := s.BatchOf(key)
		out[i].Records = append(out[i].Records, r)
	}
	return out
}

// NonEmpty drops batches without records, preserving order.
func NonEmpty(batches []Batch) []Batch {
	out := make([]Batch, 0, len(batches))
	for _, b := range batches {
		if len(b.Records) > 0 {
			out = append(out, b)
		}
	}
	return out
}
