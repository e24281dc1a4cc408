package graph

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/yungbote/studygraph-ingest/internal/domain"
)

// MemoryNode and MemoryEdge are the stored forms of the in-memory graph.
type MemoryNode struct {
	Label string
	Props map[string]any
}

type MemoryEdge struct {
	Type  string
	From  int
	To    int
	Props map[string]any
}

// MemoryStore is an in-process property graph with the write semantics of
// Neo4jStore: node writes never de-duplicate, and a relationship batch with a
// dangling endpoint is rejected without creating any of its edges. It backs
// dry runs and tests.
type MemoryStore struct {
	mu          sync.Mutex
	nodes       []MemoryNode
	edges       []MemoryEdge
	indexes     map[string]bool
	constraints map[string]bool
	poolSize    int
}

func NewMemoryStore(poolSize int) *MemoryStore {
	if poolSize <= 0 {
		poolSize = 1
	}
	return &MemoryStore{
		indexes:     map[string]bool{},
		constraints: map[string]bool{},
		poolSize:    poolSize,
	}
}

func (s *MemoryStore) PoolSize() int { return s.poolSize }

func (s *MemoryStore) VerifyConnectivity(ctx context.Context) error { return ctx.Err() }

func (s *MemoryStore) CreateNodes(ctx context.Context, kind domain.NodeKind, records []domain.Record) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	props := append([]string{kind.IDColumn}, without(kind.Properties, kind.IDColumn)...)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		n := MemoryNode{Label: kind.Label, Props: map[string]any{}}
		for _, p := range props {
			// Setting a property to null leaves it unset.
			if v, ok := r[p]; ok && v != nil {
				n.Props[p] = v
			}
		}
		s.nodes = append(s.nodes, n)
	}
	return len(records), nil
}

func (s *MemoryStore) CreateRelationships(ctx context.Context, kind domain.RelationshipKind, records []domain.Record) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []MemoryEdge
	matched, created := 0, 0
	for _, r := range records {
		srcs := s.find(kind.SourceLabel, kind.SourceKey, r[kind.SourceColumn])
		dsts := s.find(kind.TargetLabel, kind.TargetKey, r[kind.TargetColumn])
		if len(srcs) == 0 || len(dsts) == 0 {
			continue
		}
		matched++
		attrs := map[string]any{}
		for _, a := range kind.Attributes {
			if v, ok := r[a]; ok && v != nil {
				attrs[a] = v
			}
		}
		for _, from := range srcs {
			for _, to := range dsts {
				created++
				pending = append(pending, MemoryEdge{Type: kind.Label, From: from, To: to, Props: copyProps(attrs)})
				if kind.Mirrored() {
					pending = append(pending, MemoryEdge{Type: kind.InverseLabel, From: to, To: from, Props: copyProps(attrs)})
				}
			}
		}
	}
	if matched < len(records) {
		return 0, &DanglingReferenceError{Relationship: kind.Label, Expected: len(records), Matched: matched}
	}
	s.edges = append(s.edges, pending...)
	return created, nil
}

func (s *MemoryStore) find(label, key string, value any) []int {
	if value == nil {
		return nil
	}
	var out []int
	for i, n := range s.nodes {
		if n.Label == label && equalValues(n.Props[key], value) {
			out = append(out, i)
		}
	}
	return out
}

// equalValues compares the way Cypher equality does for scalars: integers
// and floats compare numerically, other types must match exactly.
func equalValues(a, b any) bool {
	if a == nil || b == nil {
		return false
	}
	fa, aNum := number(a)
	fb, bNum := number(b)
	if aNum || bNum {
		return aNum && bNum && fa == fb
	}
	return a == b
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		if math.IsNaN(n) {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func copyProps(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (s *MemoryStore) CreateIndex(ctx context.Context, label, property string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexes[IndexName(label, property)] = true
	return nil
}

func (s *MemoryStore) DropIndex(ctx context.Context, label, property string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.indexes, IndexName(label, property))
	return nil
}

func (s *MemoryStore) ClearDatabase(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = nil
	s.edges = nil
	return nil
}

func (s *MemoryStore) DropAllConstraints(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.constraints = map[string]bool{}
	return nil
}

func (s *MemoryStore) DropAllIndexes(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexes = map[string]bool{}
	return nil
}

// Nodes returns copies of the stored nodes carrying label.
func (s *MemoryStore) Nodes(label string) []MemoryNode {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []MemoryNode
	for _, n := range s.nodes {
		if n.Label == label {
			out = append(out, MemoryNode{Label: n.Label, Props: copyProps(n.Props)})
		}
	}
	return out
}

// Edges returns copies of the stored edges of type typ, with endpoints
// replaced by the endpoint nodes.
func (s *MemoryStore) Edges(typ string) []MemoryEdgeView {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []MemoryEdgeView
	for _, e := range s.edges {
		if e.Type != typ {
			continue
		}
		out = append(out, MemoryEdgeView{
			Type:  e.Type,
			From:  MemoryNode{Label: s.nodes[e.From].Label, Props: copyProps(s.nodes[e.From].Props)},
			To:    MemoryNode{Label: s.nodes[e.To].Label, Props: copyProps(s.nodes[e.To].Props)},
			Props: copyProps(e.Props),
		})
	}
	return out
}

type MemoryEdgeView struct {
	Type  string
	From  MemoryNode
	To    MemoryNode
	Props map[string]any
}

// Indexes lists index names in sorted order.
func (s *MemoryStore) Indexes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.indexes))
	for name := range s.indexes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Counts returns the number of stored nodes and edges.
func (s *MemoryStore) Counts() (nodes, edges int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.nodes), len(s.edges)
}
