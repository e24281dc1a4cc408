package partition

import (
	"sync"

	"github.com/yungbote/studygraph-ingest/internal/domain"
)

// Planner resolves the schedule for each relationship kind and caches one
// schedule per partition count.
type Planner struct {
	defaultP  int
	mu        sync.Mutex
	schedules map[int]*Schedule
}

// NewPlanner returns a planner whose default partition count is p, or
// DefaultPartitions when p is zero.
func NewPlanner(p int) (*Planner, error) {
	if p == 0 {
		p = DefaultPartitions
	}
	def, err := NewSchedule(p)
	if err != nil {
		return nil, err
	}
	return &Planner{defaultP: p, schedules: map[int]*Schedule{p: def}}, nil
}

func (pl *Planner) DefaultPartitions() int { return pl.defaultP }

// Schedule returns the schedule for kind: its own partition count when
// positive, the planner default otherwise.
func (pl *Planner) Schedule(kind domain.RelationshipKind) (*Schedule, error) {
	p := kind.Partitions
	if p <= 0 {
		p = pl.defaultP
	}
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if s, ok := pl.schedules[p]; ok {
		return s, nil
	}
	s, err := NewSchedule(p)
	if err != nil {
		return nil, err
	}
	pl.schedules[p] = s
	return s, nil
}

// Partition annotates records with partition keys and splits them into the
// kind's schedule order.
func (pl *Planner) Partition(kind domain.RelationshipKind, records []domain.Record) ([]Batch, error) {
	s, err := pl.Schedule(kind)
	if err != nil {
		return nil, err
	}
	return s.Split(AssignKeys(records, kind), kind), nil
}
