package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yungbote/studygraph-ingest/internal/platform/logger"
)

func fastPolicy(max int) Policy {
	return Policy{MaxAttempts: max, Multiplier: 0, ExponentBase: 2, MaxWait: 0, Retryable: IsTransient}
}

func TestDoRetriesTransientUntilSuccess(t *testing.T) {
	for _, k := range []int{0, 1, 3} {
		calls := 0
		err := Do(context.Background(), logger.NewNop(), "create_nodes", fastPolicy(5), func(ctx context.Context) error {
			calls++
			if calls <= k {
				return Transient(errors.New("deadlock detected"))
			}
			return nil
		})
		if err != nil {
			t.Fatalf("k=%d: unexpected error: %v", k, err)
		}
		if calls != k+1 {
			t.Fatalf("k=%d calls: want=%d got=%d", k, k+1, calls)
		}
	}
}

func TestDoStopsAtMaxAttempts(t *testing.T) {
	calls := 0
	cause := errors.New("lock client stopped")
	err := Do(context.Background(), logger.NewNop(), "create_relationships", fastPolicy(3), func(ctx context.Context) error {
		calls++
		return Transient(cause)
	})
	if calls != 3 {
		t.Fatalf("calls: want=3 got=%d", calls)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("err: want wrapped %v got %v", cause, err)
	}
	if !IsTransient(err) {
		t.Fatalf("final error lost its transient marker: %v", err)
	}
}

func TestDoDoesNotRetryPermanent(t *testing.T) {
	calls := 0
	cause := errors.New("syntax error")
	err := Do(context.Background(), nil, "create_index", fastPolicy(5), func(ctx context.Context) error {
		calls++
		return cause
	})
	if calls != 1 {
		t.Fatalf("calls: want=1 got=%d", calls)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("err: want=%v got=%v", cause, err)
	}
}

func TestDoPermanentOnLastAttemptIsUnwrapped(t *testing.T) {
	calls := 0
	cause := errors.New("constraint violation")
	err := Do(context.Background(), nil, "create_nodes", fastPolicy(2), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return Transient(errors.New("timeout"))
		}
		return cause
	})
	if err != cause {
		t.Fatalf("err: want=%v got=%v (%T)", cause, err, err)
	}
}

func TestZeroAttemptsMeansOne(t *testing.T) {
	calls := 0
	_ = Do(context.Background(), nil, "x", fastPolicy(0), func(ctx context.Context) error {
		calls++
		return Transient(errors.New("boom"))
	})
	if calls != 1 {
		t.Fatalf("calls: want=1 got=%d", calls)
	}
}

func TestDoValueReturnsResult(t *testing.T) {
	calls := 0
	got, err := DoValue(context.Background(), nil, "count", fastPolicy(3), func(ctx context.Context) (int64, error) {
		calls++
		if calls == 1 {
			return 0, Transient(errors.New("retry me"))
		}
		return 42, nil
	})
	if err != nil || got != 42 {
		t.Fatalf("want=42 got=%d err=%v", got, err)
	}
}

func TestDoHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	p := Policy{MaxAttempts: 10, Multiplier: time.Hour, ExponentBase: 2, MaxWait: time.Hour}
	err := Do(ctx, nil, "slow", p, func(ctx context.Context) error {
		calls++
		cancel()
		return Transient(errors.New("busy"))
	})
	if err == nil {
		t.Fatalf("expected error after cancel")
	}
	if calls != 1 {
		t.Fatalf("calls: want=1 got=%d", calls)
	}
}

func TestRandomExponentialBounds(t *testing.T) {
	b := newRandomExponential(Policy{Multiplier: 100 * time.Millisecond, ExponentBase: 2, MaxWait: time.Second})
	ceilings := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}
	for i, ceil := range ceilings {
		if got := b.ceiling(i); got != ceil {
			t.Fatalf("ceiling(%d): want=%s got=%s", i, ceil, got)
		}
	}
	for i := 0; i < 50; i++ {
		b.Reset()
		for n := range ceilings {
			d := b.NextBackOff()
			if d < 0 || d > ceilings[n] {
				t.Fatalf("wait %d out of range: %s (ceiling %s)", n, d, ceilings[n])
			}
		}
	}
}
