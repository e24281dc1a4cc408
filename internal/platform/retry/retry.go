package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/yungbote/studygraph-ingest/internal/platform/ctxutil"
	"github.com/yungbote/studygraph-ingest/internal/platform/logger"
)

// ErrTransient marks store errors that are expected to clear on retry
// (serialization conflicts, lock timeouts, dropped connections).
var ErrTransient = errors.New("transient store error")

type transientError struct {
	err error
}

func (e *transientError) Error() string        { return e.err.Error() }
func (e *transientError) Unwrap() error        { return e.err }
func (e *transientError) Is(target error) bool { return target == ErrTransient }

// Transient wraps err so that IsTransient reports true for it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

func IsTransient(err error) bool {
	return err != nil && errors.Is(err, ErrTransient)
}

// Policy bounds one retried call.
type Policy struct {
	// MaxAttempts counts the first attempt; values below 1 are treated as 1.
	MaxAttempts int
	// Wait before retry n (1-based) is uniform in [0, min(MaxWait, Multiplier*ExponentBase^(n-1))].
	Multiplier   time.Duration
	ExponentBase float64
	MaxWait      time.Duration
	// Retryable decides whether an error is worth another attempt. Nil means IsTransient.
	Retryable func(error) bool
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  5,
		Multiplier:   time.Second,
		ExponentBase: 2,
		MaxWait:      30 * time.Second,
		Retryable:    IsTransient,
	}
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p Policy) retryable(err error) bool {
	if p.Retryable == nil {
		return IsTransient(err)
	}
	return p.Retryable(err)
}

// Do runs fn until it succeeds, returns a non-retryable error, or the policy
// runs out of attempts. The error from the last attempt is returned as is.
func Do(ctx context.Context, log *logger.Logger, op string, p Policy, fn func(ctx context.Context) error) error {
	_, err := DoValue(ctx, log, op, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, log *logger.Logger, op string, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	maxAttempts := p.attempts()
	attempt := 0

	operation := func() (T, error) {
		attempt++
		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		if !p.retryable(err) {
			return out, backoff.Permanent(err)
		}
		return out, err
	}

	notify := func(err error, sleep time.Duration) {
		if log == nil {
			return
		}
		log.Warn("store call retrying",
			"run_id", ctxutil.RunID(ctx),
			"operation", op,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"sleep", sleep.String(),
			"error", err.Error(),
		)
	}

	out, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(newRandomExponential(p)),
		backoff.WithMaxTries(uint(maxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
	if err == nil {
		return out, nil
	}
	var perm *backoff.PermanentError
	if errors.As(err, &perm) && perm.Err != nil {
		err = perm.Err
	}
	if log != nil && p.retryable(err) && attempt >= maxAttempts {
		log.Error("store call retries exhausted", "run_id", ctxutil.RunID(ctx), "operation", op, "attempts", attempt, "error", err.Error())
	}
	return out, err
}

// randomExponential is a backoff.BackOff producing full-jitter exponential
// waits: the n-th wait is drawn uniformly from [0, Multiplier*Base^(n-1)].
type randomExponential struct {
	multiplier time.Duration
	base       float64
	maxWait    time.Duration
	n          int
	rnd        *rand.Rand
}

func newRandomExponential(p Policy) *randomExponential {
	base := p.ExponentBase
	if base < 1 {
		base = 1
	}
	return &randomExponential{
		multiplier: p.Multiplier,
		base:       base,
		maxWait:    p.MaxWait,
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (b *randomExponential) Reset() { b.n = 0 }

func (b *randomExponential) NextBackOff() time.Duration {
	high := b.ceiling(b.n)
	b.n++
	if high <= 0 {
		return 0
	}
	return time.Duration(b.rnd.Int63n(int64(high) + 1))
}

func (b *randomExponential) ceiling(n int) time.Duration {
	if b.multiplier <= 0 {
		return 0
	}
	f := float64(b.multiplier) * math.Pow(b.base, float64(n))
	if b.maxWait > 0 && f > float64(b.maxWait) {
		return b.maxWait
	}
	if f > math.MaxInt64/2 {
		return time.Duration(math.MaxInt64 / 2)
	}
	return time.Duration(f)
}

func (p Policy) String() string {
	return fmt.Sprintf("attempts=%d multiplier=%s base=%g max_wait=%s", p.attempts(), p.Multiplier, p.ExponentBase, p.MaxWait)
}
