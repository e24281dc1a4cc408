package neo4jdb

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/studygraph-ingest/internal/platform/retry"
)

type OperationErrorCode string

const (
	OperationErrorTransient    OperationErrorCode = "transient"
	OperationErrorConnectivity OperationErrorCode = "connectivity"
	OperationErrorPermanent    OperationErrorCode = "permanent"
)

const transientStatusPrefix = "Neo.TransientError."

type OperationError struct {
	Code      OperationErrorCode
	Operation string
	Cause     error
}

func (e *OperationError) Error() string {
	if e == nil {
		return "neo4j operation failed"
	}
	if e.Cause != nil {
		return fmt.Sprintf("neo4j operation failed (op=%s code=%s): %v", e.Operation, e.Code, e.Cause)
	}
	return fmt.Sprintf("neo4j operation failed (op=%s code=%s)", e.Operation, e.Code)
}

func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is makes transient and connectivity failures match retry.ErrTransient.
func (e *OperationError) Is(target error) bool {
	if e == nil || target != retry.ErrTransient {
		return false
	}
	return e.Code == OperationErrorTransient || e.Code == OperationErrorConnectivity
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return err
	}
	return &OperationError{Code: Classify(err), Operation: op, Cause: err}
}

// Classify maps a driver error to an OperationErrorCode. Status codes in the
// Neo.TransientError class and connectivity failures are retryable. Anything
// else is not, including errors returned by transaction work functions,
// context cancellation and a driver that already exhausted its own
// transaction retries.
func Classify(err error) OperationErrorCode {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return OperationErrorPermanent
	}
	var dbErr *neo4j.Neo4jError
	if errors.As(err, &dbErr) {
		if strings.HasPrefix(dbErr.Code, transientStatusPrefix) {
			return OperationErrorTransient
		}
		return OperationErrorPermanent
	}
	if neo4j.IsConnectivityError(err) {
		return OperationErrorConnectivity
	}
	return OperationErrorPermanent
}
