package graph

import "fmt"

// DanglingReferenceError means some rows of a relationship batch named an
// endpoint node that does not exist. The batch is rolled back as a whole and
// the error is not retryable.
type DanglingReferenceError struct {
	Relationship string
	Expected     int
	Matched      int
}

func (e *DanglingReferenceError) Error() string {
	if e == nil {
		return "dangling relationship reference"
	}
	return fmt.Sprintf("relationship %s: %d of %d rows reference a missing endpoint node",
		e.Relationship, e.Expected-e.Matched, e.Expected)
}
