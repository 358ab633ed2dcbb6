package batch

import "context"

// Failure records a single item that could not be processed.
type Failure[T any] struct {
	Item   T      `json:"item"`
	Reason string `json:"reason"`
}

// Report summarises the outcome of a best-effort batch run.
type Report[T any] struct {
	SuccessCount int          `json:"success_count"`
	Failures     []Failure[T] `json:"failures,omitempty"`
}

// OK reports whether every item succeeded.
func (r Report[T]) OK() bool {
	return len(r.Failures) == 0
}

// Op processes a single batch item.
type Op[T any] func(ctx context.Context, item T) error

// Run executes op for every item in order. Each item is attempted exactly
// once; a failing item is recorded and never aborts the rest of the batch,
// and successes are never rolled back. Failures preserve input order.
func Run[T any](ctx context.Context, items []T, op Op[T]) Report[T] {
	report := Report[T]{}
	for _, item := range items {
		if err := op(ctx, item); err != nil {
			report.Failures = append(report.Failures, Failure[T]{Item: item, Reason: err.Error()})
			continue
		}
		report.SuccessCount++
	}
	return report
}
