package engine

import (
	"context"
	"errors"
	"fmt"
)

// Error taxonomy for the decision engine. Callers match with errors.Is.
var (
	// ErrSignalUnavailable marks a failed or timed-out SignalStore read.
	// Whether it aborts the evaluation depends on the per-evaluator
	// fail-open policy.
	ErrSignalUnavailable = errors.New("signal unavailable")

	// ErrInvalidInput marks malformed caller input: a bad device context,
	// an embedding of the wrong dimensionality, or an unknown user. It is
	// surfaced immediately, before any side effects.
	ErrInvalidInput = errors.New("invalid input")

	// ErrPersistenceFailure marks a decision that could not be durably
	// recorded. Always fatal: an unrecorded decision is never returned
	// as if it were final.
	ErrPersistenceFailure = errors.New("persistence failure")

	// ErrCancelled marks caller-initiated cancellation. All in-flight
	// evaluator calls stop cooperatively and the transaction rolls back.
	ErrCancelled = errors.New("evaluation cancelled")
)

// classify wraps err in fallback unless it already carries a taxonomy
// sentinel. Caller cancellation wins over everything else.
func classify(err, fallback error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	if errors.Is(err, ErrSignalUnavailable) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrPersistenceFailure) ||
		errors.Is(err, ErrCancelled) {
		return err
	}
	return fmt.Errorf("%w: %v", fallback, err)
}
