package resilience

import (
	"context"
	"fmt"
)

// Guard composes a circuit breaker, an operation and an optional
// fallback into one uniform call path. Every remote operation in the
// engine is invoked through a Guard; nothing bypasses the breaker.
type Guard[T any] struct {
	// Breaker gates the call. Required.
	Breaker *CircuitBreaker

	// Fallback is invoked instead of the operation when the breaker
	// blocks the request. When nil, a blocked call fails with
	// ErrCircuitOpen wrapped with the breaker name.
	Fallback func(ctx context.Context) (T, error)
}

// Do executes op through the guard. Success and failure are always
// recorded on the breaker, failures routed through the classifier, and
// the operation's result and error are propagated unchanged.
func (g Guard[T]) Do(ctx context.Context, op func(ctx context.Context) (T, error)) (T, error) {
	if !g.Breaker.AllowRequest() {
		if g.Fallback != nil {
			return g.Fallback(ctx)
		}
		var zero T
		return zero, fmt.Errorf("%s: %w", g.Breaker.Name(), ErrCircuitOpen)
	}

	out, err := op(ctx)
	if err != nil {
		g.Breaker.RecordFailure(err)
		return out, err
	}

	g.Breaker.RecordSuccess()
	return out, nil
}
