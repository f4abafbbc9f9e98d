package resilience

import "errors"

// Sentinel errors for resilience operations.
var (
	// ErrCircuitOpen is returned when a guarded call is blocked by an
	// open circuit breaker and no fallback is configured.
	ErrCircuitOpen = errors.New("resilience: circuit breaker is open")
)
