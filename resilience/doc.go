// Package resilience guards remote AWS calls against cascading failure.
//
// Every remote operation in the collection engine goes through a Guard,
// which composes a named CircuitBreaker with an optional fallback. The
// breaker only reacts to errors the Classify function reports as
// transient (throttling, unavailability, connectivity); permanent
// failures such as AccessDenied surface immediately and never trip the
// circuit.
//
// A breaker moves between three states:
//
//   - Closed: requests pass through. Transient failures accumulate; at
//     FailureThreshold the circuit opens. A quiet period of ResetTimeout
//     clears the accumulated count.
//   - Open: requests fail fast. After RecoveryTimeout the next
//     AllowRequest flips the breaker to half-open and lets that one
//     probe through.
//   - HalfOpen: a success closes the circuit, a transient failure
//     reopens it.
//
// State only changes inside AllowRequest, RecordSuccess, RecordFailure
// and Reset; there is no background timer goroutine.
//
// Backoff provides the jittered exponential delay schedule used by lock
// acquisition retries.
package resilience
