package resilience

import (
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed means the circuit is operating normally.
	StateClosed State = iota
	// StateOpen means the circuit is blocking all requests.
	StateOpen
	// StateHalfOpen means the circuit is testing if the service recovered.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures a circuit breaker.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of transient failures before
	// opening the circuit. Default: 5
	FailureThreshold int

	// RecoveryTimeout is how long an open circuit waits before letting
	// a probe request through. Default: 30 seconds
	RecoveryTimeout time.Duration

	// ResetTimeout is how long a closed circuit waits without failures
	// before clearing the failure count. Default: 60 seconds
	ResetTimeout time.Duration

	// Classify decides whether an error counts toward the threshold.
	// Only KindTransient failures do. Default: Classify
	Classify func(err error) Kind

	// OnStateChange is called when the circuit state changes.
	OnStateChange func(name string, from, to State)
}

// CircuitBreaker implements the circuit breaker pattern for one named
// remote operation. A single instance is shared by every worker that
// invokes that operation; all state is guarded by one mutex.
type CircuitBreaker struct {
	name   string
	config CircuitBreakerConfig

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	lastSuccess time.Time
}

// NewCircuitBreaker creates a circuit breaker in the closed state.
func NewCircuitBreaker(name string, config CircuitBreakerConfig) *CircuitBreaker {
	// Apply defaults
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = 30 * time.Second
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 60 * time.Second
	}
	if config.Classify == nil {
		config.Classify = Classify
	}

	return &CircuitBreaker{
		name:        name,
		config:      config,
		state:       StateClosed,
		lastSuccess: time.Now(),
	}
}

// Name returns the operation name this breaker guards.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// AllowRequest reports whether a request may proceed. An open circuit
// whose recovery window has elapsed flips to half-open here and allows
// exactly the triggering call through; there is no timer goroutine.
func (cb *CircuitBreaker) AllowRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()

	// Quiet closed circuits forget old failures.
	if cb.state == StateClosed && cb.failures > 0 && now.Sub(cb.lastFailure) >= cb.config.ResetTimeout {
		cb.failures = 0
	}

	if cb.state == StateOpen {
		if now.Sub(cb.lastFailure) >= cb.config.RecoveryTimeout {
			cb.setState(StateHalfOpen)
			return true
		}
		return false
	}

	return true
}

// RecordSuccess records a successful request. A success while half-open
// closes the circuit and clears the failure count.
func (cb *CircuitBreaker) RecordSuccess() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastSuccess = time.Now()

	if cb.state == StateHalfOpen {
		cb.failures = 0
		cb.setState(StateClosed)
	}

	return cb.state
}

// RecordFailure records a failed request. Only transient-classified
// errors increment the failure count or change state; anything else is
// noted for observability and left alone.
func (cb *CircuitBreaker) RecordFailure(err error) State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailure = time.Now()

	if cb.config.Classify(err) != KindTransient {
		return cb.state
	}

	cb.failures++

	switch {
	case cb.state == StateClosed && cb.failures >= cb.config.FailureThreshold:
		cb.setState(StateOpen)
	case cb.state == StateHalfOpen:
		// Probe failed, reopen.
		cb.setState(StateOpen)
	}

	return cb.state
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset forces the breaker back to closed and clears all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.lastFailure = time.Time{}
	cb.lastSuccess = time.Now()
	cb.setState(StateClosed)
}

// setState transitions the breaker and fires the change callback.
// Callers must hold cb.mu.
func (cb *CircuitBreaker) setState(state State) {
	if cb.state == state {
		return
	}
	old := cb.state
	cb.state = state
	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.name, old, state)
	}
}

// Metrics returns a snapshot of the breaker's counters.
func (cb *CircuitBreaker) Metrics() CircuitBreakerMetrics {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return CircuitBreakerMetrics{
		State:       cb.state,
		Failures:    cb.failures,
		LastFailure: cb.lastFailure,
		LastSuccess: cb.lastSuccess,
	}
}

// CircuitBreakerMetrics contains circuit breaker statistics.
type CircuitBreakerMetrics struct {
	State       State
	Failures    int
	LastFailure time.Time
	LastSuccess time.Time
}
