package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGuard_Success(t *testing.T) {
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{})
	g := Guard[string]{Breaker: cb}

	out, err := g.Do(context.Background(), func(ctx context.Context) (string, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v, want nil", err)
	}
	if out != "ok" {
		t.Errorf("Do() = %q, want %q", out, "ok")
	}
}

func TestGuard_ErrorPropagatedUnchanged(t *testing.T) {
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{FailureThreshold: 3})
	g := Guard[int]{Breaker: cb}

	opErr := apiError("ThrottlingException")
	_, err := g.Do(context.Background(), func(ctx context.Context) (int, error) {
		return 0, opErr
	})
	if !errors.Is(err, opErr) {
		t.Errorf("Do() error = %v, want the operation's own error", err)
	}
	if m := cb.Metrics(); m.Failures != 1 {
		t.Errorf("Failures = %d, want 1", m.Failures)
	}
}

func TestGuard_OpenWithoutFallback(t *testing.T) {
	cb := NewCircuitBreaker("list-policies", CircuitBreakerConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Minute,
	})
	cb.RecordFailure(apiError("ThrottlingException"))

	g := Guard[string]{Breaker: cb}
	called := false
	_, err := g.Do(context.Background(), func(ctx context.Context) (string, error) {
		called = true
		return "", nil
	})

	if called {
		t.Error("operation was invoked while circuit open")
	}
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Do() error = %v, want ErrCircuitOpen", err)
	}
}

func TestGuard_OpenWithFallback(t *testing.T) {
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Minute,
	})
	cb.RecordFailure(apiError("ThrottlingException"))

	g := Guard[string]{
		Breaker: cb,
		Fallback: func(ctx context.Context) (string, error) {
			return "fallback", nil
		},
	}

	out, err := g.Do(context.Background(), func(ctx context.Context) (string, error) {
		t.Error("operation should not run while circuit open")
		return "", nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v, want nil from fallback", err)
	}
	if out != "fallback" {
		t.Errorf("Do() = %q, want %q", out, "fallback")
	}
}

func TestGuard_SuccessClosesHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  10 * time.Millisecond,
	})
	cb.RecordFailure(apiError("ThrottlingException"))
	time.Sleep(20 * time.Millisecond)

	g := Guard[struct{}]{Breaker: cb}
	_, err := g.Do(context.Background(), func(ctx context.Context) (struct{}, error) {
		return struct{}{}, nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v, want nil", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("State after guarded probe success = %v, want closed", cb.State())
	}
}
