package resilience

import (
	"testing"
	"time"
)

func TestNewBackoff_Defaults(t *testing.T) {
	b := NewBackoff(BackoffConfig{})

	if b.initial != 2*time.Second {
		t.Errorf("initial = %v, want 2s", b.initial)
	}
	if b.multiplier != 2.0 {
		t.Errorf("multiplier = %v, want 2.0", b.multiplier)
	}
	if b.jitter != time.Second {
		t.Errorf("jitter = %v, want 1s", b.jitter)
	}
	if b.max != 30*time.Second {
		t.Errorf("max = %v, want 30s", b.max)
	}
}

func TestBackoff_Delay(t *testing.T) {
	b := NewBackoff(BackoffConfig{
		InitialDelay: 100 * time.Millisecond,
		Multiplier:   2.0,
		Jitter:       10 * time.Millisecond,
		MaxDelay:     time.Second,
	})

	cases := []struct {
		attempt int
		base    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second}, // capped
		{9, time.Second}, // still capped
	}

	for _, tc := range cases {
		d := b.Delay(tc.attempt)
		if d < tc.base || d >= tc.base+10*time.Millisecond {
			t.Errorf("Delay(%d) = %v, want [%v, %v)", tc.attempt, d, tc.base, tc.base+10*time.Millisecond)
		}
	}
}

func TestBackoff_DelayClampsAttempt(t *testing.T) {
	b := NewBackoff(BackoffConfig{
		InitialDelay: 50 * time.Millisecond,
		Jitter:       5 * time.Millisecond,
	})

	if d := b.Delay(0); d < 50*time.Millisecond {
		t.Errorf("Delay(0) = %v, want at least the initial delay", d)
	}
	if d := b.Delay(-3); d < 50*time.Millisecond {
		t.Errorf("Delay(-3) = %v, want at least the initial delay", d)
	}
}

func TestBackoff_Jittered(t *testing.T) {
	b := NewBackoff(BackoffConfig{
		InitialDelay: time.Millisecond,
		Jitter:       time.Second,
	})

	// With a wide jitter range, repeated delays for the same attempt
	// should not all be identical.
	seen := make(map[time.Duration]bool)
	for i := 0; i < 20; i++ {
		seen[b.Delay(1)] = true
	}
	if len(seen) < 2 {
		t.Error("Delay(1) returned a constant value across 20 samples, want jitter")
	}
}
