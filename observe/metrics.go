package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/phlukman/inventory-tag"

// Metrics records collection engine metrics. A nil *Metrics is valid
// and drops everything, so callers never need a guard.
type Metrics struct {
	accountsTotal      metric.Int64Counter
	resourcesTotal     metric.Int64Counter
	resourceErrors     metric.Int64Counter
	circuitTransitions metric.Int64Counter
	collectDuration    metric.Float64Histogram
	lockAttempts       metric.Int64Counter
}

// NewMetrics creates a Metrics instance on the given meter. Pass a nil
// meter to use the globally registered provider.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(meterName)
	}

	accountsTotal, err := meter.Int64Counter(
		"inventory.accounts.total",
		metric.WithDescription("Accounts processed, by outcome"),
		metric.WithUnit("{account}"),
	)
	if err != nil {
		return nil, err
	}

	resourcesTotal, err := meter.Int64Counter(
		"inventory.resources.total",
		metric.WithDescription("Resources collected"),
		metric.WithUnit("{resource}"),
	)
	if err != nil {
		return nil, err
	}

	resourceErrors, err := meter.Int64Counter(
		"inventory.resources.errors",
		metric.WithDescription("Per-resource detail fetch failures"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	circuitTransitions, err := meter.Int64Counter(
		"inventory.circuit.transitions",
		metric.WithDescription("Circuit breaker state transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}

	collectDuration, err := meter.Float64Histogram(
		"inventory.collect.duration_ms",
		metric.WithDescription("End-to-end collection duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	lockAttempts, err := meter.Int64Counter(
		"inventory.lock.attempts",
		metric.WithDescription("Distributed lock acquisition attempts, by outcome"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		accountsTotal:      accountsTotal,
		resourcesTotal:     resourcesTotal,
		resourceErrors:     resourceErrors,
		circuitTransitions: circuitTransitions,
		collectDuration:    collectDuration,
		lockAttempts:       lockAttempts,
	}, nil
}

// RecordAccount records the outcome of one account task.
func (m *Metrics) RecordAccount(ctx context.Context, accountID, status string) {
	if m == nil {
		return
	}
	m.accountsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("account.id", accountID),
		attribute.String("status", status),
	))
}

// RecordResources records per-account resource counts.
func (m *Metrics) RecordResources(ctx context.Context, accountID string, collected, failed int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("account.id", accountID))
	m.resourcesTotal.Add(ctx, int64(collected), attrs)
	if failed > 0 {
		m.resourceErrors.Add(ctx, int64(failed), attrs)
	}
}

// RecordTransition records a circuit breaker state change.
func (m *Metrics) RecordTransition(ctx context.Context, breaker, from, to string) {
	if m == nil {
		return
	}
	m.circuitTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("breaker", breaker),
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// RecordCollection records the duration of a whole collection run.
func (m *Metrics) RecordCollection(ctx context.Context, d time.Duration, accounts int) {
	if m == nil {
		return
	}
	m.collectDuration.Record(ctx, float64(d.Milliseconds()), metric.WithAttributes(
		attribute.Int("accounts", accounts),
	))
}

// RecordLockAttempt records one lock acquisition attempt.
func (m *Metrics) RecordLockAttempt(ctx context.Context, key string, acquired bool) {
	if m == nil {
		return
	}
	m.lockAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("key", key),
		attribute.Bool("acquired", acquired),
	))
}
