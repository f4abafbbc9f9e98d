// Package lock implements a cooperative advisory lock over a shared
// object store, serializing writers of a shared remote artifact across
// process boundaries.
//
// A lock for key K is a JSON record at K + ".lock". Acquisition uses
// the store's conditional write, so two racing writers cannot both
// create the record. Records carry an expiry; any party may break a
// lock whose expiry has passed, which recovers from crashed holders.
// The lock is advisory: it only protects writers that choose to go
// through it.
package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/phlukman/inventory-tag/observe"
	"github.com/phlukman/inventory-tag/resilience"
	"github.com/phlukman/inventory-tag/store"
)

// Suffix is appended to the protected key to form the lock object key.
const Suffix = ".lock"

// Sentinel errors for lock operations.
var (
	// ErrHeld is returned by Acquire when another owner holds the lock.
	ErrHeld = errors.New("lock: already held")

	// ErrNotAcquired is returned by WithLock when every attempt to
	// acquire the lock failed.
	ErrNotAcquired = errors.New("lock: not acquired")

	// ErrNotOwner is returned by Release when the lock exists but
	// belongs to someone else.
	ErrNotOwner = errors.New("lock: not the lock owner")

	// ErrNotHeld is returned by Release when no lock object exists.
	ErrNotHeld = errors.New("lock: no lock held")
)

// Record is the lock object body.
type Record struct {
	LockID         string    `json:"lock_id"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	OwnerRequestID string    `json:"owner_request_id,omitempty"`
}

// Config configures a Locker.
type Config struct {
	// Timeout is how long an acquired lock stays valid before any
	// party may break it. Default: 60 seconds
	Timeout time.Duration

	// MaxAttempts bounds acquisition attempts in WithLock.
	// Default: 5
	MaxAttempts int

	// Backoff shapes the delay between acquisition attempts.
	Backoff resilience.BackoffConfig

	// RequestID identifies this owner in lock records, for diagnosing
	// contention. Defaults to a fresh UUID.
	RequestID string

	// Logger receives lock protocol events. Defaults to a nop logger.
	Logger observe.Logger

	// Metrics receives lock attempt counts. Optional.
	Metrics *observe.Metrics
}

// Locker acquires and releases advisory locks in one object store.
type Locker struct {
	store       store.ObjectStore
	timeout     time.Duration
	maxAttempts int
	backoff     *resilience.Backoff
	requestID   string
	log         observe.Logger
	metrics     *observe.Metrics

	// test seams
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Locker over the given store.
func New(st store.ObjectStore, config Config) *Locker {
	// Apply defaults
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 5
	}
	if config.RequestID == "" {
		config.RequestID = uuid.NewString()
	}
	if config.Logger == nil {
		config.Logger = observe.NewNop()
	}

	return &Locker{
		store:       st,
		timeout:     config.Timeout,
		maxAttempts: config.MaxAttempts,
		backoff:     resilience.NewBackoff(config.Backoff),
		requestID:   config.RequestID,
		log:         config.Logger,
		metrics:     config.Metrics,
		now:         time.Now,
		sleep:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Acquire attempts to take the lock for key, returning the lock id on
// success. ErrHeld means another owner currently has it.
func (l *Locker) Acquire(ctx context.Context, key string) (string, error) {
	lockID := uuid.NewString()
	now := l.now()
	record := Record{
		LockID:         lockID,
		CreatedAt:      now,
		ExpiresAt:      now.Add(l.timeout),
		OwnerRequestID: l.requestID,
	}

	body, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("marshal lock record: %w", err)
	}

	err = l.store.PutIfAbsent(ctx, key+Suffix, body)
	if err != nil {
		l.metrics.RecordLockAttempt(ctx, key, false)
		if errors.Is(err, store.ErrPreconditionFailed) {
			return "", ErrHeld
		}
		return "", fmt.Errorf("acquire lock for %s: %w", key, err)
	}

	l.metrics.RecordLockAttempt(ctx, key, true)
	l.log.Info(ctx, "acquired lock",
		observe.Field{Key: "key", Value: key},
		observe.Field{Key: "lock_id", Value: lockID},
		observe.Field{Key: "timeout_seconds", Value: l.timeout.Seconds()},
	)
	return lockID, nil
}

// CheckStale reads the lock for key and reports whether it has expired.
// A missing lock is not stale and yields no record. An undecodable
// record is reported stale, since it could never be released by owner
// match.
func (l *Locker) CheckStale(ctx context.Context, key string) (bool, *Record, error) {
	body, err := l.store.Get(ctx, key+Suffix)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil, nil
		}
		return false, nil, fmt.Errorf("check lock for %s: %w", key, err)
	}

	var record Record
	if err := json.Unmarshal(body, &record); err != nil {
		l.log.Warn(ctx, "undecodable lock record, treating as stale",
			observe.Field{Key: "key", Value: key},
		)
		return true, nil, nil
	}

	if l.now().After(record.ExpiresAt) {
		l.log.Info(ctx, "found stale lock",
			observe.Field{Key: "key", Value: key},
			observe.Field{Key: "lock_id", Value: record.LockID},
			observe.Field{Key: "owner_request_id", Value: record.OwnerRequestID},
			observe.Field{Key: "expired_seconds", Value: l.now().Sub(record.ExpiresAt).Seconds()},
		)
		return true, &record, nil
	}

	return false, &record, nil
}

// BreakStale deletes the lock for key if it is stale, reporting whether
// anything was removed. A valid or missing lock is a no-op.
func (l *Locker) BreakStale(ctx context.Context, key string) (bool, error) {
	stale, record, err := l.CheckStale(ctx, key)
	if err != nil || !stale {
		return false, err
	}

	if err := l.store.Delete(ctx, key+Suffix); err != nil {
		return false, fmt.Errorf("break stale lock for %s: %w", key, err)
	}

	fields := []observe.Field{{Key: "key", Value: key}}
	if record != nil {
		fields = append(fields,
			observe.Field{Key: "stale_lock_id", Value: record.LockID},
			observe.Field{Key: "stale_owner_request_id", Value: record.OwnerRequestID},
		)
	}
	l.log.Info(ctx, "broke stale lock", fields...)
	return true, nil
}

// Release deletes the lock for key only when lockID matches the current
// record, protecting against releasing a lock that expired and was
// reassigned to another owner. Releasing an already-released lock
// returns ErrNotHeld.
func (l *Locker) Release(ctx context.Context, key, lockID string) error {
	body, err := l.store.Get(ctx, key+Suffix)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotHeld
		}
		return fmt.Errorf("release lock for %s: %w", key, err)
	}

	var record Record
	if err := json.Unmarshal(body, &record); err != nil {
		// Ownership cannot be verified, refuse to delete.
		return ErrNotOwner
	}

	if record.LockID != lockID {
		l.log.Warn(ctx, "cannot release lock, not the owner",
			observe.Field{Key: "key", Value: key},
			observe.Field{Key: "lock_id", Value: lockID},
			observe.Field{Key: "current_owner", Value: record.LockID},
			observe.Field{Key: "current_owner_request", Value: record.OwnerRequestID},
		)
		return ErrNotOwner
	}

	if err := l.store.Delete(ctx, key+Suffix); err != nil {
		return fmt.Errorf("release lock for %s: %w", key, err)
	}

	l.log.Info(ctx, "released lock",
		observe.Field{Key: "key", Value: key},
		observe.Field{Key: "lock_id", Value: lockID},
	)
	return nil
}

// WithLock runs writer while holding the lock for key. On attempts
// after the first it breaks any stale lock and waits out the backoff
// schedule before retrying. The lock is released after writer returns,
// success or not, and the writer's error is passed through. When every
// attempt fails to acquire, the error wraps ErrNotAcquired so the
// caller decides whether contention is fatal.
func (l *Locker) WithLock(ctx context.Context, key string, writer func(ctx context.Context, lockID string) error) error {
	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		if attempt > 1 {
			if _, err := l.BreakStale(ctx, key); err != nil {
				l.log.Warn(ctx, "stale lock check failed before retry",
					observe.Field{Key: "key", Value: key},
					observe.Field{Key: "error", Value: err.Error()},
				)
			}

			delay := l.backoff.Delay(attempt - 1)
			l.log.Debug(ctx, "waiting before lock retry",
				observe.Field{Key: "key", Value: key},
				observe.Field{Key: "attempt", Value: attempt},
				observe.Field{Key: "wait", Value: delay.String()},
			)
			if err := l.sleep(ctx, delay); err != nil {
				return err
			}
		}

		lockID, err := l.Acquire(ctx, key)
		if err != nil {
			l.log.Warn(ctx, "could not acquire lock",
				observe.Field{Key: "key", Value: key},
				observe.Field{Key: "attempt", Value: attempt},
				observe.Field{Key: "max_attempts", Value: l.maxAttempts},
				observe.Field{Key: "error", Value: err.Error()},
			)
			continue
		}

		writeErr := writer(ctx, lockID)

		if err := l.Release(ctx, key, lockID); err != nil {
			l.log.Warn(ctx, "failed to release lock",
				observe.Field{Key: "key", Value: key},
				observe.Field{Key: "lock_id", Value: lockID},
				observe.Field{Key: "error", Value: err.Error()},
			)
		}

		return writeErr
	}

	return fmt.Errorf("%w: %s after %d attempts", ErrNotAcquired, key, l.maxAttempts)
}
