// Package store abstracts the remote object store shared by the lock
// protocol and the report writers.
package store

import (
	"context"
	"errors"
)

// Sentinel errors for object store operations.
var (
	// ErrNotFound is returned by Get when the key does not exist.
	ErrNotFound = errors.New("store: object not found")

	// ErrPreconditionFailed is returned by PutIfAbsent when the key
	// already exists.
	ErrPreconditionFailed = errors.New("store: object already exists")
)

// ObjectStore is a minimal remote key-value object interface.
//
// PutIfAbsent is the conditional-write primitive the lock protocol
// depends on: an implementation must only create the object when the
// key does not exist, atomically, and return ErrPreconditionFailed
// otherwise. A store that cannot enforce the precondition must not be
// used for locking.
type ObjectStore interface {
	// Get returns the object body, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put writes the object unconditionally.
	Put(ctx context.Context, key string, body []byte) error

	// PutIfAbsent writes the object only if the key does not already
	// exist, returning ErrPreconditionFailed when it does.
	PutIfAbsent(ctx context.Context, key string, body []byte) error

	// Delete removes the object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
