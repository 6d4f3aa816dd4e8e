// Package kvstore abstracts the object stores a lease can live in.
// A store offers get, put and delete of byte blobs by key, and nothing
// else: no compare-and-swap, no watch, no expiry. Anything stronger a
// caller needs must be built from repeated reads.
package kvstore

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Get when no value is stored at a key.
	ErrNotFound = errors.New("key not found")
	// ErrConflict is returned by Put or Delete when the backend
	// detected a concurrent write and rejected this one. Only backends with some
	// form of optimistic concurrency (e.g., resource versions) return
	// it; plain object stores never do.
	ErrConflict = errors.New("concurrent write to key")
)

// Store is the capability the lock needs from a backend.
type Store interface {
	// Get returns the value at key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put writes value at key, replacing anything already there.
	Put(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// String describes where values are kept, for logs.
	String() string
}
