// Package store implements the backing-store contract (C1): a durable,
// object-versioned blob repository keyed by (object id, version). The
// store enforces no ordering between versions of an object — the swap
// space above it is responsible for handing out monotonically increasing
// versions.
package store

import "github.com/pkg/errors"

// ErrNotFound is returned by Get when no bytes have been allocated (and
// put) for the requested (id, version) pair.
var ErrNotFound = errors.New("store: object version not found")

// Handle is a writable byte region representing the current contents of
// one (id, version) pair. Callers mutate Bytes in place and call Put to
// durably commit the mutation.
type Handle struct {
	ID      uint64
	Version uint64
	Bytes   []byte
}

// BackingStore is the four-operation contract spec.md §4.1 describes.
// Implementations need not serialize concurrent access to distinct
// (id, version) pairs; access to a single pair is always serialized by
// the swap space above (one object is resident, hence mutated, in at
// most one place at a time).
type BackingStore interface {
	// Allocate reserves storage for a new (id, version) tuple. Idempotent
	// for a given pair; must precede Get on a fresh version.
	Allocate(id, version uint64) error

	// Get returns a handle over the current bytes of (id, version). May
	// return an empty region if the pair was allocated but never put.
	Get(id, version uint64) (*Handle, error)

	// Put durably commits the handle's bytes and releases the handle.
	Put(h *Handle) error

	// Deallocate releases storage for (id, version). A subsequent Get on
	// the same pair is undefined.
	Deallocate(id, version uint64) error

	// Close releases any resources (file descriptors, open databases)
	// held by the store.
	Close() error
}
