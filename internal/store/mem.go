package store

import (
	"sync"

	"github.com/pkg/errors"
)

// MemStore is an in-memory BackingStore, used for ephemeral trees
// (betree.OpenMem) and by tests that don't want a LevelDB directory on
// disk. Grounded on Mari's memory-mapped get/put pair minus the actual
// mmap: a plain map keyed by (id, version) stands in for the mapped
// file region.
type MemStore struct {
	mu      sync.Mutex
	objects map[objectKey][]byte
}

type objectKey struct {
	id      uint64
	version uint64
}

// NewMemStore creates an empty in-memory backing store.
func NewMemStore() *MemStore {
	return &MemStore{objects: make(map[objectKey][]byte)}
}

func (s *MemStore) Allocate(id, version uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := objectKey{id, version}
	if _, exists := s.objects[key]; exists {
		// Idempotent: allocating an already-allocated pair is a no-op.
		return nil
	}

	s.objects[key] = nil
	return nil
}

func (s *MemStore) Get(id, version uint64) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := objectKey{id, version}
	bytes, ok := s.objects[key]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "id=%d version=%d", id, version)
	}

	cp := make([]byte, len(bytes))
	copy(cp, bytes)

	return &Handle{ID: id, Version: version, Bytes: cp}, nil
}

func (s *MemStore) Put(h *Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := objectKey{h.ID, h.Version}
	cp := make([]byte, len(h.Bytes))
	copy(cp, h.Bytes)
	s.objects[key] = cp

	return nil
}

func (s *MemStore) Deallocate(id, version uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.objects, objectKey{id, version})
	return nil
}

func (s *MemStore) Close() error {
	return nil
}

// Len reports the number of (id, version) pairs currently allocated, for
// tests asserting that deallocation actually reclaims superseded records.
func (s *MemStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}
