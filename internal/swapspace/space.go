// Package swapspace implements the swap space (C2): a reference-counted,
// pin-aware, LRU-evicting cache that pages node objects to and from a
// store.BackingStore. Grounded on Fantom-foundation/Carmen's
// database/mpt/node_cache.go for the array-of-owners-plus-intrusive-list
// shape, and on sirgallo/mari's NodePool/Serialize.go for the
// write-back-bumps-version, deallocate-the-prior-version flow.
//
// The space guards its own bookkeeping with a private mutex, independent
// of the tree's rwlock.ShardedRWMutex (one of the design's Open
// Questions, resolved in DESIGN.md): a Query holding only a read lock
// still needs to pin, touch and possibly evict nodes, so swap-space
// mutation cannot ride on the tree's writer-exclusive lock.
package swapspace

import (
	"sync"

	"go.uber.org/zap"

	"github.com/sohambagchi/betree/internal/fatal"
	"github.com/sohambagchi/betree/internal/store"
)

// Space is the swap space for a single tree: one backing store, one
// object id namespace, one LRU cache of resident payloads.
type Space struct {
	mu sync.Mutex

	backing    store.BackingStore
	newPayload func() Payload
	log        *zap.Logger

	records  map[uint64]*record
	nextID   uint64
	resident int
	capacity int

	lru lruList
}

// New creates a swap space backed by backing. newPayload must return a
// fresh zero-value Payload of the single concrete type this space pages
// (the tree only ever stores one node type, so one factory suffices).
// capacity is the maximum number of resident (in-memory) objects before
// the eviction policy starts writing objects back.
func New(backing store.BackingStore, newPayload func() Payload, capacity int, log *zap.Logger) *Space {
	if capacity < 1 {
		capacity = 1
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Space{
		backing:    backing,
		newPayload: newPayload,
		log:        log.Named("swapspace"),
		records:    make(map[uint64]*record),
		nextID:     1,
		capacity:   capacity,
	}
}

// SetCacheSize changes the resident-object budget and immediately evicts
// down to it if the new size is smaller than the current residency.
func (s *Space) SetCacheSize(n int) {
	if n < 1 {
		n = 1
	}

	s.mu.Lock()
	s.capacity = n
	s.mu.Unlock()

	s.evictToCapacity()
}

// Resident reports the current number of in-memory objects, mostly for
// Stats()/tests.
func (s *Space) Resident() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resident
}

// allocate registers a brand-new, memory-only, already-dirty object and
// returns its id. The caller owns the first reference (refcount 1).
func (s *Space) allocate(v Payload) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++

	r := &record{id: id, target: v, dirty: true, refcount: 1}
	s.records[id] = r
	s.lru.pushFront(s.records, r)
	s.resident++

	return id
}

// ensureTracked registers a record for (id, version) if this space has
// never seen this id before, with refcount 1 standing for the reference
// the just-deserialized parent now holds. This is what makes cold
// Open()ing a persisted tree possible: a freshly loaded parent names a
// child's last-known (id, version) even though nothing in this process
// has touched that child yet. If id is already tracked this is a no-op
// (the ordinary case: a child created earlier in this process's
// lifetime was registered by allocate, not by deserialization).
func (s *Space) ensureTracked(id, version uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ensureTrackedLocked(id, version)
}

// ensureTrackedLocked is ensureTracked for callers that already hold
// s.mu (a Decoder, which only loadLocked constructs).
func (s *Space) ensureTrackedLocked(id, version uint64) {
	if _, ok := s.records[id]; ok {
		return
	}
	s.records[id] = &record{id: id, version: version, refcount: 1}
	if id >= s.nextID {
		s.nextID = id + 1
	}
}

func (s *Space) retain(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		fatal.Abortf(s.log, "retain: id %d not tracked", id)
	}
	r.refcount++
}

// release drops one reference. At refcount zero the object (and,
// recursively, every child it still references) is dropped from the
// table and, if it was ever durable, deallocated from the backing store.
func (s *Space) release(id uint64) {
	s.mu.Lock()
	r, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		fatal.Abortf(s.log, "release: id %d not tracked", id)
	}

	r.refcount--
	if r.refcount > 0 {
		s.mu.Unlock()
		return
	}
	if r.refcount < 0 {
		s.mu.Unlock()
		fatal.Abortf(s.log, "release: id %d refcount underflow", id)
	}

	if r.target == nil {
		s.loadLocked(r)
	}

	enc := newEncoder(s)
	r.target.MarshalNode(enc)
	children := enc.Children()

	delete(s.records, id)
	if r.linked {
		s.lru.remove(s.records, r)
		s.resident--
	}
	version := r.version
	s.mu.Unlock()

	if version != 0 {
		if err := s.backing.Deallocate(id, version); err != nil {
			fatal.Wrap(s.log, err, "deallocate on release")
		}
	}

	for _, c := range children {
		s.release(c.ID)
	}
}

// Pin materializes id (loading it from the backing store if it isn't
// resident), marks it most-recently-used, and increments its pin count
// so the eviction policy leaves it alone. forWrite additionally marks
// the object dirty, since the caller is about to mutate it in place.
func (s *Space) pin(id uint64, forWrite bool) Payload {
	s.mu.Lock()
	r, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		fatal.Abortf(s.log, "pin: id %d not tracked", id)
	}

	if r.target == nil {
		s.loadLocked(r)
	}
	s.lru.moveToFront(s.records, r)
	r.pincount++
	if forWrite {
		r.dirty = true
	}
	target := r.target
	s.mu.Unlock()

	return target
}

func (s *Space) unpin(id uint64) {
	s.mu.Lock()
	r, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		fatal.Abortf(s.log, "unpin: id %d not tracked", id)
	}
	if r.pincount == 0 {
		s.mu.Unlock()
		fatal.Abortf(s.log, "unpin: id %d pincount underflow", id)
	}
	r.pincount--
	s.mu.Unlock()

	s.evictToCapacity()
}

// loadLocked materializes a non-resident record. Caller holds s.mu.
func (s *Space) loadLocked(r *record) {
	if r.version == 0 {
		fatal.Abortf(s.log, "load: id %d has no durable version", r.id)
	}

	h, err := s.backing.Get(r.id, r.version)
	if err != nil {
		fatal.Wrap(s.log, err, "load from backing store")
	}

	payload := s.newPayload()
	payload.UnmarshalNode(newDecoder(h.Bytes, s))

	r.target = payload
	s.lru.pushFront(s.records, r)
	s.resident++
}

// writeBackLocked serializes and durably commits a dirty resident
// record, bumping its version and deallocating the prior one. Caller
// holds s.mu; this performs backing-store I/O while holding it, by
// design (see DESIGN.md): the space's bookkeeping and its durability
// writes are the same critical section, the same way the tree holds its
// writer lock across a root flush.
func (s *Space) writeBackLocked(r *record) {
	if !r.dirty {
		return
	}

	enc := newEncoder(s)
	r.target.MarshalNode(enc)
	r.isLeaf = len(enc.Children()) == 0

	newVersion := r.version + 1
	if err := s.backing.Allocate(r.id, newVersion); err != nil {
		fatal.Wrap(s.log, err, "allocate new version on write-back")
	}
	if err := s.backing.Put(&store.Handle{ID: r.id, Version: newVersion, Bytes: enc.Bytes()}); err != nil {
		fatal.Wrap(s.log, err, "put bytes on write-back")
	}

	prior := r.version
	r.version = newVersion
	r.dirty = false

	if prior != 0 {
		if err := s.backing.Deallocate(r.id, prior); err != nil {
			fatal.Wrap(s.log, err, "deallocate prior version on write-back")
		}
	}

	s.log.Debug("wrote back object", zap.Uint64("id", r.id), zap.Uint64("version", newVersion))
}

// evictToCapacity scans from the LRU tail, skipping pinned records,
// writing back and freeing the first unpinned victim it finds, until
// residency is at or below capacity or no further progress is possible.
func (s *Space) evictToCapacity() {
	for {
		s.mu.Lock()
		if s.resident <= s.capacity {
			s.mu.Unlock()
			return
		}

		victim := s.findEvictionVictimLocked()
		if victim == nil {
			// Every resident object is pinned; nothing to do.
			s.mu.Unlock()
			return
		}

		s.writeBackLocked(victim)
		s.lru.remove(s.records, victim)
		s.resident--
		victim.target = nil
		id := victim.id
		s.mu.Unlock()

		s.log.Debug("evicted object", zap.Uint64("id", id))
	}
}

func (s *Space) findEvictionVictimLocked() *record {
	for id := s.lru.tail; id != noID; {
		r := s.records[id]
		next := r.prev // walking tail -> head
		if r.pincount == 0 {
			return r
		}
		id = next
	}
	return nil
}

// Flush writes back every dirty resident object without evicting it (a
// checkpoint), used by Tree.Checkpoint. It does not release references.
func (s *Space) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := s.lru.head; id != noID; id = s.records[id].next {
		r := s.records[id]
		if r.target != nil && r.dirty {
			s.writeBackLocked(r)
		}
	}
}

// Close flushes every dirty resident object and closes the backing
// store.
func (s *Space) Close() error {
	s.Flush()
	return s.backing.Close()
}
