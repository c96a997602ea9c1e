package swapspace

// Pointer is a reference-counted handle to an object tracked by a
// Space. It is cheap to copy (it is just a space and an id) but every
// copy that will outlive the one it was copied from must call Retain,
// and every copy that is dropped must call Release, since Go has no
// destructors to do this automatically — this is the one place the
// design departs from a reference-counted smart pointer in a language
// that has them.
type Pointer[T Payload] struct {
	space *Space
	id    uint64
}

// Allocate registers v as a brand-new object in s and returns a pointer
// holding the first reference to it.
func Allocate[T Payload](s *Space, v T) Pointer[T] {
	return Pointer[T]{space: s, id: s.allocate(v)}
}

// ReadChildPointer is the generic counterpart to Decoder.ReadChild: a
// payload's UnmarshalNode calls it wherever its MarshalNode called
// WriteChild, reconstructing a Pointer to the already-tracked child
// record (registering one, at the version read back, if this process
// has never seen the id before). No new reference is taken — the one
// reference the persisted form stood for becomes the one in-memory
// reference the reconstructed Pointer holds.
func ReadChildPointer[T Payload](dec *Decoder) Pointer[T] {
	id, version := dec.ReadChild()
	dec.space.ensureTrackedLocked(id, version)
	return Pointer[T]{space: dec.space, id: id}
}

// OpenRoot reconstructs a Pointer to a tree's root object from its last
// persisted (id, version), for the one place a child pointer is
// rebuilt without a parent's Decoder to call ReadChildPointer from: the
// tree itself has no parent node, only whatever metadata record it
// keeps its own root (id, version) in.
func OpenRoot[T Payload](s *Space, id, version uint64) Pointer[T] {
	s.ensureTracked(id, version)
	return Pointer[T]{space: s, id: id}
}

// ID returns the object id this pointer addresses. Used when a node
// serializes a child reference via Encoder.WriteChild.
func (p Pointer[T]) ID() uint64 {
	return p.id
}

// Version reports the child's durable version as last observed by the
// space. Valid to call without pinning.
func (p Pointer[T]) Version() uint64 {
	p.space.mu.Lock()
	defer p.space.mu.Unlock()
	return p.space.records[p.id].version
}

// IsZero reports whether p was never assigned (the tree uses this for
// "root not yet created").
func (p Pointer[T]) IsZero() bool {
	return p.space == nil
}

// Retain takes a new reference on the same object, for a second field
// (or a second in-flight traversal) that will independently Release it.
func (p Pointer[T]) Retain() Pointer[T] {
	p.space.retain(p.id)
	return p
}

// Release drops this pointer's reference. At refcount zero the object,
// and recursively every child it still references, is deallocated.
func (p Pointer[T]) Release() {
	p.space.release(p.id)
}

// Pin materializes the object for reading and marks it most recently
// used. The returned Pin must be released with Pin.Release.
func (p Pointer[T]) Pin() Pin[T] {
	target := p.space.pin(p.id, false)
	return Pin[T]{space: p.space, id: p.id, value: target.(T)}
}

// PinForWrite is Pin, additionally marking the object dirty: the caller
// is about to mutate the returned value in place.
func (p Pointer[T]) PinForWrite() Pin[T] {
	target := p.space.pin(p.id, true)
	return Pin[T]{space: p.space, id: p.id, value: target.(T)}
}

// Pin is a materialized, pinned view of an object. While held, the
// space's eviction policy will not page the object out.
type Pin[T Payload] struct {
	space *Space
	id    uint64
	value T
}

// Value returns the resident payload. Valid only until Release.
func (p Pin[T]) Value() T {
	return p.value
}

// Release unpins the object, allowing the eviction policy to consider it
// again.
func (p Pin[T]) Release() {
	p.space.unpin(p.id)
}
