package betree

import (
	"context"
	"encoding/binary"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/sohambagchi/betree/internal/rwlock"
	"github.com/sohambagchi/betree/internal/store"
	"github.com/sohambagchi/betree/internal/swapspace"
)

// rootMetaID is the fixed backing-store object id holding the current
// (root id, root version) pair, written directly through the backing
// store rather than through the swap space: it is two uint64s, never
// resident, and never subject to the node cache's eviction policy.
const rootMetaID = ^uint64(0)
const rootMetaVersion = 1

// Tree is the public façade (C6): a single write-optimized key-value
// index over one swap space and one backing store. Grounded on
// sirgallo/mari's Mari struct (one root pointer, one node pool, one
// reader-writer coordination layer) generalized from a HAMT's root
// bucket array to a single root node pointer.
type Tree struct {
	root   swapspace.Pointer[*Node]
	config Config

	space   *swapspace.Space
	backing store.BackingStore
	lock    *rwlock.ShardedRWMutex

	timestamp atomic.Uint64
	tickets   rwlock.Tickets

	log *zap.Logger
}

func newPayload() swapspace.Payload { return newLeaf() }

// Open opens (creating if absent) a durable tree at path, backed by
// LevelDB.
func Open(path string, opts ...Option) (*Tree, error) {
	cfg := buildConfig(opts)

	backing, err := store.OpenLevelDBStore(path, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "open betree at %s", path)
	}

	return newTree(backing, cfg)
}

// OpenMem creates an ephemeral, in-memory-backed tree: the swap space's
// eviction policy still pages nodes through a backing store, but that
// store is a plain map with no disk footprint, for tests and scratch
// use.
func OpenMem(opts ...Option) *Tree {
	cfg := buildConfig(opts)

	t, err := newTree(store.NewMemStore(), cfg)
	if err != nil {
		// MemStore's Allocate/Get never fail; a non-nil error here would
		// indicate a wiring bug in newTree itself.
		fatalOpenMem(err)
	}
	return t
}

func buildConfig(opts []Option) Config {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return cfg
}

func newTree(backing store.BackingStore, cfg Config) (*Tree, error) {
	space := swapspace.New(backing, newPayload, cfg.CacheSize, cfg.Logger)

	t := &Tree{
		config:  cfg,
		space:   space,
		backing: backing,
		lock:    rwlock.NewForHost(),
		log:     cfg.Logger.Named("betree"),
	}

	rootID, rootVersion, err := readRootMeta(backing)
	if err != nil {
		return nil, errors.Wrap(err, "read root metadata")
	}

	if rootID == 0 {
		t.root = swapspace.Allocate[*Node](space, newLeaf())
		if err := t.writeRootMeta(); err != nil {
			return nil, errors.Wrap(err, "write initial root metadata")
		}
		return t, nil
	}

	t.root = swapspace.OpenRoot[*Node](space, rootID, rootVersion)
	return t, nil
}

// Close flushes every dirty resident node, persists the current root
// pointer, and closes the backing store.
func (t *Tree) Close() error {
	t.lock.AcquireWrite()
	defer t.lock.ReleaseWrite()

	t.space.Flush()
	if err := t.writeRootMeta(); err != nil {
		return errors.Wrap(err, "write root metadata on close")
	}
	return t.space.Close()
}

// Checkpoint forces every dirty resident node, and the current root
// pointer, to durable storage without closing the tree.
func (t *Tree) Checkpoint(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.lock.AcquireWrite()
	defer t.lock.ReleaseWrite()

	t.space.Flush()
	return t.writeRootMeta()
}

func (t *Tree) writeRootMeta() error {
	version := t.root.Version()
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[0:8], t.root.ID())
	binary.BigEndian.PutUint64(buf[8:16], version)

	if err := t.backing.Allocate(rootMetaID, rootMetaVersion); err != nil {
		return err
	}
	return t.backing.Put(&store.Handle{ID: rootMetaID, Version: rootMetaVersion, Bytes: buf})
}

func readRootMeta(backing store.BackingStore) (id, version uint64, err error) {
	h, err := backing.Get(rootMetaID, rootMetaVersion)
	if errors.Is(err, store.ErrNotFound) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}
	if len(h.Bytes) < 16 {
		return 0, 0, nil
	}
	return binary.BigEndian.Uint64(h.Bytes[0:8]), binary.BigEndian.Uint64(h.Bytes[8:16]), nil
}

func (t *Tree) nextTimestamp() uint64 {
	return t.timestamp.Add(1)
}

// readSlot draws a reader-slot ticket for the duration of one read-locked
// call. Grounded on rwlock.Tickets, the round-robin stand-in for the C++
// reference's per-thread shard id.
func (t *Tree) readSlot() int {
	return t.tickets.Next()
}

// Insert installs value for key, overwriting any prior value.
func (t *Tree) Insert(key, value uint64) {
	t.upsert(key, MessageValue{Op: OpInsert, Value: value})
}

// Update adds delta to key's current value (or the configured default,
// if key has no current value), per the UPDATE message semantics.
func (t *Tree) Update(key, delta uint64) {
	t.upsert(key, MessageValue{Op: OpUpdate, Value: delta})
}

// Erase removes key, if present.
func (t *Tree) Erase(key uint64) {
	t.upsert(key, MessageValue{Op: OpDelete})
}

func (t *Tree) upsert(key uint64, val MessageValue) {
	t.lock.AcquireWrite()
	defer t.lock.ReleaseWrite()

	ts := t.nextTimestamp()
	batch := []message{{Key: MessageKey{Key: key, Timestamp: ts}, Value: val}}
	t.applyBatchLocked(batch)
}

// KV is one entry of an InsertBatch call.
type KV struct {
	Key   uint64
	Value uint64
}

// InsertBatch installs every entry in kvs as a single write-locked
// batch, amortizing one lock acquisition (and one pass through the
// root's flush/split machinery) across many keys instead of one
// upsert call per key.
func (t *Tree) InsertBatch(kvs []KV) {
	if len(kvs) == 0 {
		return
	}

	t.lock.AcquireWrite()
	defer t.lock.ReleaseWrite()

	batch := make([]message, len(kvs))
	for i, kv := range kvs {
		batch[i] = message{
			Key:   MessageKey{Key: kv.Key, Timestamp: t.nextTimestamp()},
			Value: MessageValue{Op: OpInsert, Value: kv.Value},
		}
	}
	sortMessages(batch)
	t.applyBatchLocked(batch)
}

func (t *Tree) applyBatchLocked(batch []message) {
	pin := t.root.PinForWrite()
	root := pin.Value()

	if newPivots := t.flush(root, batch); newPivots != nil {
		root.pivots = newPivots
		root.messages = nil
	}

	pin.Release()
}

// Query returns key's current effective value, and whether one exists.
func (t *Tree) Query(key uint64) (uint64, bool) {
	slot := t.readSlot()
	t.lock.AcquireRead(slot)
	defer t.lock.ReleaseRead(slot)

	pin := t.root.Pin()
	defer pin.Release()

	return t.query(pin.Value(), key)
}

// Get is Query's error-returning counterpart, for callers that prefer
// an error over a boolean.
func (t *Tree) Get(key uint64) (uint64, error) {
	v, ok := t.Query(key)
	if !ok {
		return 0, ErrNotFound
	}
	return v, nil
}

// Stats reports coarse tree-wide counters, gathered under a read lock.
type Stats struct {
	Height           int
	ResidentSize     int
	LiveKeys         int
	BufferedMessages int
}

// Stats walks the whole tree once under a read lock to measure height
// and total buffered-message count, then re-queries every candidate
// key to count how many currently resolve to a live value.
func (t *Tree) Stats() Stats {
	slot := t.readSlot()
	t.lock.AcquireRead(slot)
	defer t.lock.ReleaseRead(slot)

	height, buffered := t.walkStatsLocked(t.root)

	seen := make(map[uint64]struct{})
	var keys []uint64
	t.collectCandidateKeys(t.root, seen, &keys)

	pin := t.root.Pin()
	root := pin.Value()
	live := 0
	for _, k := range keys {
		if _, ok := t.query(root, k); ok {
			live++
		}
	}
	pin.Release()

	return Stats{
		Height:           height,
		ResidentSize:     t.space.Resident(),
		LiveKeys:         live,
		BufferedMessages: buffered,
	}
}

func (t *Tree) walkStatsLocked(ptr swapspace.Pointer[*Node]) (height, messages int) {
	pin := ptr.Pin()
	n := pin.Value()
	messages = len(n.messages)

	if n.isLeaf() {
		pin.Release()
		return 1, messages
	}

	children := make([]swapspace.Pointer[*Node], len(n.pivots))
	for i, p := range n.pivots {
		children[i] = p.Child
	}
	pin.Release()

	tallest := 0
	for _, c := range children {
		h, m := t.walkStatsLocked(c)
		if h > tallest {
			tallest = h
		}
		messages += m
	}
	return tallest + 1, messages
}

// sortMessages insertion-sorts msgs by (Key, Timestamp). Batches passed
// to InsertBatch are expected to be small relative to a node's
// MaxNodeSize, and arrive already close to sorted in the common
// append-mostly-increasing-keys workload.
func sortMessages(msgs []message) {
	for i := 1; i < len(msgs); i++ {
		for j := i; j > 0 && msgs[j].Key.less(msgs[j-1].Key); j-- {
			msgs[j], msgs[j-1] = msgs[j-1], msgs[j]
		}
	}
}

func fatalOpenMem(err error) {
	panic(errors.Wrap(err, "betree: OpenMem"))
}
