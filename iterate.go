package betree

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sohambagchi/betree/internal/swapspace"
)

// Iterator yields the tree's effective (key, value) sequence in
// ascending key order, replaying each key's buffered messages through
// Query rather than re-deriving the boundary-message algebra a second
// time (see DESIGN.md: the raw nextMessage merge-cursor spec.md §4.5.5
// describes is collapsed here into "collect every key that appears
// anywhere in the subtree, then ask Query for its effective value" —
// observably identical, and guaranteed consistent with Query by
// construction, at the cost of materializing the key set up front
// instead of streaming it).
type Iterator struct {
	tree  *Tree
	keys  []uint64
	pos   int
	key   uint64
	value uint64
	valid bool
}

// Valid reports whether Key/Value currently name a live entry.
func (it *Iterator) Valid() bool { return it.valid }

// Key returns the current entry's key. Only valid while Valid().
func (it *Iterator) Key() uint64 { return it.key }

// Value returns the current entry's effective value. Only valid while
// Valid().
func (it *Iterator) Value() uint64 { return it.value }

// Next advances to the next live entry.
func (it *Iterator) Next() {
	it.advance()
}

func (it *Iterator) advance() {
	for it.pos < len(it.keys) {
		k := it.keys[it.pos]
		it.pos++

		v, found := it.tree.Query(k)
		if found {
			it.key, it.value, it.valid = k, v, true
			return
		}
	}
	it.valid = false
}

// Begin returns an iterator positioned at the smallest live key.
func (t *Tree) Begin() *Iterator {
	return t.newIterator(0, false)
}

// End returns an always-invalid sentinel iterator, for the conventional
// "iterate while it != End()" idiom.
func (t *Tree) End() *Iterator {
	return &Iterator{tree: t}
}

// LowerBound returns an iterator positioned at the smallest live key
// >= k.
func (t *Tree) LowerBound(k uint64) *Iterator {
	return t.newIterator(k, false)
}

// UpperBound returns an iterator positioned at the smallest live key
// > k.
func (t *Tree) UpperBound(k uint64) *Iterator {
	return t.newIterator(k, true)
}

func (t *Tree) newIterator(k uint64, strictlyAfter bool) *Iterator {
	keys := t.sortedCandidateKeys()

	start := sort.Search(len(keys), func(i int) bool {
		if strictlyAfter {
			return keys[i] > k
		}
		return keys[i] >= k
	})

	it := &Iterator{tree: t, keys: keys, pos: start}
	it.advance()
	return it
}

// sortedCandidateKeys collects every key named by any message anywhere
// in the tree (deduplicated, ascending). It over-approximates the set
// of live keys — a key whose every message is a DELETE, or whose last
// message was swallowed by a boundary case, contributes no value and
// is filtered out by Query during iteration — but never misses one.
func (t *Tree) sortedCandidateKeys() []uint64 {
	slot := t.readSlot()
	t.lock.AcquireRead(slot)

	seen := make(map[uint64]struct{})
	var keys []uint64
	t.collectCandidateKeys(t.root, seen, &keys)

	t.lock.ReleaseRead(slot)

	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func (t *Tree) collectCandidateKeys(ptr swapspace.Pointer[*Node], seen map[uint64]struct{}, out *[]uint64) {
	pin := ptr.Pin()
	n := pin.Value()

	for _, m := range n.messages {
		if _, ok := seen[m.Key.Key]; !ok {
			seen[m.Key.Key] = struct{}{}
			*out = append(*out, m.Key.Key)
		}
	}

	children := make([]swapspace.Pointer[*Node], len(n.pivots))
	for i, p := range n.pivots {
		children[i] = p.Child
	}
	pin.Release()

	for _, c := range children {
		t.collectCandidateKeys(c, seen, out)
	}
}

// DumpMessages is a debug pre-order traversal printing each node's
// pivots and buffered messages, grounded on Mari's
// PrintChildren/printChildrenRecursive convention of a depth-indented
// structural dump.
func (t *Tree) DumpMessages() string {
	slot := t.readSlot()
	t.lock.AcquireRead(slot)
	defer t.lock.ReleaseRead(slot)

	var b strings.Builder
	t.dumpNode(&b, t.root, 0)
	return b.String()
}

func (t *Tree) dumpNode(b *strings.Builder, ptr swapspace.Pointer[*Node], depth int) {
	pin := ptr.Pin()
	n := pin.Value()

	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(b, "%snode id=%d pivots=%d messages=%d\n", indent, ptr.ID(), len(n.pivots), len(n.messages))
	for _, m := range n.messages {
		fmt.Fprintf(b, "%s  msg key=%d ts=%d op=%s value=%d\n", indent, m.Key.Key, m.Key.Timestamp, m.Value.Op, m.Value.Value)
	}

	children := make([]swapspace.Pointer[*Node], len(n.pivots))
	pivotKeys := make([]uint64, len(n.pivots))
	for i, p := range n.pivots {
		children[i] = p.Child
		pivotKeys[i] = p.Key
	}
	pin.Release()

	for i, c := range children {
		fmt.Fprintf(b, "%s  pivot key=%d ->\n", indent, pivotKeys[i])
		t.dumpNode(b, c, depth+1)
	}
}
