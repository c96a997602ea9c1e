package betree

import (
	"sort"

	"github.com/sohambagchi/betree/internal/swapspace"
)

// pivotEntry is one entry of a node's pivot map: the lower-bound key of
// a child's interval, a handle to that child, and a cached item count
// (ChildSize, |pivots|+|messages| as of the last time this node's
// engine observed it) that lets callers estimate a child's weight
// without pinning it. The child's on-disk version is deliberately not
// cached here: it is looked up live, from the swap space's own record
// table, at the moment this node is actually serialized (see
// swapspace.Encoder.WriteChild) — caching it here would go stale the
// instant the child is written back independently of this node.
type pivotEntry struct {
	Key       uint64
	Child     swapspace.Pointer[*Node]
	ChildSize int
}

// Node is either a leaf (no pivots) or an internal node. Grounded on
// Mari's per-node {children []*Node, keys, ...} shape generalized from
// a sparse 256-way bitmap-routed array (HAMT radix digits) to a dense
// sorted slice, since keys here are ordered uint64s rather than hashed
// byte digits — there is no fixed-radix fan-out to route on.
type Node struct {
	pivots   []pivotEntry
	messages []message
}

func newLeaf() *Node {
	return &Node{}
}

func (n *Node) isLeaf() bool {
	return len(n.pivots) == 0
}

func (n *Node) size() int {
	return len(n.pivots) + len(n.messages)
}

// pivotIndex returns the index of the greatest pivot whose key is <= k,
// per spec.md §4.5.1. Returns 0 if n has no pivots, which callers then
// cannot index; callers must check isLeaf first.
func (n *Node) pivotIndex(k uint64) int {
	// sort.Search finds the first index whose pivot key is > k; the
	// routing pivot is one before that, clamped to the first pivot if k
	// is smaller than every pivot key (the first pivot is rewritten
	// lazily to cover such keys during flush, per §4.5.1).
	i := sort.Search(len(n.pivots), func(i int) bool { return n.pivots[i].Key > k })
	if i == 0 {
		return 0
	}
	return i - 1
}

// messageIndex returns the insertion point for mk in n.messages, kept
// sorted by (Key, Timestamp).
func (n *Node) messageIndex(mk MessageKey) int {
	return sort.Search(len(n.messages), func(i int) bool { return mk.less(n.messages[i].Key) })
}

// firstMessageIndexForKey returns the index of the first message (in
// sorted order) whose MessageKey is >= (key, 0) — i.e. the earliest
// buffered message for this key at any timestamp.
func (n *Node) firstMessageIndexForKey(key uint64) int {
	return n.messageIndex(MessageKey{Key: key, Timestamp: 0})
}

// insertMessage inserts m keeping n.messages sorted, via binary search
// plus a single slice-splice (idiomatic Go in place of a balanced tree:
// MaxNodeSize bounds the slice length, matching the element counts the
// teacher's own per-node arrays carry).
func (n *Node) insertMessage(m message) {
	i := n.messageIndex(m.Key)
	n.messages = append(n.messages, message{})
	copy(n.messages[i+1:], n.messages[i:])
	n.messages[i] = m
}

// removeMessagesForKey deletes every buffered message (any timestamp)
// for key and reports how many were removed.
func (n *Node) removeMessagesForKey(key uint64) int {
	lo := n.firstMessageIndexForKey(key)
	hi := lo
	for hi < len(n.messages) && n.messages[hi].Key.Key == key {
		hi++
	}
	if lo == hi {
		return 0
	}
	n.messages = append(n.messages[:lo], n.messages[hi:]...)
	return hi - lo
}

// lastMessageForKey returns the most recent (highest-timestamp) existing
// message for key in this node's buffer, if any.
func (n *Node) lastMessageForKey(key uint64) (message, bool) {
	lo := n.firstMessageIndexForKey(key)
	hi := lo
	for hi < len(n.messages) && n.messages[hi].Key.Key == key {
		hi++
	}
	if lo == hi {
		return message{}, false
	}
	return n.messages[hi-1], true
}

// MarshalNode/UnmarshalNode implement swapspace.Payload: the wire form
// is a sequence of (pivot_key, child_id, child_version, child_size)
// tuples followed by a sequence of ((key, timestamp), (opcode, value))
// tuples, per spec.md §6 (extended with child_version, needed for a
// cold Open to know what version to load a child at before anything in
// this process has touched it — see DESIGN.md). child_version itself
// comes from Encoder.WriteChild, which reads it live off the swap
// space's record table rather than from any field on pivotEntry.
func (n *Node) MarshalNode(enc *swapspace.Encoder) {
	enc.WriteUint64(uint64(len(n.pivots)))
	for _, p := range n.pivots {
		enc.WriteUint64(p.Key)
		enc.WriteChild(p.Child.ID())
		enc.WriteUint64(uint64(p.ChildSize))
	}

	enc.WriteUint64(uint64(len(n.messages)))
	for _, m := range n.messages {
		enc.WriteUint64(m.Key.Key)
		enc.WriteUint64(m.Key.Timestamp)
		enc.WriteByte(byte(m.Value.Op))
		enc.WriteUint64(m.Value.Value)
	}
}

func (n *Node) UnmarshalNode(dec *swapspace.Decoder) {
	npivots := int(dec.ReadUint64())
	n.pivots = make([]pivotEntry, npivots)
	for i := range n.pivots {
		key := dec.ReadUint64()
		child := swapspace.ReadChildPointer[*Node](dec)
		size := int(dec.ReadUint64())
		n.pivots[i] = pivotEntry{Key: key, Child: child, ChildSize: size}
	}

	nmessages := int(dec.ReadUint64())
	n.messages = make([]message, nmessages)
	for i := range n.messages {
		key := dec.ReadUint64()
		ts := dec.ReadUint64()
		op := Opcode(dec.ReadByte())
		value := dec.ReadUint64()
		n.messages[i] = message{Key: MessageKey{Key: key, Timestamp: ts}, Value: MessageValue{Op: op, Value: value}}
	}
}
