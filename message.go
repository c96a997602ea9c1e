package betree

import "github.com/sohambagchi/betree/internal/fatal"

// apply implements the message algebra (C4): folding one incoming
// message into node's buffer, per spec.md §4.4. defaultValue is the
// tree's configured UPDATE baseline for a key with no prior INSERT.
func apply(n *Node, mkey MessageKey, mval MessageValue, defaultValue uint64) {
	switch mval.Op {
	case OpInsert:
		n.removeMessagesForKey(mkey.Key)
		n.insertMessage(message{Key: mkey, Value: mval})

	case OpDelete:
		n.removeMessagesForKey(mkey.Key)
		if !n.isLeaf() {
			// Internal nodes keep the DELETE as a tombstone: children
			// further down may still hold the key.
			n.insertMessage(message{Key: mkey, Value: mval})
		}

	case OpUpdate:
		applyUpdate(n, mkey, mval, defaultValue)

	default:
		fatal.Abortf(nil, "betree: unreachable opcode %d", mval.Op)
	}
}

func applyUpdate(n *Node, mkey MessageKey, mval MessageValue, defaultValue uint64) {
	prev, ok := n.lastMessageForKey(mkey.Key)

	switch {
	case !ok && n.isLeaf():
		// No prior message and nothing below to combine with: the
		// update applies directly against the tree's default value.
		apply(n, mkey, MessageValue{Op: OpInsert, Value: defaultValue + mval.Value}, defaultValue)

	case !ok && !n.isLeaf():
		// Nothing buffered here yet; install verbatim, to be combined
		// with whatever is found further down during descent.
		n.insertMessage(message{Key: mkey, Value: mval})

	case prev.Value.Op == OpInsert:
		// Commutativity law: UPDATEs combine as repeated addition in
		// u64; overflow wraps (native Go uint64 arithmetic, no
		// saturation).
		apply(n, mkey, MessageValue{Op: OpInsert, Value: prev.Value.Value + mval.Value}, defaultValue)

	default:
		// prev is an UPDATE or a DELETE: install verbatim, preserving
		// order relative to prev.
		n.insertMessage(message{Key: mkey, Value: mval})
	}
}
