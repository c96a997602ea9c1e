package betree

// query implements spec.md §4.5.4 / the boundary-message case analysis,
// ported from original_source/concurrent-betree/include/betree.hpp's
// node::query. The leaf case follows the distilled spec's corrected
// description ("largest MessageKey <= (key, MAX_TS)") rather than the
// reference's literal lower_bound call, which searches past a leaf's
// one real entry for a key whenever its timestamp isn't UINT64_MAX —
// a known defect of the reference source, not a behavior to preserve.
func (t *Tree) query(n *Node, key uint64) (uint64, bool) {
	if n.isLeaf() {
		return queryLeaf(n, key)
	}
	return t.queryInternal(n, key)
}

func queryLeaf(n *Node, key uint64) (uint64, bool) {
	i := n.messageIndex(MessageKey{Key: key, Timestamp: maxTimestamp})
	if i == 0 {
		return 0, false
	}

	cand := n.messages[i-1]
	if cand.Key.Key != key {
		return 0, false
	}
	if cand.Value.Op != OpInsert {
		return 0, false
	}
	return cand.Value.Value, true
}

func (t *Tree) queryInternal(n *Node, key uint64) (uint64, bool) {
	i := n.firstMessageIndexForKey(key)

	if i >= len(n.messages) || n.messages[i].Key.Key != key {
		// Nothing buffered here for this key: descend.
		return t.queryChild(n, key)
	}

	v := t.config.DefaultValue

	switch n.messages[i].Value.Op {
	case OpUpdate:
		// Adopt the child's value as the baseline if it has one;
		// otherwise keep the default. Either way fall through to the
		// trailing loop starting at this same message (it hasn't been
		// consumed yet) to accumulate every UPDATE delta for this key.
		if childVal, found := t.queryChild(n, key); found {
			v = childVal
		}

	case OpDelete:
		i++
		if i >= len(n.messages) || n.messages[i].Key.Key != key {
			return 0, false
		}
		// apply()'s algebra guarantees the message immediately after a
		// DELETE for the same key can only be an UPDATE: an INSERT
		// would have erased the DELETE when it was installed, so this
		// starts the trailing accumulation loop straight from i with
		// v still at the default value.

	case OpInsert:
		v = n.messages[i].Value.Value
		i++

	default:
		return 0, false
	}

	for i < len(n.messages) && n.messages[i].Key.Key == key {
		v += n.messages[i].Value.Value
		i++
	}

	return v, true
}

func (t *Tree) queryChild(n *Node, key uint64) (uint64, bool) {
	idx := n.pivotIndex(key)
	pin := n.pivots[idx].Child.Pin()
	defer pin.Release()

	return t.query(pin.Value(), key)
}
