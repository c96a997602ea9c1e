package betree

// flush folds incoming (already sorted by (Key, Timestamp)) into n,
// recursively pushing work downward per spec.md §4.5.2. A non-nil
// return means n split into the returned pivot set; the caller must
// replace n's own pivot entry (or, if n is the root, install the
// returned set as the root's new pivots directly).
func (t *Tree) flush(n *Node, incoming []message) []pivotEntry {
	if len(incoming) == 0 {
		return nil
	}

	if n.isLeaf() {
		for _, m := range incoming {
			apply(n, m.Key, m.Value, t.config.DefaultValue)
		}
		if n.size() >= t.config.MaxNodeSize {
			return t.split(n)
		}
		return nil
	}

	return t.flushInternal(n, incoming)
}

func (t *Tree) flushInternal(n *Node, incoming []message) []pivotEntry {
	firstKey := incoming[0].Key.Key
	if firstKey < n.pivots[0].Key {
		// The first pivot is rewritten lazily to cover a smaller
		// incoming key; only the pivot key moves, the child pointer
		// and its buffered messages are untouched.
		n.pivots[0].Key = firstKey
	}

	firstIdx := n.pivotIndex(incoming[0].Key.Key)
	lastIdx := n.pivotIndex(incoming[len(incoming)-1].Key.Key)

	if firstIdx == lastIdx && t.childBufferEmptyForKey(n.pivots[firstIdx], incoming[0].Key.Key, incoming[len(incoming)-1].Key.Key) {
		t.flushIntoChild(n, firstIdx, incoming)
		if n.size() >= t.config.MaxNodeSize {
			return t.split(n)
		}
		return nil
	}

	for _, m := range incoming {
		apply(n, m.Key, m.Value, t.config.DefaultValue)
	}

	for n.size() >= t.config.MaxNodeSize {
		idx, slice := t.largestBufferedSlice(n)
		if idx < 0 || len(slice) < t.config.MinFlushSize {
			break
		}
		t.flushIntoChild(n, idx, slice)
		n.removeMessagesInSlice(slice)
	}

	if n.size() >= t.config.MaxNodeSize {
		return t.split(n)
	}
	return nil
}

// childBufferEmptyForKey reports whether the child at piv currently has
// no buffered message anywhere in [lo, hi] — the single-child fast path
// precondition (spec.md §4.5.2: "clean, empty-buffer child").
func (t *Tree) childBufferEmptyForKey(piv pivotEntry, lo, hi uint64) bool {
	pin := piv.Child.Pin()
	defer pin.Release()

	child := pin.Value()
	i := child.firstMessageIndexForKey(lo)
	return !(i < len(child.messages) && child.messages[i].Key.Key <= hi)
}

// flushIntoChild recursively flushes msgs into the child at pivots[idx],
// splicing any resulting split pivots into n in the child's place and
// refreshing the cached ChildSize weight.
func (t *Tree) flushIntoChild(n *Node, idx int, msgs []message) {
	piv := n.pivots[idx]
	pin := piv.Child.PinForWrite()
	child := pin.Value()

	newPivots := t.flush(child, msgs)
	newSize := child.size()
	pin.Release()

	if newPivots == nil {
		n.pivots[idx].ChildSize = newSize
		return
	}

	spliced := make([]pivotEntry, 0, len(n.pivots)+len(newPivots)-1)
	spliced = append(spliced, n.pivots[:idx]...)
	spliced = append(spliced, newPivots...)
	spliced = append(spliced, n.pivots[idx+1:]...)
	n.pivots = spliced

	// child's own record is superseded by newPivots' children, which
	// already hold the only references to child's former content; drop
	// the reference n held to it so its swap-space record (and on-disk
	// blob, once unpinned) is reclaimed instead of orphaned.
	piv.Child.Release()
}

// largestBufferedSlice finds the pivot index whose owned slice of n's
// message buffer (messages routing to that child) is largest, returning
// its index and the slice itself. Returns (-1, nil) if n has no pivots.
func (t *Tree) largestBufferedSlice(n *Node) (int, []message) {
	if len(n.pivots) == 0 {
		return -1, nil
	}

	bestIdx, bestLo, bestHi := -1, 0, 0
	for i := range n.pivots {
		lo, hi := n.bufferBoundsForPivot(i)
		if bestIdx == -1 || (hi-lo) > (bestHi-bestLo) {
			bestIdx, bestLo, bestHi = i, lo, hi
		}
	}
	if bestIdx == -1 || bestHi == bestLo {
		return -1, nil
	}
	return bestIdx, n.messages[bestLo:bestHi]
}

// bufferBoundsForPivot returns the [lo, hi) index range within
// n.messages owned by the child at pivots[i] (keys in
// [pivots[i].Key, pivots[i+1].Key), or [pivots[i].Key, +inf) for the
// last pivot).
func (n *Node) bufferBoundsForPivot(i int) (lo, hi int) {
	lo = n.firstMessageIndexForKey(n.pivots[i].Key)
	if i+1 < len(n.pivots) {
		hi = n.firstMessageIndexForKey(n.pivots[i+1].Key)
	} else {
		hi = len(n.messages)
	}
	return lo, hi
}

// removeMessagesInSlice deletes the given contiguous slice (obtained
// from largestBufferedSlice) from n's buffer.
func (n *Node) removeMessagesInSlice(slice []message) {
	if len(slice) == 0 {
		return
	}
	// slice starts at a pivot boundary, so its first message is the
	// earliest buffered one for its key.
	lo := n.firstMessageIndexForKey(slice[0].Key.Key)
	hi := lo + len(slice)
	n.messages = append(n.messages[:lo], n.messages[hi:]...)
}
