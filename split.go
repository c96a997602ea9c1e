package betree

import "github.com/sohambagchi/betree/internal/swapspace"

// split partitions n's pivots and messages across a set of brand-new
// sibling nodes and returns the pivot set the caller must install in
// n's place. Precondition: n.size() >= MaxNodeSize. Faithfully ported
// from original_source/concurrent-betree/include/betree.hpp's
// node::split (the distilled spec's "leaves"/"per_leaf" formulas plus
// the C++ implementation detail the distillation doesn't spell out:
// a stride always takes one whole pivot and every message that pivot
// owns before re-checking the per-leaf budget, never splitting a
// pivot from its owned messages mid-stride).
func (t *Tree) split(n *Node) []pivotEntry {
	total := n.size()

	numNewLeaves := total / ((10 * t.config.MaxNodeSize) / 24)
	if numNewLeaves < 1 {
		numNewLeaves = 1
	}
	thingsPerNewLeaf := (total + numNewLeaves - 1) / numNewLeaves

	result := make([]pivotEntry, 0, numNewLeaves)
	pivotIdx, msgIdx, thingsMoved := 0, 0, 0

	for i := 0; i < numNewLeaves; i++ {
		if pivotIdx >= len(n.pivots) && msgIdx >= len(n.messages) {
			break
		}

		var firstKey uint64
		if pivotIdx < len(n.pivots) {
			firstKey = n.pivots[pivotIdx].Key
		} else {
			firstKey = n.messages[msgIdx].Key.Key
		}

		child := newLeaf()
		budget := (i + 1) * thingsPerNewLeaf

		for thingsMoved < budget && (pivotIdx < len(n.pivots) || msgIdx < len(n.messages)) {
			if pivotIdx < len(n.pivots) {
				child.pivots = append(child.pivots, n.pivots[pivotIdx])
				pivotIdx++
				thingsMoved++

				hasBound := pivotIdx < len(n.pivots)
				var boundKey uint64
				if hasBound {
					boundKey = n.pivots[pivotIdx].Key
				}
				for msgIdx < len(n.messages) && (!hasBound || n.messages[msgIdx].Key.Key < boundKey) {
					child.messages = append(child.messages, n.messages[msgIdx])
					msgIdx++
					thingsMoved++
				}
			} else {
				child.messages = append(child.messages, n.messages[msgIdx])
				msgIdx++
				thingsMoved++
			}
		}

		childPtr := swapspace.Allocate[*Node](t.space, child)
		result = append(result, pivotEntry{Key: firstKey, Child: childPtr, ChildSize: child.size()})
	}

	n.pivots = nil
	n.messages = nil

	return result
}
