package betree

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyInsertThenInsertKeepsOnlyTheSecond(t *testing.T) {
	n := newLeaf()
	apply(n, MessageKey{Key: 1, Timestamp: 1}, MessageValue{Op: OpInsert, Value: 10}, 0)
	apply(n, MessageKey{Key: 1, Timestamp: 2}, MessageValue{Op: OpInsert, Value: 20}, 0)

	require.Len(t, n.messages, 1)
	require.Equal(t, uint64(20), n.messages[0].Value.Value)
	require.Equal(t, OpInsert, n.messages[0].Value.Op)
}

func TestApplyUpdateOnBareLeafCombinesWithDefault(t *testing.T) {
	n := newLeaf()
	apply(n, MessageKey{Key: 1, Timestamp: 1}, MessageValue{Op: OpUpdate, Value: 5}, 100)

	require.Len(t, n.messages, 1)
	require.Equal(t, OpInsert, n.messages[0].Value.Op)
	require.Equal(t, uint64(105), n.messages[0].Value.Value)
}

func TestApplyUpdateAfterInsertCollapsesToInsert(t *testing.T) {
	n := newLeaf()
	apply(n, MessageKey{Key: 1, Timestamp: 1}, MessageValue{Op: OpInsert, Value: 10}, 0)
	apply(n, MessageKey{Key: 1, Timestamp: 2}, MessageValue{Op: OpUpdate, Value: 5}, 0)

	require.Len(t, n.messages, 1)
	require.Equal(t, OpInsert, n.messages[0].Value.Op)
	require.Equal(t, uint64(15), n.messages[0].Value.Value)
}

func TestApplyUpdateWraparoundIsNativeU64Arithmetic(t *testing.T) {
	n := newLeaf()
	apply(n, MessageKey{Key: 1, Timestamp: 1}, MessageValue{Op: OpInsert, Value: maxTimestamp}, 0)
	apply(n, MessageKey{Key: 1, Timestamp: 2}, MessageValue{Op: OpUpdate, Value: 1}, 0)

	require.Equal(t, uint64(0), n.messages[0].Value.Value)
}

func TestApplyDeleteOnLeafRemovesAllMessagesForKey(t *testing.T) {
	n := newLeaf()
	apply(n, MessageKey{Key: 1, Timestamp: 1}, MessageValue{Op: OpInsert, Value: 10}, 0)
	apply(n, MessageKey{Key: 1, Timestamp: 2}, MessageValue{Op: OpDelete}, 0)

	require.Empty(t, n.messages)
}

func TestApplyDeleteOnInternalNodeLeavesATombstone(t *testing.T) {
	n := &Node{pivots: []pivotEntry{{Key: 0}}}
	apply(n, MessageKey{Key: 5, Timestamp: 1}, MessageValue{Op: OpDelete}, 0)

	require.Len(t, n.messages, 1)
	require.Equal(t, OpDelete, n.messages[0].Value.Op)
}

func TestApplyUpdateOnInternalNodeWithNoPriorMessageInstallsVerbatim(t *testing.T) {
	n := &Node{pivots: []pivotEntry{{Key: 0}}}
	apply(n, MessageKey{Key: 5, Timestamp: 1}, MessageValue{Op: OpUpdate, Value: 3}, 0)

	require.Len(t, n.messages, 1)
	require.Equal(t, OpUpdate, n.messages[0].Value.Op)
	require.Equal(t, uint64(3), n.messages[0].Value.Value)
}

func TestApplyUpdateAfterUpdateOnInternalNodeInstallsBothVerbatim(t *testing.T) {
	n := &Node{pivots: []pivotEntry{{Key: 0}}}
	apply(n, MessageKey{Key: 5, Timestamp: 1}, MessageValue{Op: OpUpdate, Value: 3}, 0)
	apply(n, MessageKey{Key: 5, Timestamp: 2}, MessageValue{Op: OpUpdate, Value: 4}, 0)

	require.Len(t, n.messages, 2)
	require.Equal(t, OpUpdate, n.messages[0].Value.Op)
	require.Equal(t, OpUpdate, n.messages[1].Value.Op)
}
