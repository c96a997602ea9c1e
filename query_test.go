package betree

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sohambagchi/betree/internal/swapspace"
)

func TestQueryLeafFindsTheLatestInsertForAKey(t *testing.T) {
	n := newLeaf()
	n.insertMessage(message{Key: MessageKey{Key: 5, Timestamp: 3}, Value: MessageValue{Op: OpInsert, Value: 99}})

	v, ok := queryLeaf(n, 5)
	require.True(t, ok)
	require.Equal(t, uint64(99), v)
}

func TestQueryLeafMissesAnUnrelatedKey(t *testing.T) {
	n := newLeaf()
	n.insertMessage(message{Key: MessageKey{Key: 5, Timestamp: 1}, Value: MessageValue{Op: OpInsert, Value: 99}})

	_, ok := queryLeaf(n, 6)
	require.False(t, ok)
}

func TestQueryInternalDescendsWhenNothingIsBuffered(t *testing.T) {
	tr := OpenMem()

	leaf := newLeaf()
	leaf.insertMessage(message{Key: MessageKey{Key: 5, Timestamp: 1}, Value: MessageValue{Op: OpInsert, Value: 42}})
	child := swapspace.Allocate[*Node](tr.space, leaf)

	root := &Node{pivots: []pivotEntry{{Key: 0, Child: child}}}

	v, ok := tr.query(root, 5)
	require.True(t, ok)
	require.Equal(t, uint64(42), v)
}

func TestQueryInternalUpdateCombinesWithChildValue(t *testing.T) {
	tr := OpenMem()

	leaf := newLeaf()
	leaf.insertMessage(message{Key: MessageKey{Key: 5, Timestamp: 1}, Value: MessageValue{Op: OpInsert, Value: 100}})
	child := swapspace.Allocate[*Node](tr.space, leaf)

	root := &Node{pivots: []pivotEntry{{Key: 0, Child: child}}}
	root.insertMessage(message{Key: MessageKey{Key: 5, Timestamp: 2}, Value: MessageValue{Op: OpUpdate, Value: 9}})

	v, ok := tr.query(root, 5)
	require.True(t, ok)
	require.Equal(t, uint64(109), v)
}

func TestQueryInternalDeleteFollowedByUpdateAppliesOverDefault(t *testing.T) {
	tr := OpenMem(WithDefaultValue(1000))

	leaf := newLeaf()
	leaf.insertMessage(message{Key: MessageKey{Key: 5, Timestamp: 1}, Value: MessageValue{Op: OpInsert, Value: 1}})
	child := swapspace.Allocate[*Node](tr.space, leaf)

	root := &Node{pivots: []pivotEntry{{Key: 0, Child: child}}}
	root.insertMessage(message{Key: MessageKey{Key: 5, Timestamp: 2}, Value: MessageValue{Op: OpDelete}})
	root.insertMessage(message{Key: MessageKey{Key: 5, Timestamp: 3}, Value: MessageValue{Op: OpUpdate, Value: 7}})

	v, ok := tr.query(root, 5)
	require.True(t, ok)
	require.Equal(t, uint64(1007), v)
}

func TestQueryInternalInsertShadowsTheChildEntirely(t *testing.T) {
	tr := OpenMem()

	leaf := newLeaf()
	leaf.insertMessage(message{Key: MessageKey{Key: 5, Timestamp: 1}, Value: MessageValue{Op: OpInsert, Value: 1}})
	child := swapspace.Allocate[*Node](tr.space, leaf)

	root := &Node{pivots: []pivotEntry{{Key: 0, Child: child}}}
	root.insertMessage(message{Key: MessageKey{Key: 5, Timestamp: 2}, Value: MessageValue{Op: OpInsert, Value: 55}})

	v, ok := tr.query(root, 5)
	require.True(t, ok)
	require.Equal(t, uint64(55), v)
}

func TestQueryInternalDeleteWithNoFollowingMessageReportsNotFound(t *testing.T) {
	tr := OpenMem()

	leaf := newLeaf()
	leaf.insertMessage(message{Key: MessageKey{Key: 5, Timestamp: 1}, Value: MessageValue{Op: OpInsert, Value: 1}})
	child := swapspace.Allocate[*Node](tr.space, leaf)

	root := &Node{pivots: []pivotEntry{{Key: 0, Child: child}}}
	root.insertMessage(message{Key: MessageKey{Key: 5, Timestamp: 2}, Value: MessageValue{Op: OpDelete}})

	_, ok := tr.query(root, 5)
	require.False(t, ok)
}
