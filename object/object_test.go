package object

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nestybox/eobjects-go/handle"
)

func newTestTree(t *testing.T) (*Object, *RootHelper) {
	t.Helper()
	tbl := handle.NewTable()
	root, rh, err := NewTree(tbl, 1, 4, 16, nil)
	require.NoError(t, err)
	return root, rh
}

func TestChildInsertionOrderAndTraversal(t *testing.T) {
	root, rh := newTestTree(t)
	defer rh.Destroy()

	var kids []*Object
	for i := 0; i < 5; i++ {
		c, err := New(rh, root, 2, ItemOid, 0)
		require.NoError(t, err)
		kids = append(kids, c)
	}

	require.Equal(t, 5, root.ChildCount(ChildOid))

	cur := root.First(ChildOid)
	for i := 0; i < 5; i++ {
		require.NotNil(t, cur)
		require.Same(t, kids[i], cur, "children with equal oid must traverse in insertion order")
		cur = cur.Next(ChildOid)
	}
	require.Nil(t, cur)
}

func TestFilterChildVsAllSkipsAttachments(t *testing.T) {
	root, rh := newTestTree(t)
	defer rh.Destroy()

	_, err := New(rh, root, 2, ItemOid, 0)
	require.NoError(t, err)
	_, err = New(rh, root, 2, NameOid, handle.FlagAttached)
	require.NoError(t, err)

	require.Equal(t, 1, root.ChildCount(ChildOid))
	// RootHelperOid attachment plus the NAME attachment plus the ITEM child.
	require.Equal(t, 3, root.ChildCount(AllOid))
}

func TestExactOidFilter(t *testing.T) {
	root, rh := newTestTree(t)
	defer rh.Destroy()

	_, err := New(rh, root, 2, Oid(5), 0)
	require.NoError(t, err)
	_, err = New(rh, root, 2, Oid(7), 0)
	require.NoError(t, err)

	found := root.First(Oid(7))
	require.NotNil(t, found)
	require.Equal(t, Oid(7), found.Oid())
	require.Nil(t, root.First(Oid(99)))
}

func TestAdoptMovesBetweenParentsAndRetargetsRoot(t *testing.T) {
	rootA, rhA := newTestTree(t)
	defer rhA.Destroy()
	rootB, rhB, err := NewTree(rhA.Table(), 1, 4, 16, nil)
	require.NoError(t, err)
	defer rhB.Destroy()

	child, err := New(rhA, rootA, 2, ItemOid, 0)
	require.NoError(t, err)
	require.Same(t, rhA, child.RootHelper())

	child.Adopt(rootB, ItemOid, 0)

	require.Equal(t, 0, rootA.ChildCount(ChildOid))
	require.Equal(t, 1, rootB.ChildCount(ChildOid))
	require.Same(t, rhB, child.RootHelper())
}

func TestDeleteChildrenFreesHandles(t *testing.T) {
	root, rh := newTestTree(t)
	defer rh.Destroy()

	for i := 0; i < 10; i++ {
		_, err := New(rh, root, 2, ItemOid, 0)
		require.NoError(t, err)
	}
	require.Equal(t, 10, root.ChildCount(ChildOid))

	root.DeleteChildren()
	require.Equal(t, 0, root.ChildCount(ChildOid))
}

func TestStaleHandleAfterDestroy(t *testing.T) {
	root, rh := newTestTree(t)
	defer rh.Destroy()

	child, err := New(rh, root, 2, ItemOid, 0)
	require.NoError(t, err)
	id := child.ID()

	child.Destroy()

	_, ok := rh.Table().Get(id)
	require.False(t, ok)
}
