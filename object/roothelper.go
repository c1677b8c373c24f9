package object

import "github.com/nestybox/eobjects-go/handle"

// RootHelper is the per-tree bookkeeping object constructed as an
// attachment of the first object in a tree. It
// owns the tree's private handle free list and a back-pointer to the
// tree's owning thread, which is what lets any object in the tree locate
// its thread in O(1) via Object.RootHelper().Thread.
type RootHelper struct {
	tbl  *handle.Table
	free *handle.FreeList

	// Root is the outermost object of this tree.
	Root *Object

	// HelperObject is this RootHelper's own attachment object (oid
	// RootHelperOid) under Root, so it shows up in serialization/traversal
	// like any other attachment.
	HelperObject *Object

	// Thread is an opaque back-pointer to the owning thread. Declared as
	// interface{} to avoid an object<->thread import cycle; package thread
	// stores its *thread.Thread here and type-asserts on read.
	Thread interface{}
}

// Table returns the shared, process-wide handle table this tree allocates
// from.
func (rh *RootHelper) Table() *handle.Table { return rh.tbl }

// NewTree constructs a brand-new object tree: a root object of classID,
// plus its root helper attachment. minBatch/maxBatch tune the per-tree
// handle free list's geometric refill.
func NewTree(tbl *handle.Table, classID int32, minBatch, maxBatch int, thread interface{}) (*Object, *RootHelper, error) {
	free := handle.NewFreeList(tbl, minBatch, maxBatch)
	rh := &RootHelper{tbl: tbl, free: free, Thread: thread}

	oix, err := free.Take()
	if err != nil {
		return nil, nil, err
	}
	root := newObject(tbl, rh, oix, classID, RitemOid, 0)
	rootHandle := tbl.Lookup(oix)
	rootHandle.ObjectParent = handle.NoOix
	rh.Root = root

	helper, err := New(rh, root, 0, RootHelperOid, handle.FlagAttached)
	if err != nil {
		return nil, nil, err
	}
	helper.SetPayload(rh)
	rh.HelperObject = helper

	return root, rh, nil
}

// Destroy tears down the entire tree: every object depth-first, then
// drains the private free list back to the shared table.
func (rh *RootHelper) Destroy() {
	rh.Root.Destroy()
	rh.free.Drain()
}
