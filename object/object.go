// Package object implements the typed object tree: a
// parent/child red-black index keyed by child oid, built on top of the
// handle table (package handle) for stable cross-thread identity.
package object

import (
	"github.com/nestybox/eobjects-go/handle"
)

// Object is a node in a per-thread tree with a stable identity (its
// handle) and a class-id. Every object owns exactly one handle.
type Object struct {
	tbl  *handle.Table
	oix  int32
	root *RootHelper

	classID int32
	payload interface{} // class-specific state (property store, name value, ...)
}

// ClassID returns the object's class-id.
func (o *Object) ClassID() int32 { return o.classID }

// ID returns the object's external identity.
func (o *Object) ID() handle.ID {
	h := o.handle()
	return handle.ID{Oix: h.Oix, Ucnt: h.Ucnt}
}

// Oid returns the object's child-local identifier within its parent.
func (o *Object) Oid() Oid { return Oid(o.handle().Oid) }

// Flags returns the handle's flag bits.
func (o *Object) Flags() handle.Flags { return o.handle().Flags }

// SetFlags overwrites the handle's flag bits (preserving the red-black
// color bit, which is internal bookkeeping, not a caller-visible flag).
func (o *Object) SetFlags(f handle.Flags) {
	h := o.handle()
	red := h.Flags & handle.FlagRed
	h.Flags = f | red
}

// Payload returns the class-specific state attached to this object (the
// property store, a name's variable, a binding's fields, ...).
func (o *Object) Payload() interface{} { return o.payload }

// SetPayload replaces the class-specific state.
func (o *Object) SetPayload(p interface{}) { o.payload = p }

// RootHelper returns this object's tree's root helper (O(1): every object
// caches it directly and it is kept current across adopt()).
func (o *Object) RootHelper() *RootHelper { return o.root }

func (o *Object) handle() *handle.Handle { return o.tbl.Lookup(o.oix) }

// Parent returns the owning object, or nil if this object is a tree root.
func (o *Object) Parent() *Object {
	h := o.handle()
	if h.ObjectParent == handle.NoOix {
		return nil
	}
	ph := o.tbl.Lookup(h.ObjectParent)
	if ph == nil {
		return nil
	}
	return ph.Owner.(*Object)
}

func (o *Object) rb() *rbtree { return &rbtree{tbl: o.tbl} }

// newObject wraps the already-reserved handle oix as an object of root's
// tree, setting its oid and flags; it does not attach it under any parent.
func newObject(tbl *handle.Table, root *RootHelper, oix int32, classID int32, oid Oid, flags handle.Flags) *Object {
	o := &Object{tbl: tbl, oix: oix, root: root, classID: classID}
	h := tbl.Lookup(oix)
	h.Oid = int32(oid)
	h.Flags = flags
	h.Owner = o
	return o
}

// New constructs a new object as a child of parent (or, if parent is nil,
// as the root of a new tree owned by root). The object is immediately
// inserted into parent's red-black child index.
func New(root *RootHelper, parent *Object, classID int32, oid Oid, flags handle.Flags) (*Object, error) {
	oix, err := root.free.Take()
	if err != nil {
		return nil, err
	}
	o := newObject(root.tbl, root, oix, classID, oid, flags)

	if parent == nil {
		h := o.handle()
		h.ObjectParent = handle.NoOix
		return o, nil
	}

	o.attachUnder(parent)
	return o, nil
}

func (o *Object) attachUnder(parent *Object) {
	h := o.handle()
	h.ObjectParent = parent.oix

	ph := parent.handle()
	t := o.rb()
	t.Insert(&ph.FirstChild, o.oix)
}

func (o *Object) detachFromParent() {
	h := o.handle()
	if h.ObjectParent == handle.NoOix {
		return
	}
	ph := o.tbl.Lookup(h.ObjectParent)
	t := o.rb()
	t.Delete(&ph.FirstChild, o.oix, false)
	h.ObjectParent = handle.NoOix
}

// Adopt detaches the object from its current parent (if any) and attaches
// it under newParent with the given oid/flags. If the move crosses tree
// roots, every descendant's cached RootHelper pointer is updated too.
func (o *Object) Adopt(newParent *Object, oid Oid, flags handle.Flags) {
	o.detachFromParent()

	h := o.handle()
	h.Oid = int32(oid)
	h.Flags = flags

	o.attachUnder(newParent)

	if o.root != newParent.root {
		o.reRoot(newParent.root)
	}
}

func (o *Object) reRoot(newRoot *RootHelper) {
	o.root = newRoot
	o.ForEach(AllOid, func(c *Object) bool {
		c.reRoot(newRoot)
		return true
	})
}

// ForEach walks the immediate children matching filter, depth-zero (not
// recursive); used internally by reRoot and by ChildCount.
func (o *Object) ForEach(filter Oid, fn func(*Object) bool) {
	for c := o.First(filter); c != nil; c = c.Next(filter) {
		if !fn(c) {
			return
		}
	}
}

// matches reports whether a handle satisfies the traversal filter: CHILD
// skips attachments, ALL accepts everything, any other value is an exact
// oid match.
func matches(h *handle.Handle, filter Oid) bool {
	switch filter {
	case AllOid:
		return true
	case ChildOid:
		return h.Flags&handle.FlagAttached == 0
	default:
		return Oid(h.Oid) == filter
	}
}

func (o *Object) ownHandle() *handle.Handle { return o.handle() }

// First returns the first (in oid order, insertion order within ties)
// child matching filter, or nil.
func (o *Object) First(filter Oid) *Object {
	h := o.ownHandle()
	return o.firstFrom(h.FirstChild, filter)
}

func (o *Object) firstFrom(root int32, filter Oid) *Object {
	x := root
	t := o.rb()
	// Leftmost node overall; then advance via successor until it matches.
	if x == handle.NoOix {
		return nil
	}
	x = t.minimum(x)
	for x != handle.NoOix {
		h := t.h(x)
		if matches(h, filter) {
			return h.Owner.(*Object)
		}
		x = inorderSuccessor(t, x)
	}
	return nil
}

// Last returns the last child matching filter, or nil.
func (o *Object) Last(filter Oid) *Object {
	h := o.ownHandle()
	t := o.rb()
	x := h.FirstChild
	if x == handle.NoOix {
		return nil
	}
	x = maximum(t, x)
	for x != handle.NoOix {
		hh := t.h(x)
		if matches(hh, filter) {
			return hh.Owner.(*Object)
		}
		x = inorderPredecessor(t, x)
	}
	return nil
}

// Next returns the next sibling matching filter after o, or nil.
func (o *Object) Next(filter Oid) *Object {
	t := o.rb()
	x := inorderSuccessor(t, o.oix)
	for x != handle.NoOix {
		h := t.h(x)
		if matches(h, filter) {
			return h.Owner.(*Object)
		}
		x = inorderSuccessor(t, x)
	}
	return nil
}

// Prev returns the previous sibling matching filter before o, or nil.
func (o *Object) Prev(filter Oid) *Object {
	t := o.rb()
	x := inorderPredecessor(t, o.oix)
	for x != handle.NoOix {
		h := t.h(x)
		if matches(h, filter) {
			return h.Owner.(*Object)
		}
		x = inorderPredecessor(t, x)
	}
	return nil
}

func maximum(t *rbtree, x int32) int32 {
	for {
		xh := t.h(x)
		if xh.RBRight == handle.NoOix {
			return x
		}
		x = xh.RBRight
	}
}

func inorderSuccessor(t *rbtree, x int32) int32 {
	xh := t.h(x)
	if xh.RBRight != handle.NoOix {
		return t.minimum(xh.RBRight)
	}
	y := xh.RBParent
	for y != handle.NoOix && x == t.h(y).RBRight {
		x = y
		y = t.h(y).RBParent
	}
	return y
}

func inorderPredecessor(t *rbtree, x int32) int32 {
	xh := t.h(x)
	if xh.RBLeft != handle.NoOix {
		return maximum(t, xh.RBLeft)
	}
	y := xh.RBParent
	for y != handle.NoOix && x == t.h(y).RBLeft {
		x = y
		y = t.h(y).RBParent
	}
	return y
}

// ChildCount counts children matching filter by full traversal (the tree
// keeps no running count, mirroring the source, which also walks).
func (o *Object) ChildCount(filter Oid) int {
	n := 0
	o.ForEach(filter, func(*Object) bool {
		n++
		return true
	})
	return n
}

// DeleteChildren frees every child depth-first. Nodes are freed directly
// rather than through the red-black delete, so no rebalancing work is
// done for nodes that are about to disappear entirely.
func (o *Object) DeleteChildren() {
	h := o.ownHandle()
	deleteSubtree(o.tbl, o.root, h.FirstChild)
	h.FirstChild = handle.NoOix
}

func deleteSubtree(tbl *handle.Table, root *RootHelper, x int32) {
	if x == handle.NoOix {
		return
	}
	h := tbl.Lookup(x)
	deleteSubtree(tbl, root, h.RBLeft)
	deleteSubtree(tbl, root, h.RBRight)

	obj := h.Owner.(*Object)
	deleteSubtree(tbl, root, h.FirstChild) // this object's own children
	root.free.Give(x)
	h.Owner = nil
	_ = obj
}

// Destroy detaches o from its parent (if any), recursively frees every
// descendant, and releases its own handle. Do not use o afterwards.
func (o *Object) Destroy() {
	o.DeleteChildren()
	o.detachFromParent()
	root := o.root
	oix := o.oix
	h := o.handle()
	h.Owner = nil
	root.free.Give(oix)
}
