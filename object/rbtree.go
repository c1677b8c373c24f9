package object

import "github.com/nestybox/eobjects-go/handle"

// rbtree implements the textbook red-black insert/delete over handle.Handle
// nodes addressed by oix, keyed by Handle.Oid. Every owning object's
// children live in exactly one such tree, rooted at the owner's
// Handle.FirstChild. Ties (equal Oid) route right on insert, which keeps
// a run of same-oid siblings in insertion order as long as they are
// inserted consecutively; the tree provides no ordering by any
// other key.
//
// A single process-wide handle.Table backs every tree; the root pointer
// passed to each operation is always one owning object's FirstChild slot,
// never the table as a whole.
type rbtree struct {
	tbl *handle.Table
}

func (t *rbtree) h(oix int32) *handle.Handle {
	if oix == handle.NoOix {
		return nil
	}
	return t.tbl.Lookup(oix)
}

func (t *rbtree) isRed(oix int32) bool {
	h := t.h(oix)
	return h != nil && h.Red()
}

func (t *rbtree) setRed(oix int32, red bool) {
	if h := t.h(oix); h != nil {
		h.SetRed(red)
	}
}

// rotateLeft performs a standard left rotation around x, fixing up parent
// links, and stores the new subtree top in *root when x was the tree root.
func (t *rbtree) rotateLeft(root *int32, x int32) {
	xh := t.h(x)
	y := xh.RBRight
	yh := t.h(y)

	xh.RBRight = yh.RBLeft
	if yh.RBLeft != handle.NoOix {
		t.h(yh.RBLeft).RBParent = x
	}
	yh.RBParent = xh.RBParent
	if xh.RBParent == handle.NoOix {
		*root = y
	} else {
		ph := t.h(xh.RBParent)
		if ph.RBLeft == x {
			ph.RBLeft = y
		} else {
			ph.RBRight = y
		}
	}
	yh.RBLeft = x
	xh.RBParent = y
}

func (t *rbtree) rotateRight(root *int32, x int32) {
	xh := t.h(x)
	y := xh.RBLeft
	yh := t.h(y)

	xh.RBLeft = yh.RBRight
	if yh.RBRight != handle.NoOix {
		t.h(yh.RBRight).RBParent = x
	}
	yh.RBParent = xh.RBParent
	if xh.RBParent == handle.NoOix {
		*root = y
	} else {
		ph := t.h(xh.RBParent)
		if ph.RBLeft == x {
			ph.RBLeft = y
		} else {
			ph.RBRight = y
		}
	}
	yh.RBRight = x
	xh.RBParent = y
}

// Insert places nodeOix (already carrying its Oid) into the tree rooted at
// *root, rebalancing afterwards.
func (t *rbtree) Insert(root *int32, nodeOix int32) {
	nh := t.h(nodeOix)
	nh.RBLeft = handle.NoOix
	nh.RBRight = handle.NoOix
	nh.RBParent = handle.NoOix
	nh.SetRed(true)

	if *root == handle.NoOix {
		*root = nodeOix
		nh.SetRed(false)
		return
	}

	cur := *root
	var parent int32
	for cur != handle.NoOix {
		parent = cur
		ch := t.h(cur)
		if nh.Oid < ch.Oid {
			cur = ch.RBLeft
		} else {
			// nh.Oid > ch.Oid, or equal (ties route right).
			cur = ch.RBRight
		}
	}
	nh.RBParent = parent
	ph := t.h(parent)
	if nh.Oid < ph.Oid {
		ph.RBLeft = nodeOix
	} else {
		ph.RBRight = nodeOix
	}

	t.insertFixup(root, nodeOix)
}

func (t *rbtree) insertFixup(root *int32, z int32) {
	for t.isRed(t.h(z).RBParent) {
		zh := t.h(z)
		p := zh.RBParent
		ph := t.h(p)
		gp := ph.RBParent
		gph := t.h(gp)

		if p == gph.RBLeft {
			u := gph.RBRight
			if t.isRed(u) {
				t.setRed(p, false)
				t.setRed(u, false)
				t.setRed(gp, true)
				z = gp
				continue
			}
			if z == ph.RBRight {
				z = p
				t.rotateLeft(root, z)
				zh = t.h(z)
				p = zh.RBParent
				ph = t.h(p)
				gp = ph.RBParent
				gph = t.h(gp)
			}
			t.setRed(p, false)
			t.setRed(gp, true)
			t.rotateRight(root, gp)
		} else {
			u := gph.RBLeft
			if t.isRed(u) {
				t.setRed(p, false)
				t.setRed(u, false)
				t.setRed(gp, true)
				z = gp
				continue
			}
			if z == ph.RBLeft {
				z = p
				t.rotateRight(root, z)
				zh = t.h(z)
				p = zh.RBParent
				ph = t.h(p)
				gp = ph.RBParent
				gph = t.h(gp)
			}
			t.setRed(p, false)
			t.setRed(gp, true)
			t.rotateLeft(root, gp)
		}
	}
	t.setRed(*root, false)
}

func (t *rbtree) minimum(x int32) int32 {
	for {
		xh := t.h(x)
		if xh.RBLeft == handle.NoOix {
			return x
		}
		x = xh.RBLeft
	}
}

func (t *rbtree) transplant(root *int32, u, v int32) {
	uh := t.h(u)
	if uh.RBParent == handle.NoOix {
		*root = v
	} else {
		ph := t.h(uh.RBParent)
		if ph.RBLeft == u {
			ph.RBLeft = v
		} else {
			ph.RBRight = v
		}
	}
	if v != handle.NoOix {
		t.h(v).RBParent = uh.RBParent
	}
}

// Delete removes nodeOix from the tree rooted at *root and rebalances,
// unless fast is true, in which case rebalancing is skipped entirely (used
// when a whole subtree is being torn down depth-first and no further
// lookups through this tree will ever happen).
func (t *rbtree) Delete(root *int32, nodeOix int32, fast bool) {
	if fast {
		if *root == nodeOix {
			*root = handle.NoOix
		}
		return
	}

	z := nodeOix
	zh := t.h(z)
	yOrigRed := t.isRed(z)
	var x, xParent int32

	if zh.RBLeft == handle.NoOix {
		x = zh.RBRight
		xParent = zh.RBParent
		t.transplant(root, z, zh.RBRight)
	} else if zh.RBRight == handle.NoOix {
		x = zh.RBLeft
		xParent = zh.RBParent
		t.transplant(root, z, zh.RBLeft)
	} else {
		y := t.minimum(zh.RBRight)
		yh := t.h(y)
		yOrigRed = t.isRed(y)
		x = yh.RBRight

		if yh.RBParent == z {
			xParent = y
		} else {
			xParent = yh.RBParent
			t.transplant(root, y, yh.RBRight)
			yh.RBRight = zh.RBRight
			t.h(yh.RBRight).RBParent = y
		}
		t.transplant(root, z, y)
		yh.RBLeft = zh.RBLeft
		t.h(yh.RBLeft).RBParent = y
		t.setRed(y, t.isRed(z))
	}

	if !yOrigRed {
		t.deleteFixup(root, x, xParent)
	}
}

// deleteFixup rebalances after a black node's removal. x may be NoOix (a
// "nil" leaf), in which case xParent locates where it would have been.
func (t *rbtree) deleteFixup(root *int32, x, xParent int32) {
	for x != *root && !t.isRed(x) {
		if xParent == handle.NoOix {
			break
		}
		ph := t.h(xParent)
		if x == ph.RBLeft {
			w := ph.RBRight
			if t.isRed(w) {
				t.setRed(w, false)
				t.setRed(xParent, true)
				t.rotateLeft(root, xParent)
				ph = t.h(xParent)
				w = ph.RBRight
			}
			wh := t.h(w)
			if !t.isRed(wh.RBLeft) && !t.isRed(wh.RBRight) {
				t.setRed(w, true)
				x = xParent
				xParent = t.h(x).RBParent
				continue
			}
			if !t.isRed(wh.RBRight) {
				t.setRed(wh.RBLeft, false)
				t.setRed(w, true)
				t.rotateRight(root, w)
				ph = t.h(xParent)
				w = ph.RBRight
				wh = t.h(w)
			}
			t.setRed(w, t.isRed(xParent))
			t.setRed(xParent, false)
			t.setRed(wh.RBRight, false)
			t.rotateLeft(root, xParent)
			x = *root
			xParent = handle.NoOix
		} else {
			w := ph.RBLeft
			if t.isRed(w) {
				t.setRed(w, false)
				t.setRed(xParent, true)
				t.rotateRight(root, xParent)
				ph = t.h(xParent)
				w = ph.RBLeft
			}
			wh := t.h(w)
			if !t.isRed(wh.RBRight) && !t.isRed(wh.RBLeft) {
				t.setRed(w, true)
				x = xParent
				xParent = t.h(x).RBParent
				continue
			}
			if !t.isRed(wh.RBLeft) {
				t.setRed(wh.RBRight, false)
				t.setRed(w, true)
				t.rotateLeft(root, w)
				ph = t.h(xParent)
				w = ph.RBLeft
				wh = t.h(w)
			}
			t.setRed(w, t.isRed(xParent))
			t.setRed(xParent, false)
			t.setRed(wh.RBLeft, false)
			t.rotateRight(root, xParent)
			x = *root
			xParent = handle.NoOix
		}
	}
	t.setRed(x, false)
}
