package name

import (
	"github.com/nestybox/eobjects-go/estatus"
	"github.com/nestybox/eobjects-go/handle"
	"github.com/nestybox/eobjects-go/object"
	"github.com/nestybox/eobjects-go/variable"
)

// Namespace is a red-black ordered multimap of Name, attached to an
// object under object.NamespaceOid. Multiple names comparing equal under
// variable.Compare are permitted;
// ties route right on insert, which keeps consecutively-added same-value
// names in insertion order.
type Namespace struct {
	Object     *object.Object
	ExplicitID string

	root *Name
}

// NewNamespace attaches a fresh, empty namespace under owner.
func NewNamespace(root *object.RootHelper, owner *object.Object, explicitID string) (*Namespace, error) {
	child, err := object.New(root, owner, owner.ClassID(), object.NamespaceOid, handle.FlagAttached)
	if err != nil {
		return nil, err
	}
	ns := &Namespace{Object: child, ExplicitID: explicitID}
	child.SetPayload(ns)
	return ns, nil
}

func (ns *Namespace) mapName(n *Name) error {
	if n.ns != nil {
		return estatus.AlreadyExists("name %q already mapped", valueString(n))
	}
	n.ns = ns
	n.left, n.right, n.parent = nil, nil, nil
	n.red = true

	if ns.root == nil {
		ns.root = n
		n.red = false
		return nil
	}

	cur := ns.root
	var parent *Name
	for cur != nil {
		parent = cur
		if variable.Compare(&n.Value, &cur.Value) < 0 {
			cur = cur.left
		} else {
			cur = cur.right
		}
	}
	n.parent = parent
	if variable.Compare(&n.Value, &parent.Value) < 0 {
		parent.left = n
	} else {
		parent.right = n
	}
	ns.insertFixup(n)
	return nil
}

func (ns *Namespace) unmapName(n *Name) {
	if n.ns != ns {
		return
	}
	ns.delete(n)
	n.ns = nil
	n.left, n.right, n.parent = nil, nil, nil
}

func valueString(n *Name) string {
	s, _ := n.Value.GetString()
	return s
}

// Lookup returns the first Name (in ascending order) whose value compares
// equal to value, or nil.
func (ns *Namespace) Lookup(value string) *Name {
	var v variable.Variable
	v.SetString(value, 0)

	cur := ns.root
	var found *Name
	for cur != nil {
		c := variable.Compare(&v, &cur.Value)
		switch {
		case c < 0:
			cur = cur.left
		case c > 0:
			cur = cur.right
		default:
			found = cur
			cur = cur.left // keep walking left for the first match in order
		}
	}
	return found
}

// First returns the leftmost (smallest-valued) name in the namespace.
func (ns *Namespace) First() *Name {
	if ns.root == nil {
		return nil
	}
	return minimum(ns.root)
}

func minimum(n *Name) *Name {
	for n.left != nil {
		n = n.left
	}
	return n
}

func maximum(n *Name) *Name {
	for n.right != nil {
		n = n.right
	}
	return n
}

// Next returns the in-order successor of n within its namespace. If
// sameValue is true, it stops (returns nil) as soon as the successor's
// value differs from n's, which lets callers enumerate exactly the run
// of names sharing one value.
func (n *Name) Next(sameValue bool) *Name {
	succ := successor(n)
	if succ == nil {
		return nil
	}
	if sameValue && variable.Compare(&succ.Value, &n.Value) != 0 {
		return nil
	}
	return succ
}

func successor(n *Name) *Name {
	if n.right != nil {
		return minimum(n.right)
	}
	p := n.parent
	for p != nil && n == p.right {
		n = p
		p = p.parent
	}
	return p
}

func predecessor(n *Name) *Name {
	if n.left != nil {
		return maximum(n.left)
	}
	p := n.parent
	for p != nil && n == p.left {
		n = p
		p = p.parent
	}
	return p
}

func isRed(n *Name) bool { return n != nil && n.red }

func (ns *Namespace) rotateLeft(x *Name) {
	y := x.right
	x.right = y.left
	if y.left != nil {
		y.left.parent = x
	}
	y.parent = x.parent
	if x.parent == nil {
		ns.root = y
	} else if x == x.parent.left {
		x.parent.left = y
	} else {
		x.parent.right = y
	}
	y.left = x
	x.parent = y
}

func (ns *Namespace) rotateRight(x *Name) {
	y := x.left
	x.left = y.right
	if y.right != nil {
		y.right.parent = x
	}
	y.parent = x.parent
	if x.parent == nil {
		ns.root = y
	} else if x == x.parent.right {
		x.parent.right = y
	} else {
		x.parent.left = y
	}
	y.right = x
	x.parent = y
}

func (ns *Namespace) insertFixup(z *Name) {
	for isRed(z.parent) {
		p := z.parent
		gp := p.parent
		if p == gp.left {
			u := gp.right
			if isRed(u) {
				p.red, u.red, gp.red = false, false, true
				z = gp
				continue
			}
			if z == p.right {
				z = p
				ns.rotateLeft(z)
				p = z.parent
				gp = p.parent
			}
			p.red = false
			gp.red = true
			ns.rotateRight(gp)
		} else {
			u := gp.left
			if isRed(u) {
				p.red, u.red, gp.red = false, false, true
				z = gp
				continue
			}
			if z == p.left {
				z = p
				ns.rotateRight(z)
				p = z.parent
				gp = p.parent
			}
			p.red = false
			gp.red = true
			ns.rotateLeft(gp)
		}
	}
	ns.root.red = false
}

func (ns *Namespace) transplant(u, v *Name) {
	if u.parent == nil {
		ns.root = v
	} else if u == u.parent.left {
		u.parent.left = v
	} else {
		u.parent.right = v
	}
	if v != nil {
		v.parent = u.parent
	}
}

func (ns *Namespace) delete(z *Name) {
	yOrigRed := isRed(z)
	var x *Name
	var xParent *Name

	switch {
	case z.left == nil:
		x = z.right
		xParent = z.parent
		ns.transplant(z, z.right)
	case z.right == nil:
		x = z.left
		xParent = z.parent
		ns.transplant(z, z.left)
	default:
		y := minimum(z.right)
		yOrigRed = isRed(y)
		x = y.right
		if y.parent == z {
			xParent = y
		} else {
			xParent = y.parent
			ns.transplant(y, y.right)
			y.right = z.right
			y.right.parent = y
		}
		ns.transplant(z, y)
		y.left = z.left
		y.left.parent = y
		y.red = z.red
	}

	if !yOrigRed {
		ns.deleteFixup(x, xParent)
	}
}

func (ns *Namespace) deleteFixup(x, xParent *Name) {
	for x != ns.root && !isRed(x) {
		if xParent == nil {
			break
		}
		if x == xParent.left {
			w := xParent.right
			if isRed(w) {
				w.red = false
				xParent.red = true
				ns.rotateLeft(xParent)
				w = xParent.right
			}
			if !isRed(w.left) && !isRed(w.right) {
				w.red = true
				x = xParent
				xParent = x.parent
				continue
			}
			if !isRed(w.right) {
				if w.left != nil {
					w.left.red = false
				}
				w.red = true
				ns.rotateRight(w)
				w = xParent.right
			}
			w.red = xParent.red
			xParent.red = false
			if w.right != nil {
				w.right.red = false
			}
			ns.rotateLeft(xParent)
			x = ns.root
			xParent = nil
		} else {
			w := xParent.left
			if isRed(w) {
				w.red = false
				xParent.red = true
				ns.rotateRight(xParent)
				w = xParent.left
			}
			if !isRed(w.right) && !isRed(w.left) {
				w.red = true
				x = xParent
				xParent = x.parent
				continue
			}
			if !isRed(w.left) {
				if w.right != nil {
					w.right.red = false
				}
				w.red = true
				ns.rotateLeft(w)
				w = xParent.left
			}
			w.red = xParent.red
			xParent.red = false
			if w.left != nil {
				w.left.red = false
			}
			ns.rotateRight(xParent)
			x = ns.root
			xParent = nil
		}
	}
	if x != nil {
		x.red = false
	}
}
