package name

import "github.com/nestybox/eobjects-go/object"

// UnmapSubtree detaches every NAME attachment found anywhere under obj
// (obj included) from its current namespace, without destroying the Name
// objects themselves. Callers must invoke this before moving a subtree
// across tree roots with object.Adopt, which performs no name remapping
// of its own — a name mapped by ScopeThread or ScopeProcess would
// otherwise keep pointing at a namespace the subtree no longer has
// access to.
func UnmapSubtree(obj *object.Object) {
	walkNames(obj, func(n *Name) { n.Detach() })
}

// MapSubtree re-resolves and re-maps every NAME attachment found anywhere
// under obj (obj included), called after Adopt has retargeted the
// subtree's RootHelper. Names are re-resolved from scratch rather than
// re-attached to their old Namespace, since ScopeThread/ScopeProcess/
// ScopeParent all depend on where the object now lives.
func MapSubtree(proc ProcessNamespace, obj *object.Object) error {
	var firstErr error
	walkNames(obj, func(n *Name) {
		if n.ns != nil {
			return
		}
		ns, err := Resolve(n.Owner, n.Scope, n.NSID, proc)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return
		}
		if err := ns.mapName(n); err != nil && firstErr == nil {
			firstErr = err
		}
	})
	return firstErr
}

// walkNames visits every NAME attachment in obj's subtree, obj included,
// depth-first.
func walkNames(obj *object.Object, fn func(*Name)) {
	if c := obj.First(object.NameOid); c != nil {
		for ; c != nil; c = c.Next(object.NameOid) {
			if n, ok := c.Payload().(*Name); ok {
				fn(n)
			}
		}
	}
	obj.ForEach(object.AllOid, func(child *object.Object) bool {
		if child.Oid() != object.NameOid {
			walkNames(child, fn)
		}
		return true
	})
}
