// Package name implements the hierarchical named-lookup subsystem: names
// are variables attached as children of the object they name, and
// namespaces are red-black ordered multimaps from name-variable to
// object, scoped thread-local, process-global, or explicit.
package name

import (
	"strings"

	"github.com/nestybox/eobjects-go/estatus"
	"github.com/nestybox/eobjects-go/handle"
	"github.com/nestybox/eobjects-go/object"
	"github.com/nestybox/eobjects-go/variable"
)

// Type tags which scope a Name resolves its namespace against.
type Type int

const (
	ScopeParent Type = iota
	ScopeProcess
	ScopeThread
	ScopeThis
	ScopeExplicit
)

// Flags for AddName.
type Flags uint8

const (
	NoMap Flags = 1 << iota // create the name but do not map it into any namespace
)

// Name is the payload object.New attaches under object.NameOid: an
// attachment child of the object it names, carrying its value and
// namespace-tree linkage.
type Name struct {
	Owner *object.Object // the object this name names
	Value variable.Variable
	Scope Type
	NSID  string // explicit namespace id, only meaningful when Scope==ScopeExplicit

	ns *Namespace // non-nil once mapped

	left, right, parent *Name
	red                 bool
}

// Namespace returns the namespace this name is currently mapped into, or
// nil if detached.
func (n *Name) Namespace() *Namespace { return n.ns }

// stripScopePrefix interprets a name string's own prefix, which overrides
// whatever nsID/scope the caller passed in: leading "//" maps
// to process scope, leading "/" to thread scope, "./" to this, "../" to
// parent.
func stripScopePrefix(s string) (string, Type, bool) {
	switch {
	case strings.HasPrefix(s, "//"):
		return s[2:], ScopeProcess, true
	case strings.HasPrefix(s, "/"):
		return s[1:], ScopeThread, true
	case strings.HasPrefix(s, "./"):
		return s[2:], ScopeThis, true
	case strings.HasPrefix(s, "../"):
		return s[3:], ScopeParent, true
	default:
		return s, 0, false
	}
}

// AddName creates an attached NAME child of owner holding value, resolves
// its namespace per the lookup table for scope/nsID, and maps it unless
// NoMap is set.
func AddName(root *object.RootHelper, owner *object.Object, value string, scope Type, nsID string, flags Flags, proc ProcessNamespace) (*Name, error) {
	stripped, overrideScope, overridden := stripScopePrefix(value)
	if overridden {
		value = stripped
		scope = overrideScope
		nsID = ""
	}

	child, err := object.New(root, owner, owner.ClassID(), object.NameOid, handle.FlagAttached)
	if err != nil {
		return nil, err
	}

	nm := &Name{Owner: owner, Scope: scope, NSID: nsID}
	nm.Value.SetString(value, 0)
	child.SetPayload(nm)

	if flags&NoMap != 0 {
		return nm, nil
	}

	ns, err := Resolve(owner, scope, nsID, proc)
	if err != nil {
		return nm, err
	}
	if err := ns.mapName(nm); err != nil {
		return nm, err
	}
	return nm, nil
}

// Detach removes the name from its namespace, if mapped. Safe to call on
// an already-detached name.
func (n *Name) Detach() {
	if n.ns == nil {
		return
	}
	n.ns.unmapName(n)
}

// ProcessNamespace is the minimal view of the process-global namespace
// that package name needs; package process implements it, avoiding a
// name<->process import cycle.
type ProcessNamespace interface {
	Namespace() *Namespace
}

// Resolve finds the namespace a name should map into, given a scope and
// (for ScopeExplicit) an id to match while walking ancestors. proc
// supplies the process-global namespace singleton.
func Resolve(from *object.Object, scope Type, nsID string, proc ProcessNamespace) (*Namespace, error) {
	switch scope {
	case ScopeProcess:
		return proc.Namespace(), nil

	case ScopeThread:
		root := treeRoot(from)
		if ns := attachedNamespace(root); ns != nil {
			return ns, nil
		}
		return nil, estatus.FailedPrecondition("no thread-local namespace attached at tree root")

	case ScopeThis:
		if ns := attachedNamespace(from); ns != nil {
			return ns, nil
		}
		return nil, estatus.FailedPrecondition("object has no attached namespace")

	case ScopeParent:
		for p := from.Parent(); p != nil; p = p.Parent() {
			if ns := attachedNamespace(p); ns != nil {
				return ns, nil
			}
		}
		return nil, estatus.FailedPrecondition("no ancestor namespace found")

	case ScopeExplicit:
		for o := from; o != nil; o = o.Parent() {
			if ns := attachedNamespace(o); ns != nil && ns.ExplicitID == nsID {
				return ns, nil
			}
		}
		return nil, estatus.FailedPrecondition("no ancestor namespace with id %q", nsID)

	default:
		return nil, estatus.InvalidArgument("unknown namespace scope %d", scope)
	}
}

func treeRoot(o *object.Object) *object.Object {
	for p := o.Parent(); p != nil; p = p.Parent() {
		o = p
	}
	return o
}

// attachedNamespace returns the Namespace attached directly to obj, if
// any.
func attachedNamespace(obj *object.Object) *Namespace {
	c := obj.First(object.NamespaceOid)
	if c == nil {
		return nil
	}
	ns, _ := c.Payload().(*Namespace)
	return ns
}
