// Package handle implements the process-wide handle table: a dense,
// append-only array of fixed-size blocks that hands out the (oix, ucnt)
// identity pairs objects use to name themselves across threads.
package handle

// Flags holds the bit-level attributes carried by every handle: whether it
// is attached, namespace-bearing, excluded from cloning/serialization, its
// red-black color, and five bits reserved for subclass use.
type Flags uint16

const (
	FlagAttached Flags = 1 << iota
	FlagNamespace
	FlagNotCloneable
	FlagNotSerializable
	FlagRed // 1 = red, 0 = black
	FlagCust1
	FlagCust2
	FlagCust3
	FlagCust4
	FlagCust5
)

// NoOix marks the absence of a handle reference in a tree/free-list link.
const NoOix int32 = -1

// ID is a handle's external identity: a stable table index plus the
// generation counter that invalidates stale references after a free.
type ID struct {
	Oix  int32
	Ucnt uint32
}

// Valid reports whether id addresses an allocated slot (oix >= 0).
func (id ID) Valid() bool { return id.Oix >= 0 }

// Handle is both a handle-table entry and a red-black tree node. Oix/Ucnt
// are this handle's own identity. ObjectParent/FirstChild describe the
// *object* tree (component B): ObjectParent is the owning object, and
// FirstChild is the root oix of this handle's own object's child index.
// RBParent/RBLeft/RBRight are the internal red-black pointers used only to
// keep that child index balanced and ordered by Oid among siblings —
// distinct from ObjectParent, which never changes under rotation.
type Handle struct {
	Oix  int32
	Ucnt uint32

	Oid   int32
	Flags Flags

	ObjectParent int32
	FirstChild   int32

	RBParent int32
	RBLeft   int32
	RBRight  int32

	// Owner is the live object attached to this handle, or nil when the
	// handle is free. Declared as interface{} to avoid a handle<->object
	// import cycle; package object stores *object.Object here.
	Owner interface{}

	next int32 // free-list link, valid only while the handle is unused
}

func (h *Handle) free() bool { return h.Owner == nil }

// Red reports the red-black color bit.
func (h *Handle) Red() bool { return h.Flags&FlagRed != 0 }

// SetRed sets the red-black color bit.
func (h *Handle) SetRed(red bool) {
	if red {
		h.Flags |= FlagRed
	} else {
		h.Flags &^= FlagRed
	}
}
