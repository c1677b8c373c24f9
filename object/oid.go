package object

// Oid is a child-local identifier within a parent: a signed integer that
// may repeat (ties are permitted and ordered by insertion). A handful of
// values are reserved by the framework itself.
type Oid int32

const (
	ItemOid      Oid = 0  // generic list member, the default oid
	RitemOid     Oid = -1 // generic child that may also be a tree root
	NameOid      Oid = -2 // attached name
	NamespaceOid Oid = -3 // attached namespace
	BindingsOid  Oid = -4 // container holding property bindings
	PropertiesOid Oid = -5 // value store for non-default property values
	ContentOid   Oid = -6 // envelope payload
	ContextOid   Oid = -7 // envelope context
	RootHelperOid Oid = -8 // per-tree root bookkeeping object
	InternalOid  Oid = -9

	// Pseudo-oids: valid only as traversal filters, never as a real child's Oid.
	ChildOid Oid = -100 // matches every non-attachment child
	AllOid   Oid = -101 // matches every child, attachments included
)
