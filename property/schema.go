// Package property implements the per-class property schema and the
// get/set/change-notification engine that keeps object state synchronized
// across the binding layer.
package property

import (
	"strings"
	"sync"

	iradix "github.com/hashicorp/go-immutable-radix"

	"github.com/nestybox/eobjects-go/estatus"
	"github.com/nestybox/eobjects-go/variable"
)

// Flags tag a property definition.
type Flags uint16

const (
	Persistent       Flags = 1 << iota // serialized across deserialize/serialize round-trips
	MetadataOnly                       // descriptive only, never set by application code
	Simple                             // the class stores the value itself, not the attached store
	SuppressOnChange                   // no on_property_change call when this property changes
	Submask                            // a "head.tail" sub-attribute of another property
)

// Def is one registered property: its number, name, flags, and default.
type Def struct {
	Nr      int32
	Name    string
	Flags   Flags
	Default variable.Variable

	// HeadNr is the property number this one is a sub-attribute of, set by
	// PropertysetDone when Flags&Submask != 0. -1 until resolved.
	HeadNr int32
}

// Schema is the process-wide, per-class-id property registry: one is
// built at startup via AddProperty/PropertysetDone, before any thread
// starts.
type Schema struct {
	mu      sync.RWMutex
	classID int32
	byNr    map[int32]*Def
	byName  *iradix.Tree
	done    bool
}

// NewSchema returns an empty schema for classID.
func NewSchema(classID int32) *Schema {
	return &Schema{
		classID: classID,
		byNr:    make(map[int32]*Def),
		byName:  iradix.New(),
	}
}

// AddProperty registers one property. It must be called before
// PropertysetDone finalizes the schema.
func (s *Schema) AddProperty(nr int32, name string, flags Flags, def variable.Variable) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return estatus.FailedPrecondition("schema for class %d already finalized", s.classID)
	}
	if _, exists := s.byNr[nr]; exists {
		return estatus.AlreadyExists("property %d already registered on class %d", nr, s.classID)
	}
	if _, ok := s.byName.Get([]byte(name)); ok {
		return estatus.AlreadyExists("property %q already registered on class %d", name, s.classID)
	}

	d := &Def{Nr: nr, Name: name, Flags: flags, Default: def, HeadNr: -1}
	s.byNr[nr] = d
	s.byName, _, _ = s.byName.Insert([]byte(name), nr)
	return nil
}

// PropertysetDone finalizes the schema: every Submask property's
// "head.tail" name is resolved to its head property's number. Resolution
// uses a radix tree of non-submask names, searched with LongestPrefix
// against the full submask name, the same way a filesystem path is matched
// to its nearest registered handler.
func (s *Schema) PropertysetDone() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return nil
	}

	heads := iradix.New()
	for _, d := range s.byNr {
		if d.Flags&Submask == 0 {
			heads, _, _ = heads.Insert([]byte(d.Name), d.Nr)
		}
	}

	for _, d := range s.byNr {
		if d.Flags&Submask == 0 {
			continue
		}
		if !strings.Contains(d.Name, ".") {
			return estatus.InvalidArgument("submask property %q has no head separator", d.Name)
		}
		_, nrVal, ok := heads.Root().LongestPrefix([]byte(d.Name))
		if !ok {
			return estatus.NotFound("submask property %q has no registered head", d.Name)
		}
		d.HeadNr = nrVal.(int32)
	}

	s.done = true
	return nil
}

// Lookup returns the definition for property nr.
func (s *Schema) Lookup(nr int32) (*Def, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.byNr[nr]
	return d, ok
}

// LookupByName returns the definition for the property registered under
// name; used by the binding layer (component J) to locate a local
// property by the remote-supplied property name on BIND.
func (s *Schema) LookupByName(name string) (*Def, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.byName.Get([]byte(name))
	if !ok {
		return nil, false
	}
	nr := v.(int32)
	d, ok := s.byNr[nr]
	return d, ok
}

// Each calls fn for every registered property, in no particular order.
func (s *Schema) Each(fn func(*Def)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.byNr {
		fn(d)
	}
}
