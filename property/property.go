package property

import (
	"github.com/sirupsen/logrus"

	"github.com/nestybox/eobjects-go/estatus"
	"github.com/nestybox/eobjects-go/handle"
	"github.com/nestybox/eobjects-go/object"
	"github.com/nestybox/eobjects-go/variable"
)

// Holder is implemented by an object's class-specific payload when the
// class has Simple properties: those store their value in the class
// itself rather than in the attached value store. A payload that implements no Simple
// properties may leave SimpleProperty/SetSimpleProperty unreachable and
// still satisfy set_property/get_property for its non-simple properties
// by passing a nil Holder.
type Holder interface {
	SimpleProperty(nr int32) (variable.Variable, bool)
	SetSimpleProperty(nr int32, v variable.Variable)
	OnPropertyChange(nr int32, val *variable.Variable, flags uint32)
}

// BindingForwarder is implemented by binding objects (component J)
// attached under an object's BindingsOid container. set_property forwards
// every change to each registered binding except the one identified as
// source, breaking the reentrancy loop a binding's own set_property call
// would otherwise create.
type BindingForwarder interface {
	ForwardPropertyChange(nr int32, val *variable.Variable, source interface{}, flags uint32)
}

// valueStore is the attached PropertiesOid payload: overrides for
// non-simple properties whose value differs from the schema default.
type valueStore struct {
	values map[int32]variable.Variable
}

func store(obj *object.Object) *valueStore {
	c := obj.First(object.PropertiesOid)
	if c == nil {
		return nil
	}
	vs, _ := c.Payload().(*valueStore)
	return vs
}

func storeForWrite(root *object.RootHelper, obj *object.Object) (*valueStore, error) {
	if vs := store(obj); vs != nil {
		return vs, nil
	}
	child, err := object.New(root, obj, obj.ClassID(), object.PropertiesOid, handle.FlagAttached)
	if err != nil {
		return nil, err
	}
	vs := &valueStore{values: make(map[int32]variable.Variable)}
	child.SetPayload(vs)
	return vs, nil
}

// SetProperty implements set_property: looks up the schema
// entry, skips a no-op set, calls the change hook unless suppressed,
// updates (or clears, if the value reverts to default) the stored
// override, and forwards the change to every binding but source.
func SetProperty(root *object.RootHelper, obj *object.Object, schema *Schema, holder Holder, nr int32, value variable.Variable, source interface{}, flags uint32) error {
	def, ok := schema.Lookup(nr)
	if !ok {
		logrus.Debugf("property: set_property on unknown property %d for class %d", nr, obj.ClassID())
		return estatus.Unimplemented("class %d has no property %d", obj.ClassID(), nr)
	}

	if def.Flags&Simple != 0 {
		if holder == nil {
			return estatus.Internal("property %d is simple but object has no holder", nr)
		}
		cur, _ := holder.SimpleProperty(nr)
		if variable.Compare(&cur, &value) == 0 {
			return nil
		}
		if def.Flags&SuppressOnChange == 0 {
			holder.OnPropertyChange(nr, &value, flags)
		}
		holder.SetSimpleProperty(nr, value)
	} else {
		vs, err := storeForWrite(root, obj)
		if err != nil {
			return err
		}
		if cur, existed := vs.values[nr]; existed {
			if variable.Compare(&cur, &value) == 0 {
				return nil
			}
		} else if variable.Compare(&def.Default, &value) == 0 {
			return nil
		}

		if def.Flags&SuppressOnChange == 0 && holder != nil {
			holder.OnPropertyChange(nr, &value, flags)
		}

		if variable.Compare(&value, &def.Default) == 0 {
			delete(vs.values, nr)
		} else {
			vs.values[nr] = value
		}
	}

	forwardToBindings(obj, nr, &value, source, flags)
	return nil
}

// GetProperty implements get_property: an override in the
// value store wins, then a Simple holder's own value, then the schema
// default.
func GetProperty(obj *object.Object, schema *Schema, holder Holder, nr int32) (variable.Variable, error) {
	def, ok := schema.Lookup(nr)
	if !ok {
		return variable.Variable{}, estatus.Unimplemented("class %d has no property %d", obj.ClassID(), nr)
	}

	if vs := store(obj); vs != nil {
		if v, ok := vs.values[nr]; ok {
			return v, nil
		}
	}
	if def.Flags&Simple != 0 && holder != nil {
		if v, ok := holder.SimpleProperty(nr); ok {
			return v, nil
		}
	}
	return def.Default, nil
}

// InitializeProperties implements initialize_properties:
// every non-simple, non-suppressed property gets one on_property_change
// call with its current value, so subclass state derived from properties
// starts consistent.
func InitializeProperties(obj *object.Object, schema *Schema, holder Holder, flags uint32) {
	if holder == nil {
		return
	}
	schema.Each(func(def *Def) {
		if def.Flags&Simple != 0 || def.Flags&SuppressOnChange != 0 {
			return
		}
		v, err := GetProperty(obj, schema, holder, def.Nr)
		if err != nil {
			return
		}
		holder.OnPropertyChange(def.Nr, &v, flags)
	})
}

func forwardToBindings(obj *object.Object, nr int32, val *variable.Variable, source interface{}, flags uint32) {
	container := obj.First(object.BindingsOid)
	if container == nil {
		return
	}
	container.ForEach(object.AllOid, func(b *object.Object) bool {
		payload := b.Payload()
		if source != nil && payload == source {
			return true
		}
		if fwd, ok := payload.(BindingForwarder); ok {
			fwd.ForwardPropertyChange(nr, val, source, flags)
		}
		return true
	})
}
