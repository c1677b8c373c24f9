// Package variable implements the framework's dynamically typed value:
// a tagged union over {undefined, long, double, string, object, pointer}
// carrying a digits-after-decimal-point tag that is itself part of the
// value's identity for serialization purposes.
package variable

import (
	"fmt"
	"strconv"
	"strings"
)

// Type tags the kind of value a Variable currently holds.
type Type uint8

const (
	Undefined Type = iota
	Long
	Double
	String
	Object
	Pointer
)

// smallBufSize records evariable.h's E_VARIABLE_SMALL_STR_SZ. Variable
// does not use it: every string is held as an ordinary Go string, with
// no inline buffer.
const smallBufSize = 15

// Variable is deliberately a value type with no exported fields: callers
// always go through Set*/Get*, so internal representation (small-buffer
// vs heap string, cached stringification) stays free to change.
type Variable struct {
	typ    Type
	digs   uint8 // digits after decimal point, double<->string conversion only
	long   int64
	dbl    float64
	str    string // used for both String values and the cached stringified form
	strOK  bool   // true once `str` holds a valid cached stringification
	obj    interface{}
	ptr    interface{}
}

// New returns an Undefined variable.
func New() *Variable { return &Variable{} }

// Type reports the current tag.
func (v *Variable) Type() Type { return v.typ }

// Digits reports the digits-after-decimal-point tag set by SetDouble. Only
// meaningful when Type() is Double.
func (v *Variable) Digits() int { return int(v.digs) }

// Clear resets the variable to Undefined.
func (v *Variable) Clear() {
	*v = Variable{}
}

// invalidate drops any cached stringification; called by every setter.
func (v *Variable) invalidate() { v.strOK = false }

// SetLong sets an integer value.
func (v *Variable) SetLong(n int64) {
	v.typ = Long
	v.long = n
	v.invalidate()
}

// SetDouble sets a floating value with the given digits-after-point.
// Digits is part of the value's identity: two Variables holding the same
// float but different `digits` are NOT equal under Compare's string path
// once stringified, though they do compare equal numerically.
func (v *Variable) SetDouble(f float64, digits int) {
	v.typ = Double
	v.dbl = f
	if digits < 0 {
		digits = 0
	}
	v.digs = uint8(digits)
	v.invalidate()
}

// SetString stores s, truncated to maxChars if maxChars > 0.
func (v *Variable) SetString(s string, maxChars int) {
	if maxChars > 0 && len(s) > maxChars {
		s = s[:maxChars]
	}
	v.typ = String
	v.str = s
	v.strOK = true
	v.obj, v.ptr = nil, nil
}

// SetObject stores an object reference by identity.
func (v *Variable) SetObject(o interface{}) {
	v.typ = Object
	v.obj = o
	v.invalidate()
}

// SetPointer stores an opaque pointer by identity.
func (v *Variable) SetPointer(p interface{}) {
	v.typ = Pointer
	v.ptr = p
	v.invalidate()
}

// SetVariable copies (or, if move is true, transfers) src's value into v.
func (v *Variable) SetVariable(src *Variable, move bool) {
	*v = *src
	if move {
		src.Clear()
	}
}

// Allocate returns a writable buffer of n bytes, switching the variable to
// String type; used by callers building up a string in place.
func (v *Variable) Allocate(n int) []byte {
	buf := make([]byte, n)
	v.typ = String
	v.str = string(buf)
	v.strOK = true
	return buf
}

// GetLong converts the current value to an integer.
func (v *Variable) GetLong() int64 {
	switch v.typ {
	case Long:
		return v.long
	case Double:
		return int64(v.dbl)
	case String:
		n, ok := parseLong(v.str)
		if ok {
			return n
		}
		return 0
	default:
		return 0
	}
}

// GetDouble converts the current value to a float64.
func (v *Variable) GetDouble() float64 {
	switch v.typ {
	case Long:
		return float64(v.long)
	case Double:
		return v.dbl
	case String:
		f, ok := parseDouble(v.str)
		if ok {
			return f
		}
		return 0
	default:
		return 0
	}
}

// GetString returns the value stringified, along with its length. The
// pointer backing the returned string remains valid until the variable
// next mutates (Go strings are immutable, so this is automatic) — GetString
// never returns an empty-but-invalid result; Undefined stringifies to "".
func (v *Variable) GetString() (string, int) {
	if v.typ == String {
		return v.str, len(v.str)
	}
	if v.strOK {
		return v.str, len(v.str)
	}
	s := v.stringify()
	v.str = s
	v.strOK = true
	return s, len(s)
}

func (v *Variable) stringify() string {
	switch v.typ {
	case Undefined:
		return ""
	case Long:
		return strconv.FormatInt(v.long, 10)
	case Double:
		return strconv.FormatFloat(v.dbl, 'f', int(v.digs), 64)
	case Object, Pointer:
		return ""
	default:
		return ""
	}
}

// GetObject returns the stored object reference, or nil if the variable is
// not of Object type.
func (v *Variable) GetObject() interface{} {
	if v.typ != Object {
		return nil
	}
	return v.obj
}

// GetPointer returns the stored pointer, or nil if the variable is not of
// Pointer type.
func (v *Variable) GetPointer() interface{} {
	if v.typ != Pointer {
		return nil
	}
	return v.ptr
}

// AppendString appends s to the current (stringified) value, switching the
// variable to String type.
func (v *Variable) AppendString(s string) {
	cur, _ := v.GetString()
	v.SetString(cur+s, 0)
}

// AppendVariable appends other's stringified value to v.
func (v *Variable) AppendVariable(other *Variable) {
	s, _ := other.GetString()
	v.AppendString(s)
}

// parseLong parses a C-locale integer; autotype helper.
func parseLong(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// parseDouble parses a C-locale decimal (dot separator only, regardless of
// the host's locale); autotype helper.
func parseDouble(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// autotypeOf classifies s as it would end up after Autotype: Long if it
// parses as an integer, Double if it parses as a decimal, String otherwise.
func autotypeOf(s string) (Type, int64, float64) {
	if n, ok := parseLong(s); ok {
		return Long, n, 0
	}
	if f, ok := parseDouble(s); ok {
		return Double, 0, f
	}
	return String, 0, 0
}

// Autotype reclassifies a String variable as Long or Double when its
// content parses as a C-locale number. If modify is false, the variable is
// left untouched and only the would-be type is returned.
func (v *Variable) Autotype(modify bool) Type {
	if v.typ != String {
		return v.typ
	}
	t, n, f := autotypeOf(v.str)
	if !modify || t == String {
		return t
	}
	switch t {
	case Long:
		v.SetLong(n)
	case Double:
		v.SetDouble(f, 6)
	}
	return t
}

// isNumeric reports whether v is already Long/Double, or a String that
// autotypes to a number.
func isNumeric(v *Variable) (float64, bool) {
	switch v.typ {
	case Long:
		return float64(v.long), true
	case Double:
		return v.dbl, true
	case String:
		t, n, f := autotypeOf(v.str)
		switch t {
		case Long:
			return float64(n), true
		case Double:
			return f, true
		}
	}
	return 0, false
}

// Compare orders two variables: numeric comparison when both sides are
// numeric (or a string side autotypes to a number), otherwise lexicographic
// byte comparison; Undefined sorts before any defined value; Object/Pointer
// compare by identity only.
func Compare(a, b *Variable) int {
	if a.typ == Undefined && b.typ == Undefined {
		return 0
	}
	if a.typ == Undefined {
		return -1
	}
	if b.typ == Undefined {
		return 1
	}

	if a.typ == Object || b.typ == Object || a.typ == Pointer || b.typ == Pointer {
		return compareIdentity(a, b)
	}

	an, aNum := isNumeric(a)
	bn, bNum := isNumeric(b)
	if aNum && bNum {
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		default:
			return 0
		}
	}

	as, _ := a.GetString()
	bs, _ := b.GetString()
	return strings.Compare(as, bs)
}

func compareIdentity(a, b *Variable) int {
	if a.typ != b.typ {
		return int(a.typ) - int(b.typ)
	}
	var ai, bi interface{}
	if a.typ == Object {
		ai, bi = a.obj, b.obj
	} else {
		ai, bi = a.ptr, b.ptr
	}
	if ai == bi {
		return 0
	}
	// Identity-only ordering: any stable, total order works here since the
	// contract only promises identity comparison, not a meaningful
	// less-than. We order by pointer-ish fmt representation as a tiebreak
	// so the namespace tree (which requires a total order) stays valid.
	as := identityKey(ai)
	bs := identityKey(bi)
	return strings.Compare(as, bs)
}

func identityKey(v interface{}) string {
	return fmt.Sprintf("%p", v)
}
