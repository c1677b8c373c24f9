package variable

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetGetRoundTrip(t *testing.T) {
	v := New()
	v.SetLong(42)
	require.Equal(t, int64(42), v.GetLong())
	require.Equal(t, Long, v.Type())

	v.SetDouble(3.5, 2)
	require.Equal(t, 3.5, v.GetDouble())
	s, _ := v.GetString()
	require.Equal(t, "3.50", s)

	v.SetString("hello", 0)
	require.Equal(t, "hello", mustString(v))
}

func mustString(v *Variable) string {
	s, _ := v.GetString()
	return s
}

func TestAutotype(t *testing.T) {
	v := New()
	v.SetString("123", 0)
	require.Equal(t, Long, v.Autotype(true))
	require.Equal(t, int64(123), v.GetLong())

	v2 := New()
	v2.SetString("3.14", 0)
	require.Equal(t, Double, v2.Autotype(true))

	v3 := New()
	v3.SetString("not-a-number", 0)
	require.Equal(t, String, v3.Autotype(true))
}

func TestCompareNumericVsString(t *testing.T) {
	a := New()
	a.SetLong(5)
	b := New()
	b.SetString("10", 0)
	require.Equal(t, -1, Compare(a, b))

	c := New()
	c.SetString("abc", 0)
	d := New()
	d.SetString("abd", 0)
	require.Equal(t, -1, Compare(c, d))
}

func TestCompareUndefinedSortsFirst(t *testing.T) {
	u := New()
	v := New()
	v.SetLong(0)
	require.Equal(t, -1, Compare(u, v))
	require.Equal(t, 1, Compare(v, u))
	require.Equal(t, 0, Compare(u, New()))
}

func TestCompareIdentityForObjects(t *testing.T) {
	type obj struct{ n int }
	o1 := &obj{1}
	o2 := &obj{2}

	a := New()
	a.SetObject(o1)
	b := New()
	b.SetObject(o1)
	require.Equal(t, 0, Compare(a, b))

	c := New()
	c.SetObject(o2)
	require.NotEqual(t, 0, Compare(a, c))
}

func TestAppend(t *testing.T) {
	v := New()
	v.SetString("foo", 0)
	v.AppendString("bar")
	require.Equal(t, "foobar", mustString(v))
}

func TestSetVariableMove(t *testing.T) {
	src := New()
	src.SetLong(7)
	dst := New()
	dst.SetVariable(src, true)
	require.Equal(t, int64(7), dst.GetLong())
	require.Equal(t, Undefined, src.Type())
}
