package property

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nestybox/eobjects-go/handle"
	"github.com/nestybox/eobjects-go/object"
	"github.com/nestybox/eobjects-go/variable"
)

const testClassID int32 = 7

func newFixture(t *testing.T) (*object.RootHelper, *object.Object) {
	t.Helper()
	tbl := handle.NewTable()
	root, rh, err := object.NewTree(tbl, testClassID, 4, 16, nil)
	require.NoError(t, err)
	return rh, root
}

func tempSchema(t *testing.T) *Schema {
	t.Helper()
	s := NewSchema(testClassID)
	var temp variable.Variable
	temp.SetDouble(20.0, 1)
	require.NoError(t, s.AddProperty(1, "temp", 0, temp))
	var min, max variable.Variable
	min.SetDouble(0.0, 1)
	max.SetDouble(100.0, 1)
	require.NoError(t, s.AddProperty(2, "temp.min", Submask, min))
	require.NoError(t, s.AddProperty(3, "temp.max", Submask, max))
	require.NoError(t, s.PropertysetDone())
	return s
}

type recordingHolder struct {
	simple   map[int32]variable.Variable
	changes  []int32
	lastVals map[int32]variable.Variable
}

func newRecordingHolder() *recordingHolder {
	return &recordingHolder{simple: map[int32]variable.Variable{}, lastVals: map[int32]variable.Variable{}}
}

func (h *recordingHolder) SimpleProperty(nr int32) (variable.Variable, bool) {
	v, ok := h.simple[nr]
	return v, ok
}

func (h *recordingHolder) SetSimpleProperty(nr int32, v variable.Variable) {
	h.simple[nr] = v
}

func (h *recordingHolder) OnPropertyChange(nr int32, val *variable.Variable, flags uint32) {
	h.changes = append(h.changes, nr)
	h.lastVals[nr] = *val
}

func TestPropertysetDoneResolvesSubmaskHeads(t *testing.T) {
	s := tempSchema(t)
	minDef, ok := s.Lookup(2)
	require.True(t, ok)
	require.Equal(t, int32(1), minDef.HeadNr)

	maxDef, ok := s.Lookup(3)
	require.True(t, ok)
	require.Equal(t, int32(1), maxDef.HeadNr)
}

func TestSetPropertyNonSimpleStoresOverrideAndNotifies(t *testing.T) {
	rh, root := newFixture(t)
	defer rh.Destroy()
	s := tempSchema(t)
	h := newRecordingHolder()

	var v variable.Variable
	v.SetDouble(40.0, 1)
	require.NoError(t, SetProperty(rh, root, s, h, 1, v, nil, 0))

	require.Equal(t, []int32{1}, h.changes)

	got, err := GetProperty(root, s, h, 1)
	require.NoError(t, err)
	require.Equal(t, 40.0, got.GetDouble())
}

func TestSetPropertyIdempotentNoOp(t *testing.T) {
	rh, root := newFixture(t)
	defer rh.Destroy()
	s := tempSchema(t)
	h := newRecordingHolder()

	var v variable.Variable
	v.SetDouble(40.0, 1)
	require.NoError(t, SetProperty(rh, root, s, h, 1, v, nil, 0))
	require.NoError(t, SetProperty(rh, root, s, h, 1, v, nil, 0))

	require.Equal(t, []int32{1}, h.changes, "setting the same value twice must notify only once")
}

func TestSetPropertyRevertingToDefaultClearsOverride(t *testing.T) {
	rh, root := newFixture(t)
	defer rh.Destroy()
	s := tempSchema(t)
	h := newRecordingHolder()

	var v variable.Variable
	v.SetDouble(40.0, 1)
	require.NoError(t, SetProperty(rh, root, s, h, 1, v, nil, 0))
	require.NotNil(t, store(root))

	var back variable.Variable
	back.SetDouble(20.0, 1)
	require.NoError(t, SetProperty(rh, root, s, h, 1, back, nil, 0))

	got, err := GetProperty(root, s, h, 1)
	require.NoError(t, err)
	require.Equal(t, 20.0, got.GetDouble())
	require.NotContains(t, store(root).values, int32(1))
}

func TestSetPropertyUnknownPropertyErrors(t *testing.T) {
	rh, root := newFixture(t)
	defer rh.Destroy()
	s := tempSchema(t)

	var v variable.Variable
	v.SetLong(1)
	err := SetProperty(rh, root, s, nil, 99, v, nil, 0)
	require.Error(t, err)
}

type fakeBinding struct {
	forwarded bool
	lastNr    int32
}

func (b *fakeBinding) ForwardPropertyChange(nr int32, val *variable.Variable, source interface{}, flags uint32) {
	b.forwarded = true
	b.lastNr = nr
}

func TestSetPropertyForwardsToBindingsExceptSource(t *testing.T) {
	rh, root := newFixture(t)
	defer rh.Destroy()
	s := tempSchema(t)
	h := newRecordingHolder()

	container, err := object.New(rh, root, testClassID, object.BindingsOid, handle.FlagAttached)
	require.NoError(t, err)

	b1 := &fakeBinding{}
	bObj1, err := object.New(rh, container, testClassID, object.ItemOid, 0)
	require.NoError(t, err)
	bObj1.SetPayload(b1)

	b2 := &fakeBinding{}
	bObj2, err := object.New(rh, container, testClassID, object.ItemOid, 0)
	require.NoError(t, err)
	bObj2.SetPayload(b2)

	var v variable.Variable
	v.SetDouble(55.0, 1)
	require.NoError(t, SetProperty(rh, root, s, h, 1, v, b2, 0))

	require.True(t, b1.forwarded)
	require.False(t, b2.forwarded, "the binding identified as source must not receive its own forward")
}

func TestInitializePropertiesNotifiesNonSimpleNonSuppressed(t *testing.T) {
	rh, root := newFixture(t)
	defer rh.Destroy()
	s := tempSchema(t)
	h := newRecordingHolder()

	InitializeProperties(root, s, h, 0)
	require.ElementsMatch(t, []int32{1, 2, 3}, h.changes)
}
