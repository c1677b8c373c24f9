package name

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nestybox/eobjects-go/handle"
	"github.com/nestybox/eobjects-go/object"
)

type fakeProcess struct{ ns *Namespace }

func (p *fakeProcess) Namespace() *Namespace { return p.ns }

func newFixture(t *testing.T) (*object.RootHelper, *object.Object, *fakeProcess) {
	t.Helper()
	tbl := handle.NewTable()
	root, rh, err := object.NewTree(tbl, 1, 4, 16, nil)
	require.NoError(t, err)

	procNS, err := NewNamespace(rh, rh.HelperObject, "process")
	require.NoError(t, err)

	return rh, root, &fakeProcess{ns: procNS}
}

func TestAddNameThreadScopeResolvesAtTreeRoot(t *testing.T) {
	rh, root, proc := newFixture(t)
	defer rh.Destroy()

	threadNS, err := NewNamespace(rh, root, "")
	require.NoError(t, err)

	child, err := object.New(rh, root, 2, object.ItemOid, 0)
	require.NoError(t, err)

	n, err := AddName(rh, child, "worker", ScopeThread, "", 0, proc)
	require.NoError(t, err)
	require.Same(t, threadNS, n.Namespace())

	got := threadNS.Lookup("worker")
	require.NotNil(t, got)
	require.Same(t, n, got)
}

func TestAddNameProcessScopeViaPrefix(t *testing.T) {
	rh, root, proc := newFixture(t)
	defer rh.Destroy()

	child, err := object.New(rh, root, 2, object.ItemOid, 0)
	require.NoError(t, err)

	n, err := AddName(rh, child, "//global", ScopeThis, "", 0, proc)
	require.NoError(t, err)
	require.Same(t, proc.ns, n.Namespace())
	require.Equal(t, ScopeProcess, n.Scope)

	v, _ := n.Value.GetString()
	require.Equal(t, "global", v)
}

func TestNamespaceMultimapOrderingAndNsNext(t *testing.T) {
	rh, root, proc := newFixture(t)
	defer rh.Destroy()

	threadNS, err := NewNamespace(rh, root, "")
	require.NoError(t, err)

	var names []*Name
	for i := 0; i < 3; i++ {
		child, err := object.New(rh, root, 2, object.ItemOid, 0)
		require.NoError(t, err)
		n, err := AddName(rh, child, "dup", ScopeThread, "", 0, proc)
		require.NoError(t, err)
		names = append(names, n)
	}

	first := threadNS.First()
	require.Same(t, names[0], first)

	second := first.Next(true)
	require.Same(t, names[1], second)
	third := second.Next(true)
	require.Same(t, names[2], third)
	require.Nil(t, third.Next(true))
}

func TestExplicitScopeWalksAncestorsForMatchingID(t *testing.T) {
	rh, root, proc := newFixture(t)
	defer rh.Destroy()

	mid, err := object.New(rh, root, 2, object.ItemOid, 0)
	require.NoError(t, err)
	_, err = NewNamespace(rh, mid, "group-a")
	require.NoError(t, err)

	leaf, err := object.New(rh, mid, 2, object.ItemOid, 0)
	require.NoError(t, err)

	n, err := AddName(rh, leaf, "member", ScopeExplicit, "group-a", 0, proc)
	require.NoError(t, err)
	require.NotNil(t, n.Namespace())

	_, err = AddName(rh, leaf, "orphan", ScopeExplicit, "group-b", 0, proc)
	require.Error(t, err)
}

func TestDetachRemovesFromNamespace(t *testing.T) {
	rh, root, proc := newFixture(t)
	defer rh.Destroy()

	threadNS, err := NewNamespace(rh, root, "")
	require.NoError(t, err)

	child, err := object.New(rh, root, 2, object.ItemOid, 0)
	require.NoError(t, err)
	n, err := AddName(rh, child, "solo", ScopeThread, "", 0, proc)
	require.NoError(t, err)

	n.Detach()
	require.Nil(t, threadNS.Lookup("solo"))
	require.Nil(t, n.Namespace())
}

func TestMapSubtreeAndUnmapSubtree(t *testing.T) {
	rh, root, proc := newFixture(t)
	defer rh.Destroy()

	threadNS, err := NewNamespace(rh, root, "")
	require.NoError(t, err)

	parent, err := object.New(rh, root, 2, object.ItemOid, 0)
	require.NoError(t, err)
	child, err := object.New(rh, parent, 2, object.ItemOid, 0)
	require.NoError(t, err)

	n, err := AddName(rh, child, "leaf", ScopeThread, "", 0, proc)
	require.NoError(t, err)
	require.Same(t, threadNS, n.Namespace())

	UnmapSubtree(parent)
	require.Nil(t, n.Namespace())
	require.Nil(t, threadNS.Lookup("leaf"))

	require.NoError(t, MapSubtree(proc, parent))
	require.Same(t, threadNS, n.Namespace())
}
