package envelope

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nestybox/eobjects-go/variable"
)

func TestPathBufferConsumeAndPrepend(t *testing.T) {
	pb := NewPathBuffer("foo/bar/baz", "")

	tok, n := pb.NextTarget()
	require.Equal(t, "foo", tok)
	pb.MoveTargetOverObjname()
	require.Equal(t, 3, n)
	require.Equal(t, "bar/baz", pb.Target())

	pb.PrependSource("@5_1")
	require.Equal(t, "@5_1", pb.Source())

	pb.PrependSource("worker")
	require.Equal(t, "worker/@5_1", pb.Source())
}

func TestPathBufferPrependGrowsPastInitialSlack(t *testing.T) {
	pb := NewPathBuffer("x", "")
	for i := 0; i < 50; i++ {
		pb.PrependSource("component")
	}
	require.Len(t, pb.Source(), 50*len("component/")-1) // no trailing slash after the last prepend
}

func TestPathBufferLeadingDoubleSlashIsItsOwnToken(t *testing.T) {
	pb := NewPathBuffer("//proc/foo", "")
	tok, n := pb.NextTarget()
	require.Equal(t, "//", tok)
	require.Equal(t, 2, n)
}

func TestPathBufferLeadingSingleSlashIsOneByteToken(t *testing.T) {
	pb := NewPathBuffer("/worker/foo", "")
	tok, n := pb.NextTarget()
	require.Equal(t, "/", tok)
	require.Equal(t, 1, n)
}

func TestSerializeRoundTrip(t *testing.T) {
	e := New(CmdFwrd, HasContent, "proc")
	e.Path.PrependSource("@3_7")
	var v variable.Variable
	v.SetDouble(30.0, 1)
	e.Content = &v

	buf, err := Serialize(e)
	require.NoError(t, err)

	got, consumed, err := Deserialize(buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), consumed)
	require.Equal(t, CmdFwrd, got.Command)
	require.Equal(t, "proc", got.Path.Target())
	require.Equal(t, "@3_7", got.Path.Source())
	require.NotNil(t, got.Content)
	cv := got.Content.(*variable.Variable)
	require.Equal(t, 30.0, cv.GetDouble())
	require.Equal(t, 1, cv.Digits())
}

func TestSerializeOmitsSourceWhenNoReply(t *testing.T) {
	e := New(CmdSetProperty, NoReply, "proc/temp")
	e.Path.PrependSource("leftover")

	buf, err := Serialize(e)
	require.NoError(t, err)

	got, _, err := Deserialize(buf)
	require.NoError(t, err)
	require.Empty(t, got.Path.Source())
}

func TestDeserializeIncompleteBufferErrors(t *testing.T) {
	e := New(CmdAck, 0, "x")
	buf, err := Serialize(e)
	require.NoError(t, err)

	_, _, err = Deserialize(buf[:len(buf)-1])
	require.Error(t, err)
}

func TestNoTargetReplyCarriesContext(t *testing.T) {
	orig := New(CmdBind, 0, "missing/path")
	orig.Path.PrependSource("@1_1")
	var ctx variable.Variable
	ctx.SetString("ctx", 0)
	orig.Context = &ctx

	reply := NoTargetReply(orig)
	require.NotNil(t, reply)
	require.Equal(t, CmdNoTarget, reply.Command)
	require.Equal(t, "@1_1", reply.Path.Target())
	require.Same(t, &ctx, reply.Context)
}

func TestNoTargetReplySuppressedWhenNoReplySet(t *testing.T) {
	orig := New(CmdBind, NoReply, "missing")
	require.Nil(t, NoTargetReply(orig))
}
