package thread

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nestybox/eobjects-go/envelope"
	"github.com/nestybox/eobjects-go/object"
	"github.com/nestybox/eobjects-go/process"
	"github.com/nestybox/eobjects-go/route"
)

type recordingHandler struct {
	delivered []*object.Object
	commands  []envelope.Command
}

func (h *recordingHandler) OnMessage(target *object.Object, env *envelope.Envelope) error {
	h.delivered = append(h.delivered, target)
	h.commands = append(h.commands, env.Command)
	return nil
}

func TestQueueWakesAliveAndDrainsInOrder(t *testing.T) {
	proc, err := process.New()
	require.NoError(t, err)
	h := &recordingHandler{}
	th, root, err := New(proc, 1, "@t1", h)
	require.NoError(t, err)
	defer th.Root().Destroy()

	e1 := envelope.New(envelope.CmdSetProperty, 0, "x")
	e2 := envelope.New(envelope.CmdFwrd, 0, "y")
	require.NoError(t, th.Queue(root, e1, true))
	require.NoError(t, th.Queue(root, e2, true))

	require.True(t, th.Alive(false))
	require.Equal(t, []envelope.Command{envelope.CmdSetProperty, envelope.CmdFwrd}, h.commands)
}

func TestQueueMarksInterthreadFlag(t *testing.T) {
	proc, err := process.New()
	require.NoError(t, err)
	h := &recordingHandler{}
	th, root, err := New(proc, 1, "@t1", h)
	require.NoError(t, err)
	defer th.Root().Destroy()

	e := envelope.New(envelope.CmdFwrd, 0, "x")
	require.NoError(t, th.Queue(root, e, true))
	th.Alive(false)

	require.NotZero(t, e.Flags&envelope.Interthread)
}

func TestQueueCloneWhenMayAdoptFalse(t *testing.T) {
	proc, err := process.New()
	require.NoError(t, err)
	h := &recordingHandler{}
	th, root, err := New(proc, 1, "@t1", h)
	require.NoError(t, err)
	defer th.Root().Destroy()

	e := envelope.New(envelope.CmdFwrd, 0, "x")
	require.NoError(t, th.Queue(root, e, false))
	require.Zero(t, e.Flags&envelope.Interthread, "the original envelope must be untouched when cloned")

	th.Alive(false)
	require.Len(t, h.delivered, 1)
}

func TestExitThreadCommandStopsDrainingToHandler(t *testing.T) {
	proc, err := process.New()
	require.NoError(t, err)
	h := &recordingHandler{}
	th, root, err := New(proc, 1, "@t1", h)
	require.NoError(t, err)
	defer th.Root().Destroy()

	require.NoError(t, th.Queue(root, envelope.New(envelope.CmdExitThread, 0, ""), true))
	require.False(t, th.Alive(false))
	require.Empty(t, h.delivered, "EXIT_THREAD must not reach the handler as an ordinary message")

	_, ok := proc.Thread("@t1")
	require.True(t, ok, "unregistration happens when Run's loop exits, not on every Alive call")

	th.Run()
	_, ok = proc.Thread("@t1")
	require.False(t, ok)
}

func TestSendRoutesToLocalChildByOix(t *testing.T) {
	proc, err := process.New()
	require.NoError(t, err)
	h := &recordingHandler{}
	th, root, err := New(proc, 1, "@t1", h)
	require.NoError(t, err)
	defer th.Root().Destroy()

	child, err := object.New(th.Root(), root, 1, object.ItemOid, 0)
	require.NoError(t, err)

	env := envelope.New(envelope.CmdSetProperty, 0, route.FormatOixToken(child.ID()))
	require.NoError(t, th.Send(root, env))
	require.Equal(t, []*object.Object{child}, h.delivered)
}
