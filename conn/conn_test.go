package conn

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nestybox/eobjects-go/envelope"
	"github.com/nestybox/eobjects-go/object"
	"github.com/nestybox/eobjects-go/process"
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

// pipeDialer returns a Dialer that always hands back one side of an
// in-memory net.Pipe, with the other side kept for the test to drive
// directly as the "remote peer".
func pipeDialer(peer *net.Conn) Dialer {
	return func(addr string) (net.Conn, error) {
		local, remote := net.Pipe()
		*peer = remote
		return local, nil
	}
}

func TestEnqueueBuffersUntilStreamConnects(t *testing.T) {
	proc, err := process.New()
	require.NoError(t, err)
	h := &recordingHandler{}

	var peer net.Conn
	c, _, err := New(proc, 1, "@conn1", "test-addr", pipeDialer(&peer), h)
	require.NoError(t, err)
	defer c.Root().Destroy()

	env := envelope.New(envelope.CmdSetProperty, 0, "x")
	require.NoError(t, c.Enqueue(env))

	c.mu.Lock()
	require.Len(t, c.initBuffer, 1)
	require.False(t, c.streamUp)
	c.mu.Unlock()
}

func TestOpenMarksStreamUpAndFlushesInitBuffer(t *testing.T) {
	proc, err := process.New()
	require.NoError(t, err)
	h := &recordingHandler{}

	var peer net.Conn
	c, _, err := New(proc, 1, "@conn2", "test-addr", pipeDialer(&peer), h)
	require.NoError(t, err)
	defer c.Root().Destroy()

	env := envelope.New(envelope.CmdSetProperty, 0, "x")
	require.NoError(t, c.Enqueue(env))

	require.NoError(t, c.open())
	require.NoError(t, c.connected())

	c.mu.Lock()
	require.True(t, c.streamUp)
	require.Empty(t, c.initBuffer)
	c.mu.Unlock()

	buf, err := c.encQueue.flushReady()
	require.NoError(t, err)
	require.NotEmpty(t, buf, "the buffered envelope must have reached the encoded write queue")
}

func TestMonitorBindsTracksClientAndServerBindings(t *testing.T) {
	proc, err := process.New()
	require.NoError(t, err)
	h := &recordingHandler{}

	var peer net.Conn
	c, _, err := New(proc, 1, "@conn3", "test-addr", pipeDialer(&peer), h)
	require.NoError(t, err)
	defer c.Root().Destroy()

	bind := envelope.New(envelope.CmdBind, 0, "srv")
	bind.Path.PrependSource("client1")
	c.monitorBinds(bind)

	_, found := c.clientBindings.Get([]byte("client1"))
	require.True(t, found)

	unbind := envelope.New(envelope.CmdUnbind, 0, "srv")
	unbind.Path.PrependSource("client1")
	c.monitorBinds(unbind)

	_, found = c.clientBindings.Get([]byte("client1"))
	require.False(t, found)
}

func TestEncodedWriterRoundTripsThroughDecodedReader(t *testing.T) {
	w := newEncodedWriter()
	env := envelope.New(envelope.CmdFwrd, 0, "target")
	require.NoError(t, w.write(env))

	buf, err := w.flushReady()
	require.NoError(t, err)
	require.NotEmpty(t, buf)

	r := newDecodedReader()
	envs, err := r.feed(buf)
	require.NoError(t, err)
	require.Len(t, envs, 1)
	require.Equal(t, envelope.CmdFwrd, envs[0].Command)
	require.Equal(t, "target", envs[0].Path.Target())
}

func TestEncodedWriterSeparatesMultipleEnvelopesByFlush(t *testing.T) {
	w := newEncodedWriter()
	require.NoError(t, w.write(envelope.New(envelope.CmdFwrd, 0, "a")))
	require.NoError(t, w.write(envelope.New(envelope.CmdAck, 0, "b")))

	buf, err := w.flushReady()
	require.NoError(t, err)

	r := newDecodedReader()
	envs, err := r.feed(buf)
	require.NoError(t, err)
	require.Len(t, envs, 2)
	require.Equal(t, envelope.CmdFwrd, envs[0].Command)
	require.Equal(t, envelope.CmdAck, envs[1].Command)
}

func TestDecodedReaderHoldsPartialEnvelopeAcrossFeeds(t *testing.T) {
	w := newEncodedWriter()
	require.NoError(t, w.write(envelope.New(envelope.CmdFwrd, 0, "whole-target")))
	buf, err := w.flushReady()
	require.NoError(t, err)
	require.True(t, len(buf) > 4)

	r := newDecodedReader()
	envs, err := r.feed(buf[:len(buf)/2])
	require.NoError(t, err)
	require.Empty(t, envs, "a split envelope must not surface until the flush marker arrives")

	envs, err = r.feed(buf[len(buf)/2:])
	require.NoError(t, err)
	require.Len(t, envs, 1)
	require.Equal(t, "whole-target", envs[0].Path.Target())
}

func TestDisconnectedClearsStreamAndNotifiesBindings(t *testing.T) {
	proc, err := process.New()
	require.NoError(t, err)
	h := &recordingHandler{}

	var peer net.Conn
	c, _, err := New(proc, 1, "@conn4", "test-addr", pipeDialer(&peer), h)
	require.NoError(t, err)
	defer c.Root().Destroy()

	require.NoError(t, c.open())
	require.NoError(t, c.connected())

	// A server binding is memorized off a BIND_REPLY this side sent out,
	// keyed by that reply's own source path.
	bindReply := envelope.New(envelope.CmdBindReply, 0, "client1")
	bindReply.Path.PrependSource("server1")
	c.monitorBinds(bindReply)

	c.disconnected()

	c.mu.Lock()
	require.False(t, c.streamUp)
	require.Nil(t, c.stream)
	c.mu.Unlock()

	require.Eventually(t, func() bool {
		return len(h.commands) > 0
	}, time.Second, 10*time.Millisecond, "a memorized server binding must be told the connection dropped")
}
