// Package conn implements a socket-backed connection: a
// connection is itself a thread, wrapping one net.Conn stream with an
// encoded write queue and decoded read queue, an init-send buffer for
// envelopes queued before the socket is up, and memorized client/server
// bindings so a reconnect can synthesize UNBIND/REBIND automatically.
package conn

import (
	"net"
	"sync"
	"syscall"
	"time"

	iradix "github.com/hashicorp/go-immutable-radix"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/nestybox/eobjects-go/envelope"
	"github.com/nestybox/eobjects-go/estatus"
	"github.com/nestybox/eobjects-go/object"
	"github.com/nestybox/eobjects-go/process"
	"github.com/nestybox/eobjects-go/route"
	"github.com/nestybox/eobjects-go/thread"
)

// keepaliveInterval is how long a connection may sit idle before a
// keepalive control is written to detect a silently dropped peer.
const keepaliveInterval = 20 * time.Second

// retryInterval is how long to wait between connect attempts while the
// stream is down.
const retryInterval = 3 * time.Second

// Dialer opens the transport. Production code passes net.Dial; tests
// substitute a fake to avoid real sockets.
type Dialer func(addr string) (net.Conn, error)

// Conn is a connection-as-thread: it owns an object tree like any other
// thread, plus the transport and bookkeeping described above.
type Conn struct {
	*thread.Thread

	addr string
	dial Dialer

	mu             sync.Mutex
	stream         net.Conn
	streamUp       bool
	failedOnce     bool
	initBuffer     []*envelope.Envelope
	clientBindings *iradix.Tree
	serverBindings *iradix.Tree

	encQueue *encodedWriter
	decQueue *decodedReader
	lastSend time.Time
}

// New builds a connection thread bound to addr, dialed lazily by Run.
func New(proc *process.Process, classID int32, name, addr string, dial Dialer, handler route.Handler) (*Conn, *object.Object, error) {
	th, root, err := thread.New(proc, classID, name, handler)
	if err != nil {
		return nil, nil, err
	}
	c := &Conn{
		Thread:         th,
		addr:           addr,
		dial:           dial,
		clientBindings: iradix.New(),
		serverBindings: iradix.New(),
		encQueue:       newEncodedWriter(),
		decQueue:       newDecodedReader(),
	}
	return c, root, nil
}

// Enqueue queues env for transport: while disconnected it lands in the
// init-send buffer, otherwise it is serialized straight into the encoded
// write queue.
func (c *Conn) Enqueue(env *envelope.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.monitorBinds(env)

	if !c.streamUp {
		c.initBuffer = append(c.initBuffer, env)
		return nil
	}
	return c.writeLocked(env)
}

func (c *Conn) writeLocked(env *envelope.Envelope) error {
	if c.stream == nil {
		return estatus.Unavailable("connection %q has no open stream", c.addr)
	}
	if err := c.encQueue.write(env); err != nil {
		return err
	}
	c.lastSend = time.Now()
	return nil
}

// monitorBinds maintains the memorized client/server binding sets keyed
// by the envelope's source path.
func (c *Conn) monitorBinds(env *envelope.Envelope) {
	source := env.Path.Source()
	switch env.Command {
	case envelope.CmdBind:
		c.clientBindings, _, _ = c.clientBindings.Insert([]byte(source), struct{}{})
	case envelope.CmdUnbind:
		c.clientBindings, _, _ = c.clientBindings.Delete([]byte(source))
	case envelope.CmdBindReply:
		c.serverBindings, _, _ = c.serverBindings.Insert([]byte(source), struct{}{})
	case envelope.CmdSrvUnbind:
		c.serverBindings, _, _ = c.serverBindings.Delete([]byte(source))
	}
}

func (c *Conn) open() error {
	stream, err := c.dial(c.addr)
	if err != nil {
		logrus.Debugf("conn %q: dial failed: %v", c.addr, err)
		return err
	}
	tuneKeepalive(stream)
	c.mu.Lock()
	c.stream = stream
	c.mu.Unlock()
	return nil
}

// tuneKeepalive enables TCP keepalive with a short idle threshold via a
// raw socket-option call. Errors are non-fatal: the connection still works
// without the OS-level keepalive, relying on the application-level one.
func tuneKeepalive(c net.Conn) {
	sc, ok := c.(interface {
		SyscallConn() (syscall.RawConn, error)
	})
	if !ok {
		return
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return
	}
	_ = raw.Control(func(fd uintptr) {
		_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)
		_ = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPIDLE, int(keepaliveInterval.Seconds()))
	})
}

// connected is called once the stream dials successfully: it delivers a
// synthetic REBIND to every memorized client binding (so each one re-
// issues its original BIND over the fresh stream), flushes the init
// buffer, and marks the connection open.
func (c *Conn) connected() error {
	c.mu.Lock()
	clients := c.clientBindings
	pending := c.initBuffer
	c.initBuffer = nil
	c.mu.Unlock()

	clients.Root().Walk(func(k []byte, v interface{}) bool {
		reply := envelope.New(envelope.CmdRebind, 0, string(k))
		_ = c.Send(c.RootObject(), reply)
		return false
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, env := range pending {
		if err := c.writeLocked(env); err != nil {
			return err
		}
	}
	c.streamUp = true
	return nil
}

// disconnected tears the stream down: every init-buffered envelope gets a
// best-effort NO_TARGET, and every memorized server binding is handed a
// synthetic UNBIND so it tears itself down instead of waiting forever for
// a client that can no longer reach it. Memorized client bindings are left
// untouched here: they get a synthetic REBIND once the stream reopens.
func (c *Conn) disconnected() {
	c.mu.Lock()
	pending := c.initBuffer
	c.initBuffer = nil
	servers := c.serverBindings
	c.streamUp = false
	c.failedOnce = true
	c.stream = nil
	c.mu.Unlock()

	for _, env := range pending {
		if reply := envelope.NoTargetReply(env); reply != nil {
			_ = c.Send(c.RootObject(), reply)
		}
	}

	servers.Root().Walk(func(k []byte, v interface{}) bool {
		env := envelope.New(envelope.CmdUnbind, 0, string(k))
		_ = c.Send(c.RootObject(), env)
		return false
	})
}

// deliverIncoming decodes as many whole envelopes as the freshly read
// bytes complete and dispatches each through the local routing layer,
// starting from this connection's own tree root. Each decoded envelope
// gets "/" prepended to its target, so it resolves against this
// connection's thread-local namespace rather than whatever scope its
// first token would otherwise imply, and this connection's own oix
// prepended to its source, so a later reply can retrace the hop back to
// this socket rather than to whatever thread name route.Send would
// otherwise augment with.
func (c *Conn) deliverIncoming(data []byte) error {
	envs, err := c.decQueue.feed(data)
	if err != nil {
		return err
	}
	ownOix := route.FormatOixToken(c.RootObject().ID())
	var firstErr error
	for _, env := range envs {
		env.Path.PrependTarget("/")
		env.Path.PrependSource(ownOix)
		env.Flags |= envelope.NoNewSourceOix
		if err := c.Send(c.RootObject(), env); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Run is the connection's scheduler loop: dial when
// there is no stream, otherwise alternate between draining outgoing
// messages and reading incoming bytes until exit is requested.
func (c *Conn) Run() {
	for !c.isExitingPublic() {
		c.mu.Lock()
		hasStream := c.stream != nil
		c.mu.Unlock()

		if !hasStream {
			if err := c.open(); err != nil {
				time.Sleep(retryInterval)
				continue
			}
			if err := c.connected(); err != nil {
				c.disconnected()
				continue
			}
		}

		if !c.Alive(false) {
			return
		}

		c.mu.Lock()
		idle := time.Since(c.lastSend) >= keepaliveInterval
		c.mu.Unlock()
		if idle {
			c.encQueue.writeKeepalive()
		}

		buf, err := c.encQueue.flushReady()
		if err == nil && len(buf) > 0 {
			c.mu.Lock()
			stream := c.stream
			c.mu.Unlock()
			if stream != nil {
				if _, werr := stream.Write(buf); werr != nil {
					c.disconnected()
					continue
				}
			}
		}

		c.mu.Lock()
		stream := c.stream
		c.mu.Unlock()
		if stream == nil {
			continue
		}
		_ = stream.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		readBuf := make([]byte, 4096)
		n, rerr := stream.Read(readBuf)
		if n > 0 {
			if derr := c.deliverIncoming(readBuf[:n]); derr != nil {
				logrus.Debugf("conn %q: failed decoding incoming data: %v", c.addr, derr)
			}
		}
		if rerr != nil && !isTimeout(rerr) {
			c.disconnected()
		}
	}
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

// isExitingPublic exposes thread.Thread's private exit flag through its
// public surface: Alive(false) already drains and returns it, so Run
// calls that instead of duplicating state.
func (c *Conn) isExitingPublic() bool {
	return !c.Alive(false)
}
