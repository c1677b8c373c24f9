// Package thread implements one actor-style scheduler per OS thread: a
// tree of its own, a trigger channel standing in for the native trigger
// event, and a FIFO inbox drained between blocks.
package thread

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/nestybox/eobjects-go/envelope"
	"github.com/nestybox/eobjects-go/object"
	"github.com/nestybox/eobjects-go/process"
	"github.com/nestybox/eobjects-go/route"
)

type queuedMessage struct {
	target *object.Object
	env    *envelope.Envelope
}

// Thread owns a private object tree and a message queue fed by Queue
// from any other thread, each append made under the process lock.
type Thread struct {
	proc    *process.Process
	root    *object.RootHelper
	rootObj *object.Object
	name    string
	handler route.Handler

	trigger chan struct{}

	mu            sync.Mutex
	inbox         []queuedMessage
	exitRequested bool
}

// New allocates the thread's tree, registers it in the process directory
// under name, and returns the thread along with its tree's root object.
func New(proc *process.Process, classID int32, name string, handler route.Handler) (*Thread, *object.Object, error) {
	root, rh, err := object.NewTree(proc.Table(), classID, 8, 64, nil)
	if err != nil {
		return nil, nil, err
	}

	t := &Thread{
		proc:    proc,
		root:    rh,
		rootObj: root,
		name:    name,
		handler: handler,
		trigger: make(chan struct{}, 1),
	}
	rh.Thread = t

	if err := proc.RegisterThread(name, t); err != nil {
		rh.Destroy()
		return nil, nil, err
	}
	return t, root, nil
}

// Name returns this thread's process-registered name, satisfying package
// route's "named" interface and process.ThreadDirectory indirectly.
func (t *Thread) Name() string { return t.name }

// Root returns this thread's tree root helper.
func (t *Thread) Root() *object.RootHelper { return t.root }

// RootObject returns this thread's tree root object.
func (t *Thread) RootObject() *object.Object { return t.rootObj }

// Queue implements process.ThreadDirectory: envelope ownership transfers
// when mayAdopt is set, otherwise the envelope is cloned. The trigger fires
// exactly once per call, coalescing if the thread has not yet woken to
// consume a prior signal.
func (t *Thread) Queue(target *object.Object, env *envelope.Envelope, mayAdopt bool) error {
	e := env
	if !mayAdopt {
		e = env.Clone()
	}
	e.Flags |= envelope.Interthread

	t.proc.Lock()
	t.mu.Lock()
	t.inbox = append(t.inbox, queuedMessage{target: target, env: e})
	t.mu.Unlock()
	t.proc.Unlock()

	t.wake()
	return nil
}

func (t *Thread) wake() {
	select {
	case t.trigger <- struct{}{}:
	default:
	}
}

// Send routes env starting from the given object in this thread's own
// tree, dispatching locally or queuing cross-thread as route.Send resolves
// the target.
func (t *Thread) Send(from *object.Object, env *envelope.Envelope) error {
	ctx := &route.Context{
		Proc:       t.proc,
		From:       from,
		Root:       t.root,
		ThreadName: t.name,
		Handler:    t.handler,
	}
	return route.Send(ctx, env)
}

func (t *Thread) drain() {
	t.mu.Lock()
	msgs := t.inbox
	t.inbox = nil
	t.mu.Unlock()

	for _, m := range msgs {
		if m.env.Command == envelope.CmdExitThread {
			t.RequestExit()
			continue
		}
		_ = t.handler.OnMessage(m.target, m.env)
	}
}

// Alive implements alive(wait_for_event): it always drains
// whatever is queued first. If block is true and nothing caused exit, it
// then waits for the trigger before draining once more. It returns false
// once exit has been requested and observed, at which point the caller's
// run loop should stop calling Alive again.
func (t *Thread) Alive(block bool) bool {
	t.drain()
	if t.isExiting() {
		return false
	}
	if !block {
		return true
	}
	<-t.trigger
	t.drain()
	return !t.isExiting()
}

func (t *Thread) isExiting() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.exitRequested
}

// RequestExit sets the exit flag and wakes the thread so a blocked Alive
// call returns promptly.
func (t *Thread) RequestExit() {
	t.mu.Lock()
	t.exitRequested = true
	t.mu.Unlock()
	logrus.Debugf("thread %q: exit requested", t.name)
	t.wake()
}

// Run is the thread's scheduler loop: block until woken, drain, repeat,
// until exit is requested, then unregister from the process directory.
// Intended to run on its own goroutine, one per thread.
func (t *Thread) Run() {
	logrus.Debugf("thread %q: run loop starting", t.name)
	for t.Alive(true) {
	}
	t.proc.UnregisterThread(t.name)
	logrus.Debugf("thread %q: run loop exited", t.name)
}
