// Package process implements the process-wide registry: the
// single mutex-guarded struct that owns the class/property schema table,
// the process namespace, and the shared handle table every tree's free
// list refills from: one struct, one sync.Mutex, maps keyed by a stable
// id, Lock bracketing every accessor.
package process

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/nestybox/eobjects-go/envelope"
	"github.com/nestybox/eobjects-go/estatus"
	"github.com/nestybox/eobjects-go/handle"
	"github.com/nestybox/eobjects-go/name"
	"github.com/nestybox/eobjects-go/object"
	"github.com/nestybox/eobjects-go/property"
)

// ThreadDirectory is the minimal view of a running thread that routing
// needs in order to queue an envelope cross-thread: package thread
// implements it and registers itself here under its process-name, which
// avoids a process<->thread import cycle.
type ThreadDirectory interface {
	// Queue hands env, addressed to target, to the thread; mayAdopt
	// controls whether the thread may take ownership of env outright or
	// must clone it first.
	Queue(target *object.Object, env *envelope.Envelope, mayAdopt bool) error
}

// Process is the process-wide registry: its single process lock guards the
// process namespace, the class list, and cross-thread envelope enqueue; the
// handle table's global free list is a further shared resource it owns
// access to.
type Process struct {
	mu sync.Mutex

	tbl *handle.Table

	schemas map[int32]*property.Schema

	nsRoot *object.Object
	nsHelp *object.RootHelper
	ns     *name.Namespace

	threads map[string]ThreadDirectory
}

// New constructs the process registry: a fresh handle table, an empty
// class registry, and the single process namespace (the target of scope
// "/"), mapped under its own private root object.
func New() (*Process, error) {
	tbl := handle.NewTable()
	nsRoot, nsHelp, err := object.NewTree(tbl, 0, 8, 64, nil)
	if err != nil {
		return nil, err
	}
	ns, err := name.NewNamespace(nsHelp, nsHelp.HelperObject, "")
	if err != nil {
		return nil, err
	}
	return &Process{
		tbl:     tbl,
		schemas: make(map[int32]*property.Schema),
		nsRoot:  nsRoot,
		nsHelp:  nsHelp,
		ns:      ns,
		threads: make(map[string]ThreadDirectory),
	}, nil
}

// Table returns the shared handle table every tree's free list refills
// from and flushes into.
func (p *Process) Table() *handle.Table { return p.tbl }

// Namespace returns the process-global namespace (package name's
// ProcessNamespace interface), the target of scope "/".
func (p *Process) Namespace() *name.Namespace {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ns
}

// RegisterClass installs schema under classID. It is an error to register
// the same class twice; whether PropertysetDone has been called on the
// schema is not checked.
func (p *Process) RegisterClass(classID int32, schema *property.Schema) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.schemas[classID]; exists {
		return estatus.AlreadyExists("class %d already registered", classID)
	}
	p.schemas[classID] = schema
	return nil
}

// Schema looks up the registered schema for classID.
func (p *Process) Schema(classID int32) (*property.Schema, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.schemas[classID]
	if !ok {
		return nil, estatus.Unimplemented("class %d has no registered property schema", classID)
	}
	return s, nil
}

// RegisterThread publishes a thread's directory entry under its unique
// process-name (an "@oix_ucnt"-style name in practice), letting other
// threads address EXIT_THREAD and cross-thread sends at it.
func (p *Process) RegisterThread(name string, t ThreadDirectory) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.threads[name]; exists {
		return estatus.AlreadyExists("thread %q already registered", name)
	}
	p.threads[name] = t
	logrus.Debugf("process: registered thread %q", name)
	return nil
}

// UnregisterThread removes a thread's directory entry, called as the
// thread exits.
func (p *Process) UnregisterThread(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.threads, name)
	logrus.Debugf("process: unregistered thread %q", name)
}

// Thread looks up a registered thread by its process-name.
func (p *Process) Thread(name string) (ThreadDirectory, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.threads[name]
	return t, ok
}

// Lock/Unlock expose the single process lock directly for callers that
// must hold it across an operation of their own; thread.Queue holds it
// while appending to a thread's inbox.
func (p *Process) Lock()   { p.mu.Lock() }
func (p *Process) Unlock() { p.mu.Unlock() }
