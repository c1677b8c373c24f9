// Package binding implements the client/server property binding pair: a
// client side that requests a remote property be mirrored locally, a
// server side that answers the request and then forwards every local
// change, and the steady-state FWRD/ACK exchange with flow control.
// Wired through property.BindingForwarder, which package property
// already calls on every local property change.
package binding

import (
	"strconv"
	"strings"

	"github.com/nestybox/eobjects-go/envelope"
	"github.com/nestybox/eobjects-go/estatus"
	"github.com/nestybox/eobjects-go/handle"
	"github.com/nestybox/eobjects-go/object"
	"github.com/nestybox/eobjects-go/process"
	"github.com/nestybox/eobjects-go/property"
	"github.com/nestybox/eobjects-go/route"
	"github.com/nestybox/eobjects-go/variable"
)

// Flags tags the parameters a BIND envelope carries.
type Flags uint32

const (
	// ClientInit marks that the client's own current value should become
	// the bound property's starting value, rather than the server's.
	ClientInit Flags = 1 << iota
	// NoFlowControl disables the ack-pending gate, letting every local
	// change post a FWRD immediately.
	NoFlowControl
)

// clientState is the client binding's own state machine.
type clientState int

const (
	stateUnused clientState = iota
	stateBindingNow
	stateOK
)

// bindingClassID tags every binding object created by this package; the
// value is never looked up in the process schema table since bindings
// never go through SetProperty/GetProperty themselves.
const bindingClassID int32 = -1000

// Sender is the minimal surface this package needs to route an envelope;
// *thread.Thread and *conn.Conn both implement it.
type Sender interface {
	Send(from *object.Object, env *envelope.Envelope) error
}

// Binding is both the client and the server side of one mirrored
// property: which side it plays is recorded in isServer, but the steady-
// state forwarding logic (ForwardPropertyChange, handling FWRD/ACK) is
// shared.
type Binding struct {
	sender Sender
	root   *object.RootHelper
	obj    *object.Object // the object whose property nr is mirrored
	self   *object.Object // this binding's own container child, used for peer addressing
	nr     int32
	schema *property.Schema
	holder property.Holder
	flags  Flags

	isServer bool
	state    clientState

	peerAddr string // "@oix_ucnt" of the counterpart binding object

	ackPending int
	queued     *variable.Variable

	// remotePath/remoteProp are kept client-side only, for REBIND.
	remotePath string
	remoteProp string
}

// bindingsContainer returns (creating if necessary) the single BindingsOid
// child under obj that holds every binding attached to it, matching the
// same get-or-create shape property.storeForWrite uses for PropertiesOid.
func bindingsContainer(root *object.RootHelper, obj *object.Object) (*object.Object, error) {
	if c := obj.First(object.BindingsOid); c != nil {
		return c, nil
	}
	return object.New(root, obj, obj.ClassID(), object.BindingsOid, handle.FlagAttached)
}

func attach(root *object.RootHelper, obj *object.Object, b *Binding) error {
	container, err := bindingsContainer(root, obj)
	if err != nil {
		return err
	}
	self, err := object.New(root, container, bindingClassID, object.ItemOid, handle.FlagAttached)
	if err != nil {
		return err
	}
	self.SetPayload(b)
	b.self = self
	return nil
}

func selfAddr(self *object.Object) string {
	return route.FormatOixToken(self.ID())
}

// Bind starts a client binding: it stores the binding parameters, attaches
// the binding object under obj, and sends the BIND request toward
// remotePath. flags&ClientInit determines whether the client's current
// value of nr rides along as the proposed initial value.
func Bind(root *object.RootHelper, sender Sender, obj *object.Object, schema *property.Schema, holder property.Holder, nr int32, remotePath, remoteProp string, flags Flags) (*Binding, error) {
	b := &Binding{
		sender:     sender,
		root:       root,
		obj:        obj,
		nr:         nr,
		schema:     schema,
		holder:     holder,
		flags:      flags,
		state:      stateBindingNow,
		remotePath: remotePath,
		remoteProp: remoteProp,
	}
	if err := attach(root, obj, b); err != nil {
		return nil, err
	}
	if err := b.sendBind(remotePath); err != nil {
		return nil, err
	}
	return b, nil
}

// sendBind issues (or reissues, for REBIND) the BIND request toward
// remotePath using this binding's own already-attached self object as the
// reply address.
func (b *Binding) sendBind(remotePath string) error {
	var initial *variable.Variable
	if b.flags&ClientInit != 0 {
		v, err := property.GetProperty(b.obj, b.schema, b.holder, b.nr)
		if err != nil {
			return err
		}
		initial = &v
	}

	env := envelope.New(envelope.CmdBind, 0, remotePath)
	env.Content = encodeBindRequest(b.remoteProp, b.flags, selfAddr(b.self))
	env.Context = initial
	if initial != nil {
		env.Flags |= envelope.HasContext
	}
	return b.sender.Send(b.obj, env)
}

// Unbind tells the peer this side is tearing down — CmdUnbind from a
// client binding, CmdSrvUnbind from a server binding, per which of the
// two memorized-binding containers package conn keys it under. A client
// side resets to unused and keeps its remote path for a later REBIND; a
// server side destroys its own binding object outright.
func (b *Binding) Unbind() error {
	cmd := envelope.CmdUnbind
	if b.isServer {
		cmd = envelope.CmdSrvUnbind
	}
	var err error
	if b.peerAddr != "" {
		env := envelope.New(cmd, 0, b.peerAddr)
		err = b.sender.Send(b.obj, env)
	}
	if b.isServer {
		b.self.Destroy()
	} else {
		b.state = stateUnused
	}
	return err
}

// ForwardPropertyChange implements property.BindingForwarder: it posts a
// FWRD to the peer if flow control allows, or queues the value for the
// next ACK otherwise.
func (b *Binding) ForwardPropertyChange(nr int32, val *variable.Variable, source interface{}, flags uint32) {
	if nr != b.nr || b.peerAddr == "" {
		return
	}
	if source == b {
		return
	}
	if b.flags&NoFlowControl == 0 && b.ackPending > 0 {
		cp := *val
		b.queued = &cp
		return
	}
	b.sendFwrd(val)
}

func (b *Binding) sendFwrd(val *variable.Variable) {
	env := envelope.New(envelope.CmdFwrd, 0, b.peerAddr)
	env.Content = val
	env.Flags |= envelope.HasContent
	if err := b.sender.Send(b.obj, env); err == nil && b.flags&NoFlowControl == 0 {
		b.ackPending++
	}
}

// Dispatch handles every binding-protocol command. Callers' route.Handler
// implementations should delegate to this for CmdBind, CmdBindReply,
// CmdFwrd, CmdAck, CmdUnbind, CmdSrvUnbind, and CmdRebind before falling
// back to application-specific handling. For CmdBind target is the
// property-owning object; for every other command target is expected to
// be a binding's own container child (target.Payload().(*Binding)).
func Dispatch(root *object.RootHelper, proc *process.Process, sender Sender, target *object.Object, env *envelope.Envelope) error {
	if env.Command == envelope.CmdBind {
		return handleBind(root, proc, sender, target, env)
	}

	b, ok := target.Payload().(*Binding)
	if !ok {
		return estatus.Internal("envelope command %d addressed to a non-binding object", env.Command)
	}

	switch env.Command {
	case envelope.CmdBindReply:
		return b.handleBindReply(env)
	case envelope.CmdFwrd:
		return b.handleFwrd(env)
	case envelope.CmdAck:
		return b.handleAck()
	case envelope.CmdUnbind, envelope.CmdSrvUnbind:
		// Whichever of the two crossed the connection, a server-role
		// binding deletes itself and a client-role binding resets to
		// unused but keeps its remote path for a later REBIND.
		if b.isServer {
			b.self.Destroy()
		} else {
			b.state = stateUnused
		}
		return nil
	case envelope.CmdRebind:
		return b.handleRebind()
	default:
		return estatus.Unimplemented("binding.Dispatch does not handle command %d", env.Command)
	}
}

func handleBind(root *object.RootHelper, proc *process.Process, sender Sender, target *object.Object, env *envelope.Envelope) error {
	remoteProp, flags, peerAddr, err := decodeBindRequest(env.Content)
	if err != nil {
		return err
	}

	schema, err := proc.Schema(target.ClassID())
	if err != nil {
		return sendNoTarget(sender, target, env)
	}
	def, ok := schema.LookupByName(remoteProp)
	if !ok {
		return sendNoTarget(sender, target, env)
	}
	holder, _ := target.Payload().(property.Holder)

	b := &Binding{
		sender:   sender,
		root:     root,
		obj:      target,
		nr:       def.Nr,
		schema:   schema,
		holder:   holder,
		flags:    flags,
		isServer: true,
		state:    stateOK,
		peerAddr: peerAddr,
	}
	if err := attach(root, target, b); err != nil {
		return err
	}

	if flags&ClientInit != 0 {
		initial, _ := env.Context.(*variable.Variable)
		if initial != nil {
			if err := property.SetProperty(root, target, schema, holder, def.Nr, *initial, b, 0); err != nil {
				return err
			}
		}
	}

	current, err := property.GetProperty(target, schema, holder, def.Nr)
	if err != nil {
		return err
	}

	reply := envelope.New(envelope.CmdBindReply, 0, peerAddr)
	reply.Content = &current
	reply.Context = stringVar(selfAddr(b.self))
	reply.Flags |= envelope.HasContent | envelope.HasContext
	return sender.Send(target, reply)
}

func sendNoTarget(sender Sender, target *object.Object, env *envelope.Envelope) error {
	if reply := envelope.NoTargetReply(env); reply != nil {
		_ = sender.Send(target, reply)
	}
	return estatus.NotFound("no matching property for bind request")
}

func (b *Binding) handleBindReply(env *envelope.Envelope) error {
	if addr, ok := env.Context.(*variable.Variable); ok {
		s, _ := addr.GetString()
		b.peerAddr = s
	}
	val, ok := env.Content.(*variable.Variable)
	if !ok {
		return estatus.Internal("BIND_REPLY carried no value")
	}
	if err := property.SetProperty(b.root, b.obj, b.schema, b.holder, b.nr, *val, b, 0); err != nil {
		return err
	}
	b.state = stateOK
	return nil
}

func (b *Binding) handleFwrd(env *envelope.Envelope) error {
	val, ok := env.Content.(*variable.Variable)
	if !ok {
		return estatus.Internal("FWRD carried no value")
	}
	if err := property.SetProperty(b.root, b.obj, b.schema, b.holder, b.nr, *val, b, 0); err != nil {
		return err
	}
	if env.Flags&envelope.Interthread != 0 {
		ack := envelope.New(envelope.CmdAck, 0, b.peerAddr)
		return b.sender.Send(b.obj, ack)
	}
	return nil
}

func (b *Binding) handleAck() error {
	if b.ackPending > 0 {
		b.ackPending--
	}
	if b.queued != nil && b.ackPending == 0 {
		v := b.queued
		b.queued = nil
		b.sendFwrd(v)
	}
	return nil
}

// handleRebind reissues this same binding's BIND request over a freshly
// reopened connection, in place: it reuses the existing self object and
// peer-facing state rather than attaching a second binding object
// alongside the one package conn already has memorized.
func (b *Binding) handleRebind() error {
	if b.remotePath == "" {
		return estatus.FailedPrecondition("binding has no remembered remote path to rebind")
	}
	b.state = stateBindingNow
	b.ackPending = 0
	b.queued = nil
	return b.sendBind(b.remotePath)
}

func stringVar(s string) *variable.Variable {
	v := &variable.Variable{}
	v.SetString(s, 0)
	return v
}

// encodeBindRequest packs the BIND parameter set that does not fit a
// single variable.Variable (property name, flags, and reply address)
// into one delimited string, carried as the envelope's content.
func encodeBindRequest(remoteProp string, flags Flags, peerAddr string) *variable.Variable {
	parts := []string{remoteProp, strconv.FormatUint(uint64(flags), 10), peerAddr}
	return stringVar(strings.Join(parts, "\x1f"))
}

func decodeBindRequest(content interface{}) (remoteProp string, flags Flags, peerAddr string, err error) {
	v, ok := content.(*variable.Variable)
	if !ok {
		return "", 0, "", estatus.Internal("BIND envelope carried no parameter set")
	}
	s, _ := v.GetString()
	parts := strings.SplitN(s, "\x1f", 3)
	if len(parts) != 3 {
		return "", 0, "", estatus.InvalidArgument("malformed BIND parameter set %q", s)
	}
	n, perr := strconv.ParseUint(parts[1], 10, 32)
	if perr != nil {
		return "", 0, "", estatus.InvalidArgument("malformed BIND flags %q", parts[1])
	}
	return parts[0], Flags(n), parts[2], nil
}
