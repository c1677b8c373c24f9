// Package envelope implements the message unit routed between object
// trees, threads, and connections: a command, a flag set, a
// packed target/source path, and optional content/context payloads.
package envelope

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/nestybox/eobjects-go/estatus"
	"github.com/nestybox/eobjects-go/variable"
)

// Command is one of the numeric envelope commands the framework routes.
type Command int32

const (
	CmdNone Command = iota
	CmdBind
	CmdBindReply
	CmdUnbind
	CmdSrvUnbind
	CmdFwrd
	CmdAck
	CmdRebind
	CmdTimer
	CmdSetProperty
	CmdNoTarget
	CmdExitThread
)

// Flags are the per-envelope bit flags.
type Flags uint32

const (
	NoReply Flags = 1 << iota
	NoErrors
	NoResolve
	Interthread
	KeepContent
	KeepContext
	DeleteContent
	DeleteContext
	NoNewSourceOix
	HasContent
	HasContext
	CanBeAdopted
)

// wireMask is the subset of flags the serializer carries on the wire; the
// rest (KeepContent/KeepContext/DeleteContent/DeleteContext) are local
// memory-management hints with no meaning to a remote peer.
const wireMask = NoReply | NoErrors | NoResolve | Interthread | HasContent | HasContext | CanBeAdopted | NoNewSourceOix

// Envelope is the unit routed by package route, queued by package
// thread, and encoded by package conn.
type Envelope struct {
	Command Command
	Flags   Flags
	Path    *PathBuffer

	// Content and Context carry the envelope's payload and metadata.
	// Most commands in this framework (FWRD, ACK, SET_PROPERTY,
	// BIND_REPLY) carry a single variable.Variable; Serialize/Deserialize
	// only know how to encode that shape.
	Content interface{}
	Context interface{}
}

// New builds a fresh envelope addressed to target, with an empty source
// (package route fills it in as the envelope is augmented hop by hop).
func New(cmd Command, flags Flags, target string) *Envelope {
	return &Envelope{Command: cmd, Flags: flags, Path: NewPathBuffer(target, "")}
}

// Clone makes an independent copy with its own path buffer, used when an
// envelope fans out to more than one destination thread.
func (e *Envelope) Clone() *Envelope {
	return &Envelope{
		Command: e.Command,
		Flags:   e.Flags,
		Path:    e.Path.Clone(),
		Content: e.Content,
		Context: e.Context,
	}
}

// AugmentSource prepends this hop's reply address to the source path,
// unless NoNewSourceOix is set.
func (e *Envelope) AugmentSource(token string) {
	if e.Flags&NoNewSourceOix != 0 {
		return
	}
	e.Path.PrependSource(token)
}

// NoTargetReply builds the NO_TARGET reply toward orig's source, carrying
// orig's context, unless orig has NoReply set.
func NoTargetReply(orig *Envelope) *Envelope {
	if orig.Flags&NoReply != 0 {
		return nil
	}
	reply := &Envelope{
		Command: CmdNoTarget,
		Flags:   orig.Flags & (NoReply | NoErrors),
		Path:    NewPathBuffer(orig.Path.Source(), ""),
		Context: orig.Context,
	}
	if orig.Context != nil {
		reply.Flags |= HasContext
	}
	return reply
}

// Serialize encodes the envelope: command, masked flags, target
// length+bytes, source length+bytes (omitted when NoReply is set), then
// content and context. Content/Context must be
// nil or *variable.Variable.
func Serialize(e *Envelope) ([]byte, error) {
	var buf bytes.Buffer
	writeVarint(&buf, int64(e.Command))
	writeVarint(&buf, int64(e.Flags&wireMask))
	writeString(&buf, e.Path.Target())
	if e.Flags&NoReply == 0 {
		writeString(&buf, e.Path.Source())
	}
	if err := writePayload(&buf, e.Content); err != nil {
		return nil, err
	}
	if err := writePayload(&buf, e.Context); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Deserialize decodes an envelope previously produced by Serialize.
// An estatus.Unavailable error is returned when buf does not yet hold a
// whole envelope, so a socket reader can yield rather than block.
func Deserialize(buf []byte) (*Envelope, int, error) {
	r := bytes.NewReader(buf)
	start := r.Len()

	cmd, ok := readVarint(r)
	if !ok {
		return nil, 0, incomplete()
	}
	flagBits, ok := readVarint(r)
	if !ok {
		return nil, 0, incomplete()
	}
	flags := Flags(flagBits)

	target, ok := readString(r)
	if !ok {
		return nil, 0, incomplete()
	}

	var source string
	if flags&NoReply == 0 {
		source, ok = readString(r)
		if !ok {
			return nil, 0, incomplete()
		}
	}

	content, err := readPayload(r)
	if err != nil {
		return nil, 0, err
	}
	context, err := readPayload(r)
	if err != nil {
		return nil, 0, err
	}

	e := &Envelope{
		Command: Command(cmd),
		Flags:   flags,
		Path:    NewPathBuffer(target, source),
		Content: content,
		Context: context,
	}
	consumed := start - r.Len()
	return e, consumed, nil
}

func incomplete() error {
	return estatus.Unavailable("no whole envelope buffered yet")
}

func writeVarint(buf *bytes.Buffer, v int64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutVarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func readVarint(r *bytes.Reader) (int64, bool) {
	v, err := binary.ReadVarint(r)
	if err != nil {
		return 0, false
	}
	return v, true
}

func writeString(buf *bytes.Buffer, s string) {
	writeVarint(buf, int64(len(s)))
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, bool) {
	n, ok := readVarint(r)
	if !ok || n < 0 {
		return "", false
	}
	b := make([]byte, n)
	if _, err := readFull(r, b); err != nil {
		return "", false
	}
	return string(b), true
}

func readFull(r *bytes.Reader, b []byte) (int, error) {
	total := 0
	for total < len(b) {
		n, err := r.Read(b[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Payload wire tags. payloadNone marks no payload at all; the rest carry
// a variable.Variable by its own type, so Object/Pointer (which have no
// wire representation) fall through to the default error case.
const (
	payloadNone byte = iota
	payloadUndefined
	payloadLong
	payloadDouble
	payloadString
)

// writePayload encodes payload by its own variable.Type rather than
// stringifying it, so a Double's digits-after-point survives the
// round-trip instead of collapsing through a generic string reparse:
// floats are written as their raw IEEE-754 bits plus the digits tag.
func writePayload(buf *bytes.Buffer, payload interface{}) error {
	if payload == nil {
		buf.WriteByte(payloadNone)
		return nil
	}
	v, ok := payload.(*variable.Variable)
	if !ok {
		return estatus.InvalidArgument("envelope payload of type %T is not serializable", payload)
	}
	switch v.Type() {
	case variable.Undefined:
		buf.WriteByte(payloadUndefined)
	case variable.Long:
		buf.WriteByte(payloadLong)
		writeVarint(buf, v.GetLong())
	case variable.Double:
		buf.WriteByte(payloadDouble)
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], math.Float64bits(v.GetDouble()))
		buf.Write(tmp[:])
		buf.WriteByte(byte(v.Digits()))
	case variable.String:
		buf.WriteByte(payloadString)
		s, _ := v.GetString()
		writeString(buf, s)
	default:
		return estatus.InvalidArgument("envelope payload: variable type %d is not serializable", v.Type())
	}
	return nil
}

func readPayload(r *bytes.Reader) (interface{}, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return nil, incomplete()
	}

	v := &variable.Variable{}
	switch tag {
	case payloadNone:
		return nil, nil
	case payloadUndefined:
	case payloadLong:
		n, ok := readVarint(r)
		if !ok {
			return nil, incomplete()
		}
		v.SetLong(n)
	case payloadDouble:
		var tmp [8]byte
		if _, err := readFull(r, tmp[:]); err != nil {
			return nil, incomplete()
		}
		digs, err := r.ReadByte()
		if err != nil {
			return nil, incomplete()
		}
		v.SetDouble(math.Float64frombits(binary.BigEndian.Uint64(tmp[:])), int(digs))
	case payloadString:
		s, ok := readString(r)
		if !ok {
			return nil, incomplete()
		}
		v.SetString(s, 0)
	default:
		return nil, estatus.InvalidArgument("envelope payload: unknown wire tag %d", tag)
	}
	return v, nil
}
