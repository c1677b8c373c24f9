// Package estatus maps the framework's error kinds onto
// google.golang.org/grpc's codes/status types: status.Errorf(codes.NotFound,
// ...) rather than ad hoc errors.New, so every cross-component failure
// carries a stable, switchable code alongside its message.
package estatus

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind enumerates the framework's error kinds. Most of the time
// callers reach for the constructor functions below instead of this type
// directly; Kind exists so tests and logging can print a stable label.
type Kind codes.Code

const (
	Success                Kind = Kind(codes.OK)
	Generic                Kind = Kind(codes.Unknown)
	WritingObjectFailed    Kind = Kind(codes.Aborted)
	ReadingObjectFailed    Kind = Kind(codes.DataLoss)
	NoClassPropertySupport Kind = Kind(codes.Unimplemented)
	NameMappingFailed      Kind = Kind(codes.FailedPrecondition)
	NameAlreadyMapped      Kind = Kind(codes.AlreadyExists)
	NoSimpleProperty       Kind = Kind(codes.NotFound)
	StreamFloatError       Kind = Kind(codes.InvalidArgument)
	NoNewConnection        Kind = Kind(codes.Unavailable)
	NoWholeMessagesToRead  Kind = Kind(codes.ResourceExhausted)
	StreamEnd              Kind = Kind(codes.OutOfRange)
)

// Error wraps a *status.Status so callers can both treat it as a plain
// error and recover the structured code via Code()/Kind().
type Error struct {
	st *status.Status
}

func (e *Error) Error() string { return e.st.Message() }

// Code returns the underlying gRPC code.
func (e *Error) Code() codes.Code { return e.st.Code() }

// Kind returns the framework-level error kind for this error.
func (e *Error) Kind() Kind { return Kind(e.st.Code()) }

// Status returns the wrapped *status.Status, e.g. for gRPC boundary reuse.
func (e *Error) Status() *status.Status { return e.st }

func newf(code codes.Code, format string, args ...interface{}) *Error {
	return &Error{st: status.Newf(code, format, args...)}
}

// NotFound reports a handle, name, or property lookup failure.
func NotFound(format string, args ...interface{}) error {
	return newf(codes.NotFound, format, args...)
}

// AlreadyExists reports a name-already-mapped or duplicate-registration
// condition.
func AlreadyExists(format string, args ...interface{}) error {
	return newf(codes.AlreadyExists, format, args...)
}

// Internal reports writing/reading-object-failed and other conditions the
// caller cannot recover from locally.
func Internal(format string, args ...interface{}) error {
	return newf(codes.Internal, format, args...)
}

// InvalidArgument reports malformed input (e.g. a stream float-decode
// error).
func InvalidArgument(format string, args ...interface{}) error {
	return newf(codes.InvalidArgument, format, args...)
}

// Unavailable reports a transport condition: no new connection, a closed
// socket, or "no whole messages to read yet".
func Unavailable(format string, args ...interface{}) error {
	return newf(codes.Unavailable, format, args...)
}

// Unimplemented reports no-class-property-support (a class was never
// registered with the process registry).
func Unimplemented(format string, args ...interface{}) error {
	return newf(codes.Unimplemented, format, args...)
}

// FailedPrecondition reports a name-mapping failure (e.g. mapping into a
// namespace that does not exist along the requested scope).
func FailedPrecondition(format string, args ...interface{}) error {
	return newf(codes.FailedPrecondition, format, args...)
}

// Is reports whether err is an *Error carrying the given kind.
func Is(err error, kind Kind) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	return e.Kind() == kind
}
