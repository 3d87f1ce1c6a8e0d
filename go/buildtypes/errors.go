// Package buildtypes defines the error taxonomy shared by the config
// registry, the two build engines, the job registry, and the artifact
// dispatcher (spec §7). Kinds are represented as grpc status codes so
// that a transport layered on top of this module can translate them to
// wire errors without a second mapping table, even though that transport
// is outside this module's scope.
package buildtypes

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error wraps an underlying cause with one of the four taxonomy kinds.
// Cancelled is deliberately not representable here: per §7 it is only
// ever surfaced as a terminal Failed BuildStatus on the log stream, never
// as a returned error.
type Error struct {
	Kind  codes.Code
	cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

// GRPCStatus lets errors.As/status.FromError recover the code directly.
func (e *Error) GRPCStatus() *status.Status {
	return status.New(e.Kind, e.cause.Error())
}

func newf(kind codes.Code, format string, args ...interface{}) error {
	return &Error{Kind: kind, cause: fmt.Errorf(format, args...)}
}

// InvalidArgument wraps an unrecognized or ambiguous request parameter
// (unknown config/device/fragment/variant, ambiguous branch resolution).
func InvalidArgument(format string, args ...interface{}) error {
	return newf(codes.InvalidArgument, format, args...)
}

// NotFound wraps a reference to an unknown build id or config name.
func NotFound(format string, args ...interface{}) error {
	return newf(codes.NotFound, format, args...)
}

// FailedPrecondition wraps "build already finished" / "a build is
// already running" conditions.
func FailedPrecondition(format string, args ...interface{}) error {
	return newf(codes.FailedPrecondition, format, args...)
}

// Internal wraps spawn/IO/git/extraction/JSON failures not caused by
// user input.
func Internal(format string, args ...interface{}) error {
	return newf(codes.Internal, format, args...)
}

// Wrap attaches a kind to an existing error without reformatting its
// message, for propagating a lower-level failure (git, exec, os) as a
// specific taxonomy kind.
func Wrap(kind codes.Code, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, cause: err}
}

// KindOf returns the taxonomy kind of err, or codes.Unknown if err was
// not produced by this package.
func KindOf(err error) codes.Code {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return codes.Unknown
}

// Is reports whether err carries the given taxonomy kind.
func Is(err error, kind codes.Code) bool {
	return KindOf(err) == kind
}
