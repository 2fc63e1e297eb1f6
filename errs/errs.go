// Package errs defines the typed error kinds the orchestration core
// raises, per the error handling policy table: each kind carries a
// stable code from Catalogue, a formatted message and an optional
// wrapped cause, so every step failure logs consistently and callers
// can dispatch on kind without string matching.
package errs

import "fmt"

// Kind tags which policy bucket an error belongs to.
type Kind string

const (
	KindDatabase    Kind = "DatabaseError"
	KindServer      Kind = "ServerError"
	KindGroup       Kind = "GroupError"
	KindSharding    Kind = "ShardingError"
	KindCredential  Kind = "CredentialError"
	KindUuid        Kind = "UuidError"
	KindInvalidGtid Kind = "InvalidGtidError"
	KindTimeout     Kind = "TimeoutError"
)

// Error is the concrete error type for every kind above. Replication
// primitive errors (InvalidGtidError, TimeoutError) bubble to the step
// as ServerError per spec; callers construct that translation with
// AsServerError.
type Error struct {
	Kind  Kind
	Code  string
	msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.msg, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// StepFatal reports whether this error, left unhandled, must fail the
// procedure step that produced it. Every kind here is step-fatal by
// policy; the distinction lives in what the executor does afterwards
// (lock release, pool purge, suspect-marking), not in this bit.
func (e *Error) StepFatal() bool { return true }

// AsServerError implements the "bubbles as ServerError for the step"
// rule for InvalidGtidError and TimeoutError.
func (e *Error) AsServerError() *Error {
	if e.Kind == KindInvalidGtid || e.Kind == KindTimeout {
		return &Error{Kind: KindServer, Code: e.Code, msg: e.msg, Cause: e}
	}
	return e
}

func new_(kind Kind, code, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Code: code, msg: fmt.Sprintf(format, args...)}
}

func wrap(kind Kind, code string, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Code: code, msg: fmt.Sprintf(format, args...), Cause: cause}
}

func Database(code string, cause error, format string, args ...interface{}) *Error {
	return wrap(KindDatabase, code, cause, format, args...)
}

func Server(code string, format string, args ...interface{}) *Error {
	return new_(KindServer, code, format, args...)
}

func Group(code string, format string, args ...interface{}) *Error {
	return new_(KindGroup, code, format, args...)
}

func Sharding(code string, format string, args ...interface{}) *Error {
	return new_(KindSharding, code, format, args...)
}

func Credential(code string, cause error, format string, args ...interface{}) *Error {
	return wrap(KindCredential, code, cause, format, args...)
}

func Uuid(code string, format string, args ...interface{}) *Error {
	return new_(KindUuid, code, format, args...)
}

func InvalidGtid(code string, format string, args ...interface{}) *Error {
	return new_(KindInvalidGtid, code, format, args...)
}

func Timeout(code string, format string, args ...interface{}) *Error {
	return new_(KindTimeout, code, format, args...)
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}
