// Package exoquery is the root of the runtime query engine: it ties
// together the schema catalog, the abstract SQL algebra, the select and
// mutation planners, the transaction script runtime, the access solver,
// the request context, and the GraphQL/JSON-RPC resolver glue described in
// spec.md.
package exoquery

import (
	"errors"
	"fmt"
)

// Kind classifies an error the way spec.md §7 does, so that the wire
// layer (package server) can decide how to report it and whether the
// transaction should roll back.
type Kind string

const (
	// KindValidation covers unknown fields, type mismatches, and exceeded
	// selection depth. Rejected before planning.
	KindValidation Kind = "validation"
	// KindAuthorization covers an access solver False decision or an
	// invalid JWT.
	KindAuthorization Kind = "authorization"
	// KindExpiredAuthentication covers a JWT past its exp claim.
	KindExpiredAuthentication Kind = "expired_authentication"
	// KindMissingArgument covers a required mutation argument that is
	// absent.
	KindMissingArgument Kind = "missing_argument"
	// KindCast covers a literal that cannot be coerced to a column type.
	KindCast Kind = "cast"
	// KindDatabase covers a driver/SQL error.
	KindDatabase Kind = "database"
	// KindTransaction covers finalize-after-finalize or a client
	// checkout failure.
	KindTransaction Kind = "transaction"
	// KindInternal covers programmer errors: index out of range,
	// impossible variant.
	KindInternal Kind = "internal"
)

// Sentinel decisions used with errors.Is, mirroring the Allow/Deny/Skip
// idiom the access package builds on.
var (
	// ErrNotAuthorized is wrapped by errors carrying KindAuthorization.
	ErrNotAuthorized = errors.New("exoquery: not authorized")
	// ErrExpired is wrapped by errors carrying KindExpiredAuthentication.
	ErrExpired = errors.New("exoquery: authentication expired")
)

// Error is the typed error carried across subsystem boundaries. Each
// subsystem constructs one with the appropriate Kind; the wire layer
// collapses it to a GraphQL/JSON-RPC error using UserMessage, never the raw
// Err, unless Displayable is set.
type Error struct {
	Kind Kind
	// Msg is a short, user-displayable description. Always safe to send
	// over the wire.
	Msg string
	// Err is the underlying cause, possibly carrying internal detail
	// (SQL text, driver error strings). Never sent over the wire unless
	// Displayable is true.
	Err error
	// Displayable marks Err's message as safe to forward verbatim.
	Displayable bool
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("exoquery: %s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("exoquery: %s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrNotAuthorized) and errors.Is(err, ErrExpired)
// work against a *Error without requiring the caller to inspect Kind.
func (e *Error) Is(target error) bool {
	switch {
	case target == ErrNotAuthorized:
		return e.Kind == KindAuthorization
	case target == ErrExpired:
		return e.Kind == KindExpiredAuthentication
	default:
		return false
	}
}

// UserMessage returns the message safe to forward over the wire, per
// spec.md §7: cast and SQL errors are sanitized to "Internal server error"
// by default; only messages explicitly tagged user-displayable pass
// through.
func (e *Error) UserMessage() string {
	switch e.Kind {
	case KindDatabase, KindCast, KindInternal, KindTransaction:
		if e.Displayable {
			return e.Msg
		}
		return "Internal server error"
	default:
		return e.Msg
	}
}

// NewValidationError reports an unknown field, type mismatch, or exceeded
// selection depth. Always user-displayable; these are rejected before
// planning runs.
func NewValidationError(msg string) *Error {
	return &Error{Kind: KindValidation, Msg: msg, Displayable: true}
}

// NewAuthorizationError reports an access solver False decision or an
// invalid JWT.
func NewAuthorizationError(msg string) *Error {
	if msg == "" {
		msg = "Not authorized"
	}
	return &Error{Kind: KindAuthorization, Msg: msg, Err: ErrNotAuthorized, Displayable: true}
}

// NewExpiredAuthenticationError reports a JWT past its exp claim, so
// clients can distinguish "refresh your token" from "you are not
// authorized".
func NewExpiredAuthenticationError() *Error {
	return &Error{Kind: KindExpiredAuthentication, Msg: "Authentication expired", Err: ErrExpired, Displayable: true}
}

// NewMissingArgumentError reports a required mutation argument that was
// not supplied.
func NewMissingArgumentError(argument string) *Error {
	return &Error{Kind: KindMissingArgument, Msg: fmt.Sprintf("missing required argument %q", argument), Displayable: true}
}

// NewCastError reports a literal that cannot be coerced to the target
// column type, including the offending value and type name.
func NewCastError(value any, targetType string) *Error {
	return &Error{
		Kind: KindCast,
		Msg:  fmt.Sprintf("cannot cast value %v to %s", value, targetType),
		Err:  fmt.Errorf("cast error: %v -> %s", value, targetType),
	}
}

// NewDatabaseError wraps a driver/SQL error with the failing operation's
// debug string. The caller (txscript) is responsible for rolling back.
func NewDatabaseError(op string, cause error) *Error {
	return &Error{Kind: KindDatabase, Msg: "database operation failed", Err: fmt.Errorf("%s: %w", op, cause)}
}

// NewTransactionError reports finalize-after-finalize or a client checkout
// failure: fatal to the request, non-fatal to the process.
func NewTransactionError(msg string) *Error {
	return &Error{Kind: KindTransaction, Msg: msg, Err: errors.New(msg)}
}

// NewInternalError reports a programmer error: index out of range,
// impossible variant. With config.Config.Debug set, package server panics
// on these instead of reporting them; otherwise they are reported with
// UserMessage's sanitized text.
func NewInternalError(cause error) *Error {
	return &Error{Kind: KindInternal, Msg: "internal error", Err: cause}
}

// IsKind reports whether err carries the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
