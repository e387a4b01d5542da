// Package services implements the LifecycleCoordinator and LocationPipeline
// (spec §4.4/§4.5): the journey and instance state machines, location
// ingest and statistics accumulation, and the rules that start, pause,
// resume, complete, and auto-archive a group journey. Every exported
// operation here returns a *Error carrying one of the kinds in spec §7, so
// pkg/api can map failures to HTTP status codes without re-deriving intent
// from error text.
package services

import "errors"

// Kind enumerates the error taxonomy from spec §7. The zero value is never
// used; every returned *Error carries one of the named kinds below.
type Kind string

const (
	KindInvalidInput      Kind = "InvalidInput"
	KindNotAuthorized     Kind = "NotAuthorized"
	KindNotAMember        Kind = "NotAMember"
	KindNotFound          Kind = "NotFound"
	KindConflict          Kind = "Conflict"
	KindInvalidTransition Kind = "InvalidTransition"
	KindNotYourInstance   Kind = "NotYourInstance"
	KindNotActive         Kind = "NotActive"
	KindAlreadyStarted    Kind = "AlreadyStarted"
	KindUnavailable       Kind = "Unavailable"
	KindServerError       Kind = "ServerError"
)

// Error is the single error type every coordinator and pipeline operation
// returns. Message must already be safe to show a caller per spec §7;
// pkg/api additionally passes it through pkg/redaction before writing it
// into an HTTP error body.
type Error struct {
	Kind    Kind
	Message string
	Field   string // set for InvalidInput; empty otherwise
}

func (e *Error) Error() string {
	if e.Field != "" {
		return string(e.Kind) + ": " + e.Field + ": " + e.Message
	}
	return string(e.Kind) + ": " + e.Message
}

// Is reports whether err is a *Error of the given kind, unwrapping as
// errors.As does.
func Is(err error, kind Kind) bool {
	var se *Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Kind == kind
}

// KindOf returns the kind of err if it is a *Error, or KindServerError
// otherwise — the fallback every unexpected error (a store outage, a bug)
// collapses to per spec §7's "ServerError catch-all".
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindServerError
}

func newErr(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// InvalidInput reports a request-shape or range validation failure on a
// specific field (spec §4.6: coordinate range checks, missing required
// fields).
func InvalidInput(field, message string) *Error {
	return &Error{Kind: KindInvalidInput, Field: field, Message: message}
}

// NotAuthorized reports that the caller is authenticated but lacks the role
// required for the operation (spec §4.5 startGroupJourney: CREATOR/ADMIN only).
func NotAuthorized(message string) *Error {
	return newErr(KindNotAuthorized, message)
}

// NotAMember reports that the caller is not a member of the group owning the
// resource (spec §4.1: membership is always checked against the store
// snapshot, never the cache alone).
func NotAMember(message string) *Error {
	return newErr(KindNotAMember, message)
}

// NotFound reports that the named resource does not exist.
func NotFound(message string) *Error {
	return newErr(KindNotFound, message)
}

// Conflict reports a collision with an existing resource or an active-state
// invariant (spec §4.5: an ACTIVE journey already exists; an active solo
// journey blocks start-my-instance).
func Conflict(message string) *Error {
	return newErr(KindConflict, message)
}

// InvalidTransition reports an attempted state change the instance's current
// status does not permit (spec §4.5: pausing a non-active instance).
func InvalidTransition(message string) *Error {
	return newErr(KindInvalidTransition, message)
}

// NotYourInstance reports that the instance exists but does not belong to
// the caller (spec §4.4).
func NotYourInstance(message string) *Error {
	return newErr(KindNotYourInstance, message)
}

// NotActive reports that an operation requiring an ACTIVE instance was
// attempted against one that is paused or terminal (spec §4.4: paused
// instances reject updateLocation).
func NotActive(message string) *Error {
	return newErr(KindNotActive, message)
}

// AlreadyStarted reports that the caller's instance for this journey is
// already ACTIVE (spec §4.5 startMyInstance).
func AlreadyStarted(message string) *Error {
	return newErr(KindAlreadyStarted, message)
}

// Unavailable reports that the store or an out-of-scope collaborator the
// operation depends on (identity verification) is transiently down (spec
// §7: "Store and auth outages become Unavailable").
func Unavailable(message string) *Error {
	return newErr(KindUnavailable, message)
}

// ServerErr is the catch-all for unexpected failures — a store error that
// is not a recognized constraint violation, a marshal failure, a bug. The
// message passed here must already be safe; callers typically pass a static
// string and rely on %w-wrapping via errors.Join for logging, never for the
// response body.
func ServerErr(message string) *Error {
	return newErr(KindServerError, message)
}
