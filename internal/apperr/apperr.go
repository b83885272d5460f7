// Package apperr defines the closed error taxonomy for the deployment core.
//
// Every failure that crosses a component boundary (store adapter, lifecycle
// service, request dispatcher) is one of the kinds below. Raw driver or
// broker errors never escape; they are wrapped into a Database error with
// the underlying detail held in the Private field, which is logged locally
// but stripped before a reply leaves the service.
//
// Use KindOf or HasKind to dispatch on the discriminant:
//
//	if apperr.HasKind(err, apperr.KindConflict) {
//	    // retry with a fresh suffix
//	}
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind is the discriminant of the error taxonomy.
type Kind int

const (
	// KindUnknown marks an error that did not originate from this taxonomy.
	KindUnknown Kind = iota

	// KindBadRequest marks malformed input or an invalid update.
	KindBadRequest

	// KindForbidden marks an invariant violation: re-registration of an
	// already registered resource, an inconsistent placement combination,
	// or a reference to a collaborator that is not actually hosted here.
	KindForbidden

	// KindNotFound marks a resource that does not exist.
	KindNotFound

	// KindDeleted marks a resource that exists but has been soft-deleted.
	// It is NotFound-flavoured: callers that only care about absence can
	// treat it as KindNotFound via HasKind.
	KindDeleted

	// KindConflict marks a duplicate id on creation.
	KindConflict

	// KindDatabase marks a failed store operation. The public message is
	// generic; the driver detail lives in Private.
	KindDatabase
)

// String returns the canonical name of the kind.
func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "BadRequest"
	case KindForbidden:
		return "Forbidden"
	case KindNotFound:
		return "NotFound"
	case KindDeleted:
		return "NotFound.IsDeleted"
	case KindConflict:
		return "Conflict"
	case KindDatabase:
		return "DatabaseError"
	default:
		return "Unknown"
	}
}

// Error is the single error type of the taxonomy.
//
// Public is safe to send to external callers. Private carries diagnostic
// detail (driver errors, SQL state) and must never leave the process except
// through the operator-facing error topic and local logs.
type Error struct {
	Kind    Kind
	Public  string
	Private string
	Status  int

	// DeletedAt is set for KindDeleted and records when the resource was
	// soft-deleted, so callers can report the age of the tombstone.
	DeletedAt *time.Time
}

// Error implements the error interface. It includes the private detail so
// local logs are useful; wire-facing code must call Censor first.
func (e *Error) Error() string {
	if e.Private != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Public, e.Private)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Public)
}

// Is reports whether target is an *Error of the same kind. This lets
// errors.Is(err, &Error{Kind: KindConflict}) work, though HasKind is the
// idiomatic check.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// Censor returns a copy safe for external callers: the private detail is
// stripped and the deletion timestamp retained (it is public information).
func (e *Error) Censor() *Error {
	return &Error{
		Kind:      e.Kind,
		Public:    e.Public,
		Status:    e.Status,
		DeletedAt: e.DeletedAt,
	}
}

// BadRequest builds a KindBadRequest error.
func BadRequest(format string, args ...any) *Error {
	return &Error{
		Kind:   KindBadRequest,
		Public: fmt.Sprintf(format, args...),
		Status: http.StatusBadRequest,
	}
}

// Forbidden builds a KindForbidden error.
func Forbidden(format string, args ...any) *Error {
	return &Error{
		Kind:   KindForbidden,
		Public: fmt.Sprintf(format, args...),
		Status: http.StatusForbidden,
	}
}

// NotFound builds a KindNotFound error.
func NotFound(format string, args ...any) *Error {
	return &Error{
		Kind:   KindNotFound,
		Public: fmt.Sprintf(format, args...),
		Status: http.StatusNotFound,
	}
}

// Deleted builds a KindDeleted error for a resource soft-deleted at the
// given time. The public message reports how long ago the deletion happened.
func Deleted(resource, id string, deletedAt time.Time) *Error {
	at := deletedAt
	return &Error{
		Kind: KindDeleted,
		Public: fmt.Sprintf("%s %q was deleted %s ago", resource, id,
			time.Since(deletedAt).Round(time.Second)),
		Status:    http.StatusNotFound,
		DeletedAt: &at,
	}
}

// Conflict builds a KindConflict error.
func Conflict(format string, args ...any) *Error {
	return &Error{
		Kind:   KindConflict,
		Public: fmt.Sprintf(format, args...),
		Status: http.StatusConflict,
	}
}

// Database wraps a store failure. The public message stays generic; err
// becomes the private diagnostic detail.
func Database(public string, err error) *Error {
	e := &Error{
		Kind:   KindDatabase,
		Public: public,
		Status: http.StatusInternalServerError,
	}
	if err != nil {
		e.Private = err.Error()
	}
	return e
}

// KindOf returns the kind of err, or KindUnknown if err is not from this
// taxonomy (including nil).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// HasKind reports whether err carries the given kind. KindNotFound matches
// both plain NotFound and IsDeleted errors, since a soft-deleted resource
// is absent for normal operations.
func HasKind(err error, kind Kind) bool {
	k := KindOf(err)
	if k == kind {
		return true
	}
	return kind == KindNotFound && k == KindDeleted
}

// From returns err as a taxonomy error, wrapping foreign errors into a
// generic Database error so no raw failure crosses a boundary unclassified.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Database("internal error", err)
}
