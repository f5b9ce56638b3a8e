// Package apperr is the typed error taxonomy returned by the booking engine.
// Every failure is scoped to the operation that raised it; none is fatal.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	InvalidState          Kind = "InvalidState"
	NotFound              Kind = "NotFound"
	Conflict              Kind = "Conflict"
	ValidationError       Kind = "ValidationError"
	PaymentBlocked        Kind = "PaymentBlocked"
	MissingEvidence       Kind = "MissingEvidence"
	NotAssignedContractor Kind = "NotAssignedContractor"
	Forbidden             Kind = "Forbidden"
	Internal              Kind = "Internal"
)

// Machine readable codes that refine a Kind.
const (
	CodeDuplicateBid         = "duplicate_bid"
	CodeBidNoLongerAvailable = "bid_no_longer_available"
	CodeStaleVersion         = "stale_version"
	CodePendingReschedule    = "pending_reschedule"
	CodeConfirmationRequired = "confirmation_required"
	CodeAlreadyResolved      = "already_resolved"
	CodeUnresolvedRequest    = "unresolved_change_request"
	CodeAuthorizationFailed  = "authorization_failed"
)

type Error struct {
	Kind    Kind   `json:"kind"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s(%s): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind and, when the target sets one,
// the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func WithCode(kind Kind, code string, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

var (
	ErrDuplicateBid         = &Error{Kind: Conflict, Code: CodeDuplicateBid, Message: "contractor already has a pending bid on this booking"}
	ErrBidNoLongerAvailable = &Error{Kind: Conflict, Code: CodeBidNoLongerAvailable, Message: "bid is no longer available"}
	ErrStaleVersion         = &Error{Kind: Conflict, Code: CodeStaleVersion, Message: "booking was modified concurrently"}
)

// KindOf returns the kind of the first *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Retryable reports whether the caller lost a race and may re-fetch and retry.
func Retryable(err error) bool {
	return Is(err, Conflict)
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case ValidationError, MissingEvidence:
		return http.StatusBadRequest
	case InvalidState:
		return http.StatusUnprocessableEntity
	case PaymentBlocked:
		return http.StatusPreconditionFailed
	case NotAssignedContractor, Forbidden:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// Body renders err for an API response. Internal errors keep their detail out
// of the response.
func Body(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: Internal, Message: "something went wrong"}
}
