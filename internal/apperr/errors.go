// Package apperr defines the error kinds shared by the episode domain.
//
// Every failure raised by an entity or the coordinator is an *Error carrying a
// Kind. Callers branch on the kind with errors.Is against the exported kind
// values, or with KindOf.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a domain failure
type Kind string

const (
	Validation           Kind = "validation"
	InvalidTransition    Kind = "invalid_transition"
	InvalidState         Kind = "invalid_state"
	AmountMismatch       Kind = "amount_mismatch"
	ExceedsRemaining     Kind = "exceeds_remaining"
	ExceedsCollected     Kind = "exceeds_collected"
	DuplicateReservation Kind = "duplicate_reservation"
	NotFound             Kind = "not_found"
	EmptyPrescription    Kind = "empty_prescription"
	InvalidAmount        Kind = "invalid_amount"
	AlreadyConfirmed     Kind = "already_confirmed"
	InvalidSchedule      Kind = "invalid_schedule"
	Internal             Kind = "internal"
)

var defaultMessages = map[Kind]string{
	Validation:           "request is invalid",
	InvalidTransition:    "operation not allowed in current status",
	InvalidState:         "referenced record is not in a usable state",
	AmountMismatch:       "total must equal self-pay plus insurance",
	ExceedsRemaining:     "amount must be less than the remaining balance",
	ExceedsCollected:     "refund must be less than the collected amount",
	DuplicateReservation: "patient already has a reservation at that time",
	NotFound:             "record not found",
	EmptyPrescription:    "prescription has no items",
	InvalidAmount:        "amount is invalid",
	AlreadyConfirmed:     "reservation is already confirmed",
	InvalidSchedule:      "scheduled time must be in the future",
	Internal:             "internal error",
}

// Error implements error so a bare Kind can be used as an errors.Is target
func (k Kind) Error() string { return string(k) }

// Message returns the stable default message for the kind
func (k Kind) Message() string {
	if msg, ok := defaultMessages[k]; ok {
		return msg
	}
	return string(k)
}

// Error is a classified domain error
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error returns the message, prefixed by the wrapped cause when present
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.Message()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the wrapped cause
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the same kind
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case Kind:
		return e.Kind == t
	case *Error:
		return e.Kind == t.Kind
	}
	return false
}

// New creates an error of the given kind
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf creates an error of the given kind with a formatted message
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the kind of err, or Internal when err is unclassified
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps a kind to the status code the API responds with
func HTTPStatus(kind Kind) int {
	switch kind {
	case NotFound:
		return http.StatusNotFound
	case Validation, InvalidAmount, InvalidSchedule:
		return http.StatusBadRequest
	case InvalidTransition, AlreadyConfirmed, DuplicateReservation, InvalidState:
		return http.StatusConflict
	case AmountMismatch, ExceedsRemaining, ExceedsCollected, EmptyPrescription:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the text safe to show an end user
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != Internal {
		if e.Message != "" {
			return e.Message
		}
		return e.Kind.Message()
	}
	return Internal.Message()
}
