// Package apperr holds the error taxonomy shared by all handlers and the
// translator that turns any error into a response envelope.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"

	"github.com/clinic/clinic/internal/platform/response"
)

// Kind classifies an error for status mapping.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindInvalidInput
	KindDuplicate
	KindConstraint
	KindUnauthenticated
	KindForbidden
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindInvalidInput:
		return "invalid_input"
	case KindDuplicate:
		return "duplicate"
	case KindConstraint:
		return "constraint"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Status returns the HTTP status associated with the kind.
func (k Kind) Status() int {
	switch k {
	case KindValidation, KindInvalidInput, KindDuplicate, KindConstraint:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified application error. Message is safe to show to clients.
type Error struct {
	Kind    Kind
	Message string
	Fields  []response.FieldError
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// StatusCode implements the status carrier used by the translator.
func (e *Error) StatusCode() int { return e.Kind.Status() }

func newErr(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(message string, fields ...response.FieldError) *Error {
	return &Error{Kind: KindValidation, Message: message, Fields: fields}
}

func InvalidInput(format string, args ...interface{}) *Error {
	return newErr(KindInvalidInput, format, args...)
}

func Duplicate(format string, args ...interface{}) *Error {
	return newErr(KindDuplicate, format, args...)
}

func Constraint(format string, args ...interface{}) *Error {
	return newErr(KindConstraint, format, args...)
}

func Unauthenticated(format string, args ...interface{}) *Error {
	return newErr(KindUnauthenticated, format, args...)
}

func Forbidden(format string, args ...interface{}) *Error {
	return newErr(KindForbidden, format, args...)
}

func NotFound(format string, args ...interface{}) *Error {
	return newErr(KindNotFound, format, args...)
}

// Wrap attaches a cause to a classified error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf reports the kind of err, looking through wrapping.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// OrNotFound turns a missing-row store error into a NotFound error carrying
// message. Other errors pass through FromStore.
func OrNotFound(err error, message string) error {
	if err == nil {
		return nil
	}
	if IsNotFound(err) {
		return Wrap(KindNotFound, message, err)
	}
	return FromStore(err)
}

// IsNotFound reports whether err is a NotFound error or a missing-row store
// error.
func IsNotFound(err error) bool {
	return err != nil && (errors.Is(err, pgx.ErrNoRows) || Is(err, KindNotFound))
}
