package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the stable, machine-checkable reason attached to every error
// response. Kinds never change once published; messages may.
type Kind string

const (
	NotFound           Kind = "not_found"
	Expired            Kind = "coupon_expired"
	UsageLimitExceeded Kind = "usage_limit_exceeded"
	NotApplicable      Kind = "not_applicable"
	MinimumNotMet      Kind = "minimum_not_met"
	InvalidState       Kind = "invalid_state"
	Validation         Kind = "validation_error"
	Unauthorized       Kind = "unauthorized"
	Forbidden          Kind = "forbidden"
	Conflict           Kind = "conflict"
	GatewayUnavailable Kind = "gateway_unavailable"
	RefundFailed       Kind = "refund_failed"
	Internal           Kind = "internal"
)

// Error represents an application error
type Error struct {
	Kind    Kind   `json:"reason"`
	Message string `json:"error"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, apperr.E(apperr.NotFound))
// works without comparing messages.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New creates a new Error
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a new Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// E returns a bare error of the given kind, for use as an errors.Is target.
func E(kind Kind) *Error {
	return &Error{Kind: kind}
}

// KindOf reports the kind of the first *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return Internal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps a kind onto the response status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case NotFound:
		return http.StatusNotFound
	case Expired, UsageLimitExceeded, NotApplicable, MinimumNotMet, InvalidState, Validation:
		return http.StatusBadRequest
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case Conflict:
		return http.StatusConflict
	case GatewayUnavailable, RefundFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Response is the JSON body written for an error. Internal errors never leak
// their cause to the caller.
func Response(err error) (int, *Error) {
	var appErr *Error
	if errors.As(err, &appErr) {
		if appErr.Kind == Internal {
			return http.StatusInternalServerError, New(Internal, "internal server error")
		}
		return HTTPStatus(appErr.Kind), &Error{Kind: appErr.Kind, Message: appErr.Message}
	}
	return http.StatusInternalServerError, New(Internal, "internal server error")
}
