package core

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies verification failures.
type Kind string

const (
	KindInvalidInput      Kind = "invalid_input"
	KindWidgetUnavailable Kind = "widget_unavailable"
	KindDispatchFailed    Kind = "dispatch_failed"
	KindInvalidCode       Kind = "invalid_code"
	KindHandleExpired     Kind = "handle_expired"
	// KindConfirmFailed covers confirm errors the provider did not classify
	// (transport failures, 5xx). The flow returns to code collection.
	KindConfirmFailed Kind = "confirm_failed"
)

// Error carries a Kind and the underlying cause. Two Errors match under
// errors.Is when the target has no cause and the kinds are equal, so
// errors.Is(err, ErrInvalidCode) works for any wrapped invalid-code failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "phoneverify: " + string(e.Kind)
	}
	return "phoneverify: " + string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Err == nil && t.Kind == e.Kind
}

var (
	ErrInvalidInput      = &Error{Kind: KindInvalidInput}
	ErrWidgetUnavailable = &Error{Kind: KindWidgetUnavailable}
	ErrDispatchFailed    = &Error{Kind: KindDispatchFailed}
	ErrInvalidCode       = &Error{Kind: KindInvalidCode}
	ErrHandleExpired     = &Error{Kind: KindHandleExpired}
	ErrConfirmFailed     = &Error{Kind: KindConfirmFailed}
)

// Command rejections. None of these change the session state.
var (
	ErrBusy           = errors.New("phoneverify: a provider call is in flight")
	ErrCooldownActive = errors.New("phoneverify: resend cooldown active")
	ErrInvalidState   = errors.New("phoneverify: command not allowed in current state")
	ErrResendRequired = errors.New("phoneverify: confirmation handle consumed, resend required")
	ErrQuotaExceeded  = errors.New("phoneverify: dispatch quota exceeded")
	ErrCancelled      = errors.New("phoneverify: flow cancelled")
	ErrFlowNotFound   = errors.New("phoneverify: flow not found")
)

func newError(kind Kind, err error) *Error { return &Error{Kind: kind, Err: err} }

func invalidInput(format string, args ...any) *Error {
	return newError(KindInvalidInput, fmt.Errorf(format, args...))
}

// KindOf returns the Kind of err, or "" when err is not a classified failure.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// ErrorCode maps err to the short snake_case code adapters return to clients.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	if k := KindOf(err); k != "" {
		return string(k)
	}
	switch {
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrCooldownActive):
		return "cooldown_active"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrResendRequired):
		return "resend_required"
	case errors.Is(err, ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	case errors.Is(err, ErrFlowNotFound):
		return "flow_not_found"
	}
	return "internal_error"
}

// HTTPStatus maps err to the status adapters send with its ErrorCode.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInvalidInput, KindInvalidCode, KindWidgetUnavailable:
		return http.StatusBadRequest
	case KindHandleExpired:
		return http.StatusGone
	case KindDispatchFailed, KindConfirmFailed:
		return http.StatusBadGateway
	}
	switch {
	case errors.Is(err, ErrFlowNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrCooldownActive), errors.Is(err, ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrBusy), errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrResendRequired), errors.Is(err, ErrCancelled):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
