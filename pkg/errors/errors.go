package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrNotAMember      = errors.New("not a member")
	ErrRoomNotFound    = errors.New("room not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrRateLimited     = errors.New("rate limited")
	ErrStore           = errors.New("store error")
)

// Machine-readable codes returned in the "error" field of every failure.
const (
	CodeUnauthenticated = "unauthenticated"
	CodeNotAMember      = "not_a_member"
	CodeRoomNotFound    = "room_not_found"
	CodeUserNotFound    = "user_not_found"
	CodeInvalidInput    = "invalid_input"
	CodeRateLimited     = "rate_limited"
	CodeServerError     = "server_error"
)

// ValidationError carries the field-level reason for an ErrInvalidInput.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Store wraps a persistence failure so callers can tell it apart from
// domain errors while the cause stays available for logging.
func Store(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStore, err)
}

type APIError struct {
	Message string `json:"error"`
	Field   string `json:"field,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Code    int    `json:"-"`
}

func (e *APIError) Error() string {
	return e.Message
}

func NewAPIError(message string, code int) *APIError {
	return &APIError{
		Message: message,
		Code:    code,
	}
}

// FromError maps any error onto the wire representation. Unknown errors
// are reported as a generic server error.
func FromError(err error) *APIError {
	apiErr := NewAPIError(CodeFromError(err), HTTPStatusFromError(err))

	var verr *ValidationError
	if errors.As(err, &verr) {
		apiErr.Field = verr.Field
		apiErr.Reason = verr.Reason
	}
	return apiErr
}

func CodeFromError(err error) string {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return CodeUnauthenticated
	case errors.Is(err, ErrNotAMember):
		return CodeNotAMember
	case errors.Is(err, ErrRoomNotFound):
		return CodeRoomNotFound
	case errors.Is(err, ErrUserNotFound):
		return CodeUserNotFound
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited
	default:
		return CodeServerError
	}
}

func HTTPStatusFromError(err error) int {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotAMember):
		return http.StatusForbidden
	case errors.Is(err, ErrRoomNotFound), errors.Is(err, ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
