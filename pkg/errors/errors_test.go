package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusFromError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unauthenticated", ErrUnauthenticated, http.StatusUnauthorized, CodeUnauthenticated},
		{"not a member", fmt.Errorf("list: %w", ErrNotAMember), http.StatusForbidden, CodeNotAMember},
		{"room not found", ErrRoomNotFound, http.StatusNotFound, CodeRoomNotFound},
		{"user not found", ErrUserNotFound, http.StatusNotFound, CodeUserNotFound},
		{"validation", Invalid("text", "must not be empty"), http.StatusBadRequest, CodeInvalidInput},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests, CodeRateLimited},
		{"store", Store("insert message", errors.New("connection reset")), http.StatusInternalServerError, CodeServerError},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, CodeServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, HTTPStatusFromError(tt.err))
			assert.Equal(t, tt.code, CodeFromError(tt.err))
		})
	}
}

func TestFromErrorCarriesField(t *testing.T) {
	apiErr := FromError(Invalid("name", "must be 1-80 characters"))

	assert.Equal(t, CodeInvalidInput, apiErr.Message)
	assert.Equal(t, "name", apiErr.Field)
	assert.Equal(t, "must be 1-80 characters", apiErr.Reason)
	assert.Equal(t, http.StatusBadRequest, apiErr.Code)
}

func TestStoreKeepsCause(t *testing.T) {
	cause := errors.New("deadlock detected")
	err := Store("append message", cause)

	assert.ErrorIs(t, err, ErrStore)
	assert.ErrorIs(t, err, cause)
	assert.Nil(t, Store("noop", nil))
}
