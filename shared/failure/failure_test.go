package failure_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mlaku/shared/failure"
)

func TestFailure_Error(t *testing.T) {
	f := &failure.Failure{Code: http.StatusBadRequest, Message: "test error message"}

	assert.Equal(t, "test error message", f.Error())
}

func TestTaxonomyCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{name: "validation", err: failure.Validation("phone is required"), code: http.StatusBadRequest},
		{name: "bad request from string", err: failure.BadRequestFromString("bad"), code: http.StatusBadRequest},
		{name: "auth", err: failure.Unauthorized("invalid credentials"), code: http.StatusUnauthorized},
		{name: "authorization", err: failure.Forbidden("forbidden"), code: http.StatusForbidden},
		{name: "not found", err: failure.NotFound("trip not found"), code: http.StatusNotFound},
		{name: "conflict", err: failure.Conflict("email already registered"), code: http.StatusConflict},
		{name: "too many requests", err: failure.TooManyRequests("slow down"), code: http.StatusTooManyRequests},
		{name: "internal", err: failure.InternalError(errors.New("boom")), code: http.StatusInternalServerError},
		{name: "plain error", err: errors.New("boom"), code: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, failure.GetCode(tt.err))
		})
	}
}

func TestNilConstructors(t *testing.T) {
	assert.NoError(t, failure.BadRequest(nil))
	assert.NoError(t, failure.InternalError(nil))
}

func TestGetCode_Wrapped(t *testing.T) {
	err := fmt.Errorf("failed to create booking: %w", failure.Conflict("trip is full"))

	assert.Equal(t, http.StatusConflict, failure.GetCode(err))
}

func TestFrom(t *testing.T) {
	err := fmt.Errorf("wrap: %w", failure.Validation("invalid request",
		failure.FieldError{Field: "email", Message: "email must be a valid email address"}))

	fail, ok := failure.From(err)
	require.True(t, ok)
	assert.Equal(t, "invalid request", fail.Message)
	assert.Len(t, fail.Fields, 1)
	assert.Equal(t, "email", fail.Fields[0].Field)

	_, ok = failure.From(errors.New("plain"))
	assert.False(t, ok)
}
