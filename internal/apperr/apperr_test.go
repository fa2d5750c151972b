package apperr_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"nestlist/internal/apperr"
)

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		err    *apperr.Error
		status int
	}{
		{apperr.Validation("bad input"), http.StatusBadRequest},
		{apperr.Unauthorized("no credential"), http.StatusUnauthorized},
		{apperr.Forbidden("not yours"), http.StatusForbidden},
		{apperr.NotFound("gone"), http.StatusNotFound},
		{apperr.Internal(errors.New("boom")), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.status, tc.err.Status())
	}
}

func TestInternalHidesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := apperr.Internal(cause)

	assert.Equal(t, "Internal server error", err.Message)
	assert.ErrorIs(t, err, cause)
}

func TestFrom(t *testing.T) {
	appErr := apperr.NotFound("missing")
	assert.Same(t, appErr, apperr.From(appErr))

	wrapped := fmt.Errorf("handler: %w", appErr)
	assert.Same(t, appErr, apperr.From(wrapped))

	plain := errors.New("plain failure")
	converted := apperr.From(plain)
	assert.Equal(t, apperr.KindInternal, converted.Kind)
	assert.Equal(t, "Internal server error", converted.Message)
	assert.ErrorIs(t, converted, plain)
}

func TestIsKind(t *testing.T) {
	err := fmt.Errorf("outer: %w", apperr.Forbidden("nope"))
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
	assert.False(t, apperr.IsKind(err, apperr.KindNotFound))
	assert.False(t, apperr.IsKind(errors.New("plain"), apperr.KindForbidden))
}
