package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	err := NewNotFoundError("room")
	assert.Equal(t, "NOT_FOUND: room not found", err.Error())
	assert.Equal(t, http.StatusNotFound, err.HTTPStatus)

	cause := stderrors.New("dial tcp: connection refused")
	wrapped := WrapError(cause, ErrCodeServiceUnavailable, "registry unreachable", http.StatusServiceUnavailable)
	assert.Contains(t, wrapped.Error(), "SERVICE_UNAVAILABLE: registry unreachable")
	assert.Contains(t, wrapped.Error(), "connection refused")
}

func TestAppError_Unwrap(t *testing.T) {
	cause := stderrors.New("boom")
	wrapped := WrapError(cause, ErrCodeInternal, "something failed", http.StatusInternalServerError)

	assert.ErrorIs(t, wrapped, cause)
	assert.Nil(t, stderrors.Unwrap(NewInternalError("no cause")))
}

func TestAppError_WithContext(t *testing.T) {
	err := NewConflictError("host already present").
		WithContext("room_id", "room_123456").
		WithContext("user_id", "u2")

	assert.Equal(t, "room_123456", err.Context["room_id"])
	assert.Equal(t, "u2", err.Context["user_id"])
}

func TestConstructorStatuses(t *testing.T) {
	tests := []struct {
		err    *AppError
		code   ErrorCode
		status int
	}{
		{NewInvalidInputError("bad"), ErrCodeInvalidInput, http.StatusBadRequest},
		{NewUnauthorizedError("no token"), ErrCodeUnauthorized, http.StatusUnauthorized},
		{NewRateLimitError(), ErrCodeRateLimit, http.StatusTooManyRequests},
		{NewLimitExceededError("room limit reached"), ErrCodeLimitExceeded, http.StatusServiceUnavailable},
		{NewServiceUnavailableError("down"), ErrCodeServiceUnavailable, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.code, tt.err.Code)
		assert.Equal(t, tt.status, tt.err.HTTPStatus)
	}
}

func TestGetAppError(t *testing.T) {
	assert.Nil(t, GetAppError(nil))
	assert.Nil(t, GetAppError(stderrors.New("plain")))

	appErr := NewNotFoundError("peer")
	assert.True(t, IsAppError(appErr))

	// AppError recovered through a fmt wrap chain.
	chained := fmt.Errorf("handler: %w", appErr)
	require.False(t, IsAppError(chained))
	got := GetAppError(chained)
	require.NotNil(t, got)
	assert.Equal(t, ErrCodeNotFound, got.Code)
}
