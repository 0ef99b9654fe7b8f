package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError(t *testing.T) {
	t.Run("Error returns formatted string", func(t *testing.T) {
		err := New(ErrCodeNotFound, "Device not found")
		assert.Equal(t, "NOT_FOUND: Device not found", err.Error())
	})

	t.Run("Error with cause includes cause", func(t *testing.T) {
		cause := errors.New("database connection failed")
		err := Wrap(ErrCodeDatabase, "Database error", cause)
		assert.Contains(t, err.Error(), "DATABASE_ERROR")
		assert.Contains(t, err.Error(), "Database error")
		assert.Contains(t, err.Error(), "database connection failed")
	})

	t.Run("WithCause adds cause to error", func(t *testing.T) {
		cause := errors.New("original error")
		err := New(ErrCodeInternal, "Something went wrong").WithCause(cause)
		assert.Equal(t, cause, err.Unwrap())
	})

	t.Run("WithDetails adds details to error", func(t *testing.T) {
		details := map[string]string{"field": "deviceId", "reason": "blank"}
		err := New(ErrCodeValidation, "Validation failed").WithDetails(details)
		assert.Equal(t, details, err.Details)
	})
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name         string
		constructor  func() *AppError
		expectedCode ErrorCode
	}{
		{"Unauthorized", func() *AppError { return Unauthorized("test") }, ErrCodeUnauthorized},
		{"Forbidden", func() *AppError { return Forbidden("test") }, ErrCodeForbidden},
		{"InvalidToken", func() *AppError { return InvalidToken("test") }, ErrCodeInvalidToken},
		{"TrustExpired", func() *AppError { return TrustExpired("dev-1") }, ErrCodeTrustExpired},
		{"NotFound", func() *AppError { return NotFound("Device") }, ErrCodeNotFound},
		{"AlreadyExists", func() *AppError { return AlreadyExists("Book") }, ErrCodeAlreadyExists},
		{"ValidationError", func() *AppError { return ValidationError("test") }, ErrCodeValidation},
		{"InvalidInput", func() *AppError { return InvalidInput("deviceId", "blank") }, ErrCodeInvalidInput},
		{"MissingRequired", func() *AppError { return MissingRequired("deviceId") }, ErrCodeMissingRequired},
		{"InvalidPIN", func() *AppError { return InvalidPIN() }, ErrCodeInvalidPIN},
		{"PINExpired", func() *AppError { return PINExpired() }, ErrCodePINExpired},
		{"NotPaired", func() *AppError { return NotPaired("dev-1") }, ErrCodeNotPaired},
		{"ConnectionFailed", func() *AppError { return ConnectionFailed("dev-1", nil) }, ErrCodeConnectionFailed},
		{"ManualResolutionRequired", func() *AppError { return ManualResolutionRequired(3) }, ErrCodeManualResolutionRequired},
		{"SyncCancelled", func() *AppError { return SyncCancelled() }, ErrCodeSyncCancelled},
		{"SyncFailed", func() *AppError { return SyncFailed("transfer", nil) }, ErrCodeSyncFailed},
		{"RateLimitExceeded", func() *AppError { return RateLimitExceeded() }, ErrCodeRateLimitExceeded},
		{"Internal", func() *AppError { return Internal("test") }, ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.constructor()
			assert.Equal(t, tt.expectedCode, err.Code)
		})
	}
}

func TestIsAppError(t *testing.T) {
	t.Run("returns true for AppError", func(t *testing.T) {
		assert.True(t, IsAppError(NotFound("Device")))
	})

	t.Run("returns true for wrapped AppError", func(t *testing.T) {
		err := fmt.Errorf("outer: %w", NotFound("Device"))
		assert.True(t, IsAppError(err))
	})

	t.Run("returns false for plain error", func(t *testing.T) {
		assert.False(t, IsAppError(errors.New("plain")))
	})
}

func TestGetCode(t *testing.T) {
	t.Run("returns code from AppError", func(t *testing.T) {
		assert.Equal(t, ErrCodeInvalidPIN, GetCode(InvalidPIN()))
	})

	t.Run("returns internal for plain error", func(t *testing.T) {
		assert.Equal(t, ErrCodeInternal, GetCode(errors.New("plain")))
	})
}

func TestHasCode(t *testing.T) {
	err := fmt.Errorf("sync: %w", ManualResolutionRequired(1))
	assert.True(t, HasCode(err, ErrCodeManualResolutionRequired))
	assert.False(t, HasCode(err, ErrCodeNotFound))
	assert.False(t, HasCode(errors.New("plain"), ErrCodeNotFound))
}
