package service

import (
	"errors"
	"strings"
)

var (
	ErrDuplicateAccount   = errors.New("username or email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidPassword    = errors.New("invalid password")
	ErrInvalidResetToken  = errors.New("invalid or expired reset token")
	ErrUserNotFound       = errors.New("user not found")
	ErrSongNotFound       = errors.New("song not found or access denied")
	ErrOAuthNotConfigured = errors.New("google oauth not configured")
	ErrOAuthFailed        = errors.New("google sign-in failed")
	// ErrAccountGone is returned when a token outlives the account it names.
	ErrAccountGone = errors.New("account no longer exists")
)

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects every rejected field of one request.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Field+": "+f.Message)
	}
	return "invalid input: " + strings.Join(msgs, "; ")
}
