package service

import (
	"errors"
	"fmt"
)

var (
	// ErrForbidden is returned when the acting principal lacks permission
	// for the attempted operation.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidTransition is returned when a status change is not in the
	// lifecycle table.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidCredentials covers both unknown email and wrong password so
	// the two cases are indistinguishable to the caller.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrNotWhitelisted is returned on registration with an email that has
	// no whitelist entry.
	ErrNotWhitelisted = errors.New("email is not whitelisted")

	// ErrSessionExpired is returned when a refresh token is unknown or past
	// its expiry.
	ErrSessionExpired = errors.New("session expired")

	// ErrRateLimited is returned when an account burns through its login
	// attempt budget inside the window.
	ErrRateLimited = errors.New("too many attempts")
)

// ValidationError reports malformed or missing input. The client must
// correct the request; retrying unchanged will fail again.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func newValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
