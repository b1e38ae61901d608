package models

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Authentication handshake errors. ErrInvalidCredentials deliberately
	// covers both "unknown identifier" and "wrong password"; callers must
	// never be able to tell the two apart.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrValidationFailed   = errors.New("validation failed")
	ErrTransientStore     = errors.New("credential store unavailable")

	// Checkpoint (second factor) errors
	ErrTokenExpired        = errors.New("confirmation token expired")
	ErrTokenMismatch       = errors.New("confirmation token mismatch")
	ErrSecondFactorInvalid = errors.New("authentication code invalid")
)

// LockedOutError is returned when a login key has exceeded the failure
// threshold. RetryAfter is the remaining lockout window.
type LockedOutError struct {
	RetryAfter time.Duration
}

func (e *LockedOutError) Error() string {
	return fmt.Sprintf("too many login attempts, retry after %s", e.RetryAfter.Round(time.Second))
}

// IsLockedOut unwraps a LockedOutError from err, if present.
func IsLockedOut(err error) (*LockedOutError, bool) {
	var lockErr *LockedOutError
	if errors.As(err, &lockErr) {
		return lockErr, true
	}
	return nil, false
}
