package errors

import (
	"errors"
	"fmt"
)

// Common error types for the identity broker
var (
	// Request validation errors - rejected before any side effect
	ErrInvalidRequest     = errors.New("invalid request")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrDomainBlocked      = errors.New("email domain not allowed")
	ErrInvalidRedirectURI = errors.New("invalid redirect URI")

	// Rate limiting errors - recoverable by waiting
	ErrRateLimited = errors.New("rate limited")

	// Confirmation errors - surfaced to callers as a generic auth failure
	ErrSessionNotFound = errors.New("session not found")
	ErrCodeMismatch    = errors.New("code mismatch")

	// Infrastructure errors
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrKeyManagerFault    = errors.New("signing key unavailable")
	ErrMailDeliveryFailed = errors.New("mail delivery failed")

	// General errors
	ErrNotFound    = errors.New("not found")
	ErrInternal    = errors.New("internal error")
	ErrUnsupported = errors.New("unsupported operation")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
