package jwt

import (
	"errors"
	"fmt"
)

// Sentinel errors for token operations. Every verification failure
// unwraps to exactly one of ErrTokenExpired or ErrTokenInvalid.
var (
	// ErrTokenExpired indicates a correctly signed token past its expiry.
	ErrTokenExpired = errors.New("token has expired")

	// ErrTokenInvalid indicates a token with a bad signature or structure.
	ErrTokenInvalid = errors.New("token is invalid")

	// ErrSecretTooShort indicates a signing secret below MinSecretLength.
	ErrSecretTooShort = errors.New("signing secret is too short")
)

// ValidationError represents a token verification failure with details.
type ValidationError struct {
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("jwt validation error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("jwt validation error: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok || errors.Is(e.Cause, target)
}

func invalid(message string) *ValidationError {
	return &ValidationError{Message: message, Cause: ErrTokenInvalid}
}

func expired() *ValidationError {
	return &ValidationError{Message: "exp not satisfied", Cause: ErrTokenExpired}
}

// SigningError represents a token issuance failure.
type SigningError struct {
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *SigningError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("jwt signing error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("jwt signing error: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *SigningError) Unwrap() error {
	return e.Cause
}
