package vault

import (
	"errors"
	"fmt"
)

// Common errors for Vault operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("vault: invalid configuration")

	// ErrSecretNotFound indicates the secret or key was not found.
	ErrSecretNotFound = errors.New("vault: secret not found")

	// ErrInvalidSecret indicates the stored value has the wrong shape.
	ErrInvalidSecret = errors.New("vault: invalid secret value")
)

// Error represents a Vault operation failure with its path.
type Error struct {
	Op   string
	Path string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("vault %s on path %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("vault %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op, path string, err error) *Error {
	return &Error{Op: op, Path: path, Err: err}
}
