package store

import "errors"

var (
	// ErrValidation matches every ValidationError via errors.Is.
	ErrValidation = errors.New("validation failed")
	// ErrAuthRequired matches every AuthRequiredError via errors.Is.
	ErrAuthRequired = errors.New("authentication required")
)

// ValidationError reports bad user input: an empty required field, an
// empty cart at checkout or mismatched passwords.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// AuthRequiredError is returned by Checkout without an authenticated session.
type AuthRequiredError struct {
	Msg string
}

func (e *AuthRequiredError) Error() string { return e.Msg }

func (e *AuthRequiredError) Is(target error) bool { return target == ErrAuthRequired }
