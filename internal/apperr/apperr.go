// Package apperr defines the error taxonomy shared across the core.
//
// Callers classify failures with errors.Is against the sentinels below;
// wrapping sites add context with fmt.Errorf("...: %w", ...).
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed input rejected at the boundary.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks a referenced entity that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrTransientStore marks a temporarily unreachable store.
	ErrTransientStore = errors.New("transient store error")
	// ErrGeneration marks a content generation failure. Background only.
	ErrGeneration = errors.New("generation error")
	// ErrGenerationTimeout marks a generation call that exceeded its deadline.
	ErrGenerationTimeout = fmt.Errorf("%w: timeout", ErrGeneration)
	// ErrInvariant marks a detected internal inconsistency.
	ErrInvariant = errors.New("invariant violation")
)

// Validationf wraps ErrValidation with a formatted message.
func Validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundf wraps ErrNotFound with a formatted message.
func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Transientf wraps ErrTransientStore with a formatted message.
func Transientf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrTransientStore, fmt.Sprintf(format, args...))
}

// Invariantf wraps ErrInvariant with a formatted message.
func Invariantf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvariant, fmt.Sprintf(format, args...))
}
