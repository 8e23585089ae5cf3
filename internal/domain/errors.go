package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy. Call sites wrap these with context; callers match with errors.Is.
var (
	// ErrValidation marks bad or missing caller input.
	ErrValidation = errors.New("validation error")
	// ErrAlreadyScanning is returned by start_scan while a scan flag is set.
	ErrAlreadyScanning = errors.New("a scan is already in progress")
	// ErrNotFound marks a missing link, rule, document or undoable operation.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable marks an operation whose undo data was dropped for size.
	ErrUnavailable = errors.New("unavailable")
	// ErrPersistence marks a store read or write failure.
	ErrPersistence = errors.New("persistence error")
)

// Validationf returns an ErrValidation wrapping a formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundf returns an ErrNotFound wrapping a formatted message.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Persistence wraps a store failure for op. A nil err yields nil, and errors
// already in the taxonomy pass through unchanged.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrPersistence) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}
