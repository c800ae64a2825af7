// Package common defines sentinel errors shared by the store, the promotion
// engine and the application wiring. Callers should use errors.Is to match
// these values; concrete errors wrap them together with their cause.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound          = errors.New("not found")
	ErrConstraintViolation = errors.New("constraint violation")

	// ErrTransientIO marks connection source failures. It is the only
	// category a caller may retry.
	ErrTransientIO = errors.New("transient i/o failure")

	// Promotion errors.
	ErrInvalidState    = errors.New("invalid state")
	ErrNotifierFailure = errors.New("notifier failure")
)
