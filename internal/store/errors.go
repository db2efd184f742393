package store

import "errors"

var (
	// ErrUnavailable indicates the backing database could not be opened
	// or its schema could not be created. Fatal at startup.
	ErrUnavailable = errors.New("storage unavailable")

	// ErrClosed indicates an operation was attempted after Close.
	ErrClosed = errors.New("storage closed")

	// ErrUnknownUser indicates a referential-integrity violation: the
	// operation references a user that has no row.
	ErrUnknownUser = errors.New("unknown user")
)
