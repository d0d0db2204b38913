package service

import "errors"

// Service errors that have no counterpart in the domain taxonomy
var (
	// ErrUnauthorized is returned when no authenticated user is attached to the context
	ErrUnauthorized = errors.New("unauthorized")

	// ErrConflict is returned when a concurrent change invalidated the request
	ErrConflict = errors.New("resource conflict")
)
