package mcpservice

import "errors"

// Sentinel errors shared by the Repository port and its adapters, in the
// style of the teacher's internal/domain/upstream.ErrUpstreamNotFound.
var (
	// ErrValidation wraps any field-level validation failure (bad name,
	// bad URL, frequency below the configured minimum).
	ErrValidation = errors.New("validation error")
	// ErrNotFound is returned when a service or snapshot does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateName is returned when create_service is called with a
	// name that already exists.
	ErrDuplicateName = errors.New("duplicate service name")
)
