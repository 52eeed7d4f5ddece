package guardianclient

import (
	"errors"
	"fmt"
)

// Sentinel errors for use with errors.Is().
var (
	// ErrNotFound is returned when the admin server reports no such service.
	ErrNotFound = errors.New("service not found")

	// ErrValidation is returned when the admin server rejects a request body.
	ErrValidation = errors.New("validation failed")

	// ErrServerUnreachable is returned when the Guardian admin server cannot
	// be contacted at all (connection refused, DNS failure, timeout).
	ErrServerUnreachable = errors.New("server unreachable")
)

// GuardianError is the base error type for guardianclient errors not
// covered by a more specific type below.
type GuardianError struct {
	Code string
	Err  error
}

func (e *GuardianError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("guardianclient [%s]: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("guardianclient [%s]", e.Code)
}

func (e *GuardianError) Unwrap() error { return e.Err }

// NotFoundError is returned when the named service does not exist.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("service %q not found", e.Name) }

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ValidationError is returned when the admin server rejects a request.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return fmt.Sprintf("validation failed: %s", e.Message) }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ServerUnreachableError is returned when the Guardian admin server cannot
// be contacted.
type ServerUnreachableError struct {
	Cause error
}

func (e *ServerUnreachableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("server unreachable: %v", e.Cause)
	}
	return "server unreachable"
}

func (e *ServerUnreachableError) Unwrap() error { return e.Cause }

func (e *ServerUnreachableError) Is(target error) bool { return target == ErrServerUnreachable }
