package core

import "errors"

// Sentinel errors shared by the domain services. Wrap them with context via
// fmt.Errorf("...: %w", Err...) so callers can branch with errors.Is while
// logs keep the detail.
var (
	// ErrNotFound: the referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPermissionDenied: the principal lacks the capability for this
	// operation on this server.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrConflict: the operation is invalid for the entity's current state,
	// or a uniqueness rule was violated.
	ErrConflict = errors.New("conflict")

	// ErrResourceExhausted: a finite resource (fleet slots, port ranges) ran
	// out.
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrProtocol: an RCON or query exchange failed or returned garbage.
	ErrProtocol = errors.New("protocol error")

	// ErrRuntime: the container runtime refused or failed an operation.
	ErrRuntime = errors.New("runtime error")

	// ErrValidation: the request payload failed semantic validation beyond
	// what the HTTP layer checks.
	ErrValidation = errors.New("validation failed")

	// ErrUnavailable: an optional integration (object store) is not
	// configured on this deployment.
	ErrUnavailable = errors.New("unavailable")
)
