package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors carry no infrastructure dependency.

var (
	// Admission errors. Returned synchronously from submit; no task is created.
	ErrAdmissionDenied  = errors.New("admission denied")
	ErrUnknownKey       = errors.New("unknown api key")
	ErrPermissionDenied = errors.New("api key lacks permission for this task type")
	ErrInvalidRequest   = errors.New("invalid task request")

	// Task errors
	ErrTaskNotFound      = errors.New("task not found")
	ErrInvalidTransition = errors.New("invalid task status transition")

	// Quota errors
	ErrAlreadyReleased = errors.New("quota reservation already released")

	// Resolution errors
	ErrProducedFileNotFound = errors.New("produced file not found in task directory")
	ErrAmbiguousOutput      = errors.New("multiple candidate files in task directory")

	// Credential errors
	ErrCredentialExists = errors.New("api key already exists")
)
