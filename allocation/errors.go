/*
errors.go - Centralized error types for the allocation engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The workload and api packages wrap these with additional context.

ERROR CATEGORIES:
  1. Validation errors - a write would leave configuration unusable
     (note: out-of-range percents are clamped, never rejected)
  2. Not-found errors  - unknown template/role/entity references
  3. Persistence errors - store write failures during a reallocation apply

USAGE:
  if errors.Is(err, allocation.ErrEmptyPhaseSet) { ... }

  Handlers map classes to HTTP status via IsClientError / IsNotFound.
*/
package allocation

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrTemplateNotFound is returned when a referenced template doesn't exist.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrRoleNotFound is returned when a referenced role doesn't exist.
	ErrRoleNotFound = errors.New("role not found")

	// ErrUnknownPhase is returned when a phase key is outside the configured
	// phase universe.
	ErrUnknownPhase = errors.New("unknown phase key")

	// ErrEmptyPhaseSet is returned when a template update would leave the
	// template applicable to no phase at all. At least one phase must remain.
	ErrEmptyPhaseSet = errors.New("template must keep at least one phase")

	// ErrGlobalTemplateImmutable is returned when an operation targets the
	// global defaults as if they were a deletable/renamable template row.
	ErrGlobalTemplateImmutable = errors.New("global defaults cannot be deleted or renamed")

	// ErrNameRequired is returned when a template is created or renamed with
	// an empty name.
	ErrNameRequired = errors.New("template name is required")

	// ErrPersistFailed is returned when the apply step of a reallocation
	// cannot be committed. The whole run is abandoned; no assignment keeps
	// a partial update.
	ErrPersistFailed = errors.New("reallocation persist failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports a rejected write with the offending field.
type ValidationError struct {
	Field   string
	Message string
	Err     error // sentinel this wraps, if any
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NotFoundError reports a missing referenced entity.
type NotFoundError struct {
	Kind string // "template", "role", "deliverable", ...
	ID   string
	Err  error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) ||
		errors.Is(err, ErrEmptyPhaseSet) ||
		errors.Is(err, ErrGlobalTemplateImmutable) ||
		errors.Is(err, ErrNameRequired) ||
		errors.Is(err, ErrUnknownPhase)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe) ||
		errors.Is(err, ErrTemplateNotFound) ||
		errors.Is(err, ErrRoleNotFound)
}
