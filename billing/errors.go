/*
errors.go - Centralized error types for the billing engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The API layer maps them onto HTTP status codes; callers use errors.Is
  and errors.As rather than string matching.

ERROR CATEGORIES:
  1. Not found   - work order, rate record or audit record absent
  2. Validation  - malformed memo, strict-mode expense input
  3. Permission  - comment edit/delete refused by the caller's decision
  4. Transition  - undefined status edge (strict mode only)

PROPAGATION:
  Local persistence errors abort the enclosing transaction and propagate.
  Task board errors never reach this file: they are logged and dropped.

SEE ALSO:
  - api/handlers.go: HTTP mapping
  - status.go: TransitionError
*/
package billing

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrWorkOrderNotFound is returned when the referenced work order does not exist.
	ErrWorkOrderNotFound = errors.New("work order not found")

	// ErrRateNotFound is returned by stores when no rate record exists for a key.
	// The resolver swallows it (default rate); the adjustment service does not.
	ErrRateNotFound = errors.New("rate record not found")

	// ErrAdjustmentNotFound is returned when an audit record is absent or already deleted.
	ErrAdjustmentNotFound = errors.New("adjustment record not found")

	// ErrForbidden is returned when the caller's permission decision refuses a mutation.
	ErrForbidden = errors.New("forbidden")

	// ErrValidation is returned for rejected input.
	ErrValidation = errors.New("validation failed")

	// ErrNotEditable is returned when editing an audit record that is not an operator comment.
	ErrNotEditable = errors.New("adjustment record is not editable")

	// ErrUndefinedTransition is returned for status pairs outside the transition table
	// when strict transitions are enabled.
	ErrUndefinedTransition = errors.New("undefined status transition")

	// ErrInvalidStatus is returned when a status name is not one of the three states.
	ErrInvalidStatus = errors.New("invalid status")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError names the missing resource.
type NotFoundError struct {
	Kind string // "work_order", "rate", "adjustment"
	Key  string
	Err  error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Key)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// ValidationError points at the offending field.
type ValidationError struct {
	Field   string // e.g. "expenses[2].cost_quantity"
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ForbiddenError is raised before any mutation happens.
type ForbiddenError struct {
	ActorID string
	Action  string
	Target  string
}

func (e *ForbiddenError) Error() string {
	actor := e.ActorID
	if actor == "" {
		actor = "anonymous"
	}
	return fmt.Sprintf("%s may not %s %s", actor, e.Action, e.Target)
}

func (e *ForbiddenError) Unwrap() error { return ErrForbidden }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// WorkOrderNotFound, RateNotFound and AdjustmentNotFound are the errors
// stores return for missing rows.
func WorkOrderNotFound(id WorkOrderID) error {
	return &NotFoundError{Kind: "work_order", Key: string(id), Err: ErrWorkOrderNotFound}
}

func RateNotFound(key RateKey) error {
	return &NotFoundError{Kind: "rate", Key: key.String(), Err: ErrRateNotFound}
}

func AdjustmentNotFound(id AdjustmentID) error {
	return &NotFoundError{Kind: "adjustment", Key: string(id), Err: ErrAdjustmentNotFound}
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrWorkOrderNotFound) ||
		errors.Is(err, ErrRateNotFound) ||
		errors.Is(err, ErrAdjustmentNotFound)
}

// IsForbidden returns true if the caller was refused.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotEditable) ||
		errors.Is(err, ErrUndefinedTransition) ||
		errors.Is(err, ErrInvalidStatus)
}
