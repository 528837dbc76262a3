/*
errors.go - Centralized error types for the billing core

PURPOSE:
  All error kinds the reconciliation, revenue and refund engines can return.
  Every public operation returns one of these (or nil), never a bare driver
  error, so transports can map them to a status without string matching.

ERROR CATEGORIES:
  1. NotFound               - referenced appointment/invoice/user is missing
  2. InvalidStateTransition - entity is terminal or otherwise incompatible
  3. Unauthorized           - actor may not perform the action
  4. InvalidInput           - malformed argument (period, amount, id)
  5. PersistenceFailure     - store failed, transaction rolled back

USAGE:
  if errors.Is(err, billing.ErrInvalidStateTransition) {
      // losing side of a concurrent cancel
  }

  var ste *billing.StateTransitionError
  if errors.As(err, &ste) {
      log.Printf("%s %s is %s", ste.Entity, ste.ID, ste.From)
  }

SEE ALSO:
  - reconcile.go, refund.go, accounts.go: Produce these errors
  - api/handlers.go: Maps ErrorKind to HTTP status
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
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidStateTransition is returned when the entity is already in a
	// terminal or otherwise incompatible state for the requested operation.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrUnauthorized is returned when the actor lacks permission.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidInput is returned for malformed arguments.
	ErrInvalidInput = errors.New("invalid input")

	// ErrPersistenceFailure is returned when the store failed and the
	// enclosing transaction was rolled back.
	ErrPersistenceFailure = errors.New("persistence failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string // "appointment", "invoice", "user"
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// StateTransitionError describes a rejected transition.
type StateTransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
	Reason string
}

func (e *StateTransitionError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return fmt.Sprintf("%s %s cannot move from %s to %s", e.Entity, e.ID, e.From, e.To)
}

func (e *StateTransitionError) Unwrap() error {
	return ErrInvalidStateTransition
}

// UnauthorizedError describes a denied action.
type UnauthorizedError struct {
	ActorID UserID
	Action  string
	Reason  string
}

func (e *UnauthorizedError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return fmt.Sprintf("actor %s may not %s", e.ActorID, e.Action)
}

func (e *UnauthorizedError) Unwrap() error {
	return ErrUnauthorized
}

// ValidationError describes a bad argument.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// PersistenceError wraps a store failure. Error() is deliberately generic;
// Cause is for internal logs only.
type PersistenceError struct {
	Op    string
	Cause error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("internal error: could not %s", e.Op)
}

func (e *PersistenceError) Unwrap() error {
	return ErrPersistenceFailure
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// ErrorKind is the transport-neutral classification of an error.
type ErrorKind string

const (
	KindNone                   ErrorKind = ""
	KindNotFound               ErrorKind = "not_found"
	KindInvalidStateTransition ErrorKind = "invalid_state_transition"
	KindUnauthorized           ErrorKind = "unauthorized"
	KindInvalidInput           ErrorKind = "invalid_input"
	KindPersistenceFailure     ErrorKind = "persistence_failure"
)

// Kind classifies err. Unknown errors are treated as persistence failures.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidStateTransition):
		return KindInvalidStateTransition
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	default:
		return KindPersistenceFailure
	}
}

// IsClientError returns true if the error is due to the caller's request.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidStateTransition) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrInvalidInput)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// isBusinessError reports whether err was produced by a rule check rather
// than by the store.
func isBusinessError(err error) bool {
	return IsClientError(err) || IsNotFound(err)
}
