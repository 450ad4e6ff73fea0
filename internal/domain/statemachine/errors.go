package statemachine

import (
	"fmt"

	"github.com/invest/backend/internal/domain/shared"
)

// GuardError reports a transition whose required guard was false or absent
type GuardError struct {
	Guard GuardName
	msg   string
}

// Error implements the error interface
func (e *GuardError) Error() string {
	return e.msg
}

// Unwrap exposes the underlying domain error code so callers can match on
// shared.CodePreconditionFailed without knowing about guards.
func (e *GuardError) Unwrap() error {
	return shared.NewDomainError(shared.CodePreconditionFailed, e.msg)
}

// NewGuardError creates a precondition failure for a named guard
func NewGuardError(guard GuardName) *GuardError {
	return &GuardError{
		Guard: guard,
		msg:   fmt.Sprintf("precondition %q not satisfied", guard),
	}
}

// NewInvalidTransitionError creates the error for an unregistered edge
func NewInvalidTransitionError(entityType EntityType, from, to State) *shared.DomainError {
	return shared.NewDomainError(
		shared.CodeInvalidTransition,
		fmt.Sprintf("%s cannot transition from %s to %s", entityType, from, to),
	)
}
