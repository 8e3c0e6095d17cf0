package apperr

import "errors"

// Sentinel errors shared by all services. Handlers map these to HTTP codes;
// services wrap them with fmt.Errorf("...: %w", ...) for context.
var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not found")
	ErrInvalidState      = errors.New("invalid state")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrValidation        = errors.New("validation error")

	// ErrAlreadyProcessed marks an idempotent no-op: the operation was applied
	// before and this call changed nothing. It is a success shape, not a
	// rejection, and callers must be able to tell it apart from ErrInvalidState.
	ErrAlreadyProcessed = errors.New("already processed")
)

func IsAlreadyProcessed(err error) bool {
	return errors.Is(err, ErrAlreadyProcessed)
}
