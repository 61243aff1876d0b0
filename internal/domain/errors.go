package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed or incomplete input. Never retried.
	ErrValidation = errors.New("validation failed")
	// ErrConflict marks a create against a property with an active contract.
	ErrConflict = errors.New("active contract exists")
	// ErrNotFound marks a transition against a property without a contract.
	ErrNotFound = errors.New("contract not found")
	// ErrInvalidState marks a transition whose source status does not match.
	ErrInvalidState = errors.New("invalid contract state")
	// ErrStore marks transient infrastructure failures; redelivery retries them.
	ErrStore = errors.New("store unavailable")
	// ErrResumeSignal marks a failed hand-off to the workflow engine.
	ErrResumeSignal = errors.New("resume signal failed")
)

func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// StateError reports the status observed when a guarded transition was rejected.
type StateError struct {
	PropertyID string
	Expected   Status
	Current    Status
}

func (e *StateError) Error() string {
	return fmt.Sprintf("contract %s not in %s (current %s)", e.PropertyID, e.Expected, e.Current)
}

func (e *StateError) Unwrap() error {
	return ErrInvalidState
}

// CurrentStatus extracts the observed status from a StateError chain.
func CurrentStatus(err error) (Status, bool) {
	var stateErr *StateError
	if errors.As(err, &stateErr) {
		return stateErr.Current, true
	}
	return "", false
}

// Retryable reports whether redelivery can change the outcome of err.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrConflict),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInvalidState):
		return false
	default:
		return true
	}
}
