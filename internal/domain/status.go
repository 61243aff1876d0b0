package domain

import (
	"fmt"
	"strings"
)

// Status is the lifecycle status of a contract.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusApproved  Status = "APPROVED"
	StatusCancelled Status = "CANCELLED"
	StatusClosed    Status = "CLOSED"
	StatusExpired   Status = "EXPIRED"
)

// Statuses lists every status in declaration order.
var Statuses = []Status{StatusDraft, StatusApproved, StatusCancelled, StatusClosed, StatusExpired}

var contractTransitions = map[Status][]Status{
	StatusDraft:     {StatusApproved, StatusCancelled, StatusExpired},
	StatusApproved:  {StatusClosed},
	StatusCancelled: {},
	StatusClosed:    {},
	StatusExpired:   {},
}

func (s Status) Valid() bool {
	_, ok := contractTransitions[s]
	return ok
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCancelled, StatusClosed, StatusExpired:
		return true
	default:
		return false
	}
}

// TerminalStatuses returns the statuses a contract can be replaced from.
func TerminalStatuses() []Status {
	return []Status{StatusCancelled, StatusClosed, StatusExpired}
}

func ParseStatus(value string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(value)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: unknown contract status %q", ErrValidation, value)
	}
	return s, nil
}

// CanTransition returns true only for the edges of the contract state graph.
// Self transitions are rejected.
func CanTransition(current, next Status) bool {
	allowed, ok := contractTransitions[current]
	if !ok {
		return false
	}
	for _, candidate := range allowed {
		if candidate == next {
			return true
		}
	}
	return false
}

// ValidateTransition wraps CanTransition with a descriptive error.
func ValidateTransition(current, next Status) error {
	if !current.Valid() || !next.Valid() {
		return fmt.Errorf("%w: invalid contract status transition", ErrValidation)
	}
	if !CanTransition(current, next) {
		return fmt.Errorf("%w: contract status transition %q -> %q not allowed", ErrInvalidState, current, next)
	}
	return nil
}
