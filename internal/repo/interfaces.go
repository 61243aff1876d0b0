package repo

import (
	"context"
	"errors"

	"github.com/unicorn-labs/unicorn-go/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrAlreadyActive rejects a create while a non-terminal contract exists.
	ErrAlreadyActive = errors.New("active contract exists")
	// ErrStaleOrMissing rejects a guarded update whose guard did not hold.
	ErrStaleOrMissing = errors.New("contract stale or missing")
)

// ContractStore is the conditional-write boundary for contracts. Every method
// is atomic and linearizable per property id; callers hold no locks.
type ContractStore interface {
	// CreateIfVacantOrTerminal writes contract iff no record exists for its
	// property id or the existing record is terminal. The new record fully
	// replaces the old one.
	CreateIfVacantOrTerminal(ctx context.Context, contract domain.Contract) error
	// UpdateIfCurrentStatus applies mutation iff the stored status equals
	// expected and returns the updated record.
	UpdateIfCurrentStatus(ctx context.Context, propertyID string, expected domain.Status, mutation domain.Mutation) (domain.Contract, error)
	Get(ctx context.Context, propertyID string) (domain.Contract, error)
}

// WorkflowTokenStore persists the continuation token next to the contract.
type WorkflowTokenStore interface {
	SetWorkflowToken(ctx context.Context, propertyID, token string) error
	// ClearWorkflowToken clears the token only while it still equals token.
	// It reports whether a token was cleared.
	ClearWorkflowToken(ctx context.Context, propertyID, token string) (bool, error)
	Get(ctx context.Context, propertyID string) (domain.Contract, error)
}

// ProjectionStore holds the property read model.
type ProjectionStore interface {
	Upsert(ctx context.Context, projection domain.PropertyProjection) error
	Get(ctx context.Context, key domain.ProjectionKey) (domain.PropertyProjection, error)
}
