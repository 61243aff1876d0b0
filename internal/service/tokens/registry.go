// Package tokens keeps the continuation token of a paused workflow next to its
// contract and hands it back to the workflow engine once the contract is
// approved.
package tokens

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/unicorn-labs/unicorn-go/internal/domain"
	"github.com/unicorn-labs/unicorn-go/internal/platform/workflow"
	"github.com/unicorn-labs/unicorn-go/internal/repo"
)

// OutcomeBuilder derives the resume payload from the contract being resumed.
type OutcomeBuilder func(contract domain.Contract) workflow.Outcome

// ContractOutcome reports the contract's own status and property id.
func ContractOutcome(contract domain.Contract) workflow.Outcome {
	return workflow.Outcome{Status: contract.Status, PropertyID: contract.PropertyID}
}

// Precondition must hold for the stored contract before its token is used.
type Precondition func(contract domain.Contract) bool

// ApprovedContract holds only for contractID in the APPROVED state, so a late
// approval for a replaced contract never resumes its successor's workflow.
func ApprovedContract(contractID string) Precondition {
	contractID = strings.TrimSpace(contractID)
	return func(contract domain.Contract) bool {
		return contract.Status == domain.StatusApproved && contract.ContractID == contractID
	}
}

type Registry struct {
	store  repo.WorkflowTokenStore
	engine workflow.Engine
	logger *slog.Logger
}

func New(store repo.WorkflowTokenStore, engine workflow.Engine, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{store: store, engine: engine, logger: logger}
}

// Store persists token for propertyID. When the contract is already APPROVED
// the approval notification may have been consumed before the token existed,
// so the workflow is resumed immediately and the emitted signal is returned.
func (r *Registry) Store(ctx context.Context, propertyID, token string) (*workflow.ResumeSignal, error) {
	if strings.TrimSpace(propertyID) == "" {
		return nil, domain.Validationf("property_id is required")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, domain.Validationf("workflow token is required")
	}
	propertyID = domain.NormalizePropertyID(propertyID)

	if err := r.store.SetWorkflowToken(ctx, propertyID, token); err != nil {
		return nil, classify("store workflow token", propertyID, err)
	}
	r.logger.Info("workflow token stored", "property_id", propertyID)

	contract, err := r.store.Get(ctx, propertyID)
	if err != nil {
		return nil, classify("read contract", propertyID, err)
	}
	if contract.Status != domain.StatusApproved {
		return nil, nil
	}
	// No further approval notification will arrive, so a failed emission goes
	// back to the caller, which retries with the token still stored.
	signal, err := r.ResumeIfPresent(ctx, propertyID, ContractOutcome, ApprovedContract(contract.ContractID))
	if err != nil {
		r.logger.Warn("immediate resume failed", "property_id", propertyID, "error", err)
		return nil, err
	}
	return signal, nil
}

// ResumeIfPresent emits a resume signal for the stored token, if any, and then
// clears that token. The signal counts as sent once the engine accepted it:
// a failed clear is logged and never causes a second emission here. A missing
// token, or a stored contract failing any precondition, yields (nil, nil).
func (r *Registry) ResumeIfPresent(ctx context.Context, propertyID string, outcome OutcomeBuilder, preconditions ...Precondition) (*workflow.ResumeSignal, error) {
	propertyID = domain.NormalizePropertyID(propertyID)
	if propertyID == "" {
		return nil, domain.Validationf("property_id is required")
	}
	if outcome == nil {
		outcome = ContractOutcome
	}

	contract, err := r.store.Get(ctx, propertyID)
	if errors.Is(err, repo.ErrNotFound) {
		r.logger.Info("no contract for resume", "property_id", propertyID)
		return nil, nil
	}
	if err != nil {
		return nil, classify("read contract", propertyID, err)
	}
	if !contract.HasPendingWorkflow() {
		return nil, nil
	}
	for _, holds := range preconditions {
		if holds != nil && !holds(contract) {
			r.logger.Info("stored contract does not match resume request",
				"property_id", propertyID,
				"contract_id", contract.ContractID,
				"contract_status", contract.Status,
			)
			return nil, nil
		}
	}

	signal := workflow.ResumeSignal{
		Token:   contract.WorkflowTaskToken,
		Outcome: outcome(contract),
	}
	if err := r.engine.SendTaskSuccess(ctx, signal); err != nil {
		return nil, fmt.Errorf("%w: property %s: %w", domain.ErrResumeSignal, propertyID, err)
	}
	r.logger.Info("workflow resumed",
		"property_id", propertyID,
		"contract_status", signal.Outcome.Status,
	)

	cleared, err := r.store.ClearWorkflowToken(ctx, propertyID, signal.Token)
	switch {
	case err != nil:
		r.logger.Error("clear workflow token failed", "property_id", propertyID, "error", err)
	case !cleared:
		r.logger.Info("workflow token already replaced or cleared", "property_id", propertyID)
	}
	return &signal, nil
}

func classify(op, propertyID string, err error) error {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return fmt.Errorf("%s: %w: property %s", op, domain.ErrNotFound, propertyID)
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrStore):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, domain.ErrStore, err)
	}
}
