// Package propagator mirrors contract status changes into the property
// projection and wakes workflows waiting on an approval.
package propagator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/unicorn-labs/unicorn-go/internal/domain"
	"github.com/unicorn-labs/unicorn-go/internal/platform/workflow"
	"github.com/unicorn-labs/unicorn-go/internal/repo"
	"github.com/unicorn-labs/unicorn-go/internal/service/tokens"
)

type Resumer interface {
	ResumeIfPresent(ctx context.Context, propertyID string, outcome tokens.OutcomeBuilder, preconditions ...tokens.Precondition) (*workflow.ResumeSignal, error)
}

type Propagator struct {
	projections repo.ProjectionStore
	resumer     Resumer
	logger      *slog.Logger
	now         func() time.Time
}

func New(projections repo.ProjectionStore, resumer Resumer, logger *slog.Logger) *Propagator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Propagator{projections: projections, resumer: resumer, logger: logger, now: time.Now}
}

// Decode parses a status-changed notification body.
func Decode(body []byte) (domain.StatusChanged, error) {
	var event domain.StatusChanged
	if err := json.Unmarshal(body, &event); err != nil {
		return domain.StatusChanged{}, domain.Validationf("decode status change: %v", err)
	}
	return event, nil
}

// Apply upserts the projection for event and, for an approval, resumes the
// workflow waiting on that same contract. The projection write happens before the resume; a failed
// write returns before resuming. Resume failures are logged and never fail
// the notification.
func (p *Propagator) Apply(ctx context.Context, event domain.StatusChanged) error {
	ref, err := domain.ParsePropertyID(event.PropertyID)
	if err != nil {
		return err
	}
	status := strings.TrimSpace(event.ContractStatus)
	if status == "" {
		return domain.Validationf("contract_status is required")
	}

	projection := domain.PropertyProjection{
		Key:                    ref.ProjectionKey(),
		Status:                 status,
		PropertyNumber:         ref.Number,
		ContractID:             strings.TrimSpace(event.ContractID),
		ContractLastModifiedOn: event.ContractLastModifiedOn,
		UpdatedAt:              p.now().UTC(),
	}
	if err := p.projections.Upsert(ctx, projection); err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return fmt.Errorf("upsert projection: %w", err)
		}
		return fmt.Errorf("upsert projection: %w: %w", domain.ErrStore, err)
	}
	p.logger.Info("property projection updated",
		"property_id", event.PropertyID,
		"pk", projection.Key.Partition,
		"sk", projection.Key.Sort,
		"contract_status", status,
	)

	if domain.Status(status) != domain.StatusApproved || p.resumer == nil {
		return nil
	}
	propertyID := event.PropertyID
	signal, err := p.resumer.ResumeIfPresent(ctx, propertyID, func(domain.Contract) workflow.Outcome {
		return workflow.Outcome{Status: domain.StatusApproved, PropertyID: propertyID}
	}, tokens.ApprovedContract(projection.ContractID))
	switch {
	case err != nil:
		p.logger.Error("workflow resume failed", "property_id", propertyID, "error", err)
	case signal == nil:
		p.logger.Info("no workflow waiting", "property_id", propertyID)
	}
	return nil
}

// Handle decodes and applies one notification body.
func (p *Propagator) Handle(ctx context.Context, body []byte) error {
	event, err := Decode(body)
	if err != nil {
		return err
	}
	return p.Apply(ctx, event)
}
