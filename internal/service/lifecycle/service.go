package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/unicorn-labs/unicorn-go/internal/domain"
	"github.com/unicorn-labs/unicorn-go/internal/repo"
)

// DuplicatePolicy decides what a create against an active contract means.
type DuplicatePolicy string

const (
	// PolicyConflict always reports ErrConflict.
	PolicyConflict DuplicatePolicy = "conflict"
	// PolicyAccept reports success when the active record is the one the
	// request would have created.
	PolicyAccept DuplicatePolicy = "accept"
)

func ParseDuplicatePolicy(value string) (DuplicatePolicy, error) {
	switch DuplicatePolicy(strings.ToLower(strings.TrimSpace(value))) {
	case "", PolicyConflict:
		return PolicyConflict, nil
	case PolicyAccept:
		return PolicyAccept, nil
	default:
		return "", fmt.Errorf("unknown duplicate create policy %q", value)
	}
}

type CreateRequest struct {
	PropertyID string         `json:"property_id"`
	ContractID string         `json:"contract_id,omitempty"`
	SellerName string         `json:"seller_name"`
	Address    domain.Address `json:"address"`
}

func (r CreateRequest) Validate() error {
	if strings.TrimSpace(r.PropertyID) == "" {
		return domain.Validationf("property_id is required")
	}
	if strings.TrimSpace(r.SellerName) == "" {
		return domain.Validationf("seller_name is required")
	}
	if r.Address.Empty() {
		return domain.Validationf("address is required")
	}
	return r.Address.Validate()
}

type ApproveRequest struct {
	PropertyID string `json:"property_id"`
}

type Service struct {
	store  repo.ContractStore
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
	policy DuplicatePolicy
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

func WithDuplicatePolicy(policy DuplicatePolicy) Option {
	return func(s *Service) {
		if policy != "" {
			s.policy = policy
		}
	}
}

func New(store repo.ContractStore, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
		newID:  uuid.NewString,
		policy: PolicyConflict,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create writes a DRAFT contract for a vacant property or one whose contract
// reached a terminal status.
func (s *Service) Create(ctx context.Context, req CreateRequest) (domain.Contract, error) {
	if err := req.Validate(); err != nil {
		return domain.Contract{}, err
	}

	contractID := strings.TrimSpace(req.ContractID)
	if contractID == "" {
		contractID = s.newID()
	}
	now := s.now().UnixMilli()
	contract := domain.Contract{
		PropertyID:     domain.NormalizePropertyID(req.PropertyID),
		ContractID:     contractID,
		SellerName:     strings.TrimSpace(req.SellerName),
		Address:        req.Address,
		Status:         domain.StatusDraft,
		CreatedAt:      now,
		LastModifiedAt: now,
	}

	err := s.store.CreateIfVacantOrTerminal(ctx, contract)
	switch {
	case err == nil:
		s.logger.Info("contract created",
			"property_id", contract.PropertyID,
			"contract_id", contract.ContractID,
		)
		return contract, nil
	case errors.Is(err, repo.ErrAlreadyActive):
		if s.policy == PolicyAccept {
			existing, duplicate, dupErr := s.duplicateOf(ctx, contract.PropertyID, req)
			if dupErr != nil {
				return domain.Contract{}, dupErr
			}
			if duplicate {
				s.logger.Info("duplicate create accepted",
					"property_id", existing.PropertyID,
					"contract_id", existing.ContractID,
					"contract_status", existing.Status,
				)
				return existing, nil
			}
		}
		return domain.Contract{}, fmt.Errorf("%w: property %s", domain.ErrConflict, contract.PropertyID)
	case errors.Is(err, domain.ErrValidation):
		return domain.Contract{}, err
	default:
		return domain.Contract{}, storeFailure("create contract", err)
	}
}

// duplicateOf reports whether the active record is a redelivery of req.
func (s *Service) duplicateOf(ctx context.Context, propertyID string, req CreateRequest) (domain.Contract, bool, error) {
	existing, err := s.store.Get(ctx, propertyID)
	if err != nil {
		// A record missing here was replaced after the rejected create; retry.
		return domain.Contract{}, false, storeFailure("read active contract", err)
	}
	if id := strings.TrimSpace(req.ContractID); id != "" {
		return existing, existing.ContractID == id, nil
	}
	same := existing.Status == domain.StatusDraft &&
		existing.SellerName == strings.TrimSpace(req.SellerName) &&
		existing.Address == req.Address
	return existing, same, nil
}

// Approve moves a DRAFT contract to APPROVED. A rejected guard is explained by
// reading the record: missing yields ErrNotFound, any other status a
// *domain.StateError.
func (s *Service) Approve(ctx context.Context, req ApproveRequest) (domain.Contract, error) {
	if strings.TrimSpace(req.PropertyID) == "" {
		return domain.Contract{}, domain.Validationf("property_id is required")
	}
	propertyID := domain.NormalizePropertyID(req.PropertyID)
	if err := domain.ValidateTransition(domain.StatusDraft, domain.StatusApproved); err != nil {
		return domain.Contract{}, err
	}

	updated, err := s.store.UpdateIfCurrentStatus(ctx, propertyID, domain.StatusDraft, domain.Mutation{
		Status:     domain.StatusApproved,
		ModifiedAt: s.now().UnixMilli(),
	})
	if err == nil {
		s.logger.Info("contract approved",
			"property_id", updated.PropertyID,
			"contract_id", updated.ContractID,
		)
		return updated, nil
	}
	if !errors.Is(err, repo.ErrStaleOrMissing) {
		return domain.Contract{}, storeFailure("approve contract", err)
	}

	existing, err := s.store.Get(ctx, propertyID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Contract{}, fmt.Errorf("%w: property %s", domain.ErrNotFound, propertyID)
	}
	if err != nil {
		return domain.Contract{}, storeFailure("read contract", err)
	}
	if existing.Status == domain.StatusDraft {
		// Replaced by a fresh DRAFT between the guard and the read.
		return domain.Contract{}, fmt.Errorf("%w: contract %s changed during approve", domain.ErrStore, propertyID)
	}
	return domain.Contract{}, &domain.StateError{
		PropertyID: propertyID,
		Expected:   domain.StatusDraft,
		Current:    existing.Status,
	}
}

func storeFailure(op string, err error) error {
	if errors.Is(err, domain.ErrStore) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStore, err)
}
