// Package memory provides in-process stores with the same atomicity
// guarantees as the durable adapters. The mutex stands in for the store's
// per-key compare-and-swap.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/unicorn-labs/unicorn-go/internal/domain"
	"github.com/unicorn-labs/unicorn-go/internal/repo"
)

type ContractStore struct {
	mu        sync.Mutex
	contracts map[string]domain.Contract
}

func NewContractStore() *ContractStore {
	return &ContractStore{contracts: map[string]domain.Contract{}}
}

func (s *ContractStore) CreateIfVacantOrTerminal(_ context.Context, contract domain.Contract) error {
	if err := contract.Validate(); err != nil {
		return err
	}
	key := strings.TrimSpace(contract.PropertyID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.contracts[key]; ok && !existing.Status.Terminal() {
		return repo.ErrAlreadyActive
	}
	contract.WorkflowTaskToken = ""
	s.contracts[key] = contract
	return nil
}

func (s *ContractStore) UpdateIfCurrentStatus(_ context.Context, propertyID string, expected domain.Status, mutation domain.Mutation) (domain.Contract, error) {
	key := strings.TrimSpace(propertyID)
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.contracts[key]
	if !ok || existing.Status != expected {
		return domain.Contract{}, repo.ErrStaleOrMissing
	}
	existing.Status = mutation.Status
	existing.LastModifiedAt = domain.NextModifiedAt(existing.LastModifiedAt, mutation.ModifiedAt)
	s.contracts[key] = existing
	return existing, nil
}

func (s *ContractStore) Get(_ context.Context, propertyID string) (domain.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.contracts[strings.TrimSpace(propertyID)]
	if !ok {
		return domain.Contract{}, repo.ErrNotFound
	}
	return existing, nil
}

func (s *ContractStore) SetWorkflowToken(_ context.Context, propertyID, token string) error {
	if strings.TrimSpace(token) == "" {
		return domain.Validationf("workflow token is required")
	}
	key := strings.TrimSpace(propertyID)
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.contracts[key]
	if !ok {
		return repo.ErrNotFound
	}
	existing.WorkflowTaskToken = strings.TrimSpace(token)
	s.contracts[key] = existing
	return nil
}

func (s *ContractStore) ClearWorkflowToken(_ context.Context, propertyID, token string) (bool, error) {
	key := strings.TrimSpace(propertyID)
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.contracts[key]
	if !ok || existing.WorkflowTaskToken == "" || existing.WorkflowTaskToken != token {
		return false, nil
	}
	existing.WorkflowTaskToken = ""
	s.contracts[key] = existing
	return true, nil
}

// Put seeds a record without any guard.
func (s *ContractStore) Put(contract domain.Contract) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contracts[strings.TrimSpace(contract.PropertyID)] = contract
}

type ProjectionStore struct {
	mu          sync.Mutex
	projections map[domain.ProjectionKey]domain.PropertyProjection
	now         func() time.Time
}

func NewProjectionStore() *ProjectionStore {
	return &ProjectionStore{
		projections: map[domain.ProjectionKey]domain.PropertyProjection{},
		now:         time.Now,
	}
}

func (s *ProjectionStore) Upsert(_ context.Context, projection domain.PropertyProjection) error {
	if projection.Key.Partition == "" || projection.Key.Sort == "" {
		return domain.Validationf("projection key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.projections[projection.Key]; ok && existing.ContractID == projection.ContractID &&
		existing.ContractLastModifiedOn > projection.ContractLastModifiedOn {
		return nil
	}
	if projection.UpdatedAt.IsZero() {
		projection.UpdatedAt = s.now().UTC()
	}
	s.projections[projection.Key] = projection
	return nil
}

func (s *ProjectionStore) Get(_ context.Context, key domain.ProjectionKey) (domain.PropertyProjection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	projection, ok := s.projections[key]
	if !ok {
		return domain.PropertyProjection{}, repo.ErrNotFound
	}
	return projection, nil
}

// Len returns the number of stored projections.
func (s *ProjectionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.projections)
}
