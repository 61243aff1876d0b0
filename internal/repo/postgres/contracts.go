package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/unicorn-labs/unicorn-go/internal/domain"
	"github.com/unicorn-labs/unicorn-go/internal/repo"
)

const contractColumns = `property_id, contract_id, seller_name, address, contract_status,
	contract_created, contract_last_modified_on, workflow_task_token`

const (
	// The conflict branch only fires for terminal records, so a vacant key or
	// a terminal record is replaced and an active record yields no row.
	createContractQuery = `INSERT INTO contracts (` + contractColumns + `)
	VALUES ($1,$2,$3,$4,$5,$6,$7,NULL)
	ON CONFLICT (property_id) DO UPDATE SET
		contract_id = EXCLUDED.contract_id,
		seller_name = EXCLUDED.seller_name,
		address = EXCLUDED.address,
		contract_status = EXCLUDED.contract_status,
		contract_created = EXCLUDED.contract_created,
		contract_last_modified_on = EXCLUDED.contract_last_modified_on,
		workflow_task_token = NULL
	WHERE contracts.contract_status IN ($8, $9, $10)
	RETURNING property_id`

	updateContractStatusQuery = `UPDATE contracts SET
		contract_status = $1,
		contract_last_modified_on = GREATEST($2, contract_last_modified_on + 1)
	WHERE property_id = $3 AND contract_status = $4
	RETURNING ` + contractColumns

	selectContractQuery = `SELECT ` + contractColumns + `
	FROM contracts
	WHERE property_id = $1`

	setWorkflowTokenQuery = `UPDATE contracts SET workflow_task_token = $2 WHERE property_id = $1`

	clearWorkflowTokenQuery = `UPDATE contracts SET workflow_task_token = NULL
	WHERE property_id = $1 AND workflow_task_token = $2`
)

type ContractStore struct {
	db DB
}

func NewContractStore(db DB) *ContractStore {
	if db == nil {
		return nil
	}
	return &ContractStore{db: db}
}

func (s *ContractStore) CreateIfVacantOrTerminal(ctx context.Context, contract domain.Contract) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("contract store not initialized")
	}
	if err := contract.Validate(); err != nil {
		return err
	}
	addressJSON, err := json.Marshal(contract.Address)
	if err != nil {
		return fmt.Errorf("encode address: %w", err)
	}
	terminal := domain.TerminalStatuses()
	var propertyID string
	err = s.db.QueryRowContext(
		ctx,
		createContractQuery,
		strings.TrimSpace(contract.PropertyID),
		strings.TrimSpace(contract.ContractID),
		strings.TrimSpace(contract.SellerName),
		addressJSON,
		string(contract.Status),
		contract.CreatedAt,
		contract.LastModifiedAt,
		string(terminal[0]),
		string(terminal[1]),
		string(terminal[2]),
	).Scan(&propertyID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return repo.ErrAlreadyActive
		}
		return storeError("insert contract", err)
	}
	return nil
}

func (s *ContractStore) UpdateIfCurrentStatus(ctx context.Context, propertyID string, expected domain.Status, mutation domain.Mutation) (domain.Contract, error) {
	if s == nil || s.db == nil {
		return domain.Contract{}, fmt.Errorf("contract store not initialized")
	}
	propertyID = strings.TrimSpace(propertyID)
	if propertyID == "" {
		return domain.Contract{}, domain.Validationf("property id is required")
	}
	if !mutation.Status.Valid() {
		return domain.Contract{}, domain.Validationf("mutation status %q is invalid", mutation.Status)
	}
	row := s.db.QueryRowContext(
		ctx,
		updateContractStatusQuery,
		string(mutation.Status),
		mutation.ModifiedAt,
		propertyID,
		string(expected),
	)
	contract, err := scanContract(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Contract{}, repo.ErrStaleOrMissing
		}
		return domain.Contract{}, storeError("update contract status", err)
	}
	return contract, nil
}

func (s *ContractStore) Get(ctx context.Context, propertyID string) (domain.Contract, error) {
	if s == nil || s.db == nil {
		return domain.Contract{}, fmt.Errorf("contract store not initialized")
	}
	propertyID = strings.TrimSpace(propertyID)
	if propertyID == "" {
		return domain.Contract{}, domain.Validationf("property id is required")
	}
	contract, err := scanContract(s.db.QueryRowContext(ctx, selectContractQuery, propertyID))
	if err != nil {
		if err := handleNotFound(err); errors.Is(err, repo.ErrNotFound) {
			return domain.Contract{}, err
		}
		return domain.Contract{}, storeError("get contract", err)
	}
	return contract, nil
}

func (s *ContractStore) SetWorkflowToken(ctx context.Context, propertyID, token string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("contract store not initialized")
	}
	propertyID = strings.TrimSpace(propertyID)
	token = strings.TrimSpace(token)
	if propertyID == "" {
		return domain.Validationf("property id is required")
	}
	if token == "" {
		return domain.Validationf("workflow token is required")
	}
	res, err := s.db.ExecContext(ctx, setWorkflowTokenQuery, propertyID, token)
	if err != nil {
		return storeError("set workflow token", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return storeError("set workflow token", err)
	}
	if rows == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *ContractStore) ClearWorkflowToken(ctx context.Context, propertyID, token string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("contract store not initialized")
	}
	res, err := s.db.ExecContext(ctx, clearWorkflowTokenQuery, strings.TrimSpace(propertyID), token)
	if err != nil {
		return false, storeError("clear workflow token", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, storeError("clear workflow token", err)
	}
	return rows > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContract(row rowScanner) (domain.Contract, error) {
	var contract domain.Contract
	var addressJSON []byte
	var status string
	var token sql.NullString
	if err := row.Scan(
		&contract.PropertyID,
		&contract.ContractID,
		&contract.SellerName,
		&addressJSON,
		&status,
		&contract.CreatedAt,
		&contract.LastModifiedAt,
		&token,
	); err != nil {
		return domain.Contract{}, err
	}
	if len(addressJSON) > 0 {
		if err := json.Unmarshal(addressJSON, &contract.Address); err != nil {
			return domain.Contract{}, fmt.Errorf("decode address: %w", err)
		}
	}
	contract.Status = domain.Status(status)
	if token.Valid {
		contract.WorkflowTaskToken = token.String
	}
	return contract, nil
}
