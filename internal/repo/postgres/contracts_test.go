package postgres

import (
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/unicorn-labs/unicorn-go/internal/domain"
)

func TestCreateContractQueryGuardsActiveRecords(t *testing.T) {
	if !strings.Contains(createContractQuery, "ON CONFLICT (property_id) DO UPDATE") {
		t.Fatalf("expected conflict upsert on property_id")
	}
	if !strings.Contains(createContractQuery, "WHERE contracts.contract_status IN ($8, $9, $10)") {
		t.Fatalf("expected terminal status guard on conflict branch")
	}
	if !strings.Contains(createContractQuery, "workflow_task_token = NULL") {
		t.Fatalf("expected replacement to drop any stale workflow token")
	}
	if len(domain.TerminalStatuses()) != 3 {
		t.Fatalf("terminal guard expects exactly 3 statuses")
	}
}

func TestUpdateContractStatusQueryIsCompareAndSwap(t *testing.T) {
	if !strings.Contains(updateContractStatusQuery, "WHERE property_id = $3 AND contract_status = $4") {
		t.Fatalf("expected status guard in update query")
	}
	if !strings.Contains(updateContractStatusQuery, "GREATEST($2, contract_last_modified_on + 1)") {
		t.Fatalf("expected strictly increasing last modified timestamp")
	}
	if !strings.Contains(updateContractStatusQuery, "RETURNING") {
		t.Fatalf("expected updated row to be returned")
	}
}

func TestClearWorkflowTokenQueryMatchesToken(t *testing.T) {
	if !strings.Contains(clearWorkflowTokenQuery, "workflow_task_token = $2") {
		t.Fatalf("expected token equality guard in clear query")
	}
}

func TestStoreErrorClassification(t *testing.T) {
	integrity := storeError("insert contract", &pgconn.PgError{Code: "23514"})
	if !errors.Is(integrity, domain.ErrValidation) {
		t.Fatalf("expected check violation to be a validation error, got %v", integrity)
	}
	transient := storeError("insert contract", &pgconn.PgError{Code: "08006"})
	if !errors.Is(transient, domain.ErrStore) {
		t.Fatalf("expected connection failure to be a store error, got %v", transient)
	}
	if !domain.Retryable(transient) {
		t.Fatalf("store errors must be retryable")
	}
}

func TestNewContractStoreRequiresDB(t *testing.T) {
	if NewContractStore(nil) != nil {
		t.Fatalf("expected nil store without db")
	}
}
