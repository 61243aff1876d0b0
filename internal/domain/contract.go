package domain

import (
	"strings"
)

// Address is the structured location of a property. Immutable after creation.
type Address struct {
	Country string `json:"country"`
	City    string `json:"city"`
	Street  string `json:"street"`
	Number  int    `json:"number"`
}

func (a Address) Empty() bool {
	return strings.TrimSpace(a.Country) == "" &&
		strings.TrimSpace(a.City) == "" &&
		strings.TrimSpace(a.Street) == "" &&
		a.Number == 0
}

func (a Address) Validate() error {
	if strings.TrimSpace(a.Country) == "" {
		return Validationf("address.country is required")
	}
	if strings.TrimSpace(a.City) == "" {
		return Validationf("address.city is required")
	}
	if strings.TrimSpace(a.Street) == "" {
		return Validationf("address.street is required")
	}
	if a.Number <= 0 {
		return Validationf("address.number must be positive")
	}
	return nil
}

// Contract is the source-of-truth record keyed by PropertyID.
type Contract struct {
	PropertyID        string  `json:"property_id"`
	ContractID        string  `json:"contract_id"`
	SellerName        string  `json:"seller_name"`
	Address           Address `json:"address"`
	Status            Status  `json:"contract_status"`
	CreatedAt         int64   `json:"contract_created"`
	LastModifiedAt    int64   `json:"contract_last_modified_on"`
	WorkflowTaskToken string  `json:"workflow_task_token,omitempty"`
}

func (c Contract) Validate() error {
	if strings.TrimSpace(c.PropertyID) == "" {
		return Validationf("property_id is required")
	}
	if strings.TrimSpace(c.ContractID) == "" {
		return Validationf("contract_id is required")
	}
	if strings.TrimSpace(c.SellerName) == "" {
		return Validationf("seller_name is required")
	}
	if err := c.Address.Validate(); err != nil {
		return err
	}
	if !c.Status.Valid() {
		return Validationf("contract_status %q is invalid", c.Status)
	}
	if c.LastModifiedAt < c.CreatedAt {
		return Validationf("contract_last_modified_on precedes contract_created")
	}
	return nil
}

// HasPendingWorkflow reports whether a paused workflow awaits this contract.
func (c Contract) HasPendingWorkflow() bool {
	return strings.TrimSpace(c.WorkflowTaskToken) != ""
}

// Mutation is the change applied by a guarded status update.
type Mutation struct {
	Status     Status
	ModifiedAt int64
}

// NextModifiedAt keeps last_modified_at strictly increasing across transitions.
func NextModifiedAt(previous, now int64) int64 {
	if now <= previous {
		return previous + 1
	}
	return now
}
