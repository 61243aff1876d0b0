package domain

import (
	"strconv"
	"strings"
	"time"
)

const projectionPartitionPrefix = "property"

// NormalizePropertyID lowercases the id and replaces spaces with hyphens.
func NormalizePropertyID(id string) string {
	return normalizeKeyPart(id)
}

// PropertyRef is a property_id split into its four segments.
type PropertyRef struct {
	Country string
	City    string
	Street  string
	Number  string
}

// ParsePropertyID splits "country/city/street/number". Anything other than
// four non-empty segments is a validation error.
func ParsePropertyID(id string) (PropertyRef, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return PropertyRef{}, Validationf("property_id is required")
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) != 4 {
		return PropertyRef{}, Validationf("property_id %q must have 4 segments, got %d", id, len(parts))
	}
	for i, part := range parts {
		if strings.TrimSpace(part) == "" {
			return PropertyRef{}, Validationf("property_id %q has empty segment %d", id, i)
		}
	}
	return PropertyRef{
		Country: strings.TrimSpace(parts[0]),
		City:    strings.TrimSpace(parts[1]),
		Street:  strings.TrimSpace(parts[2]),
		Number:  strings.TrimSpace(parts[3]),
	}, nil
}

// PropertyIDFromAddress builds the canonical property_id for an address.
func PropertyIDFromAddress(a Address) string {
	return NormalizePropertyID(strings.Join([]string{
		strings.TrimSpace(a.Country),
		strings.TrimSpace(a.City),
		strings.TrimSpace(a.Street),
		strconv.Itoa(a.Number),
	}, "/"))
}

// ProjectionKey is the composite key of the property read model.
type ProjectionKey struct {
	Partition string
	Sort      string
}

func (r PropertyRef) ProjectionKey() ProjectionKey {
	return ProjectionKey{
		Partition: normalizeKeyPart(projectionPartitionPrefix + "#" + r.Country + "#" + r.City),
		Sort:      normalizeKeyPart(r.Street + "#" + r.Number),
	}
}

// PropertyProjection is the denormalized, eventually consistent status view.
type PropertyProjection struct {
	Key                    ProjectionKey
	Status                 string
	PropertyNumber         string
	ContractID             string
	ContractLastModifiedOn int64
	UpdatedAt              time.Time
}

// StatusChanged is the notification emitted whenever a contract status changes.
type StatusChanged struct {
	PropertyID             string `json:"property_id"`
	ContractStatus         string `json:"contract_status"`
	ContractID             string `json:"contract_id"`
	ContractLastModifiedOn int64  `json:"contract_last_modified_on"`
}

func normalizeKeyPart(value string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(value), " ", "-"))
}
