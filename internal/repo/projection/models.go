package projection

import "time"

// PropertyModel maps the properties read model. PK/SK mirror the composite
// key derived from the property id.
type PropertyModel struct {
	PK                     string `gorm:"column:pk;primaryKey;type:varchar(255)"`
	SK                     string `gorm:"column:sk;primaryKey;type:varchar(255)"`
	Status                 string `gorm:"column:status;type:varchar(64);not null"`
	PropertyNumber         string `gorm:"column:property_number;type:varchar(64);not null"`
	ContractID             string `gorm:"column:contract_id;type:varchar(64)"`
	ContractLastModifiedOn int64  `gorm:"column:contract_last_modified_on;not null;default:0"`
	UpdatedAt              time.Time
}

func (PropertyModel) TableName() string {
	return "properties"
}
