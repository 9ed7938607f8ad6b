// Package equipment tracks uniquely identified units (condensers, air
// handlers, compressors) through their lifecycle. Unlike grouped stock
// there is no quantity, only status per serial number.
package equipment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of one serialized unit.
type Status string

const (
	StatusAvailable   Status = "available"
	StatusInstalled   Status = "installed"
	StatusMaintenance Status = "maintenance"
	StatusRetired     Status = "retired"
)

// Valid reports whether the status is one of the known values.
func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusInstalled, StatusMaintenance, StatusRetired:
		return true
	}
	return false
}

// Unit is one physically unique piece of equipment. Job and customer
// references are populated only while the unit is installed.
type Unit struct {
	ID            uuid.UUID       `json:"id"`
	SerialNumber  string          `json:"serial_number"`
	ItemName      string          `json:"item_name"`
	Brand         string          `json:"brand,omitempty"`
	Model         string          `json:"model,omitempty"`
	Category      string          `json:"category,omitempty"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SalePrice     decimal.Decimal `json:"sale_price"`
	Status        Status          `json:"status"`
	CurrentJobID  *uuid.UUID      `json:"current_job_id,omitempty"`
	CustomerID    *uuid.UUID      `json:"current_customer_id,omitempty"`
	InstalledDate *time.Time      `json:"installed_date,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// AddUnitInput describes the intake of a new serialized unit.
type AddUnitInput struct {
	SerialNumber  string
	ItemName      string
	Brand         string
	Model         string
	Category      string
	PurchasePrice decimal.Decimal
	SalePrice     decimal.Decimal
	Notes         string
}

// UnitPatch updates unit fields. A status change is recorded in the
// ledger; leaving installed clears the job and customer references.
type UnitPatch struct {
	ItemName      *string
	Brand         *string
	Model         *string
	Category      *string
	PurchasePrice *decimal.Decimal
	SalePrice     *decimal.Decimal
	Status        *Status
	Notes         *string
	Reason        string
}

// ListFilter narrows unit listings.
type ListFilter struct {
	Status   Status
	Category string
	Search   string
	Page     int
	PerPage  int
}
