// Package customers manages customer records and their denormalized job
// counters. The counters move only through job lifecycle transactions,
// never through the CRUD endpoints.
package customers

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Customer is one client of the service company.
type Customer struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"name"`
	Phone        string          `json:"phone,omitempty"`
	Email        string          `json:"email,omitempty"`
	Address      string          `json:"address,omitempty"`
	Notes        string          `json:"notes,omitempty"`
	TotalJobs    int             `json:"total_jobs"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// CustomerInput carries the editable fields for create and update.
type CustomerInput struct {
	Name    string
	Phone   string
	Email   string
	Address string
	Notes   string
}

// ListFilter narrows customer listings.
type ListFilter struct {
	Search  string
	Page    int
	PerPage int
}
