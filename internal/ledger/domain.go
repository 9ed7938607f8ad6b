// Package ledger is the append-only log of every stock and cost affecting
// event. Entries are immutable once written; running totals live
// denormalized on the items themselves, the ledger is the audit trail.
package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType enumerates supported ledger events.
type TransactionType string

const (
	// TypePurchase records stock or equipment intake.
	TypePurchase TransactionType = "purchase"
	// TypeJobUsage records consumption on behalf of a job.
	TypeJobUsage TransactionType = "job_usage"
	// TypeAdjustment records a manual value correction.
	TypeAdjustment TransactionType = "adjustment"
	// TypeReturn records stock going back to a lot or a unit being freed.
	TypeReturn TransactionType = "return"
	// TypeInstallation records a serialized unit installed on a job.
	TypeInstallation TransactionType = "installation"
	// TypeStatusChange records a serialized unit status transition.
	TypeStatusChange TransactionType = "status_change"
)

// InventoryType distinguishes the two inventory kinds.
type InventoryType string

const (
	// InventoryGrouped marks fungible material stock.
	InventoryGrouped InventoryType = "grouped"
	// InventorySerialized marks uniquely identified equipment.
	InventorySerialized InventoryType = "serialized"
)

// Entry is one immutable ledger record.
type Entry struct {
	ID              uuid.UUID       `json:"id"`
	TransactionType TransactionType `json:"transaction_type"`
	InventoryType   InventoryType   `json:"inventory_type"`
	ItemID          uuid.UUID       `json:"item_id"`
	LotID           *uuid.UUID      `json:"lot_id,omitempty"`
	Delta           decimal.Decimal `json:"delta"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
	TotalValue      decimal.Decimal `json:"total_value"`
	ReferenceType   string          `json:"reference_type,omitempty"`
	ReferenceID     string          `json:"reference_id,omitempty"`
	PerformedBy     int64           `json:"performed_by"`
	Reason          string          `json:"reason,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Filter narrows ledger listings.
type Filter struct {
	ItemID          *uuid.UUID
	TransactionType TransactionType
	InventoryType   InventoryType
	ReferenceID     string
	From            time.Time
	To              time.Time
	Limit           int
	Offset          int
}
