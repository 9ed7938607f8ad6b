// Package inventory owns the mutable stock state for fungible materials:
// lot tracking, FIFO consumption, availability checks, low stock detection
// and stock returns. Every mutation records ledger entries inside the same
// transaction as the stock change.
package inventory

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
)

// Unit enumerates how a grouped item's stock value is measured.
type Unit string

const (
	// UnitPieces counts discrete pieces.
	UnitPieces Unit = "pcs"
	// UnitMeter measures linear stock in meters.
	UnitMeter Unit = "meter"
	// UnitRoll measures linear stock in rolls.
	UnitRoll Unit = "roll"
	// UnitKilogram measures stock by weight.
	UnitKilogram Unit = "kg"
	// UnitLiter measures stock by volume.
	UnitLiter Unit = "liter"
)

// Valid reports whether the unit is one of the known values.
func (u Unit) Valid() bool {
	switch u {
	case UnitPieces, UnitMeter, UnitRoll, UnitKilogram, UnitLiter:
		return true
	}
	return false
}

// Linear reports whether the unit measures length rather than count or
// weight. Linear units carry their amount in the length field of inputs.
func (u Unit) Linear() bool {
	return u == UnitMeter || u == UnitRoll
}

// Lot is one discrete purchase batch of a grouped material. A lot whose
// value reaches zero is deactivated, never deleted, so usage history stays
// reconstructable.
type Lot struct {
	ID            uuid.UUID       `json:"id"`
	ItemID        uuid.UUID       `json:"item_id"`
	Value         decimal.Decimal `json:"value"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	Supplier      string          `json:"supplier,omitempty"`
	PurchaseDate  time.Time       `json:"purchase_date"`
	ExpiryDate    *time.Time      `json:"expiry_date,omitempty"`
	BatchNumber   string          `json:"batch_number,omitempty"`
	Brand         string          `json:"brand,omitempty"`
	Location      string          `json:"location,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Item is a fungible material tracked by total quantity or length across
// lots. TotalValue and AveragePurchasePrice are denormalized and recomputed
// on every mutation.
type Item struct {
	ID                   uuid.UUID       `json:"id"`
	Name                 string          `json:"name"`
	NameKey              string          `json:"-"`
	Category             string          `json:"category,omitempty"`
	Unit                 Unit            `json:"unit"`
	TotalValue           decimal.Decimal `json:"total_value"`
	AveragePurchasePrice decimal.Decimal `json:"average_purchase_price"`
	MinValue             decimal.Decimal `json:"min_value"`
	Lots                 []*Lot          `json:"lots,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

var nameFolder = cases.Fold()

// FoldName normalizes an item name into its case-insensitive unique key.
func FoldName(name string) string {
	return nameFolder.String(strings.TrimSpace(name))
}

// Recompute refreshes the denormalized totals from the active lots.
func (i *Item) Recompute() {
	total := decimal.Zero
	cost := decimal.Zero
	for _, lot := range i.Lots {
		if !lot.IsActive {
			continue
		}
		total = total.Add(lot.Value)
		cost = cost.Add(lot.Value.Mul(lot.PurchasePrice))
	}
	i.TotalValue = total
	if total.IsPositive() {
		i.AveragePurchasePrice = cost.Div(total)
	} else {
		i.AveragePurchasePrice = decimal.Zero
	}
}

// LowStock reports whether the item is at or below its reorder threshold.
func (i *Item) LowStock() bool {
	return i.TotalValue.LessThanOrEqual(i.MinValue)
}

// ActiveLotsFIFO returns the active lots in consumption order: oldest
// purchase date first, ties broken by insertion order.
func (i *Item) ActiveLotsFIFO() []*Lot {
	var active []*Lot
	for _, lot := range i.Lots {
		if lot.IsActive {
			active = append(active, lot)
		}
	}
	sort.SliceStable(active, func(a, b int) bool {
		return active[a].PurchaseDate.Before(active[b].PurchaseDate)
	})
	return active
}

// LatestLot returns the most recently added lot, or nil.
func (i *Item) LatestLot() *Lot {
	if len(i.Lots) == 0 {
		return nil
	}
	latest := i.Lots[0]
	for _, lot := range i.Lots[1:] {
		if lot.CreatedAt.After(latest.CreatedAt) {
			latest = lot
		}
	}
	return latest
}

// FindLot returns the lot with the given id, or nil.
func (i *Item) FindLot(id uuid.UUID) *Lot {
	for _, lot := range i.Lots {
		if lot.ID == id {
			return lot
		}
	}
	return nil
}

// HasActiveStock reports whether any lot still holds value.
func (i *Item) HasActiveStock() bool {
	for _, lot := range i.Lots {
		if lot.IsActive && lot.Value.IsPositive() {
			return true
		}
	}
	return false
}

// AddStockInput describes a purchase of new stock.
type AddStockInput struct {
	ItemName      string
	Category      string
	Unit          Unit
	Quantity      decimal.Decimal
	Length        decimal.Decimal
	PurchasePrice decimal.Decimal
	Supplier      string
	PurchaseDate  time.Time
	ExpiryDate    *time.Time
	BatchNumber   string
	Brand         string
	Location      string
	Notes         string
	MinValue      decimal.Decimal
}

// Amount extracts the stock value according to the item's unit.
func (in AddStockInput) Amount(u Unit) decimal.Decimal {
	if u.Linear() {
		return in.Length
	}
	return in.Quantity
}

// UseStockInput describes a consumption request. The unit-specific field
// (Quantity or Length) wins over the generic ValueUsed when both are set.
type UseStockInput struct {
	ItemName  string
	Quantity  decimal.Decimal
	Length    decimal.Decimal
	ValueUsed decimal.Decimal
	JobID     *uuid.UUID
	Reason    string
}

// Amount resolves the requested amount for the item's unit.
func (in UseStockInput) Amount(u Unit) decimal.Decimal {
	if u.Linear() {
		if in.Length.IsPositive() {
			return in.Length
		}
	} else if in.Quantity.IsPositive() {
		return in.Quantity
	}
	return in.ValueUsed
}

// ReturnStockInput reverses a consumption back into a specific lot.
type ReturnStockInput struct {
	ItemName  string
	LotID     uuid.UUID
	Quantity  decimal.Decimal
	Length    decimal.Decimal
	ValueUsed decimal.Decimal
	JobID     *uuid.UUID
	Reason    string
}

// Amount resolves the returned amount for the item's unit.
func (in ReturnStockInput) Amount(u Unit) decimal.Decimal {
	if u.Linear() {
		if in.Length.IsPositive() {
			return in.Length
		}
	} else if in.Quantity.IsPositive() {
		return in.Quantity
	}
	return in.ValueUsed
}

// UsedLot reports how much was consumed from one lot and at what cost.
type UsedLot struct {
	LotID    uuid.UUID       `json:"lot_id"`
	Amount   decimal.Decimal `json:"amount"`
	UnitCost decimal.Decimal `json:"unit_cost"`
	Cost     decimal.Decimal `json:"cost"`
}

// UsageResult is returned from UseStock for the caller to record on a job.
type UsageResult struct {
	Item            *Item           `json:"item"`
	UsedLots        []UsedLot       `json:"used_lots"`
	TotalCost       decimal.Decimal `json:"total_cost"`
	AverageUnitCost decimal.Decimal `json:"average_unit_cost"`
}

// Availability is the read-only answer to a stock availability check.
type Availability struct {
	Available bool            `json:"available"`
	Item      *Item           `json:"item,omitempty"`
	Shortfall decimal.Decimal `json:"shortfall"`
	Message   string          `json:"message,omitempty"`
}

// ItemPatch updates item metadata and optionally the newest lot. A LotValue
// change produces an adjustment ledger entry for the delta.
type ItemPatch struct {
	Name        *string
	Category    *string
	MinValue    *decimal.Decimal
	LotValue    *decimal.Decimal
	LotPrice    *decimal.Decimal
	LotSupplier *string
	LotBatch    *string
	LotBrand    *string
	LotLocation *string
	LotNotes    *string
	Reason      string
}

// ListFilter narrows item listings.
type ListFilter struct {
	Search   string
	Category string
	Page     int
	PerPage  int
}
