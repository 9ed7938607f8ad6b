package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/cooltrack/cooltrack/internal/events"
	"github.com/cooltrack/cooltrack/internal/ledger"
	"github.com/cooltrack/cooltrack/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Bind(tx pgx.Tx) TxRepository
	GetItemByKey(ctx context.Context, key string) (*Item, error)
	GetItem(ctx context.Context, id uuid.UUID) (*Item, error)
	ListItems(ctx context.Context, f ListFilter) ([]Item, int, error)
	LowStockItems(ctx context.Context) ([]Item, error)
}

// TxRepository exposes the transactional operations used by the service.
type TxRepository interface {
	GetItemForUpdate(ctx context.Context, key string) (*Item, error)
	GetItemByIDForUpdate(ctx context.Context, id uuid.UUID) (*Item, error)
	InsertItem(ctx context.Context, item *Item) error
	UpdateItem(ctx context.Context, item *Item) error
	InsertLot(ctx context.Context, lot *Lot) error
	UpdateLot(ctx context.Context, lot *Lot) error
	DeleteItem(ctx context.Context, id uuid.UUID) error
	AppendLedger(ctx context.Context, e *ledger.Entry) error
}

// Service coordinates grouped inventory operations.
type Service struct {
	repo      RepositoryPort
	publisher events.Publisher
	logger    *slog.Logger
}

// NewService builds a Service.
func NewService(repo RepositoryPort, publisher events.Publisher, logger *slog.Logger) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Service{repo: repo, publisher: publisher, logger: logger}
}

// AddStock registers a purchase: upserts the item by its case-folded name,
// appends a new lot and writes a purchase ledger entry, all in one
// transaction.
func (s *Service) AddStock(ctx context.Context, input AddStockInput, actor shared.Actor) (*Item, error) {
	if FoldName(input.ItemName) == "" {
		return nil, fmt.Errorf("%w: item name required", shared.ErrValidation)
	}
	if input.PurchasePrice.IsNegative() {
		return nil, fmt.Errorf("%w: purchase price must not be negative", shared.ErrValidation)
	}

	var item *Item
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		item, err = s.addStock(ctx, tx, input, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publisher.Publish(ctx, events.InventoryScope(item.ID), "inventory.stock_added", map[string]any{
		"item_id":     item.ID,
		"item_name":   item.Name,
		"total_value": item.TotalValue,
	})
	return item, nil
}

func (s *Service) addStock(ctx context.Context, tx TxRepository, input AddStockInput, actor shared.Actor) (*Item, error) {
	key := FoldName(input.ItemName)
	now := time.Now().UTC()

	item, err := tx.GetItemForUpdate(ctx, key)
	switch {
	case err == nil:
		if input.Unit != "" && input.Unit != item.Unit {
			return nil, fmt.Errorf("%w: item %q is tracked in %s", shared.ErrValidation, item.Name, item.Unit)
		}
	case isNotFound(err):
		if !input.Unit.Valid() {
			return nil, fmt.Errorf("%w: unit required for new item", shared.ErrValidation)
		}
		item = &Item{
			ID:        uuid.New(),
			Name:      input.ItemName,
			NameKey:   key,
			Category:  input.Category,
			Unit:      input.Unit,
			MinValue:  input.MinValue,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.InsertItem(ctx, item); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	amount := input.Amount(item.Unit)
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: stock value must be positive", shared.ErrValidation)
	}

	purchaseDate := input.PurchaseDate
	if purchaseDate.IsZero() {
		purchaseDate = now
	}
	lot := &Lot{
		ID:            uuid.New(),
		ItemID:        item.ID,
		Value:         amount,
		PurchasePrice: input.PurchasePrice,
		Supplier:      input.Supplier,
		PurchaseDate:  purchaseDate,
		ExpiryDate:    input.ExpiryDate,
		BatchNumber:   input.BatchNumber,
		Brand:         input.Brand,
		Location:      input.Location,
		Notes:         input.Notes,
		IsActive:      true,
		CreatedAt:     now,
	}
	if err := tx.InsertLot(ctx, lot); err != nil {
		return nil, err
	}
	item.Lots = append(item.Lots, lot)
	item.Recompute()
	item.UpdatedAt = now
	if err := tx.UpdateItem(ctx, item); err != nil {
		return nil, err
	}

	lotID := lot.ID
	entry := &ledger.Entry{
		TransactionType: ledger.TypePurchase,
		InventoryType:   ledger.InventoryGrouped,
		ItemID:          item.ID,
		LotID:           &lotID,
		Delta:           amount,
		UnitCost:        input.PurchasePrice,
		ReferenceType:   "purchase",
		PerformedBy:     actor.ID,
		Reason:          input.Notes,
	}
	if err := tx.AppendLedger(ctx, entry); err != nil {
		return nil, err
	}
	return item, nil
}

// UseStock consumes stock in FIFO purchase order inside its own
// transaction and reports the blended cost of what was consumed.
func (s *Service) UseStock(ctx context.Context, input UseStockInput, actor shared.Actor) (*UsageResult, error) {
	var result *UsageResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		result, err = s.useStock(ctx, tx, input, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publishUsage(ctx, result)
	return result, nil
}

// UseStockTx is the same operation bound to a caller-owned transaction, so
// job material additions commit atomically with the job document. No event
// is published here; the caller announces its own outcome after commit.
func (s *Service) UseStockTx(ctx context.Context, tx pgx.Tx, input UseStockInput, actor shared.Actor) (*UsageResult, error) {
	return s.useStock(ctx, s.repo.Bind(tx), input, actor)
}

func (s *Service) useStock(ctx context.Context, tx TxRepository, input UseStockInput, actor shared.Actor) (*UsageResult, error) {
	item, err := tx.GetItemForUpdate(ctx, FoldName(input.ItemName))
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: item %q", shared.ErrNotFound, input.ItemName)
		}
		return nil, err
	}

	amount := input.Amount(item.Unit)
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: usage amount must be positive", shared.ErrValidation)
	}
	if amount.GreaterThan(item.TotalValue) {
		return nil, fmt.Errorf("%w: requested %s %s of %q, available %s",
			shared.ErrInsufficientStock, amount, item.Unit, item.Name, item.TotalValue)
	}

	refType, refID := usageReference(input.JobID)
	remaining := amount
	totalCost := decimal.Zero
	var used []UsedLot
	for _, lot := range item.ActiveLotsFIFO() {
		if !remaining.IsPositive() {
			break
		}
		take := decimal.Min(lot.Value, remaining)
		lot.Value = lot.Value.Sub(take)
		if lot.Value.IsZero() {
			lot.IsActive = false
		}
		if err := tx.UpdateLot(ctx, lot); err != nil {
			return nil, err
		}
		cost := take.Mul(lot.PurchasePrice)
		totalCost = totalCost.Add(cost)
		used = append(used, UsedLot{LotID: lot.ID, Amount: take, UnitCost: lot.PurchasePrice, Cost: cost})
		remaining = remaining.Sub(take)

		lotID := lot.ID
		entry := &ledger.Entry{
			TransactionType: ledger.TypeJobUsage,
			InventoryType:   ledger.InventoryGrouped,
			ItemID:          item.ID,
			LotID:           &lotID,
			Delta:           take.Neg(),
			UnitCost:        lot.PurchasePrice,
			ReferenceType:   refType,
			ReferenceID:     refID,
			PerformedBy:     actor.ID,
			Reason:          input.Reason,
		}
		if err := tx.AppendLedger(ctx, entry); err != nil {
			return nil, err
		}
	}
	// The pre-check makes this unreachable unless stock moved underneath
	// us; aborting here rolls back every deduction above.
	if remaining.IsPositive() {
		return nil, fmt.Errorf("%w: stock changed concurrently for %q", shared.ErrInsufficientStock, item.Name)
	}

	item.Recompute()
	item.UpdatedAt = time.Now().UTC()
	if err := tx.UpdateItem(ctx, item); err != nil {
		return nil, err
	}

	return &UsageResult{
		Item:            item,
		UsedLots:        used,
		TotalCost:       totalCost,
		AverageUnitCost: totalCost.Div(amount),
	}, nil
}

// ReturnStock adds a previously consumed amount back to the exact lot it
// came from, reactivating the lot if needed.
func (s *Service) ReturnStock(ctx context.Context, input ReturnStockInput, actor shared.Actor) (*Item, error) {
	var item *Item
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		item, err = s.returnStock(ctx, tx, input, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publisher.Publish(ctx, events.InventoryScope(item.ID), "inventory.stock_returned", map[string]any{
		"item_id":     item.ID,
		"item_name":   item.Name,
		"total_value": item.TotalValue,
	})
	return item, nil
}

// ReturnStockTx runs the return inside a caller-owned transaction.
func (s *Service) ReturnStockTx(ctx context.Context, tx pgx.Tx, input ReturnStockInput, actor shared.Actor) (*Item, error) {
	return s.returnStock(ctx, s.repo.Bind(tx), input, actor)
}

func (s *Service) returnStock(ctx context.Context, tx TxRepository, input ReturnStockInput, actor shared.Actor) (*Item, error) {
	item, err := tx.GetItemForUpdate(ctx, FoldName(input.ItemName))
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: item %q", shared.ErrNotFound, input.ItemName)
		}
		return nil, err
	}
	lot := item.FindLot(input.LotID)
	if lot == nil {
		return nil, fmt.Errorf("%w: lot %s", shared.ErrNotFound, input.LotID)
	}
	amount := input.Amount(item.Unit)
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: return amount must be positive", shared.ErrValidation)
	}

	lot.Value = lot.Value.Add(amount)
	lot.IsActive = true
	if err := tx.UpdateLot(ctx, lot); err != nil {
		return nil, err
	}

	item.Recompute()
	item.UpdatedAt = time.Now().UTC()
	if err := tx.UpdateItem(ctx, item); err != nil {
		return nil, err
	}

	refType, refID := usageReference(input.JobID)
	lotID := lot.ID
	entry := &ledger.Entry{
		TransactionType: ledger.TypeReturn,
		InventoryType:   ledger.InventoryGrouped,
		ItemID:          item.ID,
		LotID:           &lotID,
		Delta:           amount,
		UnitCost:        lot.PurchasePrice,
		ReferenceType:   refType,
		ReferenceID:     refID,
		PerformedBy:     actor.ID,
		Reason:          input.Reason,
	}
	if err := tx.AppendLedger(ctx, entry); err != nil {
		return nil, err
	}
	return item, nil
}

// CheckAvailability answers whether the requested amount is in stock.
// Read-only: no ledger write, no event.
func (s *Service) CheckAvailability(ctx context.Context, itemName string, required decimal.Decimal) (*Availability, error) {
	item, err := s.repo.GetItemByKey(ctx, FoldName(itemName))
	if err != nil {
		if isNotFound(err) {
			return &Availability{Available: false, Message: fmt.Sprintf("item %q not found", itemName)}, nil
		}
		return nil, err
	}
	if required.GreaterThan(item.TotalValue) {
		return &Availability{
			Available: false,
			Item:      item,
			Shortfall: required.Sub(item.TotalValue),
			Message:   fmt.Sprintf("only %s %s available", item.TotalValue, item.Unit),
		}, nil
	}
	return &Availability{Available: true, Item: item}, nil
}

// LowStockItems returns items at or below their reorder threshold.
func (s *Service) LowStockItems(ctx context.Context) ([]Item, error) {
	return s.repo.LowStockItems(ctx)
}

// GetItem loads an item with its lots.
func (s *Service) GetItem(ctx context.Context, id uuid.UUID) (*Item, error) {
	item, err := s.repo.GetItem(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: item %s", shared.ErrNotFound, id)
		}
		return nil, err
	}
	return item, nil
}

// ListItems lists items with pagination.
func (s *Service) ListItems(ctx context.Context, f ListFilter) ([]Item, int, error) {
	return s.repo.ListItems(ctx, f)
}

// UpdateItem patches item metadata and, optionally, the newest lot. A lot
// value change is recorded as an adjustment ledger entry.
func (s *Service) UpdateItem(ctx context.Context, id uuid.UUID, patch ItemPatch, actor shared.Actor) (*Item, error) {
	var item *Item
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		item, err = s.updateItem(ctx, tx, id, patch, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publisher.Publish(ctx, events.InventoryScope(item.ID), "inventory.item_updated", map[string]any{
		"item_id":     item.ID,
		"total_value": item.TotalValue,
	})
	return item, nil
}

func (s *Service) updateItem(ctx context.Context, tx TxRepository, id uuid.UUID, patch ItemPatch, actor shared.Actor) (*Item, error) {
	item, err := tx.GetItemByIDForUpdate(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: item %s", shared.ErrNotFound, id)
		}
		return nil, err
	}

	if patch.Name != nil && FoldName(*patch.Name) != "" {
		item.Name = *patch.Name
		item.NameKey = FoldName(*patch.Name)
	}
	if patch.Category != nil {
		item.Category = *patch.Category
	}
	if patch.MinValue != nil {
		if patch.MinValue.IsNegative() {
			return nil, fmt.Errorf("%w: min value must not be negative", shared.ErrValidation)
		}
		item.MinValue = *patch.MinValue
	}

	lot := item.LatestLot()
	if lot != nil && hasLotPatch(patch) {
		if patch.LotSupplier != nil {
			lot.Supplier = *patch.LotSupplier
		}
		if patch.LotBatch != nil {
			lot.BatchNumber = *patch.LotBatch
		}
		if patch.LotBrand != nil {
			lot.Brand = *patch.LotBrand
		}
		if patch.LotLocation != nil {
			lot.Location = *patch.LotLocation
		}
		if patch.LotNotes != nil {
			lot.Notes = *patch.LotNotes
		}
		if patch.LotPrice != nil {
			if patch.LotPrice.IsNegative() {
				return nil, fmt.Errorf("%w: purchase price must not be negative", shared.ErrValidation)
			}
			lot.PurchasePrice = *patch.LotPrice
		}
		if patch.LotValue != nil {
			if patch.LotValue.IsNegative() {
				return nil, fmt.Errorf("%w: lot value must not be negative", shared.ErrValidation)
			}
			delta := patch.LotValue.Sub(lot.Value)
			lot.Value = *patch.LotValue
			lot.IsActive = lot.Value.IsPositive()
			if !delta.IsZero() {
				lotID := lot.ID
				entry := &ledger.Entry{
					TransactionType: ledger.TypeAdjustment,
					InventoryType:   ledger.InventoryGrouped,
					ItemID:          item.ID,
					LotID:           &lotID,
					Delta:           delta,
					UnitCost:        lot.PurchasePrice,
					ReferenceType:   "adjustment",
					PerformedBy:     actor.ID,
					Reason:          patch.Reason,
				}
				if err := tx.AppendLedger(ctx, entry); err != nil {
					return nil, err
				}
			}
		}
		if err := tx.UpdateLot(ctx, lot); err != nil {
			return nil, err
		}
	}

	item.Recompute()
	item.UpdatedAt = time.Now().UTC()
	if err := tx.UpdateItem(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// DeleteItem removes an item that holds no active stock.
func (s *Service) DeleteItem(ctx context.Context, id uuid.UUID, actor shared.Actor) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.GetItemByIDForUpdate(ctx, id)
		if err != nil {
			if isNotFound(err) {
				return fmt.Errorf("%w: item %s", shared.ErrNotFound, id)
			}
			return err
		}
		if item.HasActiveStock() {
			return fmt.Errorf("%w: cannot delete item %q with active stock", shared.ErrConflict, item.Name)
		}
		return tx.DeleteItem(ctx, item.ID)
	})
}

func (s *Service) publishUsage(ctx context.Context, result *UsageResult) {
	payload := map[string]any{
		"item_id":     result.Item.ID,
		"item_name":   result.Item.Name,
		"total_value": result.Item.TotalValue,
		"total_cost":  result.TotalCost,
	}
	s.publisher.Publish(ctx, events.InventoryScope(result.Item.ID), "inventory.stock_used", payload)
	if result.Item.LowStock() {
		s.publisher.Publish(ctx, events.ScopeDashboard, "inventory.low_stock", payload)
	}
}

func usageReference(jobID *uuid.UUID) (string, string) {
	if jobID != nil {
		return "job", jobID.String()
	}
	return "manual", ""
}

func hasLotPatch(p ItemPatch) bool {
	return p.LotValue != nil || p.LotPrice != nil || p.LotSupplier != nil ||
		p.LotBatch != nil || p.LotBrand != nil || p.LotLocation != nil || p.LotNotes != nil
}

func isNotFound(err error) bool {
	return errors.Is(err, shared.ErrNotFound)
}
