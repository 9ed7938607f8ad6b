package equipment

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
	GetUnit(ctx context.Context, id uuid.UUID) (*Unit, error)
	GetUnitBySerial(ctx context.Context, serial string) (*Unit, error)
	ListUnits(ctx context.Context, f ListFilter) ([]Unit, int, error)
}

// TxRepository exposes the transactional operations used by the service.
type TxRepository interface {
	GetUnitBySerialForUpdate(ctx context.Context, serial string) (*Unit, error)
	GetUnitForUpdate(ctx context.Context, id uuid.UUID) (*Unit, error)
	InsertUnit(ctx context.Context, unit *Unit) error
	UpdateUnit(ctx context.Context, unit *Unit) error
	DeleteUnit(ctx context.Context, id uuid.UUID) error
	AppendLedger(ctx context.Context, e *ledger.Entry) error
}

// Service coordinates serialized unit lifecycle transitions.
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

// AddUnit registers a new serialized unit and writes a purchase ledger
// entry. Duplicate serial numbers conflict.
func (s *Service) AddUnit(ctx context.Context, input AddUnitInput, actor shared.Actor) (*Unit, error) {
	if input.SerialNumber == "" || input.ItemName == "" {
		return nil, fmt.Errorf("%w: serial number and item name required", shared.ErrValidation)
	}
	if input.PurchasePrice.IsNegative() || input.SalePrice.IsNegative() {
		return nil, fmt.Errorf("%w: prices must not be negative", shared.ErrValidation)
	}

	var unit *Unit
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetUnitBySerialForUpdate(ctx, input.SerialNumber); err == nil {
			return fmt.Errorf("%w: serial %q already registered", shared.ErrConflict, input.SerialNumber)
		} else if !errors.Is(err, shared.ErrNotFound) {
			return err
		}

		now := time.Now().UTC()
		unit = &Unit{
			ID:            uuid.New(),
			SerialNumber:  input.SerialNumber,
			ItemName:      input.ItemName,
			Brand:         input.Brand,
			Model:         input.Model,
			Category:      input.Category,
			PurchasePrice: input.PurchasePrice,
			SalePrice:     input.SalePrice,
			Status:        StatusAvailable,
			Notes:         input.Notes,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.InsertUnit(ctx, unit); err != nil {
			return err
		}
		return tx.AppendLedger(ctx, &ledger.Entry{
			TransactionType: ledger.TypePurchase,
			InventoryType:   ledger.InventorySerialized,
			ItemID:          unit.ID,
			Delta:           one,
			UnitCost:        unit.PurchasePrice,
			ReferenceType:   "purchase",
			PerformedBy:     actor.ID,
			Reason:          input.Notes,
		})
	})
	if err != nil {
		return nil, err
	}
	s.publisher.Publish(ctx, events.ScopeDashboard, "equipment.unit_added", map[string]any{
		"unit_id": unit.ID,
		"serial":  unit.SerialNumber,
	})
	return unit, nil
}

// Install assigns an available unit to a job and customer.
func (s *Service) Install(ctx context.Context, serial string, jobID, customerID uuid.UUID, actor shared.Actor) (*Unit, error) {
	var unit *Unit
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		unit, err = s.install(ctx, tx, serial, jobID, customerID, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publisher.Publish(ctx, events.JobScope(jobID), "equipment.installed", map[string]any{
		"unit_id": unit.ID,
		"serial":  unit.SerialNumber,
		"job_id":  jobID,
	})
	return unit, nil
}

// InstallTx runs the install inside a caller-owned transaction so a job
// material line and the unit transition commit together. No event is
// published; the caller announces its own outcome after commit.
func (s *Service) InstallTx(ctx context.Context, tx pgx.Tx, serial string, jobID, customerID uuid.UUID, actor shared.Actor) (*Unit, error) {
	return s.install(ctx, s.repo.Bind(tx), serial, jobID, customerID, actor)
}

func (s *Service) install(ctx context.Context, tx TxRepository, serial string, jobID, customerID uuid.UUID, actor shared.Actor) (*Unit, error) {
	unit, err := tx.GetUnitBySerialForUpdate(ctx, serial)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("%w: serial %q", shared.ErrNotFound, serial)
		}
		return nil, err
	}
	if unit.Status != StatusAvailable {
		return nil, fmt.Errorf("%w: unit %q is %s, not available", shared.ErrConflict, serial, unit.Status)
	}

	prior := unit.Status
	now := time.Now().UTC()
	unit.Status = StatusInstalled
	unit.CurrentJobID = &jobID
	unit.CustomerID = &customerID
	unit.InstalledDate = &now
	unit.UpdatedAt = now
	if err := tx.UpdateUnit(ctx, unit); err != nil {
		return nil, err
	}

	if err := tx.AppendLedger(ctx, &ledger.Entry{
		TransactionType: ledger.TypeInstallation,
		InventoryType:   ledger.InventorySerialized,
		ItemID:          unit.ID,
		Delta:           one.Neg(),
		UnitCost:        unit.SalePrice,
		ReferenceType:   "job",
		ReferenceID:     jobID.String(),
		PerformedBy:     actor.ID,
		Reason:          fmt.Sprintf("installed from status %s", prior),
	}); err != nil {
		return nil, err
	}
	return unit, nil
}

// Return takes an installed unit back into available stock.
func (s *Service) Return(ctx context.Context, serial, reason string, actor shared.Actor) (*Unit, error) {
	var unit *Unit
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		unit, err = s.returnUnit(ctx, tx, serial, reason, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publisher.Publish(ctx, events.ScopeDashboard, "equipment.returned", map[string]any{
		"unit_id": unit.ID,
		"serial":  unit.SerialNumber,
	})
	return unit, nil
}

// ReturnTx runs the return inside a caller-owned transaction.
func (s *Service) ReturnTx(ctx context.Context, tx pgx.Tx, serial, reason string, actor shared.Actor) (*Unit, error) {
	return s.returnUnit(ctx, s.repo.Bind(tx), serial, reason, actor)
}

func (s *Service) returnUnit(ctx context.Context, tx TxRepository, serial, reason string, actor shared.Actor) (*Unit, error) {
	unit, err := tx.GetUnitBySerialForUpdate(ctx, serial)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("%w: serial %q", shared.ErrNotFound, serial)
		}
		return nil, err
	}
	if unit.Status != StatusInstalled {
		return nil, fmt.Errorf("%w: unit %q is %s, not installed", shared.ErrConflict, serial, unit.Status)
	}

	jobRef := ""
	if unit.CurrentJobID != nil {
		jobRef = unit.CurrentJobID.String()
	}
	unit.Status = StatusAvailable
	unit.CurrentJobID = nil
	unit.CustomerID = nil
	unit.InstalledDate = nil
	unit.UpdatedAt = time.Now().UTC()
	if err := tx.UpdateUnit(ctx, unit); err != nil {
		return nil, err
	}

	if err := tx.AppendLedger(ctx, &ledger.Entry{
		TransactionType: ledger.TypeReturn,
		InventoryType:   ledger.InventorySerialized,
		ItemID:          unit.ID,
		Delta:           one,
		UnitCost:        unit.SalePrice,
		ReferenceType:   "job",
		ReferenceID:     jobRef,
		PerformedBy:     actor.ID,
		Reason:          reason,
	}); err != nil {
		return nil, err
	}
	return unit, nil
}

// UpdateUnit patches unit fields. A status change writes a status_change
// ledger entry; a transition away from installed clears job references.
func (s *Service) UpdateUnit(ctx context.Context, id uuid.UUID, patch UnitPatch, actor shared.Actor) (*Unit, error) {
	var unit *Unit
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		unit, err = tx.GetUnitForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return fmt.Errorf("%w: unit %s", shared.ErrNotFound, id)
			}
			return err
		}

		if patch.ItemName != nil {
			unit.ItemName = *patch.ItemName
		}
		if patch.Brand != nil {
			unit.Brand = *patch.Brand
		}
		if patch.Model != nil {
			unit.Model = *patch.Model
		}
		if patch.Category != nil {
			unit.Category = *patch.Category
		}
		if patch.PurchasePrice != nil {
			unit.PurchasePrice = *patch.PurchasePrice
		}
		if patch.SalePrice != nil {
			unit.SalePrice = *patch.SalePrice
		}
		if patch.Notes != nil {
			unit.Notes = *patch.Notes
		}

		if patch.Status != nil && *patch.Status != unit.Status {
			if !patch.Status.Valid() {
				return fmt.Errorf("%w: unknown status %q", shared.ErrValidation, *patch.Status)
			}
			prior := unit.Status
			unit.Status = *patch.Status
			if prior == StatusInstalled {
				unit.CurrentJobID = nil
				unit.CustomerID = nil
				unit.InstalledDate = nil
			}
			if err := tx.AppendLedger(ctx, &ledger.Entry{
				TransactionType: ledger.TypeStatusChange,
				InventoryType:   ledger.InventorySerialized,
				ItemID:          unit.ID,
				Delta:           zero,
				UnitCost:        unit.PurchasePrice,
				ReferenceType:   "status_change",
				PerformedBy:     actor.ID,
				Reason:          fmt.Sprintf("%s to %s: %s", prior, unit.Status, patch.Reason),
			}); err != nil {
				return err
			}
		}

		unit.UpdatedAt = time.Now().UTC()
		return tx.UpdateUnit(ctx, unit)
	})
	if err != nil {
		return nil, err
	}
	return unit, nil
}

// DeleteUnit removes a unit that is not currently installed.
func (s *Service) DeleteUnit(ctx context.Context, id uuid.UUID, actor shared.Actor) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		unit, err := tx.GetUnitForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return fmt.Errorf("%w: unit %s", shared.ErrNotFound, id)
			}
			return err
		}
		if unit.Status == StatusInstalled {
			return fmt.Errorf("%w: cannot delete installed unit %q", shared.ErrConflict, unit.SerialNumber)
		}
		return tx.DeleteUnit(ctx, unit.ID)
	})
}

// GetUnit loads a unit by id.
func (s *Service) GetUnit(ctx context.Context, id uuid.UUID) (*Unit, error) {
	unit, err := s.repo.GetUnit(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("%w: unit %s", shared.ErrNotFound, id)
		}
		return nil, err
	}
	return unit, nil
}

// GetUnitBySerial loads a unit by serial number.
func (s *Service) GetUnitBySerial(ctx context.Context, serial string) (*Unit, error) {
	unit, err := s.repo.GetUnitBySerial(ctx, serial)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("%w: serial %q", shared.ErrNotFound, serial)
		}
		return nil, err
	}
	return unit, nil
}

// ListUnits lists units with pagination.
func (s *Service) ListUnits(ctx context.Context, f ListFilter) ([]Unit, int, error) {
	return s.repo.ListUnits(ctx, f)
}

var (
	one  = decimal.NewFromInt(1)
	zero = decimal.Zero
)
