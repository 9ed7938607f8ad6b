package jobcost

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/cooltrack/cooltrack/internal/customers"
	"github.com/cooltrack/cooltrack/internal/equipment"
	"github.com/cooltrack/cooltrack/internal/events"
	"github.com/cooltrack/cooltrack/internal/inventory"
	"github.com/cooltrack/cooltrack/internal/policy"
	"github.com/cooltrack/cooltrack/internal/settings"
	"github.com/cooltrack/cooltrack/internal/shared"
	"github.com/cooltrack/cooltrack/internal/storage"
)

// RepositoryPort abstracts job persistence. WithTx hands the open pgx
// transaction to the callback so the service can bind the inventory,
// equipment and customer repositories onto the same transaction.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, pgx.Tx, TxRepository) error) error
	GetJob(ctx context.Context, id uuid.UUID) (*Job, error)
	ListJobs(ctx context.Context, f ListFilter) ([]Job, int, error)
}

// TxRepository exposes the transactional job operations.
type TxRepository interface {
	GetJobForUpdate(ctx context.Context, id uuid.UUID) (*Job, error)
	NextJobSequence(ctx context.Context, year int) (int, error)
	InsertJob(ctx context.Context, job *Job) error
	UpdateJob(ctx context.Context, job *Job) error
}

// InventoryEngine is the slice of the grouped engine the job service
// drives inside its own transactions.
type InventoryEngine interface {
	UseStockTx(ctx context.Context, tx pgx.Tx, input inventory.UseStockInput, actor shared.Actor) (*inventory.UsageResult, error)
	ReturnStockTx(ctx context.Context, tx pgx.Tx, input inventory.ReturnStockInput, actor shared.Actor) (*inventory.Item, error)
}

// EquipmentEngine is the slice of the serialized engine used here.
type EquipmentEngine interface {
	InstallTx(ctx context.Context, tx pgx.Tx, serial string, jobID, customerID uuid.UUID, actor shared.Actor) (*equipment.Unit, error)
	ReturnTx(ctx context.Context, tx pgx.Tx, serial, reason string, actor shared.Actor) (*equipment.Unit, error)
}

// CustomerStore binds customer counter mutations onto a job transaction.
type CustomerStore interface {
	Bind(tx pgx.Tx) customers.TxRepository
}

// SettingsProvider reads the global settings.
type SettingsProvider interface {
	Get(ctx context.Context) (settings.Settings, error)
}

// Service coordinates job costing.
type Service struct {
	repo      RepositoryPort
	inventory InventoryEngine
	equipment EquipmentEngine
	customers CustomerStore
	settings  SettingsProvider
	store     storage.ObjectStore
	publisher events.Publisher
	policy    policy.Policy
	logger    *slog.Logger
}

// NewService builds a Service.
func NewService(
	repo RepositoryPort,
	inv InventoryEngine,
	eq EquipmentEngine,
	cust CustomerStore,
	cfg SettingsProvider,
	store storage.ObjectStore,
	publisher events.Publisher,
	p policy.Policy,
	logger *slog.Logger,
) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Service{
		repo:      repo,
		inventory: inv,
		equipment: eq,
		customers: cust,
		settings:  cfg,
		store:     store,
		publisher: publisher,
		policy:    p,
		logger:    logger,
	}
}

// CreateJob opens a new job with the next sequential number for the
// current year, denormalizes the customer contact and bumps the
// customer's job counter in the same transaction.
func (s *Service) CreateJob(ctx context.Context, input CreateJobInput, actor shared.Actor) (*Job, error) {
	if !input.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown job type %q", shared.ErrValidation, input.Type)
	}
	if input.AssignedTechnicianID == 0 {
		return nil, fmt.Errorf("%w: assigned technician required", shared.ErrValidation)
	}
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}

	var job *Job
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx pgx.Tx, r TxRepository) error {
		cust := s.customers.Bind(tx)
		customer, err := cust.GetCustomerForUpdate(ctx, input.CustomerID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return fmt.Errorf("%w: customer %s", shared.ErrNotFound, input.CustomerID)
			}
			return err
		}

		now := time.Now().UTC()
		year := now.Year()
		seq, err := r.NextJobSequence(ctx, year)
		if err != nil {
			return err
		}

		revenue := cfg.DefaultRevenue(string(input.Type))
		if input.Revenue != nil {
			revenue = *input.Revenue
		}

		scheduled := input.ScheduledAt
		if scheduled.IsZero() {
			scheduled = now
		}

		job = &Job{
			ID:                   uuid.New(),
			JobNumber:            FormatJobNumber(year, seq),
			CustomerID:           customer.ID,
			CustomerName:         customer.Name,
			CustomerPhone:        customer.Phone,
			CustomerAddress:      customer.Address,
			Type:                 input.Type,
			Status:               StatusPending,
			AssignedTechnicianID: input.AssignedTechnicianID,
			Description:          input.Description,
			ScheduledAt:          scheduled,
			LaborRate:            cfg.HourlyRate(string(input.Type)),
			TotalRevenue:         revenue,
			CreatedAt:            now,
			UpdatedAt:            now,
		}
		job.Recalculate(cfg)

		if err := r.InsertJob(ctx, job); err != nil {
			return err
		}
		return cust.IncrementJobs(ctx, customer.ID)
	})
	if err != nil {
		return nil, err
	}
	s.publisher.Publish(ctx, events.ScopeDashboard, "job.created", map[string]any{
		"job_id":     job.ID,
		"job_number": job.JobNumber,
	})
	return job, nil
}

// AddMaterials consumes stock for every line and saves the job in one
// atomic unit: a failing line rolls back every prior deduction.
func (s *Service) AddMaterials(ctx context.Context, jobID uuid.UUID, lines []MaterialInput, actor shared.Actor) (*Job, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: at least one material line required", shared.ErrValidation)
	}
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}

	var job *Job
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx pgx.Tx, r TxRepository) error {
		var err error
		job, err = s.loadJobForEdit(ctx, r, jobID, actor)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		for _, input := range lines {
			line, err := s.consumeMaterial(ctx, tx, job, input, actor, now)
			if err != nil {
				return err
			}
			job.Materials = append(job.Materials, *line)
		}

		job.Recalculate(cfg)
		job.UpdatedAt = now
		return r.UpdateJob(ctx, job)
	})
	if err != nil {
		return nil, err
	}
	s.publishJob(ctx, job, "job.materials_added")
	return job, nil
}

func (s *Service) consumeMaterial(ctx context.Context, tx pgx.Tx, job *Job, input MaterialInput, actor shared.Actor, now time.Time) (*MaterialLine, error) {
	switch input.Kind {
	case MaterialGrouped:
		result, err := s.inventory.UseStockTx(ctx, tx, inventory.UseStockInput{
			ItemName:  input.ItemName,
			Quantity:  input.Quantity,
			Length:    input.Length,
			ValueUsed: input.ValueUsed,
			JobID:     &job.ID,
			Reason:    "job " + job.JobNumber,
		}, actor)
		if err != nil {
			return nil, err
		}
		amount := decimal.Zero
		lots := make([]LotUsage, 0, len(result.UsedLots))
		for _, used := range result.UsedLots {
			amount = amount.Add(used.Amount)
			lots = append(lots, LotUsage{LotID: used.LotID, Amount: used.Amount, UnitCost: used.UnitCost})
		}
		return &MaterialLine{
			ID:        uuid.New(),
			Kind:      MaterialGrouped,
			ItemName:  result.Item.Name,
			Unit:      string(result.Item.Unit),
			Amount:    amount,
			UnitCost:  result.AverageUnitCost,
			TotalCost: result.TotalCost,
			LotsUsed:  lots,
			AddedBy:   actor.ID,
			AddedAt:   now,
		}, nil

	case MaterialSerialized:
		unit, err := s.equipment.InstallTx(ctx, tx, input.SerialNumber, job.ID, job.CustomerID, actor)
		if err != nil {
			return nil, err
		}
		return &MaterialLine{
			ID:           uuid.New(),
			Kind:         MaterialSerialized,
			ItemName:     unit.ItemName,
			SerialNumber: unit.SerialNumber,
			Amount:       decimal.NewFromInt(1),
			UnitCost:     unit.SalePrice,
			TotalCost:    unit.SalePrice,
			AddedBy:      actor.ID,
			AddedAt:      now,
		}, nil

	default:
		return nil, fmt.Errorf("%w: unknown material kind %q", shared.ErrValidation, input.Kind)
	}
}

// RemoveMaterial returns the consumed stock through the matching engine
// before splicing the line out of the job, all in one atomic unit.
func (s *Service) RemoveMaterial(ctx context.Context, jobID, materialID uuid.UUID, actor shared.Actor) (*Job, error) {
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}

	var job *Job
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx pgx.Tx, r TxRepository) error {
		var err error
		job, err = s.loadJobForEdit(ctx, r, jobID, actor)
		if err != nil {
			return err
		}
		line, idx := job.FindMaterial(materialID)
		if line == nil {
			return fmt.Errorf("%w: material %s", shared.ErrNotFound, materialID)
		}

		switch line.Kind {
		case MaterialGrouped:
			for _, used := range line.LotsUsed {
				if _, err := s.inventory.ReturnStockTx(ctx, tx, inventory.ReturnStockInput{
					ItemName:  line.ItemName,
					LotID:     used.LotID,
					Quantity:  used.Amount,
					Length:    used.Amount,
					ValueUsed: used.Amount,
					JobID:     &job.ID,
					Reason:    "material removed from job " + job.JobNumber,
				}, actor); err != nil {
					return err
				}
			}
		case MaterialSerialized:
			if _, err := s.equipment.ReturnTx(ctx, tx, line.SerialNumber,
				"material removed from job "+job.JobNumber, actor); err != nil {
				return err
			}
		}

		job.Materials = append(job.Materials[:idx], job.Materials[idx+1:]...)
		job.Recalculate(cfg)
		job.UpdatedAt = time.Now().UTC()
		return r.UpdateJob(ctx, job)
	})
	if err != nil {
		return nil, err
	}
	s.publishJob(ctx, job, "job.material_removed")
	return job, nil
}

// EditMaterial changes a grouped line's amount, moving the difference
// through the inventory engine. Serialized lines cannot be resized.
func (s *Service) EditMaterial(ctx context.Context, jobID, materialID uuid.UUID, newAmount decimal.Decimal, actor shared.Actor) (*Job, error) {
	if !newAmount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", shared.ErrValidation)
	}
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}

	var job *Job
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx pgx.Tx, r TxRepository) error {
		var err error
		job, err = s.loadJobForEdit(ctx, r, jobID, actor)
		if err != nil {
			return err
		}
		line, _ := job.FindMaterial(materialID)
		if line == nil {
			return fmt.Errorf("%w: material %s", shared.ErrNotFound, materialID)
		}
		if line.Kind != MaterialGrouped {
			return fmt.Errorf("%w: serialized lines cannot be resized", shared.ErrValidation)
		}

		delta := newAmount.Sub(line.Amount)
		switch {
		case delta.IsPositive():
			if err := s.growLine(ctx, tx, job, line, delta, actor); err != nil {
				return err
			}
		case delta.IsNegative():
			if err := s.shrinkLine(ctx, tx, job, line, delta.Neg(), actor); err != nil {
				return err
			}
		default:
			return nil
		}

		line.Amount = newAmount
		if newAmount.IsPositive() {
			line.UnitCost = line.TotalCost.Div(newAmount)
		}
		job.Recalculate(cfg)
		job.UpdatedAt = time.Now().UTC()
		return r.UpdateJob(ctx, job)
	})
	if err != nil {
		return nil, err
	}
	s.publishJob(ctx, job, "job.material_edited")
	return job, nil
}

func (s *Service) growLine(ctx context.Context, tx pgx.Tx, job *Job, line *MaterialLine, delta decimal.Decimal, actor shared.Actor) error {
	result, err := s.inventory.UseStockTx(ctx, tx, inventory.UseStockInput{
		ItemName:  line.ItemName,
		Quantity:  delta,
		Length:    delta,
		ValueUsed: delta,
		JobID:     &job.ID,
		Reason:    "material edit on job " + job.JobNumber,
	}, actor)
	if err != nil {
		return err
	}
	for _, used := range result.UsedLots {
		line.LotsUsed = append(line.LotsUsed, LotUsage{
			LotID: used.LotID, Amount: used.Amount, UnitCost: used.UnitCost,
		})
	}
	line.TotalCost = line.TotalCost.Add(result.TotalCost)
	return nil
}

// shrinkLine gives stock back to the most recently consumed lots first,
// so the remaining provenance still reflects the oldest consumption.
func (s *Service) shrinkLine(ctx context.Context, tx pgx.Tx, job *Job, line *MaterialLine, delta decimal.Decimal, actor shared.Actor) error {
	remaining := delta
	for i := len(line.LotsUsed) - 1; i >= 0 && remaining.IsPositive(); i-- {
		used := &line.LotsUsed[i]
		back := decimal.Min(used.Amount, remaining)
		if _, err := s.inventory.ReturnStockTx(ctx, tx, inventory.ReturnStockInput{
			ItemName:  line.ItemName,
			LotID:     used.LotID,
			Quantity:  back,
			Length:    back,
			ValueUsed: back,
			JobID:     &job.ID,
			Reason:    "material edit on job " + job.JobNumber,
		}, actor); err != nil {
			return err
		}
		used.Amount = used.Amount.Sub(back)
		line.TotalCost = line.TotalCost.Sub(back.Mul(used.UnitCost))
		remaining = remaining.Sub(back)
	}
	if remaining.IsPositive() {
		return fmt.Errorf("%w: cannot shrink below recorded lot usage", shared.ErrValidation)
	}
	kept := line.LotsUsed[:0]
	for _, used := range line.LotsUsed {
		if used.Amount.IsPositive() {
			kept = append(kept, used)
		}
	}
	line.LotsUsed = kept
	return nil
}

// UpdateLabor sets the worked hours and reprices them at the effective
// settings rate for the job type, unless an admin pinned the rate. Only
// the assigned technician may log labor, per the redesigned policy.
func (s *Service) UpdateLabor(ctx context.Context, jobID uuid.UUID, hours decimal.Decimal, actor shared.Actor) (*Job, error) {
	if hours.IsNegative() {
		return nil, fmt.Errorf("%w: hours must not be negative", shared.ErrValidation)
	}
	return s.mutateJob(ctx, jobID, "job.labor_updated", func(job *Job, cfg settings.Settings) error {
		if err := s.policy.CanUpdateLabor(actor, job.AssignedTechnicianID); err != nil {
			return err
		}
		if job.Status.Closed() {
			return fmt.Errorf("%w: job %s is %s", shared.ErrConflict, job.JobNumber, job.Status)
		}
		job.LaborHours = hours
		if !job.LaborRateOverride {
			job.LaborRate = cfg.HourlyRate(string(job.Type))
		}
		return nil
	})
}

// UpdateLaborRate pins the job's hourly rate, detaching it from settings
// changes. Admin-only.
func (s *Service) UpdateLaborRate(ctx context.Context, jobID uuid.UUID, rate decimal.Decimal, actor shared.Actor) (*Job, error) {
	if err := s.policy.CanManageRates(actor); err != nil {
		return nil, err
	}
	if rate.IsNegative() {
		return nil, fmt.Errorf("%w: rate must not be negative", shared.ErrValidation)
	}
	return s.mutateJob(ctx, jobID, "job.rate_updated", func(job *Job, _ settings.Settings) error {
		if job.Status.Closed() {
			return fmt.Errorf("%w: job %s is %s", shared.ErrConflict, job.JobNumber, job.Status)
		}
		job.LaborRate = rate
		job.LaborRateOverride = true
		return nil
	})
}

// UpdateRevenue sets the agreed revenue. Admin-only.
func (s *Service) UpdateRevenue(ctx context.Context, jobID uuid.UUID, revenue decimal.Decimal, actor shared.Actor) (*Job, error) {
	if err := s.policy.CanManageRevenue(actor); err != nil {
		return nil, err
	}
	if revenue.IsNegative() {
		return nil, fmt.Errorf("%w: revenue must not be negative", shared.ErrValidation)
	}
	return s.mutateJob(ctx, jobID, "job.revenue_updated", func(job *Job, _ settings.Settings) error {
		if job.Status.Closed() {
			return fmt.Errorf("%w: job %s is %s", shared.ErrConflict, job.JobNumber, job.Status)
		}
		job.TotalRevenue = revenue
		return nil
	})
}

// UpdateTechnicianPayment overrides the derived payment. Admin-only.
func (s *Service) UpdateTechnicianPayment(ctx context.Context, jobID uuid.UUID, amount decimal.Decimal, actor shared.Actor) (*Job, error) {
	if err := s.policy.CanManageRates(actor); err != nil {
		return nil, err
	}
	if amount.IsNegative() {
		return nil, fmt.Errorf("%w: payment must not be negative", shared.ErrValidation)
	}
	return s.mutateJob(ctx, jobID, "job.payment_updated", func(job *Job, _ settings.Settings) error {
		job.TechnicianPayment = amount
		job.TechnicianPaymentOverride = true
		return nil
	})
}

// ApproveCosting freezes the financial snapshot. Admin-only; a job can
// be approved exactly once.
func (s *Service) ApproveCosting(ctx context.Context, jobID uuid.UUID, notes string, actor shared.Actor) (*Job, error) {
	if err := s.policy.CanApproveCosting(actor); err != nil {
		return nil, err
	}
	return s.mutateJob(ctx, jobID, "job.costing_approved", func(job *Job, cfg settings.Settings) error {
		if job.CostingApproval.IsApproved {
			return fmt.Errorf("%w: costing already approved for %s", shared.ErrConflict, job.JobNumber)
		}
		if job.Profit.IsNegative() && !cfg.AllowNegativeProfit {
			return fmt.Errorf("%w: negative profit %s requires allow_negative_profit", shared.ErrPolicy, job.Profit)
		}
		now := time.Now().UTC()
		job.CostingApproval = CostingApproval{
			IsApproved:        true,
			ApprovedBy:        actor.ID,
			ApprovedAt:        &now,
			Notes:             notes,
			ProfitAtApproval:  job.Profit,
			CostAtApproval:    job.TotalCost,
			RevenueAtApproval: job.TotalRevenue,
		}
		return nil
	})
}

// UpdateStatus moves the job through the status machine, stamping
// timestamps once and crediting customer revenue on paid.
func (s *Service) UpdateStatus(ctx context.Context, jobID uuid.UUID, next Status, actor shared.Actor) (*Job, error) {
	if !next.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, next)
	}
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}

	var job *Job
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx pgx.Tx, r TxRepository) error {
		var err error
		job, err = r.GetJobForUpdate(ctx, jobID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return fmt.Errorf("%w: job %s", shared.ErrNotFound, jobID)
			}
			return err
		}
		if err := s.policy.CanEditJob(actor, job.AssignedTechnicianID); err != nil {
			return err
		}
		if !job.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: cannot move job %s from %s to %s",
				shared.ErrConflict, job.JobNumber, job.Status, next)
		}
		if next == StatusCompleted && cfg.RequireCostApproval && !job.CostingApproval.IsApproved {
			return fmt.Errorf("%w: costing approval required before completion", shared.ErrPolicy)
		}

		now := time.Now().UTC()
		job.Status = next
		switch next {
		case StatusInProgress:
			if job.StartedAt == nil {
				job.StartedAt = &now
			}
		case StatusCompleted:
			if job.CompletedAt == nil {
				job.CompletedAt = &now
			}
		case StatusPaid:
			if job.PaidAt == nil {
				job.PaidAt = &now
				if err := s.customers.Bind(tx).AddRevenue(ctx, job.CustomerID, job.TotalRevenue); err != nil {
					return err
				}
			}
		}

		job.Recalculate(cfg)
		job.UpdatedAt = now
		return r.UpdateJob(ctx, job)
	})
	if err != nil {
		return nil, err
	}
	s.publishJob(ctx, job, "job.status_changed")
	return job, nil
}

// AddAdditionalCost appends an ad-hoc cost line.
func (s *Service) AddAdditionalCost(ctx context.Context, jobID uuid.UUID, input CostInput, actor shared.Actor) (*Job, error) {
	if input.Description == "" || !input.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: description and positive amount required", shared.ErrValidation)
	}
	return s.mutateJob(ctx, jobID, "job.cost_added", func(job *Job, _ settings.Settings) error {
		if err := s.policy.CanEditJob(actor, job.AssignedTechnicianID); err != nil {
			return err
		}
		if job.Status.Closed() {
			return fmt.Errorf("%w: job %s is %s", shared.ErrConflict, job.JobNumber, job.Status)
		}
		job.AdditionalCosts = append(job.AdditionalCosts, CostLine{
			ID:          uuid.New(),
			Description: input.Description,
			Amount:      input.Amount,
			AddedBy:     actor.ID,
			AddedAt:     time.Now().UTC(),
		})
		return nil
	})
}

// RemoveAdditionalCost drops an ad-hoc cost line.
func (s *Service) RemoveAdditionalCost(ctx context.Context, jobID, costID uuid.UUID, actor shared.Actor) (*Job, error) {
	return s.mutateJob(ctx, jobID, "job.cost_removed", func(job *Job, _ settings.Settings) error {
		if err := s.policy.CanEditJob(actor, job.AssignedTechnicianID); err != nil {
			return err
		}
		if job.Status.Closed() {
			return fmt.Errorf("%w: job %s is %s", shared.ErrConflict, job.JobNumber, job.Status)
		}
		_, idx := job.FindAdditionalCost(costID)
		if idx < 0 {
			return fmt.Errorf("%w: cost line %s", shared.ErrNotFound, costID)
		}
		job.AdditionalCosts = append(job.AdditionalCosts[:idx], job.AdditionalCosts[idx+1:]...)
		return nil
	})
}

// AttachFile uploads the file first and records the URL afterwards, so a
// storage failure never disturbs job state.
func (s *Service) AttachFile(ctx context.Context, jobID uuid.UUID, fileName, contentType string, body []byte, actor shared.Actor) (*Job, error) {
	if fileName == "" || len(body) == 0 {
		return nil, fmt.Errorf("%w: file name and content required", shared.ErrValidation)
	}
	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("%w: job %s", shared.ErrNotFound, jobID)
		}
		return nil, err
	}
	if err := s.policy.CanEditJob(actor, job.AssignedTechnicianID); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("jobs/%s/%s-%s", job.ID, uuid.NewString()[:8], fileName)
	url, err := s.store.Upload(ctx, key, contentType, body)
	if err != nil {
		return nil, err
	}

	return s.mutateJob(ctx, jobID, "job.file_attached", func(job *Job, _ settings.Settings) error {
		job.Attachments = append(job.Attachments, Attachment{
			ID:          uuid.New(),
			FileName:    fileName,
			ContentType: contentType,
			URL:         url,
			UploadedBy:  actor.ID,
			UploadedAt:  time.Now().UTC(),
		})
		return nil
	})
}

// GetJob loads one job.
func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	job, err := s.repo.GetJob(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("%w: job %s", shared.ErrNotFound, id)
		}
		return nil, err
	}
	return job, nil
}

// ListJobs lists jobs with pagination.
func (s *Service) ListJobs(ctx context.Context, f ListFilter) ([]Job, int, error) {
	return s.repo.ListJobs(ctx, f)
}

// mutateJob is the common lock-mutate-recalculate-save path. The current
// settings are handed to the mutation so rates resolve at edit time.
func (s *Service) mutateJob(ctx context.Context, jobID uuid.UUID, event string, mutate func(*Job, settings.Settings) error) (*Job, error) {
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	var job *Job
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx pgx.Tx, r TxRepository) error {
		var err error
		job, err = r.GetJobForUpdate(ctx, jobID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return fmt.Errorf("%w: job %s", shared.ErrNotFound, jobID)
			}
			return err
		}
		if err := mutate(job, cfg); err != nil {
			return err
		}
		job.Recalculate(cfg)
		job.UpdatedAt = time.Now().UTC()
		return r.UpdateJob(ctx, job)
	})
	if err != nil {
		return nil, err
	}
	s.publishJob(ctx, job, event)
	return job, nil
}

func (s *Service) loadJobForEdit(ctx context.Context, r TxRepository, jobID uuid.UUID, actor shared.Actor) (*Job, error) {
	job, err := r.GetJobForUpdate(ctx, jobID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("%w: job %s", shared.ErrNotFound, jobID)
		}
		return nil, err
	}
	if err := s.policy.CanEditJob(actor, job.AssignedTechnicianID); err != nil {
		return nil, err
	}
	if job.Status.Closed() {
		return nil, fmt.Errorf("%w: job %s is %s", shared.ErrConflict, job.JobNumber, job.Status)
	}
	return job, nil
}

func (s *Service) publishJob(ctx context.Context, job *Job, event string) {
	payload := map[string]any{
		"job_id":     job.ID,
		"job_number": job.JobNumber,
		"status":     job.Status,
		"total_cost": job.TotalCost,
		"profit":     job.Profit,
	}
	s.publisher.Publish(ctx, events.JobScope(job.ID), event, payload)
	s.publisher.Publish(ctx, events.ScopeDashboard, event, payload)
}
