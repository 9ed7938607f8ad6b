package jobcost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cooltrack/cooltrack/internal/ledger"
	"github.com/cooltrack/cooltrack/internal/platform/db"
	"github.com/cooltrack/cooltrack/internal/shared"
)

// Repository is the pgx-backed job store. Line collections live in JSONB
// columns so a job saves and loads as one document under one row lock.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside a repeatable read transaction and hands the raw
// transaction along so engine repositories can be bound onto it.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, pgx.Tx, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, tx, &txRepository{db: tx})
	})
}

const jobColumns = `id, job_number, customer_id, customer_name, customer_phone,
	customer_address, type, status, assigned_technician_id, description,
	scheduled_at, started_at, completed_at, paid_at,
	materials, labor_hours, labor_rate, labor_rate_override, labor_cost, additional_costs,
	total_material_cost, total_cost, total_revenue, profit,
	technician_payment, technician_payment_override,
	costing_approval, attachments, created_at, updated_at`

// GetJob loads a job by id.
func (r *Repository) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	return queryJob(ctx, r.pool, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
}

// ListJobs returns a page of jobs plus the total count.
func (r *Repository) ListJobs(ctx context.Context, f ListFilter) ([]Job, int, error) {
	where := " WHERE 1=1"
	args := []any{}
	idx := 1
	if f.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, f.Status)
		idx++
	}
	if f.Type != "" {
		where += fmt.Sprintf(" AND type = $%d", idx)
		args = append(args, f.Type)
		idx++
	}
	if f.TechnicianID != 0 {
		where += fmt.Sprintf(" AND assigned_technician_id = $%d", idx)
		args = append(args, f.TechnicianID)
		idx++
	}
	if f.CustomerID != nil {
		where += fmt.Sprintf(" AND customer_id = $%d", idx)
		args = append(args, *f.CustomerID)
		idx++
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM jobs`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("jobcost: count: %w", err)
	}

	page := shared.NewPagination(f.Page, f.PerPage, total)
	query := `SELECT ` + jobColumns + ` FROM jobs` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, page.PerPage, page.Offset())

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("jobcost: list: %w", err)
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *job)
	}
	return out, total, rows.Err()
}

type txRepository struct {
	db ledger.DBTX
}

func (t *txRepository) GetJobForUpdate(ctx context.Context, id uuid.UUID) (*Job, error) {
	return queryJob(ctx, t.db, `SELECT `+jobColumns+` FROM jobs WHERE id = $1 FOR UPDATE`, id)
}

// NextJobSequence reserves the next per-year number. The counter row is
// locked by the upsert so concurrent creates cannot collide.
func (t *txRepository) NextJobSequence(ctx context.Context, year int) (int, error) {
	var seq int
	err := t.db.QueryRow(ctx, `
		INSERT INTO job_counters (year, last_seq)
		VALUES ($1, 1)
		ON CONFLICT (year) DO UPDATE SET last_seq = job_counters.last_seq + 1
		RETURNING last_seq`, year).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("jobcost: next sequence: %w", err)
	}
	return seq, nil
}

func (t *txRepository) InsertJob(ctx context.Context, job *Job) error {
	docs, err := marshalDocs(job)
	if err != nil {
		return err
	}
	_, err = t.db.Exec(ctx, `
		INSERT INTO jobs
			(id, job_number, customer_id, customer_name, customer_phone,
			 customer_address, type, status, assigned_technician_id, description,
			 scheduled_at, started_at, completed_at, paid_at,
			 materials, labor_hours, labor_rate, labor_rate_override, labor_cost, additional_costs,
			 total_material_cost, total_cost, total_revenue, profit,
			 technician_payment, technician_payment_override,
			 costing_approval, attachments, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
			$21, $22, $23, $24, $25, $26, $27, $28, $29, $30)`,
		job.ID, job.JobNumber, job.CustomerID, job.CustomerName, job.CustomerPhone,
		job.CustomerAddress, job.Type, job.Status, job.AssignedTechnicianID, job.Description,
		job.ScheduledAt, job.StartedAt, job.CompletedAt, job.PaidAt,
		docs.materials, job.LaborHours, job.LaborRate, job.LaborRateOverride, job.LaborCost, docs.additionalCosts,
		job.TotalMaterialCost, job.TotalCost, job.TotalRevenue, job.Profit,
		job.TechnicianPayment, job.TechnicianPaymentOverride,
		docs.approval, docs.attachments, job.CreatedAt, job.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: job number %s already exists", shared.ErrConflict, job.JobNumber)
	}
	if err != nil {
		return fmt.Errorf("jobcost: insert: %w", err)
	}
	return nil
}

func (t *txRepository) UpdateJob(ctx context.Context, job *Job) error {
	docs, err := marshalDocs(job)
	if err != nil {
		return err
	}
	tag, err := t.db.Exec(ctx, `
		UPDATE jobs SET
			status = $2, started_at = $3, completed_at = $4, paid_at = $5,
			materials = $6, labor_hours = $7, labor_rate = $8, labor_rate_override = $9,
			labor_cost = $10, additional_costs = $11, total_material_cost = $12,
			total_cost = $13, total_revenue = $14, profit = $15, technician_payment = $16,
			technician_payment_override = $17, costing_approval = $18,
			attachments = $19, description = $20, updated_at = $21
		WHERE id = $1`,
		job.ID, job.Status, job.StartedAt, job.CompletedAt, job.PaidAt,
		docs.materials, job.LaborHours, job.LaborRate, job.LaborRateOverride,
		job.LaborCost, docs.additionalCosts, job.TotalMaterialCost,
		job.TotalCost, job.TotalRevenue, job.Profit, job.TechnicianPayment,
		job.TechnicianPaymentOverride, docs.approval,
		docs.attachments, job.Description, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("jobcost: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: job %s", shared.ErrNotFound, job.ID)
	}
	return nil
}

type jobDocs struct {
	materials       []byte
	additionalCosts []byte
	approval        []byte
	attachments     []byte
}

func marshalDocs(job *Job) (jobDocs, error) {
	var docs jobDocs
	var err error
	if docs.materials, err = json.Marshal(job.Materials); err != nil {
		return docs, fmt.Errorf("jobcost: marshal materials: %w", err)
	}
	if docs.additionalCosts, err = json.Marshal(job.AdditionalCosts); err != nil {
		return docs, fmt.Errorf("jobcost: marshal additional costs: %w", err)
	}
	if docs.approval, err = json.Marshal(job.CostingApproval); err != nil {
		return docs, fmt.Errorf("jobcost: marshal approval: %w", err)
	}
	if docs.attachments, err = json.Marshal(job.Attachments); err != nil {
		return docs, fmt.Errorf("jobcost: marshal attachments: %w", err)
	}
	return docs, nil
}

func queryJob(ctx context.Context, q ledger.DBTX, query string, args ...any) (*Job, error) {
	row := q.QueryRow(ctx, query, args...)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("jobcost: get: %w", err)
	}
	return job, nil
}

func scanJob(row pgx.Row) (*Job, error) {
	var job Job
	var materials, additionalCosts, approval, attachments []byte
	err := row.Scan(
		&job.ID, &job.JobNumber, &job.CustomerID, &job.CustomerName, &job.CustomerPhone,
		&job.CustomerAddress, &job.Type, &job.Status, &job.AssignedTechnicianID, &job.Description,
		&job.ScheduledAt, &job.StartedAt, &job.CompletedAt, &job.PaidAt,
		&materials, &job.LaborHours, &job.LaborRate, &job.LaborRateOverride, &job.LaborCost, &additionalCosts,
		&job.TotalMaterialCost, &job.TotalCost, &job.TotalRevenue, &job.Profit,
		&job.TechnicianPayment, &job.TechnicianPaymentOverride,
		&approval, &attachments, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(materials, &job.Materials); err != nil {
		return nil, fmt.Errorf("jobcost: unmarshal materials: %w", err)
	}
	if err := json.Unmarshal(additionalCosts, &job.AdditionalCosts); err != nil {
		return nil, fmt.Errorf("jobcost: unmarshal additional costs: %w", err)
	}
	if err := json.Unmarshal(approval, &job.CostingApproval); err != nil {
		return nil, fmt.Errorf("jobcost: unmarshal approval: %w", err)
	}
	if err := json.Unmarshal(attachments, &job.Attachments); err != nil {
		return nil, fmt.Errorf("jobcost: unmarshal attachments: %w", err)
	}
	return &job, nil
}
