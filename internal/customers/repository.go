package customers

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/cooltrack/cooltrack/internal/ledger"
	"github.com/cooltrack/cooltrack/internal/platform/db"
	"github.com/cooltrack/cooltrack/internal/shared"
)

// Repository is the pgx-backed customer store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside a repeatable read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, r.Bind(tx))
	})
}

// Bind wraps an already open transaction owned by another module.
func (r *Repository) Bind(tx pgx.Tx) TxRepository {
	return &txRepository{db: tx}
}

const customerColumns = `id, name, phone, email, address, notes, total_jobs,
	total_revenue, created_at, updated_at`

// GetCustomer loads a customer by id.
func (r *Repository) GetCustomer(ctx context.Context, id uuid.UUID) (*Customer, error) {
	return queryCustomer(ctx, r.pool,
		`SELECT `+customerColumns+` FROM customers WHERE id = $1`, id)
}

// ListCustomers returns a page of customers plus the total count.
func (r *Repository) ListCustomers(ctx context.Context, f ListFilter) ([]Customer, int, error) {
	where := " WHERE 1=1"
	args := []any{}
	idx := 1
	if f.Search != "" {
		where += fmt.Sprintf(" AND (name ILIKE '%%' || $%d || '%%' OR phone ILIKE '%%' || $%d || '%%')", idx, idx)
		args = append(args, f.Search)
		idx++
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM customers`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("customers: count: %w", err)
	}

	page := shared.NewPagination(f.Page, f.PerPage, total)
	query := `SELECT ` + customerColumns + ` FROM customers` + where +
		fmt.Sprintf(" ORDER BY name LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, page.PerPage, page.Offset())

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("customers: list: %w", err)
	}
	defer rows.Close()

	var out []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *c)
	}
	return out, total, rows.Err()
}

// CountJobs reports how many jobs reference the customer.
func (r *Repository) CountJobs(ctx context.Context, customerID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM jobs WHERE customer_id = $1`, customerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("customers: count jobs: %w", err)
	}
	return count, nil
}

type txRepository struct {
	db ledger.DBTX
}

func (t *txRepository) GetCustomerForUpdate(ctx context.Context, id uuid.UUID) (*Customer, error) {
	return queryCustomer(ctx, t.db,
		`SELECT `+customerColumns+` FROM customers WHERE id = $1 FOR UPDATE`, id)
}

func (t *txRepository) InsertCustomer(ctx context.Context, c *Customer) error {
	_, err := t.db.Exec(ctx, `
		INSERT INTO customers
			(id, name, phone, email, address, notes, total_jobs, total_revenue,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.Name, c.Phone, c.Email, c.Address, c.Notes, c.TotalJobs,
		c.TotalRevenue, c.CreatedAt, c.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: email %q already registered", shared.ErrConflict, c.Email)
	}
	if err != nil {
		return fmt.Errorf("customers: insert: %w", err)
	}
	return nil
}

func (t *txRepository) UpdateCustomer(ctx context.Context, c *Customer) error {
	_, err := t.db.Exec(ctx, `
		UPDATE customers
		SET name = $2, phone = $3, email = $4, address = $5, notes = $6, updated_at = $7
		WHERE id = $1`,
		c.ID, c.Name, c.Phone, c.Email, c.Address, c.Notes, c.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: email %q already registered", shared.ErrConflict, c.Email)
	}
	if err != nil {
		return fmt.Errorf("customers: update: %w", err)
	}
	return nil
}

func (t *txRepository) DeleteCustomer(ctx context.Context, id uuid.UUID) error {
	if _, err := t.db.Exec(ctx, `DELETE FROM customers WHERE id = $1`, id); err != nil {
		return fmt.Errorf("customers: delete: %w", err)
	}
	return nil
}

func (t *txRepository) IncrementJobs(ctx context.Context, id uuid.UUID) error {
	tag, err := t.db.Exec(ctx,
		`UPDATE customers SET total_jobs = total_jobs + 1, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("customers: increment jobs: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: customer %s", shared.ErrNotFound, id)
	}
	return nil
}

func (t *txRepository) AddRevenue(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	tag, err := t.db.Exec(ctx,
		`UPDATE customers SET total_revenue = total_revenue + $2, updated_at = NOW() WHERE id = $1`,
		id, amount)
	if err != nil {
		return fmt.Errorf("customers: add revenue: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: customer %s", shared.ErrNotFound, id)
	}
	return nil
}

func queryCustomer(ctx context.Context, q ledger.DBTX, query string, args ...any) (*Customer, error) {
	row := q.QueryRow(ctx, query, args...)
	c, err := scanCustomer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("customers: get: %w", err)
	}
	return c, nil
}

func scanCustomer(row pgx.Row) (*Customer, error) {
	var c Customer
	if err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.Address, &c.Notes,
		&c.TotalJobs, &c.TotalRevenue, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}
