package equipment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cooltrack/cooltrack/internal/ledger"
	"github.com/cooltrack/cooltrack/internal/platform/db"
	"github.com/cooltrack/cooltrack/internal/shared"
)

// Repository is the pgx-backed store for serialized units.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside a repeatable read transaction with a bound
// transactional repository.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, r.Bind(tx))
	})
}

// Bind wraps an already open transaction owned by another module.
func (r *Repository) Bind(tx pgx.Tx) TxRepository {
	return &txRepository{db: tx, ledger: ledger.NewStore(tx)}
}

const unitColumns = `id, serial_number, item_name, brand, model, category,
	purchase_price, sale_price, status, current_job_id, current_customer_id,
	installed_date, notes, created_at, updated_at`

// GetUnit loads a unit by id.
func (r *Repository) GetUnit(ctx context.Context, id uuid.UUID) (*Unit, error) {
	return queryUnit(ctx, r.pool,
		`SELECT `+unitColumns+` FROM serialized_units WHERE id = $1`, id)
}

// GetUnitBySerial loads a unit by serial number.
func (r *Repository) GetUnitBySerial(ctx context.Context, serial string) (*Unit, error) {
	return queryUnit(ctx, r.pool,
		`SELECT `+unitColumns+` FROM serialized_units WHERE serial_number = $1`, serial)
}

// ListUnits returns a page of units plus the total count.
func (r *Repository) ListUnits(ctx context.Context, f ListFilter) ([]Unit, int, error) {
	where := " WHERE 1=1"
	args := []any{}
	idx := 1
	if f.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, string(f.Status))
		idx++
	}
	if f.Category != "" {
		where += fmt.Sprintf(" AND category = $%d", idx)
		args = append(args, f.Category)
		idx++
	}
	if f.Search != "" {
		where += fmt.Sprintf(" AND (serial_number ILIKE '%%' || $%d || '%%' OR item_name ILIKE '%%' || $%d || '%%')", idx, idx)
		args = append(args, f.Search)
		idx++
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM serialized_units`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("equipment: count units: %w", err)
	}

	page := shared.NewPagination(f.Page, f.PerPage, total)
	query := `SELECT ` + unitColumns + ` FROM serialized_units` + where +
		fmt.Sprintf(" ORDER BY serial_number LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, page.PerPage, page.Offset())

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("equipment: list units: %w", err)
	}
	defer rows.Close()

	var units []Unit
	for rows.Next() {
		unit, err := scanUnit(rows)
		if err != nil {
			return nil, 0, err
		}
		units = append(units, *unit)
	}
	return units, total, rows.Err()
}

type txRepository struct {
	db     ledger.DBTX
	ledger *ledger.Store
}

func (t *txRepository) GetUnitBySerialForUpdate(ctx context.Context, serial string) (*Unit, error) {
	return queryUnit(ctx, t.db,
		`SELECT `+unitColumns+` FROM serialized_units WHERE serial_number = $1 FOR UPDATE`, serial)
}

func (t *txRepository) GetUnitForUpdate(ctx context.Context, id uuid.UUID) (*Unit, error) {
	return queryUnit(ctx, t.db,
		`SELECT `+unitColumns+` FROM serialized_units WHERE id = $1 FOR UPDATE`, id)
}

func (t *txRepository) InsertUnit(ctx context.Context, unit *Unit) error {
	_, err := t.db.Exec(ctx, `
		INSERT INTO serialized_units
			(id, serial_number, item_name, brand, model, category, purchase_price,
			 sale_price, status, current_job_id, current_customer_id, installed_date,
			 notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		unit.ID, unit.SerialNumber, unit.ItemName, unit.Brand, unit.Model,
		unit.Category, unit.PurchasePrice, unit.SalePrice, string(unit.Status),
		unit.CurrentJobID, unit.CustomerID, unit.InstalledDate, unit.Notes,
		unit.CreatedAt, unit.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: serial %q already registered", shared.ErrConflict, unit.SerialNumber)
	}
	if err != nil {
		return fmt.Errorf("equipment: insert unit: %w", err)
	}
	return nil
}

func (t *txRepository) UpdateUnit(ctx context.Context, unit *Unit) error {
	_, err := t.db.Exec(ctx, `
		UPDATE serialized_units
		SET item_name = $2, brand = $3, model = $4, category = $5,
		    purchase_price = $6, sale_price = $7, status = $8, current_job_id = $9,
		    current_customer_id = $10, installed_date = $11, notes = $12, updated_at = $13
		WHERE id = $1`,
		unit.ID, unit.ItemName, unit.Brand, unit.Model, unit.Category,
		unit.PurchasePrice, unit.SalePrice, string(unit.Status), unit.CurrentJobID,
		unit.CustomerID, unit.InstalledDate, unit.Notes, unit.UpdatedAt)
	if err != nil {
		return fmt.Errorf("equipment: update unit: %w", err)
	}
	return nil
}

func (t *txRepository) DeleteUnit(ctx context.Context, id uuid.UUID) error {
	if _, err := t.db.Exec(ctx, `DELETE FROM serialized_units WHERE id = $1`, id); err != nil {
		return fmt.Errorf("equipment: delete unit: %w", err)
	}
	return nil
}

func (t *txRepository) AppendLedger(ctx context.Context, e *ledger.Entry) error {
	return t.ledger.Append(ctx, e)
}

func queryUnit(ctx context.Context, q ledger.DBTX, query string, args ...any) (*Unit, error) {
	row := q.QueryRow(ctx, query, args...)
	unit, err := scanUnit(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("equipment: get unit: %w", err)
	}
	return unit, nil
}

func scanUnit(row pgx.Row) (*Unit, error) {
	var unit Unit
	var status string
	if err := row.Scan(&unit.ID, &unit.SerialNumber, &unit.ItemName, &unit.Brand,
		&unit.Model, &unit.Category, &unit.PurchasePrice, &unit.SalePrice, &status,
		&unit.CurrentJobID, &unit.CustomerID, &unit.InstalledDate, &unit.Notes,
		&unit.CreatedAt, &unit.UpdatedAt); err != nil {
		return nil, err
	}
	unit.Status = Status(status)
	return &unit, nil
}
