package inventory

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

// Repository is the pgx-backed store for grouped items and their lots.
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

const itemColumns = `id, name, name_key, category, unit, total_value,
	average_purchase_price, min_value, created_at, updated_at`

// GetItemByKey loads an item and its lots by case-folded name.
func (r *Repository) GetItemByKey(ctx context.Context, key string) (*Item, error) {
	return queryItem(ctx, r.pool,
		`SELECT `+itemColumns+` FROM grouped_items WHERE name_key = $1`, key)
}

// GetItem loads an item and its lots by id.
func (r *Repository) GetItem(ctx context.Context, id uuid.UUID) (*Item, error) {
	return queryItem(ctx, r.pool,
		`SELECT `+itemColumns+` FROM grouped_items WHERE id = $1`, id)
}

// ListItems returns a page of items, lots included, plus the total count.
func (r *Repository) ListItems(ctx context.Context, f ListFilter) ([]Item, int, error) {
	where := " WHERE 1=1"
	args := []any{}
	idx := 1
	if f.Search != "" {
		where += fmt.Sprintf(" AND name_key LIKE '%%' || $%d || '%%'", idx)
		args = append(args, FoldName(f.Search))
		idx++
	}
	if f.Category != "" {
		where += fmt.Sprintf(" AND category = $%d", idx)
		args = append(args, f.Category)
		idx++
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM grouped_items`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("inventory: count items: %w", err)
	}

	page := shared.NewPagination(f.Page, f.PerPage, total)
	query := `SELECT ` + itemColumns + ` FROM grouped_items` + where +
		fmt.Sprintf(" ORDER BY name_key LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, page.PerPage, page.Offset())

	items, err := queryItems(ctx, r.pool, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// LowStockItems returns items whose total value is at or below min value.
func (r *Repository) LowStockItems(ctx context.Context) ([]Item, error) {
	return queryItems(ctx, r.pool,
		`SELECT `+itemColumns+` FROM grouped_items
		 WHERE total_value <= min_value ORDER BY name_key`)
}

type txRepository struct {
	db     ledger.DBTX
	ledger *ledger.Store
}

func (t *txRepository) GetItemForUpdate(ctx context.Context, key string) (*Item, error) {
	return queryItem(ctx, t.db,
		`SELECT `+itemColumns+` FROM grouped_items WHERE name_key = $1 FOR UPDATE`, key)
}

func (t *txRepository) GetItemByIDForUpdate(ctx context.Context, id uuid.UUID) (*Item, error) {
	return queryItem(ctx, t.db,
		`SELECT `+itemColumns+` FROM grouped_items WHERE id = $1 FOR UPDATE`, id)
}

func (t *txRepository) InsertItem(ctx context.Context, item *Item) error {
	_, err := t.db.Exec(ctx, `
		INSERT INTO grouped_items
			(id, name, name_key, category, unit, total_value, average_purchase_price,
			 min_value, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		item.ID, item.Name, item.NameKey, item.Category, string(item.Unit),
		item.TotalValue, item.AveragePurchasePrice, item.MinValue,
		item.CreatedAt, item.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: item %q already exists", shared.ErrConflict, item.Name)
	}
	if err != nil {
		return fmt.Errorf("inventory: insert item: %w", err)
	}
	return nil
}

func (t *txRepository) UpdateItem(ctx context.Context, item *Item) error {
	_, err := t.db.Exec(ctx, `
		UPDATE grouped_items
		SET name = $2, name_key = $3, category = $4, total_value = $5,
		    average_purchase_price = $6, min_value = $7, updated_at = $8
		WHERE id = $1`,
		item.ID, item.Name, item.NameKey, item.Category, item.TotalValue,
		item.AveragePurchasePrice, item.MinValue, item.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: item %q already exists", shared.ErrConflict, item.Name)
	}
	if err != nil {
		return fmt.Errorf("inventory: update item: %w", err)
	}
	return nil
}

func (t *txRepository) InsertLot(ctx context.Context, lot *Lot) error {
	_, err := t.db.Exec(ctx, `
		INSERT INTO stock_lots
			(id, item_id, value, purchase_price, supplier, purchase_date, expiry_date,
			 batch_number, brand, location, notes, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		lot.ID, lot.ItemID, lot.Value, lot.PurchasePrice, lot.Supplier,
		lot.PurchaseDate, lot.ExpiryDate, lot.BatchNumber, lot.Brand,
		lot.Location, lot.Notes, lot.IsActive, lot.CreatedAt)
	if err != nil {
		return fmt.Errorf("inventory: insert lot: %w", err)
	}
	return nil
}

func (t *txRepository) UpdateLot(ctx context.Context, lot *Lot) error {
	_, err := t.db.Exec(ctx, `
		UPDATE stock_lots
		SET value = $2, purchase_price = $3, supplier = $4, expiry_date = $5,
		    batch_number = $6, brand = $7, location = $8, notes = $9, is_active = $10
		WHERE id = $1`,
		lot.ID, lot.Value, lot.PurchasePrice, lot.Supplier, lot.ExpiryDate,
		lot.BatchNumber, lot.Brand, lot.Location, lot.Notes, lot.IsActive)
	if err != nil {
		return fmt.Errorf("inventory: update lot: %w", err)
	}
	return nil
}

func (t *txRepository) DeleteItem(ctx context.Context, id uuid.UUID) error {
	if _, err := t.db.Exec(ctx, `DELETE FROM stock_lots WHERE item_id = $1`, id); err != nil {
		return fmt.Errorf("inventory: delete lots: %w", err)
	}
	if _, err := t.db.Exec(ctx, `DELETE FROM grouped_items WHERE id = $1`, id); err != nil {
		return fmt.Errorf("inventory: delete item: %w", err)
	}
	return nil
}

func (t *txRepository) AppendLedger(ctx context.Context, e *ledger.Entry) error {
	return t.ledger.Append(ctx, e)
}

func queryItem(ctx context.Context, q ledger.DBTX, query string, args ...any) (*Item, error) {
	var item Item
	var unit string
	err := q.QueryRow(ctx, query, args...).Scan(
		&item.ID, &item.Name, &item.NameKey, &item.Category, &unit,
		&item.TotalValue, &item.AveragePurchasePrice, &item.MinValue,
		&item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("inventory: get item: %w", err)
	}
	item.Unit = Unit(unit)
	if err := loadLots(ctx, q, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func queryItems(ctx context.Context, q ledger.DBTX, query string, args ...any) ([]Item, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("inventory: list items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var item Item
		var unit string
		if err := rows.Scan(&item.ID, &item.Name, &item.NameKey, &item.Category, &unit,
			&item.TotalValue, &item.AveragePurchasePrice, &item.MinValue,
			&item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, err
		}
		item.Unit = Unit(unit)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range items {
		if err := loadLots(ctx, q, &items[i]); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func loadLots(ctx context.Context, q ledger.DBTX, item *Item) error {
	rows, err := q.Query(ctx, `
		SELECT id, item_id, value, purchase_price, supplier, purchase_date, expiry_date,
		       batch_number, brand, location, notes, is_active, created_at
		FROM stock_lots WHERE item_id = $1 ORDER BY purchase_date, created_at`,
		item.ID)
	if err != nil {
		return fmt.Errorf("inventory: load lots: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var lot Lot
		if err := rows.Scan(&lot.ID, &lot.ItemID, &lot.Value, &lot.PurchasePrice,
			&lot.Supplier, &lot.PurchaseDate, &lot.ExpiryDate, &lot.BatchNumber,
			&lot.Brand, &lot.Location, &lot.Notes, &lot.IsActive, &lot.CreatedAt); err != nil {
			return err
		}
		item.Lots = append(item.Lots, &lot)
	}
	return rows.Err()
}
