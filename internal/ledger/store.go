package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, so the store can
// append inside a caller's transaction and list from the pool.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists ledger entries. There is no update or delete path.
type Store struct {
	db DBTX
}

// NewStore constructs a Store over a pool or an open transaction.
func NewStore(db DBTX) *Store {
	return &Store{db: db}
}

// Append inserts one entry. ID, TotalValue and CreatedAt are filled in when
// the caller left them zero.
func (s *Store) Append(ctx context.Context, e *Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.TotalValue.IsZero() {
		e.TotalValue = e.Delta.Abs().Mul(e.UnitCost)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO ledger_entries
			(id, transaction_type, inventory_type, item_id, lot_id, delta, unit_cost,
			 total_value, reference_type, reference_id, performed_by, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		e.ID, string(e.TransactionType), string(e.InventoryType), e.ItemID, e.LotID,
		e.Delta, e.UnitCost, e.TotalValue, e.ReferenceType, e.ReferenceID,
		e.PerformedBy, e.Reason, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("ledger: append: %w", err)
	}
	return nil
}

// List returns entries matching the filter, newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]Entry, error) {
	query := `
		SELECT id, transaction_type, inventory_type, item_id, lot_id, delta, unit_cost,
		       total_value, reference_type, reference_id, performed_by, reason, created_at
		FROM ledger_entries WHERE 1=1`
	args := []any{}
	idx := 1
	add := func(clause string, value any) {
		query += fmt.Sprintf(" AND %s = $%d", clause, idx)
		args = append(args, value)
		idx++
	}
	if f.ItemID != nil {
		add("item_id", *f.ItemID)
	}
	if f.TransactionType != "" {
		add("transaction_type", string(f.TransactionType))
	}
	if f.InventoryType != "" {
		add("inventory_type", string(f.InventoryType))
	}
	if f.ReferenceID != "" {
		add("reference_id", f.ReferenceID)
	}
	if !f.From.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", idx)
		args = append(args, f.From)
		idx++
	}
	if !f.To.IsZero() {
		query += fmt.Sprintf(" AND created_at <= $%d", idx)
		args = append(args, f.To)
		idx++
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, f.Offset)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger: list: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var txType, invType string
		if err := rows.Scan(&e.ID, &txType, &invType, &e.ItemID, &e.LotID, &e.Delta,
			&e.UnitCost, &e.TotalValue, &e.ReferenceType, &e.ReferenceID,
			&e.PerformedBy, &e.Reason, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.TransactionType = TransactionType(txType)
		e.InventoryType = InventoryType(invType)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
