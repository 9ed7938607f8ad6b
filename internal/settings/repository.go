package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cooltrack/cooltrack/internal/shared"
)

// Repository stores the settings as one JSONB row.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Load reads the single settings row.
func (r *Repository) Load(ctx context.Context) (*Settings, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx,
		`SELECT payload FROM app_settings WHERE id = 1`).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("settings: load: %w", err)
	}
	var s Settings
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("settings: decode: %w", err)
	}
	return &s, nil
}

// Save upserts the single settings row.
func (r *Repository) Save(ctx context.Context, s *Settings) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("settings: encode: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO app_settings (id, payload, updated_at)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET payload = $1, updated_at = $2`,
		raw, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("settings: save: %w", err)
	}
	return nil
}
