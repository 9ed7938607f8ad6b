package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cooltrack/cooltrack/internal/platform/db"
	"github.com/cooltrack/cooltrack/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, email, name, role, password_hash, is_active, created_at, updated_at`

// ListUsers returns all users.
func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("users: list: %w", err)
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *user)
	}
	return out, rows.Err()
}

// GetUser returns a user by id.
func (r *Repository) GetUser(ctx context.Context, id int64) (*User, error) {
	return r.queryUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// FindByEmail returns a user by email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return r.queryUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

// InsertUser persists a new user and fills its generated id.
func (r *Repository) InsertUser(ctx context.Context, user *User) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users (email, name, role, password_hash, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		user.Email, user.Name, string(user.Role), user.PasswordHash,
		user.IsActive, user.CreatedAt, user.UpdatedAt).Scan(&user.ID)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: email %q already registered", shared.ErrConflict, user.Email)
	}
	if err != nil {
		return fmt.Errorf("users: insert: %w", err)
	}
	return nil
}

// UpdateUser persists account changes.
func (r *Repository) UpdateUser(ctx context.Context, user *User) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE users
		SET name = $2, role = $3, password_hash = $4, is_active = $5, updated_at = $6
		WHERE id = $1`,
		user.ID, user.Name, string(user.Role), user.PasswordHash,
		user.IsActive, user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("users: update: %w", err)
	}
	return nil
}

func (r *Repository) queryUser(ctx context.Context, query string, args ...any) (*User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("users: get: %w", err)
	}
	return user, nil
}

func scanUser(row pgx.Row) (*User, error) {
	var user User
	var role string
	if err := row.Scan(&user.ID, &user.Email, &user.Name, &role, &user.PasswordHash,
		&user.IsActive, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return nil, err
	}
	user.Role = shared.Role(role)
	return &user, nil
}
