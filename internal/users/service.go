package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/cooltrack/cooltrack/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id int64) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	InsertUser(ctx context.Context, user *User) error
	UpdateUser(ctx context.Context, user *User) error
}

// Service handles user business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// GetUser returns one user.
func (s *Service) GetUser(ctx context.Context, id int64) (*User, error) {
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("%w: user %d", shared.ErrNotFound, id)
		}
		return nil, err
	}
	return user, nil
}

// CreateUser registers an account with a bcrypt password hash.
func (s *Service) CreateUser(ctx context.Context, input CreateUserInput) (*User, error) {
	if input.Email == "" || input.Name == "" {
		return nil, fmt.Errorf("%w: email and name required", shared.ErrValidation)
	}
	if len(input.Password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", shared.ErrValidation)
	}
	if !input.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", shared.ErrValidation, input.Role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("users: hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &User{
		Email:        input.Email,
		Name:         input.Name,
		Role:         input.Role,
		PasswordHash: string(hash),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.InsertUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// UpdateUser patches account fields.
func (s *Service) UpdateUser(ctx context.Context, id int64, patch UserPatch) (*User, error) {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		user.Name = *patch.Name
	}
	if patch.Role != nil {
		if !patch.Role.Valid() {
			return nil, fmt.Errorf("%w: unknown role %q", shared.ErrValidation, *patch.Role)
		}
		user.Role = *patch.Role
	}
	if patch.Password != nil {
		if len(*patch.Password) < 8 {
			return nil, fmt.Errorf("%w: password must be at least 8 characters", shared.ErrValidation)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*patch.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("users: hash password: %w", err)
		}
		user.PasswordHash = string(hash)
	}
	if patch.IsActive != nil {
		user.IsActive = *patch.IsActive
	}

	user.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
