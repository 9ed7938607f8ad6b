package customers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/cooltrack/cooltrack/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Bind(tx pgx.Tx) TxRepository
	GetCustomer(ctx context.Context, id uuid.UUID) (*Customer, error)
	ListCustomers(ctx context.Context, f ListFilter) ([]Customer, int, error)
	CountJobs(ctx context.Context, customerID uuid.UUID) (int, error)
}

// TxRepository exposes the transactional operations. IncrementJobs and
// AddRevenue are called from job transactions, never from handlers.
type TxRepository interface {
	GetCustomerForUpdate(ctx context.Context, id uuid.UUID) (*Customer, error)
	InsertCustomer(ctx context.Context, c *Customer) error
	UpdateCustomer(ctx context.Context, c *Customer) error
	DeleteCustomer(ctx context.Context, id uuid.UUID) error
	IncrementJobs(ctx context.Context, id uuid.UUID) error
	AddRevenue(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error
}

// Service manages customer records.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
}

// NewService builds a Service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// CreateCustomer registers a new customer. Duplicate emails conflict.
func (s *Service) CreateCustomer(ctx context.Context, input CustomerInput) (*Customer, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("%w: customer name required", shared.ErrValidation)
	}
	now := time.Now().UTC()
	customer := &Customer{
		ID:           uuid.New(),
		Name:         input.Name,
		Phone:        input.Phone,
		Email:        input.Email,
		Address:      input.Address,
		Notes:        input.Notes,
		TotalRevenue: decimal.Zero,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertCustomer(ctx, customer)
	})
	if err != nil {
		return nil, err
	}
	return customer, nil
}

// UpdateCustomer patches the editable fields. Counters are untouched.
func (s *Service) UpdateCustomer(ctx context.Context, id uuid.UUID, input CustomerInput) (*Customer, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("%w: customer name required", shared.ErrValidation)
	}
	var customer *Customer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		customer, err = tx.GetCustomerForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return fmt.Errorf("%w: customer %s", shared.ErrNotFound, id)
			}
			return err
		}
		customer.Name = input.Name
		customer.Phone = input.Phone
		customer.Email = input.Email
		customer.Address = input.Address
		customer.Notes = input.Notes
		customer.UpdatedAt = time.Now().UTC()
		return tx.UpdateCustomer(ctx, customer)
	})
	if err != nil {
		return nil, err
	}
	return customer, nil
}

// DeleteCustomer removes a customer with no jobs on record.
func (s *Service) DeleteCustomer(ctx context.Context, id uuid.UUID) error {
	count, err := s.repo.CountJobs(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: customer has %d jobs on record", shared.ErrConflict, count)
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetCustomerForUpdate(ctx, id); err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return fmt.Errorf("%w: customer %s", shared.ErrNotFound, id)
			}
			return err
		}
		return tx.DeleteCustomer(ctx, id)
	})
}

// GetCustomer loads one customer.
func (s *Service) GetCustomer(ctx context.Context, id uuid.UUID) (*Customer, error) {
	customer, err := s.repo.GetCustomer(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("%w: customer %s", shared.ErrNotFound, id)
		}
		return nil, err
	}
	return customer, nil
}

// ListCustomers lists customers with pagination.
func (s *Service) ListCustomers(ctx context.Context, f ListFilter) ([]Customer, int, error) {
	return s.repo.ListCustomers(ctx, f)
}
