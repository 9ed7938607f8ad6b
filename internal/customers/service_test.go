package customers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/cooltrack/cooltrack/internal/shared"
)

type fakeRepo struct {
	customers map[uuid.UUID]*Customer
	jobCounts map[uuid.UUID]int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		customers: map[uuid.UUID]*Customer{},
		jobCounts: map[uuid.UUID]int{},
	}
}

func (f *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, f)
}

func (f *fakeRepo) Bind(tx pgx.Tx) TxRepository { return f }

func (f *fakeRepo) GetCustomer(_ context.Context, id uuid.UUID) (*Customer, error) {
	c, ok := f.customers[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return c, nil
}

func (f *fakeRepo) ListCustomers(_ context.Context, _ ListFilter) ([]Customer, int, error) {
	var out []Customer
	for _, c := range f.customers {
		out = append(out, *c)
	}
	return out, len(out), nil
}

func (f *fakeRepo) CountJobs(_ context.Context, id uuid.UUID) (int, error) {
	return f.jobCounts[id], nil
}

func (f *fakeRepo) GetCustomerForUpdate(ctx context.Context, id uuid.UUID) (*Customer, error) {
	return f.GetCustomer(ctx, id)
}

func (f *fakeRepo) InsertCustomer(_ context.Context, c *Customer) error {
	for _, existing := range f.customers {
		if c.Email != "" && existing.Email == c.Email {
			return fmt.Errorf("%w: email %q already registered", shared.ErrConflict, c.Email)
		}
	}
	f.customers[c.ID] = c
	return nil
}

func (f *fakeRepo) UpdateCustomer(_ context.Context, c *Customer) error {
	f.customers[c.ID] = c
	return nil
}

func (f *fakeRepo) DeleteCustomer(_ context.Context, id uuid.UUID) error {
	delete(f.customers, id)
	return nil
}

func (f *fakeRepo) IncrementJobs(_ context.Context, id uuid.UUID) error {
	c, ok := f.customers[id]
	if !ok {
		return shared.ErrNotFound
	}
	c.TotalJobs++
	return nil
}

func (f *fakeRepo) AddRevenue(_ context.Context, id uuid.UUID, amount decimal.Decimal) error {
	c, ok := f.customers[id]
	if !ok {
		return shared.ErrNotFound
	}
	c.TotalRevenue = c.TotalRevenue.Add(amount)
	return nil
}

func newTestService(repo *fakeRepo) *Service {
	return NewService(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCreateCustomer(t *testing.T) {
	svc := newTestService(newFakeRepo())

	c, err := svc.CreateCustomer(context.Background(), CustomerInput{
		Name: "Acme Cold Storage", Email: "ops@acme.test",
	})
	require.NoError(t, err)
	require.Equal(t, 0, c.TotalJobs)
	require.True(t, c.TotalRevenue.IsZero())
}

func TestCreateCustomerDuplicateEmail(t *testing.T) {
	svc := newTestService(newFakeRepo())
	ctx := context.Background()

	_, err := svc.CreateCustomer(ctx, CustomerInput{Name: "A", Email: "dup@test"})
	require.NoError(t, err)
	_, err = svc.CreateCustomer(ctx, CustomerInput{Name: "B", Email: "dup@test"})
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestCreateCustomerRequiresName(t *testing.T) {
	svc := newTestService(newFakeRepo())
	_, err := svc.CreateCustomer(context.Background(), CustomerInput{})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestUpdateCustomerKeepsCounters(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	c, err := svc.CreateCustomer(ctx, CustomerInput{Name: "Before"})
	require.NoError(t, err)
	require.NoError(t, repo.IncrementJobs(ctx, c.ID))
	require.NoError(t, repo.AddRevenue(ctx, c.ID, decimal.NewFromInt(500)))

	updated, err := svc.UpdateCustomer(ctx, c.ID, CustomerInput{Name: "After", Phone: "555-0101"})
	require.NoError(t, err)
	require.Equal(t, "After", updated.Name)
	require.Equal(t, 1, updated.TotalJobs)
	require.True(t, updated.TotalRevenue.Equal(decimal.NewFromInt(500)))
}

func TestDeleteCustomerBlockedByJobs(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	c, err := svc.CreateCustomer(ctx, CustomerInput{Name: "Busy"})
	require.NoError(t, err)
	repo.jobCounts[c.ID] = 2

	err = svc.DeleteCustomer(ctx, c.ID)
	require.ErrorIs(t, err, shared.ErrConflict)

	repo.jobCounts[c.ID] = 0
	require.NoError(t, svc.DeleteCustomer(ctx, c.ID))
	_, err = svc.GetCustomer(ctx, c.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
