package equipment

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/cooltrack/cooltrack/internal/ledger"
	"github.com/cooltrack/cooltrack/internal/shared"
)

type fakeRepo struct {
	units   map[uuid.UUID]*Unit
	entries []ledger.Entry
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{units: map[uuid.UUID]*Unit{}}
}

func (f *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, f)
}

func (f *fakeRepo) Bind(tx pgx.Tx) TxRepository { return f }

func (f *fakeRepo) GetUnit(_ context.Context, id uuid.UUID) (*Unit, error) {
	unit, ok := f.units[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return unit, nil
}

func (f *fakeRepo) GetUnitBySerial(_ context.Context, serial string) (*Unit, error) {
	for _, unit := range f.units {
		if unit.SerialNumber == serial {
			return unit, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (f *fakeRepo) ListUnits(_ context.Context, _ ListFilter) ([]Unit, int, error) {
	var out []Unit
	for _, unit := range f.units {
		out = append(out, *unit)
	}
	return out, len(out), nil
}

func (f *fakeRepo) GetUnitBySerialForUpdate(ctx context.Context, serial string) (*Unit, error) {
	return f.GetUnitBySerial(ctx, serial)
}

func (f *fakeRepo) GetUnitForUpdate(ctx context.Context, id uuid.UUID) (*Unit, error) {
	return f.GetUnit(ctx, id)
}

func (f *fakeRepo) InsertUnit(_ context.Context, unit *Unit) error {
	f.units[unit.ID] = unit
	return nil
}

func (f *fakeRepo) UpdateUnit(_ context.Context, unit *Unit) error {
	f.units[unit.ID] = unit
	return nil
}

func (f *fakeRepo) DeleteUnit(_ context.Context, id uuid.UUID) error {
	delete(f.units, id)
	return nil
}

func (f *fakeRepo) AppendLedger(_ context.Context, e *ledger.Entry) error {
	f.entries = append(f.entries, *e)
	return nil
}

func newTestService(repo *fakeRepo) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, nil, logger)
}

var (
	admin = shared.Actor{ID: 1, Name: "boss", Role: shared.RoleAdmin}
	tech  = shared.Actor{ID: 2, Name: "tech", Role: shared.RoleTechnician}
)

func addTestUnit(t *testing.T, svc *Service, serial string) *Unit {
	t.Helper()
	unit, err := svc.AddUnit(context.Background(), AddUnitInput{
		SerialNumber:  serial,
		ItemName:      "Split AC 1.5HP",
		Brand:         "Daikin",
		PurchasePrice: decimal.NewFromInt(450),
		SalePrice:     decimal.NewFromInt(600),
	}, admin)
	require.NoError(t, err)
	return unit
}

func TestAddUnitWritesPurchaseEntry(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	unit := addTestUnit(t, svc, "SN-001")
	require.Equal(t, StatusAvailable, unit.Status)

	require.Len(t, repo.entries, 1)
	entry := repo.entries[0]
	require.Equal(t, ledger.TypePurchase, entry.TransactionType)
	require.Equal(t, ledger.InventorySerialized, entry.InventoryType)
	require.Equal(t, unit.ID, entry.ItemID)
}

func TestAddUnitRejectsDuplicateSerial(t *testing.T) {
	svc := newTestService(newFakeRepo())
	addTestUnit(t, svc, "SN-001")

	_, err := svc.AddUnit(context.Background(), AddUnitInput{
		SerialNumber: "SN-001", ItemName: "Split AC 2HP",
	}, admin)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestInstallAndReturnLifecycle(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	addTestUnit(t, svc, "SN-002")
	jobID := uuid.New()
	customerID := uuid.New()

	unit, err := svc.Install(ctx, "SN-002", jobID, customerID, tech)
	require.NoError(t, err)
	require.Equal(t, StatusInstalled, unit.Status)
	require.NotNil(t, unit.CurrentJobID)
	require.Equal(t, jobID, *unit.CurrentJobID)
	require.NotNil(t, unit.InstalledDate)

	// A second install must conflict while the unit is out.
	_, err = svc.Install(ctx, "SN-002", uuid.New(), uuid.New(), tech)
	require.ErrorIs(t, err, shared.ErrConflict)

	unit, err = svc.Return(ctx, "SN-002", "job cancelled", tech)
	require.NoError(t, err)
	require.Equal(t, StatusAvailable, unit.Status)
	require.Nil(t, unit.CurrentJobID)
	require.Nil(t, unit.CustomerID)
	require.Nil(t, unit.InstalledDate)

	last := repo.entries[len(repo.entries)-1]
	require.Equal(t, ledger.TypeReturn, last.TransactionType)
	require.Equal(t, jobID.String(), last.ReferenceID)
	require.Equal(t, "job cancelled", last.Reason)
}

func TestReturnRequiresInstalledStatus(t *testing.T) {
	svc := newTestService(newFakeRepo())
	addTestUnit(t, svc, "SN-003")

	_, err := svc.Return(context.Background(), "SN-003", "", tech)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestInstallUnknownSerial(t *testing.T) {
	svc := newTestService(newFakeRepo())
	_, err := svc.Install(context.Background(), "SN-MISSING", uuid.New(), uuid.New(), tech)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestUpdateUnitStatusChangeClearsJobRefs(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	unit := addTestUnit(t, svc, "SN-004")
	_, err := svc.Install(ctx, "SN-004", uuid.New(), uuid.New(), tech)
	require.NoError(t, err)

	status := StatusMaintenance
	updated, err := svc.UpdateUnit(ctx, unit.ID, UnitPatch{
		Status: &status,
		Reason: "compressor rattle",
	}, admin)
	require.NoError(t, err)
	require.Equal(t, StatusMaintenance, updated.Status)
	require.Nil(t, updated.CurrentJobID)
	require.Nil(t, updated.CustomerID)
	require.Nil(t, updated.InstalledDate)

	last := repo.entries[len(repo.entries)-1]
	require.Equal(t, ledger.TypeStatusChange, last.TransactionType)
	require.Contains(t, last.Reason, "installed to maintenance")
}

func TestUpdateUnitRejectsUnknownStatus(t *testing.T) {
	svc := newTestService(newFakeRepo())
	unit := addTestUnit(t, svc, "SN-005")

	bad := Status("scrapped")
	_, err := svc.UpdateUnit(context.Background(), unit.ID, UnitPatch{Status: &bad}, admin)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestDeleteUnitBlockedWhileInstalled(t *testing.T) {
	svc := newTestService(newFakeRepo())
	ctx := context.Background()

	unit := addTestUnit(t, svc, "SN-006")
	_, err := svc.Install(ctx, "SN-006", uuid.New(), uuid.New(), tech)
	require.NoError(t, err)

	err = svc.DeleteUnit(ctx, unit.ID, admin)
	require.ErrorIs(t, err, shared.ErrConflict)

	_, err = svc.Return(ctx, "SN-006", "", tech)
	require.NoError(t, err)
	require.NoError(t, svc.DeleteUnit(ctx, unit.ID, admin))
	_, err = svc.GetUnit(ctx, unit.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
