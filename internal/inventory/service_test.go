package inventory

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/cooltrack/cooltrack/internal/ledger"
	"github.com/cooltrack/cooltrack/internal/shared"
)

type fakeRepo struct {
	items   map[uuid.UUID]*Item
	entries []ledger.Entry
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{items: map[uuid.UUID]*Item{}}
}

func (f *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, f)
}

func (f *fakeRepo) Bind(tx pgx.Tx) TxRepository { return f }

func (f *fakeRepo) GetItemByKey(_ context.Context, key string) (*Item, error) {
	for _, item := range f.items {
		if item.NameKey == key {
			return item, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (f *fakeRepo) GetItem(_ context.Context, id uuid.UUID) (*Item, error) {
	item, ok := f.items[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return item, nil
}

func (f *fakeRepo) ListItems(_ context.Context, _ ListFilter) ([]Item, int, error) {
	var out []Item
	for _, item := range f.items {
		out = append(out, *item)
	}
	return out, len(out), nil
}

func (f *fakeRepo) LowStockItems(_ context.Context) ([]Item, error) {
	var out []Item
	for _, item := range f.items {
		if item.LowStock() {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetItemForUpdate(ctx context.Context, key string) (*Item, error) {
	return f.GetItemByKey(ctx, key)
}

func (f *fakeRepo) GetItemByIDForUpdate(ctx context.Context, id uuid.UUID) (*Item, error) {
	return f.GetItem(ctx, id)
}

func (f *fakeRepo) InsertItem(_ context.Context, item *Item) error {
	f.items[item.ID] = item
	return nil
}

func (f *fakeRepo) UpdateItem(_ context.Context, item *Item) error {
	f.items[item.ID] = item
	return nil
}

func (f *fakeRepo) InsertLot(_ context.Context, _ *Lot) error { return nil }
func (f *fakeRepo) UpdateLot(_ context.Context, _ *Lot) error { return nil }

func (f *fakeRepo) DeleteItem(_ context.Context, id uuid.UUID) error {
	delete(f.items, id)
	return nil
}

func (f *fakeRepo) AppendLedger(_ context.Context, e *ledger.Entry) error {
	if e.TotalValue.IsZero() {
		e.TotalValue = e.Delta.Abs().Mul(e.UnitCost)
	}
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

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestAddStockCreatesItemAndLedgerEntry(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	item, err := svc.AddStock(context.Background(), AddStockInput{
		ItemName:      "Copper Pipe 1/4",
		Unit:          UnitMeter,
		Length:        dec("50"),
		PurchasePrice: dec("12.5"),
		MinValue:      dec("10"),
	}, admin)
	require.NoError(t, err)
	require.True(t, item.TotalValue.Equal(dec("50")))
	require.True(t, item.AveragePurchasePrice.Equal(dec("12.5")))
	require.Len(t, item.Lots, 1)

	require.Len(t, repo.entries, 1)
	entry := repo.entries[0]
	require.Equal(t, ledger.TypePurchase, entry.TransactionType)
	require.True(t, entry.Delta.Equal(dec("50")))
	require.True(t, entry.TotalValue.Equal(dec("625")))
	require.Equal(t, admin.ID, entry.PerformedBy)
}

func TestAddStockMergesCaseInsensitiveNames(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	first, err := svc.AddStock(ctx, AddStockInput{
		ItemName: "Freon R32", Unit: UnitKilogram,
		Quantity: dec("10"), PurchasePrice: dec("80"),
	}, admin)
	require.NoError(t, err)

	second, err := svc.AddStock(ctx, AddStockInput{
		ItemName: "FREON r32", Unit: UnitKilogram,
		Quantity: dec("5"), PurchasePrice: dec("90"),
	}, admin)
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	require.Len(t, second.Lots, 2)
	require.True(t, second.TotalValue.Equal(dec("15")))
	// (10*80 + 5*90) / 15
	require.True(t, second.AveragePurchasePrice.Equal(dec("1250").Div(dec("15"))))
}

func TestAddStockRejectsUnitChange(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.AddStock(ctx, AddStockInput{
		ItemName: "Cable Tie", Unit: UnitPieces,
		Quantity: dec("100"), PurchasePrice: dec("0.1"),
	}, admin)
	require.NoError(t, err)

	_, err = svc.AddStock(ctx, AddStockInput{
		ItemName: "cable tie", Unit: UnitKilogram,
		Quantity: dec("5"), PurchasePrice: dec("1"),
	}, admin)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestAddStockRejectsNonPositiveAmount(t *testing.T) {
	svc := newTestService(newFakeRepo())

	_, err := svc.AddStock(context.Background(), AddStockInput{
		ItemName: "Solder Wire", Unit: UnitKilogram,
		Quantity: dec("0"), PurchasePrice: dec("30"),
	}, admin)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestUseStockConsumesLotsInFIFOOrder(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.AddStock(ctx, AddStockInput{
		ItemName: "Insulation Tube", Unit: UnitMeter,
		Length: dec("20"), PurchasePrice: dec("2"),
		PurchaseDate: time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
	}, admin)
	require.NoError(t, err)
	_, err = svc.AddStock(ctx, AddStockInput{
		ItemName: "Insulation Tube", Unit: UnitMeter,
		Length: dec("30"), PurchasePrice: dec("3"),
		PurchaseDate: time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
	}, admin)
	require.NoError(t, err)

	result, err := svc.UseStock(ctx, UseStockInput{
		ItemName: "insulation tube", Length: dec("25"),
	}, tech)
	require.NoError(t, err)

	// 20m at 2.00 from the older lot, 5m at 3.00 from the newer one.
	require.Len(t, result.UsedLots, 2)
	require.True(t, result.UsedLots[0].Amount.Equal(dec("20")))
	require.True(t, result.UsedLots[0].UnitCost.Equal(dec("2")))
	require.True(t, result.UsedLots[1].Amount.Equal(dec("5")))
	require.True(t, result.UsedLots[1].UnitCost.Equal(dec("3")))
	require.True(t, result.TotalCost.Equal(dec("55")))
	require.True(t, result.AverageUnitCost.Equal(dec("55").Div(dec("25"))))

	item := result.Item
	require.True(t, item.TotalValue.Equal(dec("25")))
	require.False(t, item.Lots[0].IsActive)
	require.True(t, item.Lots[1].IsActive)

	var usage []ledger.Entry
	for _, e := range repo.entries {
		if e.TransactionType == ledger.TypeJobUsage {
			usage = append(usage, e)
		}
	}
	require.Len(t, usage, 2)
	require.True(t, usage[0].Delta.Equal(dec("-20")))
	require.True(t, usage[1].Delta.Equal(dec("-5")))
}

func TestUseStockInsufficientLeavesStateUntouched(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.AddStock(ctx, AddStockInput{
		ItemName: "Refrigerant R410A", Unit: UnitKilogram,
		Quantity: dec("8"), PurchasePrice: dec("95"),
	}, admin)
	require.NoError(t, err)
	entriesBefore := len(repo.entries)

	_, err = svc.UseStock(ctx, UseStockInput{
		ItemName: "Refrigerant R410A", Quantity: dec("9"),
	}, tech)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	item, getErr := svc.repo.GetItemByKey(ctx, FoldName("Refrigerant R410A"))
	require.NoError(t, getErr)
	require.True(t, item.TotalValue.Equal(dec("8")))
	require.Len(t, repo.entries, entriesBefore)
}

func TestUseStockUnknownItem(t *testing.T) {
	svc := newTestService(newFakeRepo())
	_, err := svc.UseStock(context.Background(), UseStockInput{
		ItemName: "Ghost Part", Quantity: dec("1"),
	}, tech)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestReturnStockReactivatesLot(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	item, err := svc.AddStock(ctx, AddStockInput{
		ItemName: "Drain Hose", Unit: UnitMeter,
		Length: dec("10"), PurchasePrice: dec("1.5"),
	}, admin)
	require.NoError(t, err)
	lotID := item.Lots[0].ID

	result, err := svc.UseStock(ctx, UseStockInput{
		ItemName: "Drain Hose", Length: dec("10"),
	}, tech)
	require.NoError(t, err)
	require.True(t, result.Item.TotalValue.IsZero())
	require.False(t, result.Item.Lots[0].IsActive)

	returned, err := svc.ReturnStock(ctx, ReturnStockInput{
		ItemName: "Drain Hose", LotID: lotID, Length: dec("4"),
	}, tech)
	require.NoError(t, err)
	require.True(t, returned.TotalValue.Equal(dec("4")))
	require.True(t, returned.Lots[0].IsActive)

	last := repo.entries[len(repo.entries)-1]
	require.Equal(t, ledger.TypeReturn, last.TransactionType)
	require.True(t, last.Delta.Equal(dec("4")))
	require.True(t, last.UnitCost.Equal(dec("1.5")))
}

func TestReturnStockUnknownLot(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.AddStock(ctx, AddStockInput{
		ItemName: "Drain Hose", Unit: UnitMeter,
		Length: dec("10"), PurchasePrice: dec("1.5"),
	}, admin)
	require.NoError(t, err)

	_, err = svc.ReturnStock(ctx, ReturnStockInput{
		ItemName: "Drain Hose", LotID: uuid.New(), Length: dec("1"),
	}, tech)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCheckAvailability(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.AddStock(ctx, AddStockInput{
		ItemName: "Copper Pipe 3/8", Unit: UnitMeter,
		Length: dec("12"), PurchasePrice: dec("15"),
	}, admin)
	require.NoError(t, err)

	got, err := svc.CheckAvailability(ctx, "copper pipe 3/8", dec("10"))
	require.NoError(t, err)
	require.True(t, got.Available)

	got, err = svc.CheckAvailability(ctx, "copper pipe 3/8", dec("20"))
	require.NoError(t, err)
	require.False(t, got.Available)
	require.True(t, got.Shortfall.Equal(dec("8")))

	got, err = svc.CheckAvailability(ctx, "no such item", dec("1"))
	require.NoError(t, err)
	require.False(t, got.Available)
	require.Nil(t, got.Item)
}

func TestLowStockItems(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.AddStock(ctx, AddStockInput{
		ItemName: "Filter Drier", Unit: UnitPieces,
		Quantity: dec("3"), PurchasePrice: dec("12"), MinValue: dec("5"),
	}, admin)
	require.NoError(t, err)
	_, err = svc.AddStock(ctx, AddStockInput{
		ItemName: "Capacitor 35uF", Unit: UnitPieces,
		Quantity: dec("40"), PurchasePrice: dec("4"), MinValue: dec("5"),
	}, admin)
	require.NoError(t, err)

	low, err := svc.LowStockItems(ctx)
	require.NoError(t, err)
	require.Len(t, low, 1)
	require.Equal(t, "Filter Drier", low[0].Name)
}

func TestUpdateItemLotValueWritesAdjustment(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	item, err := svc.AddStock(ctx, AddStockInput{
		ItemName: "Vacuum Pump Oil", Unit: UnitLiter,
		Quantity: dec("6"), PurchasePrice: dec("20"),
	}, admin)
	require.NoError(t, err)

	newValue := dec("4")
	updated, err := svc.UpdateItem(ctx, item.ID, ItemPatch{
		LotValue: &newValue,
		Reason:   "spillage during transport",
	}, admin)
	require.NoError(t, err)
	require.True(t, updated.TotalValue.Equal(dec("4")))

	last := repo.entries[len(repo.entries)-1]
	require.Equal(t, ledger.TypeAdjustment, last.TransactionType)
	require.True(t, last.Delta.Equal(dec("-2")))
	require.Equal(t, "spillage during transport", last.Reason)
}

func TestDeleteItemBlockedByActiveStock(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	item, err := svc.AddStock(ctx, AddStockInput{
		ItemName: "Flare Nut", Unit: UnitPieces,
		Quantity: dec("12"), PurchasePrice: dec("0.8"),
	}, admin)
	require.NoError(t, err)

	err = svc.DeleteItem(ctx, item.ID, admin)
	require.ErrorIs(t, err, shared.ErrConflict)

	_, err = svc.UseStock(ctx, UseStockInput{ItemName: "Flare Nut", Quantity: dec("12")}, tech)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteItem(ctx, item.ID, admin))
	_, err = svc.GetItem(ctx, item.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestUseThenReturnRoundTripRestoresTotals(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	item, err := svc.AddStock(ctx, AddStockInput{
		ItemName: "Copper Pipe 5/8", Unit: UnitMeter,
		Length: dec("30"), PurchasePrice: dec("18"),
	}, admin)
	require.NoError(t, err)
	lotID := item.Lots[0].ID

	result, err := svc.UseStock(ctx, UseStockInput{
		ItemName: "Copper Pipe 5/8", Length: dec("7.5"),
	}, tech)
	require.NoError(t, err)
	require.True(t, result.Item.TotalValue.Equal(dec("22.5")))

	returned, err := svc.ReturnStock(ctx, ReturnStockInput{
		ItemName: "Copper Pipe 5/8", LotID: lotID, Length: dec("7.5"),
	}, tech)
	require.NoError(t, err)
	require.True(t, returned.TotalValue.Equal(dec("30")))
	require.True(t, returned.AveragePurchasePrice.Equal(dec("18")))

	// Ledger deltas for the item should sum back to the purchased amount.
	sum := decimal.Zero
	for _, e := range repo.entries {
		sum = sum.Add(e.Delta)
	}
	require.True(t, sum.Equal(dec("30")))
}
