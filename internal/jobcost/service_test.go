package jobcost

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/cooltrack/cooltrack/internal/customers"
	"github.com/cooltrack/cooltrack/internal/equipment"
	"github.com/cooltrack/cooltrack/internal/events"
	"github.com/cooltrack/cooltrack/internal/inventory"
	"github.com/cooltrack/cooltrack/internal/policy"
	"github.com/cooltrack/cooltrack/internal/settings"
	"github.com/cooltrack/cooltrack/internal/shared"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var (
	admin    = shared.Actor{ID: 1, Name: "Alex", Role: shared.RoleAdmin}
	tech     = shared.Actor{ID: 7, Name: "Dana", Role: shared.RoleTechnician}
	otherTec = shared.Actor{ID: 8, Name: "Sam", Role: shared.RoleTechnician}
)

// fixture wires the service against in-memory fakes. WithTx snapshots
// every fake store and restores it when the callback errors, mirroring
// the rollback behavior of the real transaction.
type fixture struct {
	repo  *fakeJobRepo
	inv   *fakeInventory
	eq    *fakeEquipment
	cust  *fakeCustomers
	cfg   settings.Settings
	files *fakeStorage
	svc   *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fx := &fixture{
		inv: &fakeInventory{
			stock: map[string]decimal.Decimal{},
			cost:  map[string]decimal.Decimal{},
			lots:  map[string]uuid.UUID{},
		},
		eq:    &fakeEquipment{units: map[string]*equipment.Unit{}},
		cust:  &fakeCustomers{customers: map[uuid.UUID]*customers.Customer{}},
		cfg:   settings.Defaults(),
		files: &fakeStorage{},
	}
	fx.repo = &fakeJobRepo{fx: fx, jobs: map[uuid.UUID]*Job{}, counters: map[int]int{}}
	fx.svc = NewService(
		fx.repo, fx.inv, fx.eq, fx.cust, &fakeSettings{fx: fx},
		fx.files, events.Nop{}, policy.New(),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return fx
}

func (fx *fixture) addCustomer(t *testing.T) *customers.Customer {
	t.Helper()
	c := &customers.Customer{
		ID:      uuid.New(),
		Name:    "Northside Bakery",
		Phone:   "555-0100",
		Address: "12 Oven Lane",
	}
	fx.cust.customers[c.ID] = c
	return c
}

func (fx *fixture) addStock(name string, amount, unitCost decimal.Decimal) uuid.UUID {
	lotID := uuid.New()
	fx.inv.stock[name] = amount
	fx.inv.cost[name] = unitCost
	fx.inv.lots[name] = lotID
	return lotID
}

func (fx *fixture) addUnit(serial, itemName string, salePrice decimal.Decimal) {
	fx.eq.units[serial] = &equipment.Unit{
		ID:           uuid.New(),
		SerialNumber: serial,
		ItemName:     itemName,
		SalePrice:    salePrice,
		Status:       equipment.StatusAvailable,
	}
}

func (fx *fixture) createJob(t *testing.T, customerID uuid.UUID) *Job {
	t.Helper()
	job, err := fx.svc.CreateJob(context.Background(), CreateJobInput{
		CustomerID:           customerID,
		Type:                 TypeInstallation,
		AssignedTechnicianID: tech.ID,
	}, admin)
	require.NoError(t, err)
	return job
}

type snapshot struct {
	jobs     map[uuid.UUID]*Job
	counters map[int]int
	stock    map[string]decimal.Decimal
	units    map[string]*equipment.Unit
	revenue  map[uuid.UUID]decimal.Decimal
}

func (fx *fixture) snapshot() snapshot {
	s := snapshot{
		jobs:     map[uuid.UUID]*Job{},
		counters: map[int]int{},
		stock:    map[string]decimal.Decimal{},
		units:    map[string]*equipment.Unit{},
		revenue:  map[uuid.UUID]decimal.Decimal{},
	}
	for id, job := range fx.repo.jobs {
		s.jobs[id] = cloneJob(job)
	}
	for y, n := range fx.repo.counters {
		s.counters[y] = n
	}
	for k, v := range fx.inv.stock {
		s.stock[k] = v
	}
	for k, u := range fx.eq.units {
		copied := *u
		s.units[k] = &copied
	}
	for id, c := range fx.cust.customers {
		s.revenue[id] = c.TotalRevenue
	}
	return s
}

func (fx *fixture) restore(s snapshot) {
	fx.repo.jobs = s.jobs
	fx.repo.counters = s.counters
	fx.inv.stock = s.stock
	fx.eq.units = s.units
	for id, rev := range s.revenue {
		fx.cust.customers[id].TotalRevenue = rev
	}
}

func cloneJob(job *Job) *Job {
	raw, err := json.Marshal(job)
	if err != nil {
		panic(err)
	}
	var out Job
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(err)
	}
	return &out
}

type fakeJobRepo struct {
	fx       *fixture
	jobs     map[uuid.UUID]*Job
	counters map[int]int
}

func (f *fakeJobRepo) WithTx(ctx context.Context, fn func(context.Context, pgx.Tx, TxRepository) error) error {
	snap := f.fx.snapshot()
	if err := fn(ctx, nil, f); err != nil {
		f.fx.restore(snap)
		return err
	}
	return nil
}

func (f *fakeJobRepo) GetJob(_ context.Context, id uuid.UUID) (*Job, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return cloneJob(job), nil
}

func (f *fakeJobRepo) ListJobs(_ context.Context, _ ListFilter) ([]Job, int, error) {
	var out []Job
	for _, job := range f.jobs {
		out = append(out, *cloneJob(job))
	}
	return out, len(out), nil
}

func (f *fakeJobRepo) GetJobForUpdate(ctx context.Context, id uuid.UUID) (*Job, error) {
	return f.GetJob(ctx, id)
}

func (f *fakeJobRepo) NextJobSequence(_ context.Context, year int) (int, error) {
	f.counters[year]++
	return f.counters[year], nil
}

func (f *fakeJobRepo) InsertJob(_ context.Context, job *Job) error {
	f.jobs[job.ID] = cloneJob(job)
	return nil
}

func (f *fakeJobRepo) UpdateJob(_ context.Context, job *Job) error {
	if _, ok := f.jobs[job.ID]; !ok {
		return shared.ErrNotFound
	}
	f.jobs[job.ID] = cloneJob(job)
	return nil
}

type fakeInventory struct {
	stock map[string]decimal.Decimal
	cost  map[string]decimal.Decimal
	lots  map[string]uuid.UUID
}

func pickAmount(values ...decimal.Decimal) decimal.Decimal {
	for _, v := range values {
		if v.IsPositive() {
			return v
		}
	}
	return decimal.Zero
}

func (f *fakeInventory) UseStockTx(_ context.Context, _ pgx.Tx, input inventory.UseStockInput, _ shared.Actor) (*inventory.UsageResult, error) {
	amount := pickAmount(input.Quantity, input.Length, input.ValueUsed)
	have, ok := f.stock[input.ItemName]
	if !ok {
		return nil, fmt.Errorf("%w: item %q", shared.ErrNotFound, input.ItemName)
	}
	if have.LessThan(amount) {
		return nil, fmt.Errorf("%w: need %s, have %s", shared.ErrInsufficientStock, amount, have)
	}
	f.stock[input.ItemName] = have.Sub(amount)

	unitCost := f.cost[input.ItemName]
	return &inventory.UsageResult{
		Item: &inventory.Item{Name: input.ItemName, Unit: inventory.UnitPieces},
		UsedLots: []inventory.UsedLot{{
			LotID:    f.lots[input.ItemName],
			Amount:   amount,
			UnitCost: unitCost,
			Cost:     amount.Mul(unitCost),
		}},
		TotalCost:       amount.Mul(unitCost),
		AverageUnitCost: unitCost,
	}, nil
}

func (f *fakeInventory) ReturnStockTx(_ context.Context, _ pgx.Tx, input inventory.ReturnStockInput, _ shared.Actor) (*inventory.Item, error) {
	if f.lots[input.ItemName] != input.LotID {
		return nil, fmt.Errorf("%w: lot %s", shared.ErrNotFound, input.LotID)
	}
	amount := pickAmount(input.Quantity, input.Length, input.ValueUsed)
	f.stock[input.ItemName] = f.stock[input.ItemName].Add(amount)
	return &inventory.Item{Name: input.ItemName, TotalValue: f.stock[input.ItemName]}, nil
}

type fakeEquipment struct {
	units map[string]*equipment.Unit
}

func (f *fakeEquipment) InstallTx(_ context.Context, _ pgx.Tx, serial string, jobID, customerID uuid.UUID, _ shared.Actor) (*equipment.Unit, error) {
	unit, ok := f.units[serial]
	if !ok {
		return nil, fmt.Errorf("%w: serial %q", shared.ErrNotFound, serial)
	}
	if unit.Status != equipment.StatusAvailable {
		return nil, fmt.Errorf("%w: unit %q is %s", shared.ErrConflict, serial, unit.Status)
	}
	unit.Status = equipment.StatusInstalled
	unit.CurrentJobID = &jobID
	unit.CustomerID = &customerID
	copied := *unit
	return &copied, nil
}

func (f *fakeEquipment) ReturnTx(_ context.Context, _ pgx.Tx, serial, _ string, _ shared.Actor) (*equipment.Unit, error) {
	unit, ok := f.units[serial]
	if !ok {
		return nil, fmt.Errorf("%w: serial %q", shared.ErrNotFound, serial)
	}
	if unit.Status != equipment.StatusInstalled {
		return nil, fmt.Errorf("%w: unit %q is %s", shared.ErrConflict, serial, unit.Status)
	}
	unit.Status = equipment.StatusAvailable
	unit.CurrentJobID = nil
	unit.CustomerID = nil
	copied := *unit
	return &copied, nil
}

type fakeCustomers struct {
	customers map[uuid.UUID]*customers.Customer
}

func (f *fakeCustomers) Bind(_ pgx.Tx) customers.TxRepository { return f }

func (f *fakeCustomers) GetCustomerForUpdate(_ context.Context, id uuid.UUID) (*customers.Customer, error) {
	c, ok := f.customers[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (f *fakeCustomers) InsertCustomer(_ context.Context, c *customers.Customer) error {
	f.customers[c.ID] = c
	return nil
}

func (f *fakeCustomers) UpdateCustomer(_ context.Context, c *customers.Customer) error {
	f.customers[c.ID] = c
	return nil
}

func (f *fakeCustomers) DeleteCustomer(_ context.Context, id uuid.UUID) error {
	delete(f.customers, id)
	return nil
}

func (f *fakeCustomers) IncrementJobs(_ context.Context, id uuid.UUID) error {
	c, ok := f.customers[id]
	if !ok {
		return shared.ErrNotFound
	}
	c.TotalJobs++
	return nil
}

func (f *fakeCustomers) AddRevenue(_ context.Context, id uuid.UUID, amount decimal.Decimal) error {
	c, ok := f.customers[id]
	if !ok {
		return shared.ErrNotFound
	}
	c.TotalRevenue = c.TotalRevenue.Add(amount)
	return nil
}

type fakeSettings struct {
	fx *fixture
}

func (f *fakeSettings) Get(_ context.Context) (settings.Settings, error) {
	return f.fx.cfg, nil
}

type fakeStorage struct {
	uploads []string
}

func (f *fakeStorage) Upload(_ context.Context, key, _ string, _ []byte) (string, error) {
	f.uploads = append(f.uploads, key)
	return "https://files.cooltrack.test/" + key, nil
}

func (f *fakeStorage) PresignDownload(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://files.cooltrack.test/" + key + "?signed", nil
}

func (f *fakeStorage) Delete(_ context.Context, _ string) error { return nil }

func TestCreateJobAssignsSequentialNumbers(t *testing.T) {
	fx := newFixture(t)
	customer := fx.addCustomer(t)

	first := fx.createJob(t, customer.ID)
	second := fx.createJob(t, customer.ID)

	year := time.Now().UTC().Year()
	require.Equal(t, FormatJobNumber(year, 1), first.JobNumber)
	require.Equal(t, FormatJobNumber(year, 2), second.JobNumber)

	require.Equal(t, customer.Name, first.CustomerName)
	require.Equal(t, customer.Phone, first.CustomerPhone)
	require.Equal(t, 2, fx.cust.customers[customer.ID].TotalJobs)
	require.True(t, fx.cfg.DefaultHourlyRate.Equal(first.LaborRate))
}

func TestJobNumberRestartsEachYear(t *testing.T) {
	fx := newFixture(t)
	customer := fx.addCustomer(t)

	year := time.Now().UTC().Year()
	fx.repo.counters[year-1] = 412

	job := fx.createJob(t, customer.ID)
	require.Equal(t, FormatJobNumber(year, 1), job.JobNumber)
	require.Equal(t, 412, fx.repo.counters[year-1])
}

func TestCreateJobUsesHourlyRateOverride(t *testing.T) {
	fx := newFixture(t)
	fx.cfg.HourlyRateByType = map[string]decimal.Decimal{"installation": dec("60")}
	customer := fx.addCustomer(t)

	job := fx.createJob(t, customer.ID)
	require.True(t, dec("60").Equal(job.LaborRate))
}

func TestCreateJobUnknownCustomer(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.svc.CreateJob(context.Background(), CreateJobInput{
		CustomerID:           uuid.New(),
		Type:                 TypeRepair,
		AssignedTechnicianID: tech.ID,
	}, admin)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestAddMaterialsGroupedAndSerialized(t *testing.T) {
	fx := newFixture(t)
	customer := fx.addCustomer(t)
	lotID := fx.addStock("copper pipe", dec("50"), dec("2.5"))
	fx.addUnit("SN-1001", "condenser 12k", dec("800"))
	job := fx.createJob(t, customer.ID)

	updated, err := fx.svc.AddMaterials(context.Background(), job.ID, []MaterialInput{
		{Kind: MaterialGrouped, ItemName: "copper pipe", Quantity: dec("10")},
		{Kind: MaterialSerialized, SerialNumber: "SN-1001"},
	}, tech)
	require.NoError(t, err)
	require.Len(t, updated.Materials, 2)

	pipe := updated.Materials[0]
	require.Equal(t, MaterialGrouped, pipe.Kind)
	require.True(t, dec("10").Equal(pipe.Amount))
	require.True(t, dec("25").Equal(pipe.TotalCost))
	require.Len(t, pipe.LotsUsed, 1)
	require.Equal(t, lotID, pipe.LotsUsed[0].LotID)

	unit := updated.Materials[1]
	require.Equal(t, MaterialSerialized, unit.Kind)
	require.Equal(t, "SN-1001", unit.SerialNumber)
	require.True(t, dec("800").Equal(unit.TotalCost))

	require.True(t, dec("825").Equal(updated.TotalMaterialCost))
	require.True(t, dec("40").Equal(fx.inv.stock["copper pipe"]))
	require.Equal(t, equipment.StatusInstalled, fx.eq.units["SN-1001"].Status)
}

func TestAddMaterialsInsufficientStockRollsBackEverything(t *testing.T) {
	fx := newFixture(t)
	customer := fx.addCustomer(t)
	fx.addStock("copper pipe", dec("50"), dec("2.5"))
	fx.addStock("refrigerant", dec("3"), dec("40"))
	job := fx.createJob(t, customer.ID)

	_, err := fx.svc.AddMaterials(context.Background(), job.ID, []MaterialInput{
		{Kind: MaterialGrouped, ItemName: "copper pipe", Quantity: dec("10")},
		{Kind: MaterialGrouped, ItemName: "refrigerant", Quantity: dec("5")},
	}, tech)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	// The first deduction must roll back with the failed second one.
	require.True(t, dec("50").Equal(fx.inv.stock["copper pipe"]))
	require.True(t, dec("3").Equal(fx.inv.stock["refrigerant"]))

	saved, err := fx.svc.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	require.Empty(t, saved.Materials)
	require.True(t, saved.TotalMaterialCost.IsZero())
}

func TestAddMaterialsForbiddenForUnassignedTechnician(t *testing.T) {
	fx := newFixture(t)
	customer := fx.addCustomer(t)
	fx.addStock("copper pipe", dec("50"), dec("2.5"))
	job := fx.createJob(t, customer.ID)

	_, err := fx.svc.AddMaterials(context.Background(), job.ID, []MaterialInput{
		{Kind: MaterialGrouped, ItemName: "copper pipe", Quantity: dec("10")},
	}, otherTec)
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestRemoveMaterialReturnsStock(t *testing.T) {
	fx := newFixture(t)
	customer := fx.addCustomer(t)
	fx.addStock("copper pipe", dec("50"), dec("2.5"))
	job := fx.createJob(t, customer.ID)

	updated, err := fx.svc.AddMaterials(context.Background(), job.ID, []MaterialInput{
		{Kind: MaterialGrouped, ItemName: "copper pipe", Quantity: dec("10")},
	}, tech)
	require.NoError(t, err)
	require.True(t, dec("40").Equal(fx.inv.stock["copper pipe"]))

	updated, err = fx.svc.RemoveMaterial(context.Background(), job.ID, updated.Materials[0].ID, tech)
	require.NoError(t, err)
	require.Empty(t, updated.Materials)
	require.True(t, updated.TotalMaterialCost.IsZero())
	require.True(t, dec("50").Equal(fx.inv.stock["copper pipe"]))
}

func TestRemoveSerializedMaterialReturnsUnit(t *testing.T) {
	fx := newFixture(t)
	customer := fx.addCustomer(t)
	fx.addUnit("SN-1001", "condenser 12k", dec("800"))
	job := fx.createJob(t, customer.ID)

	updated, err := fx.svc.AddMaterials(context.Background(), job.ID, []MaterialInput{
		{Kind: MaterialSerialized, SerialNumber: "SN-1001"},
	}, tech)
	require.NoError(t, err)
	require.Equal(t, equipment.StatusInstalled, fx.eq.units["SN-1001"].Status)

	_, err = fx.svc.RemoveMaterial(context.Background(), job.ID, updated.Materials[0].ID, tech)
	require.NoError(t, err)
	require.Equal(t, equipment.StatusAvailable, fx.eq.units["SN-1001"].Status)
	require.Nil(t, fx.eq.units["SN-1001"].CurrentJobID)
}

func TestEditMaterialGrowsAndShrinks(t *testing.T) {
	fx := newFixture(t)
	customer := fx.addCustomer(t)
	fx.addStock("copper pipe", dec("50"), dec("2.5"))
	job := fx.createJob(t, customer.ID)

	updated, err := fx.svc.AddMaterials(context.Background(), job.ID, []MaterialInput{
		{Kind: MaterialGrouped, ItemName: "copper pipe", Quantity: dec("10")},
	}, tech)
	require.NoError(t, err)
	materialID := updated.Materials[0].ID

	updated, err = fx.svc.EditMaterial(context.Background(), job.ID, materialID, dec("15"), tech)
	require.NoError(t, err)
	require.True(t, dec("15").Equal(updated.Materials[0].Amount))
	require.True(t, dec("37.5").Equal(updated.Materials[0].TotalCost))
	require.True(t, dec("35").Equal(fx.inv.stock["copper pipe"]))

	updated, err = fx.svc.EditMaterial(context.Background(), job.ID, materialID, dec("4"), tech)
	require.NoError(t, err)
	require.True(t, dec("4").Equal(updated.Materials[0].Amount))
	require.True(t, dec("10").Equal(updated.Materials[0].TotalCost))
	require.True(t, dec("46").Equal(fx.inv.stock["copper pipe"]))
}

func TestEditSerializedMaterialRejected(t *testing.T) {
	fx := newFixture(t)
	customer := fx.addCustomer(t)
	fx.addUnit("SN-1001", "condenser 12k", dec("800"))
	job := fx.createJob(t, customer.ID)

	updated, err := fx.svc.AddMaterials(context.Background(), job.ID, []MaterialInput{
		{Kind: MaterialSerialized, SerialNumber: "SN-1001"},
	}, tech)
	require.NoError(t, err)

	_, err = fx.svc.EditMaterial(context.Background(), job.ID, updated.Materials[0].ID, dec("2"), tech)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestUpdateLaborOnlyAssignedTechnician(t *testing.T) {
	fx := newFixture(t)
	customer := fx.addCustomer(t)
	job := fx.createJob(t, customer.ID)

	_, err := fx.svc.UpdateLabor(context.Background(), job.ID, dec("3"), admin)
	require.ErrorIs(t, err, shared.ErrForbidden)

	_, err = fx.svc.UpdateLabor(context.Background(), job.ID, dec("3"), otherTec)
	require.ErrorIs(t, err, shared.ErrForbidden)

	updated, err := fx.svc.UpdateLabor(context.Background(), job.ID, dec("3"), tech)
	require.NoError(t, err)
	require.True(t, dec("3").Equal(updated.LaborHours))
	require.True(t, dec("75").Equal(updated.LaborCost))
}

func TestUpdateLaborRepricesAtCurrentSettingsRate(t *testing.T) {
	fx := newFixture(t)
	customer := fx.addCustomer(t)
	job := fx.createJob(t, customer.ID)
	require.True(t, dec("25").Equal(job.LaborRate))

	fx.cfg.DefaultHourlyRate = dec("40")

	updated, err := fx.svc.UpdateLabor(context.Background(), job.ID, dec("2"), tech)
	require.NoError(t, err)
	require.True(t, dec("40").Equal(updated.LaborRate))
	require.True(t, dec("80").Equal(updated.LaborCost))
}

func TestPinnedLaborRateSurvivesSettingsChange(t *testing.T) {
	fx := newFixture(t)
	customer := fx.addCustomer(t)
	job := fx.createJob(t, customer.ID)

	_, err := fx.svc.UpdateLaborRate(context.Background(), job.ID, dec("55"), admin)
	require.NoError(t, err)

	fx.cfg.DefaultHourlyRate = dec("40")

	updated, err := fx.svc.UpdateLabor(context.Background(), job.ID, dec("3"), tech)
	require.NoError(t, err)
	require.True(t, dec("55").Equal(updated.LaborRate))
	require.True(t, dec("165").Equal(updated.LaborCost))
}

func TestUpdateRevenueAdminOnly(t *testing.T) {
	fx := newFixture(t)
	customer := fx.addCustomer(t)
	job := fx.createJob(t, customer.ID)

	_, err := fx.svc.UpdateRevenue(context.Background(), job.ID, dec("1200"), tech)
	require.ErrorIs(t, err, shared.ErrForbidden)

	updated, err := fx.svc.UpdateRevenue(context.Background(), job.ID, dec("1200"), admin)
	require.NoError(t, err)
	require.True(t, dec("1200").Equal(updated.TotalRevenue))
	require.True(t, dec("1200").Equal(updated.Profit))
}

func TestTechnicianPaymentOverrideSticks(t *testing.T) {
	fx := newFixture(t)
	customer := fx.addCustomer(t)
	job := fx.createJob(t, customer.ID)

	updated, err := fx.svc.UpdateTechnicianPayment(context.Background(), job.ID, dec("300"), admin)
	require.NoError(t, err)
	require.True(t, updated.TechnicianPaymentOverride)
	require.True(t, dec("300").Equal(updated.TechnicianPayment))

	// Later recalculations must not clobber the override.
	updated, err = fx.svc.UpdateLabor(context.Background(), job.ID, dec("5"), tech)
	require.NoError(t, err)
	require.True(t, dec("300").Equal(updated.TechnicianPayment))
}

func TestApproveCostingOnce(t *testing.T) {
	fx := newFixture(t)
	customer := fx.addCustomer(t)
	job := fx.createJob(t, customer.ID)

	_, err := fx.svc.UpdateRevenue(context.Background(), job.ID, dec("500"), admin)
	require.NoError(t, err)

	updated, err := fx.svc.ApproveCosting(context.Background(), job.ID, "looks good", admin)
	require.NoError(t, err)
	require.True(t, updated.CostingApproval.IsApproved)
	require.Equal(t, admin.ID, updated.CostingApproval.ApprovedBy)
	require.True(t, dec("500").Equal(updated.CostingApproval.RevenueAtApproval))

	_, err = fx.svc.ApproveCosting(context.Background(), job.ID, "again", admin)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestApproveCostingBlocksNegativeProfit(t *testing.T) {
	fx := newFixture(t)
	customer := fx.addCustomer(t)
	job := fx.createJob(t, customer.ID)

	_, err := fx.svc.AddAdditionalCost(context.Background(), job.ID, CostInput{
		Description: "crane rental",
		Amount:      dec("400"),
	}, admin)
	require.NoError(t, err)

	_, err = fx.svc.ApproveCosting(context.Background(), job.ID, "", admin)
	require.ErrorIs(t, err, shared.ErrPolicy)

	fx.cfg.AllowNegativeProfit = true
	_, err = fx.svc.ApproveCosting(context.Background(), job.ID, "", admin)
	require.NoError(t, err)
}

func TestApproveCostingNotForTechnicians(t *testing.T) {
	fx := newFixture(t)
	customer := fx.addCustomer(t)
	job := fx.createJob(t, customer.ID)

	_, err := fx.svc.ApproveCosting(context.Background(), job.ID, "", tech)
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestStatusMachineRejectsSkips(t *testing.T) {
	fx := newFixture(t)
	customer := fx.addCustomer(t)
	job := fx.createJob(t, customer.ID)

	_, err := fx.svc.UpdateStatus(context.Background(), job.ID, StatusCompleted, admin)
	require.ErrorIs(t, err, shared.ErrConflict)

	_, err = fx.svc.UpdateStatus(context.Background(), job.ID, StatusPaid, admin)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestCompletionRequiresApproval(t *testing.T) {
	fx := newFixture(t)
	customer := fx.addCustomer(t)
	job := fx.createJob(t, customer.ID)

	updated, err := fx.svc.UpdateStatus(context.Background(), job.ID, StatusInProgress, admin)
	require.NoError(t, err)
	require.NotNil(t, updated.StartedAt)

	_, err = fx.svc.UpdateStatus(context.Background(), job.ID, StatusCompleted, admin)
	require.ErrorIs(t, err, shared.ErrPolicy)

	_, err = fx.svc.ApproveCosting(context.Background(), job.ID, "", admin)
	require.NoError(t, err)

	updated, err = fx.svc.UpdateStatus(context.Background(), job.ID, StatusCompleted, admin)
	require.NoError(t, err)
	require.NotNil(t, updated.CompletedAt)
}

func TestPaidCreditsCustomerRevenue(t *testing.T) {
	fx := newFixture(t)
	fx.cfg.RequireCostApproval = false
	customer := fx.addCustomer(t)
	job := fx.createJob(t, customer.ID)

	_, err := fx.svc.UpdateRevenue(context.Background(), job.ID, dec("750"), admin)
	require.NoError(t, err)

	for _, next := range []Status{StatusInProgress, StatusCompleted, StatusPaid} {
		_, err = fx.svc.UpdateStatus(context.Background(), job.ID, next, admin)
		require.NoError(t, err)
	}

	require.True(t, dec("750").Equal(fx.cust.customers[customer.ID].TotalRevenue))

	saved, err := fx.svc.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	require.NotNil(t, saved.PaidAt)
}

func TestStartedAtStampedOnce(t *testing.T) {
	fx := newFixture(t)
	customer := fx.addCustomer(t)
	job := fx.createJob(t, customer.ID)

	first, err := fx.svc.UpdateStatus(context.Background(), job.ID, StatusInProgress, admin)
	require.NoError(t, err)
	require.NotNil(t, first.StartedAt)

	// Cancel and verify the original start stamp survives untouched.
	second, err := fx.svc.UpdateStatus(context.Background(), job.ID, StatusCancelled, admin)
	require.NoError(t, err)
	require.Equal(t, first.StartedAt.Unix(), second.StartedAt.Unix())
}

func TestAddAndRemoveAdditionalCost(t *testing.T) {
	fx := newFixture(t)
	customer := fx.addCustomer(t)
	job := fx.createJob(t, customer.ID)

	updated, err := fx.svc.AddAdditionalCost(context.Background(), job.ID, CostInput{
		Description: "parking",
		Amount:      dec("12"),
	}, tech)
	require.NoError(t, err)
	require.Len(t, updated.AdditionalCosts, 1)
	require.True(t, dec("12").Equal(updated.TotalCost))

	updated, err = fx.svc.RemoveAdditionalCost(context.Background(), job.ID, updated.AdditionalCosts[0].ID, tech)
	require.NoError(t, err)
	require.Empty(t, updated.AdditionalCosts)
	require.True(t, updated.TotalCost.IsZero())
}

func TestAttachFileRecordsURL(t *testing.T) {
	fx := newFixture(t)
	customer := fx.addCustomer(t)
	job := fx.createJob(t, customer.ID)

	updated, err := fx.svc.AttachFile(context.Background(), job.ID,
		"site-photo.jpg", "image/jpeg", []byte("fake image bytes"), tech)
	require.NoError(t, err)
	require.Len(t, updated.Attachments, 1)
	require.Contains(t, updated.Attachments[0].URL, "https://files.cooltrack.test/jobs/")
	require.Equal(t, "site-photo.jpg", updated.Attachments[0].FileName)
	require.Len(t, fx.files.uploads, 1)
}

func TestClosedJobRejectsCostMutations(t *testing.T) {
	fx := newFixture(t)
	customer := fx.addCustomer(t)
	fx.addStock("copper pipe", dec("50"), dec("2.5"))
	job := fx.createJob(t, customer.ID)

	_, err := fx.svc.UpdateStatus(context.Background(), job.ID, StatusCancelled, admin)
	require.NoError(t, err)

	_, err = fx.svc.AddMaterials(context.Background(), job.ID, []MaterialInput{
		{Kind: MaterialGrouped, ItemName: "copper pipe", Quantity: dec("1")},
	}, tech)
	require.ErrorIs(t, err, shared.ErrConflict)

	_, err = fx.svc.UpdateLabor(context.Background(), job.ID, dec("2"), tech)
	require.ErrorIs(t, err, shared.ErrConflict)
}
