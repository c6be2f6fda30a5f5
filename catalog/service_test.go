package catalog_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/budget-engine/catalog"
	"github.com/warp/budget-engine/cost"
	"github.com/warp/budget-engine/cost/store"
)

func newTestService(t *testing.T) (*catalog.Service, *store.Memory, *time.Time) {
	t.Helper()
	mem := store.NewMemory()
	now := time.Date(2025, time.June, 1, 8, 0, 0, 0, time.UTC)
	rec := cost.NewRecorder(mem, nil)
	rec.Clock = func() time.Time { return now }
	return catalog.NewService(mem, rec, nil), mem, &now
}

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptr[T any](v T) *T { return &v }

// =============================================================================
// CREATE
// =============================================================================

func TestCreateHardware_OpensHistory(t *testing.T) {
	ctx := context.Background()
	svc, mem, _ := newTestService(t)

	item, err := svc.CreateHardware(ctx, catalog.NewHardware{Name: " Laptop ", TypeName: "Laptop", UnitCost: money("1200")}, "admin")

	require.NoError(t, err)
	assert.Equal(t, "Laptop", item.Name)
	assert.True(t, item.Active)

	records, err := mem.CostRecords(ctx, cost.HardwareRef(item.ID))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].IsOpen())
	assert.True(t, money("1200").Equal(records[0].Snapshot.UnitCost.Decimal))
}

func TestCreateSoftware_Validation(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	tests := []struct {
		name string
		in   catalog.NewSoftware
	}{
		{"empty name", catalog.NewSoftware{Name: "  ", LicenseModel: cost.LicensePerUser}},
		{"unknown license model", catalog.NewSoftware{Name: "X", LicenseModel: "site"}},
		{"negative license cost", catalog.NewSoftware{Name: "X", LicenseModel: cost.LicensePerUser, CostPerLicense: decimal.NewNullDecimal(money("-1"))}},
		{"negative total cost", catalog.NewSoftware{Name: "X", LicenseModel: cost.LicenseTenant, TotalCost: decimal.NewNullDecimal(money("-5"))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateSoftware(ctx, tt.in, "admin")
			assert.True(t, cost.IsClientError(err), "got %v", err)
		})
	}
}

func TestCreateHardware_NegativeCost_Rejected(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	_, err := svc.CreateHardware(ctx, catalog.NewHardware{Name: "Laptop", UnitCost: money("-10")}, "admin")

	var verr *cost.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "unit_cost", verr.Field)
}

// =============================================================================
// UPDATE
// =============================================================================

func TestUpdateHardware_CostChange_TransitionsHistory(t *testing.T) {
	// GIVEN: Laptop created at $1200
	// WHEN: Repriced to $1350 a day later
	// THEN: Old record closed at the change, new one open at $1350

	ctx := context.Background()
	svc, mem, now := newTestService(t)
	item, err := svc.CreateHardware(ctx, catalog.NewHardware{Name: "Laptop", UnitCost: money("1200")}, "admin")
	require.NoError(t, err)

	*now = now.Add(24 * time.Hour)
	updated, err := svc.UpdateHardware(ctx, item.ID, catalog.HardwareUpdate{UnitCost: ptr(money("1350"))}, "admin", "vendor quote")

	require.NoError(t, err)
	assert.True(t, money("1350").Equal(updated.UnitCost))

	records, err := mem.CostRecords(ctx, cost.HardwareRef(item.ID))
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.NotNil(t, records[0].EndDate)
	assert.Equal(t, *now, *records[0].EndDate)
	assert.True(t, records[1].IsOpen())
	assert.Equal(t, "vendor quote", records[1].ChangeReason)

	current, err := mem.GetHardwareItem(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, money("1350").Equal(current.UnitCost))
}

func TestUpdateHardware_NameOnly_NoHistory(t *testing.T) {
	ctx := context.Background()
	svc, mem, now := newTestService(t)
	item, err := svc.CreateHardware(ctx, catalog.NewHardware{Name: "Laptop", UnitCost: money("1200")}, "admin")
	require.NoError(t, err)

	*now = now.Add(time.Hour)
	updated, err := svc.UpdateHardware(ctx, item.ID, catalog.HardwareUpdate{
		Name:     ptr("Standard Laptop"),
		UnitCost: ptr(money("1200.00")),
	}, "admin", "")

	require.NoError(t, err)
	assert.Equal(t, "Standard Laptop", updated.Name)
	records, err := mem.CostRecords(ctx, cost.HardwareRef(item.ID))
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestUpdateSoftware_ClearAndSetCosts(t *testing.T) {
	ctx := context.Background()
	svc, mem, now := newTestService(t)
	item, err := svc.CreateSoftware(ctx, catalog.NewSoftware{
		Name:           "Chat Suite",
		LicenseModel:   cost.LicensePerUser,
		CostPerLicense: decimal.NewNullDecimal(money("8")),
	}, "admin")
	require.NoError(t, err)

	*now = now.Add(time.Hour)
	tenant := cost.LicenseTenant
	updated, err := svc.UpdateSoftware(ctx, item.ID, catalog.SoftwareUpdate{
		LicenseModel:   &tenant,
		CostPerLicense: &decimal.NullDecimal{},
		TotalCost:      ptr(decimal.NewNullDecimal(money("5000"))),
	}, "admin", "enterprise agreement")

	require.NoError(t, err)
	assert.Equal(t, cost.LicenseTenant, updated.LicenseModel)
	assert.False(t, updated.CostPerLicense.Valid)

	open, err := mem.OpenCostRecord(ctx, cost.SoftwareRef(item.ID))
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.False(t, open.Snapshot.CostPerLicense.Valid)
	assert.True(t, money("5000").Equal(open.Snapshot.TotalCost.Decimal))
}

func TestUpdateHardware_InvalidUpdate_RollsBack(t *testing.T) {
	ctx := context.Background()
	svc, mem, now := newTestService(t)
	item, err := svc.CreateHardware(ctx, catalog.NewHardware{Name: "Laptop", UnitCost: money("1200")}, "admin")
	require.NoError(t, err)

	*now = now.Add(time.Hour)
	_, err = svc.UpdateHardware(ctx, item.ID, catalog.HardwareUpdate{UnitCost: ptr(money("-1"))}, "admin", "")

	assert.True(t, cost.IsClientError(err))
	current, err := mem.GetHardwareItem(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, money("1200").Equal(current.UnitCost))
}

func TestUpdate_Unknown_NotFound(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	_, err := svc.UpdateHardware(ctx, 42, catalog.HardwareUpdate{Name: ptr("x")}, "admin", "")
	assert.True(t, cost.IsNotFound(err))

	_, err = svc.UpdateSoftware(ctx, 42, catalog.SoftwareUpdate{Name: ptr("x")}, "admin", "")
	assert.True(t, cost.IsNotFound(err))
}

// =============================================================================
// DEACTIVATE
// =============================================================================

func TestDeactivate_HidesItemKeepsHistory(t *testing.T) {
	ctx := context.Background()
	svc, mem, _ := newTestService(t)
	hw, err := svc.CreateHardware(ctx, catalog.NewHardware{Name: "Laptop", UnitCost: money("1200")}, "admin")
	require.NoError(t, err)
	sw, err := svc.CreateSoftware(ctx, catalog.NewSoftware{Name: "IDE", LicenseModel: cost.LicensePerUser}, "admin")
	require.NoError(t, err)

	require.NoError(t, svc.DeactivateHardware(ctx, hw.ID))
	require.NoError(t, svc.DeactivateSoftware(ctx, sw.ID))

	gotHW, err := mem.GetHardwareItem(ctx, hw.ID)
	require.NoError(t, err)
	assert.Nil(t, gotHW)
	gotSW, err := mem.GetSoftwareItem(ctx, sw.ID)
	require.NoError(t, err)
	assert.Nil(t, gotSW)

	records, err := mem.CostRecords(ctx, cost.HardwareRef(hw.ID))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.NotNil(t, records[0].EndDate)
	open, err := mem.OpenCostRecord(ctx, cost.SoftwareRef(sw.ID))
	require.NoError(t, err)
	assert.Nil(t, open)

	archived, err := mem.LookupHardwareItem(ctx, hw.ID)
	require.NoError(t, err)
	require.NotNil(t, archived)
	assert.False(t, archived.Active)

	assert.True(t, cost.IsNotFound(svc.DeactivateHardware(ctx, hw.ID)))
}

func TestDeactivate_PricedAsOfEarlierInstant(t *testing.T) {
	// GIVEN: A $1200 laptop required by a 10-seat position, created on day 0
	//        and deactivated on day 2
	// WHEN: Pricing the position as of day 1
	// THEN: The laptop is still priced: $12,000

	ctx := context.Background()
	svc, mem, now := newTestService(t)
	mem.PutDepartment(cost.Department{ID: 1, Name: "Engineering", Active: true})
	mem.PutDivision(cost.Division{ID: 10, Name: "Platform", DepartmentID: 1, Active: true})
	mem.PutPosition(cost.Position{ID: 100, Title: "Backend Engineer", DivisionID: 10, AuthorizedCount: 10, Active: true})

	day0 := *now
	hw, err := svc.CreateHardware(ctx, catalog.NewHardware{Name: "Laptop", UnitCost: money("1200")}, "admin")
	require.NoError(t, err)
	mem.SetHardwareRequirement(cost.HardwareRequirement{PositionID: 100, HardwareID: hw.ID, Quantity: 1})

	*now = day0.Add(48 * time.Hour)
	require.NoError(t, svc.DeactivateHardware(ctx, hw.ID))

	engine := cost.NewEngine(mem)
	past, err := engine.AsOf(mem, day0.Add(24*time.Hour)).CalculatePositionCost(ctx, 100)
	require.NoError(t, err)
	require.Len(t, past.HardwareLines, 1)
	assert.True(t, money("12000").Equal(past.HardwareTotal), past.HardwareTotal.String())

	later, err := engine.AsOf(mem, now.Add(time.Hour)).CalculatePositionCost(ctx, 100)
	require.NoError(t, err)
	assert.Empty(t, later.HardwareLines)
}

func TestUpdateSoftware_LicenseModelSwitchWritesHistory(t *testing.T) {
	ctx := context.Background()
	svc, mem, now := newTestService(t)
	sw, err := svc.CreateSoftware(ctx, catalog.NewSoftware{
		Name: "Chat", LicenseModel: cost.LicensePerUser,
		CostPerLicense: decimal.NewNullDecimal(money("50")), TotalCost: decimal.NewNullDecimal(money("9000")),
	}, "admin")
	require.NoError(t, err)

	*now = now.Add(time.Hour)
	_, err = svc.UpdateSoftware(ctx, sw.ID, catalog.SoftwareUpdate{LicenseModel: ptr(cost.LicenseTenant)}, "admin", "site license")
	require.NoError(t, err)

	records, err := mem.CostRecords(ctx, cost.SoftwareRef(sw.ID))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, cost.LicensePerUser, records[0].Snapshot.LicenseModel)
	assert.Equal(t, cost.LicenseTenant, records[1].Snapshot.LicenseModel)
}

func TestHardwareUpdate_CostChanged(t *testing.T) {
	current := cost.HardwareItem{Name: "Laptop", UnitCost: money("100")}

	assert.False(t, catalog.HardwareUpdate{}.CostChanged(current))
	assert.False(t, catalog.HardwareUpdate{Name: ptr("Other")}.CostChanged(current))
	assert.False(t, catalog.HardwareUpdate{UnitCost: ptr(money("100.00"))}.CostChanged(current))
	assert.True(t, catalog.HardwareUpdate{UnitCost: ptr(money("100.01"))}.CostChanged(current))
}
