package cost_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/budget-engine/cost"
)

func TestAsOf_PricesFromHistory(t *testing.T) {
	// GIVEN: Laptop created at $1000 on day 0, repriced to $1500 on day 30
	//        (the catalog row already carries the new price)
	// WHEN: Pricing Backend Engineer (10 seats) at different instants
	// THEN: Each instant uses the price in force then

	ctx := context.Background()
	mem := newTestOrg(t)
	clock := newStepClock()
	rec := newTestRecorder(mem, clock)

	mem.PutHardwareItem(cost.HardwareItem{ID: 1, Name: "Laptop", UnitCost: money("1500"), Active: true})
	mem.SetHardwareRequirement(cost.HardwareRequirement{PositionID: 100, HardwareID: 1, Quantity: 1})
	day0 := clock.Now()
	openInitial(t, mem, rec, cost.HardwareRef(1), laptopSnapshot("1000"))
	clock.Advance(30 * 24 * time.Hour)
	_, err := rec.Record(ctx, cost.HardwareRef(1), laptopSnapshot("1500"), "admin", "vendor repricing")
	require.NoError(t, err)

	engine := cost.NewEngine(mem)

	past, err := engine.AsOf(mem, day0.Add(24*time.Hour)).CalculatePositionCost(ctx, 100)
	require.NoError(t, err)
	assertMoney(t, "10000", past.HardwareTotal)

	now, err := engine.AsOf(mem, clock.Now()).CalculatePositionCost(ctx, 100)
	require.NoError(t, err)
	assertMoney(t, "15000", now.HardwareTotal)

	current, err := engine.CalculatePositionCost(ctx, 100)
	require.NoError(t, err)
	assertMoney(t, "15000", current.HardwareTotal)
}

func TestAsOf_BeforeItemExisted_Excluded(t *testing.T) {
	ctx := context.Background()
	mem := newTestOrg(t)
	clock := newStepClock()
	rec := newTestRecorder(mem, clock)
	mem.PutSoftwareItem(cost.SoftwareItem{ID: 7, Name: "Chat Suite", LicenseModel: cost.LicenseTenant, TotalCost: nullMoney("9000"), Active: true})
	mem.AddCoverageRule(cost.CoverageRule{SoftwareID: 7, Scope: cost.ScopeOrganization})
	mem.SetSoftwareRequirement(cost.SoftwareRequirement{PositionID: 101, SoftwareID: 7, Quantity: 1})
	openInitial(t, mem, rec, cost.SoftwareRef(7), cost.CostSnapshot{TotalCost: nullMoney("9000")})

	summary, err := cost.NewEngine(mem).AsOf(mem, clock.Now().Add(-time.Hour)).CalculatePositionCost(ctx, 101)

	require.NoError(t, err)
	assert.Empty(t, summary.SoftwareLines)
	assertMoney(t, "0", summary.GrandTotal)
}

func TestAsOf_ItemDeactivatedLater_StillPricedBefore(t *testing.T) {
	// GIVEN: A $1200 laptop required once by Backend Engineer (10 seats),
	//        deactivated two days after it was created
	// WHEN: Pricing a day after creation, and after deactivation
	// THEN: The earlier instant still carries the laptop; the later one does not

	ctx := context.Background()
	mem := newTestOrg(t)
	clock := newStepClock()
	rec := newTestRecorder(mem, clock)

	laptop := cost.HardwareItem{ID: 1, Name: "Laptop", UnitCost: money("1200"), Active: true}
	mem.PutHardwareItem(laptop)
	mem.SetHardwareRequirement(cost.HardwareRequirement{PositionID: 100, HardwareID: 1, Quantity: 1})
	day0 := clock.Now()
	openInitial(t, mem, rec, cost.HardwareRef(1), laptopSnapshot("1200"))

	clock.Advance(48 * time.Hour)
	laptop.Active = false
	mem.PutHardwareItem(laptop)
	require.NoError(t, mem.WithTx(ctx, func(tx cost.WriteTx) error {
		return rec.RetireCost(ctx, tx, cost.HardwareRef(1))
	}))

	engine := cost.NewEngine(mem)

	before, err := engine.AsOf(mem, day0.Add(24*time.Hour)).CalculatePositionCost(ctx, 100)
	require.NoError(t, err)
	require.Len(t, before.HardwareLines, 1)
	assertMoney(t, "12000", before.HardwareTotal)

	after, err := engine.AsOf(mem, clock.Now().Add(time.Hour)).CalculatePositionCost(ctx, 100)
	require.NoError(t, err)
	assert.Empty(t, after.HardwareLines)
	assertMoney(t, "0", after.HardwareTotal)

	current, err := engine.CalculatePositionCost(ctx, 100)
	require.NoError(t, err)
	assert.Empty(t, current.HardwareLines)
}

func TestAsOf_UsesRecordedLicenseModel(t *testing.T) {
	// GIVEN: Chat Suite sold per user at $50 until day 30, then switched to
	//        a $9000 tenant license covering the whole organization (100 seats)
	// WHEN: Pricing Backend Engineer (10 seats) before and after the switch
	// THEN: $500 per user before, a $900 tenant share after

	ctx := context.Background()
	mem := newTestOrg(t)
	clock := newStepClock()
	rec := newTestRecorder(mem, clock)

	mem.PutSoftwareItem(cost.SoftwareItem{ID: 7, Name: "Chat Suite", LicenseModel: cost.LicenseTenant, TotalCost: nullMoney("9000"), Active: true})
	mem.AddCoverageRule(cost.CoverageRule{SoftwareID: 7, Scope: cost.ScopeOrganization})
	mem.SetSoftwareRequirement(cost.SoftwareRequirement{PositionID: 100, SoftwareID: 7, Quantity: 1})
	day0 := clock.Now()
	openInitial(t, mem, rec, cost.SoftwareRef(7), cost.CostSnapshot{LicenseModel: cost.LicensePerUser, CostPerLicense: nullMoney("50")})
	clock.Advance(30 * 24 * time.Hour)
	_, err := rec.Record(ctx, cost.SoftwareRef(7),
		cost.CostSnapshot{LicenseModel: cost.LicenseTenant, TotalCost: nullMoney("9000")}, "admin", "site license")
	require.NoError(t, err)

	engine := cost.NewEngine(mem)

	before, err := engine.AsOf(mem, day0.Add(24*time.Hour)).CalculatePositionCost(ctx, 100)
	require.NoError(t, err)
	require.Len(t, before.SoftwareLines, 1)
	assert.Equal(t, cost.LicensePerUser, before.SoftwareLines[0].LicenseModel)
	assertMoney(t, "500", before.SoftwareTotal)

	after, err := engine.AsOf(mem, clock.Now()).CalculatePositionCost(ctx, 100)
	require.NoError(t, err)
	require.Len(t, after.SoftwareLines, 1)
	assert.Equal(t, cost.LicenseTenant, after.SoftwareLines[0].LicenseModel)
	assertMoney(t, "900", after.SoftwareTotal)
}
