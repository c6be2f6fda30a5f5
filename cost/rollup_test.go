package cost_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/budget-engine/cost"
	"github.com/warp/budget-engine/cost/store"
)

// seedCatalog adds a mix of hardware, per-user and tenant requirements,
// including a tenant split that does not divide evenly.
func seedCatalog(mem *store.Memory) {
	mem.PutHardwareItem(cost.HardwareItem{ID: 1, Name: "Laptop", UnitCost: money("1450.00"), Active: true})
	mem.PutHardwareItem(cost.HardwareItem{ID: 2, Name: "Phone", UnitCost: money("799.99"), Active: true})
	mem.PutSoftwareItem(cost.SoftwareItem{ID: 1, Name: "Office", LicenseModel: cost.LicensePerUser, CostPerLicense: nullMoney("22.50"), Active: true})
	mem.PutSoftwareItem(cost.SoftwareItem{ID: 2, Name: "Chat Suite", LicenseModel: cost.LicenseTenant, TotalCost: nullMoney("10000"), Active: true})
	mem.AddCoverageRule(cost.CoverageRule{SoftwareID: 2, Scope: cost.ScopeOrganization})
	mem.PutSoftwareItem(cost.SoftwareItem{ID: 3, Name: "Pager", LicenseModel: cost.LicenseTenant, TotalCost: nullMoney("1000"), Active: true})
	mem.AddCoverageRule(cost.CoverageRule{SoftwareID: 3, Scope: cost.ScopePosition, ScopeID: 100})
	mem.AddCoverageRule(cost.CoverageRule{SoftwareID: 3, Scope: cost.ScopePosition, ScopeID: 101})

	for _, pos := range []cost.PositionID{100, 101, 102} {
		mem.SetHardwareRequirement(cost.HardwareRequirement{PositionID: pos, HardwareID: 1, Quantity: 1})
		mem.SetSoftwareRequirement(cost.SoftwareRequirement{PositionID: pos, SoftwareID: 1, Quantity: 1})
		mem.SetSoftwareRequirement(cost.SoftwareRequirement{PositionID: pos, SoftwareID: 2, Quantity: 1})
	}
	mem.SetHardwareRequirement(cost.HardwareRequirement{PositionID: 102, HardwareID: 2, Quantity: 1})
	mem.SetSoftwareRequirement(cost.SoftwareRequirement{PositionID: 100, SoftwareID: 3, Quantity: 1})
	mem.SetSoftwareRequirement(cost.SoftwareRequirement{PositionID: 101, SoftwareID: 3, Quantity: 1})
}

// =============================================================================
// ROLLUP TESTS
// =============================================================================

func TestAggregateDivision_SumsPositions(t *testing.T) {
	ctx := context.Background()
	mem := newTestOrg(t)
	seedCatalog(mem)

	div, err := cost.NewEngine(mem).AggregateDivision(ctx, 10)

	require.NoError(t, err)
	assert.Equal(t, "Platform", div.DivisionName)
	assert.Equal(t, "Engineering", div.DepartmentName)
	assert.Equal(t, 2, div.PositionCount)
	assert.Equal(t, 2, div.ChildCount)
	assert.Equal(t, 30, div.TotalAuthorized)

	hw, sw := decimal.Zero, decimal.Zero
	for _, p := range div.Positions {
		hw = hw.Add(p.HardwareTotal)
		sw = sw.Add(p.SoftwareTotal)
	}
	assert.True(t, hw.Equal(div.HardwareTotal))
	assert.True(t, sw.Equal(div.SoftwareTotal))
	assert.True(t, hw.Add(sw).Equal(div.GrandTotal))
}

func TestAggregateOrganization_SumInvariantIsExact(t *testing.T) {
	// GIVEN: Tenant splits that leave repeating decimals (1000 / 30 seats)
	// THEN: Every level equals the exact sum of its children,
	//       and the tenant cost is recovered when rounded to cents

	ctx := context.Background()
	mem := newTestOrg(t)
	seedCatalog(mem)

	org, err := cost.NewEngine(mem).AggregateOrganization(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, org.DepartmentCount)
	assert.Equal(t, 2, org.DivisionCount)
	assert.Equal(t, 3, org.PositionCount)
	assert.Equal(t, 100, org.TotalAuthorized)

	deptHW, deptSW := decimal.Zero, decimal.Zero
	for _, dept := range org.Departments {
		divHW, divSW := decimal.Zero, decimal.Zero
		for _, div := range dept.Divisions {
			posHW, posSW := decimal.Zero, decimal.Zero
			for _, p := range div.Positions {
				posHW = posHW.Add(p.HardwareTotal)
				posSW = posSW.Add(p.SoftwareTotal)
			}
			assert.True(t, posHW.Equal(div.HardwareTotal), "division %s hardware", div.DivisionName)
			assert.True(t, posSW.Equal(div.SoftwareTotal), "division %s software", div.DivisionName)
			divHW = divHW.Add(div.HardwareTotal)
			divSW = divSW.Add(div.SoftwareTotal)
		}
		assert.True(t, divHW.Equal(dept.HardwareTotal))
		assert.True(t, divSW.Equal(dept.SoftwareTotal))
		deptHW = deptHW.Add(dept.HardwareTotal)
		deptSW = deptSW.Add(dept.SoftwareTotal)
	}
	assert.True(t, deptHW.Equal(org.HardwareTotal))
	assert.True(t, deptSW.Equal(org.SoftwareTotal))
	assert.True(t, org.HardwareTotal.Add(org.SoftwareTotal).Equal(org.GrandTotal))

	// hardware: 100 × 1450 + 70 × 799.99
	assertMoney(t, "200999.30", org.HardwareTotal)
	// software: 100 × 22.50 + 10000 + 1000
	assertMoney(t, "13250.00", org.SoftwareTotal.Round(2))
}

func TestAggregateDepartment_NotFound(t *testing.T) {
	ctx := context.Background()
	engine := cost.NewEngine(newTestOrg(t))

	_, err := engine.AggregateDepartment(ctx, 42)

	assert.True(t, cost.IsNotFound(err))
}

func TestAggregateDivision_NotFound(t *testing.T) {
	ctx := context.Background()
	engine := cost.NewEngine(newTestOrg(t))

	_, err := engine.AggregateDivision(ctx, 42)

	assert.True(t, cost.IsNotFound(err))
}

func TestAggregateDepartment_EmptyDepartment_ZeroTotals(t *testing.T) {
	ctx := context.Background()
	mem := newTestOrg(t)
	mem.PutDepartment(cost.Department{ID: 2, Code: "LEG", Name: "Legal", Active: true})

	dept, err := cost.NewEngine(mem).AggregateDepartment(ctx, 2)

	require.NoError(t, err)
	assert.Equal(t, 0, dept.DivisionCount)
	assert.Empty(t, dept.Divisions)
	assertMoney(t, "0", dept.GrandTotal)
}

func TestAggregateOrganization_SkipsInactiveBranches(t *testing.T) {
	// GIVEN: An inactive department holding an active division and position
	// THEN: None of it reaches the organization totals

	ctx := context.Background()
	mem := newTestOrg(t)
	mem.PutDepartment(cost.Department{ID: 2, Code: "OPS", Name: "Operations", Active: false})
	mem.PutDivision(cost.Division{ID: 20, Code: "FAC", Name: "Facilities", DepartmentID: 2, Active: true})
	mem.PutPosition(cost.Position{ID: 300, Code: "FM", Title: "Facilities Manager", DivisionID: 20, AuthorizedCount: 5, Active: true})
	mem.PutHardwareItem(cost.HardwareItem{ID: 1, Name: "Laptop", UnitCost: money("1000"), Active: true})
	mem.SetHardwareRequirement(cost.HardwareRequirement{PositionID: 300, HardwareID: 1, Quantity: 1})

	org, err := cost.NewEngine(mem).AggregateOrganization(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, org.DepartmentCount)
	assert.Equal(t, 100, org.TotalAuthorized)
	assertMoney(t, "0", org.GrandTotal)
}

func TestPositionBreakdown_OrderedByHierarchy(t *testing.T) {
	ctx := context.Background()
	mem := newTestOrg(t)
	seedCatalog(mem)
	engine := cost.NewEngine(mem)

	depts, err := cost.FilterDepartments(ctx, mem, cost.OrganizationScope())
	require.NoError(t, err)

	rows, err := engine.PositionBreakdown(ctx, depts)

	require.NoError(t, err)
	require.Len(t, rows, 3)
	// Apps sorts before Platform; positions by title within a division
	assert.Equal(t, cost.PositionID(102), rows[0].PositionID)
	assert.Equal(t, cost.PositionID(100), rows[1].PositionID)
	assert.Equal(t, cost.PositionID(101), rows[2].PositionID)
}
