/*
rollup.go - Hierarchical cost rollups

PURPOSE:
  Sums position summaries into division, department and organization
  totals. Rollups only add up already-computed totals and authorized
  counts. Per-person figures are NOT derived above position level, since
  AuthorizedCount differs by position.

INVARIANT (exact, not approximate):
  department.HardwareTotal == Σ division.HardwareTotal
  division.HardwareTotal   == Σ position.HardwareTotal
  (same for SoftwareTotal and GrandTotal)

  decimal addition is exact, so this holds to the last digit.

ACTIVE ONLY:
  Children come from OrgStore list calls, which only return active rows.
*/
package cost

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RESULT TYPES
// =============================================================================

// Totals is the money part shared by every rollup level.
type Totals struct {
	TotalAuthorized int
	HardwareTotal   decimal.Decimal
	SoftwareTotal   decimal.Decimal
	GrandTotal      decimal.Decimal
}

func zeroTotals() Totals {
	return Totals{HardwareTotal: decimal.Zero, SoftwareTotal: decimal.Zero, GrandTotal: decimal.Zero}
}

func (t *Totals) add(authorized int, hw, sw decimal.Decimal) {
	t.TotalAuthorized += authorized
	t.HardwareTotal = t.HardwareTotal.Add(hw)
	t.SoftwareTotal = t.SoftwareTotal.Add(sw)
	t.GrandTotal = t.HardwareTotal.Add(t.SoftwareTotal)
}

// DivisionCostSummary aggregates the positions of one division.
type DivisionCostSummary struct {
	DivisionID     DivisionID
	DivisionName   string
	DepartmentID   DepartmentID
	DepartmentName string

	ChildCount    int // positions
	PositionCount int
	Totals

	Positions []PositionCostSummary
}

// DepartmentCostSummary aggregates the divisions of one department.
type DepartmentCostSummary struct {
	DepartmentID   DepartmentID
	DepartmentName string

	ChildCount    int // divisions
	DivisionCount int
	PositionCount int
	Totals

	Divisions []DivisionCostSummary
}

// OrganizationCostSummary aggregates every active department.
type OrganizationCostSummary struct {
	ChildCount      int // departments
	DepartmentCount int
	DivisionCount   int
	PositionCount   int
	Totals

	Departments []DepartmentCostSummary
}

// =============================================================================
// AGGREGATION
// =============================================================================

// AggregateDivision sums the active positions of a division.
func (e *Engine) AggregateDivision(ctx context.Context, divisionID DivisionID) (*DivisionCostSummary, error) {
	div, err := e.org.GetDivision(ctx, divisionID)
	if err != nil {
		return nil, fmt.Errorf("load division %d: %w", divisionID, err)
	}
	if div == nil {
		return nil, notFound("division", int64(divisionID))
	}
	return e.aggregateDivision(ctx, newPass(), *div)
}

func (e *Engine) aggregateDivision(ctx context.Context, p *pass, div Division) (*DivisionCostSummary, error) {
	summary := &DivisionCostSummary{
		DivisionID:   div.ID,
		DivisionName: div.Name,
		DepartmentID: div.DepartmentID,
		Totals:       zeroTotals(),
		Positions:    []PositionCostSummary{},
	}

	dept, err := e.org.GetDepartment(ctx, div.DepartmentID)
	if err != nil {
		return nil, fmt.Errorf("load department %d: %w", div.DepartmentID, err)
	}
	if dept != nil {
		summary.DepartmentName = dept.Name
	}

	positions, err := e.org.ListPositionsInDivision(ctx, div.ID)
	if err != nil {
		return nil, fmt.Errorf("list positions of division %d: %w", div.ID, err)
	}

	for _, pos := range positions {
		pc, err := e.calculatePosition(ctx, p, pos.ID)
		if err != nil {
			return nil, err
		}
		summary.Positions = append(summary.Positions, *pc)
		summary.add(pc.AuthorizedCount, pc.HardwareTotal, pc.SoftwareTotal)
	}

	summary.PositionCount = len(summary.Positions)
	summary.ChildCount = summary.PositionCount
	return summary, nil
}

// AggregateDepartment sums the active divisions of a department.
func (e *Engine) AggregateDepartment(ctx context.Context, departmentID DepartmentID) (*DepartmentCostSummary, error) {
	dept, err := e.org.GetDepartment(ctx, departmentID)
	if err != nil {
		return nil, fmt.Errorf("load department %d: %w", departmentID, err)
	}
	if dept == nil {
		return nil, notFound("department", int64(departmentID))
	}
	return e.aggregateDepartment(ctx, newPass(), *dept)
}

func (e *Engine) aggregateDepartment(ctx context.Context, p *pass, dept Department) (*DepartmentCostSummary, error) {
	summary := &DepartmentCostSummary{
		DepartmentID:   dept.ID,
		DepartmentName: dept.Name,
		Totals:         zeroTotals(),
		Divisions:      []DivisionCostSummary{},
	}

	divisions, err := e.org.ListDivisionsInDepartment(ctx, dept.ID)
	if err != nil {
		return nil, fmt.Errorf("list divisions of department %d: %w", dept.ID, err)
	}

	for _, div := range divisions {
		dc, err := e.aggregateDivision(ctx, p, div)
		if err != nil {
			return nil, err
		}
		summary.Divisions = append(summary.Divisions, *dc)
		summary.PositionCount += dc.PositionCount
		summary.add(dc.TotalAuthorized, dc.HardwareTotal, dc.SoftwareTotal)
	}

	summary.DivisionCount = len(summary.Divisions)
	summary.ChildCount = summary.DivisionCount
	return summary, nil
}

// AggregateOrganization sums every active department.
func (e *Engine) AggregateOrganization(ctx context.Context) (*OrganizationCostSummary, error) {
	depts, err := e.org.ListDepartments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}

	summary := &OrganizationCostSummary{
		Totals:      zeroTotals(),
		Departments: []DepartmentCostSummary{},
	}

	p := newPass()
	for _, dept := range depts {
		dc, err := e.aggregateDepartment(ctx, p, dept)
		if err != nil {
			return nil, err
		}
		summary.Departments = append(summary.Departments, *dc)
		summary.DivisionCount += dc.DivisionCount
		summary.PositionCount += dc.PositionCount
		summary.add(dc.TotalAuthorized, dc.HardwareTotal, dc.SoftwareTotal)
	}

	summary.DepartmentCount = len(summary.Departments)
	summary.ChildCount = summary.DepartmentCount
	return summary, nil
}

// DepartmentBreakdown builds a summary for each department in the list.
// The list is trusted as already scope-filtered (see FilterDepartments).
func (e *Engine) DepartmentBreakdown(ctx context.Context, departments []Department) ([]DepartmentCostSummary, error) {
	out := make([]DepartmentCostSummary, 0, len(departments))
	p := newPass()
	for _, dept := range departments {
		dc, err := e.aggregateDepartment(ctx, p, dept)
		if err != nil {
			return nil, err
		}
		out = append(out, *dc)
	}
	return out, nil
}

// PositionBreakdown lists every position summary under the given departments,
// in department → division → position order.
func (e *Engine) PositionBreakdown(ctx context.Context, departments []Department) ([]PositionCostSummary, error) {
	depts, err := e.DepartmentBreakdown(ctx, departments)
	if err != nil {
		return nil, err
	}
	var out []PositionCostSummary
	for _, d := range depts {
		for _, div := range d.Divisions {
			out = append(out, div.Positions...)
		}
	}
	return out, nil
}
