/*
position.go - Position cost calculation

PURPOSE:
  The foundational calculation. Every division, department and
  organization figure is a sum of PositionCostSummary values built here.

FORMULAS (per line):
  hardware:  per_person = quantity × unit_cost
  per_user:  per_person = quantity × cost_per_license
  tenant:    per_person = total_cost ÷ covered_headcount   (quantity ignored)
  all:       position_total = per_person × authorized_count

TOTALS:
  HardwareTotal  = Σ position_total over hardware lines
  SoftwareTotal  = Σ position_total over software lines
  GrandTotal     = HardwareTotal + SoftwareTotal
  TotalPerPerson = Σ per_person over all lines

  TotalPerPerson is kept separately: with AuthorizedCount = 0 the
  GrandTotal is 0 but the per-seat price is still meaningful.

DEGRADATION:
  A requirement whose catalog item is missing or inactive, or whose
  quantity is below 1, is left out of the summary. A tenant item with
  no covered headcount is priced at 0 and flagged "unallocated". Neither
  aborts the position. An unknown position is a NotFoundError.
*/
package cost

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// =============================================================================
// RESULT TYPES
// =============================================================================

// AllocationStatus says how a software line's per-person cost was derived.
type AllocationStatus string

const (
	AllocationPerUser     AllocationStatus = "per_user"
	AllocationAllocated   AllocationStatus = "allocated"
	AllocationUnallocated AllocationStatus = "unallocated" // tenant item with zero covered headcount
)

// HardwareCostLine is one hardware requirement priced for a position.
type HardwareCostLine struct {
	HardwareID    HardwareID
	Name          string
	TypeName      string
	Quantity      int
	UnitCost      decimal.Decimal
	PerPersonCost decimal.Decimal // Quantity × UnitCost
	PositionTotal decimal.Decimal // PerPersonCost × AuthorizedCount
}

// SoftwareCostLine is one software requirement priced for a position.
type SoftwareCostLine struct {
	SoftwareID   SoftwareID
	Name         string
	LicenseModel LicenseModel
	Quantity     int

	// UnitCost is CostPerLicense for per-user items and the per-seat
	// share for tenant items.
	UnitCost      decimal.Decimal
	PerPersonCost decimal.Decimal
	PositionTotal decimal.Decimal

	Allocation       AllocationStatus
	CoveredHeadcount int // tenant items only
}

// PositionCostSummary is the full cost breakdown of one position.
type PositionCostSummary struct {
	PositionID     PositionID
	PositionCode   string
	PositionTitle  string
	DivisionID     DivisionID
	DivisionName   string
	DepartmentID   DepartmentID
	DepartmentName string

	AuthorizedCount int

	HardwareLines []HardwareCostLine
	SoftwareLines []SoftwareCostLine

	HardwarePerPerson decimal.Decimal
	SoftwarePerPerson decimal.Decimal
	TotalPerPerson    decimal.Decimal

	HardwareTotal decimal.Decimal
	SoftwareTotal decimal.Decimal
	GrandTotal    decimal.Decimal
}

// =============================================================================
// CALCULATION
// =============================================================================

// CalculatePositionCost prices every requirement of a position.
// Returns a *NotFoundError if the position does not exist or is inactive.
func (e *Engine) CalculatePositionCost(ctx context.Context, positionID PositionID) (*PositionCostSummary, error) {
	return e.calculatePosition(ctx, newPass(), positionID)
}

func (e *Engine) calculatePosition(ctx context.Context, p *pass, positionID PositionID) (*PositionCostSummary, error) {
	pos, err := e.org.GetPosition(ctx, positionID)
	if err != nil {
		return nil, fmt.Errorf("load position %d: %w", positionID, err)
	}
	if pos == nil {
		return nil, notFound("position", int64(positionID))
	}

	summary := &PositionCostSummary{
		PositionID:        pos.ID,
		PositionCode:      pos.Code,
		PositionTitle:     pos.Title,
		DivisionID:        pos.DivisionID,
		AuthorizedCount:   pos.AuthorizedCount,
		HardwareLines:     []HardwareCostLine{},
		SoftwareLines:     []SoftwareCostLine{},
		HardwarePerPerson: decimal.Zero,
		SoftwarePerPerson: decimal.Zero,
		TotalPerPerson:    decimal.Zero,
		HardwareTotal:     decimal.Zero,
		SoftwareTotal:     decimal.Zero,
		GrandTotal:        decimal.Zero,
	}
	if err := e.fillHierarchy(ctx, summary); err != nil {
		return nil, err
	}

	authorized := count(pos.AuthorizedCount)

	// Hardware
	hwReqs, err := e.requirements.HardwareRequirements(ctx, pos.ID)
	if err != nil {
		return nil, fmt.Errorf("load hardware requirements for position %d: %w", pos.ID, err)
	}
	for _, req := range hwReqs {
		line, ok, err := e.priceHardware(ctx, req, authorized)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		summary.HardwareLines = append(summary.HardwareLines, line)
		summary.HardwarePerPerson = summary.HardwarePerPerson.Add(line.PerPersonCost)
		summary.HardwareTotal = summary.HardwareTotal.Add(line.PositionTotal)
	}

	// Software
	swReqs, err := e.requirements.SoftwareRequirements(ctx, pos.ID)
	if err != nil {
		return nil, fmt.Errorf("load software requirements for position %d: %w", pos.ID, err)
	}
	for _, req := range swReqs {
		line, ok, err := e.priceSoftware(ctx, p, req, authorized)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		summary.SoftwareLines = append(summary.SoftwareLines, line)
		summary.SoftwarePerPerson = summary.SoftwarePerPerson.Add(line.PerPersonCost)
		summary.SoftwareTotal = summary.SoftwareTotal.Add(line.PositionTotal)
	}

	summary.TotalPerPerson = summary.HardwarePerPerson.Add(summary.SoftwarePerPerson)
	summary.GrandTotal = summary.HardwareTotal.Add(summary.SoftwareTotal)
	return summary, nil
}

func (e *Engine) fillHierarchy(ctx context.Context, s *PositionCostSummary) error {
	div, err := e.org.GetDivision(ctx, s.DivisionID)
	if err != nil {
		return fmt.Errorf("load division %d: %w", s.DivisionID, err)
	}
	if div == nil {
		return nil
	}
	s.DivisionName = div.Name
	s.DepartmentID = div.DepartmentID

	dept, err := e.org.GetDepartment(ctx, div.DepartmentID)
	if err != nil {
		return fmt.Errorf("load department %d: %w", div.DepartmentID, err)
	}
	if dept != nil {
		s.DepartmentName = dept.Name
	}
	return nil
}

func (e *Engine) priceHardware(ctx context.Context, req HardwareRequirement, authorized decimal.Decimal) (HardwareCostLine, bool, error) {
	if req.Quantity < 1 {
		e.exclude(ExcludedInvalidQuantity, zap.Int64("hardware_id", int64(req.HardwareID)), zap.Int("quantity", req.Quantity))
		return HardwareCostLine{}, false, nil
	}

	hw, err := e.catalog.GetHardwareItem(ctx, req.HardwareID)
	if err != nil {
		return HardwareCostLine{}, false, fmt.Errorf("load hardware %d: %w", req.HardwareID, err)
	}
	if hw == nil {
		e.exclude(ExcludedMissingHardware, zap.Int64("hardware_id", int64(req.HardwareID)), zap.Int64("position_id", int64(req.PositionID)))
		return HardwareCostLine{}, false, nil
	}

	perPerson := count(req.Quantity).Mul(hw.UnitCost)
	return HardwareCostLine{
		HardwareID:    hw.ID,
		Name:          hw.Name,
		TypeName:      hw.TypeName,
		Quantity:      req.Quantity,
		UnitCost:      hw.UnitCost,
		PerPersonCost: perPerson,
		PositionTotal: perPerson.Mul(authorized),
	}, true, nil
}

func (e *Engine) priceSoftware(ctx context.Context, p *pass, req SoftwareRequirement, authorized decimal.Decimal) (SoftwareCostLine, bool, error) {
	if req.Quantity < 1 {
		e.exclude(ExcludedInvalidQuantity, zap.Int64("software_id", int64(req.SoftwareID)), zap.Int("quantity", req.Quantity))
		return SoftwareCostLine{}, false, nil
	}

	sw, err := e.catalog.GetSoftwareItem(ctx, req.SoftwareID)
	if err != nil {
		return SoftwareCostLine{}, false, fmt.Errorf("load software %d: %w", req.SoftwareID, err)
	}
	if sw == nil {
		e.exclude(ExcludedMissingSoftware, zap.Int64("software_id", int64(req.SoftwareID)), zap.Int64("position_id", int64(req.PositionID)))
		return SoftwareCostLine{}, false, nil
	}

	line := SoftwareCostLine{
		SoftwareID:   sw.ID,
		Name:         sw.Name,
		LicenseModel: sw.LicenseModel,
		Quantity:     req.Quantity,
	}

	switch sw.LicenseModel {
	case LicensePerUser:
		line.UnitCost = orZero(sw.CostPerLicense)
		line.PerPersonCost = count(req.Quantity).Mul(line.UnitCost)
		line.Allocation = AllocationPerUser

	case LicenseTenant:
		covered, err := e.coveredHeadcount(ctx, p, sw.ID)
		if err != nil {
			return SoftwareCostLine{}, false, err
		}
		line.CoveredHeadcount = covered
		if covered == 0 {
			e.logger.Warn("tenant software has no covered headcount; allocating zero",
				zap.Int64("software_id", int64(sw.ID)),
				zap.String("software", sw.Name),
				zap.Int64("position_id", int64(req.PositionID)))
			e.observer.DegenerateAllocation(sw.ID)
			line.UnitCost = decimal.Zero
			line.Allocation = AllocationUnallocated
		} else {
			line.UnitCost = orZero(sw.TotalCost).DivRound(count(covered), AllocationPrecision)
			line.Allocation = AllocationAllocated
		}
		line.PerPersonCost = line.UnitCost

	default:
		e.exclude(ExcludedInvalidLicense, zap.Int64("software_id", int64(sw.ID)), zap.String("license_model", string(sw.LicenseModel)))
		return SoftwareCostLine{}, false, nil
	}

	line.PositionTotal = line.PerPersonCost.Mul(authorized)
	return line, true, nil
}

func (e *Engine) exclude(reason string, fields ...zap.Field) {
	e.logger.Debug("excluding cost line", append(fields, zap.String("reason", reason))...)
	e.observer.ExcludedLine(reason)
}
