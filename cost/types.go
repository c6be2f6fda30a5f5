/*
Package cost provides the budget cost engine.

PURPOSE:
  Turns catalog, organization and requirement data into position-,
  division-, department- and organization-level cost figures. Also owns
  the effective-dated cost history that lets any historical price be
  reconstructed.

KEY CONCEPTS IN THIS FILE (types.go):
  - Identifiers: Type-safe IDs for org entities and catalog items
  - Org records: Department, Division, Position (plain data, no lazy links)
  - Catalog records: HardwareItem, SoftwareItem, CoverageRule
  - Requirements: what a position needs, with quantity

DESIGN PRINCIPLES:
  1. Precision: All money is decimal.Decimal, never float64
  2. Plain records: Relationships are IDs resolved through repositories
  3. Active-only reads: Repositories never hand inactive rows to the engine

MONEY RULES:
  Hardware:          quantity × unit_cost × authorized_count
  Per-user software: quantity × cost_per_license × authorized_count
  Tenant software:   total_cost ÷ covered_headcount × authorized_count

SEE ALSO:
  - store.go: Repository interfaces
  - position.go: Position cost calculation
  - coverage.go: Tenant coverage resolution
  - history.go: Effective-dated cost history
*/
package cost

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type DepartmentID int64
type DivisionID int64
type PositionID int64
type HardwareID int64
type SoftwareID int64

// =============================================================================
// ORGANIZATION
// =============================================================================

// Department is the top-level organizational unit.
type Department struct {
	ID     DepartmentID
	Code   string
	Name   string
	Active bool
}

// Division belongs to exactly one department.
type Division struct {
	ID           DivisionID
	Code         string
	Name         string
	DepartmentID DepartmentID
	Active       bool
}

// Position belongs to exactly one division.
//
// AuthorizedCount is the budgeted number of seats, not filled headcount.
// It multiplies every per-person cost and is the unit of tenant coverage.
type Position struct {
	ID              PositionID
	Code            string
	Title           string
	DivisionID      DivisionID
	AuthorizedCount int
	Active          bool
}

// =============================================================================
// CATALOG
// =============================================================================

// LicenseModel decides which software cost field applies.
type LicenseModel string

const (
	// LicensePerUser prices CostPerLicense per seat.
	LicensePerUser LicenseModel = "per_user"

	// LicenseTenant is a flat TotalCost shared across a coverage group.
	LicenseTenant LicenseModel = "tenant"
)

// Valid reports whether m is a known license model.
func (m LicenseModel) Valid() bool {
	return m == LicensePerUser || m == LicenseTenant
}

// HardwareItem is a specific hardware product (e.g. "Standard Laptop").
type HardwareItem struct {
	ID       HardwareID
	Name     string
	TypeName string
	UnitCost decimal.Decimal
	Active   bool
}

// SoftwareItem is one license tier of a software product.
// Null cost fields price as zero.
type SoftwareItem struct {
	ID             SoftwareID
	Name           string
	TypeName       string
	LicenseTier    string
	LicenseModel   LicenseModel
	CostPerLicense decimal.NullDecimal
	TotalCost      decimal.NullDecimal
	Active         bool
}

// ScopeType is the breadth of a coverage rule.
type ScopeType string

const (
	ScopeOrganization ScopeType = "organization"
	ScopeDepartment   ScopeType = "department"
	ScopeDivision     ScopeType = "division"
	ScopePosition     ScopeType = "position"
)

// Valid reports whether s is a known scope type.
func (s ScopeType) Valid() bool {
	switch s {
	case ScopeOrganization, ScopeDepartment, ScopeDivision, ScopePosition:
		return true
	}
	return false
}

// CoverageRule declares which positions share a tenant item's cost.
// ScopeID is the department, division or position ID matching Scope,
// and zero for organization-wide rules.
type CoverageRule struct {
	ID         int64
	SoftwareID SoftwareID
	Scope      ScopeType
	ScopeID    int64
}

func (r CoverageRule) String() string {
	if r.Scope == ScopeOrganization {
		return fmt.Sprintf("coverage[%d] software=%d organization", r.ID, r.SoftwareID)
	}
	return fmt.Sprintf("coverage[%d] software=%d %s=%d", r.ID, r.SoftwareID, r.Scope, r.ScopeID)
}

// =============================================================================
// REQUIREMENTS
// =============================================================================

// HardwareRequirement says each seat of a position needs Quantity units.
type HardwareRequirement struct {
	PositionID PositionID
	HardwareID HardwareID
	Quantity   int
}

// SoftwareRequirement says a position uses a software item.
// For tenant items Quantity is informational and never multiplies cost.
type SoftwareRequirement struct {
	PositionID PositionID
	SoftwareID SoftwareID
	Quantity   int
}

// =============================================================================
// MONEY HELPERS
// =============================================================================

// AllocationPrecision is the number of decimal places kept when a tenant
// cost is split across covered seats. Rounding to currency happens only
// at display time.
const AllocationPrecision int32 = 28

func orZero(d decimal.NullDecimal) decimal.Decimal {
	if !d.Valid {
		return decimal.Zero
	}
	return d.Decimal
}

func count(n int) decimal.Decimal { return decimal.NewFromInt(int64(n)) }
