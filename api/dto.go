/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the cost engine's result types from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Amounts are decimal.Decimal and marshal as JSON strings ("1234.5"),
  never floats. Tenant shares carry full precision; clients round for
  display. Request bodies accept both "1200.00" and 1200.

TYPES:
  Cost:     PositionCostDTO, DivisionCostDTO, DepartmentCostDTO,
            OrganizationCostDTO, TotalsDTO
  Coverage: CoverageDTO
  Catalog:  HardwareItemDTO, SoftwareItemDTO, CreateHardwareRequest,
            UpdateHardwareRequest, CreateSoftwareRequest, UpdateSoftwareRequest
  History:  CostHistoryDTO

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/budget-engine/catalog"
	"github.com/warp/budget-engine/cost"
)

// =============================================================================
// COST RESPONSES
// =============================================================================

// TotalsDTO is the money block shared by every rollup level.
type TotalsDTO struct {
	TotalAuthorized int             `json:"total_authorized"`
	HardwareTotal   decimal.Decimal `json:"hardware_total"`
	SoftwareTotal   decimal.Decimal `json:"software_total"`
	GrandTotal      decimal.Decimal `json:"grand_total"`
}

type HardwareLineDTO struct {
	HardwareID    int64           `json:"hardware_id"`
	Name          string          `json:"name"`
	TypeName      string          `json:"type_name,omitempty"`
	Quantity      int             `json:"quantity"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
	PerPersonCost decimal.Decimal `json:"per_person_cost"`
	PositionTotal decimal.Decimal `json:"position_total"`
}

type SoftwareLineDTO struct {
	SoftwareID       int64           `json:"software_id"`
	Name             string          `json:"name"`
	LicenseModel     string          `json:"license_model"`
	Quantity         int             `json:"quantity"`
	UnitCost         decimal.Decimal `json:"unit_cost"`
	PerPersonCost    decimal.Decimal `json:"per_person_cost"`
	PositionTotal    decimal.Decimal `json:"position_total"`
	Allocation       string          `json:"allocation"`
	CoveredHeadcount int             `json:"covered_headcount,omitempty"`
}

// PositionCostDTO is the full breakdown of one position.
type PositionCostDTO struct {
	PositionID      int64  `json:"position_id"`
	PositionCode    string `json:"position_code"`
	PositionTitle   string `json:"position_title"`
	DivisionID      int64  `json:"division_id"`
	DivisionName    string `json:"division_name"`
	DepartmentID    int64  `json:"department_id"`
	DepartmentName  string `json:"department_name"`
	AuthorizedCount int    `json:"authorized_count"`

	HardwareLines []HardwareLineDTO `json:"hardware_lines"`
	SoftwareLines []SoftwareLineDTO `json:"software_lines"`

	HardwarePerPerson decimal.Decimal `json:"hardware_per_person"`
	SoftwarePerPerson decimal.Decimal `json:"software_per_person"`
	TotalPerPerson    decimal.Decimal `json:"total_per_person"`

	HardwareTotal decimal.Decimal `json:"hardware_total"`
	SoftwareTotal decimal.Decimal `json:"software_total"`
	GrandTotal    decimal.Decimal `json:"grand_total"`
}

type DivisionCostDTO struct {
	DivisionID     int64  `json:"division_id"`
	DivisionName   string `json:"division_name"`
	DepartmentID   int64  `json:"department_id"`
	DepartmentName string `json:"department_name"`
	PositionCount  int    `json:"position_count"`
	TotalsDTO

	Positions []PositionCostDTO `json:"positions"`
}

type DepartmentCostDTO struct {
	DepartmentID   int64  `json:"department_id"`
	DepartmentName string `json:"department_name"`
	DivisionCount  int    `json:"division_count"`
	PositionCount  int    `json:"position_count"`
	TotalsDTO

	Divisions []DivisionCostDTO `json:"divisions,omitempty"`
}

type OrganizationCostDTO struct {
	DepartmentCount int `json:"department_count"`
	DivisionCount   int `json:"division_count"`
	PositionCount   int `json:"position_count"`
	TotalsDTO

	Departments []DepartmentCostDTO `json:"departments"`
}

// CoverageDTO is the resolved coverage of one tenant item.
type CoverageDTO struct {
	SoftwareID  int64   `json:"software_id"`
	RuleCount   int     `json:"rule_count"`
	PositionIDs []int64 `json:"position_ids"`
	Headcount   int     `json:"covered_headcount"`
}

// =============================================================================
// CATALOG
// =============================================================================

type HardwareItemDTO struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	TypeName string          `json:"type_name"`
	UnitCost decimal.Decimal `json:"unit_cost"`
	Active   bool            `json:"active"`
}

type SoftwareItemDTO struct {
	ID             int64               `json:"id"`
	Name           string              `json:"name"`
	TypeName       string              `json:"type_name"`
	LicenseTier    string              `json:"license_tier"`
	LicenseModel   string              `json:"license_model"`
	CostPerLicense decimal.NullDecimal `json:"cost_per_license"`
	TotalCost      decimal.NullDecimal `json:"total_cost"`
	Active         bool                `json:"active"`
}

// CreateHardwareRequest is the body of POST /api/hardware.
type CreateHardwareRequest struct {
	Name      string          `json:"name"`
	TypeName  string          `json:"type_name"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	ChangedBy string          `json:"changed_by"`
}

// UpdateHardwareRequest is the body of PATCH /api/hardware/{id}.
// Omitted fields are left unchanged.
type UpdateHardwareRequest struct {
	Name      *string          `json:"name"`
	TypeName  *string          `json:"type_name"`
	UnitCost  *decimal.Decimal `json:"unit_cost"`
	ChangedBy string           `json:"changed_by"`
	Reason    string           `json:"reason"`
}

func (r UpdateHardwareRequest) toUpdate() catalog.HardwareUpdate {
	return catalog.HardwareUpdate{Name: r.Name, TypeName: r.TypeName, UnitCost: r.UnitCost}
}

// CreateSoftwareRequest is the body of POST /api/software.
type CreateSoftwareRequest struct {
	Name           string              `json:"name"`
	TypeName       string              `json:"type_name"`
	LicenseTier    string              `json:"license_tier"`
	LicenseModel   string              `json:"license_model"`
	CostPerLicense decimal.NullDecimal `json:"cost_per_license"`
	TotalCost      decimal.NullDecimal `json:"total_cost"`
	ChangedBy      string              `json:"changed_by"`
}

// UpdateSoftwareRequest is the body of PATCH /api/software/{id}.
// An explicit null clears a cost field; an omitted one is left unchanged.
type UpdateSoftwareRequest struct {
	Name           *string         `json:"name"`
	TypeName       *string         `json:"type_name"`
	LicenseTier    *string         `json:"license_tier"`
	LicenseModel   *string         `json:"license_model"`
	CostPerLicense OptionalDecimal `json:"cost_per_license"`
	TotalCost      OptionalDecimal `json:"total_cost"`
	ChangedBy      string          `json:"changed_by"`
	Reason         string          `json:"reason"`
}

func (r UpdateSoftwareRequest) toUpdate() catalog.SoftwareUpdate {
	u := catalog.SoftwareUpdate{
		Name:        r.Name,
		TypeName:    r.TypeName,
		LicenseTier: r.LicenseTier,
	}
	if r.LicenseModel != nil {
		m := cost.LicenseModel(*r.LicenseModel)
		u.LicenseModel = &m
	}
	if r.CostPerLicense.Set {
		u.CostPerLicense = &r.CostPerLicense.Value
	}
	if r.TotalCost.Set {
		u.TotalCost = &r.TotalCost.Value
	}
	return u
}

// OptionalDecimal tells an omitted field apart from an explicit null.
type OptionalDecimal struct {
	Set   bool
	Value decimal.NullDecimal
}

func (o *OptionalDecimal) UnmarshalJSON(b []byte) error {
	o.Set = true
	return o.Value.UnmarshalJSON(b)
}

// =============================================================================
// HISTORY
// =============================================================================

// CostHistoryDTO is one effective-dated cost record.
type CostHistoryDTO struct {
	ID             string              `json:"id"`
	ItemKind       string              `json:"item_kind"`
	ItemID         int64               `json:"item_id"`
	UnitCost       decimal.NullDecimal `json:"unit_cost"`
	LicenseModel   string              `json:"license_model,omitempty"`
	CostPerLicense decimal.NullDecimal `json:"cost_per_license"`
	TotalCost      decimal.NullDecimal `json:"total_cost"`
	EffectiveDate  string              `json:"effective_date"`
	EndDate        *string             `json:"end_date"`
	ChangedBy      string              `json:"changed_by"`
	ChangeReason   string              `json:"change_reason"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toTotalsDTO(t cost.Totals) TotalsDTO {
	return TotalsDTO{
		TotalAuthorized: t.TotalAuthorized,
		HardwareTotal:   t.HardwareTotal,
		SoftwareTotal:   t.SoftwareTotal,
		GrandTotal:      t.GrandTotal,
	}
}

func toPositionCostDTO(s cost.PositionCostSummary) PositionCostDTO {
	dto := PositionCostDTO{
		PositionID:        int64(s.PositionID),
		PositionCode:      s.PositionCode,
		PositionTitle:     s.PositionTitle,
		DivisionID:        int64(s.DivisionID),
		DivisionName:      s.DivisionName,
		DepartmentID:      int64(s.DepartmentID),
		DepartmentName:    s.DepartmentName,
		AuthorizedCount:   s.AuthorizedCount,
		HardwareLines:     make([]HardwareLineDTO, len(s.HardwareLines)),
		SoftwareLines:     make([]SoftwareLineDTO, len(s.SoftwareLines)),
		HardwarePerPerson: s.HardwarePerPerson,
		SoftwarePerPerson: s.SoftwarePerPerson,
		TotalPerPerson:    s.TotalPerPerson,
		HardwareTotal:     s.HardwareTotal,
		SoftwareTotal:     s.SoftwareTotal,
		GrandTotal:        s.GrandTotal,
	}
	for i, l := range s.HardwareLines {
		dto.HardwareLines[i] = HardwareLineDTO{
			HardwareID:    int64(l.HardwareID),
			Name:          l.Name,
			TypeName:      l.TypeName,
			Quantity:      l.Quantity,
			UnitCost:      l.UnitCost,
			PerPersonCost: l.PerPersonCost,
			PositionTotal: l.PositionTotal,
		}
	}
	for i, l := range s.SoftwareLines {
		dto.SoftwareLines[i] = SoftwareLineDTO{
			SoftwareID:       int64(l.SoftwareID),
			Name:             l.Name,
			LicenseModel:     string(l.LicenseModel),
			Quantity:         l.Quantity,
			UnitCost:         l.UnitCost,
			PerPersonCost:    l.PerPersonCost,
			PositionTotal:    l.PositionTotal,
			Allocation:       string(l.Allocation),
			CoveredHeadcount: l.CoveredHeadcount,
		}
	}
	return dto
}

func toDivisionCostDTO(s cost.DivisionCostSummary) DivisionCostDTO {
	dto := DivisionCostDTO{
		DivisionID:     int64(s.DivisionID),
		DivisionName:   s.DivisionName,
		DepartmentID:   int64(s.DepartmentID),
		DepartmentName: s.DepartmentName,
		PositionCount:  s.PositionCount,
		TotalsDTO:      toTotalsDTO(s.Totals),
		Positions:      make([]PositionCostDTO, len(s.Positions)),
	}
	for i, p := range s.Positions {
		dto.Positions[i] = toPositionCostDTO(p)
	}
	return dto
}

func toDepartmentCostDTO(s cost.DepartmentCostSummary) DepartmentCostDTO {
	dto := DepartmentCostDTO{
		DepartmentID:   int64(s.DepartmentID),
		DepartmentName: s.DepartmentName,
		DivisionCount:  s.DivisionCount,
		PositionCount:  s.PositionCount,
		TotalsDTO:      toTotalsDTO(s.Totals),
	}
	for _, d := range s.Divisions {
		dto.Divisions = append(dto.Divisions, toDivisionCostDTO(d))
	}
	return dto
}

func toOrganizationCostDTO(s cost.OrganizationCostSummary) OrganizationCostDTO {
	dto := OrganizationCostDTO{
		DepartmentCount: s.DepartmentCount,
		DivisionCount:   s.DivisionCount,
		PositionCount:   s.PositionCount,
		TotalsDTO:       toTotalsDTO(s.Totals),
		Departments:     make([]DepartmentCostDTO, len(s.Departments)),
	}
	for i, d := range s.Departments {
		dto.Departments[i] = toDepartmentCostDTO(d)
	}
	return dto
}

func toCoverageDTO(c cost.Coverage) CoverageDTO {
	dto := CoverageDTO{
		SoftwareID:  int64(c.SoftwareID),
		RuleCount:   c.RuleCount,
		PositionIDs: make([]int64, len(c.PositionIDs)),
		Headcount:   c.Headcount,
	}
	for i, id := range c.PositionIDs {
		dto.PositionIDs[i] = int64(id)
	}
	return dto
}

func toHardwareItemDTO(item cost.HardwareItem) HardwareItemDTO {
	return HardwareItemDTO{
		ID:       int64(item.ID),
		Name:     item.Name,
		TypeName: item.TypeName,
		UnitCost: item.UnitCost,
		Active:   item.Active,
	}
}

func toSoftwareItemDTO(item cost.SoftwareItem) SoftwareItemDTO {
	return SoftwareItemDTO{
		ID:             int64(item.ID),
		Name:           item.Name,
		TypeName:       item.TypeName,
		LicenseTier:    item.LicenseTier,
		LicenseModel:   string(item.LicenseModel),
		CostPerLicense: item.CostPerLicense,
		TotalCost:      item.TotalCost,
		Active:         item.Active,
	}
}

func toCostHistoryDTO(r cost.CostHistoryRecord) CostHistoryDTO {
	dto := CostHistoryDTO{
		ID:             r.ID,
		ItemKind:       string(r.Item.Kind),
		ItemID:         r.Item.ID,
		UnitCost:       r.Snapshot.UnitCost,
		LicenseModel:   string(r.Snapshot.LicenseModel),
		CostPerLicense: r.Snapshot.CostPerLicense,
		TotalCost:      r.Snapshot.TotalCost,
		EffectiveDate:  r.EffectiveDate.Format(time.RFC3339Nano),
		ChangedBy:      r.ChangedBy,
		ChangeReason:   r.ChangeReason,
	}
	if r.EndDate != nil {
		end := r.EndDate.Format(time.RFC3339Nano)
		dto.EndDate = &end
	}
	return dto
}
