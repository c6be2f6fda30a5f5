/*
scenario.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Populates an empty database with a realistic organization, catalog,
  requirements and coverage rules, so the API and CLI have something to
  price. Catalog items go through catalog.Service, so every item starts
  with an open cost history record like a real one would.

AVAILABLE SCENARIOS:
  standard:          Two departments, four positions, per-user and tenant
                     software at organization, department and division scope
  overlap-and-orphan: standard, plus an overlapping coverage rule that must
                     not double count, and a tenant item nobody is covered by

HOW SCENARIOS WORK:
  1. Refuse to run on a database that already has departments
  2. Save departments, divisions, positions
  3. Create catalog items (opens cost history)
  4. Save requirements and coverage rules

USAGE:
  budgetctl seed --scenario standard

ADDING NEW SCENARIOS:
  1. Add to 'scenarios' with ID, name, description and loader
  2. Write the loader against *loader helpers

SEE ALSO:
  - cmd/budgetctl/cmd/seed.go: CLI entry
  - catalog/service.go: Item creation
*/
package scenario

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/budget-engine/catalog"
	"github.com/warp/budget-engine/cost"
)

// Seeder writes the organization side of a scenario. *sqlite.Store
// implements it.
type Seeder interface {
	ListDepartments(ctx context.Context) ([]cost.Department, error)
	SaveDepartment(ctx context.Context, d cost.Department) error
	SaveDivision(ctx context.Context, d cost.Division) error
	SavePosition(ctx context.Context, p cost.Position) error
	SaveHardwareRequirement(ctx context.Context, r cost.HardwareRequirement) error
	SaveSoftwareRequirement(ctx context.Context, r cost.SoftwareRequirement) error
	AddCoverageRule(ctx context.Context, r cost.CoverageRule) (int64, error)
}

// Scenario describes one loadable data set.
type Scenario struct {
	ID          string
	Name        string
	Description string

	load func(l *loader) error
}

var scenarios = []Scenario{
	{
		ID:          "standard",
		Name:        "Standard",
		Description: "Engineering and Operations with per-user and tenant software",
		load:        loadStandard,
	},
	{
		ID:          "overlap-and-orphan",
		Name:        "Overlap and Orphan",
		Description: "Standard plus overlapping coverage and an uncovered tenant item",
		load:        loadOverlapAndOrphan,
	},
}

// List returns the available scenarios.
func List() []Scenario {
	out := make([]Scenario, len(scenarios))
	copy(out, scenarios)
	return out
}

// Load runs scenario id against an empty database.
func Load(ctx context.Context, id string, store Seeder, svc *catalog.Service) error {
	var sc *Scenario
	for i := range scenarios {
		if scenarios[i].ID == id {
			sc = &scenarios[i]
		}
	}
	if sc == nil {
		return fmt.Errorf("unknown scenario %q", id)
	}

	existing, err := store.ListDepartments(ctx)
	if err != nil {
		return fmt.Errorf("check existing data: %w", err)
	}
	if len(existing) > 0 {
		return fmt.Errorf("database already has %d departments; seed an empty database", len(existing))
	}

	l := &loader{
		ctx:      ctx,
		store:    store,
		svc:      svc,
		hardware: make(map[string]cost.HardwareID),
		software: make(map[string]cost.SoftwareID),
	}
	if err := sc.load(l); err != nil {
		return fmt.Errorf("load scenario %s: %w", id, err)
	}
	return nil
}

// =============================================================================
// LOADERS
// =============================================================================

// loadStandard builds:
//
//	Engineering
//	  Platform: Backend Engineer (12), Site Reliability Engineer (8)
//	  Product:  Product Designer (5)
//	Operations
//	  IT Support: Helpdesk Technician (5)
//
// Wiki is shared by all 30 seats, Incident Pager by Platform's 20,
// Ticketing by Operations' 5.
func loadStandard(l *loader) error {
	l.department(1, "ENG", "Engineering")
	l.department(2, "OPS", "Operations")
	l.division(10, "PLT", "Platform", 1)
	l.division(11, "PRD", "Product", 1)
	l.division(20, "ITS", "IT Support", 2)
	l.position(100, "BE", "Backend Engineer", 10, 12)
	l.position(101, "SRE", "Site Reliability Engineer", 10, 8)
	l.position(110, "PD", "Product Designer", 11, 5)
	l.position(200, "HD", "Helpdesk Technician", 20, 5)

	l.hardwareItem("Developer Laptop", "Laptop", "2400")
	l.hardwareItem("Standard Laptop", "Laptop", "1300")
	l.hardwareItem("Monitor", "Display", "250")
	l.hardwareItem("Headset", "Audio", "90")

	l.perUser("Code Host", "Developer Tools", "21")
	l.perUser("Design Suite", "Design", "60")
	l.tenant("Wiki", "Collaboration", "6000")
	l.tenant("Incident Pager", "Operations", "1600")
	l.tenant("Ticketing", "Service Desk", "1000")

	for _, pos := range []cost.PositionID{100, 101} {
		l.needsHardware(pos, "Developer Laptop", 1)
		l.needsHardware(pos, "Monitor", 2)
		l.needsSoftware(pos, "Code Host")
		l.needsSoftware(pos, "Wiki")
		l.needsSoftware(pos, "Incident Pager")
	}
	l.needsHardware(110, "Standard Laptop", 1)
	l.needsHardware(110, "Monitor", 1)
	l.needsSoftware(110, "Design Suite")
	l.needsSoftware(110, "Wiki")
	l.needsHardware(200, "Standard Laptop", 1)
	l.needsHardware(200, "Headset", 1)
	l.needsSoftware(200, "Wiki")
	l.needsSoftware(200, "Ticketing")

	l.covers("Wiki", cost.ScopeOrganization, 0)
	l.covers("Incident Pager", cost.ScopeDivision, 10)
	l.covers("Ticketing", cost.ScopeDepartment, 2)

	return l.err
}

func loadOverlapAndOrphan(l *loader) error {
	if err := loadStandard(l); err != nil {
		return err
	}

	// Engineering is already inside the organization-wide rule.
	l.covers("Wiki", cost.ScopeDepartment, 1)
	l.covers("Incident Pager", cost.ScopePosition, 101)

	l.tenant("Legacy VPN", "Network", "900")
	l.needsSoftware(200, "Legacy VPN")

	return l.err
}

// =============================================================================
// LOADER HELPERS
// =============================================================================

// loader keeps the first error and turns every later call into a no-op,
// so scenario bodies read as flat data.
type loader struct {
	ctx      context.Context
	store    Seeder
	svc      *catalog.Service
	hardware map[string]cost.HardwareID
	software map[string]cost.SoftwareID
	err      error
}

func (l *loader) department(id cost.DepartmentID, code, name string) {
	if l.err != nil {
		return
	}
	l.err = l.store.SaveDepartment(l.ctx, cost.Department{ID: id, Code: code, Name: name, Active: true})
}

func (l *loader) division(id cost.DivisionID, code, name string, dept cost.DepartmentID) {
	if l.err != nil {
		return
	}
	l.err = l.store.SaveDivision(l.ctx, cost.Division{ID: id, Code: code, Name: name, DepartmentID: dept, Active: true})
}

func (l *loader) position(id cost.PositionID, code, title string, div cost.DivisionID, authorized int) {
	if l.err != nil {
		return
	}
	l.err = l.store.SavePosition(l.ctx, cost.Position{
		ID: id, Code: code, Title: title, DivisionID: div, AuthorizedCount: authorized, Active: true,
	})
}

func (l *loader) hardwareItem(name, typeName, unitCost string) {
	if l.err != nil {
		return
	}
	item, err := l.svc.CreateHardware(l.ctx, catalog.NewHardware{
		Name: name, TypeName: typeName, UnitCost: decimal.RequireFromString(unitCost),
	}, "seed")
	if err != nil {
		l.err = err
		return
	}
	l.hardware[name] = item.ID
}

func (l *loader) perUser(name, typeName, costPerLicense string) {
	l.softwareItem(catalog.NewSoftware{
		Name:           name,
		TypeName:       typeName,
		LicenseModel:   cost.LicensePerUser,
		CostPerLicense: decimal.NewNullDecimal(decimal.RequireFromString(costPerLicense)),
	})
}

func (l *loader) tenant(name, typeName, totalCost string) {
	l.softwareItem(catalog.NewSoftware{
		Name:         name,
		TypeName:     typeName,
		LicenseTier:  "Enterprise",
		LicenseModel: cost.LicenseTenant,
		TotalCost:    decimal.NewNullDecimal(decimal.RequireFromString(totalCost)),
	})
}

func (l *loader) softwareItem(in catalog.NewSoftware) {
	if l.err != nil {
		return
	}
	item, err := l.svc.CreateSoftware(l.ctx, in, "seed")
	if err != nil {
		l.err = err
		return
	}
	l.software[in.Name] = item.ID
}

func (l *loader) needsHardware(pos cost.PositionID, name string, qty int) {
	if l.err != nil {
		return
	}
	id, ok := l.hardware[name]
	if !ok {
		l.err = fmt.Errorf("scenario references unknown hardware %q", name)
		return
	}
	l.err = l.store.SaveHardwareRequirement(l.ctx, cost.HardwareRequirement{PositionID: pos, HardwareID: id, Quantity: qty})
}

func (l *loader) needsSoftware(pos cost.PositionID, name string) {
	if l.err != nil {
		return
	}
	id, ok := l.software[name]
	if !ok {
		l.err = fmt.Errorf("scenario references unknown software %q", name)
		return
	}
	l.err = l.store.SaveSoftwareRequirement(l.ctx, cost.SoftwareRequirement{PositionID: pos, SoftwareID: id, Quantity: 1})
}

func (l *loader) covers(name string, scope cost.ScopeType, scopeID int64) {
	if l.err != nil {
		return
	}
	id, ok := l.software[name]
	if !ok {
		l.err = fmt.Errorf("scenario references unknown software %q", name)
		return
	}
	_, l.err = l.store.AddCoverageRule(l.ctx, cost.CoverageRule{SoftwareID: id, Scope: scope, ScopeID: scopeID})
}
