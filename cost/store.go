/*
store.go - Repository interfaces for the cost engine

PURPOSE:
  Defines the boundary between the engine and the database. The engine
  only ever reads through these interfaces, so it can be tested against
  the in-memory store without a live database.

KEY INTERFACES:
  OrgStore:         Department → division → position hierarchy
  CatalogStore:     Hardware and software items with cost fields
  RequirementStore: Per-position hardware/software requirements
  CoverageStore:    Coverage rules of tenant-licensed software
  HistoryReader:    Effective-dated cost history lookups
  CatalogArchive:   Catalog items regardless of Active, for point-in-time pricing
  HistoryStore:     History reads + the two write primitives (close, insert)
  TxStore:          Atomic catalog write + history transition

ACTIVE-ONLY CONTRACT:
  Every read except CatalogArchive returns active rows only. An org entity is active when it
  and all of its ancestors are active. A missing or inactive row is
  reported as (nil, nil), never as an error.

HISTORY CONTRACT:
  History is append-only. The only mutation of an existing record is
  setting EndDate on the open record. There is no Delete.

IMPLEMENTATIONS:
  - cost/store/memory.go: In-memory for testing
  - store/sqlite/sqlite.go: SQLite

SEE ALSO:
  - history.go: Recorder that drives HistoryStore
  - engine.go: Engine that reads through these interfaces
*/
package cost

import (
	"context"
	"time"
)

// =============================================================================
// READ REPOSITORIES
// =============================================================================

// OrgStore reads the active organization hierarchy.
type OrgStore interface {
	GetDepartment(ctx context.Context, id DepartmentID) (*Department, error)
	GetDivision(ctx context.Context, id DivisionID) (*Division, error)
	GetPosition(ctx context.Context, id PositionID) (*Position, error)

	// ListDepartments returns active departments ordered by name.
	ListDepartments(ctx context.Context) ([]Department, error)

	// ListDivisionsInDepartment returns active divisions ordered by name.
	ListDivisionsInDepartment(ctx context.Context, id DepartmentID) ([]Division, error)

	// ListPositionsInDivision returns active positions ordered by title.
	ListPositionsInDivision(ctx context.Context, id DivisionID) ([]Position, error)

	// ListPositions returns every active position in the organization.
	ListPositions(ctx context.Context) ([]Position, error)
}

// CatalogStore reads active catalog items.
type CatalogStore interface {
	GetHardwareItem(ctx context.Context, id HardwareID) (*HardwareItem, error)
	GetSoftwareItem(ctx context.Context, id SoftwareID) (*SoftwareItem, error)
}

// RequirementStore reads what a position needs.
type RequirementStore interface {
	HardwareRequirements(ctx context.Context, positionID PositionID) ([]HardwareRequirement, error)
	SoftwareRequirements(ctx context.Context, positionID PositionID) ([]SoftwareRequirement, error)
}

// CoverageStore reads coverage rules for tenant items.
type CoverageStore interface {
	CoverageRules(ctx context.Context, softwareID SoftwareID) ([]CoverageRule, error)
}

// ReadStore is everything the engine reads.
type ReadStore interface {
	OrgStore
	CatalogStore
	RequirementStore
	CoverageStore
}

// =============================================================================
// HISTORY
// =============================================================================

// HistoryReader looks up effective-dated cost records.
type HistoryReader interface {
	// CostRecords returns all records for an item ordered by EffectiveDate.
	CostRecords(ctx context.Context, item ItemRef) ([]CostHistoryRecord, error)

	// CostRecordAt returns the record in force at t:
	//   effective_date <= t AND (end_date IS NULL OR end_date > t)
	CostRecordAt(ctx context.Context, item ItemRef, t time.Time) (*CostHistoryRecord, error)
}

// CatalogArchive reads catalog items whether or not they are still active.
// An item deactivated today was still priced in the past.
type CatalogArchive interface {
	LookupHardwareItem(ctx context.Context, id HardwareID) (*HardwareItem, error)
	LookupSoftwareItem(ctx context.Context, id SoftwareID) (*SoftwareItem, error)
}

// HistorySource is what Engine.AsOf prices from.
type HistorySource interface {
	HistoryReader
	CatalogArchive
}

// HistoryStore adds the write primitives of the close-then-open transition.
// Implementations handed out by TxStore.WithTx run inside one transaction.
type HistoryStore interface {
	HistoryReader

	// OpenCostRecord returns the record with no EndDate, or nil.
	OpenCostRecord(ctx context.Context, item ItemRef) (*CostHistoryRecord, error)

	// CloseCostRecord sets EndDate on an open record. Closed records are
	// never touched again.
	CloseCostRecord(ctx context.Context, id string, end time.Time) error

	// InsertCostRecord appends a record. Returns ErrConcurrentModification
	// if the item already has an open record.
	InsertCostRecord(ctx context.Context, rec CostHistoryRecord) error
}

// =============================================================================
// TRANSACTIONAL WRITES
// =============================================================================

// CatalogWriter persists catalog items. Used by the catalog service only.
type CatalogWriter interface {
	CatalogStore

	CreateHardwareItem(ctx context.Context, item HardwareItem) (HardwareID, error)
	UpdateHardwareItem(ctx context.Context, item HardwareItem) error
	CreateSoftwareItem(ctx context.Context, item SoftwareItem) (SoftwareID, error)
	UpdateSoftwareItem(ctx context.Context, item SoftwareItem) error
}

// WriteTx is the view handed to a WithTx callback.
type WriteTx interface {
	CatalogWriter
	HistoryStore
}

// TxStore runs fn inside one database transaction.
// If fn returns an error the transaction is rolled back, otherwise committed.
type TxStore interface {
	WithTx(ctx context.Context, fn func(tx WriteTx) error) error
}
