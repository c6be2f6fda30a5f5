/*
Package sqlite provides a SQLite-backed implementation of the cost engine's
repository interfaces.

PURPOSE:
  Implements every interface in cost/store.go using SQLite. In production
  the same patterns apply to PostgreSQL, with minor dialect differences.

INTERFACES IMPLEMENTED:
  cost.ReadStore:    Org hierarchy, catalog, requirements, coverage
  cost.HistoryStore: Effective-dated cost history
  cost.TxStore:      Catalog write + history transition in one transaction

ACTIVE-ONLY READS:
  The "active" predicate lives here, in SQL. A position is returned only
  when the position, its division and its department are all active.
  Missing or inactive rows come back as (nil, nil).

KEY TABLES:
  departments, divisions, positions:   Org hierarchy (written by seeding / HR sync)
  hardware_items, software_items:      Catalog
  software_coverage:                   Tenant coverage rules
  position_hardware, position_software: Requirements
  cost_history:                        Append-only effective-dated costs

  Catalog reads are active-only except LookupHardwareItem and
  LookupSoftwareItem, which point-in-time pricing uses for items
  deactivated after the priced instant.

INDEXES:
  - idx_cost_history_open: Partial UNIQUE on (item_kind, item_id) WHERE
    end_date IS NULL. A second open record fails the insert, which
    surfaces as cost.ErrConcurrentModification.
  - idx_cost_history_item_date: Point-in-time lookups

TIMESTAMPS:
  Stored as fixed-width UTC text (timeLayout), so string comparison in
  SQL orders the same way as time comparison.

CONCURRENCY:
  sync.RWMutex plus a single pooled connection: one writer at a time,
  and reads inside WithTx go through the transaction handle.

MIGRATION:
  Versioned SQL files in migrations/, embedded and applied with goose
  on New(). `budgetctl migrate` runs them against a database file
  without starting the server.

USAGE:
  store, err := sqlite.New("./data/budget.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := cost.NewEngine(store)

SEE ALSO:
  - cost/store.go: Interface definitions
  - cost/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/warp/budget-engine/cost"
)

//go:embed migrations/*.sql
var migrations embed.FS

// timeLayout is fixed width so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path and applies
// pending migrations. Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := Open(dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := Migrate(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db}, nil
}

// Open opens the database without migrating it.
func Open(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: ":memory:" databases are per-connection, and SQLite
	// allows a single writer anyway.
	db.SetMaxOpenConns(1)
	return db, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// MIGRATIONS
// =============================================================================

// goose keeps its base FS and dialect in package state.
var gooseMu sync.Mutex

// Migrate applies every pending migration and returns the schema version.
func Migrate(ctx context.Context, db *sql.DB) (int64, error) {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	if err := setupGoose(); err != nil {
		return 0, err
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return 0, err
	}
	return goose.GetDBVersionContext(ctx, db)
}

// SchemaVersion returns the latest applied migration version.
func SchemaVersion(ctx context.Context, db *sql.DB) (int64, error) {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	if err := setupGoose(); err != nil {
		return 0, err
	}
	return goose.GetDBVersionContext(ctx, db)
}

func setupGoose() error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	return nil
}

// =============================================================================
// ORG STORE (cost.OrgStore)
// =============================================================================

const (
	departmentCols = `dp.id, dp.code, dp.name, dp.is_active`
	divisionCols   = `d.id, d.code, d.name, d.department_id, d.is_active`
	positionCols   = `p.id, p.code, p.title, p.division_id, p.authorized_count, p.is_active`

	activeDivisionJoin = `
		FROM divisions d
		JOIN departments dp ON dp.id = d.department_id
		WHERE d.is_active = 1 AND dp.is_active = 1`

	activePositionJoin = `
		FROM positions p
		JOIN divisions d ON d.id = p.division_id
		JOIN departments dp ON dp.id = d.department_id
		WHERE p.is_active = 1 AND d.is_active = 1 AND dp.is_active = 1`
)

func (s *Store) GetDepartment(ctx context.Context, id cost.DepartmentID) (*cost.Department, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var d cost.Department
	err := s.db.QueryRowContext(ctx,
		`SELECT `+departmentCols+` FROM departments dp WHERE dp.id = ? AND dp.is_active = 1`, id,
	).Scan(&d.ID, &d.Code, &d.Name, &d.Active)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get department: %w", err)
	}
	return &d, nil
}

func (s *Store) GetDivision(ctx context.Context, id cost.DivisionID) (*cost.Division, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var d cost.Division
	err := s.db.QueryRowContext(ctx,
		`SELECT `+divisionCols+activeDivisionJoin+` AND d.id = ?`, id,
	).Scan(&d.ID, &d.Code, &d.Name, &d.DepartmentID, &d.Active)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get division: %w", err)
	}
	return &d, nil
}

func (s *Store) GetPosition(ctx context.Context, id cost.PositionID) (*cost.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	positions, err := s.queryPositions(ctx, `SELECT `+positionCols+activePositionJoin+` AND p.id = ?`, id)
	if err != nil || len(positions) == 0 {
		return nil, err
	}
	return &positions[0], nil
}

func (s *Store) ListDepartments(ctx context.Context) ([]cost.Department, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+departmentCols+` FROM departments dp WHERE dp.is_active = 1 ORDER BY dp.name, dp.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list departments: %w", err)
	}
	defer rows.Close()

	var out []cost.Department
	for rows.Next() {
		var d cost.Department
		if err := rows.Scan(&d.ID, &d.Code, &d.Name, &d.Active); err != nil {
			return nil, fmt.Errorf("failed to scan department: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) ListDivisionsInDepartment(ctx context.Context, id cost.DepartmentID) ([]cost.Division, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+divisionCols+activeDivisionJoin+` AND d.department_id = ? ORDER BY d.name, d.id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list divisions: %w", err)
	}
	defer rows.Close()

	var out []cost.Division
	for rows.Next() {
		var d cost.Division
		if err := rows.Scan(&d.ID, &d.Code, &d.Name, &d.DepartmentID, &d.Active); err != nil {
			return nil, fmt.Errorf("failed to scan division: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) ListPositionsInDivision(ctx context.Context, id cost.DivisionID) ([]cost.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryPositions(ctx, `SELECT `+positionCols+activePositionJoin+` AND p.division_id = ? ORDER BY p.title, p.id`, id)
}

func (s *Store) ListPositions(ctx context.Context) ([]cost.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryPositions(ctx, `SELECT `+positionCols+activePositionJoin+` ORDER BY p.id`)
}

func (s *Store) queryPositions(ctx context.Context, query string, args ...any) ([]cost.Position, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var out []cost.Position
	for rows.Next() {
		var p cost.Position
		if err := rows.Scan(&p.ID, &p.Code, &p.Title, &p.DivisionID, &p.AuthorizedCount, &p.Active); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// =============================================================================
// CATALOG STORE (cost.CatalogStore, cost.CatalogWriter)
// =============================================================================

func (s *Store) GetHardwareItem(ctx context.Context, id cost.HardwareID) (*cost.HardwareItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getHardwareItem(ctx, s.db, id)
}

func (s *Store) GetSoftwareItem(ctx context.Context, id cost.SoftwareID) (*cost.SoftwareItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getSoftwareItem(ctx, s.db, id)
}

func (s *Store) CreateHardwareItem(ctx context.Context, item cost.HardwareItem) (cost.HardwareID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createHardwareItem(ctx, s.db, item)
}

func (s *Store) UpdateHardwareItem(ctx context.Context, item cost.HardwareItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateHardwareItem(ctx, s.db, item)
}

func (s *Store) CreateSoftwareItem(ctx context.Context, item cost.SoftwareItem) (cost.SoftwareID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createSoftwareItem(ctx, s.db, item)
}

func (s *Store) UpdateSoftwareItem(ctx context.Context, item cost.SoftwareItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateSoftwareItem(ctx, s.db, item)
}

// LookupHardwareItem returns a hardware item whether or not it is active.
func (s *Store) LookupHardwareItem(ctx context.Context, id cost.HardwareID) (*cost.HardwareItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lookupHardwareItem(ctx, s.db, id, false)
}

// LookupSoftwareItem returns a software item whether or not it is active.
func (s *Store) LookupSoftwareItem(ctx context.Context, id cost.SoftwareID) (*cost.SoftwareItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lookupSoftwareItem(ctx, s.db, id, false)
}

func getHardwareItem(ctx context.Context, q querier, id cost.HardwareID) (*cost.HardwareItem, error) {
	return lookupHardwareItem(ctx, q, id, true)
}

func getSoftwareItem(ctx context.Context, q querier, id cost.SoftwareID) (*cost.SoftwareItem, error) {
	return lookupSoftwareItem(ctx, q, id, true)
}

func lookupHardwareItem(ctx context.Context, q querier, id cost.HardwareID, activeOnly bool) (*cost.HardwareItem, error) {
	var item cost.HardwareItem
	err := q.QueryRowContext(ctx,
		`SELECT id, name, type_name, unit_cost, is_active FROM hardware_items
		WHERE id = ? AND (is_active = 1 OR NOT ?)`, id, activeOnly,
	).Scan(&item.ID, &item.Name, &item.TypeName, &item.UnitCost, &item.Active)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get hardware item: %w", err)
	}
	return &item, nil
}

func lookupSoftwareItem(ctx context.Context, q querier, id cost.SoftwareID, activeOnly bool) (*cost.SoftwareItem, error) {
	var (
		item  cost.SoftwareItem
		model string
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, name, type_name, license_tier, license_model, cost_per_license, total_cost, is_active
		FROM software_items WHERE id = ? AND (is_active = 1 OR NOT ?)`, id, activeOnly,
	).Scan(&item.ID, &item.Name, &item.TypeName, &item.LicenseTier, &model,
		&item.CostPerLicense, &item.TotalCost, &item.Active)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get software item: %w", err)
	}
	item.LicenseModel = cost.LicenseModel(model)
	return &item, nil
}

func createHardwareItem(ctx context.Context, q querier, item cost.HardwareItem) (cost.HardwareID, error) {
	now := formatTime(time.Now())
	res, err := q.ExecContext(ctx, `
		INSERT INTO hardware_items (name, type_name, unit_cost, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		item.Name, item.TypeName, item.UnitCost.String(), item.Active, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to create hardware item: %w", err)
	}
	id, err := res.LastInsertId()
	return cost.HardwareID(id), err
}

func updateHardwareItem(ctx context.Context, q querier, item cost.HardwareItem) error {
	res, err := q.ExecContext(ctx, `
		UPDATE hardware_items SET name = ?, type_name = ?, unit_cost = ?, is_active = ?, updated_at = ?
		WHERE id = ?`,
		item.Name, item.TypeName, item.UnitCost.String(), item.Active, formatTime(time.Now()), item.ID)
	if err != nil {
		return fmt.Errorf("failed to update hardware item: %w", err)
	}
	return requireRow(res, "hardware", int64(item.ID))
}

func createSoftwareItem(ctx context.Context, q querier, item cost.SoftwareItem) (cost.SoftwareID, error) {
	now := formatTime(time.Now())
	res, err := q.ExecContext(ctx, `
		INSERT INTO software_items
		(name, type_name, license_tier, license_model, cost_per_license, total_cost, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.Name, item.TypeName, item.LicenseTier, string(item.LicenseModel),
		nullDecimal(item.CostPerLicense), nullDecimal(item.TotalCost), item.Active, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to create software item: %w", err)
	}
	id, err := res.LastInsertId()
	return cost.SoftwareID(id), err
}

func updateSoftwareItem(ctx context.Context, q querier, item cost.SoftwareItem) error {
	res, err := q.ExecContext(ctx, `
		UPDATE software_items SET name = ?, type_name = ?, license_tier = ?, license_model = ?,
			cost_per_license = ?, total_cost = ?, is_active = ?, updated_at = ?
		WHERE id = ?`,
		item.Name, item.TypeName, item.LicenseTier, string(item.LicenseModel),
		nullDecimal(item.CostPerLicense), nullDecimal(item.TotalCost), item.Active,
		formatTime(time.Now()), item.ID)
	if err != nil {
		return fmt.Errorf("failed to update software item: %w", err)
	}
	return requireRow(res, "software", int64(item.ID))
}

// =============================================================================
// REQUIREMENT & COVERAGE STORES
// =============================================================================

func (s *Store) HardwareRequirements(ctx context.Context, positionID cost.PositionID) ([]cost.HardwareRequirement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT position_id, hardware_id, quantity FROM position_hardware WHERE position_id = ? ORDER BY hardware_id`,
		positionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query hardware requirements: %w", err)
	}
	defer rows.Close()

	var out []cost.HardwareRequirement
	for rows.Next() {
		var r cost.HardwareRequirement
		if err := rows.Scan(&r.PositionID, &r.HardwareID, &r.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan hardware requirement: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) SoftwareRequirements(ctx context.Context, positionID cost.PositionID) ([]cost.SoftwareRequirement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT position_id, software_id, quantity FROM position_software WHERE position_id = ? ORDER BY software_id`,
		positionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query software requirements: %w", err)
	}
	defer rows.Close()

	var out []cost.SoftwareRequirement
	for rows.Next() {
		var r cost.SoftwareRequirement
		if err := rows.Scan(&r.PositionID, &r.SoftwareID, &r.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan software requirement: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) CoverageRules(ctx context.Context, softwareID cost.SoftwareID) ([]cost.CoverageRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, software_id, scope_type, scope_id FROM software_coverage WHERE software_id = ? ORDER BY id`,
		softwareID)
	if err != nil {
		return nil, fmt.Errorf("failed to query coverage rules: %w", err)
	}
	defer rows.Close()

	var out []cost.CoverageRule
	for rows.Next() {
		var (
			r     cost.CoverageRule
			scope string
		)
		if err := rows.Scan(&r.ID, &r.SoftwareID, &scope, &r.ScopeID); err != nil {
			return nil, fmt.Errorf("failed to scan coverage rule: %w", err)
		}
		r.Scope = cost.ScopeType(scope)
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// HISTORY STORE (cost.HistoryStore)
// =============================================================================

const historyCols = `id, item_kind, item_id, unit_cost, cost_per_license, total_cost,
	effective_date, end_date, changed_by, change_reason, created_at, license_model`

func (s *Store) CostRecords(ctx context.Context, item cost.ItemRef) ([]cost.CostHistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return costRecords(ctx, s.db, item)
}

func (s *Store) CostRecordAt(ctx context.Context, item cost.ItemRef, t time.Time) (*cost.CostHistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return costRecordAt(ctx, s.db, item, t)
}

func (s *Store) OpenCostRecord(ctx context.Context, item cost.ItemRef) (*cost.CostHistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return openCostRecord(ctx, s.db, item)
}

func (s *Store) CloseCostRecord(ctx context.Context, id string, end time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return closeCostRecord(ctx, s.db, id, end)
}

func (s *Store) InsertCostRecord(ctx context.Context, rec cost.CostHistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertCostRecord(ctx, s.db, rec)
}

func costRecords(ctx context.Context, q querier, item cost.ItemRef) ([]cost.CostHistoryRecord, error) {
	return queryCostRecords(ctx, q, `
		SELECT `+historyCols+` FROM cost_history
		WHERE item_kind = ? AND item_id = ?
		ORDER BY effective_date ASC, created_at ASC`,
		string(item.Kind), item.ID)
}

func costRecordAt(ctx context.Context, q querier, item cost.ItemRef, t time.Time) (*cost.CostHistoryRecord, error) {
	at := formatTime(t)
	recs, err := queryCostRecords(ctx, q, `
		SELECT `+historyCols+` FROM cost_history
		WHERE item_kind = ? AND item_id = ?
		  AND effective_date <= ? AND (end_date IS NULL OR end_date > ?)
		ORDER BY effective_date DESC LIMIT 1`,
		string(item.Kind), item.ID, at, at)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return &recs[0], nil
}

func openCostRecord(ctx context.Context, q querier, item cost.ItemRef) (*cost.CostHistoryRecord, error) {
	recs, err := queryCostRecords(ctx, q, `
		SELECT `+historyCols+` FROM cost_history
		WHERE item_kind = ? AND item_id = ? AND end_date IS NULL`,
		string(item.Kind), item.ID)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return &recs[0], nil
}

func closeCostRecord(ctx context.Context, q querier, id string, end time.Time) error {
	res, err := q.ExecContext(ctx,
		`UPDATE cost_history SET end_date = ? WHERE id = ? AND end_date IS NULL`,
		formatTime(end), id)
	if err != nil {
		return fmt.Errorf("failed to close cost record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Closed (or never existed) since the caller read it.
		return cost.ErrConcurrentModification
	}
	return nil
}

func insertCostRecord(ctx context.Context, q querier, rec cost.CostHistoryRecord) error {
	var end sql.NullString
	if rec.EndDate != nil {
		end = sql.NullString{String: formatTime(*rec.EndDate), Valid: true}
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	var model sql.NullString
	if rec.Snapshot.LicenseModel != "" {
		model = sql.NullString{String: string(rec.Snapshot.LicenseModel), Valid: true}
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO cost_history (`+historyCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.Item.Kind), rec.Item.ID,
		nullDecimal(rec.Snapshot.UnitCost), nullDecimal(rec.Snapshot.CostPerLicense), nullDecimal(rec.Snapshot.TotalCost),
		formatTime(rec.EffectiveDate), end, rec.ChangedBy, rec.ChangeReason, formatTime(createdAt), model)
	if err != nil {
		if isUniqueConstraintError(err) {
			return cost.ErrConcurrentModification
		}
		return fmt.Errorf("failed to insert cost record: %w", err)
	}
	return nil
}

func queryCostRecords(ctx context.Context, q querier, query string, args ...any) ([]cost.CostHistoryRecord, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cost history: %w", err)
	}
	defer rows.Close()

	var out []cost.CostHistoryRecord
	for rows.Next() {
		rec, err := scanCostRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanCostRecord(rows *sql.Rows) (cost.CostHistoryRecord, error) {
	var (
		rec                     cost.CostHistoryRecord
		kind                    string
		effective, created      string
		end, model              sql.NullString
		unit, perLicense, total decimal.NullDecimal
	)

	err := rows.Scan(&rec.ID, &kind, &rec.Item.ID, &unit, &perLicense, &total,
		&effective, &end, &rec.ChangedBy, &rec.ChangeReason, &created, &model)
	if err != nil {
		return rec, fmt.Errorf("failed to scan cost record: %w", err)
	}

	rec.Item.Kind = cost.ItemKind(kind)
	rec.Snapshot = cost.CostSnapshot{
		UnitCost:       unit,
		LicenseModel:   cost.LicenseModel(model.String),
		CostPerLicense: perLicense,
		TotalCost:      total,
	}
	if rec.EffectiveDate, err = parseTime(effective); err != nil {
		return rec, err
	}
	if rec.CreatedAt, err = parseTime(created); err != nil {
		return rec, err
	}
	if end.Valid {
		t, err := parseTime(end.String)
		if err != nil {
			return rec, err
		}
		rec.EndDate = &t
	}
	return rec, nil
}

// =============================================================================
// TRANSACTIONAL STORE (cost.TxStore)
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx cost.WriteTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) GetHardwareItem(ctx context.Context, id cost.HardwareID) (*cost.HardwareItem, error) {
	return getHardwareItem(ctx, ts.tx, id)
}

func (ts *txStore) GetSoftwareItem(ctx context.Context, id cost.SoftwareID) (*cost.SoftwareItem, error) {
	return getSoftwareItem(ctx, ts.tx, id)
}

func (ts *txStore) CreateHardwareItem(ctx context.Context, item cost.HardwareItem) (cost.HardwareID, error) {
	return createHardwareItem(ctx, ts.tx, item)
}

func (ts *txStore) UpdateHardwareItem(ctx context.Context, item cost.HardwareItem) error {
	return updateHardwareItem(ctx, ts.tx, item)
}

func (ts *txStore) CreateSoftwareItem(ctx context.Context, item cost.SoftwareItem) (cost.SoftwareID, error) {
	return createSoftwareItem(ctx, ts.tx, item)
}

func (ts *txStore) UpdateSoftwareItem(ctx context.Context, item cost.SoftwareItem) error {
	return updateSoftwareItem(ctx, ts.tx, item)
}

func (ts *txStore) CostRecords(ctx context.Context, item cost.ItemRef) ([]cost.CostHistoryRecord, error) {
	return costRecords(ctx, ts.tx, item)
}

func (ts *txStore) CostRecordAt(ctx context.Context, item cost.ItemRef, t time.Time) (*cost.CostHistoryRecord, error) {
	return costRecordAt(ctx, ts.tx, item, t)
}

func (ts *txStore) OpenCostRecord(ctx context.Context, item cost.ItemRef) (*cost.CostHistoryRecord, error) {
	return openCostRecord(ctx, ts.tx, item)
}

func (ts *txStore) CloseCostRecord(ctx context.Context, id string, end time.Time) error {
	return closeCostRecord(ctx, ts.tx, id, end)
}

func (ts *txStore) InsertCostRecord(ctx context.Context, rec cost.CostHistoryRecord) error {
	return insertCostRecord(ctx, ts.tx, rec)
}

// =============================================================================
// SEEDING - Org structure, requirements and coverage are owned by other
// subsystems. These upserts load them for dev setups and tests.
// =============================================================================

// SaveDepartment inserts or replaces a department.
func (s *Store) SaveDepartment(ctx context.Context, d cost.Department) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO departments (id, code, name, is_active) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET code = excluded.code, name = excluded.name, is_active = excluded.is_active`,
		d.ID, d.Code, d.Name, d.Active)
	return err
}

// SaveDivision inserts or replaces a division.
func (s *Store) SaveDivision(ctx context.Context, d cost.Division) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO divisions (id, code, name, department_id, is_active) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET code = excluded.code, name = excluded.name,
			department_id = excluded.department_id, is_active = excluded.is_active`,
		d.ID, d.Code, d.Name, d.DepartmentID, d.Active)
	return err
}

// SavePosition inserts or replaces a position.
func (s *Store) SavePosition(ctx context.Context, p cost.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO positions (id, code, title, division_id, authorized_count, is_active) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET code = excluded.code, title = excluded.title,
			division_id = excluded.division_id, authorized_count = excluded.authorized_count,
			is_active = excluded.is_active`,
		p.ID, p.Code, p.Title, p.DivisionID, p.AuthorizedCount, p.Active)
	return err
}

// SaveHardwareRequirement upserts the (position, hardware) row.
func (s *Store) SaveHardwareRequirement(ctx context.Context, r cost.HardwareRequirement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO position_hardware (position_id, hardware_id, quantity) VALUES (?, ?, ?)
		ON CONFLICT(position_id, hardware_id) DO UPDATE SET quantity = excluded.quantity`,
		r.PositionID, r.HardwareID, r.Quantity)
	return err
}

// SaveSoftwareRequirement upserts the (position, software) row.
func (s *Store) SaveSoftwareRequirement(ctx context.Context, r cost.SoftwareRequirement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO position_software (position_id, software_id, quantity) VALUES (?, ?, ?)
		ON CONFLICT(position_id, software_id) DO UPDATE SET quantity = excluded.quantity`,
		r.PositionID, r.SoftwareID, r.Quantity)
	return err
}

// AddCoverageRule stores a coverage rule and returns its ID.
func (s *Store) AddCoverageRule(ctx context.Context, r cost.CoverageRule) (int64, error) {
	if !r.Scope.Valid() {
		return 0, fmt.Errorf("scope %q: %w", r.Scope, cost.ErrInvalidScope)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO software_coverage (software_id, scope_type, scope_id) VALUES (?, ?, ?)`,
		r.SoftwareID, string(r.Scope), r.ScopeID)
	if err != nil {
		return 0, fmt.Errorf("failed to add coverage rule: %w", err)
	}
	return res.LastInsertId()
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullDecimal(d decimal.NullDecimal) sql.NullString {
	if !d.Valid {
		return sql.NullString{}
	}
	return sql.NullString{String: d.Decimal.String(), Valid: true}
}

func requireRow(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &cost.NotFoundError{Entity: entity, ID: id}
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
