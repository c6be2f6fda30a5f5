// Package store provides an in-memory implementation of the cost engine's
// repositories, for tests and local development.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/budget-engine/cost"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

// Memory implements cost.ReadStore, cost.HistoryStore and cost.TxStore.
type Memory struct {
	mu sync.RWMutex
	data
}

type data struct {
	departments map[cost.DepartmentID]cost.Department
	divisions   map[cost.DivisionID]cost.Division
	positions   map[cost.PositionID]cost.Position
	hardware    map[cost.HardwareID]cost.HardwareItem
	software    map[cost.SoftwareID]cost.SoftwareItem
	coverage    []cost.CoverageRule
	hwReqs      map[cost.PositionID]map[cost.HardwareID]int
	swReqs      map[cost.PositionID]map[cost.SoftwareID]int
	history     []cost.CostHistoryRecord

	nextHardware cost.HardwareID
	nextSoftware cost.SoftwareID
	nextRule     int64
}

func NewMemory() *Memory {
	return &Memory{data: data{
		departments: make(map[cost.DepartmentID]cost.Department),
		divisions:   make(map[cost.DivisionID]cost.Division),
		positions:   make(map[cost.PositionID]cost.Position),
		hardware:    make(map[cost.HardwareID]cost.HardwareItem),
		software:    make(map[cost.SoftwareID]cost.SoftwareItem),
		hwReqs:      make(map[cost.PositionID]map[cost.HardwareID]int),
		swReqs:      make(map[cost.PositionID]map[cost.SoftwareID]int),
	}}
}

// =============================================================================
// SEEDING - Org structure and requirements are maintained elsewhere;
// these exist so tests and dev tools can load data.
// =============================================================================

func (m *Memory) PutDepartment(d cost.Department) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.departments[d.ID] = d
}

func (m *Memory) PutDivision(d cost.Division) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.divisions[d.ID] = d
}

func (m *Memory) PutPosition(p cost.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[p.ID] = p
}

func (m *Memory) PutHardwareItem(item cost.HardwareItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hardware[item.ID] = item
	if item.ID > m.nextHardware {
		m.nextHardware = item.ID
	}
}

func (m *Memory) PutSoftwareItem(item cost.SoftwareItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.software[item.ID] = item
	if item.ID > m.nextSoftware {
		m.nextSoftware = item.ID
	}
}

// AddCoverageRule stores a rule and returns its ID.
func (m *Memory) AddCoverageRule(rule cost.CoverageRule) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextRule++
	rule.ID = m.nextRule
	m.coverage = append(m.coverage, rule)
	return rule.ID
}

// SetHardwareRequirement upserts the (position, hardware) row.
func (m *Memory) SetHardwareRequirement(req cost.HardwareRequirement) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hwReqs[req.PositionID] == nil {
		m.hwReqs[req.PositionID] = make(map[cost.HardwareID]int)
	}
	m.hwReqs[req.PositionID][req.HardwareID] = req.Quantity
}

// SetSoftwareRequirement upserts the (position, software) row.
func (m *Memory) SetSoftwareRequirement(req cost.SoftwareRequirement) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.swReqs[req.PositionID] == nil {
		m.swReqs[req.PositionID] = make(map[cost.SoftwareID]int)
	}
	m.swReqs[req.PositionID][req.SoftwareID] = req.Quantity
}

// =============================================================================
// ORG STORE
// =============================================================================

func (d *data) activeDepartment(id cost.DepartmentID) (cost.Department, bool) {
	dept, ok := d.departments[id]
	return dept, ok && dept.Active
}

func (d *data) activeDivision(id cost.DivisionID) (cost.Division, bool) {
	div, ok := d.divisions[id]
	if !ok || !div.Active {
		return div, false
	}
	_, ok = d.activeDepartment(div.DepartmentID)
	return div, ok
}

func (d *data) activePosition(id cost.PositionID) (cost.Position, bool) {
	pos, ok := d.positions[id]
	if !ok || !pos.Active {
		return pos, false
	}
	_, ok = d.activeDivision(pos.DivisionID)
	return pos, ok
}

func (m *Memory) GetDepartment(_ context.Context, id cost.DepartmentID) (*cost.Department, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.activeDepartment(id); ok {
		return &d, nil
	}
	return nil, nil
}

func (m *Memory) GetDivision(_ context.Context, id cost.DivisionID) (*cost.Division, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.activeDivision(id); ok {
		return &d, nil
	}
	return nil, nil
}

func (m *Memory) GetPosition(_ context.Context, id cost.PositionID) (*cost.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.activePosition(id); ok {
		return &p, nil
	}
	return nil, nil
}

func (m *Memory) ListDepartments(_ context.Context) ([]cost.Department, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []cost.Department
	for id := range m.departments {
		if d, ok := m.activeDepartment(id); ok {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i].Name, out[j].Name, int64(out[i].ID), int64(out[j].ID)) })
	return out, nil
}

func (m *Memory) ListDivisionsInDepartment(_ context.Context, id cost.DepartmentID) ([]cost.Division, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []cost.Division
	for divID, div := range m.divisions {
		if div.DepartmentID != id {
			continue
		}
		if d, ok := m.activeDivision(divID); ok {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i].Name, out[j].Name, int64(out[i].ID), int64(out[j].ID)) })
	return out, nil
}

func (m *Memory) ListPositionsInDivision(_ context.Context, id cost.DivisionID) ([]cost.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []cost.Position
	for posID, pos := range m.positions {
		if pos.DivisionID != id {
			continue
		}
		if p, ok := m.activePosition(posID); ok {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i].Title, out[j].Title, int64(out[i].ID), int64(out[j].ID)) })
	return out, nil
}

func (m *Memory) ListPositions(_ context.Context) ([]cost.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []cost.Position
	for id := range m.positions {
		if p, ok := m.activePosition(id); ok {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func less(a, b string, idA, idB int64) bool {
	if a != b {
		return a < b
	}
	return idA < idB
}

// =============================================================================
// CATALOG / REQUIREMENT / COVERAGE STORES
// =============================================================================

func (m *Memory) GetHardwareItem(_ context.Context, id cost.HardwareID) (*cost.HardwareItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.hardwareItem(id), nil
}

func (m *Memory) GetSoftwareItem(_ context.Context, id cost.SoftwareID) (*cost.SoftwareItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.softwareItem(id), nil
}

// LookupHardwareItem returns a hardware item whether or not it is active.
func (m *Memory) LookupHardwareItem(_ context.Context, id cost.HardwareID) (*cost.HardwareItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.data.hardware[id]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

// LookupSoftwareItem returns a software item whether or not it is active.
func (m *Memory) LookupSoftwareItem(_ context.Context, id cost.SoftwareID) (*cost.SoftwareItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.data.software[id]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (d *data) hardwareItem(id cost.HardwareID) *cost.HardwareItem {
	item, ok := d.hardware[id]
	if !ok || !item.Active {
		return nil
	}
	return &item
}

func (d *data) softwareItem(id cost.SoftwareID) *cost.SoftwareItem {
	item, ok := d.software[id]
	if !ok || !item.Active {
		return nil
	}
	return &item
}

func (m *Memory) HardwareRequirements(_ context.Context, positionID cost.PositionID) ([]cost.HardwareRequirement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []cost.HardwareRequirement
	for hwID, qty := range m.hwReqs[positionID] {
		out = append(out, cost.HardwareRequirement{PositionID: positionID, HardwareID: hwID, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HardwareID < out[j].HardwareID })
	return out, nil
}

func (m *Memory) SoftwareRequirements(_ context.Context, positionID cost.PositionID) ([]cost.SoftwareRequirement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []cost.SoftwareRequirement
	for swID, qty := range m.swReqs[positionID] {
		out = append(out, cost.SoftwareRequirement{PositionID: positionID, SoftwareID: swID, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SoftwareID < out[j].SoftwareID })
	return out, nil
}

func (m *Memory) CoverageRules(_ context.Context, softwareID cost.SoftwareID) ([]cost.CoverageRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []cost.CoverageRule
	for _, r := range m.coverage {
		if r.SoftwareID == softwareID {
			out = append(out, r)
		}
	}
	return out, nil
}

// =============================================================================
// HISTORY STORE
// =============================================================================

func (m *Memory) CostRecords(_ context.Context, item cost.ItemRef) ([]cost.CostHistoryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.costRecords(item), nil
}

func (m *Memory) CostRecordAt(_ context.Context, item cost.ItemRef, t time.Time) (*cost.CostHistoryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.costRecordAt(item, t), nil
}

func (m *Memory) OpenCostRecord(_ context.Context, item cost.ItemRef) (*cost.CostHistoryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.openCostRecord(item), nil
}

func (m *Memory) CloseCostRecord(_ context.Context, id string, end time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.closeCostRecord(id, end)
}

func (m *Memory) InsertCostRecord(_ context.Context, rec cost.CostHistoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.insertCostRecord(rec)
}

func (d *data) costRecords(item cost.ItemRef) []cost.CostHistoryRecord {
	var out []cost.CostHistoryRecord
	for _, r := range d.history {
		if r.Item == item {
			out = append(out, cloneRecord(r))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].EffectiveDate.Before(out[j].EffectiveDate) })
	return out
}

func (d *data) costRecordAt(item cost.ItemRef, t time.Time) *cost.CostHistoryRecord {
	for _, r := range d.history {
		if r.Item == item && r.CoversAt(t) {
			rec := cloneRecord(r)
			return &rec
		}
	}
	return nil
}

func (d *data) openCostRecord(item cost.ItemRef) *cost.CostHistoryRecord {
	for _, r := range d.history {
		if r.Item == item && r.IsOpen() {
			rec := cloneRecord(r)
			return &rec
		}
	}
	return nil
}

func (d *data) closeCostRecord(id string, end time.Time) error {
	for i := range d.history {
		if d.history[i].ID != id {
			continue
		}
		if !d.history[i].IsOpen() {
			return cost.ErrConcurrentModification
		}
		e := end
		d.history[i].EndDate = &e
		return nil
	}
	return &cost.NotFoundError{Entity: "cost history record"}
}

func (d *data) insertCostRecord(rec cost.CostHistoryRecord) error {
	if rec.IsOpen() && d.openCostRecord(rec.Item) != nil {
		return cost.ErrConcurrentModification
	}
	d.history = append(d.history, cloneRecord(rec))
	return nil
}

func cloneRecord(r cost.CostHistoryRecord) cost.CostHistoryRecord {
	if r.EndDate != nil {
		e := *r.EndDate
		r.EndDate = &e
	}
	return r
}

// =============================================================================
// CATALOG WRITER
// =============================================================================

func (m *Memory) CreateHardwareItem(_ context.Context, item cost.HardwareItem) (cost.HardwareID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.createHardware(item), nil
}

func (m *Memory) UpdateHardwareItem(_ context.Context, item cost.HardwareItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.updateHardware(item)
}

func (m *Memory) CreateSoftwareItem(_ context.Context, item cost.SoftwareItem) (cost.SoftwareID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.createSoftware(item), nil
}

func (m *Memory) UpdateSoftwareItem(_ context.Context, item cost.SoftwareItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.updateSoftware(item)
}

func (d *data) createHardware(item cost.HardwareItem) cost.HardwareID {
	d.nextHardware++
	item.ID = d.nextHardware
	d.hardware[item.ID] = item
	return item.ID
}

func (d *data) updateHardware(item cost.HardwareItem) error {
	if _, ok := d.hardware[item.ID]; !ok {
		return &cost.NotFoundError{Entity: "hardware", ID: int64(item.ID)}
	}
	d.hardware[item.ID] = item
	return nil
}

func (d *data) createSoftware(item cost.SoftwareItem) cost.SoftwareID {
	d.nextSoftware++
	item.ID = d.nextSoftware
	d.software[item.ID] = item
	return item.ID
}

func (d *data) updateSoftware(item cost.SoftwareItem) error {
	if _, ok := d.software[item.ID]; !ok {
		return &cost.NotFoundError{Entity: "software", ID: int64(item.ID)}
	}
	d.software[item.ID] = item
	return nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For the memory store, this is simulated with a snapshot + rollback on error.
// The write lock is held for the whole callback, so writers serialize.
func (m *Memory) WithTx(ctx context.Context, fn func(cost.WriteTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.data.clone()
	if err := fn(&txView{d: &m.data}); err != nil {
		m.data = snapshot
		return err
	}
	return nil
}

func (d *data) clone() data {
	c := *d
	c.departments = make(map[cost.DepartmentID]cost.Department, len(d.departments))
	for k, v := range d.departments {
		c.departments[k] = v
	}
	c.divisions = make(map[cost.DivisionID]cost.Division, len(d.divisions))
	for k, v := range d.divisions {
		c.divisions[k] = v
	}
	c.positions = make(map[cost.PositionID]cost.Position, len(d.positions))
	for k, v := range d.positions {
		c.positions[k] = v
	}
	c.hardware = make(map[cost.HardwareID]cost.HardwareItem, len(d.hardware))
	for k, v := range d.hardware {
		c.hardware[k] = v
	}
	c.software = make(map[cost.SoftwareID]cost.SoftwareItem, len(d.software))
	for k, v := range d.software {
		c.software[k] = v
	}
	c.coverage = append([]cost.CoverageRule(nil), d.coverage...)
	c.hwReqs = make(map[cost.PositionID]map[cost.HardwareID]int, len(d.hwReqs))
	for k, v := range d.hwReqs {
		inner := make(map[cost.HardwareID]int, len(v))
		for ik, iv := range v {
			inner[ik] = iv
		}
		c.hwReqs[k] = inner
	}
	c.swReqs = make(map[cost.PositionID]map[cost.SoftwareID]int, len(d.swReqs))
	for k, v := range d.swReqs {
		inner := make(map[cost.SoftwareID]int, len(v))
		for ik, iv := range v {
			inner[ik] = iv
		}
		c.swReqs[k] = inner
	}
	c.history = make([]cost.CostHistoryRecord, len(d.history))
	for i, r := range d.history {
		c.history[i] = cloneRecord(r)
	}
	return c
}

// txView accesses data directly; the parent holds the lock.
type txView struct {
	d *data
}

func (tv *txView) GetHardwareItem(_ context.Context, id cost.HardwareID) (*cost.HardwareItem, error) {
	return tv.d.hardwareItem(id), nil
}

func (tv *txView) GetSoftwareItem(_ context.Context, id cost.SoftwareID) (*cost.SoftwareItem, error) {
	return tv.d.softwareItem(id), nil
}

func (tv *txView) CreateHardwareItem(_ context.Context, item cost.HardwareItem) (cost.HardwareID, error) {
	return tv.d.createHardware(item), nil
}

func (tv *txView) UpdateHardwareItem(_ context.Context, item cost.HardwareItem) error {
	return tv.d.updateHardware(item)
}

func (tv *txView) CreateSoftwareItem(_ context.Context, item cost.SoftwareItem) (cost.SoftwareID, error) {
	return tv.d.createSoftware(item), nil
}

func (tv *txView) UpdateSoftwareItem(_ context.Context, item cost.SoftwareItem) error {
	return tv.d.updateSoftware(item)
}

func (tv *txView) CostRecords(_ context.Context, item cost.ItemRef) ([]cost.CostHistoryRecord, error) {
	return tv.d.costRecords(item), nil
}

func (tv *txView) CostRecordAt(_ context.Context, item cost.ItemRef, t time.Time) (*cost.CostHistoryRecord, error) {
	return tv.d.costRecordAt(item, t), nil
}

func (tv *txView) OpenCostRecord(_ context.Context, item cost.ItemRef) (*cost.CostHistoryRecord, error) {
	return tv.d.openCostRecord(item), nil
}

func (tv *txView) CloseCostRecord(_ context.Context, id string, end time.Time) error {
	return tv.d.closeCostRecord(id, end)
}

func (tv *txView) InsertCostRecord(_ context.Context, rec cost.CostHistoryRecord) error {
	return tv.d.insertCostRecord(rec)
}
