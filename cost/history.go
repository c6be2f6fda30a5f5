/*
history.go - Effective-dated cost history

PURPOSE:
  Every catalog price write leaves a record, so any historical budget can
  be reconstructed. Records carry [EffectiveDate, EndDate) ranges.

STATE MACHINE (per item):
  OPEN:   EndDate == nil. At most one per item, at any committed point.
  CLOSED: EndDate set. Never modified again.

  item created:     insert OPEN (no CLOSE step)
  price changed:    CLOSE the open record at now, insert OPEN at now
  item deactivated: CLOSE the open record at now (no new OPEN)

POINT-IN-TIME QUERY:
  effective_date <= T AND (end_date IS NULL OR end_date > T)

  Because the closing EndDate equals the new EffectiveDate, every T
  between creation and deactivation matches exactly one record.

ATOMICITY:
  Close and insert run on the same transaction handle, passed in by the
  caller. A concurrent writer that also saw the old open record fails on
  insert (ErrConcurrentModification) and its whole transaction rolls back.
  No retries here; the caller retries the price edit as a whole.

SEE ALSO:
  - store.go: HistoryStore / TxStore
  - catalog/service.go: Calls the recorder inside its price-write transaction
  - asof.go: Prices the engine from history at a past instant
*/
package cost

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// =============================================================================
// TYPES
// =============================================================================

// ItemKind says which catalog table an ItemRef points into.
type ItemKind string

const (
	ItemHardware ItemKind = "hardware"
	ItemSoftware ItemKind = "software"
)

// Valid reports whether k is a known item kind.
func (k ItemKind) Valid() bool { return k == ItemHardware || k == ItemSoftware }

// ItemRef identifies a catalog item across kinds.
type ItemRef struct {
	Kind ItemKind
	ID   int64
}

func HardwareRef(id HardwareID) ItemRef { return ItemRef{Kind: ItemHardware, ID: int64(id)} }
func SoftwareRef(id SoftwareID) ItemRef { return ItemRef{Kind: ItemSoftware, ID: int64(id)} }

func (r ItemRef) String() string { return fmt.Sprintf("%s:%d", r.Kind, r.ID) }

// CostSnapshot holds the cost fields of an item at one point in time.
// Hardware uses UnitCost; software uses LicenseModel, CostPerLicense and
// TotalCost. LicenseModel is empty on hardware records.
type CostSnapshot struct {
	UnitCost       decimal.NullDecimal
	LicenseModel   LicenseModel
	CostPerLicense decimal.NullDecimal
	TotalCost      decimal.NullDecimal
}

// HardwareSnapshot captures the cost fields of a hardware item.
func HardwareSnapshot(item HardwareItem) CostSnapshot {
	return CostSnapshot{UnitCost: decimal.NewNullDecimal(item.UnitCost)}
}

// SoftwareSnapshot captures the cost fields of a software item.
func SoftwareSnapshot(item SoftwareItem) CostSnapshot {
	return CostSnapshot{LicenseModel: item.LicenseModel, CostPerLicense: item.CostPerLicense, TotalCost: item.TotalCost}
}

// Equal reports whether two snapshots carry the same costs and model.
func (s CostSnapshot) Equal(o CostSnapshot) bool {
	return s.LicenseModel == o.LicenseModel &&
		nullEqual(s.UnitCost, o.UnitCost) &&
		nullEqual(s.CostPerLicense, o.CostPerLicense) &&
		nullEqual(s.TotalCost, o.TotalCost)
}

func nullEqual(a, b decimal.NullDecimal) bool {
	if a.Valid != b.Valid {
		return false
	}
	return !a.Valid || a.Decimal.Equal(b.Decimal)
}

// CostHistoryRecord is one effective-dated cost row.
type CostHistoryRecord struct {
	ID            string
	Item          ItemRef
	Snapshot      CostSnapshot
	EffectiveDate time.Time
	EndDate       *time.Time // nil = open
	ChangedBy     string
	ChangeReason  string
	CreatedAt     time.Time
}

// IsOpen reports whether the record has no end date.
func (r CostHistoryRecord) IsOpen() bool { return r.EndDate == nil }

// CoversAt reports whether the record is in force at t.
func (r CostHistoryRecord) CoversAt(t time.Time) bool {
	if r.EffectiveDate.After(t) {
		return false
	}
	return r.EndDate == nil || r.EndDate.After(t)
}

// =============================================================================
// RECORDER
// =============================================================================

// HistoryObserver receives history transitions. Optional.
type HistoryObserver interface {
	CostHistoryTransition(kind ItemKind, closed bool)
}

// Recorder writes effective-dated cost history.
type Recorder struct {
	// Store opens transactions for Record. Not needed when callers pass
	// their own transaction handle.
	Store TxStore

	// Clock returns the current time. Defaults to time.Now in UTC.
	Clock func() time.Time

	Logger   *zap.Logger
	Observer HistoryObserver
}

// NewRecorder creates a recorder that opens its own transactions on store.
func NewRecorder(store TxStore, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{Store: store, Logger: logger}
}

func (r *Recorder) now() time.Time {
	if r.Clock != nil {
		return r.Clock().UTC()
	}
	return time.Now().UTC()
}

func (r *Recorder) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

// RecordInitialCost inserts the first OPEN record for a newly created item.
// Returns ErrOpenRecordExists if the item already has one.
func (r *Recorder) RecordInitialCost(ctx context.Context, tx HistoryStore, item ItemRef, snapshot CostSnapshot, changedBy string) (*CostHistoryRecord, error) {
	if !item.Kind.Valid() {
		return nil, &ValidationError{Field: "item_kind", Message: fmt.Sprintf("unknown item kind %q", item.Kind)}
	}

	open, err := tx.OpenCostRecord(ctx, item)
	if err != nil {
		return nil, fmt.Errorf("load open cost record for %s: %w", item, err)
	}
	if open != nil {
		return nil, fmt.Errorf("%s: %w", item, ErrOpenRecordExists)
	}

	rec := r.newRecord(item, snapshot, changedBy, "initial cost")
	if err := tx.InsertCostRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("insert cost record for %s: %w", item, err)
	}

	r.logger().Info("cost history opened",
		zap.String("item", item.String()),
		zap.String("record_id", rec.ID),
		zap.String("changed_by", changedBy))
	if r.Observer != nil {
		r.Observer.CostHistoryTransition(item.Kind, false)
	}
	return &rec, nil
}

// RecordCostChange closes the item's OPEN record at now and inserts a new
// OPEN record effective at now, both on tx. If the item has no open record
// the new record is simply inserted.
func (r *Recorder) RecordCostChange(ctx context.Context, tx HistoryStore, item ItemRef, snapshot CostSnapshot, changedBy, reason string) (*CostHistoryRecord, error) {
	if !item.Kind.Valid() {
		return nil, &ValidationError{Field: "item_kind", Message: fmt.Sprintf("unknown item kind %q", item.Kind)}
	}

	open, err := tx.OpenCostRecord(ctx, item)
	if err != nil {
		return nil, fmt.Errorf("load open cost record for %s: %w", item, err)
	}

	rec := r.newRecord(item, snapshot, changedBy, reason)

	if open != nil {
		if rec.EffectiveDate.Before(open.EffectiveDate) {
			return nil, fmt.Errorf("%s: change at %s, open since %s: %w",
				item, rec.EffectiveDate.Format(time.RFC3339Nano), open.EffectiveDate.Format(time.RFC3339Nano), ErrNonMonotonicChange)
		}
		if err := tx.CloseCostRecord(ctx, open.ID, rec.EffectiveDate); err != nil {
			return nil, fmt.Errorf("close cost record %s for %s: %w", open.ID, item, err)
		}
	}

	if err := tx.InsertCostRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("insert cost record for %s: %w", item, err)
	}

	fields := []zap.Field{
		zap.String("item", item.String()),
		zap.String("record_id", rec.ID),
		zap.String("changed_by", changedBy),
	}
	if open != nil {
		fields = append(fields, zap.String("closed_record_id", open.ID))
	}
	r.logger().Info("cost history transition", fields...)
	if r.Observer != nil {
		r.Observer.CostHistoryTransition(item.Kind, open != nil)
	}
	return &rec, nil
}

// Record runs RecordCostChange in a transaction of its own.
func (r *Recorder) Record(ctx context.Context, item ItemRef, snapshot CostSnapshot, changedBy, reason string) (*CostHistoryRecord, error) {
	if r.Store == nil {
		return nil, fmt.Errorf("recorder has no store")
	}
	var rec *CostHistoryRecord
	err := r.Store.WithTx(ctx, func(tx WriteTx) error {
		var err error
		rec, err = r.RecordCostChange(ctx, tx, item, snapshot, changedBy, reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *Recorder) newRecord(item ItemRef, snapshot CostSnapshot, changedBy, reason string) CostHistoryRecord {
	now := r.now()
	return CostHistoryRecord{
		ID:            uuid.NewString(),
		Item:          item,
		Snapshot:      snapshot,
		EffectiveDate: now,
		ChangedBy:     changedBy,
		ChangeReason:  reason,
		CreatedAt:     now,
	}
}

// RetireCost closes the item's OPEN record at now without opening a new
// one, so point-in-time queries after now find no price. A no-op when the
// item has no open record.
func (r *Recorder) RetireCost(ctx context.Context, tx HistoryStore, item ItemRef) error {
	if !item.Kind.Valid() {
		return &ValidationError{Field: "item_kind", Message: fmt.Sprintf("unknown item kind %q", item.Kind)}
	}

	open, err := tx.OpenCostRecord(ctx, item)
	if err != nil {
		return fmt.Errorf("load open cost record for %s: %w", item, err)
	}
	if open == nil {
		return nil
	}

	now := r.now()
	if now.Before(open.EffectiveDate) {
		return fmt.Errorf("%s: retired at %s, open since %s: %w",
			item, now.Format(time.RFC3339Nano), open.EffectiveDate.Format(time.RFC3339Nano), ErrNonMonotonicChange)
	}
	if err := tx.CloseCostRecord(ctx, open.ID, now); err != nil {
		return fmt.Errorf("close cost record %s for %s: %w", open.ID, item, err)
	}

	r.logger().Info("cost history closed",
		zap.String("item", item.String()),
		zap.String("record_id", open.ID))
	return nil
}
