package cost_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/budget-engine/cost"
	"github.com/warp/budget-engine/cost/store"
)

func newTestRecorder(mem *store.Memory, clock *stepClock) *cost.Recorder {
	rec := cost.NewRecorder(mem, nil)
	rec.Clock = clock.Now
	return rec
}

func openInitial(t *testing.T, mem *store.Memory, rec *cost.Recorder, item cost.ItemRef, snap cost.CostSnapshot) *cost.CostHistoryRecord {
	t.Helper()
	var out *cost.CostHistoryRecord
	err := mem.WithTx(context.Background(), func(tx cost.WriteTx) error {
		var err error
		out, err = rec.RecordInitialCost(context.Background(), tx, item, snap, "admin")
		return err
	})
	require.NoError(t, err)
	return out
}

func laptopSnapshot(price string) cost.CostSnapshot {
	return cost.CostSnapshot{UnitCost: nullMoney(price)}
}

// =============================================================================
// RECORDER TESTS
// =============================================================================

func TestRecordInitialCost_OpensRecord(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	clock := newStepClock()
	rec := newTestRecorder(mem, clock)
	item := cost.HardwareRef(1)

	first := openInitial(t, mem, rec, item, laptopSnapshot("1000"))

	assert.True(t, first.IsOpen())
	assert.Equal(t, clock.Now(), first.EffectiveDate)
	assert.Equal(t, "admin", first.ChangedBy)
	assert.NotEmpty(t, first.ID)

	open, err := mem.OpenCostRecord(ctx, item)
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, first.ID, open.ID)
}

func TestRecordInitialCost_Twice_Conflict(t *testing.T) {
	mem := store.NewMemory()
	rec := newTestRecorder(mem, newStepClock())
	item := cost.HardwareRef(1)
	openInitial(t, mem, rec, item, laptopSnapshot("1000"))

	err := mem.WithTx(context.Background(), func(tx cost.WriteTx) error {
		_, err := rec.RecordInitialCost(context.Background(), tx, item, laptopSnapshot("1100"), "admin")
		return err
	})

	assert.ErrorIs(t, err, cost.ErrOpenRecordExists)
	assert.True(t, cost.IsConflict(err))
}

func TestRecordCostChange_SingleOpenRecordAfterManyChanges(t *testing.T) {
	// GIVEN: An item created, then repriced 5 times an hour apart
	// THEN: Exactly one open record; each closed record ends where the next begins

	ctx := context.Background()
	mem := store.NewMemory()
	clock := newStepClock()
	rec := newTestRecorder(mem, clock)
	item := cost.HardwareRef(1)
	openInitial(t, mem, rec, item, laptopSnapshot("1000"))

	prices := []string{"1050", "1100", "990", "990", "1200"}
	for _, p := range prices {
		clock.Advance(time.Hour)
		_, err := rec.Record(ctx, item, laptopSnapshot(p), "admin", "vendor repricing")
		require.NoError(t, err)
	}

	records, err := mem.CostRecords(ctx, item)
	require.NoError(t, err)
	require.Len(t, records, len(prices)+1)

	open := 0
	for i, r := range records {
		if r.IsOpen() {
			open++
			continue
		}
		require.Less(t, i+1, len(records))
		assert.Equal(t, records[i+1].EffectiveDate, *r.EndDate, "record %d", i)
	}
	assert.Equal(t, 1, open)
	assert.True(t, records[len(records)-1].IsOpen())
	assertMoney(t, "1200", records[len(records)-1].Snapshot.UnitCost.Decimal)
}

func TestCostRecordAt_PointInTime(t *testing.T) {
	// GIVEN: $1000 at T0, $1200 from T0+24h
	// THEN: Any instant resolves to exactly the price in force then

	ctx := context.Background()
	mem := store.NewMemory()
	clock := newStepClock()
	rec := newTestRecorder(mem, clock)
	item := cost.HardwareRef(1)
	t0 := clock.Now()
	openInitial(t, mem, rec, item, laptopSnapshot("1000"))
	clock.Advance(24 * time.Hour)
	t1 := clock.Now()
	_, err := rec.Record(ctx, item, laptopSnapshot("1200"), "admin", "")
	require.NoError(t, err)

	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{"at creation", t0, "1000"},
		{"mid first range", t0.Add(12 * time.Hour), "1000"},
		{"boundary belongs to new record", t1, "1200"},
		{"far future", t1.Add(365 * 24 * time.Hour), "1200"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := mem.CostRecordAt(ctx, item, tt.at)
			require.NoError(t, err)
			require.NotNil(t, r)
			assertMoney(t, tt.want, r.Snapshot.UnitCost.Decimal)
		})
	}

	before, err := mem.CostRecordAt(ctx, item, t0.Add(-time.Second))
	require.NoError(t, err)
	assert.Nil(t, before)
}

func TestRecordCostChange_ClockBehindOpenRecord_RollsBack(t *testing.T) {
	// GIVEN: An open record effective at T
	// WHEN: A change is stamped before T
	// THEN: ErrNonMonotonicChange and history is untouched

	ctx := context.Background()
	mem := store.NewMemory()
	clock := newStepClock()
	rec := newTestRecorder(mem, clock)
	item := cost.SoftwareRef(3)
	initial := openInitial(t, mem, rec, item, cost.CostSnapshot{TotalCost: nullMoney("5000")})

	clock.Advance(-time.Minute)
	_, err := rec.Record(ctx, item, cost.CostSnapshot{TotalCost: nullMoney("6000")}, "admin", "")

	assert.ErrorIs(t, err, cost.ErrNonMonotonicChange)
	records, err := mem.CostRecords(ctx, item)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, initial.ID, records[0].ID)
	assert.True(t, records[0].IsOpen())
}

func TestRetireCost_ClosesOpenRecord(t *testing.T) {
	// GIVEN: A laptop with an open record since day 0
	// WHEN: It is retired on day 5
	// THEN: The record ends on day 5, nothing is open, nothing is in force after

	ctx := context.Background()
	mem := store.NewMemory()
	clock := newStepClock()
	rec := newTestRecorder(mem, clock)
	item := cost.HardwareRef(1)
	initial := openInitial(t, mem, rec, item, laptopSnapshot("1000"))

	clock.Advance(5 * 24 * time.Hour)
	require.NoError(t, mem.WithTx(ctx, func(tx cost.WriteTx) error {
		return rec.RetireCost(ctx, tx, item)
	}))

	records, err := mem.CostRecords(ctx, item)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, initial.ID, records[0].ID)
	require.NotNil(t, records[0].EndDate)
	assert.Equal(t, clock.Now(), *records[0].EndDate)

	open, err := mem.OpenCostRecord(ctx, item)
	require.NoError(t, err)
	assert.Nil(t, open)

	inForce, err := mem.CostRecordAt(ctx, item, clock.Now())
	require.NoError(t, err)
	assert.Nil(t, inForce)
	inForce, err = mem.CostRecordAt(ctx, item, clock.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.NotNil(t, inForce)
	assert.Equal(t, initial.ID, inForce.ID)

	// Retiring again is a no-op.
	require.NoError(t, mem.WithTx(ctx, func(tx cost.WriteTx) error {
		return rec.RetireCost(ctx, tx, item)
	}))
}

func TestRetireCost_ClockBehindOpenRecord(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	clock := newStepClock()
	rec := newTestRecorder(mem, clock)
	item := cost.SoftwareRef(3)
	openInitial(t, mem, rec, item, cost.CostSnapshot{TotalCost: nullMoney("5000")})

	clock.Advance(-time.Minute)
	err := mem.WithTx(ctx, func(tx cost.WriteTx) error {
		return rec.RetireCost(ctx, tx, item)
	})

	assert.ErrorIs(t, err, cost.ErrNonMonotonicChange)
	open, err := mem.OpenCostRecord(ctx, item)
	require.NoError(t, err)
	assert.NotNil(t, open)
}

func TestWithTx_FailureAfterClose_RestoresOpenRecord(t *testing.T) {
	// GIVEN: A transaction that closes the open record, then fails
	// THEN: The record is open again after rollback

	ctx := context.Background()
	mem := store.NewMemory()
	rec := newTestRecorder(mem, newStepClock())
	item := cost.HardwareRef(1)
	initial := openInitial(t, mem, rec, item, laptopSnapshot("1000"))
	boom := errors.New("boom")

	err := mem.WithTx(ctx, func(tx cost.WriteTx) error {
		if err := tx.CloseCostRecord(ctx, initial.ID, time.Now()); err != nil {
			return err
		}
		return boom
	})

	assert.ErrorIs(t, err, boom)
	open, err := mem.OpenCostRecord(ctx, item)
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, initial.ID, open.ID)
}

func TestInsertCostRecord_SecondOpenRecord_ConcurrentModification(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	rec := newTestRecorder(mem, newStepClock())
	item := cost.HardwareRef(1)
	openInitial(t, mem, rec, item, laptopSnapshot("1000"))

	err := mem.InsertCostRecord(ctx, cost.CostHistoryRecord{
		ID:            "stale-writer",
		Item:          item,
		Snapshot:      laptopSnapshot("1300"),
		EffectiveDate: time.Now(),
	})

	assert.ErrorIs(t, err, cost.ErrConcurrentModification)
	assert.True(t, cost.IsRetryable(err))
}

type countingHistoryObserver struct {
	opened, transitioned int
}

func (o *countingHistoryObserver) CostHistoryTransition(_ cost.ItemKind, closed bool) {
	if closed {
		o.transitioned++
	} else {
		o.opened++
	}
}

func TestRecorder_ReportsTransitions(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	clock := newStepClock()
	rec := newTestRecorder(mem, clock)
	obs := &countingHistoryObserver{}
	rec.Observer = obs
	item := cost.HardwareRef(1)

	openInitial(t, mem, rec, item, laptopSnapshot("1000"))
	clock.Advance(time.Minute)
	_, err := rec.Record(ctx, item, laptopSnapshot("1100"), "admin", "")
	require.NoError(t, err)

	assert.Equal(t, 1, obs.opened)
	assert.Equal(t, 1, obs.transitioned)
}

func TestRecorder_UnknownItemKind_Validation(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	rec := newTestRecorder(mem, newStepClock())

	_, err := rec.Record(ctx, cost.ItemRef{Kind: "furniture", ID: 1}, laptopSnapshot("10"), "admin", "")

	assert.True(t, cost.IsClientError(err))
}
