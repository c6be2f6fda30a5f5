package cost_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/warp/budget-engine/cost"
	"github.com/warp/budget-engine/cost/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// Org layout used by most tests:
//
//	Engineering (1)
//	  Platform (10): Backend Engineer (100, 10 seats), SRE (101, 20 seats)
//	  Apps (11):     Mobile Engineer (102, 70 seats)
//
// 100 authorized seats in total.
func newTestOrg(t *testing.T) *store.Memory {
	t.Helper()
	mem := store.NewMemory()
	mem.PutDepartment(cost.Department{ID: 1, Code: "ENG", Name: "Engineering", Active: true})
	mem.PutDivision(cost.Division{ID: 10, Code: "PLT", Name: "Platform", DepartmentID: 1, Active: true})
	mem.PutDivision(cost.Division{ID: 11, Code: "APP", Name: "Apps", DepartmentID: 1, Active: true})
	mem.PutPosition(cost.Position{ID: 100, Code: "BE", Title: "Backend Engineer", DivisionID: 10, AuthorizedCount: 10, Active: true})
	mem.PutPosition(cost.Position{ID: 101, Code: "SRE", Title: "SRE", DivisionID: 10, AuthorizedCount: 20, Active: true})
	mem.PutPosition(cost.Position{ID: 102, Code: "MOB", Title: "Mobile Engineer", DivisionID: 11, AuthorizedCount: 70, Active: true})
	return mem
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func nullMoney(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(money(s))
}

func assertMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, money(want).Equal(got), "expected %s, got %s", want, got.String())
}

// recordingObserver captures engine telemetry.
type recordingObserver struct {
	degenerate []cost.SoftwareID
	excluded   []string
}

func (o *recordingObserver) DegenerateAllocation(id cost.SoftwareID) {
	o.degenerate = append(o.degenerate, id)
}

func (o *recordingObserver) ExcludedLine(reason string) {
	o.excluded = append(o.excluded, reason)
}

// stepClock is a manually advanced clock.
type stepClock struct {
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2025, time.January, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time { return c.now }

func (c *stepClock) Advance(d time.Duration) { c.now = c.now.Add(d) }
