/*
Package export renders cost summaries as CSV and XLSX downloads.

PURPOSE:
  Finance teams take budget figures into spreadsheets. Each report is
  built once as a table of typed cells, then written by either encoder.

ROUNDING:
  This is the only place money is rounded. Values stay exact through the
  engine and are rounded to cents here (banker's rounding).

  CSV:  text "1234.50"
  XLSX: numeric cell with "#,##0.00" format, so sheets can sum it

REPORTS:
  Departments: one row per DepartmentCostSummary
  Positions:   one row per PositionCostSummary, with per-person columns
*/
package export

import (
	"github.com/shopspring/decimal"

	"github.com/warp/budget-engine/cost"
)

// =============================================================================
// TABLE MODEL
// =============================================================================

// Table is a report before encoding.
type Table struct {
	Title   string // XLSX sheet name
	Headers []string
	Rows    [][]Cell
}

// Cell is one typed value. Exactly one of the fields is meaningful,
// selected by Kind.
type Cell struct {
	Kind  CellKind
	Text  string
	Int   int
	Money decimal.Decimal
}

type CellKind int

const (
	KindText CellKind = iota
	KindInt
	KindMoney
)

func text(s string) Cell { return Cell{Kind: KindText, Text: s} }
func integer(n int) Cell { return Cell{Kind: KindInt, Int: n} }
func money(d decimal.Decimal) Cell { return Cell{Kind: KindMoney, Money: d} }

// FormatMoney rounds to cents for display.
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixedBank(2)
}

// =============================================================================
// REPORTS
// =============================================================================

var departmentHeaders = []string{
	"Department",
	"Divisions",
	"Positions",
	"Authorized Headcount",
	"Hardware Total",
	"Software Total",
	"Grand Total",
}

var positionHeaders = []string{
	"Department",
	"Division",
	"Position Code",
	"Position Title",
	"Authorized Count",
	"HW per Person",
	"SW per Person",
	"Total per Person",
	"Hardware Total",
	"Software Total",
	"Grand Total",
}

// DepartmentTable builds the department report.
func DepartmentTable(depts []cost.DepartmentCostSummary) Table {
	t := Table{Title: "Department Costs", Headers: departmentHeaders}
	for _, d := range depts {
		t.Rows = append(t.Rows, []Cell{
			text(d.DepartmentName),
			integer(d.DivisionCount),
			integer(d.PositionCount),
			integer(d.TotalAuthorized),
			money(d.HardwareTotal),
			money(d.SoftwareTotal),
			money(d.GrandTotal),
		})
	}
	return t
}

// PositionTable builds the position report.
func PositionTable(positions []cost.PositionCostSummary) Table {
	t := Table{Title: "Position Costs", Headers: positionHeaders}
	for _, p := range positions {
		t.Rows = append(t.Rows, []Cell{
			text(p.DepartmentName),
			text(p.DivisionName),
			text(p.PositionCode),
			text(p.PositionTitle),
			integer(p.AuthorizedCount),
			money(p.HardwarePerPerson),
			money(p.SoftwarePerPerson),
			money(p.TotalPerPerson),
			money(p.HardwareTotal),
			money(p.SoftwareTotal),
			money(p.GrandTotal),
		})
	}
	return t
}
