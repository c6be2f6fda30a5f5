package export_test

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/warp/budget-engine/cost"
	"github.com/warp/budget-engine/export"
)

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func sampleDepartments() []cost.DepartmentCostSummary {
	return []cost.DepartmentCostSummary{{
		DepartmentID:   1,
		DepartmentName: "Engineering",
		DivisionCount:  2,
		PositionCount:  3,
		Totals: cost.Totals{
			TotalAuthorized: 100,
			HardwareTotal:   money("200999.30"),
			SoftwareTotal:   money("13249.9999999999999999999999999"),
			GrandTotal:      money("214249.2999999999999999999999999"),
		},
	}}
}

func samplePositions() []cost.PositionCostSummary {
	return []cost.PositionCostSummary{{
		PositionCode:      "SRE",
		PositionTitle:     "Site Reliability Engineer",
		DivisionName:      "Platform",
		DepartmentName:    "Engineering",
		AuthorizedCount:   20,
		HardwarePerPerson: money("1450"),
		SoftwarePerPerson: money("90"),
		TotalPerPerson:    money("1540"),
		HardwareTotal:     money("29000"),
		SoftwareTotal:     money("1800"),
		GrandTotal:        money("30800"),
	}}
}

func TestFormatMoney_BankersRounding(t *testing.T) {
	assert.Equal(t, "0.12", export.FormatMoney(money("0.125")))
	assert.Equal(t, "0.14", export.FormatMoney(money("0.135")))
	assert.Equal(t, "90.00", export.FormatMoney(money("90")))
	assert.Equal(t, "1000.00", export.FormatMoney(money("999.9999999999999999999999999")))
}

func TestWriteCSV_Departments(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, export.WriteCSV(&buf, export.DepartmentTable(sampleDepartments())))

	data := buf.Bytes()
	require.True(t, bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}), "UTF-8 BOM")
	records, err := csv.NewReader(bytes.NewReader(data[3:])).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"Department", "Divisions", "Positions", "Authorized Headcount", "Hardware Total", "Software Total", "Grand Total"}, records[0])
	assert.Equal(t, []string{"Engineering", "2", "3", "100", "200999.30", "13250.00", "214249.30"}, records[1])
}

func TestWriteCSV_Positions(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, export.WriteCSV(&buf, export.PositionTable(samplePositions())))

	records, err := csv.NewReader(bytes.NewReader(buf.Bytes()[3:])).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Len(t, records[0], 11)
	assert.Equal(t, []string{
		"Engineering", "Platform", "SRE", "Site Reliability Engineer", "20",
		"1450.00", "90.00", "1540.00", "29000.00", "1800.00", "30800.00",
	}, records[1])
}

func TestWriteXLSX_Positions(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, export.WriteXLSX(&buf, export.PositionTable(samplePositions())))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Position Costs"}, f.GetSheetList())
	rows, err := f.GetRows("Position Costs", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Position Title", rows[0][3])
	assert.Equal(t, "Site Reliability Engineer", rows[1][3])
	assert.Equal(t, "20", rows[1][4])
	assert.Equal(t, "30800", rows[1][10])
}

func TestWriteXLSX_EmptyReportHasHeaderOnly(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, export.WriteXLSX(&buf, export.DepartmentTable(nil)))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Department Costs")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Grand Total", rows[0][6])
}

func TestWriteXLSX_MatchesCSVRounding(t *testing.T) {
	// GIVEN: Totals that sit exactly on a half cent
	// WHEN: Writing the same table as CSV and XLSX
	// THEN: Both formats round half to even

	depts := []cost.DepartmentCostSummary{{
		DepartmentID:   1,
		DepartmentName: "Engineering",
		Totals: cost.Totals{
			TotalAuthorized: 8,
			HardwareTotal:   money("1000.125"),
			SoftwareTotal:   money("20.135"),
			GrandTotal:      money("1020.26"),
		},
	}}

	var csvBuf, xlsxBuf bytes.Buffer
	require.NoError(t, export.WriteCSV(&csvBuf, export.DepartmentTable(depts)))
	require.NoError(t, export.WriteXLSX(&xlsxBuf, export.DepartmentTable(depts)))

	records, err := csv.NewReader(bytes.NewReader(csvBuf.Bytes()[3:])).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "1000.12", records[1][4])
	assert.Equal(t, "20.14", records[1][5])

	f, err := excelize.OpenReader(&xlsxBuf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Department Costs", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "1000.12", rows[1][4])
	assert.Equal(t, "20.14", rows[1][5])
}
