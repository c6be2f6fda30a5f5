package export

import (
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

const currencyFormat = "#,##0.00"

// WriteXLSX encodes t as a single-sheet workbook with a styled header row.
func WriteXLSX(w io.Writer, t Table) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := t.Title
	if err := f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), sheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"2B579A"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", WrapText: true},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	format := currencyFormat
	moneyStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &format})
	if err != nil {
		return fmt.Errorf("currency style: %w", err)
	}

	header := make([]interface{}, len(t.Headers))
	widths := make([]int, len(t.Headers))
	for i, h := range t.Headers {
		header[i] = h
		widths[i] = utf8.RuneCountInString(h)
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(t.Headers), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for r, row := range t.Rows {
		excelRow := make([]interface{}, len(row))
		for i, c := range row {
			switch c.Kind {
			case KindInt:
				excelRow[i] = c.Int
			case KindMoney:
				excelRow[i] = c.Money.RoundBank(2).InexactFloat64()
			default:
				excelRow[i] = c.Text
			}
			if n := utf8.RuneCountInString(c.String()); i < len(widths) && n > widths[i] {
				widths[i] = n
			}
		}

		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &excelRow); err != nil {
			return fmt.Errorf("write row %d: %w", r+2, err)
		}
		for i, c := range row {
			if c.Kind != KindMoney {
				continue
			}
			ref, err := excelize.CoordinatesToCellName(i+1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetCellStyle(sheet, ref, ref, moneyStyle); err != nil {
				return err
			}
		}
	}

	for i, width := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, col, col, float64(min(width+4, 40))); err != nil {
			return err
		}
	}

	return f.Write(w)
}
