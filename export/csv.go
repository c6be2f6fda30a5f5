package export

import (
	"encoding/csv"
	"io"
	"strconv"
)

// utf8BOM makes Excel open the CSV as UTF-8.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// WriteCSV encodes t as CSV with a UTF-8 byte order mark.
func WriteCSV(w io.Writer, t Table) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(t.Headers); err != nil {
		return err
	}
	record := make([]string, len(t.Headers))
	for _, row := range t.Rows {
		for i, c := range row {
			record[i] = c.String()
		}
		if err := cw.Write(record[:len(row)]); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// String renders the cell as CSV text.
func (c Cell) String() string {
	switch c.Kind {
	case KindInt:
		return strconv.Itoa(c.Int)
	case KindMoney:
		return FormatMoney(c.Money)
	default:
		return c.Text
	}
}
