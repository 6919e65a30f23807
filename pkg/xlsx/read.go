package xlsx

import (
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/ruslano69/sqlassist/pkg/rowset"
)

// Read loads a sheet written by Save back into a RowSet. The first row is the
// header; empty cells become nil and numeric text becomes int64 or float64.
func Read(path, sheetName string) (*rowset.RowSet, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if sheetName == "" {
		sheetName = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheetName, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) == 0 {
		return rowset.Empty(), nil
	}

	rs := &rowset.RowSet{Columns: rows[0], Rows: make([][]any, 0, len(rows)-1)}
	for _, raw := range rows[1:] {
		row := make([]any, len(rs.Columns))
		for c := range row {
			if c < len(raw) {
				row[c] = parseCell(raw[c])
			}
		}
		rs.Rows = append(rs.Rows, row)
	}
	return rs, nil
}

func parseCell(s string) any {
	if s == "" {
		return nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
