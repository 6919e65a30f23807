// Package xlsx exports a RowSet to an Excel workbook and, when a chart spec
// is given, renders it as a native Excel chart next to the data.
package xlsx

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/ruslano69/sqlassist/pkg/chart"
	"github.com/ruslano69/sqlassist/pkg/rowset"
)

const (
	defaultSheet = "Results"
	chartSheet   = "Chart Data"
	colWidth     = 18
)

// Build creates a workbook with the result on sheetName and, when spec is not
// nil, a "Chart Data" sheet plus a chart anchored to the right of the data.
// The caller closes the returned file.
func Build(rs *rowset.RowSet, spec *chart.Spec, sheetName string) (*excelize.File, error) {
	if rs == nil {
		rs = rowset.Empty()
	}
	if sheetName == "" {
		sheetName = defaultSheet
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	if err := writeRowSet(f, sheetName, rs); err != nil {
		f.Close()
		return nil, err
	}
	if spec != nil && spec.PointCount() > 0 {
		anchor := cellName(rs.Width()+2, 1)
		if err := addChart(f, sheetName, anchor, spec); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

// Save writes the workbook to path.
func Save(rs *rowset.RowSet, spec *chart.Spec, path, sheetName string) error {
	f, err := Build(rs, spec, sheetName)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

// Bytes returns the workbook as an in-memory .xlsx document.
func Bytes(rs *rowset.RowSet, spec *chart.Spec, sheetName string) ([]byte, error) {
	f, err := Build(rs, spec, sheetName)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRowSet(f *excelize.File, sheet string, rs *rowset.RowSet) error {
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	styles, err := newValueStyles(f)
	if err != nil {
		return err
	}

	for c, label := range rs.Columns {
		cell := cellName(c+1, 1)
		if err := f.SetCellValue(sheet, cell, label); err != nil {
			return fmt.Errorf("header %s: %w", cell, err)
		}
		f.SetCellStyle(sheet, cell, cell, headerStyle)
	}

	for r, row := range rs.Rows {
		for c, v := range row {
			cell := cellName(c+1, r+2)
			v = excelValue(v)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("cell %s: %w", cell, err)
			}
			if style, ok := styles.forValue(v); ok {
				f.SetCellStyle(sheet, cell, cell, style)
			}
		}
	}

	if rs.Width() > 0 {
		last := columnName(rs.Width())
		f.SetColWidth(sheet, "A", last, colWidth)
		f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
	}
	return nil
}

type valueStyles struct {
	integer, decimal, datetime int
}

func newValueStyles(f *excelize.File) (valueStyles, error) {
	var s valueStyles
	var err error
	if s.integer, err = f.NewStyle(&excelize.Style{NumFmt: 3}); err != nil { // #,##0
		return s, fmt.Errorf("integer style: %w", err)
	}
	if s.decimal, err = f.NewStyle(&excelize.Style{NumFmt: 4}); err != nil { // #,##0.00
		return s, fmt.Errorf("decimal style: %w", err)
	}
	if s.datetime, err = f.NewStyle(&excelize.Style{NumFmt: 22}); err != nil { // m/d/yy h:mm
		return s, fmt.Errorf("datetime style: %w", err)
	}
	return s, nil
}

func (s valueStyles) forValue(v any) (int, bool) {
	switch v.(type) {
	case int, int32, int64:
		return s.integer, true
	case float32, float64:
		return s.decimal, true
	case time.Time:
		return s.datetime, true
	}
	return 0, false
}

// excelValue приводит значения драйверов к типам, которые понимает excelize
func excelValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(val)
	case bool:
		if val {
			return "TRUE"
		}
		return "FALSE"
	case int64, int32, int, float64, float32, string, time.Time:
		return val
	default:
		return rowset.String(val)
	}
}

// columnName: 1 → A, 27 → AA
func columnName(col int) string {
	name := ""
	for col > 0 {
		col--
		name = string(rune('A'+col%26)) + name
		col /= 26
	}
	return name
}

func cellName(col, row int) string {
	return columnName(col) + strconv.Itoa(row)
}
