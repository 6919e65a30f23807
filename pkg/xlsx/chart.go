package xlsx

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/ruslano69/sqlassist/pkg/chart"
)

// addChart пишет матрицу категорий × серий на лист "Chart Data"
// и строит по ней диаграмму на листе sheet.
func addChart(f *excelize.File, sheet, anchor string, spec *chart.Spec) error {
	if _, err := f.NewSheet(chartSheet); err != nil {
		return fmt.Errorf("create chart sheet: %w", err)
	}

	categories := spec.Categories()
	row := make(map[string]int, len(categories))
	f.SetCellValue(chartSheet, "A1", spec.YLabel)
	for i, c := range categories {
		row[c] = i + 2
		f.SetCellValue(chartSheet, cellName(1, i+2), c)
	}

	lastRow := len(categories) + 1
	series := make([]excelize.ChartSeries, 0, len(spec.Series))
	for s, ser := range spec.Series {
		col := s + 2
		name := ser.Name
		if name == "" {
			name = spec.XLabel
		}
		f.SetCellValue(chartSheet, cellName(col, 1), name)
		for _, p := range ser.Points {
			f.SetCellValue(chartSheet, cellName(col, row[p.Category]), p.Value)
		}

		letter := columnName(col)
		series = append(series, excelize.ChartSeries{
			Name:       fmt.Sprintf("'%s'!$%s$1", chartSheet, letter),
			Categories: fmt.Sprintf("'%s'!$A$2:$A$%d", chartSheet, lastRow),
			Values:     fmt.Sprintf("'%s'!$%s$2:$%s$%d", chartSheet, letter, letter, lastRow),
		})
	}

	c := &excelize.Chart{
		Type:      chartType(spec.Kind),
		Series:    series,
		Title:     []excelize.RichTextRun{{Text: spec.Title}},
		Legend:    excelize.ChartLegend{Position: "bottom"},
		XAxis:     excelize.ChartAxis{Title: []excelize.RichTextRun{{Text: spec.XLabel}}},
		YAxis:     excelize.ChartAxis{Title: []excelize.RichTextRun{{Text: spec.YLabel}}},
		Dimension: excelize.ChartDimension{Width: 720, Height: 400},
	}
	if len(series) == 1 {
		c.Legend.Position = "none"
	}
	if err := f.AddChart(sheet, anchor, c); err != nil {
		return fmt.Errorf("add chart: %w", err)
	}
	return nil
}

// chartType: горизонтальные столбцы - Bar, вертикальные - Col
func chartType(k chart.Kind) excelize.ChartType {
	if k == chart.KindHorizontalBar {
		return excelize.Bar
	}
	return excelize.Col
}
