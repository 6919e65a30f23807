package chart

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ruslano69/sqlassist/pkg/rowset"
)

// Column labels produced by cross-source reconciliation.
const (
	ColEmployee   = "Employee Name"
	ColDepartment = "Department"
	ColSalary     = "Salary"
)

// Rule is one entry of the priority-ordered chart table.
type Rule struct {
	Name  string
	Match func(question string, rs *rowset.RowSet) bool
	Build func(rs *rowset.RowSet) (*Spec, error)
}

var errNoCategories = errors.New("no categories to plot")

// DefaultRules - порядок важен: первое совпадение строит диаграмму
var DefaultRules = []Rule{
	{
		Name: "top-per-department",
		Match: func(q string, rs *rowset.RowSet) bool {
			return strings.Contains(q, "top") && strings.Contains(q, "department") &&
				hasColumns(rs, ColEmployee, ColDepartment, ColSalary)
		},
		Build: buildTopPerDepartment,
	},
	{
		Name: "average-by-department",
		Match: func(q string, rs *rowset.RowSet) bool {
			return strings.Contains(q, "salary") && strings.Contains(q, "department") &&
				hasColumns(rs, ColDepartment, ColSalary)
		},
		Build: buildAverageByDepartment,
	},
	{
		Name:  "generic",
		Match: func(q string, rs *rowset.RowSet) bool { return rs.Width() >= 2 },
		Build: buildGeneric,
	},
}

func hasColumns(rs *rowset.RowSet, labels ...string) bool {
	for _, l := range labels {
		if rs.ColumnIndex(l) < 0 {
			return false
		}
	}
	return true
}

// buildTopPerDepartment: одна серия на отдел в порядке появления, точки в порядке строк
func buildTopPerDepartment(rs *rowset.RowSet) (*Spec, error) {
	e, d, s := rs.ColumnIndex(ColEmployee), rs.ColumnIndex(ColDepartment), rs.ColumnIndex(ColSalary)

	spec := &Spec{
		Kind:       KindHorizontalBar,
		Title:      "Top Employees by Department and Salary",
		XLabel:     "Salary ($)",
		YLabel:     "Employee",
		GroupLabel: ColDepartment,
	}
	pos := make(map[string]int)
	for _, row := range rs.Rows {
		v, ok := rowset.Float(row[s])
		if !ok {
			return nil, fmt.Errorf("salary %v is not numeric", row[s])
		}
		dept := rowset.String(row[d])
		i, seen := pos[dept]
		if !seen {
			i = len(spec.Series)
			pos[dept] = i
			spec.Series = append(spec.Series, Series{Name: dept})
		}
		spec.Series[i].Points = append(spec.Series[i].Points, Point{Category: rowset.String(row[e]), Value: v})
	}
	if len(spec.Series) == 0 {
		return nil, errNoCategories
	}
	return spec, nil
}

// buildAverageByDepartment: среднее по отделу, отделы по возрастанию
func buildAverageByDepartment(rs *rowset.RowSet) (*Spec, error) {
	d, s := rs.ColumnIndex(ColDepartment), rs.ColumnIndex(ColSalary)

	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, row := range rs.Rows {
		v, ok := rowset.Float(row[s])
		if !ok {
			return nil, fmt.Errorf("salary %v is not numeric", row[s])
		}
		dept := rowset.String(row[d])
		sums[dept] += v
		counts[dept]++
	}
	if len(counts) == 0 {
		return nil, errNoCategories
	}

	depts := make([]string, 0, len(counts))
	for dept := range counts {
		depts = append(depts, dept)
	}
	sort.Strings(depts)

	series := Series{Name: "Average Salary"}
	for _, dept := range depts {
		series.Points = append(series.Points, Point{Category: dept, Value: sums[dept] / float64(counts[dept])})
	}
	return &Spec{
		Kind:   KindBar,
		Title:  "Average Salary by Department",
		XLabel: ColDepartment,
		YLabel: "Average Salary ($)",
		Series: []Series{series},
	}, nil
}

// buildGeneric: x - первая колонка с "name", иначе вторая;
// y - последняя колонка с salary/amount/count, иначе вторая.
func buildGeneric(rs *rowset.RowSet) (*Spec, error) {
	x := 1
	if strings.Contains(strings.ToLower(rs.Columns[0]), "name") {
		x = 0
	}
	y := 1
	last := strings.ToLower(rs.Columns[len(rs.Columns)-1])
	for _, w := range []string{"salary", "amount", "count"} {
		if strings.Contains(last, w) {
			y = len(rs.Columns) - 1
			break
		}
	}

	series := Series{Name: rs.Columns[y]}
	for _, row := range rs.Rows {
		v, ok := rowset.Float(row[y])
		if !ok {
			return nil, fmt.Errorf("column %q value %v is not numeric", rs.Columns[y], row[y])
		}
		series.Points = append(series.Points, Point{Category: rowset.String(row[x]), Value: v})
	}
	if len(series.Points) == 0 {
		return nil, errNoCategories
	}
	return &Spec{
		Kind:   KindBar,
		Title:  fmt.Sprintf("%s by %s", rs.Columns[y], rs.Columns[x]),
		XLabel: rs.Columns[x],
		YLabel: rs.Columns[y],
		Series: []Series{series},
	}, nil
}
