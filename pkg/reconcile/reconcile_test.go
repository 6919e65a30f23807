package reconcile

import (
	"context"
	"errors"
	"math/rand"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/ruslano69/sqlassist/internal/testdb"
	_ "github.com/ruslano69/sqlassist/pkg/adapters/sqlite"
	"github.com/ruslano69/sqlassist/pkg/executor"
	"github.com/ruslano69/sqlassist/pkg/failure"
	"github.com/ruslano69/sqlassist/pkg/registry"
	"github.com/ruslano69/sqlassist/pkg/rowset"
)

// fakeExecutor отвечает по тексту запроса
type fakeExecutor struct {
	results map[string]*rowset.RowSet
	errs    map[string]error
}

func (f *fakeExecutor) Execute(ctx context.Context, sourceID, query string) (*rowset.RowSet, error) {
	if err, ok := f.errs[query]; ok {
		return nil, err
	}
	rs, ok := f.results[query]
	if !ok {
		return nil, errors.New("unexpected query " + query)
	}
	cp := &rowset.RowSet{Columns: rs.Columns, Rows: append([][]any(nil), rs.Rows...)}
	return cp, nil
}

const (
	qEmployees   = "SELECT id, name, department_id FROM employees"
	qDepartments = "SELECT id, name FROM departments"
	qSalaries    = "SELECT employee_id, amount FROM salaries"
)

func companyData(employees, departments, salaries [][]any) *fakeExecutor {
	return &fakeExecutor{results: map[string]*rowset.RowSet{
		qEmployees:   {Columns: []string{"id", "name", "department_id"}, Rows: employees},
		qDepartments: {Columns: []string{"id", "name"}, Rows: departments},
		qSalaries:    {Columns: []string{"employee_id", "amount"}, Rows: salaries},
	}}
}

func newTestReconciler(t *testing.T, exec Executor) *Reconciler {
	t.Helper()
	reg, err := registry.New([]registry.SourceConfig{
		{ID: "db1", Type: "sqlite", Database: "unused1.db"},
		{ID: "db2", Type: "sqlite", Database: "unused2.db"},
	}, testdb.CompanyRelationships(), "db1")
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	r, err := New(exec, reg, Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

var (
	sampleEmployees = [][]any{
		{int64(1), "Alice", int64(2)}, {int64(2), "Bob", int64(2)}, {int64(3), "Charlie", int64(1)},
		{int64(4), "David", int64(3)}, {int64(5), "Eve", int64(1)}, {int64(6), "Frank", int64(1)},
		{int64(7), "Grace", int64(1)}, {int64(8), "Heidi", nil},
	}
	sampleDepartments = [][]any{{int64(1), "Engineering"}, {int64(2), "Sales"}, {int64(3), "HR"}}
	sampleSalaries    = [][]any{
		{int64(1), int64(70000)}, {int64(2), int64(80000)}, {int64(3), int64(90000)}, {int64(3), int64(90000)},
		{int64(4), int64(65000)}, {int64(5), int64(85000)}, {int64(6), int64(60000)}, {int64(7), int64(85000)},
		{int64(8), int64(50000)},
	}
)

func TestReconcile_SingleFact(t *testing.T) {
	exec := companyData(
		[][]any{{int64(1), "Alice", int64(10)}},
		[][]any{{int64(10), "Eng"}},
		[][]any{{int64(1), int64(70000)}},
	)

	got, err := newTestReconciler(t, exec).Reconcile(context.Background(), "salary by department")
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	want := &rowset.RowSet{
		Columns: []string{"Employee Name", "Department", "Salary"},
		Rows:    [][]any{{"Alice", "Eng", int64(70000)}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Reconcile() = %+v, want %+v", got, want)
	}
}

func TestReconcile_SortedByMeasure(t *testing.T) {
	exec := companyData(sampleEmployees, sampleDepartments, sampleSalaries)

	got, err := newTestReconciler(t, exec).Reconcile(context.Background(), "employee salary list")
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	wantNames := []string{"Charlie", "Eve", "Grace", "Bob", "Alice", "David", "Frank"}
	if got.Len() != len(wantNames) {
		t.Fatalf("rows = %d, want %d: %v", got.Len(), len(wantNames), got.Rows)
	}
	for i, name := range wantNames {
		if got.Rows[i][0] != name {
			t.Errorf("row %d = %v, want %s", i, got.Rows[i], name)
		}
	}
}

func TestReconcile_TopPerDepartment(t *testing.T) {
	exec := companyData(sampleEmployees, sampleDepartments, sampleSalaries)

	got, err := newTestReconciler(t, exec).Reconcile(context.Background(), "Show top 3 highest paid employees per department")
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	want := [][]any{
		{"Charlie", "Engineering", int64(90000)},
		{"Eve", "Engineering", int64(85000)},
		{"Grace", "Engineering", int64(85000)},
		{"David", "HR", int64(65000)},
		{"Bob", "Sales", int64(80000)},
		{"Alice", "Sales", int64(70000)},
	}
	if !reflect.DeepEqual(got.Rows, want) {
		t.Errorf("rows =\n%v\nwant\n%v", got.Rows, want)
	}
}

func TestReconcile_ExtractionFailure(t *testing.T) {
	exec := companyData(sampleEmployees, sampleDepartments, sampleSalaries)
	exec.errs = map[string]error{
		qSalaries: failure.New(failure.ConnectionError, "connection refused").WithSource("db2"),
	}

	_, err := newTestReconciler(t, exec).Reconcile(context.Background(), "top salaries by department")
	if !failure.IsKind(err, failure.PartialSourceFailure) {
		t.Fatalf("expected PartialSourceFailure, got %v", err)
	}

	var f *failure.Failure
	if errors.As(err, &f) && f.Source != "db2" {
		t.Errorf("failed source = %q, want db2", f.Source)
	}
}

func TestReconcile_AllFailuresReported(t *testing.T) {
	exec := companyData(sampleEmployees, sampleDepartments, sampleSalaries)
	exec.errs = map[string]error{
		qEmployees: errors.New("db1 down"),
		qSalaries:  errors.New("db2 down"),
	}

	_, err := newTestReconciler(t, exec).Reconcile(context.Background(), "q")
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"db1 down", "db2 down"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestReconcile_InputOrderInvariance(t *testing.T) {
	ctx := context.Background()
	questions := []string{"top earners by department", "salary list"}

	for _, q := range questions {
		base, err := newTestReconciler(t, companyData(sampleEmployees, sampleDepartments, sampleSalaries)).Reconcile(ctx, q)
		if err != nil {
			t.Fatalf("Reconcile: %v", err)
		}

		rng := rand.New(rand.NewSource(42))
		for i := 0; i < 20; i++ {
			exec := companyData(shuffled(rng, sampleEmployees), shuffled(rng, sampleDepartments), shuffled(rng, sampleSalaries))
			got, err := newTestReconciler(t, exec).Reconcile(ctx, q)
			if err != nil {
				t.Fatalf("Reconcile: %v", err)
			}
			if !reflect.DeepEqual(got, base) {
				t.Fatalf("%q: shuffle %d changed output:\n%v\nwant\n%v", q, i, got.Rows, base.Rows)
			}
		}
	}
}

func TestReconcile_DuplicatedInputIsIdempotent(t *testing.T) {
	ctx := context.Background()
	q := "salary by department"

	base, err := newTestReconciler(t, companyData(sampleEmployees, sampleDepartments, sampleSalaries)).Reconcile(ctx, q)
	if err != nil {
		t.Fatal(err)
	}
	doubled, err := newTestReconciler(t, companyData(
		append(append([][]any{}, sampleEmployees...), sampleEmployees...),
		append(append([][]any{}, sampleDepartments...), sampleDepartments...),
		append(append([][]any{}, sampleSalaries...), sampleSalaries...),
	)).Reconcile(ctx, q)
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(base, doubled) {
		t.Errorf("duplicated input changed output:\n%v\nwant\n%v", doubled.Rows, base.Rows)
	}
}

func TestTopNPerGroup_Bound(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	groups := []string{"A", "B", "C"}

	for iter := 0; iter < 50; iter++ {
		rs := &rowset.RowSet{Columns: []string{"Employee Name", "Department", "Salary"}}
		n := rng.Intn(30)
		for i := 0; i < n; i++ {
			rs.Rows = append(rs.Rows, []any{"e", groups[rng.Intn(len(groups))], int64(rng.Intn(10))})
		}

		all := map[string][]int64{}
		for _, row := range rs.Rows {
			all[row[1].(string)] = append(all[row[1].(string)], row[2].(int64))
		}
		kept := map[string][]int64{}
		for _, row := range TopNPerGroup(rs, "Department", "Salary", 3) {
			kept[row[1].(string)] = append(kept[row[1].(string)], row[2].(int64))
		}

		for g, values := range all {
			sort.Slice(values, func(a, b int) bool { return values[a] > values[b] })
			if len(values) > 3 {
				values = values[:3]
			}
			if !reflect.DeepEqual(kept[g], values) {
				t.Fatalf("iteration %d group %s: kept %v, want top values %v", iter, g, kept[g], values)
			}
		}
	}
}

func TestTopNPerGroup_StableTies(t *testing.T) {
	rs := &rowset.RowSet{
		Columns: []string{"Employee Name", "Department", "Salary"},
		Rows: [][]any{
			{"first", "X", int64(5)}, {"second", "X", int64(5)}, {"third", "X", int64(5)}, {"fourth", "X", int64(5)},
		},
	}
	kept := TopNPerGroup(rs, "Department", "Salary", 3)
	for i, name := range []string{"first", "second", "third"} {
		if kept[i][0] != name {
			t.Errorf("kept[%d] = %v, want %s", i, kept[i][0], name)
		}
	}
}

func TestReconcile_KeysMatchAcrossTypes(t *testing.T) {
	exec := companyData(
		[][]any{{int64(1), "Alice", "10"}},
		[][]any{{int64(10), "Eng"}},
		[][]any{{"1", 70000.0}},
	)
	got, err := newTestReconciler(t, exec).Reconcile(context.Background(), "salary")
	if err != nil {
		t.Fatal(err)
	}
	if got.Len() != 1 {
		t.Errorf("rows = %v, want one joined row", got.Rows)
	}
}

func TestReconcile_EmptyExtractionYieldsNoRows(t *testing.T) {
	exec := companyData(sampleEmployees, sampleDepartments, nil)
	got, err := newTestReconciler(t, exec).Reconcile(context.Background(), "salary")
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if got.Len() != 0 || len(got.Columns) != 3 {
		t.Errorf("expected empty 3-column result, got %+v", got)
	}
}

func TestReconcile_SQLiteSources(t *testing.T) {
	reg := testdb.CompanyRegistry(t)
	r, err := New(executor.New(reg), reg, Config{})
	if err != nil {
		t.Fatal(err)
	}

	got, err := r.Reconcile(context.Background(), "top paid per department")
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if got.Len() != 6 {
		t.Fatalf("rows = %d, want 6: %v", got.Len(), got.Rows)
	}
	if got.Rows[0][0] != "Charlie" || got.Rows[0][1] != "Engineering" || got.Rows[0][2] != int64(90000) {
		t.Errorf("first row = %v", got.Rows[0])
	}
}

func TestNew_ExplicitJoins(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Joins = []Join{
		{Left: "employees.department_id", Right: "departments.id"},
		{Left: "employees.id", Right: "salaries.employee_id"},
	}
	r, err := New(companyData(sampleEmployees, sampleDepartments, sampleSalaries), nil, cfg)
	if err != nil {
		t.Fatal(err)
	}
	got, err := r.Reconcile(context.Background(), "salary")
	if err != nil {
		t.Fatal(err)
	}
	if got.Len() != 7 {
		t.Errorf("rows = %d, want 7", got.Len())
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"duplicate extraction", func(c *Config) { c.Extractions = append(c.Extractions, c.Extractions[0]) }},
		{"unknown source", func(c *Config) { c.Extractions[0].Source = "db9" }},
		{"bad join ref", func(c *Config) { c.Joins = []Join{{Left: "employees", Right: "departments.id"}} }},
		{"unknown projection extraction", func(c *Config) { c.Projection[0].Column = "bonuses.amount" }},
		{"measure not projected", func(c *Config) { c.Measure = "Bonus" }},
		{"unknown dedup column ref", func(c *Config) { c.DedupKey = []string{"x.id"} }},
	}

	reg, err := registry.New([]registry.SourceConfig{
		{ID: "db1", Type: "sqlite", Database: "a.db"},
		{ID: "db2", Type: "sqlite", Database: "b.db"},
	}, nil, "")
	if err != nil {
		t.Fatal(err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(reg); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	def := DefaultConfig()
	if err := def.Validate(reg); err != nil {
		t.Errorf("default config: %v", err)
	}
}

func TestNew_NoJoins(t *testing.T) {
	if _, err := New(&fakeExecutor{}, nil, DefaultConfig()); err == nil {
		t.Error("expected error when joins cannot be derived")
	}
}

func shuffled(rng *rand.Rand, rows [][]any) [][]any {
	out := append([][]any(nil), rows...)
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
