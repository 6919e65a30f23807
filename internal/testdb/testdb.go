// Package testdb builds throwaway SQLite sources for tests.
package testdb

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/ruslano69/sqlassist/pkg/registry"
)

// Seed creates a SQLite file under t.TempDir() and runs stmts against it.
func Seed(t *testing.T, name string, stmts ...string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name+".db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer db.Close()

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("seed %s: %q: %v", name, stmt, err)
		}
	}
	return path
}

// CompanySources seeds the two-source company layout: employees and departments
// in db1, salaries in db2. Charlie has a duplicated salary row.
func CompanySources(t *testing.T) []registry.SourceConfig {
	t.Helper()

	db1 := Seed(t, "db1",
		"CREATE TABLE departments (id INTEGER PRIMARY KEY, name TEXT NOT NULL)",
		"CREATE TABLE employees (id INTEGER PRIMARY KEY, name TEXT NOT NULL, department_id INTEGER)",
		"INSERT INTO departments VALUES (1, 'Engineering'), (2, 'Sales'), (3, 'HR')",
		`INSERT INTO employees VALUES
			(1, 'Alice', 2), (2, 'Bob', 2), (3, 'Charlie', 1), (4, 'David', 3),
			(5, 'Eve', 1), (6, 'Frank', 1), (7, 'Grace', 1), (8, 'Heidi', NULL)`,
	)
	db2 := Seed(t, "db2",
		"CREATE TABLE salaries (id INTEGER PRIMARY KEY, employee_id INTEGER, amount INTEGER NOT NULL)",
		`INSERT INTO salaries (employee_id, amount) VALUES
			(1, 70000), (2, 80000), (3, 90000), (3, 90000), (4, 65000),
			(5, 85000), (6, 60000), (7, 85000), (8, 50000)`,
	)

	return []registry.SourceConfig{
		{ID: "db1", Type: "sqlite", Database: db1, Schema: "- employees(id, name, department_id)\n- departments(id, name)"},
		{ID: "db2", Type: "sqlite", Database: db2, Schema: "- salaries(id, employee_id, amount)"},
	}
}

// CompanyRelationships returns the join keys of the company layout.
func CompanyRelationships() []registry.Relationship {
	return []registry.Relationship{
		{
			From: registry.ColumnRef{Source: "db1", Table: "employees", Column: "department_id"},
			To:   registry.ColumnRef{Source: "db1", Table: "departments", Column: "id"},
		},
		{
			From: registry.ColumnRef{Source: "db2", Table: "salaries", Column: "employee_id"},
			To:   registry.ColumnRef{Source: "db1", Table: "employees", Column: "id"},
			Note: "employee ids in db2 refer to db1",
		},
	}
}

// CompanyRegistry builds a Registry over CompanySources.
func CompanyRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.New(CompanySources(t), CompanyRelationships(), "db1")
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return reg
}
