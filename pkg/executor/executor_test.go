package executor

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ruslano69/sqlassist/internal/testdb"
	"github.com/ruslano69/sqlassist/pkg/adapters"
	_ "github.com/ruslano69/sqlassist/pkg/adapters/sqlite"
	"github.com/ruslano69/sqlassist/pkg/failure"
	"github.com/ruslano69/sqlassist/pkg/registry"
	"github.com/ruslano69/sqlassist/pkg/resilience"
	"github.com/ruslano69/sqlassist/pkg/security"
)

func TestExecute_Success(t *testing.T) {
	exec := New(testdb.CompanyRegistry(t))

	rs, err := exec.Execute(context.Background(), "db1", "SELECT COUNT(*) FROM employees;")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(rs.Columns) != 1 || len(rs.Rows) != 1 {
		t.Fatalf("expected 1x1 result, got %d cols %d rows", len(rs.Columns), len(rs.Rows))
	}
	if rs.Rows[0][0] != int64(8) {
		t.Errorf("count = %#v, want 8", rs.Rows[0][0])
	}
}

func TestExecute_NoResultSet(t *testing.T) {
	exec := New(testdb.CompanyRegistry(t))

	rs, err := exec.Execute(context.Background(), "db2", "CREATE TABLE bonuses (id INTEGER)")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(rs.Columns) != 0 {
		t.Errorf("expected empty columns, got %v", rs.Columns)
	}
}

func TestExecute_Failures(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "no", "such", "dir", "x.db")
	sources := append(testdb.CompanySources(t),
		registry.SourceConfig{ID: "broken", Type: "sqlite", Database: missing},
	)
	reg, err := registry.New(sources, nil, "db1")
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	tests := []struct {
		name     string
		exec     *Executor
		source   string
		query    string
		wantKind failure.Kind
	}{
		{"unknown source", New(reg), "db9", "SELECT 1", failure.ConnectionError},
		{"unreachable file", New(reg), "broken", "SELECT 1", failure.ConnectionError},
		{"malformed sql", New(reg), "db1", "SELEC name FROM employees", failure.ExecutionError},
		{"missing table", New(reg), "db2", "SELECT * FROM employees", failure.ExecutionError},
		{"guard rejects write", New(reg, WithValidator(security.NewSQLValidator(true))), "db1", "DELETE FROM employees", failure.ExecutionError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.exec.Execute(context.Background(), tt.source, tt.query)
			if err == nil {
				t.Fatal("expected failure")
			}
			kind, ok := failure.KindOf(err)
			if !ok || kind != tt.wantKind {
				t.Errorf("kind = %v (ok=%v), want %s; err=%v", kind, ok, tt.wantKind, err)
			}
		})
	}
}

func TestExecute_GuardAllowsReads(t *testing.T) {
	exec := New(testdb.CompanyRegistry(t), WithValidator(security.NewSQLValidator(true)))
	rs, err := exec.Execute(context.Background(), "db1", "SELECT name FROM departments ORDER BY name")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if rs.Len() != 3 || rs.Rows[0][0] != "Engineering" {
		t.Errorf("unexpected rows: %#v", rs.Rows)
	}
}

func TestPing(t *testing.T) {
	exec := New(testdb.CompanyRegistry(t))
	if err := exec.Ping(context.Background(), "db1"); err != nil {
		t.Errorf("Ping(db1): %v", err)
	}
	if err := exec.Ping(context.Background(), "nope"); err == nil {
		t.Error("expected error for unknown source")
	}
}

func TestExecute_CircuitBreakerOpensPerSource(t *testing.T) {
	cfg := resilience.DefaultConfig("")
	cfg.MaxFailures = 2
	cfg.Timeout = time.Minute
	group, err := resilience.NewGroup(cfg)
	if err != nil {
		t.Fatal(err)
	}

	exec := New(testdb.CompanyRegistry(t), WithCircuitBreakers(group))
	realConnect := exec.connect
	attempts := 0
	exec.connect = func(ctx context.Context, c adapters.Config) (adapters.Adapter, error) {
		if c.DSN == mustDSN(t, exec, "db2") {
			attempts++
			return nil, errors.New("connection refused")
		}
		return realConnect(ctx, c)
	}

	for i := 0; i < 3; i++ {
		_, err := exec.Execute(context.Background(), "db2", "SELECT 1")
		if !failure.IsKind(err, failure.ConnectionError) {
			t.Fatalf("attempt %d: expected ConnectionError, got %v", i, err)
		}
	}
	if attempts != 2 {
		t.Errorf("connect attempts = %d, want 2 (third rejected by open breaker)", attempts)
	}

	if _, err := exec.Execute(context.Background(), "db1", "SELECT 1"); err != nil {
		t.Errorf("db1 must be unaffected by db2 breaker: %v", err)
	}
}

func mustDSN(t *testing.T, exec *Executor, id string) string {
	t.Helper()
	src, err := exec.Registry().Get(id)
	if err != nil {
		t.Fatal(err)
	}
	return src.DSN
}
