package base

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ruslano69/sqlassist/pkg/adapters"
	"github.com/ruslano69/sqlassist/pkg/rowset"
)

// SQLAdapter implements the lifecycle and Query parts of adapters.Adapter
// for any database/sql driver.
type SQLAdapter struct {
	db     *sql.DB
	dbType string
}

// Open opens the driver, limits it to a single connection and pings it.
func (a *SQLAdapter) Open(ctx context.Context, driverName, dbType string, cfg adapters.Config) error {
	db, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	a.db = db
	a.dbType = dbType
	return nil
}

// DB exposes the underlying handle for driver-specific statements.
func (a *SQLAdapter) DB() *sql.DB {
	return a.db
}

// Close закрывает соединение с БД
func (a *SQLAdapter) Close(ctx context.Context) error {
	if a.db != nil {
		err := a.db.Close()
		a.db = nil
		return err
	}
	return nil
}

// Ping проверяет доступность БД
func (a *SQLAdapter) Ping(ctx context.Context) error {
	if a.db == nil {
		return fmt.Errorf("adapter not connected")
	}
	return a.db.PingContext(ctx)
}

// Query выполняет запрос и читает весь результат
func (a *SQLAdapter) Query(ctx context.Context, query string) (*rowset.RowSet, error) {
	if a.db == nil {
		return nil, fmt.Errorf("adapter not connected")
	}

	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	return ScanRows(rows)
}

// QueryScalar runs a single-value query such as a version probe.
func (a *SQLAdapter) QueryScalar(ctx context.Context, query string) (string, error) {
	if a.db == nil {
		return "", fmt.Errorf("adapter not connected")
	}
	var v sql.NullString
	if err := a.db.QueryRowContext(ctx, query).Scan(&v); err != nil {
		return "", err
	}
	return v.String, nil
}

// GetDatabaseType возвращает тип СУБД
func (a *SQLAdapter) GetDatabaseType() string {
	return a.dbType
}
