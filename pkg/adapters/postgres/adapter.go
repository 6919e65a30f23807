package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/ruslano69/sqlassist/pkg/adapters"
	"github.com/ruslano69/sqlassist/pkg/rowset"
)

// Compile-time check: Adapter должен реализовывать интерфейс adapters.Adapter
var _ adapters.Adapter = (*Adapter)(nil)

// Регистрация типа источника postgres
func init() {
	adapters.Register("postgres", func() adapters.Adapter {
		return &Adapter{}
	})
}

// Adapter представляет адаптер для работы с PostgreSQL.
// Использует одиночное pgx.Conn, а не pgxpool: одно подключение на вызов.
type Adapter struct {
	conn *pgx.Conn
}

// Connect устанавливает подключение к PostgreSQL
func (a *Adapter) Connect(ctx context.Context, cfg adapters.Config) error {
	config, err := pgx.ParseConfig(cfg.DSN)
	if err != nil {
		return fmt.Errorf("failed to parse connection string: %w", err)
	}
	if cfg.Timeout > 0 {
		config.ConnectTimeout = cfg.Timeout
	}

	conn, err := pgx.ConnectConfig(ctx, config)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		conn.Close(ctx)
		return fmt.Errorf("failed to ping database: %w", err)
	}

	a.conn = conn
	return nil
}

// Close закрывает соединение
func (a *Adapter) Close(ctx context.Context) error {
	if a.conn == nil {
		return nil
	}
	err := a.conn.Close(ctx)
	a.conn = nil
	return err
}

// Ping проверяет доступность БД
func (a *Adapter) Ping(ctx context.Context) error {
	if a.conn == nil {
		return fmt.Errorf("adapter not connected")
	}
	return a.conn.Ping(ctx)
}

// Query выполняет запрос и возвращает все строки
func (a *Adapter) Query(ctx context.Context, query string) (*rowset.RowSet, error) {
	if a.conn == nil {
		return nil, fmt.Errorf("adapter not connected")
	}

	rows, err := a.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, fd := range fields {
		columns[i] = fd.Name
	}

	result := &rowset.RowSet{Columns: columns, Rows: [][]any{}}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		row := make([]any, len(values))
		for i, v := range values {
			row[i] = convertValue(v)
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}

	// DDL и прочие операторы без результата
	if len(columns) == 0 {
		return rowset.Empty(), nil
	}

	return result, nil
}

// convertValue приводит специфичные типы pgx к простым значениям
func convertValue(v any) any {
	switch val := v.(type) {
	case pgtype.Numeric:
		f, err := val.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case [16]byte:
		return uuid.UUID(val).String()
	default:
		return rowset.Normalize(v)
	}
}

// GetDatabaseVersion возвращает версию PostgreSQL
func (a *Adapter) GetDatabaseVersion(ctx context.Context) (string, error) {
	if a.conn == nil {
		return "", fmt.Errorf("adapter not connected")
	}
	var version string
	if err := a.conn.QueryRow(ctx, "SHOW server_version").Scan(&version); err != nil {
		return "", err
	}
	return version, nil
}

// GetDatabaseType возвращает тип СУБД
func (a *Adapter) GetDatabaseType() string {
	return "postgres"
}
