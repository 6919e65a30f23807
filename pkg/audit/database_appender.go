package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DatabaseAppender - запись в SQLite
type DatabaseAppender struct {
	db    *sql.DB
	owned bool
}

// OpenDatabaseAppender opens (or creates) a SQLite audit database at path.
func OpenDatabaseAppender(path string) (*DatabaseAppender, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	da, err := NewDatabaseAppender(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	da.owned = true
	return da, nil
}

// NewDatabaseAppender uses an existing connection and creates the table if needed.
func NewDatabaseAppender(db *sql.DB) (*DatabaseAppender, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS audit_log (
			id TEXT PRIMARY KEY,
			timestamp TIMESTAMP NOT NULL,
			operation TEXT NOT NULL,
			status TEXT NOT NULL,
			user_name TEXT,
			session_id TEXT,
			source TEXT,
			resource TEXT,
			records BIGINT DEFAULT 0,
			duration_ms BIGINT DEFAULT 0,
			error_kind TEXT,
			error_message TEXT,
			metadata TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_log_timestamp ON audit_log(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_log_operation ON audit_log(operation)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("failed to create audit table: %w", err)
		}
	}
	return &DatabaseAppender{db: db}, nil
}

// Append - записать entry в базу данных
func (da *DatabaseAppender) Append(ctx context.Context, e *Entry) error {
	meta, err := e.metadataJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	_, err = da.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, timestamp, operation, status, user_name, session_id, source,
			resource, records, duration_ms, error_kind, error_message, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Timestamp, string(e.Operation), string(e.Status), e.User, e.SessionID, e.Source,
		e.Resource, e.Records, e.Duration.Milliseconds(), e.ErrorKind, e.Error, meta)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// QueryFilter - фильтр для запроса audit entries
type QueryFilter struct {
	Operation Operation
	Status    Status
	SessionID string
	Since     time.Time
	Limit     int
}

// Query returns matching entries, newest first.
func (da *DatabaseAppender) Query(ctx context.Context, f QueryFilter) ([]*Entry, error) {
	query := `SELECT id, timestamp, operation, status, user_name, session_id, source, resource,
		records, duration_ms, error_kind, error_message, metadata FROM audit_log WHERE 1=1`
	var args []any
	if f.Operation != "" {
		query += " AND operation = ?"
		args = append(args, string(f.Operation))
	}
	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, string(f.Status))
	}
	if f.SessionID != "" {
		query += " AND session_id = ?"
		args = append(args, f.SessionID)
	}
	if !f.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, f.Since)
	}
	query += " ORDER BY timestamp DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := da.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var (
			e                               Entry
			op, status                      string
			user, session, source, resource sql.NullString
			errKind, errMsg, meta           sql.NullString
			durationMs                      int64
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &op, &status, &user, &session, &source, &resource,
			&e.Records, &durationMs, &errKind, &errMsg, &meta); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Operation, e.Status = Operation(op), Status(status)
		e.User, e.SessionID, e.Source, e.Resource = user.String, session.String, source.String, resource.String
		e.ErrorKind, e.Error = errKind.String, errMsg.String
		e.Duration = time.Duration(durationMs) * time.Millisecond
		if meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &e.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata: %w", err)
			}
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// DeleteOlderThan - удалить записи старше before
func (da *DatabaseAppender) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	res, err := da.db.ExecContext(ctx, "DELETE FROM audit_log WHERE timestamp < ?", before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old entries: %w", err)
	}
	return res.RowsAffected()
}

// Close закрывает соединение, если appender его открыл
func (da *DatabaseAppender) Close() error {
	if da.owned {
		return da.db.Close()
	}
	return nil
}
