package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrReportNotFound - отчета нет или он деактивирован
var ErrReportNotFound = errors.New("report not found")

// Report is one scheduled report definition.
type Report struct {
	ID        int64      `json:"id"`
	Name      string     `json:"report_name"`
	Query     string     `json:"sql_query"`
	Source    string     `json:"database_name"`
	Frequency Frequency  `json:"schedule_type"`
	At        string     `json:"schedule_time"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	NextRun   time.Time  `json:"next_run"`
	Active    bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
}

// storedRun - строка report_results
type storedRun struct {
	ID         int64
	ReportID   int64
	Status     string
	Payload    string
	Checksum   string
	RowCount   int
	Error      string
	DurationMs int64
	RunTime    time.Time
}

// Store - SQLite хранилище расписаний и результатов
type Store struct {
	db *sql.DB
}

// OpenStore opens or creates the scheduler database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open scheduler store: %w", err)
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.init(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS scheduled_reports (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			report_name TEXT NOT NULL,
			sql_query TEXT NOT NULL,
			database_name TEXT NOT NULL,
			schedule_type TEXT NOT NULL,
			schedule_time TEXT,
			last_run DATETIME,
			next_run DATETIME,
			is_active BOOLEAN DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS report_results (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			report_id INTEGER NOT NULL REFERENCES scheduled_reports(id),
			status TEXT NOT NULL,
			result_data TEXT,
			checksum TEXT,
			row_count INTEGER DEFAULT 0,
			error TEXT,
			duration_ms INTEGER DEFAULT 0,
			run_time DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_results_report ON report_results(report_id, run_time)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init scheduler store: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) insert(ctx context.Context, r Report) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO scheduled_reports (report_name, sql_query, database_name, schedule_type, schedule_time, next_run, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?)`,
		r.Name, r.Query, r.Source, string(r.Frequency), r.At, r.NextRun, r.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert report: %w", err)
	}
	return res.LastInsertId()
}

const reportColumns = `id, report_name, sql_query, database_name, schedule_type, schedule_time, last_run, next_run, is_active, created_at`

func scanReport(row interface{ Scan(...any) error }) (Report, error) {
	var (
		r       Report
		freq    string
		at      sql.NullString
		lastRun sql.NullTime
		nextRun sql.NullTime
	)
	if err := row.Scan(&r.ID, &r.Name, &r.Query, &r.Source, &freq, &at, &lastRun, &nextRun, &r.Active, &r.CreatedAt); err != nil {
		return r, err
	}
	r.Frequency = Frequency(freq)
	r.At = at.String
	if lastRun.Valid {
		t := lastRun.Time
		r.LastRun = &t
	}
	r.NextRun = nextRun.Time
	return r, nil
}

// get returns an active report.
func (s *Store) get(ctx context.Context, id int64) (Report, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM scheduled_reports WHERE id = ? AND is_active = 1`, id)
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("report %d: %w", id, ErrReportNotFound)
	}
	if err != nil {
		return r, fmt.Errorf("load report %d: %w", id, err)
	}
	return r, nil
}

func (s *Store) active(ctx context.Context) ([]Report, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+reportColumns+` FROM scheduled_reports WHERE is_active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var out []Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) deactivate(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE scheduled_reports SET is_active = 0 WHERE id = ? AND is_active = 1`, id)
	if err != nil {
		return fmt.Errorf("deactivate report %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("report %d: %w", id, ErrReportNotFound)
	}
	return nil
}

// saveRun stores the run and moves last_run/next_run in one transaction.
func (s *Store) saveRun(ctx context.Context, run storedRun, nextRun time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO report_results (report_id, status, result_data, checksum, row_count, error, duration_ms, run_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ReportID, run.Status, nullString(run.Payload), nullString(run.Checksum), run.RowCount,
		nullString(run.Error), run.DurationMs, run.RunTime)
	if err != nil {
		return 0, fmt.Errorf("insert result: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE scheduled_reports SET last_run = ?, next_run = ? WHERE id = ?`,
		run.RunTime, nextRun, run.ReportID); err != nil {
		return 0, fmt.Errorf("update report: %w", err)
	}
	return id, tx.Commit()
}

// runs returns the newest runs of a report first.
func (s *Store) runs(ctx context.Context, reportID int64, limit int) ([]storedRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, report_id, status, COALESCE(result_data, ''), COALESCE(checksum, ''), row_count,
			COALESCE(error, ''), duration_ms, run_time
		FROM report_results WHERE report_id = ?
		ORDER BY run_time DESC, id DESC LIMIT ?`, reportID, limit)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var out []storedRun
	for rows.Next() {
		var r storedRun
		if err := rows.Scan(&r.ID, &r.ReportID, &r.Status, &r.Payload, &r.Checksum, &r.RowCount,
			&r.Error, &r.DurationMs, &r.RunTime); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
