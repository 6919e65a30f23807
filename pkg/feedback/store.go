// Package feedback keeps a log of answered questions, user ratings and the
// query patterns that were rated well.
package feedback

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// ErrNoPendingQuery - в сессии нет запроса без оценки
var ErrNoPendingQuery = errors.New("no unrated query in session")

// PatternKeywords - слова, из которых строится шаблон вопроса
var PatternKeywords = []string{"count", "show", "list", "top", "highest", "department", "salary", "employee"}

// Pattern is a question shape that produced a well-rated query.
type Pattern struct {
	Pattern      string    `json:"pattern"`
	Question     string    `json:"question"`
	Source       string    `json:"source"`
	SQL          string    `json:"sql"`
	SuccessCount int       `json:"success_count"`
	LastUpdated  time.Time `json:"last_updated"`
}

// Stats - сводка по оценкам
type Stats struct {
	AverageRating    float64 `json:"average_rating"`
	TotalFeedback    int     `json:"total_feedback"`
	PositiveFeedback int     `json:"positive_feedback"`
	SuccessRate      float64 `json:"success_rate"`
}

// Store is a SQLite-backed feedback store.
type Store struct {
	db *sql.DB
}

// Open opens or creates the store at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open feedback store: %w", err)
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
		`CREATE TABLE IF NOT EXISTS feedback (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			user_question TEXT NOT NULL,
			generated_sql TEXT,
			database_used TEXT,
			result_count INTEGER,
			user_rating INTEGER,
			feedback_text TEXT,
			timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS query_patterns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			pattern TEXT UNIQUE NOT NULL,
			sample_question TEXT,
			database_used TEXT,
			successful_sql TEXT NOT NULL,
			success_count INTEGER DEFAULT 1,
			last_updated TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_feedback_session ON feedback(session_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init feedback store: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping проверяет доступность базы
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// LogQuery records an answered question awaiting a rating.
func (s *Store) LogQuery(ctx context.Context, sessionID, question, query, sourceID string, resultCount int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback (session_id, user_question, generated_sql, database_used, result_count, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, question, query, sourceID, resultCount, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("log query: %w", err)
	}
	return nil
}

// RecordFeedback rates the latest unrated query of the session. A rating of
// 4 or 5 also promotes that query's pattern.
func (s *Store) RecordFeedback(ctx context.Context, sessionID string, rating int, text string) error {
	if rating < 1 || rating > 5 {
		return fmt.Errorf("rating must be between 1 and 5, got %d", rating)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record feedback: %w", err)
	}
	defer tx.Rollback()

	var (
		id            int64
		question      string
		query, source sql.NullString
	)
	err = tx.QueryRowContext(ctx, `
		SELECT id, user_question, generated_sql, database_used FROM feedback
		WHERE session_id = ? AND user_rating IS NULL
		ORDER BY timestamp DESC, id DESC LIMIT 1`, sessionID).Scan(&id, &question, &query, &source)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNoPendingQuery
	}
	if err != nil {
		return fmt.Errorf("record feedback: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE feedback SET user_rating = ?, feedback_text = ? WHERE id = ?`, rating, text, id); err != nil {
		return fmt.Errorf("record feedback: %w", err)
	}

	if rating >= 4 && query.String != "" {
		if pattern := ExtractPattern(question); pattern != "" {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO query_patterns (pattern, sample_question, database_used, successful_sql, success_count, last_updated)
				VALUES (?, ?, ?, ?, 1, ?)
				ON CONFLICT(pattern) DO UPDATE SET
					sample_question = excluded.sample_question,
					database_used = excluded.database_used,
					successful_sql = excluded.successful_sql,
					success_count = query_patterns.success_count + 1,
					last_updated = excluded.last_updated`,
				pattern, question, source.String, query.String, time.Now().UTC())
			if err != nil {
				return fmt.Errorf("save pattern: %w", err)
			}
			log.Debug().Str("pattern", pattern).Msg("successful pattern saved")
		}
	}

	return tx.Commit()
}

// ExtractPattern returns the sorted, space-joined PatternKeywords found in question.
func ExtractPattern(question string) string {
	q := strings.ToLower(question)
	var found []string
	for _, kw := range PatternKeywords {
		if strings.Contains(q, kw) {
			found = append(found, kw)
		}
	}
	sort.Strings(found)
	return strings.Join(found, " ")
}

// SimilarSuccessful returns up to three patterns for question: an exact
// pattern match first, then patterns sharing any keyword, by success count.
func (s *Store) SimilarSuccessful(ctx context.Context, question string) ([]Pattern, error) {
	pattern := ExtractPattern(question)
	if pattern == "" {
		return nil, nil
	}

	query := `SELECT pattern, COALESCE(sample_question, ''), COALESCE(database_used, ''), successful_sql,
		success_count, last_updated FROM query_patterns WHERE pattern = ?`
	args := []any{pattern}
	for _, kw := range strings.Fields(pattern) {
		query += " OR (' ' || pattern || ' ') LIKE ?"
		args = append(args, "% "+kw+" %")
	}
	query += " ORDER BY (pattern = ?) DESC, success_count DESC, last_updated DESC LIMIT 3"
	args = append(args, pattern)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("similar patterns: %w", err)
	}
	defer rows.Close()

	var out []Pattern
	for rows.Next() {
		var p Pattern
		if err := rows.Scan(&p.Pattern, &p.Question, &p.Source, &p.SQL, &p.SuccessCount, &p.LastUpdated); err != nil {
			return nil, fmt.Errorf("scan pattern: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Stats summarises ratings.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var (
		st  Stats
		avg sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT AVG(user_rating), COUNT(user_rating),
			COALESCE(SUM(CASE WHEN user_rating >= 4 THEN 1 ELSE 0 END), 0)
		FROM feedback WHERE user_rating IS NOT NULL`).Scan(&avg, &st.TotalFeedback, &st.PositiveFeedback)
	if err != nil {
		return Stats{}, fmt.Errorf("feedback stats: %w", err)
	}
	st.AverageRating = avg.Float64
	if st.TotalFeedback > 0 {
		st.SuccessRate = float64(st.PositiveFeedback) / float64(st.TotalFeedback) * 100
	}
	return st, nil
}
