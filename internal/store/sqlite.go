package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/eldtechnologies/chatmood/internal/models"
)

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/chatmood.db". ":memory:" opens a
// private in-memory database.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/chatmood.db"
	}

	dsn := dbPath
	if dbPath != ":memory:" {
		// Ensure directory exists
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, err
		}
		dsn = dbPath + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	// One connection: writers queue instead of failing with SQLITE_BUSY,
	// and an in-memory database stays a single database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// EnsureSchema creates the table and adds any missing evolving column.
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	defer observe("sqlite", "ensure_schema", time.Now())

	if _, err := s.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	existing, err := s.columns(ctx)
	if err != nil {
		return err
	}
	for _, c := range missingColumns(existing) {
		definition := c.definition
		if c.name == "created_at" {
			// SQLite rejects non-constant defaults in ADD COLUMN; inserts
			// supply the timestamp instead.
			definition = "TIMESTAMP"
		}
		stmt := fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, TableName, c.name, definition)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("add column %s: %w", c.name, err)
		}
	}
	return nil
}

func (s *SQLiteStore) columns(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, TableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	existing := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		existing[name] = true
	}
	return existing, rows.Err()
}

// SaveAnalysis ensures the schema, then inserts the row unless its message
// id is already stored.
func (s *SQLiteStore) SaveAnalysis(ctx context.Context, a *models.Analysis) (bool, error) {
	if err := s.EnsureSchema(ctx); err != nil {
		return false, &PersistenceError{Op: "ensure schema", Err: err}
	}

	defer observe("sqlite", "insert", time.Now())
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO sentiment_analysis (
			message_id, user_name, message, sentiment, justification, emotion, urgency, is_reply, replied_to_user, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (message_id) DO NOTHING
	`, a.MessageID, a.UserName, a.Message, a.Sentiment, a.Justification, a.Emotion, a.Urgency, a.IsReply, a.RepliedToUser)
	if err != nil {
		return false, &PersistenceError{Op: "insert", Err: err}
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, &PersistenceError{Op: "insert", Err: err}
	}
	return n == 1, nil
}

// GetAnalysis retrieves an analysis by message ID.
func (s *SQLiteStore) GetAnalysis(ctx context.Context, messageID string) (*models.Analysis, error) {
	a := &models.Analysis{}
	var isReply sql.NullBool
	var repliedTo sql.NullString
	var createdAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT message_id, COALESCE(user_name, ''), COALESCE(message, ''), COALESCE(sentiment, ''),
			COALESCE(justification, ''), COALESCE(emotion, ''), COALESCE(urgency, ''),
			is_reply, replied_to_user, created_at
		FROM sentiment_analysis WHERE message_id = ?
	`, messageID).Scan(
		&a.MessageID,
		&a.UserName,
		&a.Message,
		&a.Sentiment,
		&a.Justification,
		&a.Emotion,
		&a.Urgency,
		&isReply,
		&repliedTo,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	a.IsReply = isReply.Bool
	if repliedTo.Valid {
		a.RepliedToUser = &repliedTo.String
	}
	if createdAt.Valid {
		a.CreatedAt = createdAt.Time
	}
	return a, nil
}

// RecentAnalyses returns the newest analyses first.
func (s *SQLiteStore) RecentAnalyses(ctx context.Context, limit int) ([]models.RecentAnalysis, error) {
	defer observe("sqlite", "recent", time.Now())

	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT created_at, COALESCE(sentiment, ''), COALESCE(emotion, ''), COALESCE(user_name, ''), COALESCE(message, '')
		FROM sentiment_analysis
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	analyses := make([]models.RecentAnalysis, 0, limit)
	for rows.Next() {
		var r models.RecentAnalysis
		var createdAt sql.NullTime
		if err := rows.Scan(&createdAt, &r.Sentiment, &r.Emotion, &r.UserName, &r.Message); err != nil {
			return nil, err
		}
		r.CreatedAt = createdAt.Time
		analyses = append(analyses, r)
	}
	return analyses, rows.Err()
}

// CountAnalyses returns the number of stored analyses.
func (s *SQLiteStore) CountAnalyses(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sentiment_analysis`).Scan(&count)
	return count, err
}

// SentimentCounts returns the number of analyses per primary sentiment.
func (s *SQLiteStore) SentimentCounts(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(sentiment, ''), COUNT(*) FROM sentiment_analysis GROUP BY 1
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	raw := make(map[string]int64)
	for rows.Next() {
		var sentiment string
		var n int64
		if err := rows.Scan(&sentiment, &n); err != nil {
			return nil, err
		}
		raw[sentiment] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return foldSentiments(raw), nil
}

// GetMostRecentActivity returns the creation time of the newest analysis.
// The column is read directly rather than through MAX() so the driver keeps
// its TIMESTAMP type.
func (s *SQLiteStore) GetMostRecentActivity(ctx context.Context) (*time.Time, error) {
	var t sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT created_at FROM sentiment_analysis
		WHERE created_at IS NOT NULL
		ORDER BY created_at DESC LIMIT 1
	`).Scan(&t)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t.Time, nil
}
