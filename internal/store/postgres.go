package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eldtechnologies/chatmood/internal/models"
)

// schemaLockID serializes concurrent DDL from several writers.
const schemaLockID = 727176

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
// Connections are opened lazily; use Ping to check reachability.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// EnsureSchema creates the table and adds any missing evolving column.
// The probe is read-only; DDL only runs when something is missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	defer observe("postgres", "ensure_schema", time.Now())

	existing, err := s.columns(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 && len(missingColumns(existing)) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	for _, c := range evolvingColumns {
		stmt := fmt.Sprintf(`ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s`, TableName, c.name, c.definition)
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("add column %s: %w", c.name, err)
		}
	}
	return tx.Commit(ctx)
}

// columns returns the column names of the table, empty if it does not exist.
func (s *PostgresStore) columns(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT column_name FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
	`, TableName)
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
func (s *PostgresStore) SaveAnalysis(ctx context.Context, a *models.Analysis) (bool, error) {
	if err := s.EnsureSchema(ctx); err != nil {
		return false, &PersistenceError{Op: "ensure schema", Err: err}
	}

	defer observe("postgres", "insert", time.Now())
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO sentiment_analysis (
			message_id, user_name, message, sentiment, justification, emotion, urgency, is_reply, replied_to_user
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (message_id) DO NOTHING
	`, a.MessageID, a.UserName, a.Message, a.Sentiment, a.Justification, a.Emotion, a.Urgency, a.IsReply, a.RepliedToUser)
	if err != nil {
		return false, &PersistenceError{Op: "insert", Err: err}
	}
	return tag.RowsAffected() == 1, nil
}

// GetAnalysis retrieves an analysis by message ID.
func (s *PostgresStore) GetAnalysis(ctx context.Context, messageID string) (*models.Analysis, error) {
	a := &models.Analysis{}
	var createdAt *time.Time
	var isReply *bool
	err := s.pool.QueryRow(ctx, `
		SELECT message_id, COALESCE(user_name, ''), COALESCE(message, ''), COALESCE(sentiment, ''),
			COALESCE(justification, ''), COALESCE(emotion, ''), COALESCE(urgency, ''),
			is_reply, replied_to_user, created_at
		FROM sentiment_analysis WHERE message_id = $1
	`, messageID).Scan(
		&a.MessageID,
		&a.UserName,
		&a.Message,
		&a.Sentiment,
		&a.Justification,
		&a.Emotion,
		&a.Urgency,
		&isReply,
		&a.RepliedToUser,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if isReply != nil {
		a.IsReply = *isReply
	}
	if createdAt != nil {
		a.CreatedAt = *createdAt
	}
	return a, nil
}

// RecentAnalyses returns the newest analyses first.
func (s *PostgresStore) RecentAnalyses(ctx context.Context, limit int) ([]models.RecentAnalysis, error) {
	defer observe("postgres", "recent", time.Now())

	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	rows, err := s.pool.Query(ctx, `
		SELECT created_at, COALESCE(sentiment, ''), COALESCE(emotion, ''), COALESCE(user_name, ''), COALESCE(message, '')
		FROM sentiment_analysis
		ORDER BY created_at DESC NULLS LAST, message_id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	analyses := make([]models.RecentAnalysis, 0, limit)
	for rows.Next() {
		var r models.RecentAnalysis
		var createdAt *time.Time
		if err := rows.Scan(&createdAt, &r.Sentiment, &r.Emotion, &r.UserName, &r.Message); err != nil {
			return nil, err
		}
		if createdAt != nil {
			r.CreatedAt = *createdAt
		}
		analyses = append(analyses, r)
	}
	return analyses, rows.Err()
}

// CountAnalyses returns the number of stored analyses.
func (s *PostgresStore) CountAnalyses(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sentiment_analysis`).Scan(&count)
	return count, err
}

// SentimentCounts returns the number of analyses per primary sentiment.
func (s *PostgresStore) SentimentCounts(ctx context.Context) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx, `
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
func (s *PostgresStore) GetMostRecentActivity(ctx context.Context) (*time.Time, error) {
	var t *time.Time
	err := s.pool.QueryRow(ctx, `SELECT MAX(created_at) FROM sentiment_analysis`).Scan(&t)
	if err != nil {
		return nil, err
	}
	return t, nil
}
