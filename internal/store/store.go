package store

import (
	"context"
	"fmt"
	"time"

	"github.com/eldtechnologies/chatmood/internal/metrics"
	"github.com/eldtechnologies/chatmood/internal/models"
)

// TableName is the destination table for classified messages.
const TableName = "sentiment_analysis"

// DefaultRecentLimit is used when RecentAnalyses is called without a limit.
const DefaultRecentLimit = 100

// DataStore defines the interface for persistent storage of analyses.
// Both PostgresStore and SQLiteStore implement this interface.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Schema
	EnsureSchema(ctx context.Context) error

	// Writes. SaveAnalysis ensures the schema first and reports false when a
	// row with the same message id already exists.
	SaveAnalysis(ctx context.Context, a *models.Analysis) (bool, error)

	// Reads
	GetAnalysis(ctx context.Context, messageID string) (*models.Analysis, error)
	RecentAnalyses(ctx context.Context, limit int) ([]models.RecentAnalysis, error)
	CountAnalyses(ctx context.Context) (int64, error)
	SentimentCounts(ctx context.Context) (map[string]int64, error)
	GetMostRecentActivity(ctx context.Context) (*time.Time, error)
}

// PersistenceError wraps any database failure during schema ensure or insert.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// column is a column added after the table's first release.
type column struct {
	name       string
	definition string
}

// evolvingColumns are added when missing, in order.
var evolvingColumns = []column{
	{"is_reply", "BOOLEAN DEFAULT FALSE"},
	{"replied_to_user", "TEXT"},
	{"created_at", "TIMESTAMP DEFAULT CURRENT_TIMESTAMP"},
}

const createTableSQL = `
	CREATE TABLE IF NOT EXISTS sentiment_analysis (
		message_id TEXT PRIMARY KEY,
		user_name TEXT,
		message TEXT,
		sentiment TEXT,
		justification TEXT,
		emotion TEXT,
		urgency TEXT,
		is_reply BOOLEAN DEFAULT FALSE,
		replied_to_user TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)
`

// missingColumns returns the evolving columns absent from existing.
func missingColumns(existing map[string]bool) []column {
	var missing []column
	for _, c := range evolvingColumns {
		if !existing[c.name] {
			missing = append(missing, c)
		}
	}
	return missing
}

// foldSentiments merges raw sentiment counts by primary sentiment.
func foldSentiments(raw map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(raw))
	for sentiment, n := range raw {
		primary := models.PrimarySentiment(sentiment)
		if primary == "" {
			primary = "Unknown"
		}
		out[primary] += n
	}
	return out
}

// observe records the latency of a store operation.
func observe(driver, op string, start time.Time) {
	metrics.StoreLatency.WithLabelValues(driver, op).Observe(time.Since(start).Seconds())
}
