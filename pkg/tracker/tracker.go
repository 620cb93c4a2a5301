// Package tracker records sprint progress in SQLite so humans and
// other tooling can see where each story stands. Tracker updates are
// advisory: the workflow treats write failures as non-fatal.
package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"autodev/pkg/logx"
)

// Story statuses, in the order a healthy story moves through them.
const (
	StatusPending    = "pending"
	StatusInProgress = "in-progress"
	StatusReview     = "review"
	StatusDone       = "done"
	StatusFailed     = "failed"
	StatusEscalated  = "escalated"
)

var validStatuses = map[string]bool{
	StatusPending:    true,
	StatusInProgress: true,
	StatusReview:     true,
	StatusDone:       true,
	StatusFailed:     true,
	StatusEscalated:  true,
}

// Record is one story's tracked state.
type Record struct {
	StoryID   string    `json:"story_id"`
	Status    string    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

const schema = `
CREATE TABLE IF NOT EXISTS sprint_status (
	story_id   TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	detail     TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMP NOT NULL
);`

// Tracker stores sprint status in a SQLite database.
type Tracker struct {
	db     *sql.DB
	logger *logx.Logger
}

// Open opens (and creates if needed) the tracker database at dbPath.
// Use ":memory:" for tests.
func Open(dbPath string) (*Tracker, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", dbPath)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open tracker database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping tracker database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize tracker schema: %w", err)
	}

	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &Tracker{db: db, logger: logx.NewLogger("tracker")}, nil
}

// Close closes the database connection.
func (t *Tracker) Close() error {
	if err := t.db.Close(); err != nil {
		return fmt.Errorf("failed to close tracker database: %w", err)
	}
	return nil
}

// UpdateStatus upserts the story's status.
func (t *Tracker) UpdateStatus(ctx context.Context, storyID, status, detail string) error {
	if storyID == "" {
		return fmt.Errorf("story id cannot be empty")
	}
	if !validStatuses[status] {
		return fmt.Errorf("unknown status %q", status)
	}

	_, err := t.db.ExecContext(ctx, `
		INSERT INTO sprint_status (story_id, status, detail, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(story_id) DO UPDATE SET
			status = excluded.status,
			detail = excluded.detail,
			updated_at = excluded.updated_at`,
		storyID, status, detail, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update status for story %s: %w", storyID, err)
	}

	t.logger.Debug("Story %s -> %s", storyID, status)
	return nil
}

// GetStatus returns the story's record, or (nil, nil) if untracked.
func (t *Tracker) GetStatus(ctx context.Context, storyID string) (*Record, error) {
	row := t.db.QueryRowContext(ctx, `
		SELECT story_id, status, detail, updated_at
		FROM sprint_status WHERE story_id = ?`, storyID)

	var rec Record
	err := row.Scan(&rec.StoryID, &rec.Status, &rec.Detail, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get status for story %s: %w", storyID, err)
	}
	return &rec, nil
}

// List returns all tracked stories, most recently updated first. When
// status is non-empty only stories in that status are returned.
func (t *Tracker) List(ctx context.Context, status string) ([]Record, error) {
	query := `SELECT story_id, status, detail, updated_at FROM sprint_status`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracked stories: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.StoryID, &rec.Status, &rec.Detail, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tracker row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tracker rows: %w", err)
	}
	return records, nil
}
