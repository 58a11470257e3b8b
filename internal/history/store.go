// Package history records the outcome of each user's sync in SQLite.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vmunix/watchsync/internal/migrations"
)

// Run is one user's pass within a sync run.
type Run struct {
	ID              int64
	RunID           string
	Username        string
	WatermarkBefore string
	WatermarkAfter  string
	Scraped         int
	Added           int
	Enqueued        int
	Removed         int
	Complete        bool
	Phase           string // phase reached, or the phase that failed
	Error           string
	StartedAt       time.Time
	FinishedAt      time.Time
}

// Failed reports whether the run ended in an error.
func (r *Run) Failed() bool {
	return r.Error != ""
}

// Filter specifies criteria for listing runs.
type Filter struct {
	Username string
	RunID    string
	Limit    int
}

// Store persists sync runs.
type Store struct {
	db *sql.DB
}

// NewStore creates a store on an open database. The schema must already be
// applied.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens (creating if needed) the database at path and applies the
// schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewStore(db), nil
}

// Migrate applies the schema.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(migrations.InitialSQL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts r and sets its ID.
func (s *Store) Record(r *Run) error {
	result, err := s.db.Exec(`
		INSERT INTO sync_runs (run_id, username, watermark_before, watermark_after,
			scraped, added, enqueued, removed, complete, phase, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Username, r.WatermarkBefore, r.WatermarkAfter,
		r.Scraped, r.Added, r.Enqueued, r.Removed, r.Complete, r.Phase, r.Error,
		r.StartedAt.UTC(), r.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert sync run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	r.ID = id
	return nil
}

// List returns runs matching the filter, most recent first.
func (s *Store) List(f Filter) ([]*Run, error) {
	var conditions []string
	var args []any

	if f.Username != "" {
		conditions = append(conditions, "username = ?")
		args = append(args, f.Username)
	}
	if f.RunID != "" {
		conditions = append(conditions, "run_id = ?")
		args = append(args, f.RunID)
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := `SELECT id, run_id, username, watermark_before, watermark_after,
		scraped, added, enqueued, removed, complete, phase, error, started_at, finished_at
		FROM sync_runs ` + whereClause + ` ORDER BY started_at DESC, id DESC`

	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sync runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*Run
	for rows.Next() {
		r := &Run{}
		if err := rows.Scan(&r.ID, &r.RunID, &r.Username, &r.WatermarkBefore, &r.WatermarkAfter,
			&r.Scraped, &r.Added, &r.Enqueued, &r.Removed, &r.Complete, &r.Phase, &r.Error,
			&r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan sync run: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sync runs: %w", err)
	}

	return results, nil
}
