package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/Clean1ines/iXe/internal/models"
)

const problemsSchema = `
CREATE TABLE IF NOT EXISTS problems (
	problem_id  TEXT PRIMARY KEY,
	project_id  TEXT NOT NULL,
	page        TEXT NOT NULL,
	answer_type TEXT NOT NULL DEFAULT '',
	record      TEXT NOT NULL,
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_problems_project_page ON problems(project_id, page);
`

// SQLiteStore persists problems in a single-file SQLite database. The
// full record is stored as JSON alongside a few queryable columns, so
// the schema survives Problem shape growth without migrations.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (or creates) the database at path and ensures
// the schema exists.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// The scraper writes from one goroutine; a second connection only
	// invites SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(problemsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Exists reports whether the problem was already persisted.
func (s *SQLiteStore) Exists(ctx context.Context, problemID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM problems WHERE problem_id = ?`, problemID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", problemID, err)
	}
	return true, nil
}

// Save upserts the problem. Re-saving an existing id replaces the
// record, which keeps retried pages idempotent.
func (s *SQLiteStore) Save(ctx context.Context, p *models.Problem) error {
	record, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal problem %s: %w", p.ProblemID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO problems (problem_id, project_id, page, answer_type, record, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(problem_id) DO UPDATE SET
			record = excluded.record,
			answer_type = excluded.answer_type`,
		p.ProblemID, p.ProjectID, p.Page, p.AnswerType, string(record),
		p.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	)
	if err != nil {
		return fmt.Errorf("save problem %s: %w", p.ProblemID, err)
	}
	return nil
}

// CountByProject returns the number of persisted problems for a project.
func (s *SQLiteStore) CountByProject(ctx context.Context, projectID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM problems WHERE project_id = ?`, projectID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count project %s: %w", projectID, err)
	}
	return n, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
