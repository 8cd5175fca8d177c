package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
  id TEXT PRIMARY KEY,
  spec TEXT NOT NULL,
  model TEXT NOT NULL DEFAULT '',
  passed BOOLEAN NOT NULL DEFAULT FALSE,
  attempts INTEGER NOT NULL DEFAULT 0,
  started_at BIGINT NOT NULL,
  finished_at BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs (started_at);

CREATE TABLE IF NOT EXISTS attempts (
  run_id TEXT NOT NULL,
  idx INTEGER NOT NULL,
  outcome TEXT NOT NULL,
  diagnostic TEXT NOT NULL DEFAULT '',
  duration_ms BIGINT NOT NULL DEFAULT 0,
  at BIGINT NOT NULL,
  PRIMARY KEY (run_id, idx)
);
`

// SQLStore backs history with SQLite or PostgreSQL through database/sql.
type SQLStore struct {
	db       *sql.DB
	postgres bool

	schemaOnce sync.Once
	schemaErr  error

	attemptCache *lru.Cache[string, []Attempt]
}

func NewSQLite(path string) (*SQLStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	return newSQLStore(db, false)
}

func NewPostgres(dsn string) (*SQLStore, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return newSQLStore(db, true)
}

func newSQLStore(db *sql.DB, postgres bool) (*SQLStore, error) {
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	cache, err := lru.New[string, []Attempt](128)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s := &SQLStore{db: db, postgres: postgres, attemptCache: cache}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLStore) ensureSchema(ctx context.Context) error {
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.ExecContext(ctx, schema)
	})
	return s.schemaErr
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) StartRun(ctx context.Context, run Run) error {
	if strings.TrimSpace(run.ID) == "" {
		return fmt.Errorf("run id is required")
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
INSERT INTO runs (id, spec, model, passed, attempts, started_at, finished_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET spec = excluded.spec, model = excluded.model`),
		run.ID, run.Spec, run.Model, run.Passed, run.Attempts, toMillis(run.StartedAt), toMillis(run.FinishedAt))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *SQLStore) AddAttempt(ctx context.Context, a Attempt) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
INSERT INTO attempts (run_id, idx, outcome, diagnostic, duration_ms, at)
VALUES (?, ?, ?, ?, ?, ?)`),
		a.RunID, a.Index, a.Outcome, a.Diagnostic, a.Duration.Milliseconds(), toMillis(a.At))
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	s.attemptCache.Remove(a.RunID)
	return nil
}

func (s *SQLStore) FinishRun(ctx context.Context, runID string, passed bool, attempts int, at time.Time) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE runs SET passed = ?, attempts = ?, finished_at = ? WHERE id = ?`),
		passed, attempts, toMillis(at), runID)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`
SELECT id, spec, model, passed, attempts, started_at, finished_at
FROM runs ORDER BY started_at DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r                   Run
			started, finishedAt int64
		)
		if err := rows.Scan(&r.ID, &r.Spec, &r.Model, &r.Passed, &r.Attempts, &started, &finishedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = fromMillis(started)
		r.FinishedAt = fromMillis(finishedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStore) Attempts(ctx context.Context, runID string) ([]Attempt, error) {
	if cached, ok := s.attemptCache.Get(runID); ok {
		return cached, nil
	}

	var exists int
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM runs WHERE id = ?`), runID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	if exists == 0 {
		return nil, ErrNotFound
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(`
SELECT run_id, idx, outcome, diagnostic, duration_ms, at
FROM attempts WHERE run_id = ? ORDER BY idx`), runID)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var (
			a          Attempt
			durationMS int64
			at         int64
		)
		if err := rows.Scan(&a.RunID, &a.Index, &a.Outcome, &a.Diagnostic, &durationMS, &at); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.Duration = time.Duration(durationMS) * time.Millisecond
		a.At = fromMillis(at)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	s.attemptCache.Add(runID, out)
	return out, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
