package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/xprocd/xproc/internal/store"
)

// DB implements store.Store on SQLite (modernc.org/sqlite, CGO-free).
// Path is a filesystem path; use ":memory:" for an in-memory store.
type DB struct {
	db *sql.DB
}

func New(path string) (*DB, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// busy timeout helps with short concurrent locks
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	return &DB{db: d}, nil
}

func (s *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS launch_history(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			pid INTEGER NOT NULL,
			started_at TIMESTAMP NOT NULL,
			stopped_at TIMESTAMP NULL,
			running BOOLEAN NOT NULL,
			outcome TEXT NULL,
			updated_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_launch_history_name ON launch_history(name);`,
		`CREATE INDEX IF NOT EXISTS idx_launch_history_running ON launch_history(running);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *DB) Close() error { return s.db.Close() }

func (s *DB) RecordLaunch(ctx context.Context, name string, pid int, startedAt time.Time) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		UPDATE launch_history SET running=0, outcome='superseded', updated_at=?
		WHERE name=? AND running=1;`, now, name)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO launch_history(name, pid, started_at, stopped_at, running, outcome, updated_at)
		VALUES(?, ?, ?, NULL, 1, NULL, ?);`,
		name, pid, startedAt.UTC(), now)
	return err
}

func (s *DB) RecordTermination(ctx context.Context, name string, outcome string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE launch_history
		SET running=0, stopped_at=?, outcome=?, updated_at=?
		WHERE id IN (
			SELECT id FROM launch_history WHERE name=? ORDER BY started_at DESC LIMIT 1
		);`,
		at.UTC(), outcome, time.Now().UTC(), name)
	return err
}

func (s *DB) GetByName(ctx context.Context, name string, limit int) ([]store.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, pid, started_at, stopped_at, running, outcome, updated_at
		FROM launch_history
		WHERE name=?
		ORDER BY started_at DESC
		LIMIT ?;`, name, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanRecords(rows)
}

func (s *DB) GetRunning(ctx context.Context) ([]store.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, pid, started_at, stopped_at, running, outcome, updated_at
		FROM launch_history
		WHERE running=1
		ORDER BY updated_at DESC;`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]store.Record, error) {
	out := make([]store.Record, 0)
	for rows.Next() {
		var r store.Record
		if err := rows.Scan(&r.ID, &r.Name, &r.PID, &r.StartedAt, &r.StoppedAt, &r.Running, &r.Outcome, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
