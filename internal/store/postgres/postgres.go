package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/xprocd/xproc/internal/store"
)

// DB implements store.Store on PostgreSQL via the pgx stdlib driver.
type DB struct {
	db *sql.DB
}

func New(dsn string) (*DB, error) {
	d, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &DB{db: d}, nil
}

func (s *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS launch_history(
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			pid INTEGER NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			stopped_at TIMESTAMPTZ NULL,
			running BOOLEAN NOT NULL,
			outcome TEXT NULL,
			updated_at TIMESTAMPTZ NOT NULL
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
		UPDATE launch_history SET running=FALSE, outcome='superseded', updated_at=$1
		WHERE name=$2 AND running=TRUE;`, now, name)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO launch_history(name, pid, started_at, stopped_at, running, outcome, updated_at)
		VALUES($1, $2, $3, NULL, TRUE, NULL, $4);`,
		name, pid, startedAt.UTC(), now)
	return err
}

func (s *DB) RecordTermination(ctx context.Context, name string, outcome string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE launch_history
		SET running=FALSE, stopped_at=$1, outcome=$2, updated_at=$3
		WHERE id = (
			SELECT id FROM launch_history WHERE name=$4 ORDER BY started_at DESC LIMIT 1
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
		WHERE name=$1
		ORDER BY started_at DESC
		LIMIT $2;`, name, limit)
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
		WHERE running=TRUE
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
