// Package store persists launch history for tracked processes. The control
// directory remains the source of truth for liveness; the store is an
// append-style record of what was launched and how it ended.
package store

import (
	"context"
	"database/sql"
	"time"
)

// Record is one launch of a named process.
type Record struct {
	ID        int64
	Name      string
	PID       int
	StartedAt time.Time
	StoppedAt sql.NullTime
	Outcome   sql.NullString // termination outcome, e.g. "terminated"
	Running   bool
	UpdatedAt time.Time
}

// Store is the persistence interface for launch history.
type Store interface {
	EnsureSchema(ctx context.Context) error
	// RecordLaunch inserts a running row for the launch, marking any prior
	// running row for the same name as superseded.
	RecordLaunch(ctx context.Context, name string, pid int, startedAt time.Time) error
	// RecordTermination closes the latest row for name with the outcome.
	RecordTermination(ctx context.Context, name string, outcome string, at time.Time) error
	GetByName(ctx context.Context, name string, limit int) ([]Record, error)
	GetRunning(ctx context.Context) ([]Record, error)
	Close() error
}
