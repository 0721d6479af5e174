// Package xproc supervises external helper processes for test suites and
// other harnesses. A named process is ensured exactly once per control
// root: repeated Ensure calls reuse a live instance, relaunch a dead one,
// and block until a readiness strategy confirms the process is usable.
// PID and log state live in per-process control directories so tracked
// processes survive the supervising program itself.
package xproc

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xprocd/xproc/internal/config"
	"github.com/xprocd/xproc/internal/metrics"
	"github.com/xprocd/xproc/internal/proc"
	"github.com/xprocd/xproc/internal/ready"
	"github.com/xprocd/xproc/internal/server"
	"github.com/xprocd/xproc/internal/store"
	"github.com/xprocd/xproc/internal/store/factory"
	"github.com/xprocd/xproc/internal/supervisor"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type State = proc.State

type TermResult = proc.TermResult

const (
	TermNoOp       = proc.TermNoOp
	TermTerminated = proc.TermTerminated
	TermSurvived   = proc.TermSurvived
	TermFailed     = proc.TermFailed
)

type Strategy = ready.Strategy

type PatternStarter = ready.PatternStarter

type CallbackStarter = ready.CallbackStarter

type StrategyContext = supervisor.StrategyContext

type StrategyFactory = supervisor.StrategyFactory

type StartupError = supervisor.StartupError

type StatusRow = supervisor.StatusRow

type TermEntry = supervisor.TermEntry

type TermSummary = supervisor.TermSummary

type Session = supervisor.Session

type Option = supervisor.Option

type FileConfig = config.FileConfig

type ProcDef = config.ProcDef

type HistoryStore = store.Store

type HistoryRecord = store.Record

// Supervisor is a thin facade over internal/supervisor.Supervisor.
// It provides a stable public API for embedding.

type Supervisor struct{ inner *supervisor.Supervisor }

// New creates a supervisor over the control root directory.
func New(root string, opts ...Option) (*Supervisor, error) {
	s, err := supervisor.New(root, opts...)
	if err != nil {
		return nil, err
	}
	return &Supervisor{inner: s}, nil
}

// NewSession builds an empty caller-owned log-handle registry.
func NewSession() *Session { return supervisor.NewSession() }

func WithLogger(l *slog.Logger) Option  { return supervisor.WithLogger(l) }
func WithSession(sess *Session) Option  { return supervisor.WithSession(sess) }
func WithStore(st HistoryStore) Option  { return supervisor.WithStore(st) }
func WithGlobalEnv(kvs []string) Option { return supervisor.WithGlobalEnv(kvs) }

func (s *Supervisor) Root() string      { return s.inner.Root() }
func (s *Supervisor) Session() *Session { return s.inner.Session() }

// Ensure launches name if it is not already live and ready, blocking until
// the strategy confirms readiness. It returns the pid and log path.
func (s *Supervisor) Ensure(ctx context.Context, name string, f StrategyFactory, restart bool) (int, string, error) {
	return s.inner.Ensure(ctx, name, f, restart)
}

func (s *Supervisor) List() ([]*State, error)         { return s.inner.List() }
func (s *Supervisor) StatusAll() ([]StatusRow, error) { return s.inner.StatusAll() }
func (s *Supervisor) Terminate(ctx context.Context, name string) (TermResult, error) {
	return s.inner.Terminate(ctx, name)
}
func (s *Supervisor) TerminateAll(ctx context.Context) (TermSummary, error) {
	return s.inner.TerminateAll(ctx)
}

// LoadConfig reads and validates a TOML config file.
func LoadConfig(path string) (*FileConfig, error) { return config.Load(path) }

// NewHistoryStore opens a launch-history store from a DSN
// (postgres://..., sqlite://path, or a bare sqlite path).
func NewHistoryStore(dsn string) (HistoryStore, error) { return factory.NewFromDSN(dsn) }

// NewHTTPServer starts an HTTP server exposing the supervisor API.
func NewHTTPServer(addr, basePath string, s *Supervisor, hist HistoryStore) (*http.Server, error) {
	return server.NewServer(addr, basePath, s.inner, hist)
}

// NewHTTPHandler returns the supervisor API as a mountable http.Handler.
func NewHTTPHandler(basePath string, s *Supervisor, hist HistoryStore) http.Handler {
	return server.NewRouter(s.inner, hist, basePath).Handler()
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// MetricsHandler exposes the default registry for mounting at /metrics.
func MetricsHandler() http.Handler { return metrics.Handler() }
