// Package supervisor orchestrates tracked external processes: it decides
// whether a named process is reused, restarted, or launched fresh, blocks
// on its readiness strategy, and terminates tracked entries on demand.
package supervisor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/xprocd/xproc/internal/env"
	"github.com/xprocd/xproc/internal/metrics"
	"github.com/xprocd/xproc/internal/proc"
	"github.com/xprocd/xproc/internal/ready"
	"github.com/xprocd/xproc/internal/store"
)

// StrategyContext is handed to a StrategyFactory so the strategy can do
// per-launch setup (allocate a port, write a config file) inside the
// control directory before exposing its launch arguments.
type StrategyContext struct {
	Name       string
	ControlDir string
	Supervisor *Supervisor
}

// StrategyFactory builds a fresh strategy for one launch.
type StrategyFactory func(sc StrategyContext) (ready.Strategy, error)

// Supervisor owns a control root directory. Each immediate subdirectory is
// a tracked process name.
type Supervisor struct {
	root    string
	log     *slog.Logger
	session *Session
	hist    store.Store
	handle  proc.Handle
	envM    *env.Env
}

type Option func(*Supervisor)

// WithLogger sets the supervisor's structured logger.
func WithLogger(l *slog.Logger) Option { return func(s *Supervisor) { s.log = l } }

// WithSession attaches the caller-owned log-handle registry.
func WithSession(sess *Session) Option { return func(s *Supervisor) { s.session = sess } }

// WithStore records launch history to st. Best-effort: store errors are
// logged, never surfaced to Ensure callers.
func WithStore(st store.Store) Option { return func(s *Supervisor) { s.hist = st } }

// WithHandle overrides the OS process handle, for tests.
func WithHandle(h proc.Handle) Option { return func(s *Supervisor) { s.handle = h } }

// WithGlobalEnv adds supervisor-wide "K=V" environment overrides applied
// under every strategy's own environment.
func WithGlobalEnv(kvs []string) Option { return func(s *Supervisor) { s.envM.SetAll(kvs) } }

// New creates a supervisor over root, creating the directory if needed.
func New(root string, opts ...Option) (*Supervisor, error) {
	if root == "" {
		return nil, fmt.Errorf("empty control root")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("creating control root: %w", err)
	}
	s := &Supervisor{
		root:   root,
		log:    slog.Default(),
		handle: proc.OS(),
		envM:   env.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the control root directory.
func (s *Supervisor) Root() string { return s.root }

// Session returns the attached log-handle registry, or nil.
func (s *Supervisor) Session() *Session { return s.session }

// Ensure returns the pid and log path of a running, ready process for name,
// launching it if needed. With restart false a live prior process is reused
// as-is and its log handle is positioned at end-of-file; otherwise any live
// prior process is terminated first and the readiness strategy decides when
// the fresh one is usable.
//
// On a readiness failure the spawned child is left running and a
// *StartupError is returned; cleanup is the caller's call.
func (s *Supervisor) Ensure(ctx context.Context, name string, factory StrategyFactory, restart bool) (int, string, error) {
	if !validName(name) {
		return 0, "", fmt.Errorf("invalid process name %q", name)
	}
	metrics.IncEnsure(name)

	fl, err := acquireLock(ctx, filepath.Join(s.root, name+".lock"))
	if err != nil {
		return 0, "", err
	}
	defer releaseLock(s.log, fl)

	st, err := proc.LoadWithHandle(s.root, name, s.handle)
	if err != nil {
		return 0, "", fmt.Errorf("loading state for %s: %w", name, err)
	}

	if !restart && !st.IsAlive() {
		restart = true
	}

	var logf *os.File
	if restart {
		if st.PID != 0 {
			res := st.Terminate()
			s.log.Debug("terminated prior process", "name", name, "pid", st.PID, "result", res.String())
			s.recordTermination(ctx, name, res)
		}
		strategy, err := factory(StrategyContext{Name: name, ControlDir: st.ControlDir, Supervisor: s})
		if err != nil {
			return 0, "", fmt.Errorf("building strategy for %s: %w", name, err)
		}
		if err := ready.Validate(strategy); err != nil {
			return 0, "", fmt.Errorf("strategy for %s: %w", name, err)
		}
		pid, err := s.launch(st, strategy)
		if err != nil {
			return 0, "", fmt.Errorf("launching %s: %w", name, err)
		}
		metrics.IncLaunch(name)
		s.recordLaunch(ctx, name, pid)
		s.log.Debug("process started", "name", name, "pid", pid, "dir", st.ControlDir)

		logf, err = os.Open(st.LogPath)
		if err != nil {
			return 0, "", fmt.Errorf("opening log for %s: %w", name, err)
		}
		waitStart := time.Now()
		if !strategy.Wait(logf) {
			_ = logf.Close()
			metrics.IncStartupFailure(name)
			return 0, "", &StartupError{Name: name}
		}
		metrics.ObserveReadyWait(name, time.Since(waitStart).Seconds())
		s.log.Debug("process startup detected", "name", name, "pid", pid)
	} else {
		metrics.IncReuse(name)
		logf, err = os.Open(st.LogPath)
		if err != nil {
			return 0, "", fmt.Errorf("opening log for %s: %w", name, err)
		}
		// Historical output is not replayed for a known-alive process.
		if _, err := logf.Seek(0, io.SeekEnd); err != nil {
			_ = logf.Close()
			return 0, "", fmt.Errorf("seeking log for %s: %w", name, err)
		}
		s.log.Debug("reusing live process", "name", name, "pid", st.PID)
	}

	if s.session != nil {
		s.session.attach(name, logf)
	} else {
		_ = logf.Close()
	}
	return st.PID, st.LogPath, nil
}

// List returns the tracked entries under the control root, one per
// immediate subdirectory, re-enumerated fresh on each call.
func (s *Supervisor) List() ([]*proc.State, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	out := make([]*proc.State, 0, len(names))
	for _, name := range names {
		st, err := proc.LoadWithHandle(s.root, name, s.handle)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// StatusRow is one entry of StatusAll.
type StatusRow struct {
	Name    string `json:"name"`
	PID     int    `json:"pid"`
	Live    bool   `json:"live"`
	LogPath string `json:"log_path"`
}

// StatusAll reports per-entry liveness. Pure read; an entry mid-launch may
// be observed with a pid but not yet confirmed ready.
func (s *Supervisor) StatusAll() ([]StatusRow, error) {
	states, err := s.List()
	if err != nil {
		return nil, err
	}
	rows := make([]StatusRow, 0, len(states))
	for _, st := range states {
		rows = append(rows, StatusRow{
			Name:    st.Name,
			PID:     st.PID,
			Live:    st.IsAlive(),
			LogPath: st.LogPath,
		})
	}
	return rows, nil
}

// TermEntry is one entry of a TerminateAll summary.
type TermEntry struct {
	Name   string          `json:"name"`
	PID    int             `json:"pid"`
	Result proc.TermResult `json:"-"`
	// Outcome mirrors Result for JSON consumers.
	Outcome string `json:"outcome"`
}

// TermSummary aggregates per-entry termination outcomes.
type TermSummary struct {
	Entries []TermEntry `json:"entries"`
}

// Terminated reports whether at least one entry was actually terminated.
func (sum TermSummary) Terminated() bool {
	for _, e := range sum.Entries {
		if e.Result == proc.TermTerminated {
			return true
		}
	}
	return false
}

// Terminate stops the named tracked entry with the default escalating
// budget. Unknown names are an error; a dead entry is a TermNoOp.
func (s *Supervisor) Terminate(ctx context.Context, name string) (proc.TermResult, error) {
	if !validName(name) {
		return proc.TermNoOp, fmt.Errorf("invalid process name %q", name)
	}
	if _, err := os.Stat(filepath.Join(s.root, name)); err != nil {
		return proc.TermNoOp, fmt.Errorf("unknown process: %s", name)
	}
	st, err := proc.LoadWithHandle(s.root, name, s.handle)
	if err != nil {
		return proc.TermNoOp, err
	}
	res := st.Terminate()
	s.recordTermination(ctx, name, res)
	metrics.IncTermination(name, res.String())
	return res, nil
}

// TerminateAll terminates every tracked entry, collecting per-entry
// outcomes. Individual failures never abort the batch.
func (s *Supervisor) TerminateAll(ctx context.Context) (TermSummary, error) {
	states, err := s.List()
	if err != nil {
		return TermSummary{}, err
	}
	sum := TermSummary{Entries: make([]TermEntry, 0, len(states))}
	for _, st := range states {
		res := st.Terminate()
		s.recordTermination(ctx, st.Name, res)
		metrics.IncTermination(st.Name, res.String())
		sum.Entries = append(sum.Entries, TermEntry{
			Name:    st.Name,
			PID:     st.PID,
			Result:  res,
			Outcome: res.String(),
		})
	}
	return sum, nil
}

// validName rejects names that would escape the control root when used as
// a directory name. Allowed: A-Z a-z 0-9 . _ - with no "..".
func validName(s string) bool {
	if s == "" || strings.Contains(s, "..") {
		return false
	}
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '_' || r == '-' {
			continue
		}
		return false
	}
	return true
}

func (s *Supervisor) recordLaunch(ctx context.Context, name string, pid int) {
	if s.hist == nil {
		return
	}
	if err := s.hist.RecordLaunch(ctx, name, pid, time.Now()); err != nil {
		s.log.Warn("recording launch history failed", "name", name, "err", err)
	}
}

func (s *Supervisor) recordTermination(ctx context.Context, name string, res proc.TermResult) {
	if s.hist == nil || res == proc.TermNoOp {
		return
	}
	if err := s.hist.RecordTermination(ctx, name, res.String(), time.Now()); err != nil {
		s.log.Warn("recording termination history failed", "name", name, "err", err)
	}
}
