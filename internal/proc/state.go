package proc

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Canonical artifact names inside a control directory.
const (
	LogFileName = "xprocess.log"
	PIDFileName = "xprocess.PID"
)

// State is the persisted identity of one tracked process: its control
// directory plus the PID and log files inside it. The cached PID reflects
// the pidfile at load time; liveness must be re-verified through the Handle
// before being trusted.
type State struct {
	Name       string
	ControlDir string
	LogPath    string
	PIDPath    string

	// PID is 0 when no pidfile was present at load time.
	PID int

	handle Handle
}

// Load builds the State for name under root, creating the control directory
// if needed. A missing pidfile is not an error: it means the process was
// never launched (or its state was discarded).
func Load(root, name string) (*State, error) {
	return LoadWithHandle(root, name, OS())
}

// LoadWithHandle is Load with an explicit process handle, for tests.
func LoadWithHandle(root, name string, h Handle) (*State, error) {
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}
	st := &State{
		Name:       name,
		ControlDir: dir,
		LogPath:    filepath.Join(dir, LogFileName),
		PIDPath:    filepath.Join(dir, PIDFileName),
		handle:     h,
	}
	if pid, err := readPIDFile(st.PIDPath); err == nil {
		st.PID = pid
	}
	return st, nil
}

// IsAlive reports whether the recorded PID refers to a live process.
func (s *State) IsAlive() bool {
	if s.PID <= 0 {
		return false
	}
	return s.handle.IsRunning(s.PID)
}

// Terminate stops the recorded process with the default escalating budget.
// A dead or never-launched entry is a TermNoOp, not an error.
func (s *State) Terminate() TermResult {
	return s.TerminateWithin(DefaultTerminateTimeout)
}

// TerminateWithin is Terminate with an explicit total budget. The
// graceful/forceful split is preserved by the handle.
func (s *State) TerminateWithin(timeout time.Duration) TermResult {
	if !s.IsAlive() {
		return TermNoOp
	}
	return s.handle.Terminate(s.PID, timeout)
}

// RecordLaunch persists pid to the pidfile, overwriting any prior entry,
// and updates the in-memory cache.
func (s *State) RecordLaunch(pid int) error {
	if err := os.WriteFile(s.PIDPath, []byte(strconv.Itoa(pid)), 0o600); err != nil {
		return err
	}
	s.PID = pid
	return nil
}

func readPIDFile(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	first, _, _ := strings.Cut(string(b), "\n")
	return strconv.Atoi(strings.TrimSpace(first))
}
