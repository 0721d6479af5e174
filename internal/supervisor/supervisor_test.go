package supervisor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/xprocd/xproc/internal/proc"
	"github.com/xprocd/xproc/internal/ready"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("unix-only test")
	}
}

func newTestSupervisor(t *testing.T) (*Supervisor, *Session) {
	t.Helper()
	sess := NewSession()
	t.Cleanup(func() { _ = sess.Close() })
	sup, err := New(t.TempDir(), WithSession(sess))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return sup, sess
}

// shellFactory builds a pattern strategy around a shell script.
func shellFactory(script, pattern string) StrategyFactory {
	return func(sc StrategyContext) (ready.Strategy, error) {
		return &ready.PatternStarter{
			Args:         []string{"/bin/sh", "-c", script},
			Pattern:      pattern,
			Timeout:      10 * time.Second,
			PollInterval: 20 * time.Millisecond,
		}, nil
	}
}

func terminateAllOrFail(t *testing.T, sup *Supervisor) {
	t.Helper()
	if _, err := sup.TerminateAll(context.Background()); err != nil {
		t.Fatalf("TerminateAll: %v", err)
	}
}

func TestEnsureLaunchesFreshProcess(t *testing.T) {
	requireUnix(t)
	sup, sess := newTestSupervisor(t)
	t.Cleanup(func() { terminateAllOrFail(t, sup) })

	pid, logPath, err := sup.Ensure(context.Background(), "db", shellFactory("echo READY; exec sleep 60", "READY"), false)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if pid <= 0 {
		t.Fatalf("bad pid %d", pid)
	}
	if logPath != filepath.Join(sup.Root(), "db", proc.LogFileName) {
		t.Fatalf("unexpected log path %s", logPath)
	}
	if !proc.OS().IsRunning(pid) {
		t.Fatalf("pid %d not running after Ensure", pid)
	}
	if sess.Log("db") == nil {
		t.Fatalf("log handle not registered in session")
	}
	b, err := os.ReadFile(logPath)
	if err != nil || !strings.Contains(string(b), "READY") {
		t.Fatalf("log missing READY: %q err=%v", b, err)
	}
}

// For a name never seen before, restart=false and restart=true behave the
// same: the reuse check is vacuous and a launch happens either way.
func TestEnsureFreshNameIgnoresRestartFlag(t *testing.T) {
	requireUnix(t)
	sup, _ := newTestSupervisor(t)
	t.Cleanup(func() { terminateAllOrFail(t, sup) })

	pid, _, err := sup.Ensure(context.Background(), "a", shellFactory("echo READY; exec sleep 60", "READY"), false)
	if err != nil {
		t.Fatalf("Ensure restart=false: %v", err)
	}
	pid2, _, err := sup.Ensure(context.Background(), "b", shellFactory("echo READY; exec sleep 60", "READY"), true)
	if err != nil {
		t.Fatalf("Ensure restart=true: %v", err)
	}
	if pid <= 0 || pid2 <= 0 {
		t.Fatalf("bad pids %d %d", pid, pid2)
	}
}

func TestEnsureIsIdempotentWhileAlive(t *testing.T) {
	requireUnix(t)
	sup, _ := newTestSupervisor(t)
	t.Cleanup(func() { terminateAllOrFail(t, sup) })

	launches := 0
	factory := func(sc StrategyContext) (ready.Strategy, error) {
		launches++
		return &ready.PatternStarter{
			Args:         []string{"/bin/sh", "-c", "echo READY; exec sleep 60"},
			Pattern:      "READY",
			Timeout:      10 * time.Second,
			PollInterval: 20 * time.Millisecond,
		}, nil
	}

	pid1, _, err := sup.Ensure(context.Background(), "db", factory, false)
	if err != nil {
		t.Fatalf("first Ensure: %v", err)
	}
	pid2, _, err := sup.Ensure(context.Background(), "db", factory, false)
	if err != nil {
		t.Fatalf("second Ensure: %v", err)
	}
	if pid1 != pid2 {
		t.Fatalf("pids differ across reuse: %d vs %d", pid1, pid2)
	}
	if launches != 1 {
		t.Fatalf("strategy instantiated %d times, want 1", launches)
	}
}

func TestEnsureForcedRestartReplacesLiveProcess(t *testing.T) {
	requireUnix(t)
	sup, _ := newTestSupervisor(t)
	t.Cleanup(func() { terminateAllOrFail(t, sup) })

	factory := shellFactory("echo READY; exec sleep 60", "READY")
	pid1, _, err := sup.Ensure(context.Background(), "db", factory, false)
	if err != nil {
		t.Fatalf("first Ensure: %v", err)
	}
	pid2, _, err := sup.Ensure(context.Background(), "db", factory, true)
	if err != nil {
		t.Fatalf("restart Ensure: %v", err)
	}
	if pid1 == pid2 {
		t.Fatalf("restart returned the old pid %d", pid1)
	}
	h := proc.OS()
	if h.IsRunning(pid1) {
		t.Fatalf("old pid %d still running after forced restart", pid1)
	}
	if !h.IsRunning(pid2) {
		t.Fatalf("new pid %d not running", pid2)
	}
}

func TestEnsureRelaunchesDeadProcess(t *testing.T) {
	requireUnix(t)
	sup, _ := newTestSupervisor(t)
	t.Cleanup(func() { terminateAllOrFail(t, sup) })

	// First process exits right after becoming ready.
	pid1, _, err := sup.Ensure(context.Background(), "db", shellFactory("echo READY", "READY"), false)
	if err != nil {
		t.Fatalf("first Ensure: %v", err)
	}
	h := proc.OS()
	deadline := time.Now().Add(5 * time.Second)
	for h.IsRunning(pid1) && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}

	pid2, _, err := sup.Ensure(context.Background(), "db", shellFactory("echo READY; exec sleep 60", "READY"), false)
	if err != nil {
		t.Fatalf("second Ensure: %v", err)
	}
	if pid2 == pid1 {
		t.Fatalf("dead process was not relaunched")
	}
	if !h.IsRunning(pid2) {
		t.Fatalf("relaunched pid %d not running", pid2)
	}
}

func TestEnsureStartupFailureLeavesChildRunning(t *testing.T) {
	requireUnix(t)
	sup, _ := newTestSupervisor(t)
	t.Cleanup(func() { terminateAllOrFail(t, sup) })

	factory := func(sc StrategyContext) (ready.Strategy, error) {
		return &ready.PatternStarter{
			Args:         []string{"/bin/sh", "-c", "echo starting; exec sleep 60"},
			Pattern:      "NEVER-MATCHES",
			Timeout:      500 * time.Millisecond,
			PollInterval: 20 * time.Millisecond,
		}, nil
	}
	_, _, err := sup.Ensure(context.Background(), "slow", factory, false)
	var se *StartupError
	if !errors.As(err, &se) || se.Name != "slow" {
		t.Fatalf("expected StartupError for slow, got %v", err)
	}

	// Documented trade-off: the child is not auto-cleaned on startup failure.
	st, err := proc.Load(sup.Root(), "slow")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !st.IsAlive() {
		t.Fatalf("child was cleaned up on startup failure")
	}
}

func TestEnsureRejectsMalformedStrategyBeforeSpawn(t *testing.T) {
	sup, _ := newTestSupervisor(t)

	factory := func(sc StrategyContext) (ready.Strategy, error) {
		return &ready.PatternStarter{Pattern: "READY"}, nil
	}
	_, _, err := sup.Ensure(context.Background(), "bad", factory, false)
	if !errors.Is(err, ready.ErrNoLaunchArgs) {
		t.Fatalf("expected ErrNoLaunchArgs, got %v", err)
	}
	st, err := proc.Load(sup.Root(), "bad")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if st.PID != 0 {
		t.Fatalf("malformed strategy still launched pid %d", st.PID)
	}
}

func TestEnsureStrategyContextSeesControlDir(t *testing.T) {
	requireUnix(t)
	sup, _ := newTestSupervisor(t)
	t.Cleanup(func() { terminateAllOrFail(t, sup) })

	var gotDir string
	factory := func(sc StrategyContext) (ready.Strategy, error) {
		gotDir = sc.ControlDir
		// Per-launch setup: drop a config file next to the log.
		if err := os.WriteFile(filepath.Join(sc.ControlDir, "conf"), []byte("x"), 0o600); err != nil {
			return nil, err
		}
		return &ready.PatternStarter{
			Args:         []string{"/bin/sh", "-c", "cat conf; echo READY; exec sleep 60"},
			Pattern:      "READY",
			Timeout:      10 * time.Second,
			PollInterval: 20 * time.Millisecond,
		}, nil
	}
	if _, _, err := sup.Ensure(context.Background(), "cfg", factory, false); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if gotDir != filepath.Join(sup.Root(), "cfg") {
		t.Fatalf("strategy saw control dir %q", gotDir)
	}
}

func TestReuseLogHandleSeekedToEnd(t *testing.T) {
	requireUnix(t)
	sup, sess := newTestSupervisor(t)
	t.Cleanup(func() { terminateAllOrFail(t, sup) })

	script := "echo READY; sleep 2; echo AFTER-REUSE; exec sleep 60"
	factory := shellFactory(script, "READY")
	if _, _, err := sup.Ensure(context.Background(), "db", factory, false); err != nil {
		t.Fatalf("first Ensure: %v", err)
	}
	if _, _, err := sup.Ensure(context.Background(), "db", factory, false); err != nil {
		t.Fatalf("reuse Ensure: %v", err)
	}

	f := sess.Log("db")
	if f == nil {
		t.Fatalf("no session log handle")
	}
	var seen strings.Builder
	buf := make([]byte, 1024)
	deadline := time.Now().Add(8 * time.Second)
	for time.Now().Before(deadline) {
		n, _ := f.Read(buf)
		if n > 0 {
			seen.Write(buf[:n])
			if strings.Contains(seen.String(), "AFTER-REUSE") {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	out := seen.String()
	if !strings.Contains(out, "AFTER-REUSE") {
		t.Fatalf("new output not observed: %q", out)
	}
	if strings.Contains(out, "READY") {
		t.Fatalf("historical output replayed on reuse: %q", out)
	}
}

func TestEnsureRejectsBadNames(t *testing.T) {
	sup, _ := newTestSupervisor(t)
	for _, name := range []string{"", "../escape", "a/b", "a b", "x\x00y"} {
		if _, _, err := sup.Ensure(context.Background(), name, shellFactory("true", "x"), false); err == nil {
			t.Fatalf("name %q accepted", name)
		}
	}
	if _, err := sup.Terminate(context.Background(), "../escape"); err == nil {
		t.Fatalf("Terminate accepted a traversal name")
	}
}

func TestTerminateUnknownName(t *testing.T) {
	sup, _ := newTestSupervisor(t)
	if _, err := sup.Terminate(context.Background(), "ghost"); err == nil {
		t.Fatalf("unknown name accepted")
	}
}

func TestTerminateSingleEntry(t *testing.T) {
	requireUnix(t)
	sup, _ := newTestSupervisor(t)

	pid, _, err := sup.Ensure(context.Background(), "db", shellFactory("echo READY; exec sleep 60", "READY"), false)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	res, err := sup.Terminate(context.Background(), "db")
	if err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	if res != proc.TermTerminated {
		t.Fatalf("result = %v", res)
	}
	if proc.OS().IsRunning(pid) {
		t.Fatalf("pid %d still running", pid)
	}
	// A second terminate finds nothing to do.
	res, err = sup.Terminate(context.Background(), "db")
	if err != nil || res != proc.TermNoOp {
		t.Fatalf("repeat terminate: %v %v", res, err)
	}
}

func TestTerminateAllEmptyRoot(t *testing.T) {
	sup, _ := newTestSupervisor(t)
	sum, err := sup.TerminateAll(context.Background())
	if err != nil {
		t.Fatalf("TerminateAll: %v", err)
	}
	if len(sum.Entries) != 0 {
		t.Fatalf("entries on empty root: %+v", sum.Entries)
	}
	if sum.Terminated() {
		t.Fatalf("empty root reported as terminated")
	}
}

func TestTerminateAllMixedOutcomes(t *testing.T) {
	requireUnix(t)
	sup, _ := newTestSupervisor(t)

	if _, _, err := sup.Ensure(context.Background(), "live", shellFactory("echo READY; exec sleep 60", "READY"), false); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	// A tracked dir with no pidfile: never launched.
	if err := os.MkdirAll(filepath.Join(sup.Root(), "stale"), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	sum, err := sup.TerminateAll(context.Background())
	if err != nil {
		t.Fatalf("TerminateAll: %v", err)
	}
	if len(sum.Entries) != 2 {
		t.Fatalf("want 2 entries, got %+v", sum.Entries)
	}
	outcomes := map[string]proc.TermResult{}
	for _, e := range sum.Entries {
		outcomes[e.Name] = e.Result
	}
	if outcomes["live"] != proc.TermTerminated {
		t.Fatalf("live entry outcome = %v", outcomes["live"])
	}
	if outcomes["stale"] != proc.TermNoOp {
		t.Fatalf("stale entry outcome = %v", outcomes["stale"])
	}
	if !sum.Terminated() {
		t.Fatalf("summary should count as terminated")
	}
}

func TestStatusAllReportsLiveness(t *testing.T) {
	requireUnix(t)
	sup, _ := newTestSupervisor(t)
	t.Cleanup(func() { terminateAllOrFail(t, sup) })

	pid, _, err := sup.Ensure(context.Background(), "db", shellFactory("echo READY; exec sleep 60", "READY"), false)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(sup.Root(), "dead"), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	rows, err := sup.StatusAll()
	if err != nil {
		t.Fatalf("StatusAll: %v", err)
	}
	byName := map[string]StatusRow{}
	for _, r := range rows {
		byName[r.Name] = r
	}
	if r := byName["db"]; !r.Live || r.PID != pid {
		t.Fatalf("db row wrong: %+v", r)
	}
	if r := byName["dead"]; r.Live || r.PID != 0 {
		t.Fatalf("dead row wrong: %+v", r)
	}
}

func TestListRescansEachCall(t *testing.T) {
	sup, _ := newTestSupervisor(t)
	states, err := sup.List()
	if err != nil || len(states) != 0 {
		t.Fatalf("initial list: %v %v", states, err)
	}
	if err := os.MkdirAll(filepath.Join(sup.Root(), "newcomer"), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	states, err = sup.List()
	if err != nil || len(states) != 1 || states[0].Name != "newcomer" {
		t.Fatalf("list after mkdir: %+v %v", states, err)
	}
}

func TestSessionReplacesHandleOnRepeatEnsure(t *testing.T) {
	requireUnix(t)
	sup, sess := newTestSupervisor(t)
	t.Cleanup(func() { terminateAllOrFail(t, sup) })

	factory := shellFactory("echo READY; exec sleep 60", "READY")
	if _, _, err := sup.Ensure(context.Background(), "db", factory, false); err != nil {
		t.Fatalf("first Ensure: %v", err)
	}
	first := sess.Log("db")
	if _, _, err := sup.Ensure(context.Background(), "db", factory, true); err != nil {
		t.Fatalf("restart Ensure: %v", err)
	}
	second := sess.Log("db")
	if first == second {
		t.Fatalf("session handle not replaced on restart")
	}
	// The replaced handle must have been closed.
	if _, err := first.Read(make([]byte, 1)); err == nil {
		t.Fatalf("stale handle still readable")
	}
}
