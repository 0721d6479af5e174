package supervisor

import (
	"os"
	"os/exec"

	"github.com/xprocd/xproc/internal/proc"
	"github.com/xprocd/xproc/internal/ready"
)

// launch spawns the strategy's command with the control directory as its
// working directory and both output streams redirected to a truncated log
// file. The child is detached from the caller's signal group so an
// interactive interrupt to the test runner does not take the helper down
// with it.
func (s *Supervisor) launch(st *proc.State, strategy ready.Strategy) (int, error) {
	args := strategy.LaunchArgs()
	// #nosec G204 launching caller-supplied commands is this package's job
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = st.ControlDir
	if penv := strategy.Environment(); penv != nil || s.envM.HasOverrides() {
		cmd.Env = s.envM.Merge(penv)
	}
	detachSysProcAttr(cmd)

	logf, err := os.OpenFile(st.LogPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return 0, err
	}
	cmd.Stdout = logf
	cmd.Stderr = logf

	if err := cmd.Start(); err != nil {
		_ = logf.Close()
		return 0, err
	}
	pid := cmd.Process.Pid
	// The child owns its copy of the write end now.
	_ = logf.Close()

	if err := st.RecordLaunch(pid); err != nil {
		// The child is up but untracked; surface the error so the caller
		// knows the control directory is unusable.
		s.log.Error("recording launch failed, child left running", "name", st.Name, "pid", pid, "err", err)
		return 0, err
	}

	// Reap on exit so a dead child does not linger as a zombie while the
	// calling process lives on.
	go func() { _ = cmd.Wait() }()

	return pid, nil
}
