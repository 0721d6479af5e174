//go:build !windows

package proc

import (
	"bytes"
	"errors"
	"os"
	"runtime"
	"strconv"
	"syscall"
	"time"
)

type osHandle struct{}

// liveness poll interval while waiting for a signaled process to go away
const reapPollInterval = 50 * time.Millisecond

func (osHandle) IsRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	// A child we never reaped shows up as a zombie; that is not running.
	if runtime.GOOS == "linux" && isZombieLinux(pid) {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

func (h osHandle) Terminate(pid int, timeout time.Duration) TermResult {
	if !h.IsRunning(pid) {
		return TermNoOp
	}
	if timeout <= 0 {
		timeout = DefaultTerminateTimeout
	}
	half := timeout / 2

	if err := signalGroup(pid, syscall.SIGTERM); err != nil {
		return TermFailed
	}
	if h.waitGone(pid, half) {
		return TermTerminated
	}
	if err := signalGroup(pid, syscall.SIGKILL); err != nil {
		return TermFailed
	}
	if h.waitGone(pid, half) {
		return TermTerminated
	}
	return TermSurvived
}

// signalGroup signals the process group led by pid, falling back to the
// single process for pids we did not launch as group leaders.
func signalGroup(pid int, sig syscall.Signal) error {
	err := syscall.Kill(-pid, sig)
	if err == nil {
		return nil
	}
	if errors.Is(err, syscall.ESRCH) {
		err = syscall.Kill(pid, sig)
	}
	if errors.Is(err, syscall.ESRCH) {
		// Gone between the liveness check and the signal: that is success.
		return nil
	}
	return err
}

func (h osHandle) waitGone(pid int, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for {
		if !h.IsRunning(pid) {
			return true
		}
		if !time.Now().Before(deadline) {
			return false
		}
		time.Sleep(reapPollInterval)
	}
}

// isZombieLinux returns true if /proc/<pid>/status reports state Z.
func isZombieLinux(pid int) bool {
	b, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/status")
	if err != nil {
		return false
	}
	return bytes.Contains(b, []byte("State:\tZ"))
}
