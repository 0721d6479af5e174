//go:build windows

package proc

import (
	"syscall"
	"time"
)

type osHandle struct{}

const reapPollInterval = 50 * time.Millisecond

func (osHandle) IsRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	h, err := syscall.OpenProcess(syscall.PROCESS_QUERY_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	defer func() { _ = syscall.CloseHandle(h) }()
	// An openable handle may belong to an exited process; check the exit code.
	var code uint32
	if err := syscall.GetExitCodeProcess(h, &code); err != nil {
		return true
	}
	const stillActive = 259 // STILL_ACTIVE
	return code == stillActive
}

// Terminate on Windows has no graceful signal; both phases call
// TerminateProcess, the second pass catching handles that were still
// shutting down after the first.
func (h osHandle) Terminate(pid int, timeout time.Duration) TermResult {
	if !h.IsRunning(pid) {
		return TermNoOp
	}
	if timeout <= 0 {
		timeout = DefaultTerminateTimeout
	}
	half := timeout / 2
	if err := terminateProcess(pid); err != nil {
		return TermFailed
	}
	if h.waitGone(pid, half) {
		return TermTerminated
	}
	if err := terminateProcess(pid); err != nil {
		return TermFailed
	}
	if h.waitGone(pid, half) {
		return TermTerminated
	}
	return TermSurvived
}

func terminateProcess(pid int) error {
	hp, err := syscall.OpenProcess(syscall.PROCESS_TERMINATE, false, uint32(pid))
	if err != nil {
		// Already gone; treat as success.
		return nil
	}
	defer func() { _ = syscall.CloseHandle(hp) }()
	return syscall.TerminateProcess(hp, 1)
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
