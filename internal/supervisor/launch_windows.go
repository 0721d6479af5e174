//go:build windows

package supervisor

import (
	"os/exec"
	"syscall"
)

// detachSysProcAttr starts the child in a new process group so console
// interrupts aimed at the caller do not propagate.
func detachSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}
