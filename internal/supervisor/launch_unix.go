//go:build !windows

package supervisor

import (
	"os/exec"
	"syscall"
)

// detachSysProcAttr places the child in its own process group so terminal
// interrupts aimed at the caller do not propagate, and so escalating
// termination can signal the whole group.
func detachSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
