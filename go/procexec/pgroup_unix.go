//go:build !windows

package procexec

import (
	"os/exec"
	"syscall"

	"go.buildorch.dev/go/buildlog"
)

// setupProcessGroup puts the child in its own process group so that a
// cancellation signal can fan out to its descendants (spec §4.4 step 2).
func setupProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup sends SIGINT to the negative PID (the whole process
// group), per spec §4.4 step 5.
func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGINT); err != nil {
		buildlog.Warningf("procexec: SIGINT to process group %d failed: %s", cmd.Process.Pid, err)
		_ = cmd.Process.Kill()
	}
}
