//go:build windows

package procexec

import "os/exec"

// setupProcessGroup is a no-op on non-POSIX hosts; process-group signaling
// is a POSIX capability that has no equivalent here (spec §9 design note:
// "on other hosts, best-effort process kill").
func setupProcessGroup(cmd *exec.Cmd) {}

// killProcessGroup best-effort kills just the direct child, since there is
// no process-group concept to fan the signal out to descendants.
func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
}
