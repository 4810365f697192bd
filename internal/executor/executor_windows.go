//go:build windows

package executor

import "os/exec"

// setProcessGroup is a no-op on Windows: exec.Cmd has no process-group
// concept comparable to POSIX setpgid, so killProcessGroup falls back to
// killing the child directly.
func setProcessGroup(cmd *exec.Cmd) {}

func killProcessGroup(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}
