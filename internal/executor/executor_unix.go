//go:build !windows

package executor

import (
	"os/exec"

	"golang.org/x/sys/unix"
)

// setProcessGroup makes cmd the leader of its own process group, so the
// whole tree it spawns (shells spawning their own children) can be killed
// together instead of leaving orphans behind.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &unix.SysProcAttr{Setpgid: true}
}

func killProcessGroup(cmd *exec.Cmd) error {
	pgid, err := unix.Getpgid(cmd.Process.Pid)
	if err != nil {
		return cmd.Process.Kill()
	}
	return unix.Kill(-pgid, unix.SIGKILL)
}
