//go:build !windows

package executor

import (
	"context"
	"os"
	"os/exec"
	"time"
)

// unixLoginShells is the search order for a login shell to source when
// refreshing PATH, tried after $SHELL.
var unixLoginShells = []string{"/bin/zsh", "/bin/bash", "/bin/sh"}

// platformRefreshedPath sources a login shell's startup files to pick up
// PATH entries an installer appended after the broker itself started.
func platformRefreshedPath(ctx context.Context, shellTimeout time.Duration) string {
	candidates := []string{}
	if shell := os.Getenv("SHELL"); shell != "" {
		candidates = append(candidates, shell)
	}
	candidates = append(candidates, unixLoginShells...)

	for _, shell := range candidates {
		path, ok := pathFromShell(ctx, shell, shellTimeout)
		if ok {
			return path
		}
	}
	return ""
}

func pathFromShell(ctx context.Context, shell string, timeout time.Duration) (string, bool) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, shell, "-l", "-c", "printf %s \"$PATH\"")
	out, err := cmd.Output()
	if err != nil || len(out) == 0 {
		return "", false
	}
	return string(out), true
}
