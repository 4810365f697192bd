//go:build windows

package executor

import (
	"context"
	"time"

	"golang.org/x/sys/windows/registry"
)

// platformRefreshedPath reads PATH from the two registry locations Windows
// itself recomputes a freshly-spawned shell's PATH from: the per-user
// Environment key first, then the machine-wide one, merged user-then-machine
// (the same precedence the Windows shell applies after an installer updates
// PATH and broadcasts WM_SETTINGCHANGE, which a long-lived broker process
// never receives).
func platformRefreshedPath(ctx context.Context, shellTimeout time.Duration) string {
	userPath, _ := registryPath(registry.CURRENT_USER, `Environment`)
	machinePath, _ := registryPath(registry.LOCAL_MACHINE, `SYSTEM\CurrentControlSet\Control\Session Manager\Environment`)
	return mergePaths(userPath, machinePath)
}

func registryPath(root registry.Key, subkey string) (string, error) {
	key, err := registry.OpenKey(root, subkey, registry.QUERY_VALUE)
	if err != nil {
		return "", err
	}
	defer key.Close()

	value, _, err := key.GetStringValue("Path")
	if err != nil {
		return "", err
	}
	return value, nil
}
