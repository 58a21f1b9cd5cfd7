//go:build !(darwin || linux)

package launcher

import (
	"log/slog"
	"os/exec"
)

// setupProcessGroup is a no-op where sessions are not available; context
// cancellation falls back to killing the child only.
func setupProcessGroup(*exec.Cmd, *slog.Logger, string) {}
