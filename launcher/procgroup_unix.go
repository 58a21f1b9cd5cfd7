//go:build darwin || linux

package launcher

import (
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// processGroupWaitDelay bounds how long Wait keeps reading the child's
// output after the process group was killed.
const processGroupWaitDelay = 3 * time.Second

// killGroupFn signals a whole process group. Replaced in tests.
var killGroupFn = func(pgid int) error {
	return syscall.Kill(-pgid, syscall.SIGKILL)
}

// setupProcessGroup starts the relaunched child as the leader of its own
// session. Cancelling the launch kills the session's process group, so
// processes the application forked do not outlive the launch.
func setupProcessGroup(cmd *exec.Cmd, logger *slog.Logger, launchID string) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setsid = true

	cmd.Cancel = func() error {
		return cancelGroup(cmd.Process, logger, launchID)
	}
	cmd.WaitDelay = processGroupWaitDelay
}

func cancelGroup(p *os.Process, logger *slog.Logger, launchID string) error {
	if p == nil {
		return os.ErrProcessDone
	}
	// The child leads its session, so its pid is the group id. Never
	// signal group 0 or 1.
	pgid := p.Pid
	if pgid <= 1 {
		return os.ErrProcessDone
	}
	logger.Warn("launcher: launch cancelled, killing relaunched process group",
		"pgid", pgid, "launch_id", launchID)
	if err := killGroupFn(pgid); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return os.ErrProcessDone
		}
		return err
	}
	return nil
}
