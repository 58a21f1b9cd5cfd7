//go:build darwin || linux

package launcher

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubKillGroup(t *testing.T, err error) *[]int {
	t.Helper()
	orig := killGroupFn
	t.Cleanup(func() { killGroupFn = orig })
	var killed []int
	killGroupFn = func(pgid int) error {
		killed = append(killed, pgid)
		return err
	}
	return &killed
}

func TestSetupProcessGroup(t *testing.T) {
	cmd := exec.Command("true")
	setupProcessGroup(cmd, slog.Default(), "id")

	require.NotNil(t, cmd.SysProcAttr)
	assert.True(t, cmd.SysProcAttr.Setsid)
	assert.NotNil(t, cmd.Cancel)
	assert.Equal(t, processGroupWaitDelay, cmd.WaitDelay)
}

func TestCancelGroup(t *testing.T) {
	tests := []struct {
		name       string
		proc       *os.Process
		killErr    error
		wantErr    error
		wantKilled []int
	}{
		{name: "not started", proc: nil, wantErr: os.ErrProcessDone},
		{name: "pid 1 guarded", proc: &os.Process{Pid: 1}, wantErr: os.ErrProcessDone},
		{name: "kills group", proc: &os.Process{Pid: 4242}, wantKilled: []int{4242}},
		{name: "group gone", proc: &os.Process{Pid: 4242}, killErr: syscall.ESRCH,
			wantErr: os.ErrProcessDone, wantKilled: []int{4242}},
		{name: "kill fails", proc: &os.Process{Pid: 4242}, killErr: syscall.EPERM,
			wantErr: syscall.EPERM, wantKilled: []int{4242}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			killed := stubKillGroup(t, tt.killErr)
			var logs bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&logs, nil))

			err := cancelGroup(tt.proc, logger, "launch-7")
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			}
			assert.Equal(t, tt.wantKilled, *killed)
			if len(tt.wantKilled) > 0 {
				assert.Contains(t, logs.String(), "launch_id=launch-7")
			}
		})
	}
}
