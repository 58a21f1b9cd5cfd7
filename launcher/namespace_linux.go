//go:build linux

package launcher

import (
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// configureIsolation makes the child die with the parent and, when
// namespaces is set, starts it in fresh user, mount, PID, IPC and UTS
// namespaces with the current user mapped to root.
func configureIsolation(cmd *exec.Cmd, namespaces bool) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Pdeathsig = unix.SIGKILL

	if !namespaces {
		return
	}
	cmd.SysProcAttr.Cloneflags = uintptr(unix.CLONE_NEWUSER | unix.CLONE_NEWNS |
		unix.CLONE_NEWPID | unix.CLONE_NEWIPC | unix.CLONE_NEWUTS)
	cmd.SysProcAttr.UidMappings = []syscall.SysProcIDMap{
		{ContainerID: 0, HostID: os.Getuid(), Size: 1},
	}
	cmd.SysProcAttr.GidMappings = []syscall.SysProcIDMap{
		{ContainerID: 0, HostID: os.Getgid(), Size: 1},
	}
}
