//go:build !windows

package runner

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// configureProcAttr puts the child in its own process group so Kill reaches
// the ssh processes rsync and scp spawn.
func configureProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func terminate(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if err := unix.Kill(-cmd.Process.Pid, unix.SIGTERM); err != nil {
		_ = cmd.Process.Signal(unix.SIGTERM)
	}
}

func forceKill(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if err := unix.Kill(-cmd.Process.Pid, unix.SIGKILL); err != nil {
		_ = cmd.Process.Kill()
	}
}
