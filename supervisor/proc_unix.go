//go:build !windows

package supervisor

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

var (
	sigTerm os.Signal = unix.SIGTERM
	sigKill os.Signal = unix.SIGKILL
)

func configureProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func signalGroup(cmd *exec.Cmd, sig os.Signal) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	pid := cmd.Process.Pid
	if pid <= 0 {
		return nil
	}

	pgid, err := unix.Getpgid(pid)
	if err != nil || pgid <= 0 {
		return ignoreDone(cmd.Process.Signal(sig))
	}

	// Negative pgid signals every process in the group, so children of a
	// sudo wrapper are reached as well.
	return ignoreDone(unix.Kill(-pgid, sig.(unix.Signal)))
}

func ignoreDone(err error) error {
	if err == nil || errors.Is(err, os.ErrProcessDone) || errors.Is(err, unix.ESRCH) {
		return nil
	}

	return err
}
