//go:build !windows

package cmdcore

import (
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setProcessGroup puts the child in its own process group so an interrupt
// reaches every process it spawned.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func interruptProcess(p *os.Process) error {
	if err := unix.Kill(-p.Pid, unix.SIGINT); err != nil {
		if err == unix.ESRCH {
			return os.ErrProcessDone
		}
		return p.Signal(os.Interrupt)
	}
	return nil
}
