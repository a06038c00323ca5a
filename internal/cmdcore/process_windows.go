//go:build windows

package cmdcore

import (
	"os"
	"os/exec"
)

func setProcessGroup(_ *exec.Cmd) {}

// interruptProcess terminates the child; console-less children cannot
// receive a Ctrl+C event.
func interruptProcess(p *os.Process) error {
	return p.Kill()
}
