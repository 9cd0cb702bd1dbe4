package session

import (
	"os/exec"
	"syscall"
)

// dieWithParent asks the kernel to hang up the shell if pshaw dies first.
func dieWithParent(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Pdeathsig = syscall.SIGHUP
}
