//go:build linux

package deps

import (
	"os/exec"
	"syscall"
)

// configureSysProcAttr makes the kernel kill ffmpeg if we die first, so an
// interrupted render never leaves an orphan encoder behind.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Pdeathsig: syscall.SIGKILL}
}
