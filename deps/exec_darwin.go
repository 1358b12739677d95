//go:build darwin

package deps

import "os/exec"

// configureSysProcAttr is a no-op on macOS; CommandContext handles cancellation.
func configureSysProcAttr(cmd *exec.Cmd) {}
