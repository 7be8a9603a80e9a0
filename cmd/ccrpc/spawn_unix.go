//go:build !windows

package main

import (
	"os/exec"
	"syscall"
)

// setSysProcAttr starts the daemon in its own session so it survives the
// hook's process group.
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
