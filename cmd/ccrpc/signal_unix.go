//go:build !windows

package main

import (
	"os"
	"syscall"
)

// shutdownSignals stop the daemon. `ccrpc stop` sends SIGTERM.
var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
