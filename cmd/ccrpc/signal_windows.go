//go:build windows

package main

import "os"

// shutdownSignals stop the daemon. Windows has no SIGTERM; `ccrpc stop`
// terminates the process outright, so only console interrupts are caught.
var shutdownSignals = []os.Signal{os.Interrupt}
