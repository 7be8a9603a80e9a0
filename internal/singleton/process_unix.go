//go:build !windows

package singleton

import "golang.org/x/sys/unix"

// processAlive sends signal 0 to pid. Only a clean delivery counts as alive;
// EPERM means the pid now belongs to a process we do not own.
func processAlive(pid int) bool {
	return unix.Kill(pid, 0) == nil
}

// terminate sends SIGTERM so the daemon can clear presence before exiting.
func terminate(pid int) error {
	return unix.Kill(pid, unix.SIGTERM)
}
