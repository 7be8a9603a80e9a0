package main

import (
	"fmt"
	"os"
	"os/exec"
)

// ///////////////////////////////////////////////
// Daemon Spawning
// ///////////////////////////////////////////////

// daemonSpawner starts the daemon as a detached background process running
// the current executable.
type daemonSpawner struct {
	dataDir string
	// executable defaults to os.Executable.
	executable func() (string, error)
}

// command builds the daemon command without starting it.
func (s *daemonSpawner) command() (*exec.Cmd, error) {
	executable := s.executable
	if executable == nil {
		executable = os.Executable
	}
	exe, err := executable()
	if err != nil {
		return nil, fmt.Errorf("resolve executable: %w", err)
	}

	cmd := exec.Command(exe, "daemon", "--data-dir", s.dataDir)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	setSysProcAttr(cmd)
	return cmd, nil
}

// Spawn starts the daemon and returns without waiting for it.
func (s *daemonSpawner) Spawn() error {
	cmd, err := s.command()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	// The daemon outlives this hook process.
	return cmd.Process.Release()
}
