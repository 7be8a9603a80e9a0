// Package paths centralizes file and directory names used across the project.
// All data directory file names are defined here as the single source of truth.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// ///////////////////////////////////////////////
// Constants
// ///////////////////////////////////////////////

// Data directory file names.
const (
	StateFile  = "state.json"
	PIDFile    = "daemon.pid"
	LockFile   = "daemon.lock"
	LogFile    = "daemon.log"
	ConfigFile = "config.toml"
)

// Naming shared with hook configuration and the environment.
const (
	BinaryName = "ccrpc"
	AppDirName = "cc-discord-rpc"

	// EnvDataDir overrides the platform default data directory.
	EnvDataDir = "CCRPC_DATA_DIR"
	// EnvProjectDir is set by Claude Code to the current project directory.
	EnvProjectDir = "CLAUDE_PROJECT_DIR"
	// EnvAppData is the Windows per-user application data directory.
	EnvAppData = "APPDATA"
)

// ///////////////////////////////////////////////
// Default Location
// ///////////////////////////////////////////////

// Default returns the platform default data directory using the process
// environment. See [Resolve].
func Default() string {
	home, _ := os.UserHomeDir()
	return Resolve(os.Getenv, runtime.GOOS, home)
}

// Resolve computes the data directory from an environment lookup, an OS name
// and a home directory:
//
//   - $CCRPC_DATA_DIR when set
//   - %APPDATA%\cc-discord-rpc on Windows
//   - ~/.local/share/cc-discord-rpc elsewhere
//
// When neither APPDATA nor a home directory is known it falls back to
// ./.cc-discord-rpc.
func Resolve(getenv func(string) string, goos, home string) string {
	if dir := getenv(EnvDataDir); dir != "" {
		return dir
	}
	if goos == "windows" {
		if appData := getenv(EnvAppData); appData != "" {
			return filepath.Join(appData, AppDirName)
		}
	}
	if home == "" {
		return filepath.Join(".", "."+AppDirName)
	}
	return filepath.Join(home, ".local", "share", AppDirName)
}

// ///////////////////////////////////////////////
// DataDir
// ///////////////////////////////////////////////

// DataDir provides path construction methods rooted at a data directory.
type DataDir struct {
	Root string
}

// State returns the full path to the session state file.
func (d DataDir) State() string { return filepath.Join(d.Root, StateFile) }

// PID returns the full path to the daemon PID file.
func (d DataDir) PID() string { return filepath.Join(d.Root, PIDFile) }

// Lock returns the full path to the daemon startup lock file.
func (d DataDir) Lock() string { return filepath.Join(d.Root, LockFile) }

// Log returns the full path to the shared log file.
func (d DataDir) Log() string { return filepath.Join(d.Root, LogFile) }

// Config returns the full path to the config file.
func (d DataDir) Config() string { return filepath.Join(d.Root, ConfigFile) }

// Ensure creates the data directory if it does not already exist.
func (d DataDir) Ensure() error {
	return os.MkdirAll(d.Root, 0o755)
}
