// Package main implements ccrpc, which mirrors Claude Code activity into
// Discord Rich Presence. Claude Code hooks call the short-lived subcommands;
// a detached daemon subcommand does the publishing.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"
	"tools.zach/dev/ccrpc/internal/config"
	"tools.zach/dev/ccrpc/internal/hook"
	"tools.zach/dev/ccrpc/internal/logger"
	"tools.zach/dev/ccrpc/internal/paths"
	"tools.zach/dev/ccrpc/internal/singleton"
	"tools.zach/dev/ccrpc/internal/state"
)

// ///////////////////////////////////////////////
// Version
// ///////////////////////////////////////////////

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=0.1.0" ./cmd/ccrpc
//
// When ldflags are not set, resolveVersion reads the VCS info that Go embeds
// automatically.
var version = "dev"

// resolveVersion returns the build version string. If [version] was set via
// ldflags it is returned as-is; otherwise the embedded VCS revision and dirty
// state produce a "dev+<hash>" tag.
func resolveVersion() string {
	if version != "dev" {
		return version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return version
	}
	var revision string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" {
		return version
	}
	hash := revision[:min(7, len(revision))]
	if dirty {
		return "dev+" + hash + ".dirty"
	}
	return "dev+" + hash
}

// ///////////////////////////////////////////////
// Application Setup
// ///////////////////////////////////////////////

// app holds what every subcommand shares: the data directory, the loaded
// configuration and a component-tagged logger on daemon.log.
type app struct {
	dir    paths.DataDir
	cfg    *config.Config
	cfgErr error
	log    *slog.Logger
	closer io.Closer
}

// newApp prepares the data directory, configuration and logger. It never
// fails: problems are logged and defaults used, so hooks keep working.
func newApp(root, component string) *app {
	a := &app{dir: paths.DataDir{Root: root}}
	dirErr := a.dir.Ensure()

	a.cfg, a.cfgErr = config.Load(a.dir.Config())
	if a.cfgErr != nil {
		a.cfg = config.DefaultConfig()
	}

	base, closer := logger.NewLogger(a.dir.Log(), logger.ParseLevel(a.cfg.Log.Level), a.cfg.Log.MaxSizeMB)
	slog.SetDefault(base)
	a.log = logger.For(base, component)
	a.closer = closer

	if dirErr != nil {
		a.log.Warn("could not create data directory", "path", root, "error", dirErr)
	}
	if a.cfgErr != nil {
		a.log.Warn("using default config", "path", a.dir.Config(), "error", a.cfgErr)
	}
	return a
}

// Close flushes the log file.
func (a *app) Close() {
	if a.closer != nil {
		a.closer.Close()
	}
}

// store returns the state store in the data directory.
func (a *app) store() *state.Store {
	return state.NewStore(a.dir.State())
}

// guard returns the singleton guard in the data directory.
func (a *app) guard() *singleton.Guard {
	return singleton.New(a.dir.PID(), a.dir.Lock())
}

// env assembles the hook handler environment.
func (a *app) env(stdout io.Writer) hook.Env {
	return hook.Env{
		Store:   a.store(),
		Guard:   a.guard(),
		Spawner: &daemonSpawner{dataDir: a.dir.Root},
		Config:  a.cfg,
		Log:     a.log,
		Stdout:  stdout,
		LogPath: a.dir.Log(),
	}
}

// ///////////////////////////////////////////////
// Main
// ///////////////////////////////////////////////

// errUsage marks a missing subcommand.
var errUsage = errors.New("a subcommand is required")

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	var dataDir string

	cmd := &cobra.Command{
		Use:           paths.BinaryName,
		Short:         "Discord Rich Presence for Claude Code",
		Long:          "ccrpc mirrors Claude Code activity into Discord Rich Presence.\nClaude Code hooks call start, update, stop and statusline.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SetOut(cmd.ErrOrStderr())
			_ = cmd.Usage()
			return errUsage
		},
	}
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", paths.Default(), "data directory for state, config and logs")

	dir := func() string { return dataDir }
	cmd.AddCommand(
		newStartCmd(dir),
		newUpdateCmd(dir),
		newStopCmd(dir),
		newStatusCmd(dir),
		newStatuslineCmd(dir),
		newDaemonCmd(dir),
		newVersionCmd(),
	)
	return cmd
}
