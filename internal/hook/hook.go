// Package hook implements the short-lived commands Claude Code runs from its
// hooks: start, update, stop and status.
//
// Handlers never fail on presence problems. Every error is logged and the
// handler carries on, so a broken presence setup cannot block the editor.
package hook

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/term"
	"tools.zach/dev/ccrpc/internal/config"
	"tools.zach/dev/ccrpc/internal/logger"
	"tools.zach/dev/ccrpc/internal/paths"
	"tools.zach/dev/ccrpc/internal/state"
	"tools.zach/dev/ccrpc/internal/statusline"
)

// ///////////////////////////////////////////////
// Environment
// ///////////////////////////////////////////////

// Store is the session state the handlers mutate.
type Store interface {
	Read() (state.Record, error)
	Write(state.Record) error
	Clear() error
}

// Guard reports and controls the daemon process.
type Guard interface {
	Running() (pid int, ok bool)
	RequestStop(pid int) error
	Clear() error
}

// Spawner launches a detached daemon.
type Spawner interface {
	Spawn() error
}

// Env carries everything a handler touches. Zero-valued optional fields fall
// back to the process environment.
type Env struct {
	Store   Store
	Guard   Guard
	Spawner Spawner
	Config  *config.Config
	Log     *slog.Logger
	// Stdout receives status output.
	Stdout io.Writer
	// LogPath is the daemon log read by status.
	LogPath string
	// Now defaults to time.Now.
	Now func() time.Time
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
	// Getwd defaults to os.Getwd.
	Getwd func() (string, error)
}

func (e Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Env) getenv(key string) string {
	if e.Getenv != nil {
		return e.Getenv(key)
	}
	return os.Getenv(key)
}

func (e Env) getwd() (string, error) {
	if e.Getwd != nil {
		return e.Getwd()
	}
	return os.Getwd()
}

func (e Env) log() *slog.Logger {
	if e.Log != nil {
		return e.Log
	}
	return slog.Default()
}

func (e Env) stdout() io.Writer {
	if e.Stdout != nil {
		return e.Stdout
	}
	return os.Stdout
}

// ///////////////////////////////////////////////
// Input
// ///////////////////////////////////////////////

// StartInput is the SessionStart hook payload.
type StartInput struct {
	CWD string `json:"cwd"`
}

// UpdateInput is the PreToolUse hook payload.
type UpdateInput struct {
	ToolName string `json:"tool_name"`
}

// InputReader returns f, or an empty reader when f is a terminal so that a
// handler run by hand does not wait for input.
func InputReader(f *os.File) io.Reader {
	if term.IsTerminal(int(f.Fd())) {
		return strings.NewReader("")
	}
	return f
}

// DecodeInput fills v from the JSON in r. Empty or malformed input leaves v
// at its zero value.
func DecodeInput(r io.Reader, v any, log *slog.Logger) {
	data, err := io.ReadAll(r)
	if err != nil {
		log.Debug("reading hook input failed", "error", err)
		return
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return
	}
	if err := json.Unmarshal(data, v); err != nil {
		log.Debug("ignoring malformed hook input", "error", err)
	}
}

// ///////////////////////////////////////////////
// Handlers
// ///////////////////////////////////////////////

// readState loads the session, logging anything but a missing file.
func readState(env Env) state.Record {
	rec, err := env.Store.Read()
	if err != nil && !errors.Is(err, state.ErrNoState) {
		env.log().Debug("state unreadable, treating as empty", "error", err)
	}
	return rec
}

// projectDir picks the session directory: hook input, then
// CLAUDE_PROJECT_DIR, then the process working directory.
func projectDir(env Env, in StartInput) string {
	if in.CWD != "" {
		return in.CWD
	}
	if dir := env.getenv(paths.EnvProjectDir); dir != "" {
		return dir
	}
	dir, err := env.getwd()
	if err != nil {
		env.log().Debug("cannot determine working directory", "error", err)
		return ""
	}
	return dir
}

// baseName returns the last path element of dir, or "" for a root or empty
// path.
func baseName(dir string) string {
	if dir == "" {
		return ""
	}
	name := filepath.Base(filepath.Clean(dir))
	if name == "." || name == string(filepath.Separator) || name == "/" {
		return ""
	}
	return name
}

// Start records a new or resumed session and makes sure a daemon is running.
func Start(env Env, in StartInput) {
	log := env.log()
	dir := projectDir(env, in)
	if env.Config.IsIgnored(dir) {
		log.Info("directory ignored, not starting presence", "cwd", dir)
		return
	}

	now := env.now().Unix()
	rec := readState(env)
	if rec.SessionStart == 0 {
		rec.SessionStart = now
	}
	rec.Project = env.Config.ProjectName(baseName(dir), dir)
	rec.CWD = dir
	rec.LastUpdate = now
	rec.Tool = ""
	if err := env.Store.Write(rec); err != nil {
		log.Warn("could not write state", "error", err)
	}

	if pid, ok := env.Guard.Running(); ok {
		log.Debug("daemon already running", "pid", pid)
		return
	}
	log.Info("starting daemon", "project", rec.Project)
	if err := env.Spawner.Spawn(); err != nil {
		log.Error("could not start daemon", "error", err)
	}
}

// Update records the latest tool of an active session. Without a session it
// does nothing.
func Update(env Env, in UpdateInput) {
	rec := readState(env)
	if rec.Empty() {
		return
	}
	rec.Tool = in.ToolName
	rec.LastUpdate = env.now().Unix()
	if err := env.Store.Write(rec); err != nil {
		env.log().Warn("could not write state", "error", err)
		return
	}
	logger.Trace(env.log(), "updated activity", "tool", in.ToolName)
}

// Stop ends the session and the daemon.
func Stop(env Env) {
	log := env.log()
	log.Info("stop requested")
	if err := env.Store.Clear(); err != nil {
		log.Warn("could not clear state", "error", err)
	}

	if pid, ok := env.Guard.Running(); ok {
		if err := env.Guard.RequestStop(pid); err != nil {
			log.Warn("could not stop daemon", "pid", pid, "error", err)
		} else {
			log.Info("stopped daemon", "pid", pid)
		}
	}
	if err := env.Guard.Clear(); err != nil {
		log.Warn("could not remove pid file", "error", err)
	}
}

// Status prints the daemon and session summary. When logLines is positive
// the tail of the daemon log follows.
func Status(env Env, logLines int) {
	w := env.stdout()

	if pid, ok := env.Guard.Running(); ok {
		fmt.Fprintf(w, "Daemon running (PID %d)\n", pid)
	} else {
		fmt.Fprintln(w, "Daemon not running")
	}

	rec := readState(env)
	if rec.Empty() {
		fmt.Fprintln(w, "No active session")
	} else {
		project := rec.Project
		if project == "" {
			project = "Unknown"
		}
		tool := rec.Tool
		if tool == "" {
			tool = "None"
		}
		fmt.Fprintf(w, "Project: %s\n", project)
		fmt.Fprintf(w, "Last tool: %s\n", tool)
		if rec.LastUpdate != 0 {
			fmt.Fprintf(w, "Last update: %ds ago\n", env.now().Unix()-rec.LastUpdate)
		}
		if rec.Model != "" {
			fmt.Fprintf(w, "Model: %s\n", rec.Model)
		}
		if rec.Tokens != nil {
			fmt.Fprintf(w, "Tokens: %s | %s\n",
				statusline.FormatTokens(rec.Tokens.Total()), statusline.FormatCost(rec.Tokens.Cost))
		}
	}

	if logLines > 0 && env.LogPath != "" {
		tail, err := logger.ReadTail(env.LogPath, logLines)
		if err != nil {
			fmt.Fprintf(w, "Log unavailable: %v\n", err)
			return
		}
		fmt.Fprintf(w, "\nLast %d log lines:\n%s", logLines, tail)
		if tail != "" && !strings.HasSuffix(tail, "\n") {
			fmt.Fprintln(w)
		}
	}
}
