package logger

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
)

// timestampRe matches the leading "2006-01-02 15:04:05 " timestamp.
var timestampRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2} \[`)

// logLine runs fn against a logger on a fresh handler and returns the single
// line it wrote, without the line ending.
func logLine(t *testing.T, level slog.Level, fn func(*slog.Logger)) string {
	t.Helper()
	var buf bytes.Buffer
	fn(slog.New(NewHandler(&buf, level)))
	return strings.TrimRight(buf.String(), "\r\n")
}

// ///////////////////////////////////////////////
// Handler Output Format
// ///////////////////////////////////////////////

func TestHandlerFormat(t *testing.T) {
	tests := []struct {
		name   string
		log    func(*slog.Logger)
		suffix string
	}{
		{
			name:   "single attr",
			log:    func(l *slog.Logger) { l.Info("daemon starting", "pid", 42) },
			suffix: "[INFO] daemon starting | pid=42",
		},
		{
			name:   "no attrs",
			log:    func(l *slog.Logger) { l.Info("connected to discord") },
			suffix: "[INFO] connected to discord",
		},
		{
			name:   "several attrs",
			log:    func(l *slog.Logger) { l.Warn("publish failed", "tool", "Edit", "project", "demo") },
			suffix: "[WARN] publish failed | tool=Edit, project=demo",
		},
		{
			name:   "pre-applied attrs first",
			log:    func(l *slog.Logger) { l.With("app_id", "123").Info("handshake", "ok", true) },
			suffix: "[INFO] handshake | app_id=123, ok=true",
		},
		{
			name:   "component tag from With",
			log:    func(l *slog.Logger) { For(l, "statusline").Warn("could not write state", "error", "disk full") },
			suffix: "[WARN] [statusline] could not write state | error=disk full",
		},
		{
			name:   "component tag from record",
			log:    func(l *slog.Logger) { l.Info("idle, clearing presence", ComponentKey, "daemon") },
			suffix: "[INFO] [daemon] idle, clearing presence",
		},
		{
			name:   "component inside group is a plain attr",
			log:    func(l *slog.Logger) { l.WithGroup("g").Info("grouped", ComponentKey, "x") },
			suffix: "[INFO] grouped | g.component=x",
		},
		{
			name:   "group prefix",
			log:    func(l *slog.Logger) { l.WithGroup("tokens").Info("merged", "input", 10, "output", 2) },
			suffix: "[INFO] merged | tokens.input=10, tokens.output=2",
		},
		{
			name:   "nested groups",
			log:    func(l *slog.Logger) { l.WithGroup("state").WithGroup("tokens").Info("merged", "cost", 0.5) },
			suffix: "[INFO] merged | state.tokens.cost=0.5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := logLine(t, LevelInfo, tt.log)
			if !timestampRe.MatchString(line) {
				t.Errorf("missing leading timestamp: %q", line)
			}
			if !strings.HasSuffix(line, tt.suffix) {
				t.Errorf("line = %q, want suffix %q", line, tt.suffix)
			}
		})
	}
}

func TestWithGroupEmptyReturnsSameHandler(t *testing.T) {
	h := NewHandler(&bytes.Buffer{}, LevelInfo)
	if h.WithGroup("") != slog.Handler(h) {
		t.Error("WithGroup(\"\") should return the receiver")
	}
}

func TestWithAttrsSharesMutex(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(&buf, LevelInfo)
	h2 := h.WithAttrs([]slog.Attr{slog.String("k", "v")}).(*Handler)

	if h.mu != h2.mu {
		t.Fatal("derived handler must share the parent's mutex")
	}

	a, b := slog.New(h), slog.New(h2)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); a.Info("hook") }()
		go func() { defer wg.Done(); b.Info("daemon") }()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimRight(buf.String(), "\r\n"), "\n")
	if len(lines) != 100 {
		t.Errorf("got %d lines, want 100", len(lines))
	}
	for _, l := range lines {
		if !timestampRe.MatchString(l) {
			t.Errorf("interleaved line: %q", l)
			break
		}
	}
}

// ///////////////////////////////////////////////
// Levels
// ///////////////////////////////////////////////

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewHandler(&buf, LevelWarn))

	l.Info("dropped")
	l.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Error("info record written at warn level")
	}
	if !strings.Contains(out, "kept") {
		t.Error("warn record missing at warn level")
	}
}

func TestTraceAndFail(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewHandler(&buf, LevelTrace))

	Trace(l, "tick")
	Fail(l, "invalid config")

	out := buf.String()
	for _, want := range []string{"[TRACE] tick", "[FAIL] invalid config"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %q", want, out)
		}
	}
}

func TestLevelNames(t *testing.T) {
	tests := []struct {
		level slog.Level
		want  string
	}{
		{LevelTrace, "TRACE"},
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{LevelFail, "FAIL"},
	}
	for _, tt := range tests {
		if got := levelName(tt.level); got != tt.want {
			t.Errorf("levelName(%d) = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"trace":    LevelTrace,
		"TRACE":    LevelTrace,
		"debug":    LevelDebug,
		"info":     LevelInfo,
		"warn":     LevelWarn,
		"warning":  LevelWarn,
		"error":    LevelError,
		"fail":     LevelFail,
		"  debug ": LevelDebug,
		"":         LevelInfo,
		"verbose":  LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestDiscard(t *testing.T) {
	l := Discard()
	Fail(l, "nothing")
	if l.Enabled(context.Background(), LevelFail) {
		t.Error("Discard logger should be disabled at every level")
	}
}

// ///////////////////////////////////////////////
// NewLogger
// ///////////////////////////////////////////////

func TestNewLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.log")

	l, closer := NewLogger(path, LevelInfo, 1)
	For(l, "start").Info("session started", "project", "demo")
	l.Debug("below level")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "[INFO] [start] session started | project=demo") {
		t.Errorf("log file = %q", out)
	}
	if strings.Contains(out, "below level") {
		t.Error("debug record written at info level")
	}
}

// ///////////////////////////////////////////////
// ReadTail
// ///////////////////////////////////////////////

func TestReadTail(t *testing.T) {
	tests := []struct {
		name    string
		content string
		n       int
		want    string
	}{
		{"last three", "l1\nl2\nl3\nl4\nl5\n", 3, "l3\nl4\nl5"},
		{"fewer lines than asked", "l1\nl2\n", 10, "l1\nl2"},
		{"no trailing newline", "l1\nl2", 1, "l2"},
		{"empty file", "", 10, ""},
		{"crlf endings", "a\r\nb\r\n", 5, "a\nb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "daemon.log")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			got, err := ReadTail(path, tt.n)
			if err != nil {
				t.Fatalf("ReadTail: %v", err)
			}
			if got != tt.want {
				t.Errorf("ReadTail = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReadTailMissingFile(t *testing.T) {
	if _, err := ReadTail(filepath.Join(t.TempDir(), "missing.log"), 10); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestReadTailZeroLines(t *testing.T) {
	got, err := ReadTail(filepath.Join(t.TempDir(), "missing.log"), 0)
	if err != nil || got != "" {
		t.Errorf("ReadTail(0) = %q, %v; want empty, nil", got, err)
	}
}
