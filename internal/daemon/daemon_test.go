// Tests for the presence loop state machine: connect handling, empty state,
// idle clearing, change detection, reconnect after failures, the panic guard
// and shutdown.
package daemon

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"tools.zach/dev/ccrpc/internal/activity"
	"tools.zach/dev/ccrpc/internal/config"
	"tools.zach/dev/ccrpc/internal/logger"
	"tools.zach/dev/ccrpc/internal/state"
)

// ///////////////////////////////////////////////
// Test Helpers
// ///////////////////////////////////////////////

// fakeService records calls and fails on demand.
type fakeService struct {
	mu         sync.Mutex
	calls      []string
	published  []activity.Payload
	connectErr error
	publishErr error
	clearErr   error
	panicOn    string
}

func (f *fakeService) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	if f.panicOn == call {
		panic("boom in " + call)
	}
}

func (f *fakeService) Connect() error {
	f.record("connect")
	return f.connectErr
}

func (f *fakeService) Publish(p activity.Payload) error {
	f.record("publish")
	if f.publishErr != nil {
		return f.publishErr
	}
	f.mu.Lock()
	f.published = append(f.published, p)
	f.mu.Unlock()
	return nil
}

func (f *fakeService) Clear() error {
	f.record("clear")
	return f.clearErr
}

func (f *fakeService) Close() error {
	f.record("close")
	return nil
}

// count returns how many times call was made.
func (f *fakeService) count(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

// reset forgets recorded calls.
func (f *fakeService) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// fixture bundles a daemon with its collaborators.
type fixture struct {
	d     *Daemon
	svc   *fakeService
	store *state.Store
	cfg   *config.Config
	now   time.Time
}

// newFixture builds a daemon on a temp-dir store with a fixed clock.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		svc:   &fakeService{},
		store: state.NewStore(filepath.Join(t.TempDir(), "state.json")),
		cfg:   config.DefaultConfig(),
		now:   time.Unix(1700000000, 0),
	}
	f.d = New(Options{
		Service: f.svc,
		Store:   f.store,
		Config:  f.cfg,
		Logger:  logger.Discard(),
		Now:     func() time.Time { return f.now },
	})
	return f
}

// writeSession stores an active session last updated secondsAgo before now.
func (f *fixture) writeSession(t *testing.T, tool string, secondsAgo int64) {
	t.Helper()
	err := f.store.Write(state.Record{
		SessionStart: f.now.Unix() - 600,
		Project:      "myproj",
		Tool:         tool,
		LastUpdate:   f.now.Unix() - secondsAgo,
	})
	if err != nil {
		t.Fatal(err)
	}
}

// ///////////////////////////////////////////////
// Connect
// ///////////////////////////////////////////////

func TestTickConnectFailure(t *testing.T) {
	f := newFixture(t)
	f.svc.connectErr = errors.New("discord not running")

	if got := f.d.Tick(context.Background()); got != 5*time.Second {
		t.Errorf("Tick() = %v, want reconnect interval 5s", got)
	}
	if f.d.connected {
		t.Error("connected = true after failed connect")
	}
	if f.svc.count("publish") != 0 {
		t.Error("published while disconnected")
	}

	f.svc.connectErr = nil
	f.d.Tick(context.Background())
	if !f.d.connected {
		t.Error("connected = false after successful retry")
	}
}

func TestTickConnectsOnce(t *testing.T) {
	f := newFixture(t)
	for range 3 {
		f.d.Tick(context.Background())
	}
	if n := f.svc.count("connect"); n != 1 {
		t.Errorf("connect calls = %d, want 1", n)
	}
}

// ///////////////////////////////////////////////
// Empty State
// ///////////////////////////////////////////////

func TestTickEmptyState(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, f *fixture)
	}{
		{"missing file", func(t *testing.T, f *fixture) {}},
		{"cleared", func(t *testing.T, f *fixture) { f.store.Clear() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(t, f)

			if got := f.d.Tick(context.Background()); got != time.Second {
				t.Errorf("Tick() = %v, want poll interval 1s", got)
			}
			if f.svc.count("publish") != 0 || f.svc.count("clear") != 0 {
				t.Errorf("calls = %v, want connect only", f.svc.calls)
			}
		})
	}
}

// ///////////////////////////////////////////////
// Idle
// ///////////////////////////////////////////////

func TestTickIdleClears(t *testing.T) {
	f := newFixture(t)
	f.writeSession(t, "Edit", int64((20 * time.Minute).Seconds()))

	if got := f.d.Tick(context.Background()); got != 5*time.Second {
		t.Errorf("Tick() = %v, want idle backoff 5s", got)
	}
	if n := f.svc.count("clear"); n != 1 {
		t.Errorf("clear calls = %d, want 1", n)
	}
	if n := f.svc.count("publish"); n != 0 {
		t.Errorf("publish calls = %d, want 0", n)
	}

	rec, err := f.store.Read()
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if !rec.Empty() {
		t.Errorf("state after idle = %+v, want empty", rec)
	}
}

func TestTickIdleBoundary(t *testing.T) {
	f := newFixture(t)
	f.writeSession(t, "Edit", int64((15 * time.Minute).Seconds()))

	f.d.Tick(context.Background())
	if f.svc.count("clear") != 0 {
		t.Error("cleared at exactly the idle timeout")
	}
	if f.svc.count("publish") != 1 {
		t.Error("expected publish at the idle boundary")
	}
}

func TestTickFutureLastUpdate(t *testing.T) {
	f := newFixture(t)
	f.writeSession(t, "Read", -3600)

	f.d.Tick(context.Background())
	if f.svc.count("clear") != 0 {
		t.Error("future last_update treated as idle")
	}
	if f.svc.count("publish") != 1 {
		t.Error("future last_update not published")
	}
}

func TestTickIdleClearFailureDemotes(t *testing.T) {
	f := newFixture(t)
	f.svc.clearErr = errors.New("pipe closed")
	f.writeSession(t, "Edit", 3600)

	f.d.Tick(context.Background())
	if f.d.connected {
		t.Error("connected = true after failed clear")
	}
	rec, _ := f.store.Read()
	if !rec.Empty() {
		t.Error("state not cleared after failed presence clear")
	}
}

func TestTickIdleResetsChangeDetection(t *testing.T) {
	f := newFixture(t)
	f.writeSession(t, "Edit", 0)
	f.d.Tick(context.Background())

	f.writeSession(t, "Edit", 3600)
	f.d.Tick(context.Background())

	f.writeSession(t, "Edit", 0)
	f.d.Tick(context.Background())

	if n := f.svc.count("publish"); n != 2 {
		t.Errorf("publish calls = %d, want 2 (same key republished after idle)", n)
	}
}

// ///////////////////////////////////////////////
// Change Detection
// ///////////////////////////////////////////////

func TestTickChangeDetection(t *testing.T) {
	f := newFixture(t)
	f.writeSession(t, "Edit", 0)

	for range 5 {
		if got := f.d.Tick(context.Background()); got != time.Second {
			t.Fatalf("Tick() = %v, want 1s", got)
		}
	}
	if n := f.svc.count("publish"); n != 1 {
		t.Fatalf("publish calls for unchanged state = %d, want 1", n)
	}

	// A different tool with the same label is not a change.
	f.cfg.Display.Tools = map[string]string{"MultiEdit": "Editing"}
	f.writeSession(t, "MultiEdit", 0)
	f.d.Tick(context.Background())
	if n := f.svc.count("publish"); n != 1 {
		t.Fatalf("publish calls after same-label tool = %d, want 1", n)
	}

	f.writeSession(t, "Bash", 0)
	f.d.Tick(context.Background())
	f.d.Tick(context.Background())
	if n := f.svc.count("publish"); n != 2 {
		t.Fatalf("publish calls after tool change = %d, want 2", n)
	}

	got := f.svc.published[1]
	if got.Details != "Running command" || got.State != "on myproj" {
		t.Errorf("published = %+v", got)
	}
}

func TestTickPayload(t *testing.T) {
	f := newFixture(t)
	f.writeSession(t, "Edit", 0)

	f.d.Tick(context.Background())

	want := activity.Payload{
		Details:    "Editing",
		State:      "on myproj",
		Project:    "myproj",
		Start:      f.now.Unix() - 600,
		LargeImage: "claude",
		LargeText:  "Claude Code",
	}
	if len(f.svc.published) != 1 || f.svc.published[0] != want {
		t.Errorf("published = %+v, want %+v", f.svc.published, want)
	}
}

// ///////////////////////////////////////////////
// Reconnect
// ///////////////////////////////////////////////

func TestTickPublishFailureReconnects(t *testing.T) {
	f := newFixture(t)
	f.writeSession(t, "Edit", 0)
	f.svc.publishErr = errors.New("broken pipe")

	f.d.Tick(context.Background())
	if f.d.connected {
		t.Fatal("connected = true after failed publish")
	}

	f.svc.publishErr = nil
	f.svc.reset()
	f.d.Tick(context.Background())

	want := []string{"connect", "publish"}
	if len(f.svc.calls) != 2 || f.svc.calls[0] != want[0] || f.svc.calls[1] != want[1] {
		t.Errorf("calls after failure = %v, want %v", f.svc.calls, want)
	}
}

func TestTickReconnectRepublishes(t *testing.T) {
	f := newFixture(t)
	f.writeSession(t, "Edit", 0)
	f.d.Tick(context.Background())

	// Simulate a dropped connection.
	f.d.connected = false
	f.d.Tick(context.Background())

	if n := f.svc.count("publish"); n != 2 {
		t.Errorf("publish calls = %d, want 2 (same key after reconnect)", n)
	}
}

// ///////////////////////////////////////////////
// Run
// ///////////////////////////////////////////////

func TestRunShutdownOnCancel(t *testing.T) {
	f := newFixture(t)
	f.writeSession(t, "Edit", 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.d.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for f.svc.count("publish") == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if f.svc.count("publish") != 1 {
		t.Errorf("publish calls = %d, want 1", f.svc.count("publish"))
	}
	if f.svc.count("clear") != 1 || f.svc.count("close") != 1 {
		t.Errorf("shutdown calls = %v, want clear and close", f.svc.calls)
	}
}

func TestRunCancelledBeforeStart(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f.d.Run(ctx)

	if f.svc.count("connect") != 0 {
		t.Error("connected after cancellation")
	}
	if f.svc.count("clear") != 0 {
		t.Error("cleared while never connected")
	}
	if f.svc.count("close") != 1 {
		t.Error("service not closed")
	}
}

func TestRunWakesOnStateChange(t *testing.T) {
	f := newFixture(t)
	f.cfg.Behavior.PollIntervalSeconds = 3600
	wake := make(chan struct{}, 1)
	f.d.wake = wake

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		f.d.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for f.svc.count("connect") == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	f.writeSession(t, "Grep", 0)
	wake <- struct{}{}

	for f.svc.count("publish") == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	if f.svc.count("publish") != 1 {
		t.Errorf("publish calls = %d, want 1 after wake", f.svc.count("publish"))
	}
}

func TestRunRecoversPanic(t *testing.T) {
	f := newFixture(t)
	f.svc.panicOn = "connect"
	f.cfg.Behavior.ErrorBackoffSeconds = 1

	if got := f.d.safeTick(context.Background()); got != time.Second {
		t.Errorf("safeTick() after panic = %v, want error backoff 1s", got)
	}

	f.svc.panicOn = ""
	if got := f.d.safeTick(context.Background()); got != time.Second {
		t.Errorf("safeTick() = %v, want poll interval", got)
	}
	if !f.d.connected {
		t.Error("loop did not recover after panic")
	}
}
