// Package daemon runs the presence loop: it polls the session state and
// mirrors it to a presence service, reconnecting when the service drops and
// clearing presence once the session goes idle.
//
// The loop is a small state machine driven by [Daemon.Tick]:
//
//   - Disconnected: try to connect, wait the reconnect interval on failure.
//   - Connected, no session: poll again after the poll interval.
//   - Connected, session: publish when the (label, project) pair changed.
//
// A publish or clear failure demotes the loop back to Disconnected.
package daemon

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"tools.zach/dev/ccrpc/internal/activity"
	"tools.zach/dev/ccrpc/internal/config"
	"tools.zach/dev/ccrpc/internal/logger"
	"tools.zach/dev/ccrpc/internal/state"
)

// ///////////////////////////////////////////////
// Collaborators
// ///////////////////////////////////////////////

// Service is the presence backend.
type Service interface {
	// Connect opens a session with the backend.
	Connect() error
	// Publish replaces the visible presence with p.
	Publish(p activity.Payload) error
	// Clear removes the visible presence.
	Clear() error
	// Close ends the session.
	Close() error
}

// Store is the part of the state store the loop needs.
type Store interface {
	Read() (state.Record, error)
	Clear() error
}

// Options configures a Daemon. Service, Store and Config are required.
type Options struct {
	Service Service
	Store   Store
	Config  *config.Config
	// Logger defaults to slog.Default.
	Logger *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
	// Wake, when set, shortens a sleep while connected. A state file watcher
	// feeds it.
	Wake <-chan struct{}
}

// ///////////////////////////////////////////////
// Daemon
// ///////////////////////////////////////////////

// Daemon holds the loop state. It is not safe for concurrent use; Run and
// Tick must be called from one goroutine.
type Daemon struct {
	svc   Service
	store Store
	cfg   *config.Config
	log   *slog.Logger
	now   func() time.Time
	wake  <-chan struct{}

	// connected is true between a successful Connect and the next failure.
	connected bool
	// published is true when lastKey holds what the backend is showing.
	published bool
	// lastKey is the key of the most recent successful publish.
	lastKey activity.Key
}

// New returns a Daemon in the Disconnected state.
func New(opts Options) *Daemon {
	d := &Daemon{
		svc:   opts.Service,
		store: opts.Store,
		cfg:   opts.Config,
		log:   opts.Logger,
		now:   opts.Now,
		wake:  opts.Wake,
	}
	if d.log == nil {
		d.log = slog.Default()
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d
}

// Run ticks until ctx is cancelled, then clears presence and closes the
// service.
func (d *Daemon) Run(ctx context.Context) {
	d.log.Info("daemon loop started")
	defer d.shutdown()

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		if ctx.Err() != nil {
			return
		}
		delay := d.safeTick(ctx)
		if !d.sleep(ctx, timer, delay) {
			return
		}
	}
}

// sleep waits for delay, an early wake while connected, or cancellation.
// It returns false when ctx is done.
func (d *Daemon) sleep(ctx context.Context, timer *time.Timer, delay time.Duration) bool {
	timer.Reset(delay)
	var wake <-chan struct{}
	if d.connected {
		wake = d.wake
	}

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	case <-wake:
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		logger.Trace(d.log, "woken by state change")
		return true
	}
}

// safeTick runs one tick, turning a panic into the error backoff.
func (d *Daemon) safeTick(ctx context.Context) (delay time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			logger.Fail(d.log, "daemon tick panic", "panic", r)
			delay = d.cfg.ErrorBackoff()
		}
	}()
	return d.Tick(ctx)
}

// Tick advances the state machine once and returns how long to wait before
// the next tick.
func (d *Daemon) Tick(ctx context.Context) time.Duration {
	if !d.connected {
		if err := d.svc.Connect(); err != nil {
			d.log.Warn("presence connect failed", "error", err)
			return d.cfg.ReconnectInterval()
		}
		d.connected = true
		d.published = false
		d.log.Info("presence connected")
	}

	if ctx.Err() != nil {
		return 0
	}

	rec, err := d.store.Read()
	if err != nil && !errors.Is(err, state.ErrNoState) {
		d.log.Debug("state unreadable, treating as empty", "error", err)
	}
	if rec.Empty() {
		return d.cfg.PollInterval()
	}

	now := d.now()
	if elapsed := now.Sub(time.Unix(rec.LastUpdate, 0)); elapsed > d.cfg.IdleTimeout() {
		d.clearIdle(elapsed)
		return d.cfg.IdleBackoff()
	}

	p := activity.Build(rec, d.cfg, now)
	if d.published && p.Key() == d.lastKey {
		return d.cfg.PollInterval()
	}

	d.log.Info("publishing presence", "details", p.Details, "project", p.Project)
	if err := d.svc.Publish(p); err != nil {
		d.log.Warn("presence publish failed", "error", err)
		d.connected = false
		d.published = false
		return d.cfg.PollInterval()
	}
	d.published = true
	d.lastKey = p.Key()
	return d.cfg.PollInterval()
}

// clearIdle removes presence and the stale session.
func (d *Daemon) clearIdle(elapsed time.Duration) {
	d.log.Info("session idle, clearing presence", "idle", elapsed.Round(time.Second))
	if err := d.svc.Clear(); err != nil {
		d.log.Warn("presence clear failed", "error", err)
		d.connected = false
	}
	if err := d.store.Clear(); err != nil {
		d.log.Warn("clearing idle state failed", "error", err)
	}
	d.published = false
}

// shutdown clears presence and closes the service. Failures are logged.
func (d *Daemon) shutdown() {
	d.log.Info("daemon loop stopping")
	if d.connected {
		if err := d.svc.Clear(); err != nil {
			d.log.Debug("clear on shutdown failed", "error", err)
		}
	}
	if err := d.svc.Close(); err != nil {
		d.log.Debug("close on shutdown failed", "error", err)
	}
	d.connected = false
	d.published = false
}
