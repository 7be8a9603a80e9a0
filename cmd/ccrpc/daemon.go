package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	rootpkg "tools.zach/dev/ccrpc"
	"tools.zach/dev/ccrpc/internal/daemon"
	"tools.zach/dev/ccrpc/internal/discord"
	"tools.zach/dev/ccrpc/internal/logger"
	"tools.zach/dev/ccrpc/internal/paths"
	"tools.zach/dev/ccrpc/internal/singleton"
	"tools.zach/dev/ccrpc/internal/state"
	"tools.zach/dev/ccrpc/internal/update"
)

// ///////////////////////////////////////////////
// Daemon Entry Point
// ///////////////////////////////////////////////

// daemonLockWait bounds how long a new daemon waits for a stopping one to
// release the lock. It covers one Discord round trip during shutdown.
var daemonLockWait = 10 * time.Second

// writeDefaultConfig copies the embedded default config into place when no
// config file exists yet.
func writeDefaultConfig(path string) error {
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := os.WriteFile(path, rootpkg.DefaultConfigTOML, 0o644); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	return nil
}

// runDaemon runs the presence loop until ctx is cancelled or a termination
// signal arrives. A daemon started while another is still shutting down
// waits for it; one that finds a live daemon after that exits quietly.
func runDaemon(ctx context.Context, root string) error {
	dir := paths.DataDir{Root: root}
	if err := dir.Ensure(); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	cfgWriteErr := writeDefaultConfig(dir.Config())

	a := newApp(root, "daemon")
	defer a.Close()
	log := a.log

	if cfgWriteErr != nil {
		log.Warn("failed to write default config", "error", cfgWriteErr)
	}
	if a.cfgErr != nil {
		logger.Fail(log, "invalid config", "path", dir.Config(), "error", a.cfgErr)
		return a.cfgErr
	}

	guard := a.guard()
	if err := guard.AcquireWait(ctx, daemonLockWait); err != nil {
		if errors.Is(err, singleton.ErrAlreadyRunning) {
			log.Info("daemon already running, exiting")
			return nil
		}
		return fmt.Errorf("acquire daemon lock: %w", err)
	}
	defer func() {
		if err := guard.Release(); err != nil {
			log.Warn("failed to release daemon lock", "error", err)
		}
	}()

	ver := resolveVersion()
	log.Info("ccrpc daemon starting", "version", ver, "pid", os.Getpid(), "data_dir", root)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := signalChannel()
	go func() {
		select {
		case sig := <-sigCh:
			log.Info("received signal, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	if a.cfg.Update.Check {
		go func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error("update check panic", "error", r)
				}
			}()
			update.NewChecker(log).Check(ctx, a.cfg.Update.ManifestURL, ver)
		}()
	}

	store := a.store()

	var wake <-chan struct{}
	if a.cfg.Behavior.WatchState {
		w, err := state.NewWatcher(store.Path(), logger.For(log, "watcher"))
		if err != nil {
			log.Warn("state watcher unavailable, polling only", "error", err)
		} else {
			defer w.Close()
			wake = w.Events()
		}
	}

	d := daemon.New(daemon.Options{
		Service: newPresence(discord.NewClient(a.cfg.Discord.AppID)),
		Store:   store,
		Config:  a.cfg,
		Logger:  log,
		Wake:    wake,
	})
	d.Run(ctx)

	log.Info("ccrpc daemon stopped")
	return nil
}
