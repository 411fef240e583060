// Copyright (c) 2026 Cilo Authors
// SPDX-License-Identifier: MIT
// See LICENSES/MIT.txt for full license text

// Command wsyncd is the long-lived daemon: it owns the workspace registry,
// supervises one monitor child per workspace with at least one attached
// remote, and serves administrative commands over a local stream socket.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sharedco/wsync/internal/daemon"
	"github.com/sharedco/wsync/internal/logging"
	"github.com/sharedco/wsync/internal/registry"
	"github.com/sharedco/wsync/internal/wsyncconfig"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "wsyncd: "+err.Error())
		os.Exit(1)
	}
}

func run() error {
	cfg, err := wsyncconfig.LoadDefault()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logDir, _ := cfg.Get(wsyncconfig.LogDirectory)
	logger, err := logging.NewForDirectory(logDir, "wsyncd.log", "wsyncd")
	if err != nil {
		logger = logging.New(os.Stderr, "wsyncd")
	}

	registryPath, ok := cfg.Get(wsyncconfig.WorkspaceConfigFilePath)
	if !ok {
		return fmt.Errorf("config is missing %s", wsyncconfig.WorkspaceConfigFilePath)
	}
	socketPath, ok := cfg.Get(wsyncconfig.DaemonCommandSocketPath)
	if !ok {
		return fmt.Errorf("config is missing %s", wsyncconfig.DaemonCommandSocketPath)
	}
	monitorPath, ok := cfg.Get(wsyncconfig.MonitorExecutablePath)
	if !ok {
		return fmt.Errorf("config is missing %s", wsyncconfig.MonitorExecutablePath)
	}
	if _, err := os.Stat(monitorPath); err != nil {
		return fmt.Errorf("monitor executable %s: %w", monitorPath, err)
	}

	reg, err := registry.Load(registryPath)
	if err != nil {
		return fmt.Errorf("loading workspace registry: %w", err)
	}

	mgr := daemon.NewMonitorManager(monitorPath)
	state := daemon.NewState(reg, mgr)

	restored := 0
	for _, w := range reg.All() {
		if len(w.Remotes) == 0 {
			continue
		}
		if err := mgr.StartMonitor(w); err != nil {
			logger.Warn("failed to start monitor for workspace %q at startup: %v", w.Name, err)
			continue
		}
		restored++
	}
	logger.Info("restored %d monitor(s) at startup", restored)

	metrics := daemon.NewMetrics()
	metrics.WorkspacesManaged.Set(float64(len(reg.All())))
	if addr := os.Getenv("WSYNC_METRICS_LISTEN_ADDR"); addr != "" {
		go func() {
			if err := metrics.ListenAndServe(addr); err != nil {
				logger.Warn("metrics server stopped: %v", err)
			}
		}()
	}

	watchdog := daemon.NewWatchdog(state, logger.With("watchdog"), metrics)
	stopWatchdog := make(chan struct{})
	go watchdog.Run(stopWatchdog)

	srv := daemon.NewServer(state, socketPath, logger.With("server"), metrics)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		close(stopWatchdog)
		_ = metrics.Shutdown(context.Background())
		srv.Shutdown()
	}()

	logger.Info("daemon listening on %s", socketPath)
	return srv.Serve()
}
