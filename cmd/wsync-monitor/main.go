// Copyright (c) 2026 Cilo Authors
// SPDX-License-Identifier: MIT
// See LICENSES/MIT.txt for full license text

// Command wsync-monitor is the per-workspace child process spawned by the
// daemon's monitor manager. It reads one JSON Workspace description from
// its standard input, then watches that tree for changes until killed.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sharedco/wsync/internal/logging"
	"github.com/sharedco/wsync/internal/monitor"
	"github.com/sharedco/wsync/internal/protocol"
	"github.com/sharedco/wsync/internal/wsyncconfig"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "wsync-monitor: "+err.Error())
		if err == monitor.ErrRootVanished {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run() error {
	var ws protocol.Workspace
	if err := json.NewDecoder(os.Stdin).Decode(&ws); err != nil {
		return fmt.Errorf("reading workspace description from stdin: %w", err)
	}

	cfg, err := wsyncconfig.LoadDefault()
	logDir := ""
	if err == nil {
		logDir, _ = cfg.Get(wsyncconfig.LogDirectory)
	}
	logger, err := logging.NewForDirectory(logDir, "monitor-"+ws.Name+".log", "monitor["+ws.Name+"]")
	if err != nil {
		logger = logging.New(os.Stderr, "monitor["+ws.Name+"]")
	}

	syncer := monitor.NewSyncer(ws, logger)
	watcher, err := monitor.NewWatcher(ws.LocalPath, logger, syncer)
	if err != nil {
		return fmt.Errorf("starting watch engine: %w", err)
	}

	// A signal does not end a kernel-event read already in progress, and
	// closing the watcher does not wake it either, so the handler exits the
	// process itself; the monitor holds no unsynced state.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		_ = watcher.Close()
		os.Exit(0)
	}()

	logger.Info("watching %s for %d remote(s)", ws.LocalPath, len(ws.Remotes))
	err = watcher.Run()
	if err == monitor.ErrRootVanished {
		logger.Error("workspace root vanished, exiting")
		return monitor.ErrRootVanished
	}
	return err
}
