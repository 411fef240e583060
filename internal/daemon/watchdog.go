// Copyright (c) 2026 Cilo Authors
// SPDX-License-Identifier: MIT
// See LICENSES/MIT.txt for full license text

package daemon

import (
	"time"

	"github.com/sharedco/wsync/internal/logging"
)

// MaxFailures is the number of monitor exits per workspace at which the
// watchdog stops attempting to restart it. The count is never reset.
const MaxFailures = 3

// DefaultPeriod is the watchdog's normal poll interval.
const DefaultPeriod = 60 * time.Second

// BackoffPeriod is the interval used after a failed TryLock, so the
// watchdog never starves request workers of the state lock.
const BackoffPeriod = 30 * time.Second

// Watchdog periodically polls every monitor child for liveness, restarting
// workspaces whose monitor exited. On a workspace's MaxFailures-th exit it
// tombstones the workspace (stops trying) instead of restarting, so at most
// MaxFailures-1 restarts are issued per workspace.
type Watchdog struct {
	state   *State
	logger  *logging.Logger
	metrics *Metrics

	failures   map[string]int
	tombstoned map[string]bool
}

// NewWatchdog builds a Watchdog over state, logging through logger. metrics
// may be nil, in which case restart/tombstone counters are not recorded.
func NewWatchdog(state *State, logger *logging.Logger, metrics *Metrics) *Watchdog {
	return &Watchdog{
		state:      state,
		logger:     logger,
		metrics:    metrics,
		failures:   make(map[string]int),
		tombstoned: make(map[string]bool),
	}
}

// Run blocks, polling on DefaultPeriod (or BackoffPeriod after a failed
// TryLock) until stop is closed.
func (w *Watchdog) Run(stop <-chan struct{}) {
	timer := time.NewTimer(DefaultPeriod)
	defer timer.Stop()

	for {
		select {
		case <-stop:
			return
		case <-timer.C:
			if w.state.TryLock() {
				w.pollLocked()
				w.state.Unlock()
				timer.Reset(DefaultPeriod)
			} else {
				timer.Reset(BackoffPeriod)
			}
		}
	}
}

// pollLocked runs one check pass; the caller must hold the state lock.
func (w *Watchdog) pollLocked() {
	if w.metrics != nil {
		running := 0
		for _, name := range w.state.Manager.Names() {
			if w.state.Manager.IsRunning(name) {
				running++
			}
		}
		w.metrics.MonitorsRunning.Set(float64(running))
	}

	for _, name := range w.state.Manager.Names() {
		if w.tombstoned[name] {
			continue
		}
		if !w.state.Manager.HasExited(name) {
			continue
		}

		w.failures[name]++
		if w.failures[name] >= MaxFailures {
			w.tombstoned[name] = true
			w.logger.Warn("monitor for workspace %q exited %d times; giving up", name, w.failures[name])
			if w.metrics != nil {
				w.metrics.WatchdogTombstone.WithLabelValues(name).Inc()
			}
			continue
		}

		ws, ok := w.state.Registry.FindByName(name)
		if !ok {
			w.logger.Debug("monitor exited for %q but workspace no longer registered; dropping restart", name)
			continue
		}

		if err := w.state.Manager.RestartMonitor(ws); err != nil {
			w.logger.Warn("failed to restart monitor for %q: %v", name, err)
		} else {
			w.logger.Info("restarted monitor for workspace %q (attempt %d/%d)", name, w.failures[name], MaxFailures)
			if w.metrics != nil {
				w.metrics.WatchdogRestarts.WithLabelValues(name).Inc()
			}
		}
	}
}
