// Copyright (c) 2026 Cilo Authors
// SPDX-License-Identifier: MIT
// See LICENSES/MIT.txt for full license text

package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharedco/wsync/internal/logging"
	"github.com/sharedco/wsync/internal/registry"
)

// TestWatchdogPollLockedRestartsAndTombstones exercises the watchdog's
// pollLocked pass directly (rather than its timer loop) so the test is not
// at the mercy of DefaultPeriod/BackoffPeriod.
func TestWatchdogPollLockedRestartsAndTombstones(t *testing.T) {
	dir := t.TempDir()
	regPath := filepath.Join(dir, "registry.json")
	require.NoError(t, os.WriteFile(regPath, []byte("[]"), 0o644))
	reg, err := registry.Load(regPath)
	require.NoError(t, err)

	monitorPath := writeScript(t, "#!/bin/sh\ncat >/dev/null\nexit 1\n")
	mgr := NewMonitorManager(monitorPath)
	state := NewState(reg, mgr)
	logger := logging.New(os.Stderr, "test")
	wd := NewWatchdog(state, logger, nil)

	w := workspaceWithRemote("proj")
	require.NoError(t, reg.AddWorkspace(w))
	require.NoError(t, mgr.StartMonitor(w))

	for i := 0; i < MaxFailures; i++ {
		require.Eventually(t, func() bool { return mgr.HasExited("proj") }, 2*time.Second, 10*time.Millisecond)
		wd.pollLocked()
	}

	assert.True(t, wd.tombstoned["proj"])
	assert.Equal(t, MaxFailures, wd.failures["proj"])
}

func TestWatchdogDropsRestartForUnregisteredWorkspace(t *testing.T) {
	dir := t.TempDir()
	regPath := filepath.Join(dir, "registry.json")
	require.NoError(t, os.WriteFile(regPath, []byte("[]"), 0o644))
	reg, err := registry.Load(regPath)
	require.NoError(t, err)

	monitorPath := writeScript(t, "#!/bin/sh\ncat >/dev/null\nexit 1\n")
	mgr := NewMonitorManager(monitorPath)
	state := NewState(reg, mgr)
	logger := logging.New(os.Stderr, "test")
	wd := NewWatchdog(state, logger, nil)

	w := workspaceWithRemote("ghost")
	require.NoError(t, mgr.StartMonitor(w))
	require.Eventually(t, func() bool { return mgr.HasExited("ghost") }, 2*time.Second, 10*time.Millisecond)

	wd.pollLocked()
	assert.Equal(t, 1, wd.failures["ghost"])
	assert.False(t, mgr.IsRunning("ghost"))
}
