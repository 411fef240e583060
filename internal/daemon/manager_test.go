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

	"github.com/sharedco/wsync/internal/protocol"
	"github.com/sharedco/wsync/internal/wsyncerr"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "monitor.sh")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

func workspaceWithRemote(name string) protocol.Workspace {
	return protocol.Workspace{
		Name:      name,
		LocalPath: "/tmp/" + name,
		Remotes: []protocol.RemoteWorkspace{{
			Name:       "r1",
			RemotePath: "/srv/" + name,
			Connection: protocol.Connection{HostAlias: &protocol.HostAliasConnection{Alias: "h"}},
		}},
	}
}

func TestStartMonitorNoOpWithoutRemotes(t *testing.T) {
	mgr := NewMonitorManager(writeScript(t, "#!/bin/sh\nexit 0\n"))
	err := mgr.StartMonitor(protocol.Workspace{Name: "proj", LocalPath: "/tmp/proj"})
	require.NoError(t, err)
	assert.Empty(t, mgr.Names())
}

func TestStartMonitorSpawnsChild(t *testing.T) {
	mgr := NewMonitorManager(writeScript(t, "#!/bin/sh\ncat >/dev/null\nwhile :; do sleep 3600; done\n"))
	require.NoError(t, mgr.StartMonitor(workspaceWithRemote("proj")))
	t.Cleanup(func() { mgr.TerminateMonitor("proj") })

	assert.Contains(t, mgr.Names(), "proj")
	assert.True(t, mgr.IsRunning("proj"))
}

func TestStartMonitorAlreadyRunningConflict(t *testing.T) {
	mgr := NewMonitorManager(writeScript(t, "#!/bin/sh\ncat >/dev/null\nwhile :; do sleep 3600; done\n"))
	w := workspaceWithRemote("proj")
	require.NoError(t, mgr.StartMonitor(w))
	t.Cleanup(func() { mgr.TerminateMonitor("proj") })

	err := mgr.StartMonitor(w)
	require.Error(t, err)
	assert.True(t, wsyncerr.Is(err, wsyncerr.KindConflict))
}

func TestTerminateMonitorReapsChild(t *testing.T) {
	mgr := NewMonitorManager(writeScript(t, "#!/bin/sh\ncat >/dev/null\nwhile :; do sleep 3600; done\n"))
	w := workspaceWithRemote("proj")
	require.NoError(t, mgr.StartMonitor(w))

	require.NoError(t, mgr.TerminateMonitor("proj"))
	assert.NotContains(t, mgr.Names(), "proj")
}

func TestTerminateMonitorAbsentIsNoOp(t *testing.T) {
	mgr := NewMonitorManager(writeScript(t, "#!/bin/sh\nexit 0\n"))
	require.NoError(t, mgr.TerminateMonitor("nope"))
}

func TestRestartMonitorReplacesChild(t *testing.T) {
	mgr := NewMonitorManager(writeScript(t, "#!/bin/sh\ncat >/dev/null\nwhile :; do sleep 3600; done\n"))
	w := workspaceWithRemote("proj")
	require.NoError(t, mgr.StartMonitor(w))
	t.Cleanup(func() { mgr.TerminateMonitor("proj") })

	require.NoError(t, mgr.RestartMonitor(w))
	assert.True(t, mgr.IsRunning("proj"))
}

func TestHasExitedReflectsChildExit(t *testing.T) {
	mgr := NewMonitorManager(writeScript(t, "#!/bin/sh\ncat >/dev/null\nexit 1\n"))
	w := workspaceWithRemote("proj")
	require.NoError(t, mgr.StartMonitor(w))

	require.Eventually(t, func() bool {
		return mgr.HasExited("proj")
	}, 2*time.Second, 10*time.Millisecond)
}
