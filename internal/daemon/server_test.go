// Copyright (c) 2026 Cilo Authors
// SPDX-License-Identifier: MIT
// See LICENSES/MIT.txt for full license text

package daemon

import (
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharedco/wsync/internal/logging"
	"github.com/sharedco/wsync/internal/protocol"
	"github.com/sharedco/wsync/internal/registry"
)

// fakeMonitorScript is a tiny shell script standing in for the real monitor
// executable: it drains its stdin (the workspace JSON) and then blocks until
// killed, exactly like the contract in the external-interfaces section.
const fakeMonitorScript = "#!/bin/sh\ncat >/dev/null\nwhile :; do sleep 3600; done\n"

func newTestServer(t *testing.T) (*Server, string, *registry.Registry) {
	t.Helper()
	dir := t.TempDir()

	regPath := filepath.Join(dir, "registry.json")
	require.NoError(t, os.WriteFile(regPath, []byte("[]"), 0o644))
	reg, err := registry.Load(regPath)
	require.NoError(t, err)

	monitorPath := filepath.Join(dir, "fake-monitor.sh")
	require.NoError(t, os.WriteFile(monitorPath, []byte(fakeMonitorScript), 0o755))

	mgr := NewMonitorManager(monitorPath)
	state := NewState(reg, mgr)
	logger := logging.New(os.Stderr, "test")
	sockPath := filepath.Join(dir, "wsyncd.sock")

	srv := NewServer(state, sockPath, logger, nil)
	return srv, sockPath, reg
}

func exchange(t *testing.T, sockPath string, cmd protocol.Command, body any) protocol.ResponseEnvelope {
	t.Helper()
	conn, err := net.Dial("unix", sockPath)
	require.NoError(t, err)
	defer conn.Close()

	enc := json.NewEncoder(conn)
	require.NoError(t, enc.Encode(protocol.CommandEnvelope{Command: string(cmd)}))
	if body != nil {
		require.NoError(t, enc.Encode(body))
	}

	var resp protocol.ResponseEnvelope
	require.NoError(t, json.NewDecoder(conn).Decode(&resp))
	return resp
}

func startServing(t *testing.T, srv *Server) {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve() }()
	t.Cleanup(func() {
		srv.Shutdown()
		select {
		case <-errCh:
		case <-time.After(2 * time.Second):
			t.Fatal("server did not shut down in time")
		}
	})
	waitForSocket(t, srv.socketPath)
}

func waitForSocket(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if conn, err := net.Dial("unix", path); err == nil {
			conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("socket %s never came up", path)
}

func TestScenarioAddAndList(t *testing.T) {
	srv, sockPath, _ := newTestServer(t)
	startServing(t, srv)

	resp := exchange(t, sockPath, protocol.CommandAddWorkspace, protocol.AddWorkspaceRequest{Name: "proj", Path: "/tmp/p"})
	assert.Equal(t, protocol.StatusSuccess, resp.Status)

	resp = exchange(t, sockPath, protocol.CommandListWorkspaces, nil)
	assert.Equal(t, protocol.StatusSuccess, resp.Status)

	var result protocol.ListWorkspacesResult
	require.NoError(t, protocol.DecodeResult(resp.Result.Data, &result))
	require.Len(t, result.Entries, 1)
	assert.Equal(t, "proj", result.Entries[0].Name)
	assert.Equal(t, "/tmp/p", result.Entries[0].LocalPath)
	assert.Equal(t, 0, result.Entries[0].NrOfRemoteWorkspaces)
}

func TestScenarioDuplicateAddRejected(t *testing.T) {
	srv, sockPath, _ := newTestServer(t)
	startServing(t, srv)

	require.Equal(t, protocol.StatusSuccess, exchange(t, sockPath, protocol.CommandAddWorkspace, protocol.AddWorkspaceRequest{Name: "proj", Path: "/tmp/p"}).Status)

	resp := exchange(t, sockPath, protocol.CommandAddWorkspace, protocol.AddWorkspaceRequest{Name: "proj", Path: "/tmp/q"})
	assert.Equal(t, protocol.StatusError, resp.Status)
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "proj")
}

func TestScenarioAttachStartsMonitor(t *testing.T) {
	srv, sockPath, _ := newTestServer(t)
	startServing(t, srv)

	require.Equal(t, protocol.StatusSuccess, exchange(t, sockPath, protocol.CommandAddWorkspace, protocol.AddWorkspaceRequest{Name: "proj", Path: "/tmp/p"}).Status)

	resp := exchange(t, sockPath, protocol.CommandAttachRemoteWorkspace, protocol.AttachRemoteWorkspaceRequest{
		Local:      "proj",
		Remote:     "r1",
		RemotePath: "/srv/p",
		Connection: protocol.Connection{HostAlias: &protocol.HostAliasConnection{Alias: "h"}},
	})
	require.Equal(t, protocol.StatusSuccess, resp.Status)

	assert.Contains(t, srv.state.Manager.Names(), "proj")
	assert.True(t, srv.state.Manager.IsRunning("proj"))
}

func TestScenarioDetachLastRemoteMonitorNoOp(t *testing.T) {
	srv, sockPath, _ := newTestServer(t)
	startServing(t, srv)

	require.Equal(t, protocol.StatusSuccess, exchange(t, sockPath, protocol.CommandAddWorkspace, protocol.AddWorkspaceRequest{Name: "proj", Path: "/tmp/p"}).Status)
	require.Equal(t, protocol.StatusSuccess, exchange(t, sockPath, protocol.CommandAttachRemoteWorkspace, protocol.AttachRemoteWorkspaceRequest{
		Local: "proj", Remote: "r1", RemotePath: "/srv/p",
		Connection: protocol.Connection{HostAlias: &protocol.HostAliasConnection{Alias: "h"}},
	}).Status)

	resp := exchange(t, sockPath, protocol.CommandDetachRemoteWorkspace, protocol.DetachRemoteWorkspaceRequest{Local: "proj", Remote: "r1"})
	assert.Equal(t, protocol.StatusSuccess, resp.Status)

	ws, ok := srv.state.Registry.FindByName("proj")
	require.True(t, ok)
	assert.Empty(t, ws.Remotes)
}

func TestScenarioUnknownCommand(t *testing.T) {
	srv, sockPath, _ := newTestServer(t)
	startServing(t, srv)

	conn, err := net.Dial("unix", sockPath)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, json.NewEncoder(conn).Encode(protocol.CommandEnvelope{Command: "bogus"}))

	var resp protocol.ResponseEnvelope
	require.NoError(t, json.NewDecoder(conn).Decode(&resp))
	assert.Equal(t, protocol.StatusError, resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "Received invalid command 'bogus'", resp.Error.Message)
}

func TestWorkspaceInfoNotFound(t *testing.T) {
	srv, sockPath, _ := newTestServer(t)
	startServing(t, srv)

	resp := exchange(t, sockPath, protocol.CommandWorkspaceInfo, protocol.WorkspaceInfoRequest{Name: "nope"})
	assert.Equal(t, protocol.StatusNotFound, resp.Status)
}
