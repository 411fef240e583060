// Copyright (c) 2026 Cilo Authors
// SPDX-License-Identifier: MIT
// See LICENSES/MIT.txt for full license text

package protocol

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipeConns(t *testing.T) (*Conn, *Conn) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })
	return NewConn(a), NewConn(b)
}

func TestReadCommandValid(t *testing.T) {
	client, server := pipeConns(t)

	go func() {
		_ = client.WriteValue(CommandEnvelope{Command: "list_workspaces"})
	}()

	cmd, err := server.ReadCommand()
	require.NoError(t, err)
	assert.Equal(t, CommandListWorkspaces, cmd)
}

func TestReadCommandInvalid(t *testing.T) {
	client, server := pipeConns(t)

	go func() {
		_ = client.WriteValue(CommandEnvelope{Command: "bogus"})
	}()

	_, err := server.ReadCommand()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid command")
}

func TestWriteReadResponse(t *testing.T) {
	client, server := pipeConns(t)

	go func() {
		_ = server.WriteResponse(Success(PayloadListWorkspaces, ListWorkspacesResult{
			NrOfWorkspaces: 1,
			Entries:        []WorkspaceOverview{{Name: "proj", LocalPath: "/tmp/p"}},
		}))
	}()

	var resp ResponseEnvelope
	require.NoError(t, client.ReadValue(&resp))
	assert.Equal(t, StatusSuccess, resp.Status)
	require.NotNil(t, resp.Result)
	assert.Equal(t, PayloadListWorkspaces, resp.Result.Type)

	var result ListWorkspacesResult
	require.NoError(t, DecodeResult(resp.Result.Data, &result))
	assert.Equal(t, 1, result.NrOfWorkspaces)
	assert.Equal(t, "proj", result.Entries[0].Name)
}

func TestConnectionValidate(t *testing.T) {
	assert.NoError(t, Connection{HostAlias: &HostAliasConnection{Alias: "h"}}.Validate())
	assert.Error(t, Connection{}.Validate())
	assert.Error(t, Connection{
		HostAlias: &HostAliasConnection{Alias: "h"},
		Ssh:       &SshConnection{Host: "h"},
	}.Validate())
}
