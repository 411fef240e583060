// Copyright (c) 2026 Cilo Authors
// SPDX-License-Identifier: MIT
// See LICENSES/MIT.txt for full license text

// Package daemonclient is the thin request/response library used by the
// wsync CLI to talk to the daemon's command socket. It owns no business
// logic: one call in, one framed exchange out.
package daemonclient

import (
	"fmt"
	"net"

	"github.com/sharedco/wsync/internal/protocol"
)

// Client dials the daemon's Unix command socket for each request; per the
// transport design the connection is single-exchange and is always closed
// by the daemon after it answers.
type Client struct {
	socketPath string
}

// New returns a Client that dials socketPath for every request.
func New(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// Do sends a command with an optional body and decodes the response
// envelope. result, if non-nil, receives the decoded Result.Data on a
// Success response.
func (c *Client) Do(cmd protocol.Command, body any, result any) (protocol.ResponseEnvelope, error) {
	netConn, err := net.Dial("unix", c.socketPath)
	if err != nil {
		return protocol.ResponseEnvelope{}, fmt.Errorf("connecting to daemon at %s: %w", c.socketPath, err)
	}
	defer netConn.Close()

	conn := protocol.NewConn(netConn)
	if err := conn.WriteValue(protocol.CommandEnvelope{Command: string(cmd)}); err != nil {
		return protocol.ResponseEnvelope{}, fmt.Errorf("sending command: %w", err)
	}
	if body != nil {
		if err := conn.WriteValue(body); err != nil {
			return protocol.ResponseEnvelope{}, fmt.Errorf("sending request body: %w", err)
		}
	}

	var resp protocol.ResponseEnvelope
	if err := conn.ReadValue(&resp); err != nil {
		return protocol.ResponseEnvelope{}, fmt.Errorf("reading response: %w", err)
	}

	if result != nil && resp.Status == protocol.StatusSuccess && resp.Result != nil {
		if err := protocol.DecodeResult(resp.Result.Data, result); err != nil {
			return resp, fmt.Errorf("decoding response payload: %w", err)
		}
	}
	return resp, nil
}

// WorkspaceInfo fetches a single workspace by name.
func (c *Client) WorkspaceInfo(name string) (protocol.Workspace, error) {
	var ws protocol.Workspace
	resp, err := c.Do(protocol.CommandWorkspaceInfo, protocol.WorkspaceInfoRequest{Name: name}, &ws)
	if err != nil {
		return ws, err
	}
	return ws, errorFromEnvelope(resp)
}

// ListWorkspaces fetches the overview listing.
func (c *Client) ListWorkspaces() (protocol.ListWorkspacesResult, error) {
	var out protocol.ListWorkspacesResult
	resp, err := c.Do(protocol.CommandListWorkspaces, nil, &out)
	if err != nil {
		return out, err
	}
	return out, errorFromEnvelope(resp)
}

// ListWorkspaceInfo fetches the full listing.
func (c *Client) ListWorkspaceInfo() (protocol.ListWorkspaceInfoResult, error) {
	var out protocol.ListWorkspaceInfoResult
	resp, err := c.Do(protocol.CommandListWorkspaceInfo, nil, &out)
	if err != nil {
		return out, err
	}
	return out, errorFromEnvelope(resp)
}

// AddWorkspace registers a new workspace.
func (c *Client) AddWorkspace(name, path string) error {
	resp, err := c.Do(protocol.CommandAddWorkspace, protocol.AddWorkspaceRequest{Name: name, Path: path}, nil)
	if err != nil {
		return err
	}
	return errorFromEnvelope(resp)
}

// RemoveWorkspace deregisters a workspace.
func (c *Client) RemoveWorkspace(name string) error {
	resp, err := c.Do(protocol.CommandRemoveWorkspace, protocol.RemoveWorkspaceRequest{Name: name}, nil)
	if err != nil {
		return err
	}
	return errorFromEnvelope(resp)
}

// AttachRemoteWorkspace attaches a remote to a workspace.
func (c *Client) AttachRemoteWorkspace(req protocol.AttachRemoteWorkspaceRequest) error {
	resp, err := c.Do(protocol.CommandAttachRemoteWorkspace, req, nil)
	if err != nil {
		return err
	}
	return errorFromEnvelope(resp)
}

// DetachRemoteWorkspace detaches a remote from a workspace.
func (c *Client) DetachRemoteWorkspace(local, remote string) error {
	resp, err := c.Do(protocol.CommandDetachRemoteWorkspace, protocol.DetachRemoteWorkspaceRequest{Local: local, Remote: remote}, nil)
	if err != nil {
		return err
	}
	return errorFromEnvelope(resp)
}

// errorFromEnvelope turns a non-Success envelope into a Go error carrying
// the daemon's client-facing message.
func errorFromEnvelope(resp protocol.ResponseEnvelope) error {
	switch resp.Status {
	case protocol.StatusSuccess:
		return nil
	case protocol.StatusNotFound:
		if resp.Error != nil {
			return fmt.Errorf("%s", resp.Error.Message)
		}
		return fmt.Errorf("not found")
	default:
		if resp.Error != nil {
			return fmt.Errorf("%s", resp.Error.Message)
		}
		return fmt.Errorf("daemon reported an error")
	}
}
