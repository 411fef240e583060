// Copyright (c) 2026 Cilo Authors
// SPDX-License-Identifier: MIT
// See LICENSES/MIT.txt for full license text

// Package registry implements the workspace registry (C2): the daemon's
// authoritative, in-memory list of managed workspaces, persisted as a
// single JSON document and mutated only through the operations below.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/sharedco/wsync/internal/protocol"
	"github.com/sharedco/wsync/internal/wsyncerr"
)

// Registry is the authoritative set of managed workspaces, backed by a JSON
// file. Every successful mutation rewrites the file in full before
// returning; a gofrs/flock advisory lock on a sibling ".lock" file keeps two
// processes from interleaving writes.
type Registry struct {
	mu         sync.Mutex
	path       string
	fileLock   *flock.Flock
	workspaces []protocol.Workspace
}

// Load reads path (which must already exist and contain a JSON array of
// Workspace objects, possibly empty) and returns a Registry backed by it.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, wsyncerr.Wrap(wsyncerr.KindIO, err, "failed to read workspace registry file")
	}

	var workspaces []protocol.Workspace
	if err := json.Unmarshal(data, &workspaces); err != nil {
		return nil, wsyncerr.Wrap(wsyncerr.KindSerde, err, "workspace registry file is not valid JSON")
	}

	if err := checkInvariants(workspaces); err != nil {
		return nil, err
	}

	return &Registry{
		path:       path,
		fileLock:   flock.New(path + ".lock"),
		workspaces: workspaces,
	}, nil
}

// checkInvariants verifies I1-I3 over a candidate workspace list.
func checkInvariants(workspaces []protocol.Workspace) error {
	names := make(map[string]bool, len(workspaces))
	paths := make(map[string]bool, len(workspaces))
	for _, w := range workspaces {
		if names[w.Name] {
			return wsyncerr.Newf(wsyncerr.KindSerde, "duplicate workspace name %q in registry file", w.Name)
		}
		names[w.Name] = true

		if paths[w.LocalPath] {
			return wsyncerr.Newf(wsyncerr.KindSerde, "duplicate local path %q in registry file", w.LocalPath)
		}
		paths[w.LocalPath] = true

		remoteNames := make(map[string]bool, len(w.Remotes))
		for _, r := range w.Remotes {
			if remoteNames[r.Name] {
				return wsyncerr.Newf(wsyncerr.KindSerde, "workspace %q has duplicate remote name %q", w.Name, r.Name)
			}
			remoteNames[r.Name] = true
		}
	}
	return nil
}

// All returns a snapshot copy of every managed workspace.
func (r *Registry) All() []protocol.Workspace {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneWorkspaces(r.workspaces)
}

// FindByName returns a copy of the workspace named name, if present.
func (r *Registry) FindByName(name string) (protocol.Workspace, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.workspaces {
		if w.Name == name {
			return cloneWorkspace(w), true
		}
	}
	return protocol.Workspace{}, false
}

// AddWorkspace appends w to the registry and persists it. Fails with
// KindConflict if a workspace with the same name or local path already
// exists.
func (r *Registry) AddWorkspace(w protocol.Workspace) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.workspaces {
		if existing.Name == w.Name {
			return wsyncerr.New(wsyncerr.KindConflict,
				fmt.Sprintf("workspace with name %q already exists", w.Name),
				fmt.Sprintf("a workspace named '%s' already exists", w.Name))
		}
		if existing.LocalPath == w.LocalPath {
			return wsyncerr.New(wsyncerr.KindConflict,
				fmt.Sprintf("workspace with local path %q already exists (as %q)", w.LocalPath, existing.Name),
				fmt.Sprintf("a workspace with local path '%s' already exists", w.LocalPath))
		}
	}

	before := cloneWorkspaces(r.workspaces)
	r.workspaces = append(r.workspaces, cloneWorkspace(w))

	if err := r.persist(); err != nil {
		r.workspaces = before
		return err
	}
	return nil
}

// RemoveWorkspace deletes the workspace named name and persists the change.
func (r *Registry) RemoveWorkspace(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexOf(name)
	if idx < 0 {
		return wsyncerr.New(wsyncerr.KindNotFound,
			fmt.Sprintf("no workspace named %q", name),
			fmt.Sprintf("no workspace named '%s' found", name))
	}

	before := cloneWorkspaces(r.workspaces)
	r.workspaces = append(r.workspaces[:idx], r.workspaces[idx+1:]...)

	if err := r.persist(); err != nil {
		r.workspaces = before
		return err
	}
	return nil
}

// AttachRemote appends a RemoteWorkspace to the named workspace's remotes
// and persists the change. Fails with KindConflict if a remote with the
// same name is already attached.
func (r *Registry) AttachRemote(wsName string, remote protocol.RemoteWorkspace) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexOf(wsName)
	if idx < 0 {
		return wsyncerr.New(wsyncerr.KindNotFound,
			fmt.Sprintf("no workspace named %q", wsName),
			fmt.Sprintf("no workspace named '%s' found", wsName))
	}

	for _, existing := range r.workspaces[idx].Remotes {
		if existing.Name == remote.Name {
			return wsyncerr.New(wsyncerr.KindConflict,
				fmt.Sprintf("workspace %q already has a remote named %q", wsName, remote.Name),
				fmt.Sprintf("remote '%s' is already attached to '%s'", remote.Name, wsName))
		}
	}

	before := cloneWorkspaces(r.workspaces)
	r.workspaces[idx].Remotes = append(r.workspaces[idx].Remotes, cloneRemote(remote))

	if err := r.persist(); err != nil {
		r.workspaces = before
		return err
	}
	return nil
}

// DetachRemote removes the named remote from the named workspace and
// persists the change.
func (r *Registry) DetachRemote(wsName, remoteName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexOf(wsName)
	if idx < 0 {
		return wsyncerr.New(wsyncerr.KindNotFound,
			fmt.Sprintf("no workspace named %q", wsName),
			fmt.Sprintf("no workspace named '%s' found", wsName))
	}

	remotes := r.workspaces[idx].Remotes
	remoteIdx := -1
	for i, rm := range remotes {
		if rm.Name == remoteName {
			remoteIdx = i
			break
		}
	}
	if remoteIdx < 0 {
		return wsyncerr.New(wsyncerr.KindNotFound,
			fmt.Sprintf("workspace %q has no remote named %q", wsName, remoteName),
			fmt.Sprintf("no remote named '%s' attached to '%s'", remoteName, wsName))
	}

	before := cloneWorkspaces(r.workspaces)
	r.workspaces[idx].Remotes = append(remotes[:remoteIdx:remoteIdx], remotes[remoteIdx+1:]...)

	if err := r.persist(); err != nil {
		r.workspaces = before
		return err
	}
	return nil
}

func (r *Registry) indexOf(name string) int {
	for i, w := range r.workspaces {
		if w.Name == name {
			return i
		}
	}
	return -1
}

// persist rewrites the registry file in full under the advisory file lock,
// via a temporary sibling plus atomic rename, so I4 holds even across a
// crash mid-write.
func (r *Registry) persist() error {
	if err := r.fileLock.Lock(); err != nil {
		return wsyncerr.Wrap(wsyncerr.KindIO, err, "failed to acquire registry file lock")
	}
	defer r.fileLock.Unlock()

	data, err := json.MarshalIndent(r.workspaces, "", "  ")
	if err != nil {
		return wsyncerr.Wrap(wsyncerr.KindSerde, err, "failed to serialize workspace registry")
	}

	dir := filepath.Dir(r.path)
	tmp, err := os.CreateTemp(dir, ".wsync-registry-*.tmp")
	if err != nil {
		return wsyncerr.Wrap(wsyncerr.KindIO, err, "failed to create temporary registry file")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return wsyncerr.Wrap(wsyncerr.KindIO, err, "failed to write temporary registry file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return wsyncerr.Wrap(wsyncerr.KindIO, err, "failed to flush temporary registry file")
	}
	if err := tmp.Close(); err != nil {
		return wsyncerr.Wrap(wsyncerr.KindIO, err, "failed to close temporary registry file")
	}

	if err := os.Rename(tmpPath, r.path); err != nil {
		return wsyncerr.Wrap(wsyncerr.KindIO, err, "failed to atomically replace registry file")
	}
	return nil
}

func cloneWorkspace(w protocol.Workspace) protocol.Workspace {
	out := w
	out.Remotes = make([]protocol.RemoteWorkspace, len(w.Remotes))
	for i, r := range w.Remotes {
		out.Remotes[i] = cloneRemote(r)
	}
	return out
}

func cloneWorkspaces(ws []protocol.Workspace) []protocol.Workspace {
	out := make([]protocol.Workspace, len(ws))
	for i, w := range ws {
		out[i] = cloneWorkspace(w)
	}
	return out
}

func cloneRemote(r protocol.RemoteWorkspace) protocol.RemoteWorkspace {
	out := r
	out.Connection = cloneConnection(r.Connection)
	return out
}

func cloneConnection(c protocol.Connection) protocol.Connection {
	var out protocol.Connection
	if c.Ssh != nil {
		cp := *c.Ssh
		out.Ssh = &cp
	}
	if c.HostAlias != nil {
		cp := *c.HostAlias
		out.HostAlias = &cp
	}
	if c.RsyncDaemon != nil {
		cp := *c.RsyncDaemon
		out.RsyncDaemon = &cp
	}
	return out
}
