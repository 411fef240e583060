// Copyright (c) 2026 Cilo Authors
// SPDX-License-Identifier: MIT
// See LICENSES/MIT.txt for full license text

package monitor

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/sharedco/wsync/internal/logging"
	"github.com/sharedco/wsync/internal/protocol"
	"github.com/sharedco/wsync/internal/wsyncerr"
)

// Syncer builds rsync argument vectors for a workspace's attached remotes
// and invokes the external tool synchronously, per remote.
type Syncer struct {
	workspace protocol.Workspace
	logger    *logging.Logger
	runner    func(name string, args []string) ([]byte, []byte, error)
}

// NewSyncer builds a Syncer over ws, logging per-remote failures through logger.
func NewSyncer(ws protocol.Workspace, logger *logging.Logger) *Syncer {
	return &Syncer{workspace: ws, logger: logger, runner: runCommand}
}

func runCommand(name string, args []string) ([]byte, []byte, error) {
	cmd := exec.Command(name, args...)
	var stdout, stderr bufferedWriter
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.buf, stderr.buf, err
}

type bufferedWriter struct{ buf []byte }

func (b *bufferedWriter) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// RequestSync syncs relPath (the changed parent directory, relative to the
// workspace root; "" means the workspace root) to every attached remote.
// Per-remote failures are logged and never propagated; a LocalError aborts
// processing the remaining remotes for this event.
func (s *Syncer) RequestSync(relPath string) {
	for _, remote := range s.workspace.Remotes {
		if err := s.syncOne(remote, relPath); err != nil {
			if wsyncerr.Is(err, wsyncerr.KindLocalError) {
				s.logger.Error("aborting sync for remaining remotes after local error: %v", err)
				return
			}
			s.logger.Warn("sync to remote %q failed: %v", remote.Name, err)
		}
	}
}

// syncOne runs one rsync invocation for remote at relPath, retrying once
// with a full-tree sync (relPath == "") if a non-empty relPath sync fails
// with a remote-system error.
func (s *Syncer) syncOne(remote protocol.RemoteWorkspace, relPath string) error {
	err := s.invoke(remote, relPath)
	if err == nil {
		return nil
	}
	if !wsyncerr.Is(err, wsyncerr.KindRemoteSystem) || relPath == "" {
		return err
	}

	s.logger.Warn("partial sync of %q to %q failed, retrying as a full-tree sync: %v", relPath, remote.Name, err)
	return s.invoke(remote, "")
}

func (s *Syncer) invoke(remote protocol.RemoteWorkspace, relPath string) error {
	args, err := buildRsyncArgs(s.workspace.LocalPath, relPath, remote)
	if err != nil {
		return wsyncerr.Wrap(wsyncerr.KindLocalError, err, "failed to build rsync invocation")
	}

	stdout, stderr, err := s.runner("rsync", args)
	if len(stdout) > 0 {
		s.logger.Warn("rsync[%s] stdout: %s", remote.Name, stdout)
	}
	if len(stderr) > 0 {
		s.logger.Error("rsync[%s] stderr: %s", remote.Name, stderr)
	}
	if err != nil {
		return wsyncerr.Wrap(wsyncerr.KindRemoteSystem, err, "rsync reported a non-zero exit status")
	}
	return nil
}

// buildRsyncArgs builds the argument vector for one remote, per the
// argument-construction design: base flags, a remote-shell clause for SSH,
// and a destination shape that varies by connection kind. The source is
// always given a trailing slash so rsync copies directory contents rather
// than the directory itself.
func buildRsyncArgs(localPath, relPath string, remote protocol.RemoteWorkspace) ([]string, error) {
	if err := remote.Connection.Validate(); err != nil {
		return nil, err
	}

	args := []string{"-azq", "--delete"}

	source := filepath.Clean(filepath.Join(localPath, relPath)) + "/"
	remoteSubpath := filepath.Join(remote.RemotePath, relPath)

	switch {
	case remote.Connection.Ssh != nil:
		c := remote.Connection.Ssh
		sshArgs := "ssh"
		if c.Port != nil {
			sshArgs += " -p " + strconv.Itoa(int(*c.Port))
		}
		if c.IdentityFile != nil {
			sshArgs += " -i " + *c.IdentityFile
		}
		args = append(args, "-e", sshArgs)

		dest := c.Host + ":" + remoteSubpath
		if c.User != nil {
			dest = *c.User + "@" + dest
		}
		args = append(args, source, dest)

	case remote.Connection.HostAlias != nil:
		dest := remote.Connection.HostAlias.Alias + ":" + remoteSubpath
		args = append(args, source, dest)

	case remote.Connection.RsyncDaemon != nil:
		c := remote.Connection.RsyncDaemon
		host := c.Host
		if c.Port != nil {
			host += ":" + strconv.Itoa(int(*c.Port))
		}
		if c.User != nil {
			host = *c.User + "@" + host
		}
		dest := "rsync://" + host + remoteSubpath
		args = append(args, source, dest)

	default:
		return nil, fmt.Errorf("connection has no recognized shape")
	}

	return args, nil
}
