// Copyright (c) 2026 Cilo Authors
// SPDX-License-Identifier: MIT
// See LICENSES/MIT.txt for full license text

package daemon

import (
	"encoding/json"
	"os/exec"
	"sync"

	"github.com/sharedco/wsync/internal/protocol"
	"github.com/sharedco/wsync/internal/wsyncerr"
)

// childHandle tracks one spawned monitor process and whether it has exited.
type childHandle struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu      sync.Mutex
	exited  bool
	waitErr error
}

func (h *childHandle) markExited(err error) {
	h.mu.Lock()
	h.exited = true
	h.waitErr = err
	h.mu.Unlock()
	close(h.done)
}

func (h *childHandle) hasExited() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exited
}

// MonitorManager owns the mapping workspace-name -> monitor child process. It
// spawns the monitor executable with a piped stdin, writes the workspace
// description, and tracks liveness so the watchdog can poll it.
type MonitorManager struct {
	mu          sync.Mutex
	monitorPath string
	order       []string
	children    map[string]*childHandle
}

// NewMonitorManager returns a manager that spawns monitorPath for every
// started workspace.
func NewMonitorManager(monitorPath string) *MonitorManager {
	return &MonitorManager{
		monitorPath: monitorPath,
		children:    make(map[string]*childHandle),
	}
}

// StartMonitor spawns a monitor for w, unless w has no remotes (a no-op) or
// w.Name already has an entry, even one whose child has exited (a Conflict).
func (m *MonitorManager) StartMonitor(w protocol.Workspace) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startLocked(w)
}

func (m *MonitorManager) startLocked(w protocol.Workspace) error {
	if len(w.Remotes) == 0 {
		return nil
	}
	if _, exists := m.children[w.Name]; exists {
		return wsyncerr.New(wsyncerr.KindConflict,
			"monitor for workspace "+w.Name+" is already running",
			"monitor already running for '"+w.Name+"'")
	}

	payload, err := json.Marshal(w)
	if err != nil {
		return wsyncerr.Wrap(wsyncerr.KindSerde, err, "failed to serialize workspace for monitor")
	}

	cmd := exec.Command(m.monitorPath)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return wsyncerr.Wrap(wsyncerr.KindChildSpawn, err, "failed to start monitor process")
	}

	if err := cmd.Start(); err != nil {
		return wsyncerr.Wrap(wsyncerr.KindChildSpawn, err, "failed to start monitor process")
	}

	if _, err := stdin.Write(payload); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return wsyncerr.Wrap(wsyncerr.KindChildSpawn, err, "failed to hand workspace description to monitor")
	}
	if err := stdin.Close(); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return wsyncerr.Wrap(wsyncerr.KindChildSpawn, err, "failed to close monitor stdin")
	}

	handle := &childHandle{cmd: cmd, done: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		handle.markExited(err)
	}()

	m.order = append(m.order, w.Name)
	m.children[w.Name] = handle
	return nil
}

// RestartMonitor terminates any existing child for w.Name (if present) and
// starts a fresh one.
func (m *MonitorManager) RestartMonitor(w protocol.Workspace) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.children[w.Name]; exists {
		m.terminateLocked(w.Name)
	}
	return m.startLocked(w)
}

// TerminateMonitor forcibly kills and reaps the child for name, if any.
func (m *MonitorManager) TerminateMonitor(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terminateLocked(name)
	return nil
}

func (m *MonitorManager) terminateLocked(name string) {
	handle, exists := m.children[name]
	if !exists {
		return
	}
	if !handle.hasExited() {
		_ = handle.cmd.Process.Kill()
		<-handle.done
	}
	delete(m.children, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Names returns the workspace names with a manager entry, in insertion order.
func (m *MonitorManager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// IsRunning reports whether name has a live (non-exited) child.
func (m *MonitorManager) IsRunning(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	handle, exists := m.children[name]
	return exists && !handle.hasExited()
}

// HasExited reports whether name has an entry whose child process has exited.
func (m *MonitorManager) HasExited(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	handle, exists := m.children[name]
	return exists && handle.hasExited()
}
