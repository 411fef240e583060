// Copyright (c) 2026 Cilo Authors
// SPDX-License-Identifier: MIT
// See LICENSES/MIT.txt for full license text

// Package daemon implements the daemon control plane: the monitor manager
// (C3), the watchdog (C4), and the shared state plus request dispatcher
// (C5) that together own the registry and the monitor table.
package daemon

import (
	"sync"

	"github.com/sharedco/wsync/internal/registry"
)

// State is the daemon's entire mutable core: the workspace registry and the
// monitor manager, guarded by a single mutex. Every request worker and the
// watchdog acquire this one lock before touching either.
type State struct {
	mu       sync.Mutex
	Registry *registry.Registry
	Manager  *MonitorManager
}

// NewState builds a State wrapping reg and mgr.
func NewState(reg *registry.Registry, mgr *MonitorManager) *State {
	return &State{Registry: reg, Manager: mgr}
}

// Lock acquires the state lock, blocking.
func (s *State) Lock() { s.mu.Lock() }

// Unlock releases the state lock.
func (s *State) Unlock() { s.mu.Unlock() }

// TryLock attempts to acquire the state lock without blocking, used by the
// watchdog so it never starves request workers.
func (s *State) TryLock() bool { return s.mu.TryLock() }
