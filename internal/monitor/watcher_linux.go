// Copyright (c) 2026 Cilo Authors
// SPDX-License-Identifier: MIT
// See LICENSES/MIT.txt for full license text

//go:build linux

package monitor

import (
	"fmt"
	"os"
	"path/filepath"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/sharedco/wsync/internal/logging"
)

// watchMask covers content-mutation close, entry creation, entry deletion
// (including unlink of the watched directory itself), entry moves (both
// endpoints), and the watched-object-deleted signal; watches are
// directory-only and ignore unlinks of already-opened handles.
const watchMask = unix.IN_MODIFY | unix.IN_CLOSE_WRITE | unix.IN_CREATE | unix.IN_DELETE |
	unix.IN_DELETE_SELF | unix.IN_MOVED_FROM | unix.IN_MOVED_TO | unix.IN_MOVE_SELF |
	unix.IN_EXCL_UNLINK | unix.IN_ONLYDIR

const eventBufferSize = 4096

// Watcher is the Linux inotify-backed filesystem watch engine (C6).
type Watcher struct {
	fd           int
	graph        *Graph
	logger       *logging.Logger
	syncer       *Syncer
	rootVanished bool
}

// NewWatcher opens an inotify instance and bootstraps a watch graph rooted
// at root by walking its subdirectories depth-first and registering one
// watch per directory.
func NewWatcher(root string, logger *logging.Logger, syncer *Syncer) (*Watcher, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("inotify_init1: %w", err)
	}

	w := &Watcher{fd: fd, graph: NewGraph(root), logger: logger, syncer: syncer}
	if err := w.bootstrap(root); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return w, nil
}

func (w *Watcher) bootstrap(root string) error {
	type pending struct{ path, parent string }
	stack := []pending{{path: root, parent: ""}}

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		wd, err := unix.InotifyAddWatch(w.fd, cur.path, watchMask)
		if err != nil {
			return fmt.Errorf("inotify_add_watch(%s): %w", cur.path, err)
		}
		w.graph.Insert(WatchID(wd), cur.path, cur.parent)

		entries, err := os.ReadDir(cur.path)
		if err != nil {
			return fmt.Errorf("readdir(%s): %w", cur.path, err)
		}
		for _, e := range entries {
			if e.IsDir() {
				stack = append(stack, pending{path: filepath.Join(cur.path, e.Name()), parent: cur.path})
			}
		}
	}
	return nil
}

// registerSubtree walks dir (newly created or moved in) and registers
// watches recursively, mirroring bootstrap.
func (w *Watcher) registerSubtree(dir string) {
	wd, err := unix.InotifyAddWatch(w.fd, dir, watchMask)
	if err != nil {
		w.logger.Warn("failed to watch new directory %s: %v", dir, err)
		return
	}
	w.graph.Insert(WatchID(wd), dir, filepath.Dir(dir))

	entries, err := os.ReadDir(dir)
	if err != nil {
		w.logger.Warn("failed to read new directory %s: %v", dir, err)
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			w.registerSubtree(filepath.Join(dir, e.Name()))
		}
	}
}

// Run blocks reading inotify events until a read fails (for example the
// first read after Close) or the workspace root vanishes. A signal does not
// end a read in progress: EINTR is retried.
func (w *Watcher) Run() error {
	buf := make([]byte, eventBufferSize)
	for {
		n, err := unix.Read(w.fd, buf)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("reading inotify events: %w", err)
		}
		if n == 0 {
			return nil
		}
		w.handleEvents(buf[:n])
		if w.rootVanished {
			return ErrRootVanished
		}
	}
}

// Close releases the inotify file descriptor. A read already blocked in Run
// is not woken by it; Run returns with an error on its next read.
func (w *Watcher) Close() error {
	return unix.Close(w.fd)
}

func (w *Watcher) handleEvents(buf []byte) {
	offset := 0
	for offset+unix.SizeofInotifyEvent <= len(buf) {
		raw := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
		nameLen := int(raw.Len)
		var name string
		if nameLen > 0 {
			nameBytes := buf[offset+unix.SizeofInotifyEvent : offset+unix.SizeofInotifyEvent+nameLen]
			name = cString(nameBytes)
		}
		offset += unix.SizeofInotifyEvent + nameLen

		w.handleOne(WatchID(raw.Wd), uint32(raw.Mask), name)
	}
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func (w *Watcher) handleOne(wd WatchID, mask uint32, name string) {
	parentAbs, parentRel, ok := w.graph.Lookup(wd)
	if !ok {
		// Stale event after a previous removal; not an error.
		return
	}

	if mask&unix.IN_IGNORED != 0 {
		w.graph.Remove(wd, w.removeWatchIgnoringErrors)
		return
	}

	isDir := mask&unix.IN_ISDIR != 0
	childAbs := parentAbs
	if name != "" {
		childAbs = filepath.Join(parentAbs, name)
	}

	switch {
	case (mask&unix.IN_CREATE != 0 || mask&unix.IN_MOVED_TO != 0) && isDir:
		w.registerSubtree(childAbs)

	case (mask&unix.IN_CREATE != 0 || mask&unix.IN_MOVED_TO != 0) && !isDir:
		// Suppressed: the subsequent CLOSE_WRITE drives the sync.
		return

	case (mask&unix.IN_DELETE != 0 || mask&unix.IN_MOVED_FROM != 0) && isDir:
		if childID, ok := w.graph.LookupPath(childAbs); ok {
			w.graph.Remove(childID, w.removeWatchIgnoringErrors)
		}

	case mask&unix.IN_DELETE_SELF != 0 || mask&unix.IN_MOVE_SELF != 0:
		if !w.graph.IsRoot(wd) {
			// Ignored for subdirectories: the parent's DELETE/MOVED_FROM
			// already handles it.
			return
		}
		// Workspace root vanished; Run returns ErrRootVanished once the
		// current batch of events has been handled.
		w.rootVanished = true
		return
	}

	_ = parentRel
	w.syncer.RequestSync(ParentRelPath(w.graph.Root(), childAbs))
}

func (w *Watcher) removeWatchIgnoringErrors(id WatchID) {
	_, _ = unix.InotifyRmWatch(w.fd, uint32(id))
}

// RootVanished reports whether DELETE_SELF/MOVE_SELF was observed on the
// workspace root, per the documented policy: the monitor exits with a
// distinguished status and lets the watchdog's restart-counting path pick
// it up.
func (w *Watcher) RootVanished() bool { return w.rootVanished }
