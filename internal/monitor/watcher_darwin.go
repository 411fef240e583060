// Copyright (c) 2026 Cilo Authors
// SPDX-License-Identifier: MIT
// See LICENSES/MIT.txt for full license text

//go:build darwin

package monitor

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"github.com/sharedco/wsync/internal/logging"
)

// Watcher is the macOS kqueue-backed filesystem watch engine. Unlike the
// Linux variant it does not need a recursive watch-descriptor graph: it
// keeps one open fd per watched directory, registers newly appearing
// subdirectories when their parent reports NOTE_WRITE, and path-level
// events are reduced directly to a parent-directory sync request, matching
// the macOS variant described for the watch engine.
type Watcher struct {
	kq     int
	root   string
	logger *logging.Logger
	syncer *Syncer
	fds    map[int]string // watched fd -> absolute path
	closed chan struct{}
}

// NewWatcher opens a kqueue instance and registers NOTE_WRITE, NOTE_DELETE
// and NOTE_RENAME watches on root and every existing subdirectory.
func NewWatcher(root string, logger *logging.Logger, syncer *Syncer) (*Watcher, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, fmt.Errorf("kqueue: %w", err)
	}

	w := &Watcher{kq: kq, root: root, logger: logger, syncer: syncer, fds: make(map[int]string), closed: make(chan struct{})}
	if err := w.registerTree(root); err != nil {
		unix.Close(kq)
		return nil, err
	}
	return w, nil
}

func (w *Watcher) registerTree(dir string) error {
	if err := w.registerOne(dir); err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("readdir(%s): %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			if err := w.registerTree(filepath.Join(dir, e.Name())); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *Watcher) registerOne(dir string) error {
	fd, err := unix.Open(dir, unix.O_EVTONLY, 0)
	if err != nil {
		return fmt.Errorf("open(%s): %w", dir, err)
	}
	w.fds[fd] = dir

	ev := unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: unix.EVFILT_VNODE,
		Flags:  unix.EV_ADD | unix.EV_CLEAR,
		Fflags: unix.NOTE_WRITE | unix.NOTE_DELETE | unix.NOTE_RENAME,
	}
	_, err = unix.Kevent(w.kq, []unix.Kevent_t{ev}, nil, nil)
	return err
}

// Run blocks handling kqueue events, reducing every notification to a
// parent-directory sync request, until Close is called.
func (w *Watcher) Run() error {
	events := make([]unix.Kevent_t, 16)
	for {
		select {
		case <-w.closed:
			return nil
		default:
		}

		ts := unix.Timespec{Sec: 1}
		n, err := unix.Kevent(w.kq, nil, events, &ts)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("kevent: %w", err)
		}
		for i := 0; i < n; i++ {
			w.handleEvent(events[i])
		}
	}
}

func (w *Watcher) handleEvent(ev unix.Kevent_t) {
	dir, ok := w.fds[int(ev.Ident)]
	if !ok {
		return
	}

	if ev.Fflags&unix.NOTE_WRITE != 0 {
		entries, err := os.ReadDir(dir)
		if err == nil {
			for _, e := range entries {
				if e.IsDir() {
					if _, already := w.pathRegistered(filepath.Join(dir, e.Name())); !already {
						_ = w.registerTree(filepath.Join(dir, e.Name()))
					}
				}
			}
		}
	}

	rel := ParentRelPath(w.root, dir+string(filepath.Separator)+"x")
	w.syncer.RequestSync(rel)

	// A short debounce avoids hammering rsync for rapid successive writes
	// to the same directory, mirroring the coalescing the Linux variant
	// gets for free from CLOSE_WRITE suppression of CREATE/MOVED_TO.
	time.Sleep(10 * time.Millisecond)
}

func (w *Watcher) pathRegistered(path string) (int, bool) {
	for fd, p := range w.fds {
		if p == path {
			return fd, true
		}
	}
	return 0, false
}

// Close stops Run and releases all open directory file descriptors.
func (w *Watcher) Close() error {
	close(w.closed)
	for fd := range w.fds {
		unix.Close(fd)
	}
	return unix.Close(w.kq)
}

// RootVanished always reports false on macOS: the platform watcher does
// not distinguish a vanished root from any other NOTE_DELETE.
func (w *Watcher) RootVanished() bool { return false }
