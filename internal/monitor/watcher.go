// Copyright (c) 2026 Cilo Authors
// SPDX-License-Identifier: MIT
// See LICENSES/MIT.txt for full license text

package monitor

import "errors"

// ErrRootVanished is returned by the Linux Watcher's Run method when the
// workspace root itself was deleted or moved away; the macOS Watcher does
// not detect a vanished root and never returns it. The monitor process exits with a
// distinguished non-zero status on this error so the daemon's watchdog
// picks it up through its ordinary restart-counting path; no new policy
// machinery is introduced for a vanished root.
var ErrRootVanished = errors.New("workspace root directory vanished")
