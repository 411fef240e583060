// Copyright (c) 2026 Cilo Authors
// SPDX-License-Identifier: MIT
// See LICENSES/MIT.txt for full license text

// Command wsync is the client program invoked from a terminal to send
// administrative commands to the wsync daemon.
package main

import (
	"fmt"
	"os"

	"github.com/sharedco/wsync/internal/wsynccli"
)

func main() {
	if err := wsynccli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "wsync: "+err.Error())
		os.Exit(1)
	}
}
