// Copyright (c) 2026 Cilo Authors
// SPDX-License-Identifier: MIT
// See LICENSES/MIT.txt for full license text

// Package wsynccli is the wsync client command grammar: a thin cobra-based
// CLI that marshals each subcommand to a daemon request and prints the
// result. It owns no daemon-side logic.
package wsynccli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sharedco/wsync/internal/daemonclient"
	"github.com/sharedco/wsync/internal/wsyncconfig"
)

var rootCmd = &cobra.Command{
	Use:           "wsync",
	Short:         "wsync - keep local workspaces mirrored to remote trees",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI, returning a non-nil error on any failure (input
// validation, transport, or a daemon-reported error), so main can map it to
// exit code 1.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(workspaceInfoCmd)
	rootCmd.AddCommand(listWorkspacesCmd)
	rootCmd.AddCommand(listWorkspaceInfoCmd)
	rootCmd.AddCommand(addWorkspaceCmd)
	rootCmd.AddCommand(removeWorkspaceCmd)
	rootCmd.AddCommand(attachRemoteCmd)
	rootCmd.AddCommand(detachRemoteCmd)
}

// client builds a daemonclient.Client from the configured socket path.
func client() (*daemonclient.Client, error) {
	cfg, err := wsyncconfig.LoadDefault()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	sockPath, ok := cfg.Get(wsyncconfig.DaemonCommandSocketPath)
	if !ok {
		return nil, fmt.Errorf("config is missing %s", wsyncconfig.DaemonCommandSocketPath)
	}
	return daemonclient.New(sockPath), nil
}
