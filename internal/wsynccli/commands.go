// Copyright (c) 2026 Cilo Authors
// SPDX-License-Identifier: MIT
// See LICENSES/MIT.txt for full license text

package wsynccli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sharedco/wsync/internal/protocol"
)

var workspaceInfoCmd = &cobra.Command{
	Use:   "workspace-info <name>",
	Short: "Show the full description of one workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := client()
		if err != nil {
			return err
		}
		ws, err := c.WorkspaceInfo(args[0])
		if err != nil {
			return err
		}
		return printJSON(ws)
	},
}

var listWorkspacesCmd = &cobra.Command{
	Use:   "list",
	Short: "List managed workspaces",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := client()
		if err != nil {
			return err
		}
		result, err := c.ListWorkspaces()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tLOCAL PATH\tREMOTES")
		for _, e := range result.Entries {
			fmt.Fprintf(w, "%s\t%s\t%d\n", e.Name, e.LocalPath, e.NrOfRemoteWorkspaces)
		}
		return w.Flush()
	},
}

var listWorkspaceInfoCmd = &cobra.Command{
	Use:   "list-info",
	Short: "List managed workspaces with full remote detail",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := client()
		if err != nil {
			return err
		}
		result, err := c.ListWorkspaceInfo()
		if err != nil {
			return err
		}
		return printJSON(result.Entries)
	},
}

var addWorkspaceCmd = &cobra.Command{
	Use:   "add <name> <path>",
	Short: "Register a new workspace",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := client()
		if err != nil {
			return err
		}
		if err := c.AddWorkspace(args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("added workspace %q at %s\n", args[0], args[1])
		return nil
	},
}

var removeWorkspaceCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Deregister a workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := client()
		if err != nil {
			return err
		}
		if err := c.RemoveWorkspace(args[0]); err != nil {
			return err
		}
		fmt.Printf("removed workspace %q\n", args[0])
		return nil
	},
}

var attachRemoteCmd = &cobra.Command{
	Use:   "attach <local> <remote> <remote-path>",
	Short: "Attach a remote sync target to a workspace",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		alias, _ := cmd.Flags().GetString("alias")
		host, _ := cmd.Flags().GetString("host")
		user, _ := cmd.Flags().GetString("user")
		identity, _ := cmd.Flags().GetString("identity-file")
		daemonFlag, _ := cmd.Flags().GetBool("daemon")
		var portPtr *uint16
		if port, _ := cmd.Flags().GetInt("port"); port != 0 {
			p := uint16(port)
			portPtr = &p
		}

		conn, err := buildConnection(alias, host, user, identity, daemonFlag, portPtr)
		if err != nil {
			return err
		}

		c, err := client()
		if err != nil {
			return err
		}
		req := protocol.AttachRemoteWorkspaceRequest{
			Local:      args[0],
			Remote:     args[1],
			RemotePath: args[2],
			Connection: conn,
		}
		if err := c.AttachRemoteWorkspace(req); err != nil {
			return err
		}
		fmt.Printf("attached remote %q to workspace %q\n", args[1], args[0])
		return nil
	},
}

var detachRemoteCmd = &cobra.Command{
	Use:   "detach <local> <remote>",
	Short: "Detach a remote sync target from a workspace",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := client()
		if err != nil {
			return err
		}
		if err := c.DetachRemoteWorkspace(args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("detached remote %q from workspace %q\n", args[1], args[0])
		return nil
	},
}

func init() {
	attachRemoteCmd.Flags().String("alias", "", "Use the host's SSH config alias for the connection")
	attachRemoteCmd.Flags().String("host", "", "Remote host (for --daemon or direct SSH)")
	attachRemoteCmd.Flags().String("user", "", "Remote user")
	attachRemoteCmd.Flags().String("identity-file", "", "SSH identity file")
	attachRemoteCmd.Flags().Int("port", 0, "Remote port")
	attachRemoteCmd.Flags().Bool("daemon", false, "Connect via rsync daemon protocol instead of SSH")
}

func buildConnection(alias, host, user, identity string, useDaemon bool, port *uint16) (protocol.Connection, error) {
	switch {
	case alias != "":
		return protocol.Connection{HostAlias: &protocol.HostAliasConnection{Alias: alias}}, nil
	case useDaemon:
		if host == "" {
			return protocol.Connection{}, fmt.Errorf("--daemon requires --host")
		}
		c := &protocol.RsyncDaemonConnection{Host: host, Port: port}
		if user != "" {
			c.User = &user
		}
		return protocol.Connection{RsyncDaemon: c}, nil
	case host != "":
		c := &protocol.SshConnection{Host: host, Port: port}
		if user != "" {
			c.User = &user
		}
		if identity != "" {
			c.IdentityFile = &identity
		}
		return protocol.Connection{Ssh: c}, nil
	default:
		return protocol.Connection{}, fmt.Errorf("one of --alias, --host, or --daemon with --host is required")
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
