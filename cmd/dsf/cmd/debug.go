package cmd

import (
	"dsf/internal/rpc"

	"github.com/spf13/cobra"
)

func newDebugCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "debug",
		Short:  "Daemon diagnostics",
		Hidden: true,
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "datastore",
			Short: "Dump the daemon datastore",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return show[rpc.DatastoreResponse](cmd, rpc.DebugDatastore{})
			},
		},
		&cobra.Command{
			Use:   "update",
			Short: "Run an update sweep now",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return done(cmd, rpc.DebugUpdate{}, "update sweep complete")
			},
		},
		&cobra.Command{
			Use:   "bootstrap",
			Short: "Re-run network bootstrap",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return done(cmd, rpc.DebugBootstrap{}, "bootstrap complete")
			},
		},
	)
	return cmd
}
