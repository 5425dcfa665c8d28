package cmd

import (
	"dsf/internal/rpc"

	"github.com/spf13/cobra"
)

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the daemon id and peer and service counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return show[rpc.StatusResponse](cmd, rpc.Status{})
		},
	}
}
