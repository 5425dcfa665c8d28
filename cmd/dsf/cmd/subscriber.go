package cmd

import (
	"dsf/internal/rpc"

	"github.com/spf13/cobra"
)

func newSubscriberCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscriber",
		Short: "Inspect subscribers of owned and replicated services",
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List the subscribers of a service",
		Args:  cobra.NoArgs,
	}
	ident := addIdentifierFlags(list.Flags(), "service")
	list.RunE = func(cmd *cobra.Command, args []string) error {
		if err := ident.Validate(); err != nil {
			return err
		}
		return show[rpc.SubscribersResponse](cmd, rpc.SubscriberList{Service: ident.Identifier()})
	}
	cmd.AddCommand(list)
	return cmd
}
