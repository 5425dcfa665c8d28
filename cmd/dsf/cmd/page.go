package cmd

import (
	"dsf/internal/domain"
	"dsf/internal/rpc"

	"github.com/spf13/cobra"
)

func newPageCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "page",
		Short: "Fetch individual pages",
	}
	cmd.AddCommand(newPageFetchCommand())
	return cmd
}

func newPageFetchCommand() *cobra.Command {
	var sig domain.Signature
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch a data page by signature, locally or from a replica",
		Args:  cobra.NoArgs,
	}
	ident := addIdentifierFlags(cmd.Flags(), "service")
	cmd.Flags().Var(&signatureValue{sig: &sig}, "sig", "base58 page signature")
	_ = cmd.MarkFlagRequired("sig")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if err := ident.Validate(); err != nil {
			return err
		}
		return show[rpc.DataResponse](cmd, rpc.PageFetch{FetchOptions: rpc.FetchOptions{
			Service: ident.Identifier(),
			PageSig: sig,
		}})
	}
	return cmd
}
