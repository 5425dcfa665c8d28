package cmd

import (
	"fmt"

	"dsf/internal/domain"
	"dsf/internal/rpc"

	"github.com/spf13/cobra"
)

func newNsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ns",
		Short: "Register and look up names in a name service",
		Long: `A name service is an owned service whose data pages map hashed names
to target services. Select the name service with --id or --index.`,
	}
	cmd.AddCommand(newNsSearchCommand(), newNsRegisterCommand())
	return cmd
}

func newNsSearchCommand() *cobra.Command {
	var (
		name string
		hash domain.CryptoHash
		hv   = hashValue{hash: &hash}
	)
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Find services registered under a name or hash",
		Args:  cobra.NoArgs,
	}
	ident := addIdentifierFlags(cmd.Flags(), "name service")
	cmd.Flags().StringVar(&name, "name", "", "name to look up")
	cmd.Flags().Var(&hv, "hash", "base58 name hash to look up")
	cmd.MarkFlagsMutuallyExclusive("name", "hash")
	cmd.MarkFlagsOneRequired("name", "hash")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if err := ident.Validate(); err != nil {
			return err
		}
		opts := rpc.NsSearchOptions{NS: ident.Identifier()}
		if cmd.Flags().Changed("name") {
			opts.Name = &name
		}
		if hv.set {
			opts.Hash = &hash
		}
		if err := opts.Validate(); err != nil {
			return err
		}
		return show[rpc.ServicesResponse](cmd, rpc.NsSearch{NsSearchOptions: opts})
	}
	return cmd
}

func newNsRegisterCommand() *cobra.Command {
	var (
		name   string
		target domain.ID
		tv     = idValue{id: &target}
		opts   rpc.NsRegisterOptions
	)
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a target service under a name",
		Long: `Register a target service with a name service owned by this daemon.

Examples:
  dsf ns register -n 0 --target 7Y3k... --name kitchen-sensor
  dsf ns register -n 0 --target 7Y3k... --hash 4fQz... --hash 9kLm...`,
		Args: cobra.NoArgs,
	}
	ident := addIdentifierFlags(cmd.Flags(), "name service")
	cmd.Flags().Var(&tv, "target", "id of the service to register")
	cmd.Flags().StringVar(&name, "name", "", "name to register")
	cmd.Flags().Var(&hashesValue{hashes: &opts.Hashes}, "hash", "extra base58 name hash (repeatable)")
	_ = cmd.MarkFlagRequired("target")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if err := ident.Validate(); err != nil {
			return err
		}
		opts.NS = ident.Identifier()
		opts.Target = target
		if cmd.Flags().Changed("name") {
			opts.Name = &name
		}
		if err := opts.Validate(); err != nil {
			return fmt.Errorf("ns register: %w", err)
		}
		return show[rpc.NsRegisteredResponse](cmd, rpc.NsRegister{NsRegisterOptions: opts})
	}
	return cmd
}
