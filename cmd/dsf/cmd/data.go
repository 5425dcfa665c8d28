package cmd

import (
	"fmt"
	"path/filepath"

	"dsf/internal/domain"
	"dsf/internal/rpc"

	"github.com/spf13/cobra"
)

func newDataCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "data",
		Short: "Publish and read service data",
	}
	cmd.AddCommand(
		newDataListCommand(),
		newDataSyncCommand(),
		newDataQueryCommand(),
		newDataPublishCommand(),
	)
	return cmd
}

func newDataListCommand() *cobra.Command {
	var window domain.TimeBounds
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored data pages of a service",
		Long: `List stored data pages of a service, newest first.

--from and --until accept RFC3339 times, dates, or a duration ago.

Examples:
  dsf data list -n 2 --count 20
  dsf data list -i 7Y3k... --from 1h`,
		Args: cobra.NoArgs,
	}
	ident := addIdentifierFlags(cmd.Flags(), "service")
	page := addPageFlags(cmd.Flags())
	cmd.Flags().Var(&timeValue{t: &window.From}, "from", "only pages published at or after this time")
	cmd.Flags().Var(&timeValue{t: &window.Until}, "until", "only pages published at or before this time")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if err := ident.Validate(); err != nil {
			return err
		}
		if err := window.Validate(); err != nil {
			return err
		}
		return show[rpc.DataResponse](cmd, rpc.DataList{
			Service: ident.Identifier(),
			Page:    page.Bounds(),
			Time:    window,
		})
	}
	return cmd
}

func newDataSyncCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Fetch missing data of subscribed services from their replicas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return done(cmd, rpc.DataSync{}, "data synchronised")
		},
	}
}

func newDataQueryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Ask the network for a service's latest data",
		Args:  cobra.NoArgs,
	}
	ident := addIdentifierFlags(cmd.Flags(), "service")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if err := ident.Validate(); err != nil {
			return err
		}
		return show[rpc.DataResponse](cmd, rpc.DataQuery{Service: ident.Identifier()})
	}
	return cmd
}

func newDataPublishCommand() *cobra.Command {
	var (
		opts rpc.PublishOptions
		kind string
		data string
	)
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish a data page on an owned service",
		Long: `Publish a data page on an owned service.

Examples:
  dsf data publish -n 0 --data 'temperature=21.5'
  dsf data publish -n 0 --kind message --data-file ./reading.json`,
		Args: cobra.NoArgs,
	}
	ident := addIdentifierFlags(cmd.Flags(), "service")
	f := cmd.Flags()
	f.Var(&enumValue{value: &kind, allowed: []string{
		string(domain.DataKindGeneric), string(domain.DataKindMessage), string(domain.DataKindMeta),
	}}, "kind", "data kind (generic, message, meta)")
	f.StringVar(&data, "data", "", "page body")
	f.StringVar(&opts.DataFile, "data-file", "", "read the page body from a file")
	cmd.MarkFlagsMutuallyExclusive("data", "data-file")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if err := ident.Validate(); err != nil {
			return err
		}
		opts.Service = ident.Identifier()
		if kind != "" {
			k := domain.DataKind(kind)
			opts.DataKind = &k
		}
		opts.Data = []byte(data)
		// The daemon reads the file, so send it an absolute path.
		if opts.DataFile != "" {
			abs, err := filepath.Abs(opts.DataFile)
			if err != nil {
				return fmt.Errorf("data file: %w", err)
			}
			opts.DataFile = abs
		}
		if err := opts.Validate(); err != nil {
			return err
		}
		return show[rpc.PublishedResponse](cmd, rpc.DataPublish{PublishOptions: opts})
	}
	return cmd
}
