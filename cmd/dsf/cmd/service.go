package cmd

import (
	"fmt"

	"dsf/internal/domain"
	"dsf/internal/rpc"

	"github.com/spf13/cobra"
)

func newServiceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "service",
		Aliases: []string{"svc"},
		Short:   "Create, locate and subscribe to services",
	}
	cmd.AddCommand(
		newServiceListCommand(),
		newServiceInfoCommand(),
		newServiceCreateCommand(),
		newServiceSearchCommand(),
		newServiceRegisterCommand(),
		newServiceSubscribeCommand(),
		newServiceUnsubscribeCommand(),
		newServiceSetKeyCommand(),
	)
	return cmd
}

func newServiceListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List known services",
		Long: `List known services.

--filter takes a CEL expression over service.id, service.index,
service.application_id, service.state, service.origin, service.public,
service.registered, service.located, service.subscribed,
service.subscribers and service.replicas.

Examples:
  dsf service list --application-id 3
  dsf service list --filter 'service.origin && service.subscribers > 0'`,
		Args: cobra.NoArgs,
	}
	list := addListFlags(cmd.Flags())
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		opts, err := list.Options()
		if err != nil {
			return err
		}
		return show[rpc.ServicesResponse](cmd, rpc.ServiceList{ListOptions: opts})
	}
	return cmd
}

func newServiceInfoCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show one service",
		Args:  cobra.NoArgs,
	}
	ident := addIdentifierFlags(cmd.Flags(), "service")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if err := ident.Validate(); err != nil {
			return err
		}
		return show[rpc.ServicesResponse](cmd, rpc.ServiceGet{Service: ident.Identifier()})
	}
	return cmd
}

func newServiceCreateCommand() *cobra.Command {
	var (
		opts     rpc.CreateOptions
		appID    int
		pageKind string
		body     string
		bodyFile string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a service owned by the daemon",
		Long: `Create a service owned by the daemon.

Private services get a fresh secret key that is printed once; share it
with subscribers so they can read published data.

Examples:
  dsf service create --application-id 3 --metadata room:kitchen
  dsf service create --public --register --body-file page.bin`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if appID < 0 || appID > 0xffff {
				return fmt.Errorf("%w: application id %d", domain.ErrMalformed, appID)
			}
			opts.ApplicationID = uint16(appID)
			if pageKind != "" {
				k, err := parseUint16("page kind", pageKind)
				if err != nil {
					return err
				}
				opts.PageKind = &k
			}
			switch {
			case body != "" && bodyFile != "":
				return fmt.Errorf("%w: --body and --body-file are exclusive", domain.ErrMalformed)
			case bodyFile != "":
				b, err := rpc.LoadBody(bodyFile)
				if err != nil {
					return err
				}
				opts.Body = b
			case body != "":
				opts.Body = []byte(body)
			}
			return show[rpc.CreatedResponse](cmd, rpc.ServiceCreate{CreateOptions: opts})
		},
	}
	f := cmd.Flags()
	f.IntVar(&appID, "application-id", 0, "application id (0-65535)")
	f.StringVar(&pageKind, "page-kind", "", "page kind (decimal or 0x hex)")
	f.StringVar(&body, "body", "", "primary page body")
	f.StringVar(&bodyFile, "body-file", "", "read the primary page body from a file")
	f.Var(&addressesValue{addrs: &opts.Addresses}, "address", "service address (repeatable)")
	f.Var(&metadataValue{entries: &opts.Metadata}, "metadata", "key:value metadata (repeatable)")
	f.BoolVar(&opts.Public, "public", false, "publish data unencrypted")
	f.BoolVar(&opts.Register, "register", false, "register the service once created")
	return cmd
}

func newServiceSearchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "search <id>",
		Short: "Locate a service on the network",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := domain.ParseID(args[0])
			if err != nil {
				return err
			}
			return show[rpc.LocatedResponse](cmd, rpc.ServiceSearch{LocateOptions: rpc.LocateOptions{ID: id}})
		},
	}
}

func newServiceRegisterCommand() *cobra.Command {
	var opts rpc.RegisterOptions
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Publish a service's primary page to the network",
		Args:  cobra.NoArgs,
	}
	ident := addIdentifierFlags(cmd.Flags(), "service")
	cmd.Flags().BoolVar(&opts.NoReplica, "no-replica", false, "do not also publish a replica page")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if err := ident.Validate(); err != nil {
			return err
		}
		return show[rpc.RegisteredResponse](cmd, rpc.ServiceRegister{Service: ident.Identifier(), RegisterOptions: opts})
	}
	return cmd
}

func newServiceSubscribeCommand() *cobra.Command {
	qos := string(domain.QosNone)
	cmd := &cobra.Command{
		Use:   "subscribe",
		Short: "Subscribe to a located service's data",
		Args:  cobra.NoArgs,
	}
	ident := addIdentifierFlags(cmd.Flags(), "service")
	cmd.Flags().Var(&enumValue{value: &qos, allowed: []string{string(domain.QosNone), string(domain.QosLatency)}},
		"qos", "delivery priority (none, latency)")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if err := ident.Validate(); err != nil {
			return err
		}
		return show[rpc.SubscribedResponse](cmd, rpc.ServiceSubscribe{
			Service:          ident.Identifier(),
			SubscribeOptions: rpc.SubscribeOptions{QoS: domain.QosPriority(qos)},
		})
	}
	return cmd
}

func newServiceUnsubscribeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unsubscribe",
		Short: "Drop a subscription",
		Args:  cobra.NoArgs,
	}
	ident := addIdentifierFlags(cmd.Flags(), "service")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if err := ident.Validate(); err != nil {
			return err
		}
		return done(cmd, rpc.ServiceUnsubscribe{Service: ident.Identifier()}, "unsubscribed from "+ident.Identifier().String())
	}
	return cmd
}

func newServiceSetKeyCommand() *cobra.Command {
	var (
		key      *domain.SecretKey
		clearKey bool
	)
	cmd := &cobra.Command{
		Use:   "set-key",
		Short: "Set or clear the secret key used to read a service's data",
		Args:  cobra.NoArgs,
	}
	ident := addIdentifierFlags(cmd.Flags(), "service")
	cmd.Flags().Var(&secretKeyValue{key: &key}, "key", "base58 secret key")
	cmd.Flags().BoolVar(&clearKey, "clear", false, "clear the secret key")
	cmd.MarkFlagsMutuallyExclusive("key", "clear")
	cmd.MarkFlagsOneRequired("key", "clear")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if err := ident.Validate(); err != nil {
			return err
		}
		return show[rpc.ServicesResponse](cmd, rpc.ServiceSetKey{SetKeyOptions: rpc.SetKeyOptions{
			Service:   ident.Identifier(),
			SecretKey: key,
		}})
	}
	return cmd
}
