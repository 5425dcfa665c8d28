package cmd

import (
	"dsf/internal/domain"
	"dsf/internal/rpc"

	"github.com/spf13/cobra"
)

func newPeerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peer",
		Short: "Manage peers known to the daemon",
	}
	cmd.AddCommand(
		newPeerListCommand(),
		newPeerConnectCommand(),
		peerActionCommand("info", "Show one peer", func(id domain.Identifier) rpc.RequestKind {
			return rpc.PeerGet{Peer: id}
		}),
		peerActionCommand("remove", "Forget a peer", func(id domain.Identifier) rpc.RequestKind {
			return rpc.PeerRemove{Peer: id}
		}),
		peerActionCommand("block", "Block a peer and drop its connection", func(id domain.Identifier) rpc.RequestKind {
			return rpc.PeerBlock{Peer: id}
		}),
		peerActionCommand("unblock", "Unblock a peer", func(id domain.Identifier) rpc.RequestKind {
			return rpc.PeerUnblock{Peer: id}
		}),
	)
	return cmd
}

func newPeerListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List known peers",
		Long: `List known peers.

--filter takes a CEL expression over peer.id, peer.index, peer.address,
peer.address_kind, peer.state, peer.sent, peer.received and peer.blocked.

Examples:
  dsf peer list --count 10
  dsf peer list --filter 'peer.blocked'
  dsf peer list --filter 'peer.address.startsWith("/ip4/10.")'`,
		Args: cobra.NoArgs,
	}
	list := addListFlags(cmd.Flags())
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		opts, err := list.Options()
		if err != nil {
			return err
		}
		return show[rpc.PeersResponse](cmd, rpc.PeerList{ListOptions: opts})
	}
	return cmd
}

func newPeerConnectCommand() *cobra.Command {
	var (
		opts rpc.ConnectOptions
		id   domain.ID
		idV  = idValue{id: &id}
	)
	cmd := &cobra.Command{
		Use:   "connect <address>",
		Short: "Connect to a peer at an address",
		Long: `Connect to a peer at an explicit address and record it.

The address is a multiaddr or host:port. The peer id is taken from a
trailing /p2p/<id> component or from --id.

Examples:
  dsf peer connect /ip4/10.0.0.5/tcp/10100/p2p/12D3KooW...
  dsf peer connect 10.0.0.5:10100 --id 7Y3k...`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := domain.ParseAddress(args[0])
			if err != nil {
				return err
			}
			opts.Address = addr
			if idV.set {
				opts.ID = &id
			}
			return show[rpc.ConnectedResponse](cmd, rpc.PeerConnect{ConnectOptions: opts})
		},
	}
	cmd.Flags().VarP(&idV, "id", "i", "expected peer id")
	cmd.Flags().Var(&durationValue{d: &opts.Timeout}, "connect-timeout", "connect timeout (10s, 1m or seconds)")
	return cmd
}

func peerActionCommand(use, short string, build func(domain.Identifier) rpc.RequestKind) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
	}
	ident := addIdentifierFlags(cmd.Flags(), "peer")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if err := ident.Validate(); err != nil {
			return err
		}
		return show[rpc.PeersResponse](cmd, build(ident.Identifier()))
	}
	return cmd
}
