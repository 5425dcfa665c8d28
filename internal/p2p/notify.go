package p2p

import (
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/multiformats/go-multiaddr"

	"dsf/internal/domain"
)

// Observer is told about peers as connections come and go. Calls are made
// from their own goroutine and may arrive concurrently.
type Observer interface {
	// PeerConnected reports a secured connection. The address is the
	// remote endpoint as observed, and the ID is the peer's public key.
	PeerConnected(id domain.ID, addr domain.Address, inbound bool)

	// PeerDisconnected reports that the last connection to a peer closed.
	PeerDisconnected(id domain.ID)
}

func (n *Node) notifiee() network.Notifiee {
	return &network.NotifyBundle{
		ConnectedF: func(net network.Network, c network.Conn) {
			obs := n.getObserver()
			if obs == nil {
				return
			}
			id, err := IDFromPeerID(c.RemotePeer())
			if err != nil {
				getLogger("notify").Debug("ignoring peer without ed25519 key", "peer", c.RemotePeer())
				return
			}
			addr := observedAddress(c.RemoteMultiaddr())
			inbound := c.Stat().Direction == network.DirInbound
			go obs.PeerConnected(id, addr, inbound)
		},
		DisconnectedF: func(net network.Network, c network.Conn) {
			obs := n.getObserver()
			if obs == nil {
				return
			}
			if net.Connectedness(c.RemotePeer()) == network.Connected {
				return
			}
			id, err := IDFromPeerID(c.RemotePeer())
			if err != nil {
				return
			}
			go obs.PeerDisconnected(id)
		},
	}
}

func observedAddress(ma multiaddr.Multiaddr) domain.Address {
	if ma == nil {
		return ""
	}
	return AddressFromMultiaddr(ma)
}
