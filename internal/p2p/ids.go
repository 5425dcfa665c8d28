package p2p

import (
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
	"github.com/multiformats/go-multihash"

	"dsf/internal/domain"
)

// ProtocolPrefix namespaces every dsf protocol on the libp2p network.
const ProtocolPrefix = "/dsf"

// ErrNoPeerID is returned when an address names no peer and none was given.
var ErrNoPeerID = errors.New("address does not name a peer")

// PeerIDFromID returns the libp2p peer ID for a dsf ID. Both are derived
// from the same ed25519 public key.
func PeerIDFromID(id domain.ID) (peer.ID, error) {
	pk, err := crypto.UnmarshalEd25519PublicKey(id[:])
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidIdentifier, err)
	}
	pid, err := peer.IDFromPublicKey(pk)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidIdentifier, err)
	}
	return pid, nil
}

// IDFromPeerID recovers the dsf ID embedded in an ed25519 peer ID.
func IDFromPeerID(pid peer.ID) (domain.ID, error) {
	pk, err := pid.ExtractPublicKey()
	if err != nil {
		return domain.ID{}, fmt.Errorf("%w: peer %s: %v", domain.ErrInvalidIdentifier, pid, err)
	}
	if pk.Type() != crypto.Ed25519 {
		return domain.ID{}, fmt.Errorf("%w: peer %s uses %s keys", domain.ErrInvalidIdentifier, pid, pk.Type())
	}
	raw, err := pk.Raw()
	if err != nil {
		return domain.ID{}, fmt.Errorf("%w: %v", domain.ErrInvalidIdentifier, err)
	}
	var id domain.ID
	if len(raw) != len(id) {
		return domain.ID{}, fmt.Errorf("%w: peer key is %d bytes", domain.ErrInvalidIdentifier, len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// ServiceCID is the DHT content key a service is provided under.
func ServiceCID(id domain.ID) (cid.Cid, error) {
	mh, err := multihash.Sum(id[:], multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, fmt.Errorf("hash service id: %w", err)
	}
	return cid.NewCidV1(cid.Raw, mh), nil
}

// ServiceTopic is the pubsub topic carrying a service's data pages.
func ServiceTopic(id domain.ID) string {
	return ProtocolPrefix + "/service/" + id.String()
}

// AddressFromMultiaddr converts a transport multiaddr to a domain address,
// dropping any trailing /p2p component.
func AddressFromMultiaddr(ma multiaddr.Multiaddr) domain.Address {
	transport, _ := peer.SplitAddr(ma)
	if transport == nil {
		return domain.Address(ma.String())
	}
	return domain.Address(transport.String())
}

// AddrInfo builds dial information for addr. The peer is taken from a /p2p
// component of the address or from id; when both are present they must agree.
func AddrInfo(addr domain.Address, id *domain.ID) (peer.AddrInfo, error) {
	ma, err := addr.Multiaddr()
	if err != nil {
		return peer.AddrInfo{}, fmt.Errorf("%w: %v", domain.ErrInvalidAddress, err)
	}

	transport, embedded := peer.SplitAddr(ma)
	if transport == nil {
		return peer.AddrInfo{}, fmt.Errorf("%w: %s has no transport", domain.ErrInvalidAddress, addr)
	}

	var want peer.ID
	if id != nil {
		if want, err = PeerIDFromID(*id); err != nil {
			return peer.AddrInfo{}, err
		}
	}

	switch {
	case embedded == "" && want == "":
		return peer.AddrInfo{}, fmt.Errorf("%w: %w: %s", domain.ErrInvalidAddress, ErrNoPeerID, addr)
	case embedded == "":
		embedded = want
	case want != "" && embedded != want:
		return peer.AddrInfo{}, fmt.Errorf("%w: address names %s, expected %s", domain.ErrKeyMismatch, embedded, want)
	}

	return peer.AddrInfo{ID: embedded, Addrs: []multiaddr.Multiaddr{transport}}, nil
}

// parseMultiaddrs parses a slice of multiaddr strings.
func parseMultiaddrs(addrs []string) ([]multiaddr.Multiaddr, error) {
	result := make([]multiaddr.Multiaddr, 0, len(addrs))
	for _, addr := range addrs {
		ma, err := multiaddr.NewMultiaddr(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid multiaddr %q: %w", addr, err)
		}
		result = append(result, ma)
	}
	return result, nil
}
