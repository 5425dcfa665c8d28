package p2p

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/net/connmgr"
	"github.com/libp2p/go-libp2p/p2p/security/noise"
	libp2pquic "github.com/libp2p/go-libp2p/p2p/transport/quic"
	"github.com/libp2p/go-libp2p/p2p/transport/tcp"
	"github.com/multiformats/go-multiaddr"

	"dsf/internal/config"
)

// Host wraps a libp2p host with the node's identity and block list.
type Host struct {
	host.Host
	cfg      config.P2PConfig
	identity *Identity
	gater    *blockList

	extMu    sync.RWMutex
	external []multiaddr.Multiaddr
}

// NewHost creates a libp2p host for identity.
func NewHost(cfg config.P2PConfig, identity *Identity) (*Host, error) {
	listenAddrs, err := parseMultiaddrs(cfg.ListenAddresses)
	if err != nil {
		return nil, fmt.Errorf("failed to parse listen addresses: %w", err)
	}
	externalAddrs, err := parseMultiaddrs(cfg.ExternalAddresses)
	if err != nil {
		return nil, fmt.Errorf("failed to parse external addresses: %w", err)
	}

	connMgr, err := connmgr.NewConnManager(
		cfg.ConnManager.LowWatermark,
		cfg.ConnManager.HighWatermark,
		connmgr.WithGracePeriod(cfg.ConnManager.GracePeriod),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection manager: %w", err)
	}

	h := &Host{
		cfg:      cfg,
		identity: identity,
		gater:    newBlockList(),
		external: externalAddrs,
	}

	opts := []libp2p.Option{
		libp2p.Identity(identity.PrivKey),
		libp2p.ListenAddrs(listenAddrs...),

		libp2p.Transport(tcp.NewTCPTransport),
		libp2p.Transport(libp2pquic.NewTransport),
		libp2p.Security(noise.ID, noise.New),

		libp2p.ConnectionManager(connMgr),
		libp2p.ConnectionGater(h.gater),

		libp2p.NATPortMap(),
		libp2p.EnableHolePunching(),
		libp2p.AddrsFactory(h.announce),
	}

	lh, err := libp2p.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create libp2p host: %w", err)
	}
	h.Host = lh

	return h, nil
}

// announce appends the external addresses to the listen addresses.
func (h *Host) announce(addrs []multiaddr.Multiaddr) []multiaddr.Multiaddr {
	h.extMu.RLock()
	defer h.extMu.RUnlock()

	out := make([]multiaddr.Multiaddr, 0, len(addrs)+len(h.external))
	out = append(out, addrs...)
	return append(out, h.external...)
}

// AddExternalAddr announces ma in addition to the listen addresses. It
// reports whether the address was new.
func (h *Host) AddExternalAddr(ma multiaddr.Multiaddr) bool {
	h.extMu.Lock()
	defer h.extMu.Unlock()

	for _, have := range h.external {
		if have.Equal(ma) {
			return false
		}
	}
	h.external = append(h.external, ma)
	return true
}

// RemoveExternalAddr stops announcing ma. It reports whether it was present.
func (h *Host) RemoveExternalAddr(ma multiaddr.Multiaddr) bool {
	h.extMu.Lock()
	defer h.extMu.Unlock()

	for i, have := range h.external {
		if have.Equal(ma) {
			h.external = append(h.external[:i], h.external[i+1:]...)
			return true
		}
	}
	return false
}

// ExternalAddrs returns the configured external addresses.
func (h *Host) ExternalAddrs() []multiaddr.Multiaddr {
	h.extMu.RLock()
	defer h.extMu.RUnlock()
	return append([]multiaddr.Multiaddr(nil), h.external...)
}

// PeerID returns the peer ID of this host.
func (h *Host) PeerID() peer.ID {
	return h.Host.ID()
}

// FullAddrs returns the host's addresses with its /p2p component attached.
func (h *Host) FullAddrs() []multiaddr.Multiaddr {
	hostAddr, err := multiaddr.NewMultiaddr(fmt.Sprintf("/p2p/%s", h.PeerID()))
	if err != nil {
		return nil
	}

	var addrs []multiaddr.Multiaddr
	for _, addr := range h.Addrs() {
		addrs = append(addrs, addr.Encapsulate(hostAddr))
	}
	return addrs
}

// WaitForReady waits until the host has at least one listen address.
func (h *Host) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for host to be ready: %w", ctx.Err())
		case <-ticker.C:
			if len(h.Addrs()) > 0 {
				return nil
			}
		}
	}
}
