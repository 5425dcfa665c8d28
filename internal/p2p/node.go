package p2p

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"

	"dsf/internal/config"
	"dsf/internal/domain"
)

// Node ties the host, DHT, pubsub router and discovery together and exposes
// them in terms of dsf identities.
type Node struct {
	cfg      config.P2PConfig
	identity *Identity

	host      *Host
	dht       *DHT
	pubsub    *PubSub
	bootstrap *Bootstrapper
	mdns      *MDNSDiscovery

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	observer Observer
	handler  RequestHandler
	closed   bool
}

// NewNode creates a node for identity. Nothing is dialled until Start.
func NewNode(ctx context.Context, cfg config.P2PConfig, identity *Identity) (*Node, error) {
	h, err := NewHost(cfg, identity)
	if err != nil {
		return nil, err
	}

	bs, err := NewBootstrapper(h, cfg.BootstrapPeers)
	if err != nil {
		_ = h.Close()
		return nil, err
	}

	nodeCtx, cancel := context.WithCancel(ctx)

	d, err := NewDHT(nodeCtx, h, cfg.DHTMode, bs.Peers())
	if err != nil {
		cancel()
		_ = h.Close()
		return nil, err
	}

	ps, err := NewPubSub(nodeCtx, h)
	if err != nil {
		cancel()
		_ = d.Close()
		_ = h.Close()
		return nil, err
	}

	n := &Node{
		cfg:       cfg,
		identity:  identity,
		host:      h,
		dht:       d,
		pubsub:    ps,
		bootstrap: bs,
		ctx:       nodeCtx,
		cancel:    cancel,
	}

	h.Network().Notify(n.notifiee())
	h.SetStreamHandler(ProtocolRequest, n.handleStream)

	if cfg.MDNS {
		n.mdns = NewMDNSDiscovery(h)
	}

	return n, nil
}

// Start begins bootstrap reconnection and local discovery.
func (n *Node) Start(ctx context.Context) error {
	log := getLogger("node")

	n.bootstrap.Start()

	if n.mdns != nil {
		if err := n.mdns.Start(); err != nil {
			// mDNS is best effort; some sandboxes forbid multicast
			log.Warn("mdns discovery unavailable", "error", err)
		}
	}

	if err := n.dht.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap dht: %w", err)
	}

	log.Info("p2p node started",
		"id", n.ID(),
		"peer_id", n.host.PeerID(),
		"addrs", n.host.FullAddrs(),
		"dht_mode", n.dht.Mode(),
		"bootstrap_peers", len(n.bootstrap.Peers()),
	)
	return nil
}

// SetObserver installs the connection observer.
func (n *Node) SetObserver(o Observer) {
	n.mu.Lock()
	n.observer = o
	n.mu.Unlock()
}

// SetRequestHandler installs the handler for inbound requests.
func (n *Node) SetRequestHandler(h RequestHandler) {
	n.mu.Lock()
	n.handler = h
	n.mu.Unlock()
}

func (n *Node) getObserver() Observer {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.observer
}

func (n *Node) getRequestHandler() RequestHandler {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.handler
}

// ID returns the node's dsf identifier.
func (n *Node) ID() domain.ID {
	return n.identity.ID()
}

// PublicKey returns the node's public key.
func (n *Node) PublicKey() domain.PublicKey {
	return n.identity.PublicKey()
}

// Addresses returns the node's announced addresses.
func (n *Node) Addresses() []domain.Address {
	addrs := n.host.Addrs()
	out := make([]domain.Address, 0, len(addrs))
	for _, ma := range addrs {
		out = append(out, AddressFromMultiaddr(ma))
	}
	return out
}

// Connect dials a peer at addr. The peer is named by a /p2p component of
// the address or by id. It returns the connected peer's ID.
func (n *Node) Connect(ctx context.Context, addr domain.Address, id *domain.ID) (domain.ID, error) {
	info, err := AddrInfo(addr, id)
	if err != nil {
		return domain.ID{}, err
	}
	if info.ID == n.host.ID() {
		return domain.ID{}, fmt.Errorf("%w: cannot connect to self", domain.ErrInvalidAddress)
	}
	if n.host.gater.isBlocked(info.ID) {
		return domain.ID{}, fmt.Errorf("%w: %s", domain.ErrPeerBlocked, info.ID)
	}

	if err := n.host.Connect(ctx, info); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.ID{}, fmt.Errorf("%w: connect %s: %v", domain.ErrTimeout, addr, err)
		}
		return domain.ID{}, fmt.Errorf("connect %s: %w", addr, err)
	}
	n.host.Peerstore().AddAddrs(info.ID, info.Addrs, peerstore.PermanentAddrTTL)

	return IDFromPeerID(info.ID)
}

// Disconnect closes every connection to the peer.
func (n *Node) Disconnect(id domain.ID) error {
	pid, err := PeerIDFromID(id)
	if err != nil {
		return err
	}
	if err := n.host.Network().ClosePeer(pid); err != nil {
		return fmt.Errorf("disconnect %s: %w", id, err)
	}
	return nil
}

// Forget disconnects the peer and drops its stored addresses.
func (n *Node) Forget(id domain.ID) error {
	pid, err := PeerIDFromID(id)
	if err != nil {
		return err
	}
	_ = n.host.Network().ClosePeer(pid)
	n.host.Peerstore().ClearAddrs(pid)
	return nil
}

// Block refuses all further connections with the peer and drops any open
// ones.
func (n *Node) Block(id domain.ID) error {
	pid, err := PeerIDFromID(id)
	if err != nil {
		return err
	}
	n.host.gater.block(pid)
	_ = n.host.Network().ClosePeer(pid)
	return nil
}

// Unblock allows connections with the peer again.
func (n *Node) Unblock(id domain.ID) error {
	pid, err := PeerIDFromID(id)
	if err != nil {
		return err
	}
	n.host.gater.unblock(pid)
	return nil
}

// ConnectedPeers returns the IDs of connected peers.
func (n *Node) ConnectedPeers() []domain.ID {
	pids := n.host.Network().Peers()
	out := make([]domain.ID, 0, len(pids))
	for _, pid := range pids {
		if n.host.Network().Connectedness(pid) != network.Connected {
			continue
		}
		id, err := IDFromPeerID(pid)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out
}

// Provide announces the service on the DHT.
func (n *Node) Provide(ctx context.Context, service domain.ID) error {
	return n.dht.ProvideService(ctx, service)
}

// FindProviders returns up to limit peers providing the service, blocked
// peers excluded.
func (n *Node) FindProviders(ctx context.Context, service domain.ID, limit int) ([]domain.ID, error) {
	infos, err := n.dht.FindServiceProviders(ctx, service, limit)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: find providers for %s", domain.ErrTimeout, service)
		}
		return nil, err
	}

	out := make([]domain.ID, 0, len(infos))
	for _, pi := range infos {
		if n.host.gater.isBlocked(pi.ID) {
			continue
		}
		id, err := IDFromPeerID(pi.ID)
		if err != nil {
			continue
		}
		n.host.Peerstore().AddAddrs(pi.ID, pi.Addrs, peerstore.TempAddrTTL)
		out = append(out, id)
	}
	return out, nil
}

// Subscribe joins the service's data topic.
func (n *Node) Subscribe(service domain.ID, handler DataHandler) error {
	return n.pubsub.Subscribe(service, handler)
}

// Unsubscribe leaves the service's data topic.
func (n *Node) Unsubscribe(service domain.ID) bool {
	return n.pubsub.Unsubscribe(service)
}

// Publish sends payload on the service's data topic and returns the number
// of topic peers.
func (n *Node) Publish(ctx context.Context, service domain.ID, payload []byte) (int, error) {
	return n.pubsub.Publish(ctx, service, payload)
}

// Bootstrap dials the bootstrap peers once and refreshes the routing table.
// It returns the number of connected bootstrap peers.
func (n *Node) Bootstrap(ctx context.Context) (int, error) {
	connected := n.bootstrap.ConnectOnce(ctx)
	if err := n.dht.Bootstrap(ctx); err != nil {
		return connected, fmt.Errorf("bootstrap dht: %w", err)
	}
	return connected, nil
}

// AddAddress announces an additional external address.
func (n *Node) AddAddress(addr domain.Address) (bool, error) {
	ma, err := addr.Multiaddr()
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrInvalidAddress, err)
	}
	return n.host.AddExternalAddr(ma), nil
}

// RemoveAddress stops announcing an external address.
func (n *Node) RemoveAddress(addr domain.Address) (bool, error) {
	ma, err := addr.Multiaddr()
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrInvalidAddress, err)
	}
	return n.host.RemoveExternalAddr(ma), nil
}

// RoutingTableSize returns the number of peers in the DHT routing table.
func (n *Node) RoutingTableSize() int {
	return n.dht.RoutingTableSize()
}

// AddrInfo returns this node's dial information.
func (n *Node) AddrInfo() peer.AddrInfo {
	return peer.AddrInfo{ID: n.host.ID(), Addrs: n.host.Addrs()}
}

// WaitForReady waits until the host is listening.
func (n *Node) WaitForReady(ctx context.Context, timeout time.Duration) error {
	return n.host.WaitForReady(ctx, timeout)
}

// Close stops discovery, the routers and the host. It is safe to call more
// than once.
func (n *Node) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	n.mu.Unlock()

	n.bootstrap.Stop()
	if n.mdns != nil {
		_ = n.mdns.Stop()
	}
	n.pubsub.Stop()
	n.cancel()

	var errs []error
	if err := n.dht.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close dht: %w", err))
	}
	if err := n.host.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close host: %w", err))
	}
	return errors.Join(errs...)
}
