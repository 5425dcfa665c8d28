package p2p

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
)

// Backoff bounds for bootstrap reconnection.
const (
	DefaultRetryInterval    = 5 * time.Second
	DefaultMaxRetryInterval = 10 * time.Minute
	monitorInterval         = 10 * time.Second
)

// Bootstrapper keeps the node connected to its bootstrap peers, redialling
// with exponential backoff.
type Bootstrapper struct {
	host  host.Host
	peers []peer.AddrInfo

	RetryInterval    time.Duration
	MaxRetryInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.RWMutex
	connected map[peer.ID]bool
	started   bool
}

// NewBootstrapper parses the configured bootstrap addresses.
func NewBootstrapper(h host.Host, addrs []string) (*Bootstrapper, error) {
	peers, err := parseBootstrapPeers(addrs)
	if err != nil {
		return nil, fmt.Errorf("failed to parse bootstrap peers: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Bootstrapper{
		host:             h,
		peers:            peers,
		RetryInterval:    DefaultRetryInterval,
		MaxRetryInterval: DefaultMaxRetryInterval,
		ctx:              ctx,
		cancel:           cancel,
		connected:        make(map[peer.ID]bool),
	}, nil
}

// Peers returns the parsed bootstrap peers.
func (b *Bootstrapper) Peers() []peer.AddrInfo {
	return b.peers
}

// Start launches one reconnect loop per bootstrap peer. Calling Start again
// is a no-op.
func (b *Bootstrapper) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return
	}
	b.started = true

	for _, pi := range b.peers {
		b.wg.Add(1)
		go b.connectWithBackoff(pi)
	}
}

// ConnectOnce dials every bootstrap peer once and returns how many are
// connected afterwards.
func (b *Bootstrapper) ConnectOnce(ctx context.Context) int {
	var wg sync.WaitGroup
	for _, pi := range b.peers {
		wg.Add(1)
		go func(pi peer.AddrInfo) {
			defer wg.Done()
			if err := b.host.Connect(ctx, pi); err != nil {
				getLogger("bootstrap").Debug("bootstrap dial failed", "peer", pi.ID, "error", err)
				return
			}
			b.setConnected(pi.ID, true)
		}(pi)
	}
	wg.Wait()
	return b.ConnectedPeers()
}

// Stop stops every reconnect loop.
func (b *Bootstrapper) Stop() {
	b.cancel()
	b.wg.Wait()
}

// ConnectedPeers returns the number of connected bootstrap peers.
func (b *Bootstrapper) ConnectedPeers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	count := 0
	for _, connected := range b.connected {
		if connected {
			count++
		}
	}
	return count
}

// IsBootstrapPeer returns true if the given peer ID is a bootstrap peer.
func (b *Bootstrapper) IsBootstrapPeer(id peer.ID) bool {
	for _, p := range b.peers {
		if p.ID == id {
			return true
		}
	}
	return false
}

func (b *Bootstrapper) setConnected(id peer.ID, v bool) {
	b.mu.Lock()
	b.connected[id] = v
	b.mu.Unlock()
}

func (b *Bootstrapper) connectWithBackoff(pi peer.AddrInfo) {
	defer b.wg.Done()
	log := getLogger("bootstrap")

	attempt := 0
	for {
		select {
		case <-b.ctx.Done():
			return
		default:
		}

		err := b.host.Connect(b.ctx, pi)
		if err == nil {
			b.setConnected(pi.ID, true)
			log.Debug("connected to bootstrap peer", "peer", pi.ID)

			b.monitorConnection(pi)
			attempt = 0
			continue
		}

		attempt++
		backoff := Backoff(b.RetryInterval, b.MaxRetryInterval, attempt)
		log.Debug("bootstrap dial failed", "peer", pi.ID, "attempt", attempt, "retry_in", backoff, "error", err)

		select {
		case <-b.ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}

// monitorConnection returns once the peer is disconnected.
func (b *Bootstrapper) monitorConnection(pi peer.AddrInfo) {
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			if b.host.Network().Connectedness(pi.ID) != network.Connected {
				b.setConnected(pi.ID, false)
				return
			}
		}
	}
}

// Backoff returns the wait before the given retry attempt (1-based).
func Backoff(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = DefaultRetryInterval
	}
	if max <= 0 {
		max = DefaultMaxRetryInterval
	}
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
	if d > max || d <= 0 {
		return max
	}
	return d
}

// parseBootstrapPeers parses multiaddrs carrying a /p2p component, merging
// addresses of the same peer. Addresses without a peer ID are skipped.
func parseBootstrapPeers(addrs []string) ([]peer.AddrInfo, error) {
	var peers []peer.AddrInfo
	index := make(map[peer.ID]int)

	for _, addr := range addrs {
		ma, err := multiaddr.NewMultiaddr(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid multiaddr %q: %w", addr, err)
		}

		info, err := peer.AddrInfoFromP2pAddr(ma)
		if err != nil {
			getLogger("bootstrap").Warn("skipping bootstrap address without peer id", "addr", addr)
			continue
		}

		if i, ok := index[info.ID]; ok {
			peers[i].Addrs = append(peers[i].Addrs, info.Addrs...)
			continue
		}
		index[info.ID] = len(peers)
		peers = append(peers, *info)
	}

	return peers, nil
}
