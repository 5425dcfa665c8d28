package p2p

import (
	"context"
	"errors"
	"fmt"
	"strings"

	dht "github.com/libp2p/go-libp2p-kad-dht"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"

	"dsf/internal/domain"
)

// DHTMode represents the DHT operation mode.
type DHTMode string

const (
	// DHTModeAuto lets libp2p decide based on network reachability.
	DHTModeAuto DHTMode = "auto"
	// DHTModeServer runs as a full DHT participant (requires public IP).
	DHTModeServer DHTMode = "server"
	// DHTModeClient only queries the DHT, doesn't store records.
	DHTModeClient DHTMode = "client"
)

// ErrDHTDisabled is returned by routing calls on a node without a DHT.
var ErrDHTDisabled = errors.New("DHT not enabled")

// ParseDHTMode normalises a configured mode.
func ParseDHTMode(s string) (DHTMode, error) {
	mode := DHTMode(strings.ToLower(strings.TrimSpace(s)))
	switch mode {
	case "":
		return DHTModeAuto, nil
	case DHTModeAuto, DHTModeServer, DHTModeClient:
		return mode, nil
	default:
		return "", fmt.Errorf("invalid DHT mode: %s (must be auto, server, or client)", s)
	}
}

// DHT wraps the Kademlia DHT used to register and locate services.
type DHT struct {
	*dht.IpfsDHT
	host host.Host
	mode DHTMode
}

// NewDHT creates a Kademlia DHT on h.
func NewDHT(ctx context.Context, h host.Host, mode string, bootstrapPeers []peer.AddrInfo) (*DHT, error) {
	m, err := ParseDHTMode(mode)
	if err != nil {
		return nil, err
	}

	opts := []dht.Option{
		dht.ProtocolPrefix(ProtocolPrefix),
	}

	switch m {
	case DHTModeServer:
		opts = append(opts, dht.Mode(dht.ModeServer))
	case DHTModeClient:
		opts = append(opts, dht.Mode(dht.ModeClient))
	default:
		opts = append(opts, dht.Mode(dht.ModeAutoServer))
	}

	if len(bootstrapPeers) > 0 {
		opts = append(opts, dht.BootstrapPeers(bootstrapPeers...))
	}

	kadDHT, err := dht.New(ctx, h, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create DHT: %w", err)
	}

	return &DHT{
		IpfsDHT: kadDHT,
		host:    h,
		mode:    m,
	}, nil
}

// Bootstrap refreshes the routing table.
func (d *DHT) Bootstrap(ctx context.Context) error {
	if d == nil || d.IpfsDHT == nil {
		return nil
	}
	return d.IpfsDHT.Bootstrap(ctx)
}

// ProvideService announces this node as a provider of the service.
func (d *DHT) ProvideService(ctx context.Context, service domain.ID) error {
	if d == nil || d.IpfsDHT == nil {
		return ErrDHTDisabled
	}
	c, err := ServiceCID(service)
	if err != nil {
		return err
	}
	if err := d.IpfsDHT.Provide(ctx, c, true); err != nil {
		return fmt.Errorf("provide %s: %w", service, err)
	}
	getLogger("dht").Debug("provided service", "service", service, "cid", c)
	return nil
}

// FindServiceProviders returns up to limit peers providing the service.
// A limit of zero means no limit.
func (d *DHT) FindServiceProviders(ctx context.Context, service domain.ID, limit int) ([]peer.AddrInfo, error) {
	if d == nil || d.IpfsDHT == nil {
		return nil, ErrDHTDisabled
	}
	c, err := ServiceCID(service)
	if err != nil {
		return nil, err
	}

	var providers []peer.AddrInfo
	for pi := range d.IpfsDHT.FindProvidersAsync(ctx, c, limit) {
		if pi.ID == d.host.ID() {
			continue
		}
		providers = append(providers, pi)
	}
	if err := ctx.Err(); err != nil && len(providers) == 0 {
		return nil, err
	}
	return providers, nil
}

// Close shuts down the DHT.
func (d *DHT) Close() error {
	if d == nil || d.IpfsDHT == nil {
		return nil
	}
	return d.IpfsDHT.Close()
}

// RoutingTableSize returns the number of peers in the routing table.
func (d *DHT) RoutingTableSize() int {
	if d == nil || d.IpfsDHT == nil {
		return 0
	}
	return d.IpfsDHT.RoutingTable().Size()
}

// Mode returns the configured DHT mode.
func (d *DHT) Mode() DHTMode {
	return d.mode
}
