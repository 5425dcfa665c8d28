package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"dsf/internal/domain"
	"dsf/internal/p2p"
)

// ErrOffline is returned for operations that need the peer network when the
// daemon runs without it.
var ErrOffline = errors.New("peer network disabled")

// Network is the peer network as seen by the engine. *p2p.Node implements
// it.
type Network interface {
	ID() domain.ID
	PublicKey() domain.PublicKey

	SetObserver(o p2p.Observer)
	SetRequestHandler(h p2p.RequestHandler)

	Connect(ctx context.Context, addr domain.Address, id *domain.ID) (domain.ID, error)
	Forget(id domain.ID) error
	Block(id domain.ID) error
	Unblock(id domain.ID) error
	ConnectedPeers() []domain.ID

	Provide(ctx context.Context, service domain.ID) error
	FindProviders(ctx context.Context, service domain.ID, limit int) ([]domain.ID, error)

	Subscribe(service domain.ID, handler p2p.DataHandler) error
	Unsubscribe(service domain.ID) bool
	Publish(ctx context.Context, service domain.ID, payload []byte) (int, error)

	Request(ctx context.Context, to domain.ID, req []byte) ([]byte, error)

	Bootstrap(ctx context.Context) (int, error)
	AddAddress(addr domain.Address) (bool, error)
	RemoveAddress(addr domain.Address) (bool, error)
}

var _ Network = (*p2p.Node)(nil)

// Offline is the Network of a daemon with p2p disabled. Local operations
// succeed; anything needing a remote peer fails with ErrOffline.
type Offline struct {
	identity *p2p.Identity

	mu    sync.Mutex
	addrs map[domain.Address]struct{}
}

// NewOffline returns an offline network for identity.
func NewOffline(identity *p2p.Identity) *Offline {
	return &Offline{identity: identity, addrs: make(map[domain.Address]struct{})}
}

func (o *Offline) ID() domain.ID               { return o.identity.ID() }
func (o *Offline) PublicKey() domain.PublicKey { return o.identity.PublicKey() }

func (o *Offline) SetObserver(p2p.Observer)             {}
func (o *Offline) SetRequestHandler(p2p.RequestHandler) {}

func (o *Offline) Connect(context.Context, domain.Address, *domain.ID) (domain.ID, error) {
	return domain.ID{}, fmt.Errorf("connect: %w", ErrOffline)
}

func (o *Offline) Forget(domain.ID) error                   { return nil }
func (o *Offline) Block(domain.ID) error                    { return nil }
func (o *Offline) Unblock(domain.ID) error                  { return nil }
func (o *Offline) ConnectedPeers() []domain.ID              { return nil }
func (o *Offline) Unsubscribe(domain.ID) bool               { return false }
func (o *Offline) Provide(context.Context, domain.ID) error { return nil }

func (o *Offline) FindProviders(context.Context, domain.ID, int) ([]domain.ID, error) {
	return nil, nil
}

func (o *Offline) Subscribe(domain.ID, p2p.DataHandler) error { return nil }

func (o *Offline) Publish(context.Context, domain.ID, []byte) (int, error) { return 0, nil }

func (o *Offline) Request(_ context.Context, to domain.ID, _ []byte) ([]byte, error) {
	return nil, fmt.Errorf("request to %s: %w", to, ErrOffline)
}

func (o *Offline) Bootstrap(context.Context) (int, error) { return 0, nil }

func (o *Offline) AddAddress(addr domain.Address) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.addrs[addr]; ok {
		return false, nil
	}
	o.addrs[addr] = struct{}{}
	return true, nil
}

func (o *Offline) RemoveAddress(addr domain.Address) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.addrs[addr]; !ok {
		return false, nil
	}
	delete(o.addrs, addr)
	return true, nil
}
