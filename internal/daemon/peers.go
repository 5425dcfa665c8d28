package daemon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dsf/internal/domain"
	"dsf/internal/keys"
	"dsf/internal/logger"
	"dsf/internal/p2p"
	"dsf/internal/rpc"
)

func (e *Engine) listPeers(opts rpc.ListOptions) (rpc.ResponseKind, error) {
	peers, err := e.filters.Peers(opts.Filter, e.peers.List())
	if err != nil {
		return nil, err
	}
	peers, err = domain.Paginate(peers, func(p domain.PeerInfo) *time.Time { return p.Seen }, opts.Page, domain.TimeBounds{})
	if err != nil {
		return nil, err
	}
	return rpc.PeersResponse{Peers: peers}, nil
}

func (e *Engine) connect(ctx context.Context, opts rpc.ConnectOptions) (rpc.ResponseKind, error) {
	addr, err := domain.ParseAddress(string(opts.Address))
	if err != nil {
		return nil, err
	}
	if opts.ID != nil {
		if p, ok := e.peers.ResolveByID(*opts.ID); ok && p.Blocked {
			return nil, fmt.Errorf("%w: %s", domain.ErrPeerBlocked, p.ID)
		}
	}

	timeout := e.connectTimeout
	if opts.Timeout != nil && opts.Timeout.Std() > 0 {
		timeout = opts.Timeout.Std()
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	id, err := e.net.Connect(cctx, addr, opts.ID)
	if err != nil {
		if errors.Is(cctx.Err(), context.DeadlineExceeded) && !errors.Is(err, domain.ErrTimeout) {
			return nil, fmt.Errorf("%w: connect %s after %s", domain.ErrTimeout, addr, timeout)
		}
		return nil, err
	}

	transport := addr
	if ma, err := addr.Multiaddr(); err == nil {
		transport = p2p.AddressFromMultiaddr(ma)
	}

	_, created, err := e.peers.Upsert(ctx, id,
		func(index int) *domain.PeerInfo {
			return domain.NewPeerInfo(id, index, domain.Explicit(transport), domain.UnknownState())
		},
		func(p *domain.PeerInfo) error {
			p.UpdateAddress(domain.Explicit(transport))
			if err := p.ObserveKey(keys.PublicKeyFromID(id)); err != nil {
				return err
			}
			p.MarkSeen(e.now())
			return nil
		},
	)
	if err != nil {
		return nil, err
	}

	e.log.Info("connected to peer", "peer", id, "address", transport, "new", created)
	return rpc.ConnectedResponse{ConnectInfo: rpc.ConnectInfo{
		ID:    id,
		Peers: len(e.net.ConnectedPeers()),
	}}, nil
}

func (e *Engine) getPeer(ident domain.Identifier) (rpc.ResponseKind, error) {
	p, err := e.resolvePeer(ident)
	if err != nil {
		return nil, err
	}
	return rpc.PeersResponse{Peers: []domain.PeerInfo{p}}, nil
}

func (e *Engine) removePeer(ctx context.Context, ident domain.Identifier) (rpc.ResponseKind, error) {
	p, err := e.resolvePeer(ident)
	if err != nil {
		return nil, err
	}
	if err := e.net.Forget(p.ID); err != nil {
		e.log.Warn("failed to drop peer connection", "peer", p.ID, logger.WithError(err))
	}
	removed, err := e.peers.Delete(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return rpc.PeersResponse{Peers: []domain.PeerInfo{removed}}, nil
}

func (e *Engine) setBlocked(ctx context.Context, ident domain.Identifier, blocked bool) (rpc.ResponseKind, error) {
	p, err := e.resolvePeer(ident)
	if err != nil {
		return nil, err
	}

	updated, err := e.peers.Update(ctx, p.ID, func(p *domain.PeerInfo) error {
		p.Blocked = blocked
		return nil
	})
	if err != nil {
		return nil, err
	}

	if blocked {
		err = e.net.Block(p.ID)
	} else {
		err = e.net.Unblock(p.ID)
	}
	if err != nil {
		return nil, err
	}

	e.log.Info("peer block state changed", "peer", p.ID, "blocked", blocked)
	return rpc.PeersResponse{Peers: []domain.PeerInfo{updated}}, nil
}

// PeerConnected records the observed address and key of a connected peer.
// Observations of blocked peers are ignored.
func (e *Engine) PeerConnected(id domain.ID, addr domain.Address, inbound bool) {
	if p, ok := e.peers.ResolveByID(id); ok && p.Blocked {
		return
	}
	ctx := opContext(context.Background(), "daemon.observe")

	_, created, err := e.peers.Upsert(ctx, id,
		func(index int) *domain.PeerInfo {
			return domain.NewPeerInfo(id, index, domain.Implicit(addr), domain.UnknownState())
		},
		func(p *domain.PeerInfo) error {
			if addr != "" {
				p.UpdateAddress(domain.Implicit(addr))
			}
			if err := p.ObserveKey(keys.PublicKeyFromID(id)); err != nil {
				return err
			}
			p.MarkSeen(e.now())
			return nil
		},
	)
	if err != nil {
		e.log.Warn("failed to record peer", "peer", id, "address", addr, logger.WithError(err))
		return
	}
	if created {
		e.log.Debug("discovered peer", "peer", id, "address", addr, "inbound", inbound)
	}
}

// PeerDisconnected is called when the last connection to a peer closes.
func (e *Engine) PeerDisconnected(id domain.ID) {
	e.log.Debug("peer disconnected", "peer", id)
}

// recordTraffic bumps a known peer's message counters.
func (e *Engine) recordTraffic(ctx context.Context, id domain.ID, outbound bool) {
	if _, ok := e.peers.ResolveByID(id); !ok {
		return
	}
	_, err := e.peers.Update(ctx, id, func(p *domain.PeerInfo) error {
		if outbound {
			p.RecordSent()
		} else {
			p.RecordReceived()
			p.MarkSeen(e.now())
		}
		return nil
	})
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		e.log.Debug("failed to update peer counters", "peer", id, logger.WithError(err))
	}
}
