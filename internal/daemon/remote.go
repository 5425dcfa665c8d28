package daemon

import (
	"context"
	"fmt"

	"dsf/internal/domain"
	"dsf/internal/storage"
)

// handlePeerRequest answers a request from another daemon.
func (e *Engine) handlePeerRequest(ctx context.Context, from domain.ID, b []byte) ([]byte, error) {
	if p, ok := e.peers.ResolveByID(from); ok && p.Blocked {
		return nil, fmt.Errorf("%w: %s", domain.ErrPeerBlocked, from)
	}
	req, err := decodeWireRequest(b)
	if err != nil {
		return nil, err
	}

	ctx = opContext(ctx, "peer."+req.Kind)
	e.recordTraffic(ctx, from, false)

	resp, err := e.servePeer(ctx, from, req)
	if err != nil {
		e.log.Debug("peer request failed", "peer", from, "kind", req.Kind, "service", req.Service, "error", err)
		return nil, err
	}
	e.recordTraffic(ctx, from, true)
	return encodeWire(resp)
}

func (e *Engine) servePeer(ctx context.Context, from domain.ID, req wireRequest) (wireResponse, error) {
	var resp wireResponse
	svc, ok := e.services.ResolveByID(req.Service)
	if !ok {
		return resp, fmt.Errorf("%w: service %s", domain.ErrNotFound, req.Service)
	}

	switch req.Kind {
	case wireService:
		page, err := e.store.Pages().Get(ctx, svc.ID)
		if err != nil {
			return resp, err
		}
		resp.Page = page

	case wirePages:
		pages, err := e.store.Data().List(ctx, svc.ID)
		if err != nil {
			return resp, err
		}
		resp.Pages = pages

	case wireLatest:
		latest, err := e.store.Data().Latest(ctx, svc.ID)
		if err != nil {
			return resp, err
		}
		resp.Pages = []domain.DataInfo{*latest}

	case wirePage:
		if req.Signature == nil {
			return resp, fmt.Errorf("%w: page request without signature", domain.ErrMalformed)
		}
		d, err := e.store.Data().Get(ctx, svc.ID, *req.Signature)
		if err != nil {
			return resp, err
		}
		resp.Pages = []domain.DataInfo{*d}

	case wireSubscribe:
		entry, err := e.ledger.Accept(svc.ID, domain.PeerSubscriber(from), req.QoS, e.now(), e.subTTL)
		if err != nil {
			return resp, err
		}
		if err := e.store.Subscriptions().Save(ctx, entry); err != nil {
			return resp, err
		}
		e.log.Info("peer subscribed", "service", svc.ID, "peer", from)
		resp.Entry = &entry

	case wireKeepalive:
		entry, err := e.ledger.Refresh(svc.ID, domain.PeerSubscriber(from), e.now(), e.subTTL)
		if err != nil {
			return resp, err
		}
		if err := e.store.Subscriptions().Save(ctx, entry); err != nil {
			return resp, err
		}
		resp.Entry = &entry

	case wireUnsubscribe:
		sub := domain.PeerSubscriber(from)
		e.ledger.Remove(svc.ID, sub)
		if err := e.store.Subscriptions().Delete(ctx, svc.ID, sub); err != nil && !storage.IsNotFound(err) {
			return resp, err
		}
		e.log.Info("peer unsubscribed", "service", svc.ID, "peer", from)

	default:
		return resp, fmt.Errorf("%w: peer request %q", domain.ErrMalformed, req.Kind)
	}
	return resp, nil
}
