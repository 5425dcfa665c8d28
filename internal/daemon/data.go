package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"dsf/internal/domain"
	"dsf/internal/keys"
	"dsf/internal/logger"
	"dsf/internal/p2p"
	"dsf/internal/rpc"
	"dsf/internal/storage"
)

func (e *Engine) publish(ctx context.Context, opts rpc.PublishOptions) (rpc.ResponseKind, error) {
	body, err := opts.ResolveBody()
	if err != nil {
		return nil, err
	}
	svc, err := e.resolveService(opts.Service)
	if err != nil {
		return nil, err
	}
	if !svc.Origin {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotOrigin, svc.ID)
	}

	kind := domain.DataKindGeneric
	if opts.DataKind != nil {
		kind = *opts.DataKind
	}

	d, err := e.publishData(ctx, svc, kind, body)
	if err != nil {
		return nil, err
	}
	return rpc.PublishedResponse{PublishInfo: rpc.PublishInfo{Index: d.Index, Sig: d.Signature}}, nil
}

// publishData signs, stores and broadcasts the next page of an origin
// service. Bodies of private services are encrypted.
func (e *Engine) publishData(ctx context.Context, svc domain.ServiceInfo, kind domain.DataKind, body []byte) (domain.DataInfo, error) {
	e.publishMu.Lock()
	defer e.publishMu.Unlock()

	var index uint16
	latest, err := e.store.Data().Latest(ctx, svc.ID)
	switch {
	case err == nil:
		if latest.Index == math.MaxUint16 {
			return domain.DataInfo{}, fmt.Errorf("%w: %s has no free page index", domain.ErrInvalidServiceState, svc.ID)
		}
		index = latest.Index + 1
	case storage.IsNotFound(err):
	default:
		return domain.DataInfo{}, err
	}

	b := domain.Cleartext(body)
	if svc.SecretKey != nil && len(body) > 0 {
		ct, err := keys.Encrypt(*svc.SecretKey, body)
		if err != nil {
			return domain.DataInfo{}, err
		}
		b = domain.Encrypted(ct)
	}

	d := domain.DataInfo{
		Service:   svc.ID,
		Index:     index,
		Kind:      kind,
		Body:      b,
		Published: e.now().UTC(),
	}
	if err := signData(*svc.PrivateKey, &d); err != nil {
		return domain.DataInfo{}, err
	}
	if err := e.store.Data().Put(ctx, &d); err != nil {
		return domain.DataInfo{}, fmt.Errorf("store data: %w", err)
	}

	payload, err := encodeWire(d)
	if err != nil {
		return domain.DataInfo{}, err
	}
	peers, err := e.net.Publish(ctx, svc.ID, payload)
	if err != nil {
		// stored pages are still served to subscribers that sync
		e.log.Warn("failed to broadcast data", "service", svc.ID, "index", d.Index, logger.WithError(err))
	}

	if _, err := e.services.Update(ctx, svc.ID, func(s *domain.ServiceInfo) error {
		s.Touch(d.Published)
		return nil
	}); err != nil {
		return domain.DataInfo{}, err
	}

	e.deliver(d)
	e.metrics.incPublished()
	e.log.Debug("published data", "service", svc.ID, "index", d.Index, "kind", kind, "topic_peers", peers)
	return d, nil
}

// dataHandler returns the pubsub handler for one service topic.
func (e *Engine) dataHandler(service domain.ID) p2p.DataHandler {
	return func(ctx context.Context, from domain.ID, payload []byte) {
		if p, ok := e.peers.ResolveByID(from); ok && p.Blocked {
			e.metrics.incReceived("blocked")
			return
		}

		var d domain.DataInfo
		if err := json.Unmarshal(payload, &d); err != nil {
			e.metrics.incReceived("malformed")
			e.log.Debug("dropping malformed data", "service", service, "from", from, logger.WithError(err))
			return
		}
		if d.Service != service {
			e.metrics.incReceived("malformed")
			return
		}

		ctx = opContext(ctx, "daemon.data")
		e.recordTraffic(ctx, from, false)
		if _, err := e.acceptData(ctx, d); err != nil {
			e.log.Debug("dropping data", "service", service, "from", from, "index", d.Index, logger.WithError(err))
		}
	}
}

// acceptData verifies and stores a page received from the network. It
// reports whether the page was new.
func (e *Engine) acceptData(ctx context.Context, d domain.DataInfo) (bool, error) {
	svc, ok := e.services.ResolveByID(d.Service)
	if !ok {
		e.metrics.incReceived("unknown")
		return false, fmt.Errorf("%w: service %s", domain.ErrNotFound, d.Service)
	}
	if err := verifyData(&d); err != nil {
		e.metrics.incReceived("invalid")
		return false, err
	}

	if err := e.store.Data().Put(ctx, &d); err != nil {
		if storage.IsAlreadyExists(err) {
			e.metrics.incReceived("duplicate")
			return false, nil
		}
		return false, err
	}
	e.metrics.incReceived("stored")

	if _, err := e.services.Update(ctx, svc.ID, func(s *domain.ServiceInfo) error {
		s.Touch(d.Published)
		return nil
	}); err != nil {
		return true, err
	}

	if d.Kind == domain.DataKindMeta {
		e.acceptNameRecord(ctx, svc, d)
	}
	e.deliver(d)
	return true, nil
}

// deliver hands a page to the open streams of its service.
func (e *Engine) deliver(d domain.DataInfo) {
	if n := e.hub.deliver(d); n > 0 {
		for i := 0; i < n; i++ {
			e.metrics.incDropped()
		}
		e.log.Warn("stream fell behind, dropped data", "service", d.Service, "index", d.Index, "streams", n)
	}
}

// reveal decrypts a page body when the service key is held. Pages that do
// not open are returned as stored.
func reveal(svc domain.ServiceInfo, d domain.DataInfo) domain.DataInfo {
	if d.Body.Kind != domain.BodyEncrypted || svc.SecretKey == nil {
		return d
	}
	plain, err := keys.Decrypt(*svc.SecretKey, d.Body.Data)
	if err != nil {
		return d
	}
	d.Body = domain.Cleartext(plain)
	return d
}

func (e *Engine) listData(ctx context.Context, r rpc.DataList) (rpc.ResponseKind, error) {
	svc, err := e.resolveService(r.Service)
	if err != nil {
		return nil, err
	}
	pages, err := e.store.Data().List(ctx, svc.ID)
	if err != nil {
		return nil, err
	}
	pages, err = domain.Paginate(pages, domain.DataInfo.Timestamp, r.Page, r.Time)
	if err != nil {
		return nil, err
	}
	for i := range pages {
		pages[i] = reveal(svc, pages[i])
	}
	return rpc.DataResponse{Data: pages}, nil
}

// syncData pulls missing pages of every subscribed service from its
// replicas.
func (e *Engine) syncData(ctx context.Context) (rpc.ResponseKind, error) {
	var errs []error
	for _, svc := range e.services.List() {
		if svc.Origin || !svc.Subscribed {
			continue
		}
		if _, err := e.syncService(ctx, svc); err != nil {
			errs = append(errs, fmt.Errorf("sync %s: %w", svc.ID, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return rpc.NoneResponse{}, nil
}

func (e *Engine) syncService(ctx context.Context, svc domain.ServiceInfo) (int, error) {
	replicas, err := e.remoteReplicas(ctx, svc.ID)
	if err != nil {
		return 0, err
	}

	stored := 0
	var lastErr error
	for _, r := range replicas {
		resp, err := e.request(ctx, r.PeerID, wireRequest{Kind: wirePages, Service: svc.ID})
		if err != nil {
			lastErr = err
			continue
		}
		for _, d := range resp.Pages {
			if d.Service != svc.ID {
				continue
			}
			added, err := e.acceptData(ctx, d)
			if err != nil {
				e.log.Debug("skipping synced page", "service", svc.ID, "peer", r.PeerID, logger.WithError(err))
				continue
			}
			if added {
				stored++
			}
		}
		// one replica holding the full history is enough
		return stored, nil
	}
	return stored, lastErr
}

func (e *Engine) queryData(ctx context.Context, ident domain.Identifier) (rpc.ResponseKind, error) {
	svc, err := e.resolveService(ident)
	if err != nil {
		return nil, err
	}

	if !svc.Origin {
		replicas, err := e.remoteReplicas(ctx, svc.ID)
		if err != nil {
			return nil, err
		}
		for _, r := range replicas {
			resp, err := e.request(ctx, r.PeerID, wireRequest{Kind: wireLatest, Service: svc.ID})
			if err != nil {
				e.log.Debug("replica did not answer query", "service", svc.ID, "peer", r.PeerID, logger.WithError(err))
				continue
			}
			for _, d := range resp.Pages {
				if d.Service != svc.ID {
					continue
				}
				if _, err := e.acceptData(ctx, d); err != nil {
					e.log.Debug("skipping queried page", "service", svc.ID, logger.WithError(err))
				}
			}
			break
		}
	}

	latest, err := e.store.Data().Latest(ctx, svc.ID)
	if err != nil {
		return nil, err
	}
	return rpc.DataResponse{Data: []domain.DataInfo{reveal(svc, *latest)}}, nil
}

func (e *Engine) fetchPage(ctx context.Context, opts rpc.FetchOptions) (rpc.ResponseKind, error) {
	svc, err := e.resolveService(opts.Service)
	if err != nil {
		return nil, err
	}
	if opts.PageSig.IsZero() {
		return nil, fmt.Errorf("%w: page signature is required", domain.ErrMalformed)
	}

	d, err := e.store.Data().Get(ctx, svc.ID, opts.PageSig)
	if err == nil {
		return rpc.DataResponse{Data: []domain.DataInfo{reveal(svc, *d)}}, nil
	}
	if !storage.IsNotFound(err) || svc.Origin {
		return nil, err
	}

	replicas, rerr := e.remoteReplicas(ctx, svc.ID)
	if rerr != nil {
		return nil, rerr
	}
	sig := opts.PageSig
	for _, r := range replicas {
		resp, rerr := e.request(ctx, r.PeerID, wireRequest{Kind: wirePage, Service: svc.ID, Signature: &sig})
		if rerr != nil {
			continue
		}
		for _, page := range resp.Pages {
			if page.Service != svc.ID || page.Signature != sig {
				continue
			}
			if _, rerr := e.acceptData(ctx, page); rerr != nil {
				e.log.Debug("rejecting fetched page", "service", svc.ID, "peer", r.PeerID, logger.WithError(rerr))
				continue
			}
			return rpc.DataResponse{Data: []domain.DataInfo{reveal(svc, page)}}, nil
		}
	}
	return nil, err
}
