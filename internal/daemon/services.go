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
	"dsf/internal/storage"
)

// maxProviders bounds how many peers a locate asks for the service page.
const maxProviders = 8

var _ p2p.Observer = (*Engine)(nil)

func (e *Engine) listServices(ctx context.Context, opts rpc.ListOptions) (rpc.ResponseKind, error) {
	all := e.services.List()
	services := make([]domain.ServiceInfo, 0, len(all))
	for _, s := range all {
		if opts.ApplicationID != nil && s.ApplicationID != *opts.ApplicationID {
			continue
		}
		services = append(services, e.decorate(ctx, s))
	}

	services, err := e.filters.Services(opts.Filter, services)
	if err != nil {
		return nil, err
	}
	services, err = domain.Paginate(services, func(s domain.ServiceInfo) *time.Time { return s.LastUpdated }, opts.Page, domain.TimeBounds{})
	if err != nil {
		return nil, err
	}
	return rpc.ServicesResponse{Services: services}, nil
}

func (e *Engine) getService(ctx context.Context, ident domain.Identifier) (rpc.ResponseKind, error) {
	s, err := e.resolveService(ident)
	if err != nil {
		return nil, err
	}
	return rpc.ServicesResponse{Services: []domain.ServiceInfo{e.decorate(ctx, s)}}, nil
}

// decorate fills the counters derived from the ledger and replica set.
func (e *Engine) decorate(ctx context.Context, s domain.ServiceInfo) domain.ServiceInfo {
	s.Subscribers = e.ledger.Count(s.ID)
	s.Replicas = e.activeReplicas(ctx, s.ID)
	return s
}

func (e *Engine) activeReplicas(ctx context.Context, service domain.ID) int {
	replicas, err := e.store.Replicas().List(ctx, service)
	if err != nil {
		e.log.Debug("failed to list replicas", "service", service, logger.WithError(err))
		return 0
	}
	return domain.ActiveReplicas(replicas, e.now())
}

// remoteReplicas returns the active replicas of a service held by other
// peers.
func (e *Engine) remoteReplicas(ctx context.Context, service domain.ID) ([]domain.ReplicaInfo, error) {
	replicas, err := e.store.Replicas().List(ctx, service)
	if err != nil {
		return nil, err
	}
	now := e.now()
	self := e.net.ID()
	out := replicas[:0]
	for _, r := range replicas {
		if r.PeerID == self || !r.Active || r.Expired(now) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (e *Engine) create(ctx context.Context, opts rpc.CreateOptions) (rpc.ResponseKind, error) {
	kp, err := keys.Generate()
	if err != nil {
		return nil, err
	}
	id := kp.ID()

	var secret *domain.SecretKey
	if !opts.Public {
		k, err := keys.NewSecretKey()
		if err != nil {
			return nil, err
		}
		secret = &k
	}

	addrs := make([]domain.Address, 0, len(opts.Addresses))
	for _, a := range opts.Addresses {
		canon, err := domain.ParseAddress(string(a))
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, canon)
	}

	page := &domain.ServicePage{
		Service:       id,
		ApplicationID: opts.ApplicationID,
		Body:          domain.Cleartext(opts.Body),
		Addresses:     addrs,
		Public:        opts.Public,
		Issued:        e.now().UTC(),
	}
	if opts.PageKind != nil {
		page.PageKind = *opts.PageKind
	}
	for _, m := range opts.Metadata {
		page.Metadata = append(page.Metadata, domain.Metadata{Key: m.Key, Value: m.Value})
	}
	if secret != nil && len(opts.Body) > 0 {
		ct, err := keys.Encrypt(*secret, opts.Body)
		if err != nil {
			return nil, err
		}
		page.Body = domain.Encrypted(ct)
	}
	if err := signPage(kp.Private, page); err != nil {
		return nil, err
	}
	if _, err := e.store.Pages().Save(ctx, page); err != nil {
		return nil, fmt.Errorf("store page: %w", err)
	}

	svc, _, err := e.services.Upsert(ctx, id,
		func(index int) *domain.ServiceInfo {
			return domain.NewOwnedService(id, index, opts.ApplicationID, kp.Public, kp.Private, secret)
		}, nil)
	if err != nil {
		return nil, err
	}
	e.log.Info("created service", "service", id, "index", svc.Index, "application_id", opts.ApplicationID, "public", opts.Public)

	if opts.Register {
		if _, err := e.register(ctx, domain.ByID(id), rpc.RegisterOptions{}); err != nil {
			return nil, fmt.Errorf("service %s created but not registered: %w", id, err)
		}
	}

	return rpc.CreatedResponse{CreateInfo: rpc.CreateInfo{ID: id, SecretKey: secret}}, nil
}

func (e *Engine) register(ctx context.Context, ident domain.Identifier, opts rpc.RegisterOptions) (rpc.ResponseKind, error) {
	svc, err := e.resolveService(ident)
	if err != nil {
		return nil, err
	}

	page, err := e.store.Pages().Get(ctx, svc.ID)
	if storage.IsNotFound(err) {
		return nil, fmt.Errorf("%w: no page held for %s", domain.ErrInvalidServiceState, svc.ID)
	}
	if err != nil {
		return nil, err
	}

	if svc.Origin {
		next := *page
		next.Version = page.Version + 1
		next.Issued = e.now().UTC()
		if err := signPage(*svc.PrivateKey, &next); err != nil {
			return nil, err
		}
		if _, err := e.store.Pages().Save(ctx, &next); err != nil {
			return nil, fmt.Errorf("store page: %w", err)
		}
		page = &next
	}

	if err := e.net.Provide(ctx, svc.ID); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// an empty routing table fails the provide; the page is still
		// served to peers that connect directly
		e.log.Warn("failed to announce service", "service", svc.ID, logger.WithError(err))
	}

	info := rpc.RegisterInfo{
		PageVersion: page.Version,
		Peers:       len(e.net.ConnectedPeers()),
	}
	if !opts.NoReplica {
		now := e.now()
		rep := domain.ReplicaInfo{
			PageID:  svc.ID,
			PeerID:  e.net.ID(),
			Version: page.Version,
			Issued:  page.Issued,
			Updated: now.UTC(),
			Active:  true,
		}
		if err := e.store.Replicas().Save(ctx, svc.ID, rep); err != nil {
			return nil, fmt.Errorf("store replica: %w", err)
		}
		v := page.Version
		info.ReplicaVersion = &v
	}

	if _, err := e.services.Update(ctx, svc.ID, func(s *domain.ServiceInfo) error {
		s.MarkRegistered(page.Signature)
		return nil
	}); err != nil {
		return nil, err
	}

	e.log.Info("registered service", "service", svc.ID, "version", page.Version, "origin", svc.Origin)
	return rpc.RegisteredResponse{RegisterInfo: info}, nil
}

type located struct {
	peer domain.ID
	page *domain.ServicePage
}

func (e *Engine) locate(ctx context.Context, opts rpc.LocateOptions) (rpc.ResponseKind, error) {
	id := opts.ID
	if id.IsZero() {
		return nil, domain.ErrInvalidIdentifier
	}

	if svc, ok := e.services.ResolveByID(id); ok && svc.Origin {
		info := rpc.LocateInfo{ID: id, Origin: true}
		if page, err := e.store.Pages().Get(ctx, id); err == nil {
			info.PageVersion = page.Version
		}
		return rpc.LocatedResponse{LocateInfo: info}, nil
	}

	providers, err := e.net.FindProviders(ctx, id, maxProviders)
	if err != nil {
		return nil, err
	}

	var found []located
	var best *domain.ServicePage
	self := e.net.ID()
	for _, peer := range providers {
		if peer == self {
			continue
		}
		resp, err := e.request(ctx, peer, wireRequest{Kind: wireService, Service: id})
		if err != nil {
			e.log.Debug("provider did not answer", "service", id, "peer", peer, logger.WithError(err))
			continue
		}
		if resp.Page == nil || resp.Page.Service != id {
			continue
		}
		if err := verifyPage(resp.Page); err != nil {
			e.log.Warn("rejecting service page", "service", id, "peer", peer, logger.WithError(err))
			continue
		}
		found = append(found, located{peer: peer, page: resp.Page})
		if best == nil || resp.Page.Version > best.Version {
			best = resp.Page
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: no provider answered for %s", domain.ErrNotFound, id)
	}

	// A stale provider never rolls the service back to an older page.
	updated := true
	if prev, err := e.store.Pages().Get(ctx, id); err == nil {
		updated = best.Version > prev.Version
		if prev.Version > best.Version {
			best = prev
		}
	}
	if _, err := e.store.Pages().Save(ctx, best); err != nil {
		return nil, fmt.Errorf("store page: %w", err)
	}

	now := e.now().UTC()
	expiry := now.Add(e.replicaTTL)
	for _, f := range found {
		rep := domain.ReplicaInfo{
			PageID:  id,
			PeerID:  f.peer,
			Version: f.page.Version,
			Issued:  f.page.Issued,
			Updated: now,
			Expiry:  &expiry,
			Active:  true,
		}
		if err := e.store.Replicas().Save(ctx, id, rep); err != nil {
			return nil, fmt.Errorf("store replica: %w", err)
		}
	}

	sig, issued := best.Signature, best.Issued
	replicas := e.activeReplicas(ctx, id)
	_, _, err = e.services.Upsert(ctx, id,
		func(index int) *domain.ServiceInfo {
			return domain.NewRemoteService(id, index, keys.PublicKeyFromID(id))
		},
		func(s *domain.ServiceInfo) error {
			s.ApplicationID = best.ApplicationID
			s.Replicas = replicas
			s.MarkLocated(&sig, &issued)
			return nil
		},
	)
	if err != nil {
		return nil, err
	}

	e.log.Info("located service", "service", id, "version", best.Version, "replicas", len(found), "updated", updated)
	return rpc.LocatedResponse{LocateInfo: rpc.LocateInfo{
		ID:          id,
		Updated:     updated,
		PageVersion: best.Version,
	}}, nil
}

func (e *Engine) subscribe(ctx context.Context, ident domain.Identifier, opts rpc.SubscribeOptions) (rpc.ResponseKind, error) {
	svc, err := e.resolveService(ident)
	if err != nil {
		return nil, err
	}
	if svc.Origin {
		return nil, fmt.Errorf("%w: %s is owned by this node", domain.ErrInvalidServiceState, svc.ID)
	}
	if !svc.Located {
		return nil, fmt.Errorf("%w: %s has not been located", domain.ErrInvalidServiceState, svc.ID)
	}
	if opts.QoS != "" && !opts.QoS.IsValid() {
		return nil, fmt.Errorf("%w: qos %q", domain.ErrInvalidSubscription, opts.QoS)
	}

	replicas, err := e.remoteReplicas(ctx, svc.ID)
	if err != nil {
		return nil, err
	}

	var count uint32
	for _, r := range replicas {
		_, err := e.request(ctx, r.PeerID, wireRequest{Kind: wireSubscribe, Service: svc.ID, QoS: opts.QoS})
		if err != nil {
			e.log.Debug("replica refused subscription", "service", svc.ID, "peer", r.PeerID, logger.WithError(err))
			continue
		}
		count++
	}

	if err := e.net.Subscribe(svc.ID, e.dataHandler(svc.ID)); err != nil {
		return nil, err
	}
	if _, err := e.services.Update(ctx, svc.ID, func(s *domain.ServiceInfo) error {
		s.MarkSubscribed()
		return nil
	}); err != nil {
		return nil, err
	}

	e.log.Info("subscribed to service", "service", svc.ID, "replicas", count)
	return rpc.SubscribedResponse{SubscribeInfo: rpc.SubscribeInfo{Count: count}}, nil
}

func (e *Engine) unsubscribe(ctx context.Context, ident domain.Identifier) (rpc.ResponseKind, error) {
	svc, err := e.resolveService(ident)
	if err != nil {
		return nil, err
	}
	if !svc.Subscribed {
		return nil, fmt.Errorf("%w: not subscribed to %s", domain.ErrInvalidSubscription, svc.ID)
	}

	replicas, err := e.remoteReplicas(ctx, svc.ID)
	if err != nil {
		return nil, err
	}
	for _, r := range replicas {
		if _, err := e.request(ctx, r.PeerID, wireRequest{Kind: wireUnsubscribe, Service: svc.ID}); err != nil {
			e.log.Debug("replica did not acknowledge unsubscribe", "service", svc.ID, "peer", r.PeerID, logger.WithError(err))
		}
	}

	if e.hub.streams(svc.ID) == 0 {
		e.net.Unsubscribe(svc.ID)
	}
	if _, err := e.services.Update(ctx, svc.ID, func(s *domain.ServiceInfo) error {
		s.MarkUnsubscribed()
		return nil
	}); err != nil {
		return nil, err
	}

	e.log.Info("unsubscribed from service", "service", svc.ID)
	return rpc.NoneResponse{}, nil
}

func (e *Engine) setKey(ctx context.Context, opts rpc.SetKeyOptions) (rpc.ResponseKind, error) {
	svc, err := e.resolveService(opts.Service)
	if err != nil {
		return nil, err
	}
	updated, err := e.services.Update(ctx, svc.ID, func(s *domain.ServiceInfo) error {
		s.SetSecretKey(opts.SecretKey)
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("service key changed", "service", svc.ID, "cleared", opts.SecretKey == nil)
	return rpc.ServicesResponse{Services: []domain.ServiceInfo{e.decorate(ctx, updated)}}, nil
}

// request sends one wire request to a peer and decodes the reply.
func (e *Engine) request(ctx context.Context, peer domain.ID, req wireRequest) (wireResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, peerRequestTimeout)
	defer cancel()

	b, err := encodeWire(req)
	if err != nil {
		return wireResponse{}, err
	}
	e.recordTraffic(ctx, peer, true)
	out, err := e.net.Request(ctx, peer, b)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return wireResponse{}, fmt.Errorf("%w: %s to %s", domain.ErrTimeout, req.Kind, peer)
		}
		return wireResponse{}, err
	}
	e.recordTraffic(ctx, peer, false)
	return decodeWireResponse(out)
}
