package daemon

import (
	"context"
	"encoding/json"
	"fmt"

	"dsf/internal/domain"
	"dsf/internal/keys"
	"dsf/internal/logger"
	"dsf/internal/rpc"
)

// prefixKey is the service page metadata key naming a name service's
// prefix.
const prefixKey = "prefix"

func (e *Engine) nsRegister(ctx context.Context, opts rpc.NsRegisterOptions) (rpc.ResponseKind, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	ns, err := e.resolveService(opts.NS)
	if err != nil {
		return nil, err
	}
	if !ns.Origin {
		return nil, fmt.Errorf("%w: name service %s", domain.ErrNotOrigin, ns.ID)
	}

	hashes := make([]domain.CryptoHash, 0, len(opts.Hashes)+1)
	seen := make(map[domain.CryptoHash]bool)
	add := func(h domain.CryptoHash) {
		if !seen[h] {
			seen[h] = true
			hashes = append(hashes, h)
		}
	}
	if opts.Name != nil {
		add(keys.HashName(ns.ID, *opts.Name))
	}
	for _, h := range opts.Hashes {
		add(h)
	}

	rec := &domain.NameRecord{
		NS:     ns.ID,
		Target: opts.Target,
		Prefix: e.namePrefix(ctx, ns.ID),
		Name:   opts.Name,
		Hashes: hashes,
	}
	if err := e.store.Names().Save(ctx, rec); err != nil {
		return nil, err
	}

	body, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode name record: %w", err)
	}
	if _, err := e.publishData(ctx, ns, domain.DataKindMeta, body); err != nil {
		return nil, err
	}

	e.log.Info("registered name", "ns", ns.ID, "target", opts.Target, "hashes", len(hashes))
	return rpc.NsRegisteredResponse{NsRegisterInfo: rpc.NsRegisterInfo{
		NS:     ns.ID,
		Prefix: rec.Prefix,
		Name:   rec.Name,
		Hashes: hashes,
	}}, nil
}

func (e *Engine) namePrefix(ctx context.Context, ns domain.ID) *string {
	page, err := e.store.Pages().Get(ctx, ns)
	if err != nil {
		return nil
	}
	for _, m := range page.Metadata {
		if m.Key == prefixKey {
			v := m.Value
			return &v
		}
	}
	return nil
}

func (e *Engine) nsSearch(ctx context.Context, opts rpc.NsSearchOptions) (rpc.ResponseKind, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	ns, err := e.resolveService(opts.NS)
	if err != nil {
		return nil, err
	}

	var hash domain.CryptoHash
	if opts.Name != nil {
		hash = keys.HashName(ns.ID, *opts.Name)
	} else {
		hash = *opts.Hash
	}

	records, err := e.store.Names().Search(ctx, ns.ID, hash)
	if err != nil {
		return nil, err
	}

	services := make([]domain.ServiceInfo, 0, len(records))
	for _, rec := range records {
		svc, ok := e.services.ResolveByID(rec.Target)
		if !ok {
			if _, err := e.locate(ctx, rpc.LocateOptions{ID: rec.Target}); err != nil {
				e.log.Debug("name target not located", "ns", ns.ID, "target", rec.Target, logger.WithError(err))
				continue
			}
			if svc, ok = e.services.ResolveByID(rec.Target); !ok {
				continue
			}
		}
		services = append(services, e.decorate(ctx, svc))
	}
	return rpc.ServicesResponse{Services: services}, nil
}

// acceptNameRecord stores a registration carried in a name service's meta
// page.
func (e *Engine) acceptNameRecord(ctx context.Context, ns domain.ServiceInfo, d domain.DataInfo) {
	d = reveal(ns, d)
	if d.Body.Kind != domain.BodyCleartext {
		return
	}
	var rec domain.NameRecord
	if err := json.Unmarshal(d.Body.Data, &rec); err != nil {
		e.log.Debug("meta page is not a name record", "ns", ns.ID, "index", d.Index)
		return
	}
	if rec.NS != ns.ID || rec.Target.IsZero() {
		return
	}
	if err := e.store.Names().Save(ctx, &rec); err != nil {
		e.log.Warn("failed to store name record", "ns", ns.ID, "target", rec.Target, logger.WithError(err))
	}
}
