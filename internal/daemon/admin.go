package daemon

import (
	"context"
	"fmt"

	"dsf/internal/domain"
	"dsf/internal/rpc"
)

func (e *Engine) status() rpc.ResponseKind {
	return rpc.StatusResponse{StatusInfo: rpc.StatusInfo{
		ID:       e.net.ID(),
		Peers:    e.peers.Len(),
		Services: e.services.Len(),
	}}
}

func (e *Engine) listSubscribers(ident domain.Identifier) (rpc.ResponseKind, error) {
	svc, err := e.resolveService(ident)
	if err != nil {
		return nil, err
	}
	return rpc.SubscribersResponse{Subscribers: e.ledger.List(svc.ID)}, nil
}

func (e *Engine) addAddress(ctx context.Context, addr domain.Address) (rpc.ResponseKind, error) {
	a, err := domain.ParseAddress(string(addr))
	if err != nil {
		return nil, err
	}
	added, err := e.net.AddAddress(a)
	if err != nil {
		return nil, err
	}
	if err := e.store.Addresses().Add(ctx, a); err != nil {
		return nil, err
	}
	e.log.Info("added external address", "address", a, "new", added)
	return rpc.NoneResponse{}, nil
}

func (e *Engine) removeAddress(ctx context.Context, addr domain.Address) (rpc.ResponseKind, error) {
	a, err := domain.ParseAddress(string(addr))
	if err != nil {
		return nil, err
	}
	if err := e.store.Addresses().Remove(ctx, a); err != nil {
		return nil, err
	}
	if _, err := e.net.RemoveAddress(a); err != nil {
		return nil, err
	}
	e.log.Info("removed external address", "address", a)
	return rpc.NoneResponse{}, nil
}

func (e *Engine) datastore(ctx context.Context) (rpc.ResponseKind, error) {
	entries, err := e.store.Dump(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]rpc.DatastoreEntry, 0, len(entries))
	for _, en := range entries {
		out = append(out, rpc.DatastoreEntry{Key: en.Key, Value: en.Value})
	}
	return rpc.DatastoreResponse{Entries: out}, nil
}

func (e *Engine) bootstrap(ctx context.Context) (rpc.ResponseKind, error) {
	n, err := e.net.Bootstrap(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	e.log.Info("bootstrap complete", "bootstrap_peers", n)
	return rpc.NoneResponse{}, nil
}
