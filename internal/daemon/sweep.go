package daemon

import (
	"context"
	"errors"
	"fmt"

	"dsf/internal/domain"
	"dsf/internal/logger"
)

// sweep expires stale subscribers and replicas, renews this node's own
// subscriptions with their replicas and pulls any missed data.
func (e *Engine) sweep(ctx context.Context) error {
	now := e.now()

	expired := e.ledger.Expire(now)
	for _, entry := range expired {
		e.log.Debug("subscription expired", "service", entry.ServiceID, "subscriber", entry.Kind)
	}

	var errs []error
	if _, err := e.store.Subscriptions().DeleteExpired(ctx, now); err != nil {
		errs = append(errs, fmt.Errorf("expire subscriptions: %w", err))
	}
	replicas, err := e.store.Replicas().DeleteExpired(ctx, now)
	if err != nil {
		errs = append(errs, fmt.Errorf("expire replicas: %w", err))
	}

	renewed := 0
	for _, svc := range e.services.List() {
		if svc.Origin || !svc.Subscribed {
			continue
		}
		renewed += e.renew(ctx, svc)
	}

	if _, err := e.syncData(ctx); err != nil {
		errs = append(errs, err)
	}

	e.log.Debug("sweep complete",
		"expired_subscribers", len(expired),
		"expired_replicas", replicas,
		"renewed", renewed,
	)
	return errors.Join(errs...)
}

// renew sends a keep-alive to every replica of a subscribed service, and
// subscribes again where the replica has dropped the entry.
func (e *Engine) renew(ctx context.Context, svc domain.ServiceInfo) int {
	replicas, err := e.remoteReplicas(ctx, svc.ID)
	if err != nil {
		e.log.Warn("failed to list replicas", "service", svc.ID, logger.WithError(err))
		return 0
	}

	n := 0
	for _, r := range replicas {
		_, err := e.request(ctx, r.PeerID, wireRequest{Kind: wireKeepalive, Service: svc.ID})
		if err != nil {
			_, err = e.request(ctx, r.PeerID, wireRequest{Kind: wireSubscribe, Service: svc.ID})
		}
		if err != nil {
			e.log.Debug("replica did not renew subscription", "service", svc.ID, "peer", r.PeerID, logger.WithError(err))
			continue
		}
		n++
	}
	return n
}
