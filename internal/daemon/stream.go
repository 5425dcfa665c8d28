package daemon

import (
	"context"
	"fmt"

	"dsf/internal/domain"
	"dsf/internal/logger"
	"dsf/internal/rpc"
)

// Stream sends every page of a service as it arrives until ctx is done.
// Each stream is a socket subscriber in the ledger for its lifetime.
func (e *Engine) Stream(ctx context.Context, req rpc.Request, send func(rpc.Response) error) error {
	r, ok := req.Kind.(rpc.Stream)
	if !ok {
		return fmt.Errorf("%w: %s is not a stream request", domain.ErrMalformed, req.Kind.Kind())
	}
	svc, err := e.resolveService(r.Service)
	if err != nil {
		return err
	}

	socket := e.sockets.Add(1)
	sub := domain.SocketSubscriber(socket)
	if _, err := e.ledger.Accept(svc.ID, sub, domain.QosLatency, e.now(), 0); err != nil {
		return err
	}
	pages := e.hub.subscribe(svc.ID, socket)

	// a stream on a remote service needs the topic even without a
	// subscription
	joined := false
	if !svc.Origin && !svc.Subscribed {
		if err := e.net.Subscribe(svc.ID, e.dataHandler(svc.ID)); err != nil {
			e.hub.unsubscribe(svc.ID, socket)
			e.ledger.Remove(svc.ID, sub)
			return err
		}
		joined = true
	}

	log := logger.LoggerFrom(ctx)
	log.Info("stream opened", "service", svc.ID, "socket", socket)

	defer func() {
		e.hub.unsubscribe(svc.ID, socket)
		e.ledger.Remove(svc.ID, sub)
		if joined {
			if cur, ok := e.services.ResolveByID(svc.ID); ok && !cur.Subscribed && e.hub.streams(svc.ID) == 0 {
				e.net.Unsubscribe(svc.ID)
			}
		}
		log.Info("stream closed", "service", svc.ID, "socket", socket)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case d := <-pages:
			cur, ok := e.services.ResolveByID(svc.ID)
			if !ok {
				return fmt.Errorf("%w: service %s", domain.ErrNotFound, svc.ID)
			}
			resp := rpc.NewResponse(req.ReqID, rpc.DataResponse{Data: []domain.DataInfo{reveal(cur, d)}})
			if err := send(resp); err != nil {
				return err
			}
		}
	}
}
