// Package daemon implements the dsfd engine: the peer and service
// directories, the subscription ledger and the handlers behind every
// control-plane request.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"dsf/internal/config"
	"dsf/internal/domain"
	"dsf/internal/logger"
	"dsf/internal/rpc"
	"dsf/internal/storage"
)

// Defaults applied to zero Options values.
const (
	DefaultSubscriptionTTL = 10 * time.Minute
	DefaultSweepInterval   = time.Minute
	DefaultReplicaTTL      = 30 * time.Minute
	DefaultConnectTimeout  = 10 * time.Second
)

// Options configures an Engine.
type Options struct {
	Store   storage.Store
	Network Network

	Subscriptions  config.SubscriptionConfig
	ReplicaTTL     time.Duration
	ConnectTimeout time.Duration

	// Registerer receives the engine's gauges and counters. Nil disables
	// metrics.
	Registerer prometheus.Registerer
	Logger     *logger.Logger

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Engine answers control-plane requests against the local directories and
// the peer network.
type Engine struct {
	store storage.Store
	net   Network
	log   *logger.Logger
	now   func() time.Time

	subTTL         time.Duration
	sweepInterval  time.Duration
	replicaTTL     time.Duration
	connectTimeout time.Duration

	peers    *directory[domain.PeerInfo]
	services *directory[domain.ServiceInfo]
	ledger   *domain.Ledger
	filters  *filterSet
	hub      *hub
	metrics  *engineMetrics

	sockets   atomic.Uint32
	publishMu sync.Mutex

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New loads the directories and ledger from storage and attaches the engine
// to the network.
func New(ctx context.Context, opts Options) (*Engine, error) {
	if opts.Store == nil || opts.Network == nil {
		return nil, errors.New("daemon: store and network are required")
	}

	l := opts.Logger
	if l == nil {
		l = logger.Default()
	}

	e := &Engine{
		store:          opts.Store,
		net:            opts.Network,
		log:            l.Component("daemon"),
		now:            opts.Now,
		subTTL:         orDefault(opts.Subscriptions.TTL, DefaultSubscriptionTTL),
		sweepInterval:  orDefault(opts.Subscriptions.SweepInterval, DefaultSweepInterval),
		replicaTTL:     orDefault(opts.ReplicaTTL, DefaultReplicaTTL),
		connectTimeout: orDefault(opts.ConnectTimeout, DefaultConnectTimeout),
		ledger:         domain.NewLedger(),
		hub:            newHub(),
	}
	if e.now == nil {
		e.now = time.Now
	}

	e.peers = newDirectory(
		func(p *domain.PeerInfo) (domain.ID, int) { return p.ID, p.Index },
		func(ctx context.Context, p *domain.PeerInfo) error { return e.store.Peers().Save(ctx, p) },
		func(ctx context.Context, id domain.ID) error { return e.store.Peers().Delete(ctx, id) },
	)
	e.services = newDirectory(
		func(s *domain.ServiceInfo) (domain.ID, int) { return s.ID, s.Index },
		func(ctx context.Context, s *domain.ServiceInfo) error { return e.store.Services().Save(ctx, s) },
		func(ctx context.Context, id domain.ID) error { return e.store.Services().Delete(ctx, id) },
	)

	filters, err := newFilterSet()
	if err != nil {
		return nil, err
	}
	e.filters = filters

	if err := e.load(opContext(ctx, "daemon.load")); err != nil {
		return nil, err
	}

	e.metrics = newEngineMetrics(opts.Registerer, e)

	e.net.SetObserver(e)
	e.net.SetRequestHandler(e.handlePeerRequest)

	return e, nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// load restores state persisted by a previous run.
func (e *Engine) load(ctx context.Context) error {
	peers, err := e.store.Peers().List(ctx)
	if err != nil {
		return fmt.Errorf("load peers: %w", err)
	}
	nextPeer, err := e.store.Peers().NextIndex(ctx)
	if err != nil {
		return fmt.Errorf("load peer index: %w", err)
	}
	e.peers.load(peers, nextPeer)

	services, err := e.store.Services().List(ctx, storage.ServiceFilter{})
	if err != nil {
		return fmt.Errorf("load services: %w", err)
	}
	nextService, err := e.store.Services().NextIndex(ctx)
	if err != nil {
		return fmt.Errorf("load service index: %w", err)
	}
	e.services.load(services, nextService)

	entries, err := e.store.Subscriptions().List(ctx)
	if err != nil {
		return fmt.Errorf("load subscriptions: %w", err)
	}
	for _, entry := range entries {
		if err := e.ledger.Restore(entry); err != nil {
			e.log.Warn("skipping stored subscription", "service", entry.ServiceID, logger.WithError(err))
		}
	}

	addrs, err := e.store.Addresses().List(ctx)
	if err != nil {
		return fmt.Errorf("load addresses: %w", err)
	}
	for _, a := range addrs {
		if _, err := e.net.AddAddress(a); err != nil {
			e.log.Warn("skipping stored address", "address", a, logger.WithError(err))
		}
	}

	for _, p := range peers {
		if p.Blocked {
			if err := e.net.Block(p.ID); err != nil {
				e.log.Warn("failed to block peer", "peer", p.ID, logger.WithError(err))
			}
		}
	}

	for _, s := range services {
		if s.Subscribed && !s.Origin {
			if err := e.net.Subscribe(s.ID, e.dataHandler(s.ID)); err != nil {
				e.log.Warn("failed to rejoin service topic", "service", s.ID, logger.WithError(err))
			}
		}
	}

	e.log.Info("loaded daemon state",
		"peers", len(peers),
		"services", len(services),
		"subscriptions", len(entries),
		"addresses", len(addrs),
	)
	return nil
}

// Start runs the periodic sweep until Close.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})

	go func() {
		defer close(e.done)
		ticker := time.NewTicker(e.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := e.sweep(opContext(ctx, "daemon.sweep")); err != nil && ctx.Err() == nil {
					e.log.Warn("sweep failed", logger.WithError(err))
				}
			}
		}
	}()
}

// Close stops the sweep and detaches from the network. The store and
// network are owned by the caller.
func (e *Engine) Close() error {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel = nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	e.net.SetObserver(nil)
	e.net.SetRequestHandler(nil)
	return nil
}

// opContext tags storage queries with the operation and its request id.
func opContext(ctx context.Context, source string) context.Context {
	oc := storage.NewOperationContext(source)
	if reqID, ok := logger.ReqIDFrom(ctx); ok {
		oc.WithReqID(reqID)
	}
	return storage.WithOperationContext(ctx, oc)
}

// Handle answers one control-plane request.
func (e *Engine) Handle(ctx context.Context, req rpc.Request) rpc.Response {
	ctx = opContext(ctx, req.Kind.Kind())
	kind, err := e.handle(ctx, req.Kind)
	if err != nil {
		return rpc.NewResponse(req.ReqID, rpc.NewError(err))
	}
	return rpc.NewResponse(req.ReqID, kind)
}

func (e *Engine) handle(ctx context.Context, k rpc.RequestKind) (rpc.ResponseKind, error) {
	switch r := k.(type) {
	case rpc.Status:
		return e.status(), nil

	case rpc.PeerList:
		return e.listPeers(r.ListOptions)
	case rpc.PeerConnect:
		return e.connect(ctx, r.ConnectOptions)
	case rpc.PeerGet:
		return e.getPeer(r.Peer)
	case rpc.PeerRemove:
		return e.removePeer(ctx, r.Peer)
	case rpc.PeerBlock:
		return e.setBlocked(ctx, r.Peer, true)
	case rpc.PeerUnblock:
		return e.setBlocked(ctx, r.Peer, false)

	case rpc.ServiceList:
		return e.listServices(ctx, r.ListOptions)
	case rpc.ServiceGet:
		return e.getService(ctx, r.Service)
	case rpc.ServiceCreate:
		return e.create(ctx, r.CreateOptions)
	case rpc.ServiceSearch:
		return e.locate(ctx, r.LocateOptions)
	case rpc.ServiceRegister:
		return e.register(ctx, r.Service, r.RegisterOptions)
	case rpc.ServiceSubscribe:
		return e.subscribe(ctx, r.Service, r.SubscribeOptions)
	case rpc.ServiceUnsubscribe:
		return e.unsubscribe(ctx, r.Service)
	case rpc.ServiceSetKey:
		return e.setKey(ctx, r.SetKeyOptions)

	case rpc.DataList:
		return e.listData(ctx, r)
	case rpc.DataSync:
		return e.syncData(ctx)
	case rpc.DataQuery:
		return e.queryData(ctx, r.Service)
	case rpc.DataPublish:
		return e.publish(ctx, r.PublishOptions)

	case rpc.NsSearch:
		return e.nsSearch(ctx, r.NsSearchOptions)
	case rpc.NsRegister:
		return e.nsRegister(ctx, r.NsRegisterOptions)

	case rpc.PageFetch:
		return e.fetchPage(ctx, r.FetchOptions)

	case rpc.SubscriberList:
		return e.listSubscribers(r.Service)

	case rpc.ConfigAddAddress:
		return e.addAddress(ctx, r.Address)
	case rpc.ConfigRemoveAddress:
		return e.removeAddress(ctx, r.Address)

	case rpc.DebugDatastore:
		return e.datastore(ctx)
	case rpc.DebugUpdate:
		return rpc.NoneResponse{}, e.sweep(ctx)
	case rpc.DebugBootstrap:
		return e.bootstrap(ctx)

	case rpc.Stream:
		return nil, fmt.Errorf("%w: stream requests are served by Stream", domain.ErrMalformed)
	}
	return rpc.Unrecognised{Request: k.Kind()}, nil
}

func (e *Engine) resolvePeer(ident domain.Identifier) (domain.PeerInfo, error) {
	return domain.Resolve[domain.PeerInfo](e.peers, ident)
}

func (e *Engine) resolveService(ident domain.Identifier) (domain.ServiceInfo, error) {
	return domain.Resolve[domain.ServiceInfo](e.services, ident)
}
