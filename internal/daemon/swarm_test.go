package daemon

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"dsf/internal/config"
	"dsf/internal/domain"
	"dsf/internal/keys"
	"dsf/internal/logger"
	"dsf/internal/p2p"
	"dsf/internal/rpc"
	"dsf/internal/storage"
	_ "dsf/internal/storage/sqlite"
)

// swarm links fake networks in memory. Requests and publishes run
// synchronously on the caller's goroutine.
type swarm struct {
	mu        sync.Mutex
	nodes     map[domain.ID]*fakeNet
	providers map[domain.ID][]domain.ID
}

func newSwarm() *swarm {
	return &swarm{
		nodes:     make(map[domain.ID]*fakeNet),
		providers: make(map[domain.ID][]domain.ID),
	}
}

func (s *swarm) node(id domain.ID) (*fakeNet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	return n, ok
}

func (s *swarm) join(t *testing.T) *fakeNet {
	t.Helper()
	kp, err := keys.Generate()
	if err != nil {
		t.Fatalf("generate node key: %v", err)
	}
	n := &fakeNet{
		id:        kp.ID(),
		pub:       kp.Public,
		sw:        s,
		topics:    make(map[domain.ID]p2p.DataHandler),
		addrs:     make(map[domain.Address]bool),
		blocked:   make(map[domain.ID]bool),
		connected: make(map[domain.ID]bool),
	}
	s.mu.Lock()
	s.nodes[n.id] = n
	s.mu.Unlock()
	return n
}

type fakeNet struct {
	id  domain.ID
	pub domain.PublicKey
	sw  *swarm

	mu        sync.Mutex
	observer  p2p.Observer
	handler   p2p.RequestHandler
	topics    map[domain.ID]p2p.DataHandler
	addrs     map[domain.Address]bool
	blocked   map[domain.ID]bool
	connected map[domain.ID]bool
}

var _ Network = (*fakeNet)(nil)

func (n *fakeNet) ID() domain.ID               { return n.id }
func (n *fakeNet) PublicKey() domain.PublicKey { return n.pub }

func (n *fakeNet) SetObserver(o p2p.Observer) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.observer = o
}

func (n *fakeNet) SetRequestHandler(h p2p.RequestHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handler = h
}

func (n *fakeNet) Connect(ctx context.Context, addr domain.Address, id *domain.ID) (domain.ID, error) {
	if id == nil {
		return domain.ID{}, fmt.Errorf("%w: %v", domain.ErrInvalidAddress, p2p.ErrNoPeerID)
	}
	remote, ok := n.sw.node(*id)
	if !ok {
		return domain.ID{}, fmt.Errorf("%w: no peer at %s", domain.ErrTimeout, addr)
	}
	if n.isBlocked(remote.id) || remote.isBlocked(n.id) {
		return domain.ID{}, fmt.Errorf("%w: %s", domain.ErrPeerBlocked, remote.id)
	}

	n.link(remote.id)
	remote.link(n.id)
	remote.notify(n.id, "/ip4/127.0.0.1/tcp/4001", true)
	return remote.id, nil
}

func (n *fakeNet) link(id domain.ID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.connected[id] = true
}

func (n *fakeNet) notify(id domain.ID, addr domain.Address, inbound bool) {
	n.mu.Lock()
	obs := n.observer
	n.mu.Unlock()
	if obs != nil {
		obs.PeerConnected(id, addr, inbound)
	}
}

func (n *fakeNet) isBlocked(id domain.ID) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.blocked[id]
}

func (n *fakeNet) Forget(id domain.ID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.connected, id)
	return nil
}

func (n *fakeNet) Block(id domain.ID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.blocked[id] = true
	delete(n.connected, id)
	return nil
}

func (n *fakeNet) Unblock(id domain.ID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.blocked, id)
	return nil
}

func (n *fakeNet) ConnectedPeers() []domain.ID {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]domain.ID, 0, len(n.connected))
	for id := range n.connected {
		out = append(out, id)
	}
	return out
}

func (n *fakeNet) Provide(_ context.Context, service domain.ID) error {
	n.sw.mu.Lock()
	defer n.sw.mu.Unlock()
	for _, id := range n.sw.providers[service] {
		if id == n.id {
			return nil
		}
	}
	n.sw.providers[service] = append(n.sw.providers[service], n.id)
	return nil
}

func (n *fakeNet) FindProviders(_ context.Context, service domain.ID, limit int) ([]domain.ID, error) {
	n.sw.mu.Lock()
	defer n.sw.mu.Unlock()
	found := n.sw.providers[service]
	if len(found) > limit {
		found = found[:limit]
	}
	return append([]domain.ID(nil), found...), nil
}

func (n *fakeNet) Subscribe(service domain.ID, handler p2p.DataHandler) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.topics[service] = handler
	return nil
}

func (n *fakeNet) Unsubscribe(service domain.ID) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.topics[service]
	delete(n.topics, service)
	return ok
}

func (n *fakeNet) joined(service domain.ID) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.topics[service]
	return ok
}

func (n *fakeNet) Publish(ctx context.Context, service domain.ID, payload []byte) (int, error) {
	n.sw.mu.Lock()
	nodes := make([]*fakeNet, 0, len(n.sw.nodes))
	for _, other := range n.sw.nodes {
		if other != n {
			nodes = append(nodes, other)
		}
	}
	n.sw.mu.Unlock()

	delivered := 0
	for _, other := range nodes {
		other.mu.Lock()
		h, ok := other.topics[service]
		other.mu.Unlock()
		if !ok {
			continue
		}
		h(ctx, n.id, payload)
		delivered++
	}
	return delivered, nil
}

func (n *fakeNet) Request(ctx context.Context, to domain.ID, req []byte) ([]byte, error) {
	remote, ok := n.sw.node(to)
	if !ok {
		return nil, fmt.Errorf("%w: no route to %s", domain.ErrTimeout, to)
	}
	remote.mu.Lock()
	h := remote.handler
	remote.mu.Unlock()
	if h == nil {
		return nil, fmt.Errorf("%w: %s serves no requests", domain.ErrTimeout, to)
	}
	return h(ctx, n.id, req)
}

func (n *fakeNet) Bootstrap(context.Context) (int, error) { return 0, nil }

func (n *fakeNet) AddAddress(addr domain.Address) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.addrs[addr] {
		return false, nil
	}
	n.addrs[addr] = true
	return true, nil
}

func (n *fakeNet) RemoveAddress(addr domain.Address) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.addrs[addr] {
		return false, nil
	}
	delete(n.addrs, addr)
	return true, nil
}

// testClock is a settable clock shared by the engines of a test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testNode struct {
	*Engine
	net   *fakeNet
	store storage.Store
}

// Exec lets a test node stand in for an rpc.RPC client.
func (n *testNode) Exec(ctx context.Context, req rpc.Request) (rpc.Response, error) {
	return n.Handle(ctx, req), nil
}

func openTestStore(t *testing.T) storage.Store {
	t.Helper()
	cfg := config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "dsfd.db")}
	store, err := storage.Open(context.Background(), cfg, "")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestNode(t *testing.T, sw *swarm, clock *testClock) *testNode {
	t.Helper()
	return startTestNode(t, sw.join(t), openTestStore(t), clock)
}

func startTestNode(t *testing.T, net *fakeNet, store storage.Store, clock *testClock) *testNode {
	t.Helper()
	e, err := New(context.Background(), Options{
		Store:   store,
		Network: net,
		Subscriptions: config.SubscriptionConfig{
			TTL: time.Minute,
		},
		Logger: logger.Discard(),
		Now:    clock.Now,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return &testNode{Engine: e, net: net, store: store}
}

func call[T rpc.ResponseKind](t *testing.T, n *testNode, kind rpc.RequestKind) T {
	t.Helper()
	resp, err := rpc.Call[T](context.Background(), n, kind)
	if err != nil {
		t.Fatalf("%s: %v", kind.Kind(), err)
	}
	return resp
}

func callErr(n *testNode, kind rpc.RequestKind) error {
	resp := n.Handle(context.Background(), rpc.NewRequest(kind))
	return resp.Err()
}
