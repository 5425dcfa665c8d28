package daemon

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"dsf/internal/domain"
	"dsf/internal/keys"
	"dsf/internal/rpc"
)

const testAddr = domain.Address("/ip4/127.0.0.1/tcp/4001")

// pair starts two engines with b connected to a.
func pair(t *testing.T) (a, b *testNode, clock *testClock) {
	t.Helper()
	sw := newSwarm()
	clock = newTestClock()
	a = newTestNode(t, sw, clock)
	b = newTestNode(t, sw, clock)

	id := a.net.ID()
	got := call[rpc.ConnectedResponse](t, b, rpc.PeerConnect{ConnectOptions: rpc.ConnectOptions{Address: testAddr, ID: &id}})
	if got.ID != id {
		t.Fatalf("connected to %s, want %s", got.ID, id)
	}
	return a, b, clock
}

// createRegistered creates a service on n and registers it.
func createRegistered(t *testing.T, n *testNode, opts rpc.CreateOptions) rpc.CreatedResponse {
	t.Helper()
	return call[rpc.CreatedResponse](t, n, rpc.ServiceCreate{CreateOptions: opts.AndRegister()})
}

// follow locates and subscribes n to id.
func follow(t *testing.T, n *testNode, id domain.ID) {
	t.Helper()
	call[rpc.LocatedResponse](t, n, rpc.ServiceSearch{LocateOptions: rpc.LocateOptions{ID: id}})
	call[rpc.SubscribedResponse](t, n, rpc.ServiceSubscribe{Service: domain.ByID(id)})
}

func publish(t *testing.T, n *testNode, id domain.ID, body string) rpc.PublishedResponse {
	t.Helper()
	return call[rpc.PublishedResponse](t, n, rpc.DataPublish{PublishOptions: rpc.PublishOptions{
		Service: domain.ByID(id),
		Data:    []byte(body),
	}})
}

func listData(t *testing.T, n *testNode, id domain.ID) []domain.DataInfo {
	t.Helper()
	return call[rpc.DataResponse](t, n, rpc.DataList{Service: domain.ByID(id)}).Data
}

func TestEngine_Status(t *testing.T) {
	a, b, _ := pair(t)
	createRegistered(t, a, rpc.CreateOptions{ApplicationID: 1, Public: true})

	got := call[rpc.StatusResponse](t, a, rpc.Status{})
	if got.ID != a.net.ID() {
		t.Errorf("status id = %s, want %s", got.ID, a.net.ID())
	}
	if got.Peers != 1 {
		t.Errorf("peers = %d, want 1", got.Peers)
	}
	if got.Services != 1 {
		t.Errorf("services = %d, want 1", got.Services)
	}

	got = call[rpc.StatusResponse](t, b, rpc.Status{})
	if got.Peers != 1 || got.Services != 0 {
		t.Errorf("b status = %+v", got.StatusInfo)
	}
}

func TestEngine_PublishReachesSubscriber(t *testing.T) {
	a, b, _ := pair(t)

	created := createRegistered(t, a, rpc.CreateOptions{ApplicationID: 7, Body: []byte("page"), Public: true})
	if created.SecretKey != nil {
		t.Error("public service should not have a secret key")
	}

	located := call[rpc.LocatedResponse](t, b, rpc.ServiceSearch{LocateOptions: rpc.LocateOptions{ID: created.ID}})
	if located.Origin || !located.Updated || located.PageVersion != 1 {
		t.Errorf("located = %+v, want updated remote version 1", located.LocateInfo)
	}

	sub := call[rpc.SubscribedResponse](t, b, rpc.ServiceSubscribe{Service: domain.ByID(created.ID)})
	if sub.Count != 1 {
		t.Errorf("subscribed to %d replicas, want 1", sub.Count)
	}

	subs := call[rpc.SubscribersResponse](t, a, rpc.SubscriberList{Service: domain.ByID(created.ID)}).Subscribers
	if len(subs) != 1 {
		t.Fatalf("got %d subscribers, want 1", len(subs))
	}
	if subs[0].Kind.Kind != domain.SubscriberPeer || *subs[0].Kind.Peer != b.net.ID() {
		t.Errorf("subscriber = %s, want peer %s", subs[0].Kind, b.net.ID())
	}

	first := publish(t, a, created.ID, "hello")
	second := publish(t, a, created.ID, "world")
	if first.Index != 0 || second.Index != 1 {
		t.Errorf("indexes = %d, %d, want 0, 1", first.Index, second.Index)
	}

	pages := listData(t, b, created.ID)
	if len(pages) != 2 {
		t.Fatalf("subscriber holds %d pages, want 2", len(pages))
	}
	if string(pages[0].Body.Data) != "hello" || pages[0].Signature != first.Sig {
		t.Errorf("first page = %q (%s)", pages[0].Body.Data, pages[0].Signature)
	}

	svc := call[rpc.ServicesResponse](t, b, rpc.ServiceGet{Service: domain.ByID(created.ID)}).Services[0]
	if svc.Origin || !svc.Located || !svc.Subscribed || svc.ApplicationID != 7 {
		t.Errorf("subscriber view = %+v", svc)
	}
	if svc.Replicas != 1 {
		t.Errorf("replicas = %d, want 1", svc.Replicas)
	}
}

func TestEngine_PrivateServiceNeedsKey(t *testing.T) {
	a, b, _ := pair(t)

	created := createRegistered(t, a, rpc.CreateOptions{ApplicationID: 2})
	if created.SecretKey == nil {
		t.Fatal("private service should return its secret key")
	}
	follow(t, b, created.ID)
	publish(t, a, created.ID, "secret")

	if got := listData(t, a, created.ID); string(got[0].Body.Data) != "secret" {
		t.Errorf("origin sees %q, want cleartext", got[0].Body.Data)
	}

	pages := listData(t, b, created.ID)
	if pages[0].Body.Kind != domain.BodyEncrypted {
		t.Errorf("body kind without key = %s, want encrypted", pages[0].Body.Kind)
	}

	call[rpc.ServicesResponse](t, b, rpc.ServiceSetKey{SetKeyOptions: rpc.SetKeyOptions{
		Service:   domain.ByID(created.ID),
		SecretKey: created.SecretKey,
	}})
	pages = listData(t, b, created.ID)
	if pages[0].Body.Kind != domain.BodyCleartext || string(pages[0].Body.Data) != "secret" {
		t.Errorf("body with key = %s %q, want cleartext secret", pages[0].Body.Kind, pages[0].Body.Data)
	}
}

func TestEngine_SyncFetchAndQuery(t *testing.T) {
	a, b, _ := pair(t)

	created := createRegistered(t, a, rpc.CreateOptions{ApplicationID: 3, Public: true})
	first := publish(t, a, created.ID, "one")
	publish(t, a, created.ID, "two")

	follow(t, b, created.ID)
	if got := listData(t, b, created.ID); len(got) != 0 {
		t.Fatalf("pages published before subscribing arrived early: %d", len(got))
	}

	fetched := call[rpc.DataResponse](t, b, rpc.PageFetch{FetchOptions: rpc.FetchOptions{
		Service: domain.ByID(created.ID),
		PageSig: first.Sig,
	}})
	if len(fetched.Data) != 1 || string(fetched.Data[0].Body.Data) != "one" {
		t.Errorf("fetched = %+v", fetched.Data)
	}

	call[rpc.NoneResponse](t, b, rpc.DataSync{})
	if got := listData(t, b, created.ID); len(got) != 2 {
		t.Errorf("after sync holds %d pages, want 2", len(got))
	}

	publish(t, a, created.ID, "three")
	latest := call[rpc.DataResponse](t, b, rpc.DataQuery{Service: domain.ByID(created.ID)})
	if len(latest.Data) != 1 || latest.Data[0].Index != 2 {
		t.Errorf("latest = %+v, want index 2", latest.Data)
	}
}

func TestEngine_RequestErrors(t *testing.T) {
	a, b, _ := pair(t)
	created := createRegistered(t, a, rpc.CreateOptions{Public: true})
	follow(t, b, created.ID)

	missing := domain.ByIndex(99)
	tests := []struct {
		name string
		node *testNode
		req  rpc.RequestKind
		want error
	}{
		{"unknown service", a, rpc.ServiceGet{Service: missing}, domain.ErrNotFound},
		{"unknown peer", a, rpc.PeerGet{Peer: missing}, domain.ErrNotFound},
		{"publish on replica", b, rpc.DataPublish{PublishOptions: rpc.PublishOptions{Service: domain.ByID(created.ID), Data: []byte("x")}}, domain.ErrNotOrigin},
		{"subscribe to own service", a, rpc.ServiceSubscribe{Service: domain.ByID(created.ID)}, domain.ErrInvalidServiceState},
		{"unsubscribe twice", a, rpc.ServiceUnsubscribe{Service: domain.ByID(created.ID)}, domain.ErrInvalidSubscription},
		{"connect without peer id", b, rpc.PeerConnect{ConnectOptions: rpc.ConnectOptions{Address: testAddr}}, domain.ErrInvalidAddress},
		{"bad address", b, rpc.ConfigAddAddress{Address: "not an address"}, domain.ErrInvalidAddress},
		{"stream over exec", a, rpc.Stream{StreamOptions: rpc.StreamOptions{Service: domain.ByID(created.ID)}}, domain.ErrMalformed},
		{"bad filter", a, rpc.ServiceList{ListOptions: rpc.ListOptions{Filter: "service.origin +"}}, domain.ErrMalformed},
		{"fetch without signature", b, rpc.PageFetch{FetchOptions: rpc.FetchOptions{Service: domain.ByID(created.ID)}}, domain.ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := callErr(tt.node, tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestEngine_Unsubscribe(t *testing.T) {
	a, b, _ := pair(t)
	created := createRegistered(t, a, rpc.CreateOptions{Public: true})
	follow(t, b, created.ID)

	call[rpc.NoneResponse](t, b, rpc.ServiceUnsubscribe{Service: domain.ByID(created.ID)})

	if b.net.joined(created.ID) {
		t.Error("topic still joined after unsubscribe")
	}
	if n := len(call[rpc.SubscribersResponse](t, a, rpc.SubscriberList{Service: domain.ByID(created.ID)}).Subscribers); n != 0 {
		t.Errorf("origin still lists %d subscribers", n)
	}

	svc := call[rpc.ServicesResponse](t, b, rpc.ServiceGet{Service: domain.ByID(created.ID)}).Services[0]
	if svc.Subscribed || !svc.Located {
		t.Errorf("after unsubscribe subscribed=%v located=%v", svc.Subscribed, svc.Located)
	}
	if svc.State != domain.ServiceStateSubscribed {
		t.Errorf("state regressed to %s", svc.State)
	}
}

func TestEngine_BlockedPeer(t *testing.T) {
	a, b, _ := pair(t)
	created := createRegistered(t, a, rpc.CreateOptions{Public: true})
	bID := b.net.ID()

	blocked := call[rpc.PeersResponse](t, a, rpc.PeerBlock{Peer: domain.ByID(bID)})
	if !blocked.Peers[0].Blocked {
		t.Fatal("peer not marked blocked")
	}

	err := callErr(b, rpc.ServiceSearch{LocateOptions: rpc.LocateOptions{ID: created.ID}})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("locate through blocking peer: got %v, want not found", err)
	}

	call[rpc.PeersResponse](t, a, rpc.PeerUnblock{Peer: domain.ByID(bID)})
	call[rpc.LocatedResponse](t, b, rpc.ServiceSearch{LocateOptions: rpc.LocateOptions{ID: created.ID}})

	removed := call[rpc.PeersResponse](t, a, rpc.PeerRemove{Peer: domain.ByID(bID)})
	if removed.Peers[0].ID != bID {
		t.Errorf("removed %s, want %s", removed.Peers[0].ID, bID)
	}
	if err := callErr(a, rpc.PeerGet{Peer: domain.ByID(bID)}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("removed peer still resolves: %v", err)
	}
}

func TestEngine_ListFilters(t *testing.T) {
	a, b, _ := pair(t)
	own := createRegistered(t, a, rpc.CreateOptions{ApplicationID: 5, Public: true})
	call[rpc.CreatedResponse](t, a, rpc.ServiceCreate{CreateOptions: rpc.CreateOptions{ApplicationID: 6}})
	follow(t, b, own.ID)

	app := uint16(5)
	tests := []struct {
		name string
		opts rpc.ListOptions
		want int
	}{
		{"all", rpc.ListOptions{}, 2},
		{"by application", rpc.ListOptions{ApplicationID: &app}, 1},
		{"registered", rpc.ListOptions{Filter: "service.registered"}, 1},
		{"public", rpc.ListOptions{Filter: "service.public && service.subscribers > 0"}, 1},
		{"none", rpc.ListOptions{Filter: "!service.origin"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := call[rpc.ServicesResponse](t, a, rpc.ServiceList{ListOptions: tt.opts})
			if len(got.Services) != tt.want {
				t.Errorf("got %d services, want %d", len(got.Services), tt.want)
			}
		})
	}

	peers := call[rpc.PeersResponse](t, b, rpc.PeerList{ListOptions: rpc.ListOptions{Filter: `peer.address_kind == "explicit"`}})
	if len(peers.Peers) != 1 || peers.Peers[0].ID != a.net.ID() {
		t.Errorf("explicit peers = %+v", peers.Peers)
	}
}

func TestEngine_DataListWindow(t *testing.T) {
	a, _, clock := pair(t)
	created := createRegistered(t, a, rpc.CreateOptions{Public: true})
	start := clock.Now()
	publish(t, a, created.ID, "early")
	clock.Advance(time.Hour)
	publish(t, a, created.ID, "late")
	end := clock.Now()

	tests := []struct {
		name   string
		window domain.TimeBounds
		want   int
	}{
		{"unbounded", domain.TimeBounds{}, 2},
		{"from second", domain.TimeBounds{From: &end}, 1},
		{"until first", domain.TimeBounds{Until: &start}, 1},
		{"inverted", domain.TimeBounds{From: &end, Until: &start}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := call[rpc.DataResponse](t, a, rpc.DataList{Service: domain.ByID(created.ID), Time: tt.window})
			if len(got.Data) != tt.want {
				t.Errorf("got %d pages, want %d", len(got.Data), tt.want)
			}
		})
	}
}

func TestEngine_NameService(t *testing.T) {
	a, b, _ := pair(t)

	ns := createRegistered(t, a, rpc.CreateOptions{
		ApplicationID: 10,
		Public:        true,
		Metadata:      []rpc.MetadataEntry{{Key: "prefix", Value: "lab"}},
	})
	printer := createRegistered(t, a, rpc.CreateOptions{ApplicationID: 11, Public: true})
	scanner := createRegistered(t, a, rpc.CreateOptions{ApplicationID: 11, Public: true})
	follow(t, b, ns.ID)

	name := "printer"
	reg := call[rpc.NsRegisteredResponse](t, a, rpc.NsRegister{NsRegisterOptions: rpc.NsRegisterOptions{
		NS:     domain.ByID(ns.ID),
		Target: printer.ID,
		Name:   &name,
	}})
	if reg.Prefix == nil || *reg.Prefix != "lab" {
		t.Errorf("prefix = %v, want lab", reg.Prefix)
	}
	want := keys.HashName(ns.ID, name)
	if len(reg.Hashes) != 1 || reg.Hashes[0] != want {
		t.Errorf("hashes = %v, want [%s]", reg.Hashes, want)
	}

	extra := keys.Hash([]byte("color"))
	call[rpc.NsRegisteredResponse](t, a, rpc.NsRegister{NsRegisterOptions: rpc.NsRegisterOptions{
		NS:     domain.ByID(ns.ID),
		Target: scanner.ID,
		Hashes: []domain.CryptoHash{extra},
	}})

	other := "plotter"
	tests := []struct {
		name string
		node *testNode
		opts rpc.NsSearchOptions
		want []domain.ID
	}{
		{"origin by name", a, rpc.NsSearchOptions{NS: domain.ByID(ns.ID), Name: &name}, []domain.ID{printer.ID}},
		{"origin by hash", a, rpc.NsSearchOptions{NS: domain.ByID(ns.ID), Hash: &extra}, []domain.ID{scanner.ID}},
		{"origin unknown name", a, rpc.NsSearchOptions{NS: domain.ByID(ns.ID), Name: &other}, nil},
		{"subscriber by name", b, rpc.NsSearchOptions{NS: domain.ByID(ns.ID), Name: &name}, []domain.ID{printer.ID}},
		{"subscriber by hash", b, rpc.NsSearchOptions{NS: domain.ByID(ns.ID), Hash: &extra}, []domain.ID{scanner.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := call[rpc.ServicesResponse](t, tt.node, rpc.NsSearch{NsSearchOptions: tt.opts}).Services
			if len(got) != len(tt.want) {
				t.Fatalf("got %d services, want %d", len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("service %d = %s, want %s", i, got[i].ID, id)
				}
			}
		})
	}

	err := callErr(b, rpc.NsRegister{NsRegisterOptions: rpc.NsRegisterOptions{
		NS:     domain.ByID(ns.ID),
		Target: printer.ID,
		Name:   &other,
	}})
	if !errors.Is(err, domain.ErrNotOrigin) {
		t.Errorf("register on replica: got %v, want not origin", err)
	}
}

func TestEngine_Addresses(t *testing.T) {
	a, _, _ := pair(t)
	canonical := domain.MustParseAddress("10.0.0.1:4001")

	call[rpc.NoneResponse](t, a, rpc.ConfigAddAddress{Address: "10.0.0.1:4001"})
	call[rpc.NoneResponse](t, a, rpc.ConfigAddAddress{Address: canonical})

	stored, err := a.store.Addresses().List(context.Background())
	if err != nil {
		t.Fatalf("list addresses: %v", err)
	}
	if len(stored) != 1 || stored[0] != canonical {
		t.Errorf("stored = %v, want [%s]", stored, canonical)
	}
	if !a.net.addrs[canonical] {
		t.Error("address not announced")
	}

	call[rpc.NoneResponse](t, a, rpc.ConfigRemoveAddress{Address: canonical})
	if err := callErr(a, rpc.ConfigRemoveAddress{Address: canonical}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("second remove: got %v, want not found", err)
	}
	if a.net.addrs[canonical] {
		t.Error("address still announced")
	}
}

func TestEngine_SweepExpiresAndRenews(t *testing.T) {
	a, b, clock := pair(t)
	created := createRegistered(t, a, rpc.CreateOptions{Public: true})
	follow(t, b, created.ID)

	subscribers := func() int {
		return len(call[rpc.SubscribersResponse](t, a, rpc.SubscriberList{Service: domain.ByID(created.ID)}).Subscribers)
	}
	if n := subscribers(); n != 1 {
		t.Fatalf("subscribers = %d, want 1", n)
	}

	clock.Advance(2 * time.Minute)
	call[rpc.NoneResponse](t, a, rpc.DebugUpdate{})
	if n := subscribers(); n != 0 {
		t.Errorf("expired subscriber survived sweep: %d", n)
	}

	// the subscriber's own sweep re-subscribes once keep-alive is refused
	call[rpc.NoneResponse](t, b, rpc.DebugUpdate{})
	if n := subscribers(); n != 1 {
		t.Errorf("subscribers after renewal = %d, want 1", n)
	}

	clock.Advance(30 * time.Second)
	call[rpc.NoneResponse](t, b, rpc.DebugUpdate{})
	clock.Advance(45 * time.Second)
	call[rpc.NoneResponse](t, a, rpc.DebugUpdate{})
	if n := subscribers(); n != 1 {
		t.Errorf("kept-alive subscriber expired: %d", n)
	}
}

func TestEngine_Stream(t *testing.T) {
	sw := newSwarm()
	a := newTestNode(t, sw, newTestClock())
	created := call[rpc.CreatedResponse](t, a, rpc.ServiceCreate{CreateOptions: rpc.CreateOptions{}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan rpc.Response, 4)
	done := make(chan error, 1)
	req := rpc.NewRequest(rpc.Stream{StreamOptions: rpc.StreamOptions{Service: domain.ByID(created.ID)}})
	go func() {
		done <- a.Stream(ctx, req, func(resp rpc.Response) error {
			got <- resp
			return nil
		})
	}()

	deadline := time.Now().Add(5 * time.Second)
	for a.hub.streams(created.ID) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream never attached")
		}
		time.Sleep(5 * time.Millisecond)
	}

	subs := call[rpc.SubscribersResponse](t, a, rpc.SubscriberList{Service: domain.ByID(created.ID)}).Subscribers
	if len(subs) != 1 || subs[0].Kind.Kind != domain.SubscriberSocket {
		t.Errorf("stream subscriber = %+v", subs)
	}

	publish(t, a, created.ID, "live")
	select {
	case resp := <-got:
		if resp.ReqID != req.ReqID {
			t.Errorf("req id = %d, want %d", resp.ReqID, req.ReqID)
		}
		data, ok := resp.Kind.(rpc.DataResponse)
		if !ok || len(data.Data) != 1 || string(data.Data[0].Body.Data) != "live" {
			t.Errorf("streamed %+v, want cleartext live", resp.Kind)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no data streamed")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("stream returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not stop")
	}

	if n := len(call[rpc.SubscribersResponse](t, a, rpc.SubscriberList{Service: domain.ByID(created.ID)}).Subscribers); n != 0 {
		t.Errorf("closed stream still listed: %d", n)
	}
}

func TestEngine_RestoresState(t *testing.T) {
	sw := newSwarm()
	clock := newTestClock()
	net := sw.join(t)
	store := openTestStore(t)

	first := startTestNode(t, net, store, clock)
	created := call[rpc.CreatedResponse](t, first, rpc.ServiceCreate{CreateOptions: rpc.CreateOptions{ApplicationID: 4}})
	publish(t, first, created.ID, "kept")
	call[rpc.NoneResponse](t, first, rpc.ConfigAddAddress{Address: testAddr})
	first.Close()

	net.RemoveAddress(testAddr)
	second := startTestNode(t, net, store, clock)

	svc := call[rpc.ServicesResponse](t, second, rpc.ServiceGet{Service: domain.ByID(created.ID)}).Services[0]
	if !svc.Origin || svc.ApplicationID != 4 {
		t.Errorf("restored service = %+v", svc)
	}
	pages := listData(t, second, created.ID)
	if len(pages) != 1 || string(pages[0].Body.Data) != "kept" {
		t.Errorf("restored pages = %+v", pages)
	}
	if next := publish(t, second, created.ID, "more"); next.Index != 1 {
		t.Errorf("next index = %d, want 1", next.Index)
	}
	if !net.addrs[testAddr] {
		t.Error("stored address not re-announced")
	}
}

func TestEngine_RestartKeepsRemovedIndexes(t *testing.T) {
	sw := newSwarm()
	clock := newTestClock()
	net := sw.join(t)
	store := openTestStore(t)
	peers := []domain.ID{sw.join(t).ID(), sw.join(t).ID(), sw.join(t).ID()}

	first := startTestNode(t, net, store, clock)
	net.notify(peers[0], testAddr, true)
	net.notify(peers[1], testAddr, true)
	removed := call[rpc.PeersResponse](t, first, rpc.PeerRemove{Peer: domain.ByID(peers[1])}).Peers[0]
	if removed.Index != 1 {
		t.Fatalf("removed index = %d, want 1", removed.Index)
	}
	first.Close()

	second := startTestNode(t, net, store, clock)
	net.notify(peers[2], testAddr, true)

	got := call[rpc.PeersResponse](t, second, rpc.PeerGet{Peer: domain.ByID(peers[2])}).Peers[0]
	if got.Index != 2 {
		t.Errorf("index after restart = %d, want 2", got.Index)
	}
	if err := callErr(second, rpc.PeerGet{Peer: domain.ByIndex(1)}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("removed index resolves after restart: %v", err)
	}
}

func TestEngine_Datastore(t *testing.T) {
	a, _, _ := pair(t)
	createRegistered(t, a, rpc.CreateOptions{Public: true})

	got := call[rpc.DatastoreResponse](t, a, rpc.DebugDatastore{})
	if len(got.Entries) == 0 {
		t.Fatal("empty datastore dump")
	}
	for _, e := range got.Entries {
		if bytes.Contains([]byte(e.Value), []byte("private_key")) {
			t.Errorf("dump leaks a private key: %s", e.Key)
		}
	}
}

func TestEngine_LocateKeepsNewestPage(t *testing.T) {
	sw := newSwarm()
	clock := newTestClock()
	a := newTestNode(t, sw, clock)
	b := newTestNode(t, sw, clock)
	c := newTestNode(t, sw, clock)

	id := createRegistered(t, a, rpc.CreateOptions{Public: true}).ID

	// c replicates version 1 and keeps serving it.
	call[rpc.LocatedResponse](t, c, rpc.ServiceSearch{LocateOptions: rpc.LocateOptions{ID: id}})
	call[rpc.RegisteredResponse](t, c, rpc.ServiceRegister{Service: domain.ByID(id)})

	reg := call[rpc.RegisteredResponse](t, a, rpc.ServiceRegister{Service: domain.ByID(id)})
	if reg.PageVersion != 2 {
		t.Fatalf("origin registered version %d, want 2", reg.PageVersion)
	}

	got := call[rpc.LocatedResponse](t, b, rpc.ServiceSearch{LocateOptions: rpc.LocateOptions{ID: id}})
	if got.PageVersion != 2 || !got.Updated {
		t.Fatalf("first locate = %+v, want updated version 2", got.LocateInfo)
	}

	// Only the stale replica answers now.
	a.net.SetRequestHandler(nil)
	got = call[rpc.LocatedResponse](t, b, rpc.ServiceSearch{LocateOptions: rpc.LocateOptions{ID: id}})
	if got.PageVersion != 2 || got.Updated {
		t.Errorf("second locate = %+v, want unchanged version 2", got.LocateInfo)
	}

	page, err := b.store.Pages().Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get page: %v", err)
	}
	if page.Version != 2 {
		t.Errorf("stored version = %d, want 2", page.Version)
	}
	svc := call[rpc.ServicesResponse](t, b, rpc.ServiceGet{Service: domain.ByID(id)}).Services[0]
	if svc.ReplicaPage == nil || *svc.ReplicaPage != page.Signature {
		t.Errorf("replica page = %v, want %s", svc.ReplicaPage, page.Signature)
	}
}

func TestEngine_InboundKeepsExplicitAddress(t *testing.T) {
	a, b, _ := pair(t)
	aID := a.net.ID()
	other := domain.Address("/ip4/10.9.9.9/tcp/4001")

	before := call[rpc.PeersResponse](t, b, rpc.PeerGet{Peer: domain.ByID(aID)}).Peers[0]
	if before.Address.Kind != domain.AddressExplicit {
		t.Fatalf("dialed address = %s, want explicit", before.Address)
	}

	b.net.notify(aID, other, true)

	after := call[rpc.PeersResponse](t, b, rpc.PeerGet{Peer: domain.ByID(aID)}).Peers[0]
	if after.Address != before.Address {
		t.Errorf("address = %s, want %s", after.Address, before.Address)
	}
}
