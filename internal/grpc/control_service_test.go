package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"dsf/internal/domain"
	"dsf/internal/grpc/client"
	"dsf/internal/grpc/control"
	"dsf/internal/logger"
	"dsf/internal/rpc"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// fakeHandler answers a small subset of requests for transport tests.
type fakeHandler struct {
	slow time.Duration
}

func (h *fakeHandler) Handle(ctx context.Context, req rpc.Request) rpc.Response {
	switch k := req.Kind.(type) {
	case rpc.Status:
		return rpc.NewResponse(req.ReqID, rpc.StatusResponse{StatusInfo: rpc.StatusInfo{Peers: 2, Services: 5}})
	case rpc.PeerGet:
		if k.Peer.Index == nil {
			return rpc.NewResponse(req.ReqID, rpc.NewError(domain.ErrNotFound))
		}
		// answer out of order
		time.Sleep(time.Duration(rand.IntN(5)) * time.Millisecond)
		return rpc.NewResponse(req.ReqID, rpc.PeersResponse{Peers: []domain.PeerInfo{{Index: *k.Peer.Index}}})
	case rpc.DataQuery:
		select {
		case <-time.After(h.slow):
		case <-ctx.Done():
		}
		return rpc.NewResponse(req.ReqID, rpc.DataResponse{})
	case rpc.DebugUpdate:
		panic("handler bug")
	}
	return rpc.NewResponse(req.ReqID, rpc.Unrecognised{Request: req.Kind.Kind()})
}

func (h *fakeHandler) Stream(ctx context.Context, req rpc.Request, send func(rpc.Response) error) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for i := uint16(0); ; i++ {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			page := domain.DataInfo{Index: i}
			if err := send(rpc.NewResponse(0, rpc.DataResponse{Data: []domain.DataInfo{page}})); err != nil {
				return err
			}
		}
	}
}

func newTestServer(t *testing.T, h Handler, audit *logger.AuditLogger) (*Server, *bufconn.Listener) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv, err := NewServer(ServerConfig{Handler: h, Logger: logger.Discard(), Audit: audit})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if err := srv.Serve(lis); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
	})
	return srv, lis
}

func bufDialer(lis *bufconn.Listener) func(context.Context, string) (net.Conn, error) {
	return func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}
}

func newTestClient(t *testing.T, lis *bufconn.Listener, opts client.Options) *client.Client {
	t.Helper()
	opts = opts.WithAddress("bufnet").WithDialer(bufDialer(lis))
	c, err := client.New(opts)
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestExecStatus(t *testing.T) {
	_, lis := newTestServer(t, &fakeHandler{}, nil)
	c := newTestClient(t, lis, client.DefaultOptions())

	got, err := rpc.Call[rpc.StatusResponse](context.Background(), c, rpc.Status{})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got.Peers != 2 || got.Services != 5 {
		t.Errorf("status = %+v", got.StatusInfo)
	}
}

func TestExecConcurrentRequestsCorrelate(t *testing.T) {
	_, lis := newTestServer(t, &fakeHandler{}, nil)
	c := newTestClient(t, lis, client.DefaultOptions())

	const n = 64
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := rpc.Call[rpc.PeersResponse](context.Background(), c, rpc.PeerGet{Peer: domain.ByIndex(i)})
			if err != nil {
				errs <- err
				return
			}
			if len(got.Peers) != 1 || got.Peers[0].Index != i {
				errs <- errors.New("response delivered to the wrong caller")
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	if p := c.Pending(); p != 0 {
		t.Errorf("pending = %d after all replies", p)
	}
}

func TestExecErrorReply(t *testing.T) {
	_, lis := newTestServer(t, &fakeHandler{}, nil)
	c := newTestClient(t, lis, client.DefaultOptions())

	id, err := domain.NewRandomID()
	if err != nil {
		t.Fatal(err)
	}
	req := rpc.NewRequest(rpc.PeerGet{Peer: domain.ByID(id)})
	resp, err := c.Exec(context.Background(), req)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if resp.ReqID != req.ReqID || resp.Kind.Kind() != rpc.KindError {
		t.Errorf("resp = %+v", resp)
	}
}

func TestExecTimeoutRemovesWaiter(t *testing.T) {
	_, lis := newTestServer(t, &fakeHandler{slow: time.Second}, nil)
	c := newTestClient(t, lis, client.DefaultOptions().WithTimeout(50*time.Millisecond).WithRetry(0, 0))

	_, err := c.Exec(context.Background(), rpc.NewRequest(rpc.DataQuery{Service: domain.ByIndex(0)}))
	if !errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if p := c.Pending(); p != 0 {
		t.Errorf("pending = %d after timeout", p)
	}

	// the stream is still usable afterwards
	if _, err := rpc.Call[rpc.StatusResponse](context.Background(), c, rpc.Status{}); err != nil {
		t.Errorf("status after timeout: %v", err)
	}
}

func TestExecRecoversHandlerPanic(t *testing.T) {
	_, lis := newTestServer(t, &fakeHandler{}, nil)
	c := newTestClient(t, lis, client.DefaultOptions())

	_, err := rpc.Call[rpc.NoneResponse](context.Background(), c, rpc.DebugUpdate{})
	var wire rpc.Error
	if !errors.As(err, &wire) || wire.Code != rpc.CodeInternal {
		t.Fatalf("err = %v, want internal error", err)
	}
	if _, err := rpc.Call[rpc.StatusResponse](context.Background(), c, rpc.Status{}); err != nil {
		t.Errorf("status after panic: %v", err)
	}
}

func TestExecRejectsBadFrames(t *testing.T) {
	_, lis := newTestServer(t, &fakeHandler{}, nil)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(bufDialer(lis)),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stream, err := control.NewControlClient(conn).Exec(ctx)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		frame string
		kind  string
	}{
		{"unknown kind", `{"req_id":7,"kind":"teleport","body":{}}`, rpc.KindUnrecognised},
		{"bad body", `{"req_id":8,"kind":"peer.info","body":{"peer":{"index":"x"}}}`, rpc.KindError},
		{"not json", `{{{`, rpc.KindError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := stream.Send(wrapperspb.Bytes([]byte(tt.frame))); err != nil {
				t.Fatal(err)
			}
			frame, err := stream.Recv()
			if err != nil {
				t.Fatal(err)
			}
			var resp rpc.Response
			if err := json.Unmarshal(frame.GetValue(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp.Kind.Kind() != tt.kind {
				t.Errorf("kind = %s, want %s", resp.Kind.Kind(), tt.kind)
			}
			if u, ok := resp.Kind.(rpc.Unrecognised); ok && u.Request != "teleport" {
				t.Errorf("unrecognised request = %q", u.Request)
			}
		})
	}
}

func TestStreamUntilCancel(t *testing.T) {
	_, lis := newTestServer(t, &fakeHandler{}, nil)
	c := newTestClient(t, lis, client.DefaultOptions())

	ctx, cancel := context.WithCancel(context.Background())
	req := rpc.NewRequest(rpc.Stream{StreamOptions: rpc.StreamOptions{Service: domain.ByIndex(0)}})
	ch, err := c.Stream(ctx, req)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		select {
		case resp, ok := <-ch:
			if !ok {
				t.Fatal("stream closed early")
			}
			if resp.ReqID != req.ReqID {
				t.Errorf("req_id = %d, want %d", resp.ReqID, req.ReqID)
			}
			if _, ok := resp.Kind.(rpc.DataResponse); !ok {
				t.Errorf("kind = %s", resp.Kind.Kind())
			}
		case <-time.After(2 * time.Second):
			t.Fatal("no stream data")
		}
	}

	cancel()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream did not close after cancel")
		}
	}
}

func TestMutatingRequestsAreAudited(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	audit, err := logger.NewAuditLogger(path, 0)
	if err != nil {
		t.Fatal(err)
	}
	srv, lis := newTestServer(t, &fakeHandler{}, audit)
	c := newTestClient(t, lis, client.DefaultOptions())

	ctx := context.Background()
	if _, err := rpc.Call[rpc.StatusResponse](ctx, c, rpc.Status{}); err != nil {
		t.Fatal(err)
	}
	// the fake answers Unrecognised; the attempt is still audited
	_, _ = c.Exec(ctx, rpc.NewRequest(rpc.DebugBootstrap{}))

	mfs, err := srv.Registry().Gather()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, mf := range mfs {
		if mf.GetName() == "dsf_control_requests_total" {
			found = true
		}
	}
	if !found {
		t.Error("request counter not registered")
	}

	// drain in-flight handlers before reading the audit file
	_ = c.Close()
	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := srv.Stop(stopCtx); err != nil {
		t.Fatal(err)
	}
	if err := audit.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), rpc.KindDebugBootstrap) {
		t.Errorf("mutating request missing from audit log: %s", data)
	}
	if strings.Contains(string(data), `"kind":"status"`) {
		t.Errorf("read-only request audited: %s", data)
	}
}

func TestNewServerRequiresHandler(t *testing.T) {
	if _, err := NewServer(ServerConfig{}); err == nil {
		t.Fatal("expected error without handler")
	}
}
