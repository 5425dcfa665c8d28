// Package client connects to dsfd and implements rpc.RPC over the control
// service's Exec stream.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"dsf/internal/grpc/control"
	"dsf/internal/logger"
	"dsf/internal/rpc"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
)

// Client is the control-plane client. Requests share one Exec stream and are
// matched to their replies through a correlation table; Stream requests get
// a stream of their own.
type Client struct {
	opts Options
	log  *logger.Logger

	connLock sync.Mutex
	conn     *grpc.ClientConn
	ctl      control.ControlClient
	sess     *session
}

var (
	_ rpc.RPC      = (*Client)(nil)
	_ rpc.Streamer = (*Client)(nil)
)

// New creates a new Client with the given options.
func New(opts Options) (*Client, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	return &Client{opts: opts, log: log}, nil
}

// Connect establishes the connection to dsfd.
func (c *Client) Connect(ctx context.Context) error {
	c.connLock.Lock()
	defer c.connLock.Unlock()

	if c.conn != nil {
		return nil
	}

	target, dialer := c.target()
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithChainStreamInterceptor(c.buildStreamInterceptors()...),
	}
	if dialer != nil {
		opts = append(opts, grpc.WithContextDialer(dialer))
	}

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrConnectionFailed, c.opts.Address, err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
	defer cancel()
	if err := waitReady(dialCtx, conn); err != nil {
		_ = conn.Close()
		return fmt.Errorf("%w: %s: %v", ErrConnectionFailed, c.opts.Address, err)
	}

	c.conn = conn
	c.ctl = control.NewControlClient(conn)
	c.log.Debug("connected to daemon", "address", c.opts.Address)
	return nil
}

// target maps the configured address to a gRPC target and dialer.
func (c *Client) target() (string, func(context.Context, string) (net.Conn, error)) {
	addr := c.opts.Address
	switch {
	case c.opts.Dialer != nil:
		return "passthrough:///" + addr, c.opts.Dialer
	case strings.HasPrefix(addr, `\\.\pipe\`):
		return "passthrough:///" + addr, dialNamedPipe
	case strings.HasPrefix(addr, "unix:"):
		return addr, nil
	case strings.HasPrefix(addr, "/"), strings.HasSuffix(addr, ".sock"):
		return "unix:" + addr, nil
	default:
		return "passthrough:///" + addr, nil
	}
}

func waitReady(ctx context.Context, conn *grpc.ClientConn) error {
	conn.Connect()
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Shutdown:
			return errors.New("connection shut down")
		}
		if !conn.WaitForStateChange(ctx, state) {
			return ctx.Err()
		}
	}
}

// Exec sends req and waits for its correlated response. Retryable failures
// are resent up to Options.Retries times. A daemon-side Error reply is
// returned together with the response.
func (c *Client) Exec(ctx context.Context, req rpc.Request) (rpc.Response, error) {
	backoff := c.opts.RetryBackoff
	for attempt := 0; ; attempt++ {
		resp, err := c.exec(ctx, req)
		if err == nil {
			if err := rpc.Check(req, resp); err != nil {
				return resp, err
			}
			return resp, resp.Err()
		}
		if attempt >= c.opts.Retries || !retryable(req.Kind, err) {
			return resp, err
		}

		delay := backoff
		var re *control.RetryError
		if errors.As(err, &re) && re.Delay > delay {
			delay = re.Delay
		}
		c.log.Debug("retrying request",
			"kind", req.Kind.Kind(),
			logger.ReqIDAttr(req.ReqID),
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return rpc.Response{}, ctx.Err()
		case <-time.After(delay):
		}
		backoff *= 2
	}
}

func (c *Client) exec(ctx context.Context, req rpc.Request) (rpc.Response, error) {
	s, err := c.session()
	if err != nil {
		return rpc.Response{}, err
	}

	ch, err := s.table.Register(req.ReqID)
	if err != nil {
		return rpc.Response{}, err
	}
	if err := s.send(req); err != nil {
		s.table.Cancel(req.ReqID)
		return rpc.Response{}, err
	}

	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}
	return s.table.Wait(ctx, req.ReqID, ch)
}

// session returns the shared Exec stream, opening a new one if the last
// one failed.
func (c *Client) session() (*session, error) {
	c.connLock.Lock()
	defer c.connLock.Unlock()

	if c.conn == nil {
		return nil, ErrNotConnected
	}
	if c.sess != nil && !c.sess.closed() {
		return c.sess, nil
	}

	// the shared stream outlives any single request
	ctx, cancel := context.WithCancel(context.Background())
	stream, err := c.ctl.Exec(ctx)
	if err != nil {
		cancel()
		return nil, control.FromStatus(err)
	}
	s := &session{
		stream: stream,
		cancel: cancel,
		table:  rpc.NewCorrelator(),
		done:   make(chan struct{}),
	}
	go s.recvLoop(c.log)
	c.sess = s
	return s, nil
}

// Stream opens a dedicated Exec stream for req and delivers every response
// carrying its req_id until ctx is done, the daemon ends the stream, or an
// error reply arrives.
func (c *Client) Stream(ctx context.Context, req rpc.Request) (<-chan rpc.Response, error) {
	c.connLock.Lock()
	ctl := c.ctl
	c.connLock.Unlock()
	if ctl == nil {
		return nil, ErrNotConnected
	}

	sctx, cancel := context.WithCancel(ctx)
	stream, err := ctl.Exec(sctx)
	if err != nil {
		cancel()
		return nil, control.FromStatus(err)
	}
	frame, err := control.Frame(req)
	if err != nil {
		cancel()
		return nil, err
	}
	if err := stream.Send(frame); err != nil {
		cancel()
		return nil, control.FromStatus(err)
	}

	out := make(chan rpc.Response, 16)
	go func() {
		defer cancel()
		defer close(out)
		for {
			frame, err := stream.Recv()
			if err != nil {
				if sctx.Err() == nil {
					c.log.Debug("stream ended", logger.ReqIDAttr(req.ReqID), "error", control.FromStatus(err))
				}
				return
			}
			var resp rpc.Response
			if err := control.Unframe(frame, &resp); err != nil || resp.ReqID != req.ReqID {
				continue
			}
			select {
			case out <- resp:
			case <-sctx.Done():
				return
			}
			switch resp.Kind.(type) {
			case rpc.Error, rpc.Unrecognised:
				return
			}
		}
	}()
	return out, nil
}

// Pending returns the number of requests awaiting a reply.
func (c *Client) Pending() int {
	c.connLock.Lock()
	defer c.connLock.Unlock()
	if c.sess == nil {
		return 0
	}
	return c.sess.table.Pending()
}

// Close ends the shared stream and closes the connection.
func (c *Client) Close() error {
	c.connLock.Lock()
	defer c.connLock.Unlock()

	if c.sess != nil {
		c.sess.close()
		c.sess = nil
	}
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.ctl = nil
	return err
}

// IsConnected returns whether the client is connected.
func (c *Client) IsConnected() bool {
	c.connLock.Lock()
	defer c.connLock.Unlock()
	return c.conn != nil
}

// session is one shared Exec stream and its correlation table.
type session struct {
	stream control.Control_ExecClient
	cancel context.CancelFunc
	table  *rpc.Correlator

	sendMu sync.Mutex
	done   chan struct{}
}

func (s *session) send(req rpc.Request) error {
	frame, err := control.Frame(req)
	if err != nil {
		return err
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := s.stream.Send(frame); err != nil {
		return control.FromStatus(err)
	}
	return nil
}

func (s *session) recvLoop(log *logger.Logger) {
	defer close(s.done)
	for {
		frame, err := s.stream.Recv()
		if err != nil {
			err = control.FromStatus(err)
			if n := s.table.FailAll(err); n > 0 {
				log.Debug("stream closed with requests pending", "pending", n, "error", err)
			}
			return
		}

		var resp rpc.Response
		if err := control.Unframe(frame, &resp); err != nil {
			log.Warn("dropping undecodable response", logger.ReqIDAttr(resp.ReqID), "error", err)
			s.table.Fail(resp.ReqID, err)
			continue
		}
		if !s.table.Resolve(resp) {
			log.Debug("dropping unmatched response", logger.ReqIDAttr(resp.ReqID), "kind", resp.Kind.Kind())
		}
	}
}

func (s *session) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *session) close() {
	s.sendMu.Lock()
	_ = s.stream.CloseSend()
	s.sendMu.Unlock()
	s.cancel()
	<-s.done
}
