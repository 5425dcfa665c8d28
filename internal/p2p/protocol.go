package p2p

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/protocol"

	"dsf/internal/domain"
)

// ProtocolRequest carries one request and one response per stream.
const ProtocolRequest = protocol.ID(ProtocolPrefix + "/request/1.0.0")

// streamTimeout bounds a whole request/response exchange.
const streamTimeout = 30 * time.Second

const (
	statusOK    byte = 0
	statusError byte = 1
)

// ErrRemote wraps a failure reported by the remote handler.
var ErrRemote = errors.New("remote error")

// RequestHandler answers a request from a remote peer.
type RequestHandler func(ctx context.Context, from domain.ID, req []byte) ([]byte, error)

// handleStream reads the whole request, runs the handler and writes a
// status byte followed by the response or error text.
func (n *Node) handleStream(s network.Stream) {
	defer s.Close()
	log := getLogger("protocol")

	_ = s.SetDeadline(time.Now().Add(streamTimeout))

	from, err := IDFromPeerID(s.Conn().RemotePeer())
	if err != nil {
		_ = s.Reset()
		return
	}

	req, err := io.ReadAll(io.LimitReader(s, MaxMessageSize+1))
	if err != nil {
		log.Debug("failed to read request", "peer", from, "error", err)
		_ = s.Reset()
		return
	}
	if len(req) > MaxMessageSize {
		writeStatus(s, statusError, []byte("request too large"))
		return
	}

	handler := n.getRequestHandler()
	if handler == nil {
		writeStatus(s, statusError, []byte("no handler"))
		return
	}

	ctx, cancel := context.WithTimeout(n.ctx, streamTimeout)
	defer cancel()

	resp, err := handler(ctx, from, req)
	if err != nil {
		writeStatus(s, statusError, []byte(err.Error()))
		return
	}
	writeStatus(s, statusOK, resp)
}

func writeStatus(s network.Stream, status byte, body []byte) {
	w := bufio.NewWriter(s)
	_ = w.WriteByte(status)
	_, _ = w.Write(body)
	_ = w.Flush()
}

// Request sends req to peer to and returns the response body.
func (n *Node) Request(ctx context.Context, to domain.ID, req []byte) ([]byte, error) {
	if len(req) > MaxMessageSize {
		return nil, fmt.Errorf("%w: request of %d bytes", domain.ErrMalformed, len(req))
	}
	pid, err := PeerIDFromID(to)
	if err != nil {
		return nil, err
	}
	if n.host.gater.isBlocked(pid) {
		return nil, fmt.Errorf("%w: %s", domain.ErrPeerBlocked, to)
	}

	s, err := n.host.NewStream(ctx, pid, ProtocolRequest)
	if err != nil {
		return nil, fmt.Errorf("open stream to %s: %w", to, err)
	}
	defer s.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = s.SetDeadline(deadline)
	} else {
		_ = s.SetDeadline(time.Now().Add(streamTimeout))
	}

	if _, err := s.Write(req); err != nil {
		_ = s.Reset()
		return nil, fmt.Errorf("write request: %w", err)
	}
	if err := s.CloseWrite(); err != nil {
		_ = s.Reset()
		return nil, fmt.Errorf("close request: %w", err)
	}

	resp, err := io.ReadAll(io.LimitReader(s, MaxMessageSize+2))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if len(resp) == 0 {
		return nil, fmt.Errorf("%w: empty response from %s", domain.ErrMalformed, to)
	}

	switch resp[0] {
	case statusOK:
		return resp[1:], nil
	case statusError:
		return nil, fmt.Errorf("%w: %s: %s", ErrRemote, to, resp[1:])
	default:
		return nil, fmt.Errorf("%w: response status %d", domain.ErrMalformed, resp[0])
	}
}
