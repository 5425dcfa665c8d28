// Package rpc defines the control-plane envelope exchanged between dsf and
// dsfd, the closed sets of request and response kinds, and the correlation
// table used to match replies to callers.
package rpc

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// RPC executes a request and returns its correlated response.
type RPC interface {
	Exec(ctx context.Context, req Request) (Response, error)
}

// Streamer opens a request whose responses keep arriving until ctx is done.
type Streamer interface {
	Stream(ctx context.Context, req Request) (<-chan Response, error)
}

// Request is a control-plane request.
type Request struct {
	ReqID uint64
	Kind  RequestKind
}

// NewRequest wraps kind with a random request id.
func NewRequest(kind RequestKind) Request {
	return Request{ReqID: randomReqID(), Kind: kind}
}

// Response is a control-plane response. ReqID matches the triggering request.
type Response struct {
	ReqID uint64
	Kind  ResponseKind
}

// NewResponse builds a response to the request with the given id.
func NewResponse(reqID uint64, kind ResponseKind) Response {
	return Response{ReqID: reqID, Kind: kind}
}

// Err returns the response's error payload, if it carries one.
func (r Response) Err() error {
	if e, ok := r.Kind.(Error); ok {
		return e
	}
	return nil
}

func randomReqID() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("rpc: read random request id: %v", err))
	}
	return binary.LittleEndian.Uint64(b[:])
}

type envelope struct {
	ReqID uint64          `json:"req_id"`
	Kind  string          `json:"kind"`
	Body  json.RawMessage `json:"body,omitempty"`
}

// MarshalJSON encodes the request as {"req_id", "kind", "body"}.
func (r Request) MarshalJSON() ([]byte, error) {
	if r.Kind == nil {
		return nil, fmt.Errorf("%w: request without kind", ErrUnknownKind)
	}
	body, err := json.Marshal(r.Kind)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", r.Kind.Kind(), err)
	}
	return json.Marshal(envelope{ReqID: r.ReqID, Kind: r.Kind.Kind(), Body: body})
}

// UnmarshalJSON decodes a request. An unregistered kind yields ErrUnknownKind
// with ReqID still populated so the caller can answer Unrecognised.
func (r *Request) UnmarshalJSON(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	r.ReqID = env.ReqID

	kind, err := decodeRequestKind(env.Kind, env.Body)
	if err != nil {
		return err
	}
	r.Kind = kind
	return nil
}

// MarshalJSON encodes the response as {"req_id", "kind", "body"}.
func (r Response) MarshalJSON() ([]byte, error) {
	if r.Kind == nil {
		return nil, fmt.Errorf("%w: response without kind", ErrUnknownKind)
	}
	body, err := json.Marshal(r.Kind)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", r.Kind.Kind(), err)
	}
	return json.Marshal(envelope{ReqID: r.ReqID, Kind: r.Kind.Kind(), Body: body})
}

// UnmarshalJSON decodes a response.
func (r *Response) UnmarshalJSON(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	r.ReqID = env.ReqID

	kind, err := decodeResponseKind(env.Kind, env.Body)
	if err != nil {
		return err
	}
	r.Kind = kind
	return nil
}

// Check verifies resp is a valid answer to req: same id, and either the
// expected success kind or one of the shared error kinds.
func Check(req Request, resp Response) error {
	if req.ReqID != resp.ReqID {
		return fmt.Errorf("%w: request %d, response %d", ErrUnexpectedResponse, req.ReqID, resp.ReqID)
	}
	got := resp.Kind.Kind()
	switch got {
	case req.Kind.Expects(), KindError, KindUnrecognised:
		return nil
	}
	return fmt.Errorf("%w: %s answered with %s", ErrUnexpectedResponse, req.Kind.Kind(), got)
}

// Call executes kind on r and returns the typed success response. Error and
// Unrecognised replies are returned as errors.
func Call[T ResponseKind](ctx context.Context, r RPC, kind RequestKind) (T, error) {
	var zero T
	req := NewRequest(kind)
	resp, err := r.Exec(ctx, req)
	if err != nil {
		return zero, err
	}
	if err := Check(req, resp); err != nil {
		return zero, err
	}
	switch k := resp.Kind.(type) {
	case Error:
		return zero, k
	case Unrecognised:
		return zero, &UnknownKindError{Name: kind.Kind(), Request: true}
	case T:
		return k, nil
	}
	return zero, fmt.Errorf("%w: %s answered with %s", ErrUnexpectedResponse, kind.Kind(), resp.Kind.Kind())
}
