package daemon

import (
	"encoding/json"
	"fmt"
	"time"

	"dsf/internal/domain"
	"dsf/internal/keys"
)

// Requests exchanged between daemons over the p2p request protocol.
const (
	wireService     = "service"
	wirePages       = "pages"
	wireLatest      = "latest"
	wirePage        = "page"
	wireSubscribe   = "subscribe"
	wireKeepalive   = "keepalive"
	wireUnsubscribe = "unsubscribe"
)

// peerRequestTimeout bounds one request to a remote daemon.
const peerRequestTimeout = 15 * time.Second

type wireRequest struct {
	Kind      string             `json:"kind"`
	Service   domain.ID          `json:"service"`
	Signature *domain.Signature  `json:"signature,omitempty"`
	QoS       domain.QosPriority `json:"qos,omitempty"`
}

type wireResponse struct {
	Page  *domain.ServicePage       `json:"page,omitempty"`
	Pages []domain.DataInfo         `json:"pages,omitempty"`
	Entry *domain.SubscriptionEntry `json:"entry,omitempty"`
}

func encodeWire(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode peer message: %w", err)
	}
	return b, nil
}

func decodeWireRequest(b []byte) (wireRequest, error) {
	var req wireRequest
	if err := json.Unmarshal(b, &req); err != nil {
		return req, fmt.Errorf("%w: peer request: %v", domain.ErrMalformed, err)
	}
	if req.Service.IsZero() {
		return req, fmt.Errorf("%w: peer request without service", domain.ErrInvalidIdentifier)
	}
	return req, nil
}

func decodeWireResponse(b []byte) (wireResponse, error) {
	var resp wireResponse
	if err := json.Unmarshal(b, &resp); err != nil {
		return resp, fmt.Errorf("%w: peer response: %v", domain.ErrMalformed, err)
	}
	return resp, nil
}

// signPage signs p with the service key.
func signPage(priv domain.PrivateKey, p *domain.ServicePage) error {
	msg, err := p.SigningBytes()
	if err != nil {
		return fmt.Errorf("encode page: %w", err)
	}
	p.Signature = keys.Sign(priv, msg)
	return nil
}

// verifyPage checks p was signed by the key its service id names.
func verifyPage(p *domain.ServicePage) error {
	if err := p.Validate(); err != nil {
		return err
	}
	msg, err := p.SigningBytes()
	if err != nil {
		return fmt.Errorf("encode page: %w", err)
	}
	if err := keys.Verify(keys.PublicKeyFromID(p.Service), msg, p.Signature); err != nil {
		return fmt.Errorf("%w: page for %s: %v", domain.ErrKeyMismatch, p.Service, err)
	}
	return nil
}

func signData(priv domain.PrivateKey, d *domain.DataInfo) error {
	msg, err := d.SigningBytes()
	if err != nil {
		return fmt.Errorf("encode data: %w", err)
	}
	d.Signature = keys.Sign(priv, msg)
	return nil
}

func verifyData(d *domain.DataInfo) error {
	if err := d.Validate(); err != nil {
		return err
	}
	msg, err := d.SigningBytes()
	if err != nil {
		return fmt.Errorf("encode data: %w", err)
	}
	if err := keys.Verify(keys.PublicKeyFromID(d.Service), msg, d.Signature); err != nil {
		return fmt.Errorf("%w: data %d of %s: %v", domain.ErrKeyMismatch, d.Index, d.Service, err)
	}
	return nil
}
