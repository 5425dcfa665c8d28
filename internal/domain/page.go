package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// ServicePage is the signed primary page describing a service. The origin
// re-issues it with a higher version whenever the service is registered.
type ServicePage struct {
	Service       ID         `json:"service"`
	ApplicationID uint16     `json:"application_id"`
	PageKind      uint16     `json:"page_kind"`
	Version       uint16     `json:"version"`
	Body          Body       `json:"body"`
	Addresses     []Address  `json:"addresses,omitempty"`
	Metadata      []Metadata `json:"metadata,omitempty"`
	Public        bool       `json:"public"`
	Issued        time.Time  `json:"issued"`
	Signature     Signature  `json:"signature"`
}

// Metadata is one key:value pair carried on a service page.
type Metadata struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Validate validates the page.
func (p *ServicePage) Validate() error {
	if p.Service.IsZero() {
		return fmt.Errorf("%w: page without service", ErrInvalidIdentifier)
	}
	if p.Body.Kind != "" && !p.Body.Kind.IsValid() {
		return fmt.Errorf("%w: body kind %q", ErrMalformed, p.Body.Kind)
	}
	if p.Signature.IsZero() {
		return fmt.Errorf("%w: unsigned page", ErrMalformed)
	}
	return nil
}

// SigningBytes returns the canonical bytes covered by the signature.
func (p ServicePage) SigningBytes() ([]byte, error) {
	p.Signature = Signature{}
	p.Issued = p.Issued.UTC()
	return json.Marshal(p)
}

// SigningBytes returns the canonical bytes covered by the signature.
func (d DataInfo) SigningBytes() ([]byte, error) {
	d.Signature = Signature{}
	d.Published = d.Published.UTC()
	return json.Marshal(d)
}
