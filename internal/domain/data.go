package domain

import (
	"fmt"
	"time"
)

// BodyKind describes how a page body is carried.
type BodyKind string

const (
	BodyNone      BodyKind = "none"
	BodyCleartext BodyKind = "cleartext"
	BodyEncrypted BodyKind = "encrypted"
)

// IsValid checks if the body kind is valid.
func (k BodyKind) IsValid() bool {
	switch k {
	case BodyNone, BodyCleartext, BodyEncrypted:
		return true
	default:
		return false
	}
}

// Body is the payload of a data or service page.
type Body struct {
	Kind BodyKind `json:"kind"`
	Data []byte   `json:"data,omitempty"`
}

// Cleartext returns an unencrypted body.
func Cleartext(b []byte) Body {
	if len(b) == 0 {
		return Body{Kind: BodyNone}
	}
	return Body{Kind: BodyCleartext, Data: b}
}

// Encrypted returns a body holding ciphertext.
func Encrypted(b []byte) Body {
	return Body{Kind: BodyEncrypted, Data: b}
}

// IsEmpty reports whether the body carries no data.
func (b Body) IsEmpty() bool {
	return b.Kind == BodyNone || b.Kind == "" || len(b.Data) == 0
}

// DataKind names the kind of a data page.
type DataKind string

const (
	DataKindGeneric DataKind = "generic"
	DataKindMessage DataKind = "message"
	DataKindMeta    DataKind = "meta"
)

// IsValid checks if the data kind is valid.
func (k DataKind) IsValid() bool {
	switch k {
	case DataKindGeneric, DataKindMessage, DataKindMeta:
		return true
	default:
		return false
	}
}

// DataInfo is one published data page of a service.
type DataInfo struct {
	Service   ID        `json:"service"`
	Index     uint16    `json:"index"`
	Kind      DataKind  `json:"kind"`
	Body      Body      `json:"body"`
	Parent    *ID       `json:"parent,omitempty"`
	Signature Signature `json:"signature"`
	Published time.Time `json:"published"`
}

// Validate validates the data record.
func (d *DataInfo) Validate() error {
	if d.Service.IsZero() {
		return fmt.Errorf("%w: data without service", ErrInvalidIdentifier)
	}
	if d.Kind != "" && !d.Kind.IsValid() {
		return fmt.Errorf("%w: data kind %q", ErrMalformed, d.Kind)
	}
	if d.Body.Kind != "" && !d.Body.Kind.IsValid() {
		return fmt.Errorf("%w: body kind %q", ErrMalformed, d.Body.Kind)
	}
	if d.Signature.IsZero() {
		return fmt.Errorf("%w: data without signature", ErrMalformed)
	}
	return nil
}

// Timestamp returns the publish time for bounded listings.
func (d DataInfo) Timestamp() *time.Time {
	if d.Published.IsZero() {
		return nil
	}
	t := d.Published
	return &t
}
