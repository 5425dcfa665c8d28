package domain

import (
	"fmt"
	"time"
)

// PeerStateKind is whether a peer's public key has been learned.
type PeerStateKind string

const (
	PeerStateUnknown PeerStateKind = "unknown"
	PeerStateKnown   PeerStateKind = "known"
)

// IsValid checks if the peer state kind is valid.
func (k PeerStateKind) IsValid() bool {
	return k == PeerStateUnknown || k == PeerStateKnown
}

// PeerState holds the peer's public key once known.
type PeerState struct {
	Kind      PeerStateKind `json:"kind"`
	PublicKey *PublicKey    `json:"public_key,omitempty"`
}

// UnknownState returns the state of a peer whose key has not been seen.
func UnknownState() PeerState {
	return PeerState{Kind: PeerStateUnknown}
}

// KnownState returns the state of a peer with the given key.
func KnownState(pk PublicKey) PeerState {
	return PeerState{Kind: PeerStateKnown, PublicKey: &pk}
}

// Key returns the peer's public key if known.
func (s PeerState) Key() (PublicKey, bool) {
	if s.Kind != PeerStateKnown || s.PublicKey == nil {
		return PublicKey{}, false
	}
	return *s.PublicKey, true
}

// AddressKind distinguishes how a peer address was learned.
type AddressKind string

const (
	// AddressImplicit is observed from inbound traffic.
	AddressImplicit AddressKind = "implicit"

	// AddressExplicit is configured by an operator or a connect request.
	AddressExplicit AddressKind = "explicit"
)

// IsValid checks if the address kind is valid.
func (k AddressKind) IsValid() bool {
	return k == AddressImplicit || k == AddressExplicit
}

// PeerAddress is a peer endpoint tagged with its provenance.
type PeerAddress struct {
	Kind    AddressKind `json:"kind"`
	Address Address     `json:"address"`
}

// Implicit returns an observed address.
func Implicit(a Address) PeerAddress {
	return PeerAddress{Kind: AddressImplicit, Address: a}
}

// Explicit returns a configured address.
func Explicit(a Address) PeerAddress {
	return PeerAddress{Kind: AddressExplicit, Address: a}
}

func (a PeerAddress) String() string {
	return fmt.Sprintf("%s (%s)", a.Address, a.Kind)
}

// PeerInfo is the daemon's record of a remote peer.
type PeerInfo struct {
	ID       ID          `json:"id"`
	Index    int         `json:"index"`
	Address  PeerAddress `json:"address"`
	State    PeerState   `json:"state"`
	Seen     *time.Time  `json:"seen,omitempty"`
	Sent     uint64      `json:"sent"`
	Received uint64      `json:"received"`
	Blocked  bool        `json:"blocked"`
}

// NewPeerInfo creates a record for a newly observed peer.
func NewPeerInfo(id ID, index int, addr PeerAddress, state PeerState) *PeerInfo {
	return &PeerInfo{
		ID:      id,
		Index:   index,
		Address: addr,
		State:   state,
	}
}

// Validate validates the peer record.
func (p *PeerInfo) Validate() error {
	if p.ID.IsZero() {
		return fmt.Errorf("%w: peer id is required", ErrInvalidIdentifier)
	}
	if !p.Address.Kind.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidPeerKind, p.Address.Kind)
	}
	if !p.State.Kind.IsValid() {
		return fmt.Errorf("%w: peer state %q", ErrMalformed, p.State.Kind)
	}
	if p.State.Kind == PeerStateKnown && p.State.PublicKey == nil {
		return fmt.Errorf("%w: known peer without key", ErrMalformed)
	}
	return nil
}

// UpdateAddress merges an incoming address observation. An explicit address
// always wins; an implicit one only replaces another implicit one.
// It reports whether the stored address changed.
func (p *PeerInfo) UpdateAddress(incoming PeerAddress) bool {
	if incoming.Kind == AddressImplicit && p.Address.Kind == AddressExplicit {
		return false
	}
	if p.Address == incoming {
		return false
	}
	p.Address = incoming
	return true
}

// ObserveKey records the peer's public key. A different key for an already
// known peer is rejected and the stored key is left untouched.
func (p *PeerInfo) ObserveKey(pk PublicKey) error {
	current, ok := p.State.Key()
	if !ok {
		p.State = KnownState(pk)
		return nil
	}
	if current != pk {
		return fmt.Errorf("%w: peer %s", ErrKeyMismatch, p.ID)
	}
	return nil
}

// MarkSeen advances the last-seen time. Older observations are ignored.
func (p *PeerInfo) MarkSeen(at time.Time) bool {
	if p.Seen != nil && !at.After(*p.Seen) {
		return false
	}
	at = at.UTC()
	p.Seen = &at
	return true
}

// RecordSent increments the outbound message counter.
func (p *PeerInfo) RecordSent() { p.Sent++ }

// RecordReceived increments the inbound message counter.
func (p *PeerInfo) RecordReceived() { p.Received++ }
