// Package domain contains the core records shared by dsf and dsfd.
// These types are used across all layers (rpc, p2p, storage, CLI).
package domain

import (
	"crypto/rand"
	"fmt"

	"github.com/mr-tron/base58/base58"
)

// Sizes of the opaque identity primitives.
const (
	IDSize         = 32
	PublicKeySize  = 32
	PrivateKeySize = 64
	SecretKeySize  = 32
	SignatureSize  = 64
	HashSize       = 32
)

// ID is the global identifier of a peer or service.
type ID [IDSize]byte

// PublicKey is a peer or service public key.
type PublicKey [PublicKeySize]byte

// PrivateKey is a service private key. Only the origin node holds one.
type PrivateKey [PrivateKeySize]byte

// SecretKey is the symmetric key protecting a non-public service's data.
type SecretKey [SecretKeySize]byte

// Signature identifies a signed page.
type Signature [SignatureSize]byte

// CryptoHash is a fixed-size digest (name-service lookups).
type CryptoHash [HashSize]byte

// NewRandomID returns a random identifier.
func NewRandomID() (ID, error) {
	var id ID
	if _, err := rand.Read(id[:]); err != nil {
		return ID{}, fmt.Errorf("generate id: %w", err)
	}
	return id, nil
}

func (id ID) String() string        { return base58.Encode(id[:]) }
func (k PublicKey) String() string  { return base58.Encode(k[:]) }
func (k SecretKey) String() string  { return base58.Encode(k[:]) }
func (s Signature) String() string  { return base58.Encode(s[:]) }
func (h CryptoHash) String() string { return base58.Encode(h[:]) }

// String never prints key material.
func (k PrivateKey) String() string { return "[private key]" }

// IsZero reports whether the id is unset.
func (id ID) IsZero() bool { return id == ID{} }

// IsZero reports whether the signature is unset.
func (s Signature) IsZero() bool { return s == Signature{} }

func (id ID) MarshalText() ([]byte, error)        { return encodeText(id[:]), nil }
func (k PublicKey) MarshalText() ([]byte, error)  { return encodeText(k[:]), nil }
func (k PrivateKey) MarshalText() ([]byte, error) { return encodeText(k[:]), nil }
func (k SecretKey) MarshalText() ([]byte, error)  { return encodeText(k[:]), nil }
func (s Signature) MarshalText() ([]byte, error)  { return encodeText(s[:]), nil }
func (h CryptoHash) MarshalText() ([]byte, error) { return encodeText(h[:]), nil }

func (id *ID) UnmarshalText(b []byte) error        { return decodeText("id", b, id[:]) }
func (k *PublicKey) UnmarshalText(b []byte) error  { return decodeText("public key", b, k[:]) }
func (k *PrivateKey) UnmarshalText(b []byte) error { return decodeText("private key", b, k[:]) }
func (k *SecretKey) UnmarshalText(b []byte) error  { return decodeText("secret key", b, k[:]) }
func (s *Signature) UnmarshalText(b []byte) error  { return decodeText("signature", b, s[:]) }
func (h *CryptoHash) UnmarshalText(b []byte) error { return decodeText("hash", b, h[:]) }

// ParseID decodes a base58 identifier.
func ParseID(s string) (ID, error) {
	var id ID
	err := id.UnmarshalText([]byte(s))
	return id, err
}

// ParsePublicKey decodes a base58 public key.
func ParsePublicKey(s string) (PublicKey, error) {
	var k PublicKey
	err := k.UnmarshalText([]byte(s))
	return k, err
}

// ParseSecretKey decodes a base58 secret key.
func ParseSecretKey(s string) (SecretKey, error) {
	var k SecretKey
	err := k.UnmarshalText([]byte(s))
	return k, err
}

// ParseSignature decodes a base58 page signature.
func ParseSignature(s string) (Signature, error) {
	var sig Signature
	err := sig.UnmarshalText([]byte(s))
	return sig, err
}

// ParseCryptoHash decodes a base58 hash.
func ParseCryptoHash(s string) (CryptoHash, error) {
	var h CryptoHash
	err := h.UnmarshalText([]byte(s))
	return h, err
}

func encodeText(b []byte) []byte {
	return []byte(base58.Encode(b))
}

func decodeText(what string, text []byte, dst []byte) error {
	raw, err := base58.Decode(string(text))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, what, err)
	}
	if len(raw) != len(dst) {
		return fmt.Errorf("%w: %s: expected %d bytes, got %d", ErrMalformed, what, len(dst), len(raw))
	}
	copy(dst, raw)
	return nil
}
