// Package keys implements the key and crypto operations behind service
// records: ed25519 signing keys, the symmetric data key, and name hashing.
//
// A service or peer ID is its ed25519 public key, so a record can be
// verified from its ID alone.
package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"

	"dsf/internal/domain"
)

var (
	// ErrDecrypt is returned when a body cannot be opened with the given key.
	ErrDecrypt = errors.New("decrypt: authentication failed")

	// ErrBadSignature is returned when a signature does not verify.
	ErrBadSignature = errors.New("bad signature")
)

// Keypair is a service signing keypair.
type Keypair struct {
	Public  domain.PublicKey
	Private domain.PrivateKey
}

// ID returns the identity derived from the public key.
func (k Keypair) ID() domain.ID {
	return IDFromPublicKey(k.Public)
}

// Generate creates a new ed25519 keypair.
func Generate() (Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Keypair{}, fmt.Errorf("generate keypair: %w", err)
	}
	var kp Keypair
	copy(kp.Public[:], pub)
	copy(kp.Private[:], priv)
	return kp, nil
}

// IDFromPublicKey returns the identity for a public key.
func IDFromPublicKey(pk domain.PublicKey) domain.ID {
	return domain.ID(pk)
}

// PublicKeyFromID returns the public key an identity was derived from.
func PublicKeyFromID(id domain.ID) domain.PublicKey {
	return domain.PublicKey(id)
}

// NewSecretKey creates a random symmetric data key.
func NewSecretKey() (domain.SecretKey, error) {
	var k domain.SecretKey
	if _, err := rand.Read(k[:]); err != nil {
		return k, fmt.Errorf("generate secret key: %w", err)
	}
	return k, nil
}

// Sign signs msg with priv.
func Sign(priv domain.PrivateKey, msg []byte) domain.Signature {
	var sig domain.Signature
	copy(sig[:], ed25519.Sign(ed25519.PrivateKey(priv[:]), msg))
	return sig
}

// Verify checks sig over msg with pub.
func Verify(pub domain.PublicKey, msg []byte, sig domain.Signature) error {
	if !ed25519.Verify(ed25519.PublicKey(pub[:]), msg, sig[:]) {
		return ErrBadSignature
	}
	return nil
}

// Encrypt seals plaintext with XChaCha20-Poly1305. The random nonce is
// prepended to the ciphertext.
func Encrypt(key domain.SecretKey, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("encrypt: nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a body sealed by Encrypt.
func Decrypt(key domain.SecretKey, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < aead.NonceSize()+aead.Overhead() {
		return nil, fmt.Errorf("%w: %d bytes is too short", ErrDecrypt, len(ciphertext))
	}
	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	out, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return out, nil
}

// HashName hashes a name within the scope of a name service. The same name
// hashes differently under different name services.
func HashName(ns domain.ID, name string) domain.CryptoHash {
	h, err := blake2b.New256(ns[:])
	if err != nil {
		// only fails for keys longer than 64 bytes
		panic(err)
	}
	h.Write([]byte(name))
	var out domain.CryptoHash
	copy(out[:], h.Sum(nil))
	return out
}

// Hash returns the BLAKE2b-256 digest of data.
func Hash(data []byte) domain.CryptoHash {
	return domain.CryptoHash(blake2b.Sum256(data))
}
