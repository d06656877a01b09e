// Package crypto implements the signature and hashing primitives the access
// core is built on: Ed25519 keypairs, attached and detached signing, and
// SHA-256 hashing for content addressing.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
)

// Fixed sizes for the signature scheme in use, mirroring the constants the
// source repository hard-codes (PAP_PUBLIC_KEY_LEN, PAP_PRIVATE_KEY_LEN,
// PAP_SIGNATURE_LEN, PAP_POL_ID_MAX_LEN).
const (
	PublicKeyLen  = ed25519.PublicKeySize
	PrivateKeyLen = ed25519.PrivateKeySize
	SignatureLen  = ed25519.SignatureSize
	PolicyIDLen   = 32
)

// SignatureScheme tags the signing algorithm associated with a stored
// signature. Only SchemeEd25519 is implemented; SchemeECDSA is accepted as a
// nominal label for compatibility with the source's PAP_ECDSA constant,
// which in practice names the same crypto_sign (Ed25519) primitive.
type SignatureScheme string

const (
	SchemeEd25519 SignatureScheme = "ed25519"
	SchemeECDSA   SignatureScheme = "ecdsa" // nominal only, see DESIGN.md
)

// ErrBadSignature is returned whenever a verification step fails.
var ErrBadSignature = errors.New("crypto: bad signature")

// PublicKey and PrivateKey are named byte slices so callers can't accidentally
// swap signing and verification arguments at the type level.
type PublicKey []byte
type PrivateKey []byte

// GenerateKeypair produces a fresh Ed25519 keypair.
func GenerateKeypair() (PublicKey, PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("crypto: generate keypair: %w", err)
	}
	return PublicKey(pub), PrivateKey(priv), nil
}

// SignAttached produces a combined signature+message blob: the fixed-size
// signature followed by the plaintext, matching the crypto_sign semantics
// the original PAP relies on.
func SignAttached(sk PrivateKey, msg []byte) []byte {
	sig := ed25519.Sign(ed25519.PrivateKey(sk), msg)
	out := make([]byte, 0, len(sig)+len(msg))
	out = append(out, sig...)
	out = append(out, msg...)
	return out
}

// VerifyAttached checks a combined signature+message blob produced by
// SignAttached and, on success, returns the plaintext it wraps.
func VerifyAttached(pk PublicKey, signedMsg []byte) ([]byte, error) {
	if len(signedMsg) < SignatureLen {
		return nil, fmt.Errorf("%w: truncated envelope", ErrBadSignature)
	}
	sig := signedMsg[:SignatureLen]
	msg := signedMsg[SignatureLen:]
	if !ed25519.Verify(ed25519.PublicKey(pk), msg, sig) {
		return nil, ErrBadSignature
	}
	return msg, nil
}

// Public derives the public half of sk.
func (sk PrivateKey) Public() PublicKey {
	return PublicKey(ed25519.PrivateKey(sk).Public().(ed25519.PublicKey))
}

// SignDetached signs msg and returns only the signature.
func SignDetached(sk PrivateKey, msg []byte) []byte {
	return ed25519.Sign(ed25519.PrivateKey(sk), msg)
}

// VerifyDetached checks a detached signature over msg.
func VerifyDetached(pk PublicKey, sig, msg []byte) error {
	if !ed25519.Verify(ed25519.PublicKey(pk), msg, sig) {
		return ErrBadSignature
	}
	return nil
}

// SHA256 hashes data and returns the 32-byte digest.
func SHA256(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// Signer is the capability the PAP needs from the module keypair: produce a
// detached signature and report the public half, without exposing the
// private key to callers that only need to sign.
type Signer interface {
	PublicKey() PublicKey
	SignDetached(msg []byte) []byte
}

// ModuleSigner is the concrete Signer backed by an in-process Ed25519
// keypair, the module key the PAP generates on first start and holds for
// the lifetime of the process.
type ModuleSigner struct {
	pub PublicKey
	sk  PrivateKey
}

// NewModuleSigner wraps an existing keypair as a Signer.
func NewModuleSigner(pub PublicKey, sk PrivateKey) ModuleSigner {
	return ModuleSigner{pub: pub, sk: sk}
}

// PublicKey returns the module's public key.
func (s ModuleSigner) PublicKey() PublicKey { return s.pub }

// SignDetached signs msg with the module's private key.
func (s ModuleSigner) SignDetached(msg []byte) []byte {
	return SignDetached(s.sk, msg)
}

// ConstantTimeEqual compares two byte slices without leaking timing
// information about where they first differ, for use on signature and digest
// comparisons performed outside of ed25519.Verify (e.g. PAP's deterministic
// re-signature check in §4.3).
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
