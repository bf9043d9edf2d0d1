// Package identity provides algorithm-tagged public-key primitives shared by
// the directory, the ledger and the CLI.
package identity

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Algorithm identifies a signing algorithm.
type Algorithm string

const (
	AlgEd25519 Algorithm = "ed25519"
)

// PublicKey is an algorithm-tagged public key.
type PublicKey struct {
	Algo  Algorithm
	Bytes []byte
}

// IsZero reports whether the key carries no material.
func (pk PublicKey) IsZero() bool {
	return len(pk.Bytes) == 0
}

// Signature is an algorithm-tagged signature.
type Signature struct {
	Algo  Algorithm
	Bytes []byte
}

// Signer represents a private key capable of signing.
type Signer interface {
	PublicKey() PublicKey
	Sign(payload []byte) (Signature, error)
	Algorithm() Algorithm
}

var (
	// ErrUnknownAlgorithm indicates an unknown algorithm.
	ErrUnknownAlgorithm = errors.New("unknown algorithm")
	// ErrInvalidEncoding indicates an invalid encoded key/signature.
	ErrInvalidEncoding = errors.New("invalid encoding")
	// ErrInvalidKeySize indicates key material of the wrong length.
	ErrInvalidKeySize = errors.New("invalid key size")
)

// EncodePublicKey encodes a public key as "algo:hex".
func EncodePublicKey(pk PublicKey) string {
	algo := strings.ToLower(string(pk.Algo))
	if algo == "" {
		algo = string(AlgEd25519)
	}
	return algo + ":" + hex.EncodeToString(pk.Bytes)
}

// DecodePublicKey decodes a public key from "algo:hex".
// A bare hex string is read as ed25519.
func DecodePublicKey(s string) (PublicKey, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return PublicKey{}, ErrInvalidEncoding
	}
	algo, hexPart, ok := strings.Cut(s, ":")
	if !ok {
		algo = string(AlgEd25519)
		hexPart = s
	}
	raw, err := hex.DecodeString(hexPart)
	if err != nil {
		return PublicKey{}, ErrInvalidEncoding
	}
	return NewPublicKey(Algorithm(strings.ToLower(strings.TrimSpace(algo))), raw)
}

// NewPublicKey validates raw key material for the given algorithm.
func NewPublicKey(algo Algorithm, raw []byte) (PublicKey, error) {
	switch algo {
	case AlgEd25519, "":
		if len(raw) != ed25519.PublicKeySize {
			return PublicKey{}, fmt.Errorf("%w: ed25519 wants %d bytes, got %d", ErrInvalidKeySize, ed25519.PublicKeySize, len(raw))
		}
		out := make([]byte, len(raw))
		copy(out, raw)
		return PublicKey{Algo: AlgEd25519, Bytes: out}, nil
	default:
		return PublicKey{}, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algo)
	}
}

// DecodeBase64PublicKey decodes the wire form used by the directory: standard
// base64 of a raw ed25519 public key.
func DecodeBase64PublicKey(s string) (PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return PublicKey{}, ErrInvalidEncoding
	}
	return NewPublicKey(AlgEd25519, raw)
}

// EncodeBase64 returns the wire form of a public key.
func EncodeBase64(pk PublicKey) string {
	return base64.StdEncoding.EncodeToString(pk.Bytes)
}

// Verify checks a signature over the given payload. Malformed keys or
// signatures verify as false rather than panicking.
func Verify(pub PublicKey, payload []byte, sig Signature) bool {
	algo := pub.Algo
	if algo == "" {
		algo = sig.Algo
	}
	if algo == "" {
		algo = AlgEd25519
	}
	if sig.Algo != "" && algo != sig.Algo {
		return false
	}

	switch algo {
	case AlgEd25519:
		if len(pub.Bytes) != ed25519.PublicKeySize || len(sig.Bytes) != ed25519.SignatureSize {
			return false
		}
		return ed25519.Verify(pub.Bytes, payload, sig.Bytes)
	default:
		return false
	}
}
