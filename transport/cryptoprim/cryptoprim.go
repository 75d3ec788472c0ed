// Copyright 2025 The agentd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cryptoprim wraps the constant-time primitives the transport
// is built on: ChaCha20-Poly1305 AEAD (RFC 8439), X25519 Diffie-Hellman,
// HKDF-SHA256 key derivation, and an HMAC-SHA256 transcript MAC. Nothing
// here implements its own cipher; it only composes golang.org/x/crypto
// and the standard library.
package cryptoprim

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the width of an AEAD key, an HP key, and an X25519
	// public/private key.
	KeySize = 32

	// NonceSize is the ChaCha20-Poly1305 nonce width.
	NonceSize = chacha20poly1305.NonceSize

	// TagSize is the Poly1305 authentication tag width.
	TagSize = 16
)

// Seal appends the ciphertext and tag for plaintext, sealed with key,
// nonce and associated data, to dst and returns the extended slice.
func Seal(dst, key, nonce, aad, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, errors.Wrap(err, "build aead")
	}
	if len(nonce) != aead.NonceSize() {
		return nil, errors.New("invalid nonce length")
	}
	return aead.Seal(dst, nonce, plaintext, aad), nil
}

// Open authenticates and decrypts ciphertext (which includes the
// trailing tag) with key, nonce and associated data, appending the
// plaintext to dst.
func Open(dst, key, nonce, aad, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, errors.Wrap(err, "build aead")
	}
	if len(nonce) != aead.NonceSize() {
		return nil, errors.New("invalid nonce length")
	}
	return aead.Open(dst, nonce, ciphertext, aad)
}

// GenerateKeypair produces a fresh X25519 ephemeral keypair.
func GenerateKeypair() (priv, pub [KeySize]byte, err error) {
	if _, err = io.ReadFull(rand.Reader, priv[:]); err != nil {
		return priv, pub, errors.Wrap(err, "generate private key")
	}
	curve25519.ScalarBaseMult(&pub, &priv)
	return priv, pub, nil
}

// ECDH computes the X25519 shared secret between priv and the peer's
// public key.
func ECDH(priv, peerPub [KeySize]byte) ([KeySize]byte, error) {
	var secret [KeySize]byte
	out, err := curve25519.X25519(priv[:], peerPub[:])
	if err != nil {
		return secret, errors.Wrap(err, "ecdh")
	}
	copy(secret[:], out)
	return secret, nil
}

// HKDF derives outLen bytes from secret, salt and info using
// HKDF-SHA256.
func HKDF(secret, salt, info []byte, outLen int) ([]byte, error) {
	r := hkdf.New(sha256.New, secret, salt, info)
	out := make([]byte, outLen)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, errors.Wrap(err, "hkdf expand")
	}
	return out, nil
}

// MAC computes a domain-separated HMAC-SHA256 over msg, truncated to
// outLen bytes. Used for the handshake's transcript confirmation tag
// (design note: treated as a MAC, not AEAD, per the spec's open
// question on payload confirmation semantics).
func MAC(key, msg []byte, outLen int) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(msg)
	sum := h.Sum(nil)
	if outLen >= len(sum) {
		return sum
	}
	return sum[:outLen]
}

// ConstantTimeEqual reports whether a and b are equal using a
// constant-time comparison.
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return hmac.Equal(a, b)
}
