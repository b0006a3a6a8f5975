// Package cryptox implements the symmetric encryption used for stored
// files: AES-256-GCM with a per-file random key and nonce, plus the
// fragment-safe text encoding that carries the key material in share links.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/hibana-share/hibana/internal/common"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// NonceSize is the GCM nonce length in bytes.
	NonceSize = 12
)

// GenerateKey returns a fresh random 256-bit key. Each uploaded file gets
// its own key, so nonce reuse across files is impossible by construction.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("key generation: %w", err)
	}
	return key, nil
}

// GenerateNonce returns a fresh random 96-bit GCM nonce.
func GenerateNonce() ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("nonce generation: %w", err)
	}
	return nonce, nil
}

// Encrypt seals plaintext with AES-256-GCM. The authentication tag is
// appended to the returned ciphertext by Seal.
func Encrypt(plaintext, key, nonce []byte) ([]byte, error) {
	aead, err := newAEAD(key, nonce)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, nonce, plaintext, nil), nil
}

// Decrypt opens ciphertext produced by Encrypt. It fails closed: any
// corruption of ciphertext or tag yields ErrAuthenticationFailed and no
// partial plaintext.
func Decrypt(ciphertext, key, nonce []byte) ([]byte, error) {
	aead, err := newAEAD(key, nonce)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, common.ErrAuthenticationFailed
	}
	return plaintext, nil
}

func newAEAD(key, nonce []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, common.ErrInvalidKeyFormat
	}
	if len(nonce) != NonceSize {
		return nil, common.ErrInvalidKeyFormat
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher init: %w", err)
	}
	return cipher.NewGCM(block)
}

// EncodeKeyMaterial serializes key||nonce with the URL-safe base64 alphabet,
// unpadded, so the result can live in a URL fragment without escaping.
func EncodeKeyMaterial(key, nonce []byte) string {
	combined := make([]byte, 0, len(key)+len(nonce))
	combined = append(combined, key...)
	combined = append(combined, nonce...)
	return base64.RawURLEncoding.EncodeToString(combined)
}

// DecodeKeyMaterial reverses EncodeKeyMaterial.
func DecodeKeyMaterial(fragment string) (key, nonce []byte, err error) {
	combined, err := base64.RawURLEncoding.DecodeString(fragment)
	if err != nil {
		return nil, nil, common.ErrInvalidKeyFormat
	}
	if len(combined) != KeySize+NonceSize {
		return nil, nil, common.ErrInvalidKeyFormat
	}
	return combined[:KeySize], combined[KeySize:], nil
}

// Zero overwrites b in place. Callers wipe key buffers as soon as the
// share fragment has been built so no long-lived structure holds the key.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
