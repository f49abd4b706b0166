// Package crypto provides AES-GCM encryption at rest with key rotation,
// grounded in app/crypto.py's envelope design: a random nonce is
// prepended to the ciphertext and the whole thing base64url-encoded.
// Go's stdlib crypto/cipher is the idiomatic primitive here (no
// third-party AEAD wrapper appears anywhere in the retrieved corpus).
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
)

// Box encrypts with the first (active) key and attempts decryption with
// every key in the rotation list, in order.
type Box struct {
	gcms []cipher.AEAD
}

// NewBox builds a Box from raw key material; keys[0] is the active
// encryption key, the rest are retained only for decrypting older data.
func NewBox(keys [][]byte) (*Box, error) {
	if len(keys) == 0 {
		return nil, errors.New("crypto: at least one key required")
	}
	gcms := make([]cipher.AEAD, 0, len(keys))
	for _, k := range keys {
		block, err := aes.NewCipher(k)
		if err != nil {
			return nil, err
		}
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return nil, err
		}
		gcms = append(gcms, gcm)
	}
	return &Box{gcms: gcms}, nil
}

// Encrypt seals plaintext under a fresh random nonce with the active key,
// returning base64url(nonce || ciphertext).
func (b *Box) Encrypt(plaintext []byte) (string, error) {
	gcm := b.gcms[0]
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Decrypt tries every key in rotation order, returning the first
// successful open.
func (b *Box) Decrypt(encoded string) ([]byte, error) {
	raw, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	var lastErr error
	for _, gcm := range b.gcms {
		ns := gcm.NonceSize()
		if len(raw) < ns {
			lastErr = errors.New("crypto: ciphertext too short")
			continue
		}
		nonce, ct := raw[:ns], raw[ns:]
		if pt, err := gcm.Open(nil, nonce, ct, nil); err == nil {
			return pt, nil
		} else {
			lastErr = err
		}
	}
	return nil, lastErr
}
