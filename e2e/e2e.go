// Package e2e implements Pushbullet end-to-end encryption.
//
// Keys are derived with PBKDF2-HMAC-SHA256 from the user's password, salted
// with the user iden. Messages are AES-256-GCM, encoded as
// base64('1' | tag(16) | iv(12) | ciphertext).
package e2e

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	iterations = 30000
	keyLen     = 32
	tagLen     = 16
	ivLen      = 12
	version    = '1'
)

var (
	ErrDisabled       = errors.New("end-to-end encryption is not enabled")
	ErrMalformed      = errors.New("malformed encrypted message")
	ErrUnknownVersion = errors.New("unsupported encryption version")
)

// Key is a derived encryption key. The zero Key is disabled.
type Key struct {
	aead cipher.AEAD
}

// DeriveKey derives the key for password and userIden. An empty password
// yields a disabled key.
func DeriveKey(password, userIden string) (*Key, error) {
	if password == "" {
		return &Key{}, nil
	}
	raw := pbkdf2.Key([]byte(password), []byte(userIden), iterations, keyLen, sha256.New)
	return NewKey(raw)
}

// NewKey wraps a raw 32-byte key.
func NewKey(raw []byte) (*Key, error) {
	block, err := aes.NewCipher(raw)
	if err != nil {
		return nil, fmt.Errorf("e2e: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("e2e: %w", err)
	}
	return &Key{aead: aead}, nil
}

// Enabled reports whether the key can decrypt.
func (k *Key) Enabled() bool {
	return k != nil && k.aead != nil
}

// Encrypt seals plaintext in the Pushbullet wire format.
func (k *Key) Encrypt(plaintext []byte) (string, error) {
	if !k.Enabled() {
		return "", ErrDisabled
	}
	iv := make([]byte, ivLen)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("e2e: read iv: %w", err)
	}
	sealed := k.aead.Seal(nil, iv, plaintext, nil)
	ct, tag := sealed[:len(sealed)-tagLen], sealed[len(sealed)-tagLen:]

	out := make([]byte, 0, 1+tagLen+ivLen+len(ct))
	out = append(out, version)
	out = append(out, tag...)
	out = append(out, iv...)
	out = append(out, ct...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt opens a message produced by Encrypt or by another Pushbullet client.
func (k *Key) Decrypt(encoded string) ([]byte, error) {
	if !k.Enabled() {
		return nil, ErrDisabled
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(raw) < 1+tagLen+ivLen {
		return nil, ErrMalformed
	}
	if raw[0] != version {
		return nil, ErrUnknownVersion
	}
	tag := raw[1 : 1+tagLen]
	iv := raw[1+tagLen : 1+tagLen+ivLen]
	ct := raw[1+tagLen+ivLen:]

	sealed := make([]byte, 0, len(ct)+tagLen)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)
	plain, err := k.aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("e2e: decrypt: %w", err)
	}
	return plain, nil
}
