package tokenstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const keyInfo = "fic-oauth token store v1"

var (
	// ErrEmptySecret indicates no encryption secret was configured
	ErrEmptySecret = errors.New("empty encryption secret")

	// ErrMalformedBlob indicates ciphertext that cannot be decoded
	ErrMalformedBlob = errors.New("malformed encrypted blob")
)

// Cipher seals records before they reach the cache. The associated data
// is authenticated but not encrypted; Open fails unless it matches.
type Cipher interface {
	Seal(plaintext, associated []byte) ([]byte, error)
	Open(blob, associated []byte) ([]byte, error)
}

// AESGCM encrypts with AES-256-GCM. Output is base64(nonce || ciphertext).
type AESGCM struct {
	aead cipher.AEAD
}

// NewAESGCM derives a 256-bit key from secret and returns a Cipher
func NewAESGCM(secret []byte) (*AESGCM, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating gcm: %w", err)
	}
	return &AESGCM{aead: aead}, nil
}

// Seal encrypts plaintext with a fresh random nonce
func (c *AESGCM) Seal(plaintext, associated []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, plaintext, associated)
	out := make([]byte, base64.StdEncoding.EncodedLen(len(sealed)))
	base64.StdEncoding.Encode(out, sealed)
	return out, nil
}

// Open decrypts a blob produced by Seal with the same associated data
func (c *AESGCM) Open(blob, associated []byte) ([]byte, error) {
	raw := make([]byte, base64.StdEncoding.DecodedLen(len(blob)))
	n, err := base64.StdEncoding.Decode(raw, blob)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBlob, err)
	}
	raw = raw[:n]

	ns := c.aead.NonceSize()
	if len(raw) < ns+c.aead.Overhead() {
		return nil, ErrMalformedBlob
	}

	plaintext, err := c.aead.Open(nil, raw[:ns], raw[ns:], associated)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	return plaintext, nil
}
