package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

var (
	// ErrBlankKeyMaterial indicates passphrase or salt was blank at startup.
	ErrBlankKeyMaterial = errors.New("encryption passphrase and salt must not be blank")

	// ErrInvalidCiphertext indicates the stored value is not a valid ciphertext.
	ErrInvalidCiphertext = errors.New("invalid ciphertext")

	// ErrDecryptionFailed indicates authentication of the ciphertext failed
	// (rotated key, corruption, or a value not produced by this cipher).
	ErrDecryptionFailed = errors.New("decryption failed")
)

const pbkdf2Iterations = 100_000

// FieldCipher is a symmetric text cipher for sensitive database columns.
// The AES-256-GCM key is derived from a server-held passphrase/salt pair
// via PBKDF2-SHA256. A random nonce is prepended to each ciphertext and
// the result is base64-encoded for storage in text columns.
type FieldCipher struct {
	aead cipher.AEAD
}

// NewFieldCipher derives the column key and builds the cipher. Both
// passphrase and salt must be non-blank; the caller is expected to treat
// an error here as fatal.
func NewFieldCipher(passphrase, salt string) (*FieldCipher, error) {
	if passphrase == "" || salt == "" {
		return nil, ErrBlankKeyMaterial
	}

	key := pbkdf2.Key([]byte(passphrase), []byte(salt), pbkdf2Iterations, 32, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM cipher: %w", err)
	}

	return &FieldCipher{aead: aead}, nil
}

// Encrypt encrypts plaintext and returns the base64-encoded ciphertext.
func (c *FieldCipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Any malformed or foreign input yields
// ErrInvalidCiphertext or ErrDecryptionFailed; it never panics.
func (c *FieldCipher) Decrypt(stored string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return "", fmt.Errorf("%w: base64 decode failed", ErrInvalidCiphertext)
	}

	nonceSize := c.aead.NonceSize()
	if len(data) < nonceSize+c.aead.Overhead() {
		return "", fmt.Errorf("%w: data too short", ErrInvalidCiphertext)
	}

	plaintext, err := c.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrDecryptionFailed, err.Error())
	}
	return string(plaintext), nil
}
