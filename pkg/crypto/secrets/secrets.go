// Package secrets is the encrypt/decrypt boundary for key material at
// rest. Stored ciphertexts are opaque base64 payloads; cleartext exists
// only transiently in the caller that performs the decrypt.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

const (
	keyLength   = 32
	nonceLength = 12
)

var (
	// ErrInvalidKeyLength indicates the provided key is not the required size.
	ErrInvalidKeyLength = errors.New("secrets: encryption key must be 32 bytes")
	// ErrCiphertextTooShort indicates the ciphertext payload is shorter than the nonce.
	ErrCiphertextTooShort = errors.New("secrets: ciphertext too short")
	// ErrNoEncryptionKey indicates no encryption key was configured.
	ErrNoEncryptionKey = errors.New("secrets: no encryption key configured")
)

// Vault is the contract consumed by components that store or recover
// encrypted blobs.
type Vault interface {
	Encrypt(plaintext []byte) (string, error)
	Decrypt(encoded string) ([]byte, error)
}

// Cipher implements Vault with AES-256-GCM over base64 payloads laid out
// as nonce||ciphertext.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher constructs a Cipher from raw key bytes.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != keyLength {
		return nil, ErrInvalidKeyLength
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("secrets: create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secrets: init gcm: %w", err)
	}

	return &Cipher{aead: aead}, nil
}

// NewCipherFromBase64 decodes a base64 key, as carried in config files,
// and constructs a Cipher from it.
func NewCipherFromBase64(encoded string) (*Cipher, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("secrets: decode encryption key: %w", err)
	}
	return NewCipher(key)
}

// Unconfigured returns a Vault that fails every operation with
// ErrNoEncryptionKey. It stands in when no key is present so the rest of
// the service can run with the encrypted flows refused cleanly.
func Unconfigured() Vault {
	return unconfiguredVault{}
}

type unconfiguredVault struct{}

func (unconfiguredVault) Encrypt([]byte) (string, error) { return "", ErrNoEncryptionKey }

func (unconfiguredVault) Decrypt(string) ([]byte, error) { return nil, ErrNoEncryptionKey }

// Encrypt seals plaintext and returns the base64 payload.
func (c *Cipher) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, nonceLength)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("secrets: generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, plaintext, nil)

	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt and returns the original plaintext bytes.
func (c *Cipher) Decrypt(encoded string) ([]byte, error) {
	payload, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("secrets: decode ciphertext: %w", err)
	}

	if len(payload) < nonceLength {
		return nil, ErrCiphertextTooShort
	}

	nonce, ciphertext := payload[:nonceLength], payload[nonceLength:]

	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("secrets: decrypt payload: %w", err)
	}

	return plaintext, nil
}
