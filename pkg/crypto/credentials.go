// Package crypto seals source passwords stored in passwords.yaml.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// EncryptedPrefix marks a sealed value in a passwords file.
const EncryptedPrefix = "enc:"

var (
	ErrInvalidKey       = errors.New("invalid encryption key: must not be empty")
	ErrDecryptionFailed = errors.New("decryption failed: invalid ciphertext or wrong key")
)

// CredentialEncryptor seals values with AES-256-GCM.
type CredentialEncryptor struct {
	aead cipher.AEAD
}

// NewCredentialEncryptor derives a key from keyInput. A base64 string that
// decodes to 32 bytes is used as-is; anything else is treated as a
// passphrase and hashed with SHA-256.
func NewCredentialEncryptor(keyInput string) (*CredentialEncryptor, error) {
	if keyInput == "" {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(deriveKey(keyInput))
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &CredentialEncryptor{aead: aead}, nil
}

func deriveKey(input string) []byte {
	if raw, err := base64.StdEncoding.DecodeString(input); err == nil && len(raw) == 32 {
		return raw
	}
	sum := sha256.Sum256([]byte(input))
	return sum[:]
}

// Encrypt returns base64(nonce || ciphertext || tag). Empty input stays empty.
func (e *CredentialEncryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := e.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Empty input stays empty.
func (e *CredentialEncryptor) Decrypt(encrypted string) (string, error) {
	if encrypted == "" {
		return "", nil
	}
	data, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("%w: base64 decode failed", ErrDecryptionFailed)
	}
	n := e.aead.NonceSize()
	if len(data) < n+e.aead.Overhead() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecryptionFailed)
	}
	plain, err := e.aead.Open(nil, data[:n], data[n:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", ErrDecryptionFailed)
	}
	return string(plain), nil
}

// Seal encrypts plaintext and adds EncryptedPrefix, producing a value that
// can be pasted into a passwords file.
func (e *CredentialEncryptor) Seal(plaintext string) (string, error) {
	ct, err := e.Encrypt(plaintext)
	if err != nil || ct == "" {
		return ct, err
	}
	return EncryptedPrefix + ct, nil
}

// Open returns value unchanged unless it carries EncryptedPrefix, in which
// case it is decrypted.
func (e *CredentialEncryptor) Open(value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	return e.Decrypt(strings.TrimPrefix(value, EncryptedPrefix))
}

// IsSealed reports whether value carries EncryptedPrefix.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, EncryptedPrefix)
}
