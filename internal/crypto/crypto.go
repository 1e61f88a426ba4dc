// Package crypto encrypts collaborator API keys before they are stored in
// the database. Encryption is optional: without a configured key, values
// are stored as-is so existing installations keep working.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"os"
	"sync"
)

const (
	// EncryptedPrefix is prepended to encrypted values to identify them
	EncryptedPrefix = "enc:v1:"
)

var (
	keyManager     *KeyManager
	keyManagerOnce sync.Once

	ErrNoEncryptionKey = errors.New("no encryption key configured")
	ErrDecryptFailed   = errors.New("decryption failed: invalid ciphertext")
)

// KeyManager handles encryption key derivation and storage
type KeyManager struct {
	key []byte
}

// GetKeyManager returns the singleton key manager instance
func GetKeyManager() *KeyManager {
	keyManagerOnce.Do(func() {
		keyManager = &KeyManager{}
		keyManager.initialize()
	})
	return keyManager
}

// initialize derives the key from RECLAIMARR_ENCRYPTION_KEY if set.
func (km *KeyManager) initialize() {
	envKey := os.Getenv("RECLAIMARR_ENCRYPTION_KEY")
	if envKey != "" {
		// Derive a 32-byte key from the provided key using SHA-256
		hash := sha256.Sum256([]byte(envKey))
		km.key = hash[:]
		return
	}

	// No key configured: encryption disabled, values pass through unchanged.
	km.key = nil
}

// SetKeyForTesting installs a raw passphrase-derived key. Test use only.
func SetKeyForTesting(passphrase string) {
	km := GetKeyManager()
	if passphrase == "" {
		km.key = nil
		return
	}
	hash := sha256.Sum256([]byte(passphrase))
	km.key = hash[:]
}

// HasKey returns true if an encryption key is configured
func (km *KeyManager) HasKey() bool {
	return km.key != nil
}

// Encrypt encrypts plaintext using AES-GCM.
// Returns the encrypted value with the EncryptedPrefix.
func (km *KeyManager) Encrypt(plaintext string) (string, error) {
	if !km.HasKey() {
		// No encryption key configured, return plaintext
		return plaintext, nil
	}

	block, err := aes.NewCipher(km.key)
	if err != nil {
		return "", err
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aesGCM.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := aesGCM.Seal(nonce, nonce, []byte(plaintext), nil)
	encoded := base64.StdEncoding.EncodeToString(ciphertext)

	return EncryptedPrefix + encoded, nil
}

// Decrypt decrypts ciphertext that was encrypted with Encrypt.
// A value without the EncryptedPrefix is returned as-is.
func (km *KeyManager) Decrypt(ciphertext string) (string, error) {
	if !IsEncrypted(ciphertext) {
		return ciphertext, nil
	}

	if !km.HasKey() {
		// Value is encrypted but no key configured
		return "", ErrNoEncryptionKey
	}

	encoded := ciphertext[len(EncryptedPrefix):]
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(km.key)
	if err != nil {
		return "", err
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonceSize := aesGCM.NonceSize()
	if len(data) < nonceSize {
		return "", ErrDecryptFailed
	}

	nonce, ciphertextBytes := data[:nonceSize], data[nonceSize:]
	plaintext, err := aesGCM.Open(nil, nonce, ciphertextBytes, nil)
	if err != nil {
		return "", ErrDecryptFailed
	}

	return string(plaintext), nil
}

// Convenience functions using the singleton key manager

// Encrypt encrypts plaintext using the global key manager
func Encrypt(plaintext string) (string, error) {
	return GetKeyManager().Encrypt(plaintext)
}

// Decrypt decrypts ciphertext using the global key manager
func Decrypt(ciphertext string) (string, error) {
	return GetKeyManager().Decrypt(ciphertext)
}

// IsEncrypted checks if a value appears to be encrypted
func IsEncrypted(value string) bool {
	return len(value) > len(EncryptedPrefix) && value[:len(EncryptedPrefix)] == EncryptedPrefix
}

// EncryptionEnabled returns true if encryption is enabled
func EncryptionEnabled() bool {
	return GetKeyManager().HasKey()
}
