package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	encryptionKeyInfo  = "card-payments/encryption/v1"
	fingerprintKeyInfo = "card-payments/fingerprint/v1"
	derivedKeySize     = 32
)

// Cipher encrypts card fields at rest and computes lookup fingerprints.
// Encryption and fingerprint keys are derived separately from one master key.
type Cipher struct {
	encryptionKey  []byte
	fingerprintKey []byte
}

// ParseKey decodes a hex-encoded master key and checks its length
func ParseKey(hexKey string) ([]byte, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode key: %w", err)
	}
	if err := checkKeySize(key); err != nil {
		return nil, err
	}
	return key, nil
}

// NewCipher derives the working keys from masterKey using HKDF-SHA256
func NewCipher(masterKey []byte) (*Cipher, error) {
	if err := checkKeySize(masterKey); err != nil {
		return nil, err
	}

	encKey, err := deriveKey(masterKey, encryptionKeyInfo)
	if err != nil {
		return nil, err
	}
	fpKey, err := deriveKey(masterKey, fingerprintKeyInfo)
	if err != nil {
		return nil, err
	}

	return &Cipher{encryptionKey: encKey, fingerprintKey: fpKey}, nil
}

func deriveKey(masterKey []byte, info string) ([]byte, error) {
	key := make([]byte, derivedKeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, masterKey, nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("failed to derive key %q: %w", info, err)
	}
	return key, nil
}

func checkKeySize(key []byte) error {
	if len(key) != 16 && len(key) != 24 && len(key) != 32 {
		return fmt.Errorf("encryption key must be 16, 24, or 32 bytes, got %d", len(key))
	}
	return nil
}

// Fingerprint returns the lowercase hex HMAC-SHA256 of plaintext under the fingerprint key
func (c *Cipher) Fingerprint(plaintext string) string {
	h := hmac.New(sha256.New, c.fingerprintKey)
	h.Write([]byte(plaintext))
	return hex.EncodeToString(h.Sum(nil))
}

// Encrypt encrypts plaintext under the derived encryption key
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	return Encrypt(plaintext, c.encryptionKey)
}

// Decrypt reverses Encrypt
func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	return Decrypt(ciphertext, c.encryptionKey)
}

// Encrypt encrypts a string with AES-GCM using a fresh random nonce.
// The result is base64(nonce || ciphertext || tag).
func Encrypt(data string, key []byte) (string, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(data), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt decrypts a base64 string produced by Encrypt
func Decrypt(encryptedData string, key []byte) (string, error) {
	if len(encryptedData) == 0 {
		return "", fmt.Errorf("encrypted data is empty")
	}

	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	data, err := base64.StdEncoding.DecodeString(encryptedData)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}
	if len(data) < gcm.NonceSize()+gcm.Overhead() {
		return "", fmt.Errorf("encrypted data too short: %d bytes", len(data))
	}

	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}

	return string(plaintext), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if err := checkKeySize(key); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
