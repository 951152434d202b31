// Package crypto seals secrets kept in the local database, such as the sync
// bearer token. Uses AES-256-GCM with a key derived from the device id.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	apperrors "github.com/kimhsiao/taskin/backend/internal/errors"
)

var (
	// ErrInvalidCiphertext is returned when decryption fails.
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	// ErrInvalidKey is returned when the key is empty.
	ErrInvalidKey = errors.New("invalid key")
)

const defaultDeviceID = "taskin-default-device"

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) == 0 {
		return nil, ErrInvalidKey
	}
	derived := sha256.Sum256(key)
	block, err := aes.NewCipher(derived[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt seals plaintext and returns nonce||ciphertext in base64.
func Encrypt(plaintext, key []byte) (string, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(gcm.Seal(nonce, nonce, plaintext, nil)), nil
}

// Decrypt opens a value produced by Encrypt.
func Decrypt(ciphertext string, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, ErrInvalidCiphertext
	}
	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, ErrInvalidCiphertext
	}
	plaintext, err := gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return nil, ErrInvalidCiphertext
	}
	return plaintext, nil
}

// DeriveKey derives the sealing key for a device.
func DeriveKey(deviceID string) []byte {
	if deviceID == "" {
		deviceID = defaultDeviceID
	}
	hash := sha256.Sum256([]byte("taskin:" + deviceID))
	return hash[:]
}

// EncryptToken seals a bearer token for storage.
func EncryptToken(token, deviceID string) (string, error) {
	if token == "" {
		return "", apperrors.New(apperrors.ErrValidation, "token cannot be empty")
	}
	sealed, err := Encrypt([]byte(token), DeriveKey(deviceID))
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrCryptoFailed, "failed to seal token", err)
	}
	return sealed, nil
}

// DecryptToken opens a sealed token. An empty value means no token is set.
func DecryptToken(sealed, deviceID string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	plain, err := Decrypt(sealed, DeriveKey(deviceID))
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrCryptoFailed, "failed to open token", err)
	}
	return string(plain), nil
}
