package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

var (
	// ErrInvalidPassword is returned when an archive does not open with the
	// given password.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrInvalidArchive is returned when the sealed header is malformed.
	ErrInvalidArchive = errors.New("invalid archive format")
)

const (
	// PasswordMinLength is the minimum export password length.
	PasswordMinLength = 8
	// SaltLength is the length of the random salt for key derivation.
	SaltLength = 32
	// KeyIterations is the PBKDF2-SHA256 iteration count.
	KeyIterations = 100000

	archiveMagic     = "TASKARC"
	archiveVersion   = 1
	archiveAlgorithm = "AES-256-GCM"
)

// ArchiveHeader precedes the ciphertext of a sealed archive. The password is
// never stored.
type ArchiveHeader struct {
	Version   uint8
	Algorithm string
	Nonce     []byte
	Salt      []byte
}

// ValidatePassword checks the minimum password requirements.
func ValidatePassword(password string) error {
	if len(password) < PasswordMinLength {
		return fmt.Errorf("password must be at least %d characters", PasswordMinLength)
	}
	return nil
}

// IsSealedArchive reports whether data starts with the sealed archive magic.
func IsSealedArchive(data []byte) bool {
	return bytes.HasPrefix(data, []byte(archiveMagic))
}

// SealArchive encrypts data with a key derived from password.
func SealArchive(data []byte, password string) ([]byte, error) {
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	salt := make([]byte, SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	gcm, err := archiveGCM(password, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	header, err := serializeHeader(ArchiveHeader{
		Version:   archiveVersion,
		Algorithm: archiveAlgorithm,
		Nonce:     nonce,
		Salt:      salt,
	})
	if err != nil {
		return nil, err
	}
	return gcm.Seal(header, nonce, data, nil), nil
}

// OpenArchive decrypts data produced by SealArchive.
func OpenArchive(data []byte, password string) ([]byte, error) {
	header, payload, err := parseHeader(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}
	if header.Version != archiveVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidArchive, header.Version)
	}
	if header.Algorithm != archiveAlgorithm {
		return nil, fmt.Errorf("%w: unsupported algorithm %s", ErrInvalidArchive, header.Algorithm)
	}

	gcm, err := archiveGCM(password, header.Salt)
	if err != nil {
		return nil, err
	}
	if len(header.Nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("%w: bad nonce length", ErrInvalidArchive)
	}
	plain, err := gcm.Open(nil, header.Nonce, payload, nil)
	if err != nil {
		return nil, ErrInvalidPassword
	}
	return plain, nil
}

func archiveGCM(password string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, KeyIterations, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// =====================================================
// Header Serialization
// =====================================================

// serializeHeader writes magic, version, then length-prefixed algorithm,
// nonce and salt.
func serializeHeader(h ArchiveHeader) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(archiveMagic)
	buf.WriteByte(h.Version)
	for _, field := range [][]byte{[]byte(h.Algorithm), h.Nonce, h.Salt} {
		if len(field) > 255 {
			return nil, errors.New("header field too long")
		}
		buf.WriteByte(byte(len(field)))
		buf.Write(field)
	}
	return buf.Bytes(), nil
}

func parseHeader(data []byte) (ArchiveHeader, []byte, error) {
	var h ArchiveHeader
	if !IsSealedArchive(data) {
		return h, nil, errors.New("missing magic")
	}
	rest := data[len(archiveMagic):]
	if len(rest) < 1 {
		return h, nil, errors.New("missing version")
	}
	h.Version = rest[0]
	rest = rest[1:]

	fields := make([][]byte, 3)
	for i := range fields {
		if len(rest) < 1 {
			return h, nil, errors.New("truncated header")
		}
		n := int(rest[0])
		if len(rest) < 1+n {
			return h, nil, errors.New("truncated header")
		}
		fields[i] = rest[1 : 1+n]
		rest = rest[1+n:]
	}
	h.Algorithm = string(fields[0])
	h.Nonce = fields[1]
	h.Salt = fields[2]
	return h, rest, nil
}
