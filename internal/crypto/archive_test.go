package crypto

import (
	"bytes"
	"errors"
	"testing"
)

// =====================================================
// Archive Sealing Tests
// =====================================================

func TestSealOpenArchive_roundtrip(t *testing.T) {
	data := []byte(`{"tasks":[]}`)
	sealed, err := SealArchive(data, "correct horse")
	if err != nil {
		t.Fatalf("SealArchive() error = %v", err)
	}
	if !IsSealedArchive(sealed) {
		t.Error("IsSealedArchive() = false, want true")
	}
	if bytes.Contains(sealed, data) {
		t.Error("sealed archive contains the plaintext")
	}

	opened, err := OpenArchive(sealed, "correct horse")
	if err != nil {
		t.Fatalf("OpenArchive() error = %v", err)
	}
	if !bytes.Equal(opened, data) {
		t.Errorf("OpenArchive() = %q, want %q", opened, data)
	}
}

func TestSealArchive_uniqueSaltAndNonce(t *testing.T) {
	a, _ := SealArchive([]byte("same"), "password1")
	b, _ := SealArchive([]byte("same"), "password1")
	if bytes.Equal(a, b) {
		t.Error("two seals of the same data are identical")
	}
}

func TestSealArchive_shortPassword(t *testing.T) {
	if _, err := SealArchive([]byte("x"), "short"); err == nil {
		t.Error("SealArchive() should reject a short password")
	}
}

func TestOpenArchive_errors(t *testing.T) {
	sealed, err := SealArchive([]byte("payload"), "password1")
	if err != nil {
		t.Fatalf("SealArchive() error = %v", err)
	}
	tampered := append([]byte(nil), sealed...)
	tampered[len(tampered)-1] ^= 0xff

	tests := []struct {
		name     string
		data     []byte
		password string
		want     error
	}{
		{"wrong password", sealed, "password2", ErrInvalidPassword},
		{"tampered payload", tampered, "password1", ErrInvalidPassword},
		{"no magic", []byte("plain gzip bytes"), "password1", ErrInvalidArchive},
		{"truncated header", sealed[:10], "password1", ErrInvalidArchive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := OpenArchive(tt.data, tt.password)
			if !errors.Is(err, tt.want) {
				t.Errorf("OpenArchive() error = %v, want %v", err, tt.want)
			}
		})
	}
}
