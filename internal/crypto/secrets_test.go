package crypto

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newStore(t *testing.T, secret string) *SecretStore {
	t.Helper()
	s, err := NewSecretStore(secret, []byte("0123456789abcdef"))
	if err != nil {
		t.Fatalf("NewSecretStore() error = %v", err)
	}
	return s
}

func TestSecretStore_RoundTrip(t *testing.T) {
	s := newStore(t, "hunter2")

	enc, err := s.Encrypt("transmission-password")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if !IsEncrypted(enc) || strings.Contains(enc, "transmission-password") {
		t.Fatalf("expected opaque encrypted value, got %q", enc)
	}

	again, _ := s.Encrypt("transmission-password")
	if again == enc {
		t.Error("expected a fresh nonce per encryption")
	}

	dec, err := s.Decrypt(enc)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if dec != "transmission-password" {
		t.Errorf("Decrypt() = %q", dec)
	}
}

func TestSecretStore_PlainAndEmpty(t *testing.T) {
	s := newStore(t, "hunter2")

	if enc, _ := s.Encrypt(""); enc != "" {
		t.Errorf("expected empty value to stay empty, got %q", enc)
	}
	if dec, _ := s.Decrypt("legacy-plain"); dec != "legacy-plain" {
		t.Errorf("expected plain value passthrough, got %q", dec)
	}

	enc, _ := s.Encrypt("x")
	if twice, _ := s.Encrypt(enc); twice != enc {
		t.Error("expected already encrypted value to be left alone")
	}
}

func TestSecretStore_WrongKey(t *testing.T) {
	enc, _ := newStore(t, "right").Encrypt("secret")

	if _, err := newStore(t, "wrong").Decrypt(enc); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("expected ErrDecryptionFailed, got %v", err)
	}
	if _, err := newStore(t, "right").Decrypt(EncryptedPrefix + "!!!"); !errors.Is(err, ErrInvalidCiphertext) {
		t.Errorf("expected ErrInvalidCiphertext, got %v", err)
	}
}

func TestNewSecretStore_EmptySecret(t *testing.T) {
	if _, err := NewSecretStore("", []byte("salt")); !errors.Is(err, ErrEmptySecret) {
		t.Errorf("expected ErrEmptySecret, got %v", err)
	}
}

func TestLoadOrCreateSalt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "secret.salt")

	first, err := LoadOrCreateSalt(path)
	if err != nil {
		t.Fatalf("LoadOrCreateSalt() error = %v", err)
	}
	if len(first) != saltLength {
		t.Fatalf("expected %d byte salt, got %d", saltLength, len(first))
	}

	second, err := LoadOrCreateSalt(path)
	if err != nil {
		t.Fatalf("LoadOrCreateSalt() error = %v", err)
	}
	if string(first) != string(second) {
		t.Error("expected the stored salt to be reused")
	}

	if err := os.WriteFile(path, []byte("garbage"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadOrCreateSalt(path); err == nil {
		t.Error("expected error for corrupt salt file")
	}
}
