package security

import (
	"encoding/base64"
	"errors"
	"testing"
)

func newTestCipher(t *testing.T) *FieldCipher {
	t.Helper()
	c, err := NewFieldCipher("test-passphrase", "test-salt")
	if err != nil {
		t.Fatalf("NewFieldCipher: %v", err)
	}
	return c
}

func TestFieldCipherRoundTrip(t *testing.T) {
	c := newTestCipher(t)

	for _, plain := range []string{"reader@example.com", "", "ünïcödé ✓", "a"} {
		stored, err := c.Encrypt(plain)
		if err != nil {
			t.Fatalf("Encrypt(%q): %v", plain, err)
		}
		if stored == plain && plain != "" {
			t.Errorf("ciphertext equals plaintext for %q", plain)
		}
		got, err := c.Decrypt(stored)
		if err != nil {
			t.Fatalf("Decrypt(%q): %v", plain, err)
		}
		if got != plain {
			t.Errorf("round trip: got %q, want %q", got, plain)
		}
	}
}

func TestFieldCipherNonceUniqueness(t *testing.T) {
	c := newTestCipher(t)
	a, _ := c.Encrypt("same input")
	b, _ := c.Encrypt("same input")
	if a == b {
		t.Error("two encryptions of the same plaintext produced identical ciphertexts")
	}
}

func TestFieldCipherBlankKeyMaterial(t *testing.T) {
	tests := []struct {
		passphrase, salt string
	}{
		{"", "salt"},
		{"passphrase", ""},
		{"", ""},
	}
	for _, tc := range tests {
		if _, err := NewFieldCipher(tc.passphrase, tc.salt); !errors.Is(err, ErrBlankKeyMaterial) {
			t.Errorf("NewFieldCipher(%q, %q): expected ErrBlankKeyMaterial, got %v",
				tc.passphrase, tc.salt, err)
		}
	}
}

func TestFieldCipherRejectsGarbage(t *testing.T) {
	c := newTestCipher(t)

	tests := []struct {
		name   string
		stored string
		want   error
	}{
		{"not base64", "%%% definitely not base64 %%%", ErrInvalidCiphertext},
		{"too short", base64.StdEncoding.EncodeToString([]byte("short")), ErrInvalidCiphertext},
		{"foreign key", mustEncrypt(t, "other-pass", "other-salt", "secret"), ErrDecryptionFailed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := c.Decrypt(tc.stored); !errors.Is(err, tc.want) {
				t.Errorf("Decrypt: got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestFieldCipherTamperedCiphertext(t *testing.T) {
	c := newTestCipher(t)
	stored, err := c.Encrypt("reader@example.com")
	if err != nil {
		t.Fatal(err)
	}
	raw, _ := base64.StdEncoding.DecodeString(stored)
	raw[len(raw)-1] ^= 0xFF
	if _, err := c.Decrypt(base64.StdEncoding.EncodeToString(raw)); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("tampered ciphertext: got %v, want ErrDecryptionFailed", err)
	}
}

func mustEncrypt(t *testing.T, passphrase, salt, plain string) string {
	t.Helper()
	c, err := NewFieldCipher(passphrase, salt)
	if err != nil {
		t.Fatal(err)
	}
	stored, err := c.Encrypt(plain)
	if err != nil {
		t.Fatal(err)
	}
	return stored
}
