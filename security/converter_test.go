package security

import (
	"testing"

	"go.uber.org/zap"
)

func newTestConverter(t *testing.T) *Converter {
	t.Helper()
	cipher, err := NewFieldCipher("test-passphrase", "test-salt")
	if err != nil {
		t.Fatal(err)
	}
	return NewConverter(cipher, zap.NewNop())
}

func TestConverterRoundTrip(t *testing.T) {
	c := newTestConverter(t)

	stored, err := c.ToStored("reader@example.com")
	if err != nil {
		t.Fatalf("ToStored: %v", err)
	}
	if stored == "reader@example.com" {
		t.Error("stored value is not encrypted")
	}
	if got := c.FromStored(stored); got != "reader@example.com" {
		t.Errorf("FromStored: got %q", got)
	}
}

func TestConverterBlankPassthrough(t *testing.T) {
	c := newTestConverter(t)

	stored, err := c.ToStored("")
	if err != nil || stored != "" {
		t.Errorf("ToStored(\"\") = (%q, %v), want (\"\", nil)", stored, err)
	}
	if got := c.FromStored(""); got != "" {
		t.Errorf("FromStored(\"\") = %q, want \"\"", got)
	}
}

// Stale ciphertexts (rotated keys, legacy plaintext rows) must degrade the
// field rather than fail the read.
func TestConverterUndecryptableDegradesToEmpty(t *testing.T) {
	c := newTestConverter(t)

	for _, stored := range []string{"plaintext leftover", "AAAA", "!!!"} {
		if got := c.FromStored(stored); got != "" {
			t.Errorf("FromStored(%q) = %q, want \"\"", stored, got)
		}
	}
}
