package security

import (
	"go.uber.org/zap"
)

// Converter sits on the read/write path of sensitive text columns:
// transparently encrypt on write, decrypt on read.
//
// The failure contract is asymmetric on purpose. Writes must not lose
// data, so encryption errors surface to the caller. Reads must not turn a
// single stale column into a failed request: decryption failures are
// expected under key rotation, so FromStored degrades that field to the
// empty value and logs a warning instead of returning an error.
type Converter struct {
	cipher *FieldCipher
	log    *zap.Logger
}

// NewConverter builds a converter around explicitly injected key material.
// There is no process-wide cipher singleton; whoever constructs the stores
// passes the converter in.
func NewConverter(cipher *FieldCipher, log *zap.Logger) *Converter {
	return &Converter{cipher: cipher, log: log}
}

// ToStored encrypts a plaintext attribute for persistence. Blank values
// pass through unchanged.
func (c *Converter) ToStored(plain string) (string, error) {
	if plain == "" {
		return plain, nil
	}
	return c.cipher.Encrypt(plain)
}

// FromStored decrypts a stored attribute. Blank values pass through
// unchanged. On any decryption failure the field degrades to "" so the
// surrounding read can still succeed.
func (c *Converter) FromStored(stored string) string {
	if stored == "" {
		return stored
	}
	plain, err := c.cipher.Decrypt(stored)
	if err != nil {
		c.log.Warn("Failed to decrypt stored field, returning empty value", zap.Error(err))
		return ""
	}
	return plain
}
