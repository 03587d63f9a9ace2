package helpers

import (
	"crypto/rand"
	"encoding/hex"
)

// NewResetToken generates an opaque password-reset token with 256 bits of
// entropy, hex encoded (64 characters).
func NewResetToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
