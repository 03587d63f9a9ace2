package helpers

import (
	"encoding/hex"
	"testing"
)

func TestNewResetToken(t *testing.T) {
	tok, err := NewResetToken()
	if err != nil {
		t.Fatalf("NewResetToken failed: %v", err)
	}
	if len(tok) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(tok))
	}
	if _, err := hex.DecodeString(tok); err != nil {
		t.Fatalf("token is not hex: %v", err)
	}

	other, err := NewResetToken()
	if err != nil {
		t.Fatalf("NewResetToken failed: %v", err)
	}
	if tok == other {
		t.Fatal("two tokens are identical")
	}
}
