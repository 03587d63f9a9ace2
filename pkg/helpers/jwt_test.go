package helpers

import (
	"errors"
	"testing"
	"time"

	"github.com/shopease/auth-service/internal/domain/entity"
)

func testUser() *entity.User {
	return &entity.User{
		ID:    "11111111-2222-3333-4444-555555555555",
		Email: "alice@example.com",
		Role:  entity.RoleUser,
	}
}

func TestJWTGenerateAndParse(t *testing.T) {
	mgr := NewJWTManager("test-secret", time.Hour)

	token, exp, err := mgr.Generate(testUser())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if time.Until(exp) < 59*time.Minute {
		t.Fatalf("expiry too soon: %v", exp)
	}

	claims, err := mgr.Parse(token)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if claims.UserID != "11111111-2222-3333-4444-555555555555" {
		t.Fatalf("wrong uid claim: %q", claims.UserID)
	}
	if claims.Role != entity.RoleUser {
		t.Fatalf("wrong role claim: %q", claims.Role)
	}
	if claims.Email != "alice@example.com" {
		t.Fatalf("wrong email claim: %q", claims.Email)
	}
}

func TestJWTParseExpired(t *testing.T) {
	mgr := NewJWTManager("test-secret", -time.Minute)
	token, _, err := mgr.Generate(testUser())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	_, err = mgr.Parse(token)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestJWTParseWrongSecret(t *testing.T) {
	token, _, err := NewJWTManager("secret-a", time.Hour).Generate(testUser())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	_, err = NewJWTManager("secret-b", time.Hour).Parse(token)
	if !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestJWTParseGarbage(t *testing.T) {
	mgr := NewJWTManager("test-secret", time.Hour)
	for _, tok := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := mgr.Parse(tok); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("token %q: expected ErrTokenInvalid, got %v", tok, err)
		}
	}
}
