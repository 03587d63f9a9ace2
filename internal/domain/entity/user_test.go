package entity

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestNormalizeDefault(t *testing.T) {
	t.Run("empty list stays empty", func(t *testing.T) {
		if got := NormalizeDefault(nil); len(got) != 0 {
			t.Fatalf("expected empty, got %v", got)
		}
	})

	t.Run("no flagged entry promotes the first", func(t *testing.T) {
		addrs := NormalizeDefault([]Address{{ID: "a"}, {ID: "b"}})
		if !addrs[0].IsDefault || addrs[1].IsDefault {
			t.Fatalf("expected only first default, got %+v", addrs)
		}
	})

	t.Run("multiple flagged entries keep the first", func(t *testing.T) {
		addrs := NormalizeDefault([]Address{
			{ID: "a", IsDefault: true},
			{ID: "b", IsDefault: true},
			{ID: "c", IsDefault: true},
		})
		defaults := 0
		for _, a := range addrs {
			if a.IsDefault {
				defaults++
			}
		}
		if defaults != 1 || !addrs[0].IsDefault {
			t.Fatalf("expected exactly first default, got %+v", addrs)
		}
	})

	t.Run("single flagged entry untouched", func(t *testing.T) {
		addrs := NormalizeDefault([]Address{{ID: "a"}, {ID: "b", IsDefault: true}})
		if addrs[0].IsDefault || !addrs[1].IsDefault {
			t.Fatalf("expected b default, got %+v", addrs)
		}
	})
}

func TestDefaultAddress(t *testing.T) {
	if _, ok := DefaultAddress(nil); ok {
		t.Fatal("empty list should have no default")
	}
	addr, ok := DefaultAddress([]Address{{ID: "a"}, {ID: "b", IsDefault: true}})
	if !ok || addr.ID != "b" {
		t.Fatalf("expected b, got %+v ok=%v", addr, ok)
	}
}

func TestPublicStripsSecrets(t *testing.T) {
	now := time.Now()
	u := &User{
		ID:               "u1",
		Username:         "alice",
		Email:            "alice@example.com",
		PasswordHash:     "$2a$12$secret",
		ResetToken:       "deadbeef",
		ResetTokenExpiry: &now,
	}
	b, err := json.Marshal(u.Public())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	out := string(b)
	if strings.Contains(out, "secret") || strings.Contains(out, "deadbeef") {
		t.Fatalf("sanitized payload leaks credentials: %s", out)
	}
	if u.Public().Addresses == nil {
		t.Fatal("nil addresses should serialize as empty list")
	}
}

func TestFullName(t *testing.T) {
	u := &User{Firstname: "Ada", Lastname: "Obi"}
	if got := u.FullName(); got != "Ada Obi" {
		t.Fatalf("FullName = %q", got)
	}
}

func TestRoleValid(t *testing.T) {
	for _, r := range []Role{RoleUser, RoleAdmin, RoleManager} {
		if !r.Valid() {
			t.Fatalf("role %q should be valid", r)
		}
	}
	if Role("root").Valid() {
		t.Fatal("unknown role accepted")
	}
}
