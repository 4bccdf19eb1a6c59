package common

import (
	"errors"
	"testing"
)

type roleSet map[string][20]byte

func (r roleSet) HasRole(role string, addr []byte) bool {
	member, ok := r[role]
	return ok && string(member[:]) == string(addr)
}

func TestRequireRole(t *testing.T) {
	admin := [20]byte{0xD0}
	view := roleSet{"ADMIN": admin}
	if err := RequireRole(view, "ADMIN", admin); err != nil {
		t.Fatalf("member rejected: %v", err)
	}
	if err := RequireRole(view, "ADMIN", [20]byte{0x01}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := RequireRole(nil, "ADMIN", admin); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("nil view must deny, got %v", err)
	}
	if err := RequireRole(view, "", admin); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("empty role must deny, got %v", err)
	}
}
