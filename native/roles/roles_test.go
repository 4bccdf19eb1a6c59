package roles

import "testing"

func TestSetAndRevokeRole(t *testing.T) {
	store := NewStore()
	a := []byte{0x02}
	b := []byte{0x01}
	if err := store.SetRole(RoleAcceptor, a); err != nil {
		t.Fatalf("set role: %v", err)
	}
	if err := store.SetRole(RoleAcceptor, b); err != nil {
		t.Fatalf("set role: %v", err)
	}
	if err := store.SetRole(RoleAcceptor, a); err != nil {
		t.Fatalf("duplicate set role: %v", err)
	}
	members := store.Members(RoleAcceptor)
	if len(members) != 2 || members[0][0] != 0x01 || members[1][0] != 0x02 {
		t.Fatalf("expected sorted members, got %x", members)
	}
	if !store.HasRole(RoleAcceptor, a) || store.HasRole(RoleLimitAdmin, a) {
		t.Fatalf("unexpected membership results")
	}
	store.RevokeRole(RoleAcceptor, a)
	if store.HasRole(RoleAcceptor, a) {
		t.Fatalf("expected role revoked")
	}
	store.RevokeRole(RoleAcceptor, []byte{0x09})
	if len(store.Members(RoleAcceptor)) != 1 {
		t.Fatalf("revoking unknown member changed the list")
	}
}

func TestSetRoleValidation(t *testing.T) {
	store := NewStore()
	if err := store.SetRole(" ", []byte{1}); err == nil {
		t.Fatalf("expected empty role to be rejected")
	}
	if err := store.SetRole(RoleAcceptor, nil); err == nil {
		t.Fatalf("expected empty address to be rejected")
	}
}

func TestWhitelistDefaultsRole(t *testing.T) {
	store := NewStore()
	addr := [20]byte{0xAA}
	wl := Whitelist{Store: store}
	if wl.IsWhitelisted(addr) {
		t.Fatalf("expected account to be ineligible")
	}
	_ = store.SetRole(RoleWhitelisted, addr[:])
	if !wl.IsWhitelisted(addr) {
		t.Fatalf("expected account to be eligible")
	}
}
