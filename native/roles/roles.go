// Package roles keeps role membership for the capability checks performed by
// the settlement engine.
package roles

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"sync"
)

const (
	// RoleAcceptor may accept pending trade requests.
	RoleAcceptor = "ROLE_RFQ_ACCEPTOR"
	// RoleLimitAdmin may replace or temporarily adjust the volume cap.
	RoleLimitAdmin = "ROLE_RFQ_LIMIT_ADMIN"
	// RoleWhitelisted marks accounts eligible to post trade requests.
	RoleWhitelisted = "ROLE_RFQ_WHITELISTED"
)

// Store tracks the addresses assigned to each role. Membership lists stay
// sorted so snapshots are deterministic.
type Store struct {
	mu      sync.RWMutex
	members map[string][][]byte
}

// NewStore returns an empty role store.
func NewStore() *Store {
	return &Store{members: make(map[string][][]byte)}
}

// SetRole associates an address with the specified role. Duplicate
// assignments are ignored.
func (s *Store) SetRole(role string, addr []byte) error {
	trimmed := strings.TrimSpace(role)
	if trimmed == "" {
		return fmt.Errorf("role must not be empty")
	}
	if len(addr) == 0 {
		return fmt.Errorf("address must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.members == nil {
		s.members = make(map[string][][]byte)
	}
	list := s.members[trimmed]
	idx := sort.Search(len(list), func(i int) bool { return bytes.Compare(list[i], addr) >= 0 })
	if idx < len(list) && bytes.Equal(list[idx], addr) {
		return nil
	}
	list = append(list, nil)
	copy(list[idx+1:], list[idx:])
	list[idx] = append([]byte(nil), addr...)
	s.members[trimmed] = list
	return nil
}

// RevokeRole removes the address from the role. Unknown members are ignored.
func (s *Store) RevokeRole(role string, addr []byte) {
	trimmed := strings.TrimSpace(role)
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.members[trimmed]
	idx := sort.Search(len(list), func(i int) bool { return bytes.Compare(list[i], addr) >= 0 })
	if idx >= len(list) || !bytes.Equal(list[idx], addr) {
		return
	}
	s.members[trimmed] = append(list[:idx], list[idx+1:]...)
}

// HasRole reports whether the provided address is associated with the
// specified role.
func (s *Store) HasRole(role string, addr []byte) bool {
	if s == nil || len(addr) == 0 {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.members[strings.TrimSpace(role)]
	idx := sort.Search(len(list), func(i int) bool { return bytes.Compare(list[i], addr) >= 0 })
	return idx < len(list) && bytes.Equal(list[idx], addr)
}

// Members returns a copy of the addresses assigned to role.
func (s *Store) Members(role string) [][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.members[strings.TrimSpace(role)]
	out := make([][]byte, 0, len(list))
	for _, member := range list {
		out = append(out, append([]byte(nil), member...))
	}
	return out
}

// Whitelist exposes role membership as the eligibility predicate used when
// requests are created.
type Whitelist struct {
	Store *Store
	Role  string
}

// IsWhitelisted reports whether addr holds the whitelist role.
func (w Whitelist) IsWhitelisted(addr [20]byte) bool {
	role := w.Role
	if role == "" {
		role = RoleWhitelisted
	}
	return w.Store.HasRole(role, addr[:])
}
