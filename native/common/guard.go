package common

import "errors"

var ErrUnauthorized = errors.New("unauthorized")

// CapabilityView answers whether an address holds a named role.
type CapabilityView interface {
	HasRole(role string, addr []byte) bool
}

// RequireRole returns ErrUnauthorized unless addr holds role. A nil view
// denies every caller.
func RequireRole(v CapabilityView, role string, addr [20]byte) error {
	if v == nil || role == "" {
		return ErrUnauthorized
	}
	if !v.HasRole(role, addr[:]) {
		return ErrUnauthorized
	}
	return nil
}
