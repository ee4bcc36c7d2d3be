package enums

import "fmt"

// CartMode says who is authoritative for a cart: the device (guest) or the server (user).
type CartMode string

const (
	CartModeGuest CartMode = "guest"
	CartModeUser  CartMode = "user"
)

var validCartModes = []CartMode{
	CartModeGuest,
	CartModeUser,
}

// String implements fmt.Stringer.
func (m CartMode) String() string {
	return string(m)
}

// IsValid reports whether the value is a known CartMode.
func (m CartMode) IsValid() bool {
	for _, candidate := range validCartModes {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseCartMode converts raw input into a CartMode.
func ParseCartMode(value string) (CartMode, error) {
	for _, candidate := range validCartModes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid cart mode %q", value)
}
