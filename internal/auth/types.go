package auth

import "errors"

// Role is an authorisation tier.
type Role string

const (
	// RoleViewer can read pairing and device state.
	RoleViewer Role = "viewer"

	// RoleOperator can also pair and command devices.
	RoleOperator Role = "operator"

	// RoleAdmin can also remove devices and reset pairing.
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := rolePermissions[r]
	return ok
}

// Domain errors.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrForbidden          = errors.New("insufficient permissions")
	ErrNoAPIKey           = errors.New("api key exchange disabled")
)
