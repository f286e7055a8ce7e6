package session

import "rentwheels/internal/apierr"

// IdentitySource exposes the current identity.
type IdentitySource interface {
	Current() *Identity
}

// Guard gates privileged actions on the current identity. It holds no state
// of its own, so each check sees the latest identity.
type Guard struct {
	source IdentitySource
}

// NewGuard creates a Guard reading from source.
func NewGuard(source IdentitySource) *Guard {
	return &Guard{source: source}
}

// RequireAuthenticated returns the identity or apierr.ErrUnauthenticated.
func (g *Guard) RequireAuthenticated() (*Identity, error) {
	identity := g.source.Current()
	if identity == nil {
		return nil, apierr.ErrUnauthenticated
	}
	return identity, nil
}

// RequireRole additionally requires role, failing with apierr.ErrAuthorizationDenied.
func (g *Guard) RequireRole(role Role) (*Identity, error) {
	identity, err := g.RequireAuthenticated()
	if err != nil {
		return nil, err
	}
	if identity.Role != role {
		return nil, apierr.ErrAuthorizationDenied
	}
	return identity, nil
}
