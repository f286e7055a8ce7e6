package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentwheels/internal/apierr"
)

type staticSource struct {
	identity *Identity
}

func (s *staticSource) Current() *Identity { return s.identity }

func TestGuardRequireAuthenticated(t *testing.T) {
	source := &staticSource{}
	guard := NewGuard(source)

	_, err := guard.RequireAuthenticated()
	require.ErrorIs(t, err, apierr.ErrUnauthenticated)

	source.identity = &Identity{Email: "rider@example.com", Role: RoleUser}
	identity, err := guard.RequireAuthenticated()
	require.NoError(t, err)
	assert.Equal(t, "rider@example.com", identity.Email)
}

func TestGuardRequireRole(t *testing.T) {
	source := &staticSource{}
	guard := NewGuard(source)

	_, err := guard.RequireRole(RoleAdmin)
	require.ErrorIs(t, err, apierr.ErrUnauthenticated)

	source.identity = &Identity{Email: "rider@example.com", Role: RoleUser}
	_, err = guard.RequireRole(RoleAdmin)
	require.ErrorIs(t, err, apierr.ErrAuthorizationDenied)

	source.identity.Role = RoleAdmin
	_, err = guard.RequireRole(RoleAdmin)
	require.NoError(t, err)
}
