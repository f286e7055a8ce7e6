// Package session tracks who is signed in on this client. A Manager owns the
// current Identity and its bearer token, keeps the role in step with the
// backend user record and tells subscribers whenever the identity changes.
package session

import (
	"context"

	"rentwheels/internal/client"
)

// Role is the authorization role granted by the backend user record.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func parseRole(raw string) Role {
	switch Role(raw) {
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleUser
	}
}

// Identity is the signed-in principal as seen by this client.
type Identity struct {
	SubjectID   string
	Email       string
	DisplayName string
	AvatarURL   string
	Role        Role
}

// IsAdmin reports whether the identity holds the admin role.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// State is the position of a Manager in its sign-in lifecycle.
type State int

const (
	StateAnonymous State = iota
	StateAuthenticating
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "anonymous"
	}
}

// IdentityProvider issues and revokes bearer tokens.
type IdentityProvider interface {
	SignUp(ctx context.Context, input client.SignUpRequest) (client.Session, error)
	SignIn(ctx context.Context, email, password string) (client.Session, error)
	SignInFederated(ctx context.Context, provider, idToken string) (client.Session, error)
	Me(ctx context.Context, token string) (client.Account, error)
	UpdateProfile(ctx context.Context, token string, update client.ProfileUpdate) (client.Account, error)
	SignOut(ctx context.Context, token string) error
}

// Directory holds the backend user records that carry roles.
type Directory interface {
	SyncUser(ctx context.Context, token string, input client.UserSync) (client.User, error)
	GetUser(ctx context.Context, token, email string) (client.User, error)
}

// FederatedFlow runs an external consent flow and returns its ID token.
type FederatedFlow interface {
	IDToken(ctx context.Context) (string, error)
}
