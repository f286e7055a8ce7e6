package client

import (
	"context"
	"net/http"
	"time"
)

// Account is the identity-provider view of a signed-in principal. It never
// carries a role.
type Account struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoURL"`
	Provider    string `json:"provider"`
}

// Session is a bearer token issued by the identity provider.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Account   Account   `json:"account"`
}

// SignUpRequest registers an email/password account.
type SignUpRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName,omitempty"`
	PhotoURL    string `json:"photoURL,omitempty"`
}

// ProfileUpdate changes profile fields. Nil fields are left untouched.
type ProfileUpdate struct {
	DisplayName *string `json:"displayName,omitempty"`
	PhotoURL    *string `json:"photoURL,omitempty"`
}

func (c *Client) SignUp(ctx context.Context, input SignUpRequest) (Session, error) {
	var session Session
	err := c.do(ctx, request{method: http.MethodPost, path: "/identity/accounts", body: input}, &session)
	return session, err
}

func (c *Client) SignIn(ctx context.Context, email, password string) (Session, error) {
	var session Session
	body := map[string]string{"email": email, "password": password}
	err := c.do(ctx, request{method: http.MethodPost, path: "/identity/sessions", body: body}, &session)
	return session, err
}

// SignInFederated exchanges an ID token from provider for a session.
func (c *Client) SignInFederated(ctx context.Context, provider, idToken string) (Session, error) {
	var session Session
	body := map[string]string{"provider": provider, "idToken": idToken}
	err := c.do(ctx, request{method: http.MethodPost, path: "/identity/federated", body: body}, &session)
	return session, err
}

// Me returns the account behind token.
func (c *Client) Me(ctx context.Context, token string) (Account, error) {
	var account Account
	err := c.do(ctx, request{method: http.MethodGet, path: "/identity/me", token: token}, &account)
	return account, err
}

func (c *Client) UpdateProfile(ctx context.Context, token string, update ProfileUpdate) (Account, error) {
	var account Account
	err := c.do(ctx, request{method: http.MethodPatch, path: "/identity/me", token: token, body: update}, &account)
	return account, err
}

// SignOut revokes token on the server.
func (c *Client) SignOut(ctx context.Context, token string) error {
	return c.do(ctx, request{method: http.MethodDelete, path: "/identity/sessions/current", token: token}, nil)
}
