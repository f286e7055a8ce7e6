package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
)

const googleIssuer = "https://accounts.google.com"

// GoogleVerifier checks Google ID tokens presented by clients that completed
// the consent flow themselves.
type GoogleVerifier struct {
	verifier       *oidc.IDTokenVerifier
	allowedDomains map[string]struct{}
	allowedEmails  map[string]struct{}
}

// NewGoogleVerifier discovers Google's signing keys and returns a verifier for
// tokens issued to clientID.
func NewGoogleVerifier(ctx context.Context, clientID string, allowedDomains, allowedEmails []string) (*GoogleVerifier, error) {
	provider, err := oidc.NewProvider(ctx, googleIssuer)
	if err != nil {
		return nil, fmt.Errorf("oidc provider: %w", err)
	}
	return newGoogleVerifier(provider.Verifier(&oidc.Config{ClientID: clientID}), allowedDomains, allowedEmails), nil
}

func newGoogleVerifier(verifier *oidc.IDTokenVerifier, allowedDomains, allowedEmails []string) *GoogleVerifier {
	return &GoogleVerifier{
		verifier:       verifier,
		allowedDomains: toSet(allowedDomains),
		allowedEmails:  toSet(allowedEmails),
	}
}

// Verify validates the raw ID token and returns its claims.
func (g *GoogleVerifier) Verify(ctx context.Context, rawIDToken string) (*GoogleClaims, error) {
	idToken, err := g.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("verify id_token: %w", err)
	}

	var claims GoogleClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("parse claims: %w", err)
	}
	return &claims, nil
}

// IsEmailAllowed checks if the given email is allowed based on domain/email allowlists.
func (g *GoogleVerifier) IsEmailAllowed(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))

	if _, ok := g.allowedEmails[email]; ok {
		return true
	}

	if _, domain, ok := strings.Cut(email, "@"); ok {
		if _, allowed := g.allowedDomains[domain]; allowed {
			return true
		}
	}

	// If both allowlists are empty, allow all (dev mode)
	return len(g.allowedDomains) == 0 && len(g.allowedEmails) == 0
}

// HasAllowlist returns true if any allowlist restrictions are configured.
func (g *GoogleVerifier) HasAllowlist() bool {
	return len(g.allowedDomains) > 0 || len(g.allowedEmails) > 0
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}
