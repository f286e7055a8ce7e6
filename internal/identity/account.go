package identity

import (
	"time"

	"github.com/google/uuid"
)

// Sign-in providers recorded on an account.
const (
	ProviderPassword = "password"
	ProviderGoogle   = "google"
)

// Account is an identity-provider record. It never carries an authorization role.
type Account struct {
	ID              uuid.UUID `db:"id"`
	Email           string    `db:"email"`
	PasswordHash    string    `db:"password_hash"`
	DisplayName     string    `db:"display_name"`
	AvatarURL       string    `db:"avatar_url"`
	Provider        string    `db:"provider"`
	ProviderSubject string    `db:"provider_subject"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
	LastLoginAt     time.Time `db:"last_login_at"`
}

// Session is a stored sign-in. Only the hash of its token is persisted.
type Session struct {
	ID        uuid.UUID `db:"id"`
	AccountID uuid.UUID `db:"account_id"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
	UserAgent string    `db:"user_agent"`
	IPAddress string    `db:"ip_address"`
}

// Issued is the result of a successful sign-in.
type Issued struct {
	Token     string
	ExpiresAt time.Time
	Account   Account
}

// SignUpInput captures a new email/password registration.
type SignUpInput struct {
	Email       string
	Password    string
	DisplayName string
	AvatarURL   string
}

// ProfileInput captures profile changes. Nil fields are left untouched.
type ProfileInput struct {
	DisplayName *string
	AvatarURL   *string
}

// GoogleClaims contains the relevant claims from a Google ID token.
type GoogleClaims struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}
