package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the persistence operations for accounts and sessions.
// Find methods return nil without error when nothing matches.
type Repository interface {
	FindAccountByEmail(ctx context.Context, email string) (*Account, error)
	FindAccountBySubject(ctx context.Context, provider, subject string) (*Account, error)
	FindAccountByID(ctx context.Context, id uuid.UUID) (*Account, error)
	// CreateAccount returns apierr.ErrEmailInUse when the email is taken.
	CreateAccount(ctx context.Context, account Account) (Account, error)
	UpdateAccount(ctx context.Context, account Account) error

	CreateSession(ctx context.Context, session Session, tokenHash string) error
	FindSessionByTokenHash(ctx context.Context, tokenHash string) (*Session, *Account, error)
	DeleteSession(ctx context.Context, id uuid.UUID) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}
