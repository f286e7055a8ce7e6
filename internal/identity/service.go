package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"rentwheels/internal/apierr"
	"rentwheels/internal/credentials"
)

// FederatedVerifier validates ID tokens from an external identity provider.
type FederatedVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*GoogleClaims, error)
	IsEmailAllowed(email string) bool
}

// KeyedLimiter throttles events per key.
type KeyedLimiter interface {
	Allow(key string) bool
}

// Service provides the identity-provider operations: accounts, credentials
// and sessions.
type Service struct {
	repo         Repository
	signer       tokenSigner
	google       FederatedVerifier
	limiter      KeyedLimiter
	passwordCost int
	logger       *slog.Logger
	now          func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithGoogle enables federated Google sign-in.
func WithGoogle(verifier FederatedVerifier) Option {
	return func(s *Service) { s.google = verifier }
}

// WithSignInLimiter throttles password sign-in attempts per email.
func WithSignInLimiter(limiter KeyedLimiter) Option {
	return func(s *Service) { s.limiter = limiter }
}

// WithPasswordCost overrides the bcrypt cost.
func WithPasswordCost(cost int) Option {
	return func(s *Service) { s.passwordCost = cost }
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a new identity Service. Tokens are signed with secret and
// expire after sessionTTL.
func NewService(repo Repository, secret string, sessionTTL time.Duration, opts ...Option) *Service {
	if sessionTTL == 0 {
		sessionTTL = 12 * time.Hour
	}
	s := &Service{
		repo:         repo,
		signer:       tokenSigner{secret: []byte(secret), ttl: sessionTTL},
		passwordCost: bcrypt.DefaultCost,
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GoogleEnabled reports whether federated sign-in is configured.
func (s *Service) GoogleEnabled() bool {
	return s.google != nil
}

// SignUp registers an email/password account.
func (s *Service) SignUp(ctx context.Context, input SignUpInput) (Account, error) {
	email := credentials.NormalizeEmail(input.Email)
	if err := credentials.ValidateEmail(email); err != nil {
		return Account{}, err
	}
	if err := credentials.ValidatePassword(input.Password); err != nil {
		return Account{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.passwordCost)
	if err != nil {
		return Account{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	account := Account{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: string(hash),
		DisplayName:  strings.TrimSpace(input.DisplayName),
		AvatarURL:    strings.TrimSpace(input.AvatarURL),
		Provider:     ProviderPassword,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastLoginAt:  now,
	}

	created, err := s.repo.CreateAccount(ctx, account)
	if err != nil {
		if errors.Is(err, apierr.ErrEmailInUse) {
			return Account{}, err
		}
		return Account{}, fmt.Errorf("create account: %w", err)
	}
	return created, nil
}

// SignIn checks an email/password pair.
func (s *Service) SignIn(ctx context.Context, email, password string) (Account, error) {
	email = credentials.NormalizeEmail(email)
	if err := credentials.ValidateEmail(email); err != nil {
		return Account{}, err
	}
	if s.limiter != nil && !s.limiter.Allow(email) {
		return Account{}, apierr.ErrRateLimited
	}

	account, err := s.repo.FindAccountByEmail(ctx, email)
	if err != nil {
		return Account{}, fmt.Errorf("find account: %w", err)
	}
	if account == nil {
		return Account{}, apierr.ErrNotFound
	}
	if account.PasswordHash == "" {
		return Account{}, apierr.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return Account{}, apierr.ErrInvalidCredentials
	}

	account.LastLoginAt = s.now().UTC()
	if err := s.repo.UpdateAccount(ctx, *account); err != nil {
		return Account{}, fmt.Errorf("update login: %w", err)
	}
	return *account, nil
}

// SignInWithGoogle verifies a Google ID token and finds or creates the
// matching account. A password account with the same verified email is linked
// to the Google subject.
func (s *Service) SignInWithGoogle(ctx context.Context, rawIDToken string) (Account, error) {
	if s.google == nil {
		return Account{}, fmt.Errorf("google sign-in is not configured: %w", apierr.ErrProvider)
	}
	if strings.TrimSpace(rawIDToken) == "" {
		return Account{}, apierr.Validation("idToken is required")
	}

	claims, err := s.google.Verify(ctx, rawIDToken)
	if err != nil {
		s.logger.Warn("google token rejected", "error", err)
		return Account{}, apierr.ErrInvalidCredentials
	}
	if !claims.EmailVerified {
		return Account{}, apierr.ErrInvalidCredentials
	}
	email := credentials.NormalizeEmail(claims.Email)
	if !s.google.IsEmailAllowed(email) {
		return Account{}, apierr.ErrAuthorizationDenied
	}

	now := s.now().UTC()
	existing, err := s.repo.FindAccountBySubject(ctx, ProviderGoogle, claims.Sub)
	if err != nil {
		return Account{}, fmt.Errorf("find account: %w", err)
	}
	if existing == nil {
		existing, err = s.repo.FindAccountByEmail(ctx, email)
		if err != nil {
			return Account{}, fmt.Errorf("find account: %w", err)
		}
		if existing != nil {
			existing.Provider = ProviderGoogle
			existing.ProviderSubject = claims.Sub
		}
	}

	if existing != nil {
		// Refresh profile data from the provider
		if claims.Name != "" {
			existing.DisplayName = claims.Name
		}
		if claims.Picture != "" {
			existing.AvatarURL = claims.Picture
		}
		existing.UpdatedAt = now
		existing.LastLoginAt = now
		if err := s.repo.UpdateAccount(ctx, *existing); err != nil {
			return Account{}, fmt.Errorf("update account: %w", err)
		}
		return *existing, nil
	}

	created, err := s.repo.CreateAccount(ctx, Account{
		ID:              uuid.New(),
		Email:           email,
		DisplayName:     claims.Name,
		AvatarURL:       claims.Picture,
		Provider:        ProviderGoogle,
		ProviderSubject: claims.Sub,
		CreatedAt:       now,
		UpdatedAt:       now,
		LastLoginAt:     now,
	})
	if err != nil {
		return Account{}, fmt.Errorf("create account: %w", err)
	}
	return created, nil
}

// Account returns the account with the given ID.
func (s *Service) Account(ctx context.Context, id uuid.UUID) (Account, error) {
	account, err := s.repo.FindAccountByID(ctx, id)
	if err != nil {
		return Account{}, fmt.Errorf("find account: %w", err)
	}
	if account == nil {
		return Account{}, apierr.ErrNotFound
	}
	return *account, nil
}

// UpdateProfile changes the display name and avatar of an account.
func (s *Service) UpdateProfile(ctx context.Context, id uuid.UUID, input ProfileInput) (Account, error) {
	account, err := s.Account(ctx, id)
	if err != nil {
		return Account{}, err
	}

	if input.DisplayName != nil {
		account.DisplayName = strings.TrimSpace(*input.DisplayName)
	}
	if input.AvatarURL != nil {
		account.AvatarURL = strings.TrimSpace(*input.AvatarURL)
	}
	account.UpdatedAt = s.now().UTC()

	if err := s.repo.UpdateAccount(ctx, account); err != nil {
		return Account{}, fmt.Errorf("update account: %w", err)
	}
	return account, nil
}

// IssueToken creates a session for account and returns its signed token.
func (s *Service) IssueToken(ctx context.Context, account Account, userAgent, ipAddress string) (Issued, error) {
	now := s.now().UTC()
	sessionID := uuid.New()

	token, expiresAt, err := s.signer.sign(account, sessionID, now)
	if err != nil {
		return Issued{}, err
	}

	session := Session{
		ID:        sessionID,
		AccountID: account.ID,
		ExpiresAt: expiresAt,
		CreatedAt: now,
		UserAgent: truncateString(userAgent, 512),
		IPAddress: truncateString(ipAddress, 45),
	}
	if err := s.repo.CreateSession(ctx, session, hashToken(token)); err != nil {
		return Issued{}, fmt.Errorf("create session: %w", err)
	}

	return Issued{Token: token, ExpiresAt: expiresAt, Account: account}, nil
}

// Authenticate validates token and returns its account. Tokens with a bad
// signature, past expiry, or no stored session fail with apierr.ErrUnauthenticated.
func (s *Service) Authenticate(ctx context.Context, token string) (Account, error) {
	if token == "" {
		return Account{}, apierr.ErrUnauthenticated
	}

	claims, err := s.signer.parse(token)
	if err != nil {
		return Account{}, apierr.ErrUnauthenticated
	}

	session, account, err := s.repo.FindSessionByTokenHash(ctx, hashToken(token))
	if err != nil {
		return Account{}, fmt.Errorf("find session: %w", err)
	}
	if session == nil || account == nil || session.ID.String() != claims.SessionID {
		return Account{}, apierr.ErrUnauthenticated
	}

	if s.now().After(session.ExpiresAt) {
		if err := s.repo.DeleteSession(ctx, session.ID); err != nil {
			s.logger.Warn("failed to delete expired session", "session_id", session.ID, "error", err)
		}
		return Account{}, apierr.ErrUnauthenticated
	}

	return *account, nil
}

// SignOut revokes the session behind token. Unknown tokens are ignored.
func (s *Service) SignOut(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	session, _, err := s.repo.FindSessionByTokenHash(ctx, hashToken(token))
	if err != nil {
		return fmt.Errorf("find session: %w", err)
	}
	if session == nil {
		return nil
	}
	return s.repo.DeleteSession(ctx, session.ID)
}

// CleanupExpiredSessions removes all expired sessions.
func (s *Service) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpiredSessions(ctx, s.now())
}
