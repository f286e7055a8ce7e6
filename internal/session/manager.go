package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"rentwheels/internal/apierr"
	"rentwheels/internal/client"
	"rentwheels/internal/credentials"
)

// ProviderGoogle names the only supported federated provider.
const ProviderGoogle = "google"

// Manager is the single owner of the client-side identity. Every mutation
// goes through its operations; readers get copies.
type Manager struct {
	provider  IdentityProvider
	directory Directory
	federated FederatedFlow
	store     TokenStore
	logger    *slog.Logger
	now       func() time.Time

	mu         sync.Mutex
	state      State
	identity   *Identity
	token      string
	expiresAt  time.Time
	generation uint64
	observers  map[int]func(*Identity)
	nextID     int
}

// Option configures a Manager.
type Option func(*Manager)

// WithFederatedFlow enables SignInWithFederatedProvider.
func WithFederatedFlow(flow FederatedFlow) Option {
	return func(m *Manager) {
		m.federated = flow
	}
}

// WithTokenStore persists the token across runs.
func WithTokenStore(store TokenStore) Option {
	return func(m *Manager) {
		m.store = store
	}
}

// WithLogger sets the logger used for best-effort failures.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates an anonymous Manager.
func NewManager(provider IdentityProvider, directory Directory, opts ...Option) *Manager {
	m := &Manager{
		provider:  provider,
		directory: directory,
		logger:    slog.Default(),
		now:       time.Now,
		observers: make(map[int]func(*Identity)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Current returns a copy of the signed-in identity, or nil when anonymous.
func (m *Manager) Current() *Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyIdentity(m.identity)
}

// State returns the lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Token returns the bearer token of the current identity, or "" when anonymous.
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.identity == nil {
		return ""
	}
	return m.token
}

// Subscribe registers fn to run after every identity change. fn receives a
// copy of the new identity, nil after sign-out. The returned function removes
// the subscription.
func (m *Manager) Subscribe(fn func(*Identity)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.observers[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.observers, id)
			m.mu.Unlock()
		})
	}
}

// SignUp validates the credentials locally, creates the account and signs it in.
func (m *Manager) SignUp(ctx context.Context, email, password, displayName, avatarURL string) (*Identity, error) {
	email = credentials.NormalizeEmail(email)
	if err := credentials.ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := credentials.ValidatePassword(password); err != nil {
		return nil, err
	}

	return m.authenticate(ctx, func(ctx context.Context) (client.Session, error) {
		return m.provider.SignUp(ctx, client.SignUpRequest{
			Email:       email,
			Password:    password,
			DisplayName: strings.TrimSpace(displayName),
			PhotoURL:    strings.TrimSpace(avatarURL),
		})
	})
}

// SignIn signs in with an email and password.
func (m *Manager) SignIn(ctx context.Context, email, password string) (*Identity, error) {
	email = credentials.NormalizeEmail(email)
	if err := credentials.ValidateEmail(email); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, apierr.Validation("password is required")
	}

	return m.authenticate(ctx, func(ctx context.Context) (client.Session, error) {
		return m.provider.SignIn(ctx, email, password)
	})
}

// SignInWithFederatedProvider runs the Google consent flow and signs in with
// the resulting ID token.
func (m *Manager) SignInWithFederatedProvider(ctx context.Context) (*Identity, error) {
	if m.federated == nil {
		return nil, fmt.Errorf("%w: federated sign-in is not configured", apierr.ErrProvider)
	}

	return m.authenticate(ctx, func(ctx context.Context) (client.Session, error) {
		idToken, err := m.federated.IDToken(ctx)
		if err != nil {
			return client.Session{}, err
		}
		return m.provider.SignInFederated(ctx, ProviderGoogle, idToken)
	})
}

// SignOut clears the local identity and token. It always succeeds; revoking
// the token on the provider is best effort.
func (m *Manager) SignOut(ctx context.Context) error {
	m.mu.Lock()
	token := m.token
	hadIdentity := m.identity != nil
	m.identity = nil
	m.token = ""
	m.expiresAt = time.Time{}
	m.state = StateAnonymous
	m.generation++
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.Clear(); err != nil {
			m.logger.Warn("failed to clear stored session", "error", err)
		}
	}
	if token != "" {
		if err := m.provider.SignOut(ctx, token); err != nil {
			m.logger.Warn("failed to revoke session on provider", "error", err)
		}
	}
	if hadIdentity {
		m.notify(nil)
	}
	return nil
}

// UpdateProfile changes display name and avatar, reloads the account and
// re-syncs the role. Nil arguments leave the field unchanged.
func (m *Manager) UpdateProfile(ctx context.Context, displayName, avatarURL *string) (*Identity, error) {
	token, gen, err := m.beginAuthenticated()
	if err != nil {
		return nil, err
	}

	if _, err := m.provider.UpdateProfile(ctx, token, client.ProfileUpdate{DisplayName: displayName, PhotoURL: avatarURL}); err != nil {
		m.restore(gen)
		return nil, err
	}
	return m.reload(ctx, token, gen)
}

// Refresh reloads the account from the provider and re-syncs the role.
func (m *Manager) Refresh(ctx context.Context) (*Identity, error) {
	token, gen, err := m.beginAuthenticated()
	if err != nil {
		return nil, err
	}
	return m.reload(ctx, token, gen)
}

// Restore rebuilds the session from the token store. A missing, expired or
// rejected token leaves the Manager anonymous and returns a nil identity.
func (m *Manager) Restore(ctx context.Context) (*Identity, error) {
	if m.store == nil {
		return nil, nil
	}
	stored, err := m.store.Load()
	if err != nil {
		return nil, err
	}
	if stored.Token == "" {
		return nil, nil
	}
	if stored.Expired(m.now()) {
		m.clearStore()
		return nil, nil
	}

	gen, err := m.begin()
	if err != nil {
		return nil, err
	}

	account, err := m.provider.Me(ctx, stored.Token)
	if err != nil {
		m.restore(gen)
		if errors.Is(err, apierr.ErrUnauthenticated) {
			m.clearStore()
			return nil, nil
		}
		return nil, err
	}

	role := m.syncWithBackend(ctx, stored.Token, account)
	return m.commit(gen, client.Session{Token: stored.Token, ExpiresAt: stored.ExpiresAt, Account: account}, role)
}

// authenticate runs signIn inside the Authenticating state and establishes
// the resulting session.
func (m *Manager) authenticate(ctx context.Context, signIn func(context.Context) (client.Session, error)) (*Identity, error) {
	gen, err := m.begin()
	if err != nil {
		return nil, err
	}

	session, err := signIn(ctx)
	if err != nil {
		m.restore(gen)
		return nil, err
	}

	role := m.syncWithBackend(ctx, session.Token, session.Account)
	identity, err := m.commit(gen, session, role)
	if err != nil {
		// Superseded by SignOut; the freshly issued token must not outlive it.
		if revokeErr := m.provider.SignOut(context.WithoutCancel(ctx), session.Token); revokeErr != nil {
			m.logger.Warn("failed to revoke superseded session", "error", revokeErr)
		}
		return nil, err
	}

	if m.store != nil {
		if err := m.store.Save(StoredToken{Token: session.Token, Email: identity.Email, ExpiresAt: session.ExpiresAt}); err != nil {
			m.logger.Warn("failed to persist session", "error", err)
		}
	}
	return identity, nil
}

func (m *Manager) reload(ctx context.Context, token string, gen uint64) (*Identity, error) {
	account, err := m.provider.Me(ctx, token)
	if err != nil {
		m.restore(gen)
		if errors.Is(err, apierr.ErrUnauthenticated) {
			_ = m.SignOut(ctx)
		}
		return nil, err
	}

	m.mu.Lock()
	expiresAt := m.expiresAt
	m.mu.Unlock()

	role := m.syncWithBackend(ctx, token, account)
	return m.commit(gen, client.Session{Token: token, ExpiresAt: expiresAt, Account: account}, role)
}

// syncWithBackend upserts the user record and reads its authoritative role.
// Any failure degrades to RoleUser.
func (m *Manager) syncWithBackend(ctx context.Context, token string, account client.Account) Role {
	email := credentials.NormalizeEmail(account.Email)
	if _, err := m.directory.SyncUser(ctx, token, client.UserSync{
		Email:    email,
		Name:     account.DisplayName,
		PhotoURL: account.PhotoURL,
	}); err != nil {
		m.logger.Warn("user sync failed; using default role", "email", email, "error", err)
		return RoleUser
	}

	user, err := m.directory.GetUser(ctx, token, email)
	if err != nil {
		m.logger.Warn("role lookup failed; using default role", "email", email, "error", err)
		return RoleUser
	}
	return parseRole(user.Role)
}

// begin moves the Manager into Authenticating and returns the generation the
// operation belongs to.
func (m *Manager) begin() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateAuthenticating {
		return 0, apierr.ErrAuthInProgress
	}
	m.state = StateAuthenticating
	m.generation++
	return m.generation, nil
}

func (m *Manager) beginAuthenticated() (string, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateAuthenticating {
		return "", 0, apierr.ErrAuthInProgress
	}
	if m.identity == nil {
		return "", 0, apierr.ErrUnauthenticated
	}
	m.state = StateAuthenticating
	m.generation++
	return m.token, m.generation, nil
}

// restore leaves Authenticating after a failed operation, unless a later
// operation has superseded it.
func (m *Manager) restore(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != gen {
		return
	}
	if m.identity != nil {
		m.state = StateAuthenticated
	} else {
		m.state = StateAnonymous
	}
}

// commit installs the new identity when gen is still current. A SignOut that
// ran in the meantime wins and the result is discarded.
func (m *Manager) commit(gen uint64, session client.Session, role Role) (*Identity, error) {
	identity := &Identity{
		SubjectID:   session.Account.UID,
		Email:       credentials.NormalizeEmail(session.Account.Email),
		DisplayName: session.Account.DisplayName,
		AvatarURL:   session.Account.PhotoURL,
		Role:        role,
	}

	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		return nil, apierr.ErrUnauthenticated
	}
	m.identity = identity
	m.token = session.Token
	m.expiresAt = session.ExpiresAt
	m.state = StateAuthenticated
	m.mu.Unlock()

	m.notify(identity)
	return copyIdentity(identity), nil
}

func (m *Manager) clearStore() {
	if err := m.store.Clear(); err != nil {
		m.logger.Warn("failed to clear stored session", "error", err)
	}
}

func (m *Manager) notify(identity *Identity) {
	m.mu.Lock()
	observers := make([]func(*Identity), 0, len(m.observers))
	for _, fn := range m.observers {
		observers = append(observers, fn)
	}
	m.mu.Unlock()

	for _, fn := range observers {
		fn(copyIdentity(identity))
	}
}

func copyIdentity(identity *Identity) *Identity {
	if identity == nil {
		return nil
	}
	c := *identity
	return &c
}
