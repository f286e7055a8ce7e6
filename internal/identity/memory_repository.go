package identity

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"rentwheels/internal/apierr"
)

type storedSession struct {
	session   Session
	tokenHash string
}

// InMemoryRepository keeps accounts and sessions in process memory.
type InMemoryRepository struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]Account
	sessions map[uuid.UUID]storedSession
}

// NewInMemoryRepository constructs an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		accounts: make(map[uuid.UUID]Account),
		sessions: make(map[uuid.UUID]storedSession),
	}
}

func (r *InMemoryRepository) FindAccountByEmail(_ context.Context, email string) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, account := range r.accounts {
		if account.Email == email {
			return &account, nil
		}
	}
	return nil, nil
}

func (r *InMemoryRepository) FindAccountBySubject(_ context.Context, provider, subject string) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, account := range r.accounts {
		if account.Provider == provider && account.ProviderSubject == subject {
			return &account, nil
		}
	}
	return nil, nil
}

func (r *InMemoryRepository) FindAccountByID(_ context.Context, id uuid.UUID) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.accounts[id]
	if !ok {
		return nil, nil
	}
	return &account, nil
}

func (r *InMemoryRepository) CreateAccount(_ context.Context, account Account) (Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.accounts {
		if existing.Email == account.Email {
			return Account{}, apierr.ErrEmailInUse
		}
	}
	r.accounts[account.ID] = account
	return account, nil
}

func (r *InMemoryRepository) UpdateAccount(_ context.Context, account Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[account.ID]; !ok {
		return apierr.ErrNotFound
	}
	r.accounts[account.ID] = account
	return nil
}

func (r *InMemoryRepository) CreateSession(_ context.Context, session Session, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[session.ID] = storedSession{session: session, tokenHash: tokenHash}
	return nil
}

func (r *InMemoryRepository) FindSessionByTokenHash(_ context.Context, tokenHash string) (*Session, *Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, stored := range r.sessions {
		if stored.tokenHash != tokenHash {
			continue
		}
		account, ok := r.accounts[stored.session.AccountID]
		if !ok {
			return nil, nil, nil
		}
		session := stored.session
		return &session, &account, nil
	}
	return nil, nil, nil
}

func (r *InMemoryRepository) DeleteSession(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, id)
	return nil
}

func (r *InMemoryRepository) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int64
	for id, stored := range r.sessions {
		if stored.session.ExpiresAt.Before(now) {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed, nil
}
