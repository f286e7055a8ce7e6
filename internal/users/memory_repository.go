package users

import (
	"context"
	"sync"
	"time"

	"rentwheels/internal/apierr"
)

// InMemoryRepository stores users in an in-process map, ideal for local development or tests.
type InMemoryRepository struct {
	mu    sync.RWMutex
	data  map[string]User
	order []string
}

// NewInMemoryRepository constructs an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{data: make(map[string]User)}
}

// Upsert creates or refreshes the record for user.Email.
func (r *InMemoryRepository) Upsert(_ context.Context, user User) (User, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.data[user.Email]
	if !ok {
		r.data[user.Email] = user
		r.order = append(r.order, user.Email)
		return user, true, nil
	}

	existing.Name = user.Name
	existing.PhotoURL = user.PhotoURL
	existing.UpdatedAt = user.UpdatedAt
	r.data[user.Email] = existing
	return existing, false, nil
}

// GetByEmail returns the user stored for email.
func (r *InMemoryRepository) GetByEmail(_ context.Context, email string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.data[email]
	if !ok {
		return User{}, apierr.ErrNotFound
	}
	return user, nil
}

// List returns users in creation order.
func (r *InMemoryRepository) List(_ context.Context) ([]User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]User, 0, len(r.order))
	for _, email := range r.order {
		out = append(out, r.data[email])
	}
	return out, nil
}

// UpdateRole changes the role of an existing user.
func (r *InMemoryRepository) UpdateRole(_ context.Context, email string, role Role) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.data[email]
	if !ok {
		return User{}, apierr.ErrNotFound
	}
	user.Role = role
	user.UpdatedAt = time.Now().UTC()
	r.data[email] = user
	return user, nil
}
