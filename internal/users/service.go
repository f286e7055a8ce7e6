package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"rentwheels/internal/apierr"
	"rentwheels/internal/credentials"
)

// Service orchestrates validation and persistence for user records.
type Service struct {
	repo   Repository
	admins map[string]struct{}
}

// NewService wires a Service. Emails listed in adminEmails receive the admin
// role when their record is first created.
func NewService(repo Repository, adminEmails []string) *Service {
	admins := make(map[string]struct{}, len(adminEmails))
	for _, email := range adminEmails {
		if email = NormalizeEmail(email); email != "" {
			admins[email] = struct{}{}
		}
	}
	return &Service{repo: repo, admins: admins}
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return credentials.NormalizeEmail(email)
}

// Upsert creates the record for input.Email with the default role, or
// refreshes its profile fields. The role of an existing record is never changed
// here. The boolean result reports whether the record was created.
func (s *Service) Upsert(ctx context.Context, input UpsertInput) (User, bool, error) {
	email := NormalizeEmail(input.Email)
	if err := credentials.ValidateEmail(email); err != nil {
		return User{}, false, err
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}

	role := RoleUser
	if _, ok := s.admins[email]; ok {
		role = RoleAdmin
	}

	now := time.Now().UTC()
	user, created, err := s.repo.Upsert(ctx, User{
		ID:        uuid.New(),
		Email:     email,
		Name:      name,
		PhotoURL:  strings.TrimSpace(input.PhotoURL),
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return User{}, false, fmt.Errorf("upsert user: %w", err)
	}
	return user, created, nil
}

// GetByEmail returns the record for email.
func (s *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return s.repo.GetByEmail(ctx, NormalizeEmail(email))
}

// RoleOf returns the authoritative role for email, or RoleUser when no record exists.
func (s *Service) RoleOf(ctx context.Context, email string) (Role, error) {
	user, err := s.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apierr.ErrNotFound) {
			return RoleUser, nil
		}
		return "", err
	}
	return user.Role, nil
}

// List returns all user records.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}

// UpdateRole assigns role to the user identified by email.
func (s *Service) UpdateRole(ctx context.Context, email string, role Role) (User, error) {
	if !role.Valid() {
		return User{}, apierr.Validation("role must be %q or %q", RoleUser, RoleAdmin)
	}
	return s.repo.UpdateRole(ctx, NormalizeEmail(email), role)
}
