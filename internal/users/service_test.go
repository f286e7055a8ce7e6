package users

import (
	"context"
	"errors"
	"testing"

	"rentwheels/internal/apierr"
)

func TestServiceUpsertCreatesWithDefaultRole(t *testing.T) {
	svc := NewService(NewInMemoryRepository(), nil)

	user, created, err := svc.Upsert(context.Background(), UpsertInput{Email: " Buyer@Y.com ", PhotoURL: "p.png"})
	if err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}
	if !created {
		t.Fatal("expected record to be created")
	}
	if user.Email != "buyer@y.com" {
		t.Fatalf("expected normalized email, got %q", user.Email)
	}
	if user.Role != RoleUser {
		t.Fatalf("expected role user, got %q", user.Role)
	}
	if user.Name != "buyer" {
		t.Fatalf("expected name derived from email, got %q", user.Name)
	}
}

func TestServiceUpsertAssignsConfiguredAdmin(t *testing.T) {
	svc := NewService(NewInMemoryRepository(), []string{"Owner@X.com"})

	user, _, err := svc.Upsert(context.Background(), UpsertInput{Email: "owner@x.com", Name: "Owner"})
	if err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}
	if user.Role != RoleAdmin {
		t.Fatalf("expected admin role, got %q", user.Role)
	}
}

func TestServiceUpsertNeverChangesExistingRole(t *testing.T) {
	repo := NewInMemoryRepository()
	svc := NewService(repo, nil)
	ctx := context.Background()

	if _, _, err := svc.Upsert(ctx, UpsertInput{Email: "a@x.com", Name: "A"}); err != nil {
		t.Fatalf("initial upsert: %v", err)
	}
	if _, err := svc.UpdateRole(ctx, "a@x.com", RoleAdmin); err != nil {
		t.Fatalf("UpdateRole: %v", err)
	}

	user, created, err := svc.Upsert(ctx, UpsertInput{Email: "a@x.com", Name: "Renamed", PhotoURL: "new.png"})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if created {
		t.Fatal("expected existing record to be refreshed, not created")
	}
	if user.Role != RoleAdmin {
		t.Fatalf("expected role to stay admin, got %q", user.Role)
	}
	if user.Name != "Renamed" || user.PhotoURL != "new.png" {
		t.Fatalf("expected profile refresh, got %+v", user)
	}
}

func TestServiceUpsertRejectsInvalidEmail(t *testing.T) {
	svc := NewService(NewInMemoryRepository(), nil)

	_, _, err := svc.Upsert(context.Background(), UpsertInput{Email: "not-an-email"})
	if !errors.Is(err, apierr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestServiceUpdateRoleValidation(t *testing.T) {
	svc := NewService(NewInMemoryRepository(), nil)
	ctx := context.Background()

	if _, err := svc.UpdateRole(ctx, "a@x.com", Role("owner")); !errors.Is(err, apierr.ErrValidation) {
		t.Fatalf("expected validation error for unknown role, got %v", err)
	}
	if _, err := svc.UpdateRole(ctx, "missing@x.com", RoleAdmin); !errors.Is(err, apierr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestServiceRoleOfDefaultsToUser(t *testing.T) {
	svc := NewService(NewInMemoryRepository(), nil)

	role, err := svc.RoleOf(context.Background(), "ghost@x.com")
	if err != nil {
		t.Fatalf("RoleOf returned error: %v", err)
	}
	if role != RoleUser {
		t.Fatalf("expected default user role, got %q", role)
	}
}

func TestServiceListPreservesCreationOrder(t *testing.T) {
	svc := NewService(NewInMemoryRepository(), nil)
	ctx := context.Background()

	for _, email := range []string{"c@x.com", "a@x.com", "b@x.com"} {
		if _, _, err := svc.Upsert(ctx, UpsertInput{Email: email}); err != nil {
			t.Fatalf("upsert %s: %v", email, err)
		}
	}

	list, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(list) != 3 || list[0].Email != "c@x.com" || list[2].Email != "b@x.com" {
		t.Fatalf("unexpected order %+v", list)
	}
}
