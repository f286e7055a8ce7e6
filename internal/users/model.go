package users

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Role is the authorization role held by a marketplace user. Roles live only
// in this record; the identity provider never sees them.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User is the backend authorization record keyed by email.
type User struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	Name      string    `db:"name" json:"name"`
	PhotoURL  string    `db:"photo_url" json:"photoURL"`
	Role      Role      `db:"role" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// UpsertInput carries the profile fields synchronized from an identity.
type UpsertInput struct {
	Email    string
	Name     string
	PhotoURL string
}

// Repository defines persistence operations for user records.
type Repository interface {
	// Upsert inserts user when no record exists for its email, otherwise it
	// refreshes name and photo and leaves role untouched. It returns the stored
	// record and whether it was created.
	Upsert(ctx context.Context, user User) (User, bool, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	List(ctx context.Context) ([]User, error)
	UpdateRole(ctx context.Context, email string, role Role) (User, error)
}
