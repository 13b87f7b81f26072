package account

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/auth"
)

type UserRepository interface {
	// CreateIfAbsent inserts u unless the email is taken and reports whether
	// a row was written.
	CreateIfAbsent(ctx context.Context, u *User) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByGoogleID(ctx context.Context, googleID string) (*User, error)
	LinkGoogle(ctx context.Context, id uuid.UUID, googleID string, avatarURL *string) error
	UpdateProfile(ctx context.Context, id uuid.UUID, fullName string, phone *string) (*User, error)
	UpdateRole(ctx context.Context, id uuid.UUID, role auth.Role) (*User, error)
	List(ctx context.Context, role auth.Role, limit, offset int) ([]*User, int, error)
}
