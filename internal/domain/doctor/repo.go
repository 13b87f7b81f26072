package doctor

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// CreateIfAbsent inserts d unless registration_number is taken and
	// reports whether a row was written.
	CreateIfAbsent(ctx context.Context, d *Doctor) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error)
	List(ctx context.Context, specialization string, limit, offset int) ([]*Doctor, int, error)
}
