package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	// CreateIfAbsent inserts inv unless its invoice number is taken. When an
	// appointment is linked and DoctorID is nil, the appointment's doctor is
	// used.
	CreateIfAbsent(ctx context.Context, inv *Invoice) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error)
	// GetForUpdate locks the row for the surrounding transaction.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Invoice, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]*Invoice, int, error)
	MarkPaid(ctx context.Context, id uuid.UUID, method string, paidAt time.Time) (*Invoice, error)
}
