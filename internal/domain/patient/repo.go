package patient

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// CreateIfAbsent inserts p unless patient_id is taken and reports
	// whether a row was written.
	CreateIfAbsent(ctx context.Context, p *Patient) (bool, error)
	GetByPatientID(ctx context.Context, patientID string) (*Patient, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, patientID string) error
	Search(ctx context.Context, term string, limit, offset int) ([]*Patient, int, error)
}
