package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/notification"
)

type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]*Appointment, int, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	// Notice loads the patient contact details for an appointment email.
	Notice(ctx context.Context, id uuid.UUID) (*notification.AppointmentNotice, error)
	// DueForReminder lists scheduled, unreminded appointments starting
	// between from and to (clinic local time).
	DueForReminder(ctx context.Context, from, to time.Time) ([]*notification.AppointmentNotice, error)
	MarkReminded(ctx context.Context, id uuid.UUID) error
}
