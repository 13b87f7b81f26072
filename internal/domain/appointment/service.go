package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/events"
	"github.com/clinic/clinic/internal/platform/middleware"
	"github.com/clinic/clinic/internal/platform/notification"
	"github.com/clinic/clinic/internal/platform/response"
)

// DoctorDirectory maps a doctor-role login to its doctor profile id.
// Implementations return a NotFound error when no profile is linked.
type DoctorDirectory interface {
	DoctorIDForUser(ctx context.Context, userID uuid.UUID) (uuid.UUID, error)
}

// PatientDirectory maps a patient-role login to its patient record id.
type PatientDirectory interface {
	PatientIDForUser(ctx context.Context, userID uuid.UUID) (uuid.UUID, error)
}

// EventEmitter publishes domain events on a best-effort basis.
type EventEmitter interface {
	Emit(ctx context.Context, eventType string, data interface{})
}

// Notifier sends appointment emails in the background.
type Notifier interface {
	AppointmentBooked(ctx context.Context, n *notification.AppointmentNotice)
	AppointmentCancelled(ctx context.Context, n *notification.AppointmentNotice)
}

type nopEmitter struct{}

func (nopEmitter) Emit(context.Context, string, interface{}) {}

type nopNotifier struct{}

func (nopNotifier) AppointmentBooked(context.Context, *notification.AppointmentNotice)    {}
func (nopNotifier) AppointmentCancelled(context.Context, *notification.AppointmentNotice) {}

type Service struct {
	appointments Repository
	doctors      DoctorDirectory
	patients     PatientDirectory
	events       EventEmitter
	notifier     Notifier
	slots        SlotPolicy
	logger       zerolog.Logger
}

// WithSlotPolicy replaces the bookable day used by AvailableSlots.
func (s *Service) WithSlotPolicy(p SlotPolicy) *Service {
	s.slots = p
	return s
}

func NewService(repo Repository, doctors DoctorDirectory, patients PatientDirectory, ev EventEmitter, notifier Notifier, logger zerolog.Logger) *Service {
	if ev == nil {
		ev = nopEmitter{}
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Service{
		appointments: repo,
		doctors:      doctors,
		patients:     patients,
		events:       ev,
		notifier:     notifier,
		slots:        DefaultSlotPolicy,
		logger:       logger,
	}
}

// scope narrows f to the caller's own appointments. It returns false when a
// doctor or patient login has no linked record and so owns nothing.
func (s *Service) scope(ctx context.Context, ident *auth.Identity, f *Filter) (bool, error) {
	switch ident.Role {
	case auth.RoleDoctor:
		id, err := s.doctors.DoctorIDForUser(ctx, ident.ID)
		if apperr.IsNotFound(err) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		f.DoctorID = &id
	case auth.RolePatient:
		id, err := s.patients.PatientIDForUser(ctx, ident.ID)
		if apperr.IsNotFound(err) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		f.PatientID = &id
	}
	return true, nil
}

func text(s string) *string {
	s = middleware.CleanText(s)
	if s == "" {
		return nil
	}
	return &s
}

// Create books an appointment. Patients always book for their own record.
func (s *Service) Create(ctx context.Context, ident *auth.Identity, req CreateRequest) (*Appointment, error) {
	doctorID, err := uuid.Parse(req.DoctorID)
	if err != nil {
		return nil, apperr.InvalidInput("invalid doctor_id")
	}

	var patientID uuid.UUID
	if ident.Role == auth.RolePatient {
		patientID, err = s.patients.PatientIDForUser(ctx, ident.ID)
		if apperr.IsNotFound(err) {
			return nil, apperr.Forbidden("no patient record is linked to this account")
		}
		if err != nil {
			return nil, err
		}
	} else {
		if req.PatientID == "" {
			return nil, apperr.Validation("validation failed",
				response.FieldError{Field: "patient_id", Message: "is required"})
		}
		patientID, err = uuid.Parse(req.PatientID)
		if err != nil {
			return nil, apperr.InvalidInput("invalid patient_id")
		}
	}

	a := &Appointment{
		PatientID:       patientID,
		DoctorID:        doctorID,
		AppointmentDate: req.AppointmentDate,
		AppointmentTime: req.AppointmentTime,
		Reason:          text(req.Reason),
		Notes:           text(req.Notes),
		Status:          StatusScheduled,
		CreatedBy:       &ident.ID,
	}
	if err := s.appointments.Create(ctx, a); err != nil {
		return nil, apperr.FromStore(err)
	}
	if full, err := s.appointments.GetByID(ctx, a.ID); err == nil {
		a = full
	}

	s.events.Emit(ctx, events.AppointmentCreated, a)
	s.notify(ctx, a.ID, s.notifier.AppointmentBooked)
	return a, nil
}

func (s *Service) notify(ctx context.Context, id uuid.UUID, send func(context.Context, *notification.AppointmentNotice)) {
	n, err := s.appointments.Notice(ctx, id)
	if err != nil {
		s.logger.Warn().Err(err).Str("appointment_id", id.String()).Msg("could not load appointment notice")
		return
	}
	send(ctx, n)
}

// Get returns an appointment the caller may see. Appointments outside a
// doctor's or patient's scope are reported as missing.
func (s *Service) Get(ctx context.Context, ident *auth.Identity, id uuid.UUID) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.OrNotFound(err, "appointment not found")
	}
	var f Filter
	ok, err := s.scope(ctx, ident, &f)
	if err != nil {
		return nil, err
	}
	if !ok ||
		(f.DoctorID != nil && a.DoctorID != *f.DoctorID) ||
		(f.PatientID != nil && a.PatientID != *f.PatientID) {
		return nil, apperr.NotFound("appointment not found")
	}
	return a, nil
}

// List returns appointments matching f within the caller's scope.
func (s *Service) List(ctx context.Context, ident *auth.Identity, f Filter, limit, offset int) ([]*Appointment, int, error) {
	if f.Status != "" && !ValidStatus(f.Status) {
		return nil, 0, apperr.InvalidInput("invalid status filter")
	}
	if f.Date != "" {
		if _, err := time.Parse("2006-01-02", f.Date); err != nil {
			return nil, 0, apperr.InvalidInput("invalid date filter")
		}
	}
	ok, err := s.scope(ctx, ident, &f)
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		return nil, 0, nil
	}
	return s.appointments.List(ctx, f, limit, offset)
}

// UpdateStatus sets any status value. There is no transition graph.
func (s *Service) UpdateStatus(ctx context.Context, ident *auth.Identity, id uuid.UUID, status string) (*Appointment, error) {
	if !ValidStatus(status) {
		return nil, apperr.Validation("validation failed",
			response.FieldError{Field: "status", Message: "must be one of: scheduled completed cancelled no-show"})
	}
	a, err := s.Get(ctx, ident, id)
	if err != nil {
		return nil, err
	}
	prev := a.Status
	if err := s.appointments.UpdateStatus(ctx, id, status); err != nil {
		return nil, apperr.OrNotFound(err, "appointment not found")
	}
	if updated, err := s.appointments.GetByID(ctx, id); err == nil {
		a = updated
	} else {
		a.Status = status
	}

	s.events.Emit(ctx, events.AppointmentStatusChanged, StatusChange{
		AppointmentID: id, From: prev, To: status, ChangedBy: ident.ID,
	})
	if status == StatusCancelled && prev != StatusCancelled {
		s.notify(ctx, id, s.notifier.AppointmentCancelled)
	}
	return a, nil
}

// DueForReminder implements notification.ReminderSource.
func (s *Service) DueForReminder(ctx context.Context, from, to time.Time) ([]*notification.AppointmentNotice, error) {
	return s.appointments.DueForReminder(ctx, from, to)
}

// MarkReminded implements notification.ReminderSource.
func (s *Service) MarkReminded(ctx context.Context, id uuid.UUID) error {
	return s.appointments.MarkReminded(ctx, id)
}
