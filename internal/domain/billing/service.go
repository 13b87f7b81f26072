package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/events"
	"github.com/clinic/clinic/internal/platform/middleware"
)

// numberAttempts bounds retries when a generated invoice number collides.
const numberAttempts = 3

// DoctorDirectory maps a doctor-role login to its doctor profile id.
type DoctorDirectory interface {
	DoctorIDForUser(ctx context.Context, userID uuid.UUID) (uuid.UUID, error)
}

// Transactor runs fn in a database transaction.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type EventEmitter interface {
	Emit(ctx context.Context, eventType string, data interface{})
}

type nopEmitter struct{}

func (nopEmitter) Emit(context.Context, string, interface{}) {}

type Service struct {
	invoices Repository
	tx       Transactor
	doctors  DoctorDirectory
	events   EventEmitter
	now      func() time.Time
}

func NewService(repo Repository, tx Transactor, doctors DoctorDirectory, ev EventEmitter) *Service {
	if ev == nil {
		ev = nopEmitter{}
	}
	return &Service{invoices: repo, tx: tx, doctors: doctors, events: ev, now: time.Now}
}

func optionalUUID(s, field string) (*uuid.UUID, error) {
	if s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, apperr.InvalidInput("invalid %s", field)
	}
	return &id, nil
}

func text(s string) *string {
	s = middleware.CleanText(s)
	if s == "" {
		return nil
	}
	return &s
}

// Create stores a new invoice with a generated number. Invoices created as
// Paid are stamped with the current time.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Invoice, error) {
	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		return nil, apperr.InvalidInput("invalid patient_id")
	}
	inv := &Invoice{
		PatientID:     patientID,
		Amount:        req.Amount,
		Status:        req.Status,
		PaymentMethod: text(req.PaymentMethod),
		Description:   text(req.Description),
	}
	if inv.AppointmentID, err = optionalUUID(req.AppointmentID, "appointment_id"); err != nil {
		return nil, err
	}
	if inv.DoctorID, err = optionalUUID(req.DoctorID, "doctor_id"); err != nil {
		return nil, err
	}
	if inv.Status == "" {
		inv.Status = StatusPending
	}
	now := s.now()
	if inv.Status == StatusPaid {
		inv.PaidAt = &now
	}

	for i := 0; i < numberAttempts; i++ {
		if inv.InvoiceNumber, err = NewNumber(now); err != nil {
			return nil, err
		}
		created, err := s.invoices.CreateIfAbsent(ctx, inv)
		if err != nil {
			return nil, apperr.FromStore(err)
		}
		if created {
			if full, err := s.invoices.GetByID(ctx, inv.ID); err == nil {
				return full, nil
			}
			return inv, nil
		}
	}
	return nil, errors.New("could not allocate a unique invoice number")
}

// doctorScope returns the doctor id a doctor-role caller is limited to. ok
// is false when the caller is a doctor without a linked profile.
func (s *Service) doctorScope(ctx context.Context, ident *auth.Identity) (id *uuid.UUID, ok bool, err error) {
	if ident.Role != auth.RoleDoctor {
		return nil, true, nil
	}
	docID, err := s.doctors.DoctorIDForUser(ctx, ident.ID)
	if apperr.IsNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &docID, true, nil
}

func (s *Service) Get(ctx context.Context, ident *auth.Identity, id uuid.UUID) (*Invoice, error) {
	inv, err := s.invoices.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.OrNotFound(err, "invoice not found")
	}
	docID, ok, err := s.doctorScope(ctx, ident)
	if err != nil {
		return nil, err
	}
	if !ok || (docID != nil && (inv.DoctorID == nil || *inv.DoctorID != *docID)) {
		return nil, apperr.NotFound("invoice not found")
	}
	return inv, nil
}

func (s *Service) List(ctx context.Context, ident *auth.Identity, f Filter, limit, offset int) ([]*Invoice, int, error) {
	if f.Status != "" && f.Status != StatusPaid && f.Status != StatusPending {
		return nil, 0, apperr.InvalidInput("invalid status filter")
	}
	docID, ok, err := s.doctorScope(ctx, ident)
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		return nil, 0, nil
	}
	if docID != nil {
		f.DoctorID = docID
	}
	return s.invoices.List(ctx, f, limit, offset)
}

// Pay marks a pending invoice as paid. The row is locked for the duration
// of the check and update.
func (s *Service) Pay(ctx context.Context, id uuid.UUID, req PayRequest) (*Invoice, error) {
	method := middleware.CleanText(req.PaymentMethod)
	var paid *Invoice
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		inv, err := s.invoices.GetForUpdate(ctx, id)
		if err != nil {
			return apperr.OrNotFound(err, "invoice not found")
		}
		if inv.Status == StatusPaid {
			return apperr.InvalidInput("invoice %s is already paid", inv.InvoiceNumber)
		}
		paid, err = s.invoices.MarkPaid(ctx, id, method, s.now())
		if err != nil {
			return apperr.OrNotFound(err, "invoice not found")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	p := Payment{InvoiceID: paid.ID, InvoiceNumber: paid.InvoiceNumber, Amount: paid.Amount, PaymentMethod: method}
	if paid.PaidAt != nil {
		p.PaidAt = *paid.PaidAt
	}
	s.events.Emit(ctx, events.InvoicePaid, p)
	return paid, nil
}
