package patient

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/middleware"
)

type Service struct {
	patients Repository
}

func NewService(patients Repository) *Service {
	return &Service{patients: patients}
}

// text trims and strips control characters from free-text input. Empty
// values are stored as NULL.
func text(s string) *string {
	s = middleware.CleanText(s)
	if s == "" {
		return nil
	}
	return &s
}

func (d Details) apply(p *Patient) error {
	p.FullName = middleware.CleanText(d.FullName)
	p.DateOfBirth = text(d.DateOfBirth)
	p.Gender = text(d.Gender)
	p.Phone = text(d.Phone)
	p.Email = text(strings.ToLower(d.Email))
	p.Address = text(d.Address)
	p.BloodGroup = text(d.BloodGroup)
	p.Allergies = text(d.Allergies)
	p.MedicalHistory = text(d.MedicalHistory)
	p.EmergencyContactName = text(d.EmergencyContactName)
	p.EmergencyContactPhone = text(d.EmergencyContactPhone)
	p.UserID = nil
	if d.UserID != "" {
		id, err := uuid.Parse(d.UserID)
		if err != nil {
			return apperr.InvalidInput("invalid user_id")
		}
		p.UserID = &id
	}
	return nil
}

// Create registers a patient. A taken patient_id is reported as a duplicate
// and the existing row is left untouched.
func (s *Service) Create(ctx context.Context, createdBy uuid.UUID, req CreateRequest) (*Patient, error) {
	p := &Patient{PatientID: strings.TrimSpace(req.PatientID)}
	if p.PatientID == "" {
		return nil, apperr.InvalidInput("patient_id is required")
	}
	if err := req.Details.apply(p); err != nil {
		return nil, err
	}
	if createdBy != uuid.Nil {
		p.CreatedBy = &createdBy
	}
	created, err := s.patients.CreateIfAbsent(ctx, p)
	if err != nil {
		return nil, apperr.FromStore(err)
	}
	if !created {
		return nil, apperr.Duplicate("patient_id %s already exists", p.PatientID)
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, patientID string) (*Patient, error) {
	p, err := s.patients.GetByPatientID(ctx, patientID)
	if err != nil {
		return nil, apperr.OrNotFound(err, "patient not found")
	}
	return p, nil
}

// GetByUserID returns the patient record linked to a portal account.
func (s *Service) GetByUserID(ctx context.Context, userID uuid.UUID) (*Patient, error) {
	p, err := s.patients.GetByUserID(ctx, userID)
	if err != nil {
		return nil, apperr.OrNotFound(err, "patient not found")
	}
	return p, nil
}

func (s *Service) Update(ctx context.Context, patientID string, req UpdateRequest) (*Patient, error) {
	p := &Patient{PatientID: patientID}
	if err := req.Details.apply(p); err != nil {
		return nil, err
	}
	if err := s.patients.Update(ctx, p); err != nil {
		return nil, apperr.OrNotFound(err, "patient not found")
	}
	return p, nil
}

// Delete removes a patient. Patients with appointments or invoices are
// protected by foreign keys and yield a constraint error.
func (s *Service) Delete(ctx context.Context, patientID string) error {
	if err := s.patients.Delete(ctx, patientID); err != nil {
		return apperr.OrNotFound(err, "patient not found")
	}
	return nil
}

func (s *Service) List(ctx context.Context, search string, limit, offset int) ([]*Patient, int, error) {
	return s.patients.Search(ctx, strings.TrimSpace(search), limit, offset)
}
