package doctor

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/middleware"
)

// UserDirectory resolves login accounts. The account service satisfies it.
type UserDirectory interface {
	LookupIdentity(ctx context.Context, id uuid.UUID) (*auth.Identity, error)
}

type Service struct {
	doctors Repository
	users   UserDirectory
}

func NewService(doctors Repository, users UserDirectory) *Service {
	return &Service{doctors: doctors, users: users}
}

func text(s string) *string {
	s = middleware.CleanText(s)
	if s == "" {
		return nil
	}
	return &s
}

// Create adds a doctor profile. A linked user must hold the doctor role.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Doctor, error) {
	d := &Doctor{
		FullName:           middleware.CleanText(req.FullName),
		Email:              text(strings.ToLower(req.Email)),
		Phone:              text(req.Phone),
		Specialization:     middleware.CleanText(req.Specialization),
		RegistrationNumber: strings.TrimSpace(req.RegistrationNumber),
		Qualifications:     text(req.Qualifications),
		ExperienceYears:    req.ExperienceYears,
		ConsultationFee:    req.ConsultationFee,
		IsAvailable:        true,
	}
	if req.IsAvailable != nil {
		d.IsAvailable = *req.IsAvailable
	}
	if req.UserID != "" {
		uid, err := uuid.Parse(req.UserID)
		if err != nil {
			return nil, apperr.InvalidInput("invalid user_id")
		}
		ident, err := s.users.LookupIdentity(ctx, uid)
		if err != nil {
			if apperr.IsNotFound(err) {
				return nil, apperr.InvalidInput("user_id does not reference an active user")
			}
			return nil, err
		}
		if ident.Role != auth.RoleDoctor {
			return nil, apperr.InvalidInput("user_id must reference a doctor account")
		}
		d.UserID = &uid
	}

	created, err := s.doctors.CreateIfAbsent(ctx, d)
	if err != nil {
		return nil, apperr.FromStore(err)
	}
	if !created {
		return nil, apperr.Duplicate("registration_number %s already exists", d.RegistrationNumber)
	}
	return d, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, err := s.doctors.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.OrNotFound(err, "doctor not found")
	}
	return d, nil
}

// GetByUserID returns the profile linked to a doctor-role login.
func (s *Service) GetByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error) {
	d, err := s.doctors.GetByUserID(ctx, userID)
	if err != nil {
		return nil, apperr.OrNotFound(err, "doctor not found")
	}
	return d, nil
}

func (s *Service) List(ctx context.Context, specialization string, limit, offset int) ([]*Doctor, int, error) {
	return s.doctors.List(ctx, strings.TrimSpace(specialization), limit, offset)
}
