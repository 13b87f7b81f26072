package account

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/response"
)

// TokenIssuer signs bearer tokens. *auth.TokenService satisfies it.
type TokenIssuer interface {
	Issue(subjectID string, role auth.Role) (string, error)
}

var errInvalidCredentials = apperr.Unauthenticated("invalid credentials")

type Service struct {
	users  UserRepository
	tokens TokenIssuer
}

func NewService(users UserRepository, tokens TokenIssuer) *Service {
	return &Service{users: users, tokens: tokens}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Register creates a password account. Role defaults to patient; admin
// accounts cannot be self-registered.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	role := auth.RolePatient
	if req.Role != "" {
		r, err := auth.ParseRole(req.Role)
		if err != nil {
			return nil, apperr.Validation("validation failed",
				response.FieldError{Field: "role", Message: "is not a valid role"})
		}
		role = r
	}
	if role == auth.RoleAdmin {
		return nil, apperr.Validation("validation failed",
			response.FieldError{Field: "role", Message: "cannot be admin at registration"})
	}
	u, err := s.Provision(ctx, req, role)
	if err != nil {
		return nil, err
	}
	return s.issue(u)
}

// Provision creates a password account with any role, admin included. It
// backs Register and fixture seeding and has no route of its own.
func (s *Service) Provision(ctx context.Context, req RegisterRequest, role auth.Role) (*User, error) {
	if len(req.Password) < auth.MinPasswordLength {
		return nil, apperr.Validation("validation failed",
			response.FieldError{Field: "password", Message: "must be at least 6 characters"})
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	u := &User{
		FullName:     strings.TrimSpace(req.FullName),
		Email:        normalizeEmail(req.Email),
		Phone:        optional(req.Phone),
		Role:         role,
		PasswordHash: &hash,
		IsActive:     true,
	}
	created, err := s.users.CreateIfAbsent(ctx, u)
	if err != nil {
		return nil, apperr.FromStore(err)
	}
	if !created {
		return nil, apperr.Duplicate("email already registered")
	}
	return u, nil
}

// Login checks a password. Every failure produces the same message.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*AuthResult, error) {
	u, err := s.users.GetByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		if apperr.IsNotFound(err) {
			return nil, errInvalidCredentials
		}
		return nil, err
	}
	if !u.IsActive || u.PasswordHash == nil {
		return nil, errInvalidCredentials
	}
	if err := auth.CheckPassword(*u.PasswordHash, req.Password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, errInvalidCredentials
		}
		return nil, err
	}
	return s.issue(u)
}

func (s *Service) Me(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.OrNotFound(err, "user not found")
	}
	return u, nil
}

func (s *Service) UpdateProfile(ctx context.Context, id uuid.UUID, req UpdateProfileRequest) (*User, error) {
	u, err := s.users.UpdateProfile(ctx, id, strings.TrimSpace(req.FullName), optional(req.Phone))
	if err != nil {
		return nil, apperr.OrNotFound(err, "user not found")
	}
	return u, nil
}

// ChangeRole sets the role of another user.
func (s *Service) ChangeRole(ctx context.Context, actor *auth.Identity, id uuid.UUID, req UpdateRoleRequest) (*User, error) {
	role, err := auth.ParseRole(req.Role)
	if err != nil {
		return nil, apperr.Validation("validation failed",
			response.FieldError{Field: "role", Message: "is not a valid role"})
	}
	if actor != nil && actor.ID == id {
		return nil, apperr.InvalidInput("cannot change your own role")
	}
	u, err := s.users.UpdateRole(ctx, id, role)
	if err != nil {
		return nil, apperr.OrNotFound(err, "user not found")
	}
	return u, nil
}

func (s *Service) List(ctx context.Context, role string, limit, offset int) ([]*User, int, error) {
	var r auth.Role
	if role != "" {
		parsed, err := auth.ParseRole(role)
		if err != nil {
			return nil, 0, apperr.InvalidInput("invalid role filter")
		}
		r = parsed
	}
	return s.users.List(ctx, r, limit, offset)
}

// LookupIdentity implements auth.UserLookup. Deactivated users are reported
// as missing.
func (s *Service) LookupIdentity(ctx context.Context, id uuid.UUID) (*auth.Identity, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.OrNotFound(err, "user not found")
	}
	if !u.IsActive {
		return nil, apperr.NotFound("user not found")
	}
	return u.Identity(), nil
}

// LoginWithGoogle finds the user by Google subject, then by email, creating a
// patient account when neither matches.
func (s *Service) LoginWithGoogle(ctx context.Context, p *auth.ExternalProfile) (*AuthResult, error) {
	if p == nil || p.Subject == "" || p.Email == "" {
		return nil, apperr.InvalidInput("incomplete google profile")
	}
	email := normalizeEmail(p.Email)

	u, err := s.users.GetByGoogleID(ctx, p.Subject)
	switch {
	case err == nil:
	case apperr.IsNotFound(err):
		u, err = s.linkOrCreate(ctx, p, email)
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	if !u.IsActive {
		return nil, apperr.Unauthenticated("account is disabled")
	}
	return s.issue(u)
}

func (s *Service) linkOrCreate(ctx context.Context, p *auth.ExternalProfile, email string) (*User, error) {
	avatar := optional(p.AvatarURL)

	u, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		if err := s.users.LinkGoogle(ctx, u.ID, p.Subject, avatar); err != nil {
			return nil, apperr.FromStore(err)
		}
		u.GoogleID = &p.Subject
		if avatar != nil {
			u.AvatarURL = avatar
		}
		return u, nil
	}
	if !apperr.IsNotFound(err) {
		return nil, err
	}

	name := strings.TrimSpace(p.Name)
	if name == "" {
		name = email
	}
	subject := p.Subject
	u = &User{
		FullName:  name,
		Email:     email,
		Role:      auth.RolePatient,
		GoogleID:  &subject,
		AvatarURL: avatar,
		IsActive:  true,
	}
	created, err := s.users.CreateIfAbsent(ctx, u)
	if err != nil {
		return nil, apperr.FromStore(err)
	}
	if !created {
		// Lost a race with a concurrent sign-up for the same email.
		return s.users.GetByEmail(ctx, email)
	}
	return u, nil
}

func (s *Service) issue(u *User) (*AuthResult, error) {
	token, err := s.tokens.Issue(u.ID.String(), u.Role)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, User: u}, nil
}
