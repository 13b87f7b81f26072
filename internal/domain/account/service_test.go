package account

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
)

// -- Mock Repository --

type mockUserRepo struct {
	users map[uuid.UUID]*User
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[uuid.UUID]*User)}
}

func (m *mockUserRepo) CreateIfAbsent(_ context.Context, u *User) (bool, error) {
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return false, nil
		}
	}
	u.ID = uuid.New()
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	m.users[u.ID] = u
	return true, nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return u, nil
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockUserRepo) GetByGoogleID(_ context.Context, googleID string) (*User, error) {
	for _, u := range m.users {
		if u.GoogleID != nil && *u.GoogleID == googleID {
			return u, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockUserRepo) LinkGoogle(_ context.Context, id uuid.UUID, googleID string, avatarURL *string) error {
	u, ok := m.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	u.GoogleID = &googleID
	if avatarURL != nil {
		u.AvatarURL = avatarURL
	}
	return nil
}

func (m *mockUserRepo) UpdateProfile(_ context.Context, id uuid.UUID, fullName string, phone *string) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	u.FullName = fullName
	u.Phone = phone
	return u, nil
}

func (m *mockUserRepo) UpdateRole(_ context.Context, id uuid.UUID, role auth.Role) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	u.Role = role
	return u, nil
}

func (m *mockUserRepo) List(_ context.Context, role auth.Role, limit, offset int) ([]*User, int, error) {
	var result []*User
	for _, u := range m.users {
		if role == "" || u.Role == role {
			result = append(result, u)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Email < result[j].Email })
	total := len(result)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return result[offset:end], total, nil
}

var testTokens = auth.NewTokenService([]byte("test-secret-key-that-is-long-enough!"), time.Hour, "clinic-test")

func newTestService() (*Service, *mockUserRepo) {
	repo := newMockUserRepo()
	return NewService(repo, testTokens), repo
}

func register(t *testing.T, svc *Service, email string, role string) *AuthResult {
	t.Helper()
	res, err := svc.Register(context.Background(), RegisterRequest{
		FullName: "Test User",
		Email:    email,
		Role:     role,
		Password: "secret123",
	})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return res
}

// -- Tests --

func TestService_Register_DefaultsToPatient(t *testing.T) {
	svc, _ := newTestService()
	res := register(t, svc, "Jane@Example.com ", "")

	if res.User.Role != auth.RolePatient {
		t.Errorf("expected patient role, got %s", res.User.Role)
	}
	if res.User.Email != "jane@example.com" {
		t.Errorf("expected normalized email, got %q", res.User.Email)
	}
	claims, err := testTokens.Verify(res.Token)
	if err != nil {
		t.Fatalf("token does not verify: %v", err)
	}
	if claims.Subject != res.User.ID.String() || claims.Role != auth.RolePatient {
		t.Errorf("unexpected claims: %+v", claims)
	}
	if res.User.PasswordHash == nil || *res.User.PasswordHash == "secret123" {
		t.Error("expected password to be hashed")
	}
}

func TestService_Register_DuplicateEmail(t *testing.T) {
	svc, repo := newTestService()
	register(t, svc, "dup@example.com", "")

	for i := 0; i < 2; i++ {
		_, err := svc.Register(context.Background(), RegisterRequest{
			FullName: "Again", Email: "DUP@example.com", Password: "secret123",
		})
		if !apperr.Is(err, apperr.KindDuplicate) {
			t.Fatalf("attempt %d: expected duplicate error, got %v", i+1, err)
		}
	}
	if len(repo.users) != 1 {
		t.Errorf("expected 1 user, got %d", len(repo.users))
	}
}

func TestService_Register_RoleRules(t *testing.T) {
	svc, _ := newTestService()

	if _, err := svc.Register(context.Background(), RegisterRequest{
		FullName: "X", Email: "x@example.com", Role: "surgeon", Password: "secret123",
	}); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected validation error for unknown role, got %v", err)
	}
	if _, err := svc.Register(context.Background(), RegisterRequest{
		FullName: "X", Email: "y@example.com", Role: "admin", Password: "secret123",
	}); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected validation error for admin role, got %v", err)
	}

	res := register(t, svc, "doc@example.com", "Doctor")
	if res.User.Role != auth.RoleDoctor {
		t.Errorf("expected doctor, got %s", res.User.Role)
	}
}

func TestService_Register_ShortPassword(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Register(context.Background(), RegisterRequest{
		FullName: "X", Email: "short@example.com", Password: "12345",
	})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestService_Login(t *testing.T) {
	svc, _ := newTestService()
	reg := register(t, svc, "nurse@example.com", "nurse")

	res, err := svc.Login(context.Background(), LoginRequest{Email: "NURSE@example.com", Password: "secret123"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	claims, err := testTokens.Verify(res.Token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Role != auth.RoleNurse || claims.Subject != reg.User.ID.String() {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestService_Login_FailuresShareMessage(t *testing.T) {
	svc, repo := newTestService()
	register(t, svc, "a@example.com", "")

	inactive := register(t, svc, "gone@example.com", "")
	repo.users[inactive.User.ID].IsActive = false

	tests := []struct {
		name string
		req  LoginRequest
	}{
		{"wrong password", LoginRequest{Email: "a@example.com", Password: "wrong-pass"}},
		{"unknown email", LoginRequest{Email: "nobody@example.com", Password: "secret123"}},
		{"inactive", LoginRequest{Email: "gone@example.com", Password: "secret123"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Login(context.Background(), tt.req)
			if !apperr.Is(err, apperr.KindUnauthenticated) {
				t.Fatalf("expected unauthenticated, got %v", err)
			}
			if err.Error() != "invalid credentials" {
				t.Errorf("expected generic message, got %q", err.Error())
			}
		})
	}
}

func TestService_LookupIdentity(t *testing.T) {
	svc, repo := newTestService()
	reg := register(t, svc, "who@example.com", "")

	ident, err := svc.LookupIdentity(context.Background(), reg.User.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ident.Email != "who@example.com" || ident.Role != auth.RolePatient {
		t.Errorf("unexpected identity: %+v", ident)
	}

	repo.users[reg.User.ID].IsActive = false
	if _, err := svc.LookupIdentity(context.Background(), reg.User.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected not found for inactive user, got %v", err)
	}
	if _, err := svc.LookupIdentity(context.Background(), uuid.New()); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected not found for unknown user, got %v", err)
	}
}

func TestService_ChangeRole(t *testing.T) {
	svc, _ := newTestService()
	target := register(t, svc, "target@example.com", "")
	admin := &auth.Identity{ID: uuid.New(), Role: auth.RoleAdmin}

	u, err := svc.ChangeRole(context.Background(), admin, target.User.ID, UpdateRoleRequest{Role: "receptionist"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Role != auth.RoleReceptionist {
		t.Errorf("expected receptionist, got %s", u.Role)
	}

	if _, err := svc.ChangeRole(context.Background(), admin, target.User.ID, UpdateRoleRequest{Role: "chief"}); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if _, err := svc.ChangeRole(context.Background(), admin, admin.ID, UpdateRoleRequest{Role: "patient"}); !apperr.Is(err, apperr.KindInvalidInput) {
		t.Errorf("expected invalid input for self change, got %v", err)
	}
	if _, err := svc.ChangeRole(context.Background(), admin, uuid.New(), UpdateRoleRequest{Role: "nurse"}); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestService_List_RoleFilter(t *testing.T) {
	svc, _ := newTestService()
	register(t, svc, "p1@example.com", "")
	register(t, svc, "p2@example.com", "")
	register(t, svc, "d1@example.com", "doctor")

	items, total, err := svc.List(context.Background(), "patient", 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 || len(items) != 2 {
		t.Errorf("expected 2 patients, got %d/%d", len(items), total)
	}
	if _, _, err := svc.List(context.Background(), "wizard", 10, 0); !apperr.Is(err, apperr.KindInvalidInput) {
		t.Errorf("expected invalid input, got %v", err)
	}
}

func TestService_LoginWithGoogle(t *testing.T) {
	svc, repo := newTestService()

	res, err := svc.LoginWithGoogle(context.Background(), &auth.ExternalProfile{
		Subject: "g-1", Email: "New@Gmail.com", Name: "New Person",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.User.Role != auth.RolePatient || res.User.Email != "new@gmail.com" {
		t.Errorf("unexpected new user: %+v", res.User)
	}
	if res.User.PasswordHash != nil {
		t.Error("oauth-only user should have no password")
	}

	again, err := svc.LoginWithGoogle(context.Background(), &auth.ExternalProfile{Subject: "g-1", Email: "new@gmail.com"})
	if err != nil {
		t.Fatal(err)
	}
	if again.User.ID != res.User.ID {
		t.Error("expected the same user on second sign-in")
	}
	if len(repo.users) != 1 {
		t.Errorf("expected 1 user, got %d", len(repo.users))
	}
}

func TestService_LoginWithGoogle_LinksExistingEmail(t *testing.T) {
	svc, repo := newTestService()
	reg := register(t, svc, "linked@example.com", "doctor")

	res, err := svc.LoginWithGoogle(context.Background(), &auth.ExternalProfile{
		Subject: "g-2", Email: "linked@example.com", AvatarURL: "https://img/x.png",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.User.ID != reg.User.ID || res.User.Role != auth.RoleDoctor {
		t.Errorf("expected existing doctor account, got %+v", res.User)
	}
	if g := repo.users[reg.User.ID].GoogleID; g == nil || *g != "g-2" {
		t.Error("expected google id to be linked")
	}
}

func TestService_LoginWithGoogle_IncompleteProfile(t *testing.T) {
	svc, _ := newTestService()
	if _, err := svc.LoginWithGoogle(context.Background(), &auth.ExternalProfile{Subject: "g-3"}); !apperr.Is(err, apperr.KindInvalidInput) {
		t.Errorf("expected invalid input, got %v", err)
	}
}
