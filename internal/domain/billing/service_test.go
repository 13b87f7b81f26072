package billing

import (
	"context"
	"regexp"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/events"
)

// -- Mock Repository --

type mockRepo struct {
	invoices     map[uuid.UUID]*Invoice
	numbers      map[string]bool
	apptDoctors  map[uuid.UUID]uuid.UUID
	collisions   int
	lockedForPay int
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		invoices:    make(map[uuid.UUID]*Invoice),
		numbers:     make(map[string]bool),
		apptDoctors: make(map[uuid.UUID]uuid.UUID),
	}
}

func (m *mockRepo) CreateIfAbsent(_ context.Context, inv *Invoice) (bool, error) {
	if m.collisions > 0 {
		m.collisions--
		return false, nil
	}
	if m.numbers[inv.InvoiceNumber] {
		return false, nil
	}
	inv.ID = uuid.New()
	if inv.DoctorID == nil && inv.AppointmentID != nil {
		if d, ok := m.apptDoctors[*inv.AppointmentID]; ok {
			inv.DoctorID = &d
		}
	}
	inv.CreatedAt = time.Now().Add(time.Duration(len(m.invoices)) * time.Millisecond)
	inv.UpdatedAt = inv.CreatedAt
	cp := *inv
	m.invoices[inv.ID] = &cp
	m.numbers[inv.InvoiceNumber] = true
	return true, nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Invoice, error) {
	inv, ok := m.invoices[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *inv
	return &cp, nil
}

func (m *mockRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	m.lockedForPay++
	return m.GetByID(ctx, id)
}

func (m *mockRepo) List(_ context.Context, f Filter, limit, offset int) ([]*Invoice, int, error) {
	var out []*Invoice
	for _, inv := range m.invoices {
		if f.Status != "" && inv.Status != f.Status {
			continue
		}
		if f.PatientID != nil && inv.PatientID != *f.PatientID {
			continue
		}
		if f.DoctorID != nil && (inv.DoctorID == nil || *inv.DoctorID != *f.DoctorID) {
			continue
		}
		cp := *inv
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := len(out)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}

func (m *mockRepo) MarkPaid(_ context.Context, id uuid.UUID, method string, paidAt time.Time) (*Invoice, error) {
	inv, ok := m.invoices[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	inv.Status = StatusPaid
	inv.PaymentMethod = &method
	inv.PaidAt = &paidAt
	cp := *inv
	return &cp, nil
}

// -- Fakes --

type fakeTx struct{ calls int }

func (f *fakeTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.calls++
	return fn(ctx)
}

type directory map[uuid.UUID]uuid.UUID

func (d directory) DoctorIDForUser(_ context.Context, userID uuid.UUID) (uuid.UUID, error) {
	id, ok := d[userID]
	if !ok {
		return uuid.Nil, apperr.NotFound("no doctor profile")
	}
	return id, nil
}

type fixture struct {
	svc     *Service
	repo    *mockRepo
	tx      *fakeTx
	doctors directory
	events  *events.Memory
}

var fixedNow = time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

func newFixture() *fixture {
	f := &fixture{repo: newMockRepo(), tx: &fakeTx{}, doctors: directory{}, events: &events.Memory{}}
	f.svc = NewService(f.repo, f.tx, f.doctors, events.NewEmitter(f.events, zerolog.Nop()))
	f.svc.now = func() time.Time { return fixedNow }
	return f
}

func admin() *auth.Identity {
	return &auth.Identity{ID: uuid.New(), Role: auth.RoleAdmin}
}

func (f *fixture) create(t *testing.T, req CreateRequest) *Invoice {
	t.Helper()
	if req.PatientID == "" {
		req.PatientID = uuid.NewString()
	}
	if req.Amount == 0 {
		req.Amount = 120.5
	}
	inv, err := f.svc.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return inv
}

// -- Tests --

var numberPattern = regexp.MustCompile(`^INV-\d{8}-[A-Z0-9]{6}$`)

func TestNewNumber(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		n, err := NewNumber(fixedNow)
		if err != nil {
			t.Fatal(err)
		}
		if !numberPattern.MatchString(n) {
			t.Fatalf("unexpected format %q", n)
		}
		if n[4:12] != "20261017" {
			t.Errorf("unexpected date part in %q", n)
		}
		seen[n] = true
	}
	if len(seen) < 45 {
		t.Errorf("numbers not random enough: %d unique of 50", len(seen))
	}
}

func TestCreate_DefaultsToPending(t *testing.T) {
	f := newFixture()
	inv := f.create(t, CreateRequest{Description: "  consultation "})

	if inv.Status != StatusPending {
		t.Errorf("expected Pending, got %q", inv.Status)
	}
	if inv.PaidAt != nil {
		t.Error("pending invoice should not have paid_at")
	}
	if !numberPattern.MatchString(inv.InvoiceNumber) {
		t.Errorf("unexpected number %q", inv.InvoiceNumber)
	}
	if inv.Description == nil || *inv.Description != "consultation" {
		t.Errorf("unexpected description %v", inv.Description)
	}
}

func TestCreate_PaidStampsTime(t *testing.T) {
	f := newFixture()
	inv := f.create(t, CreateRequest{Status: StatusPaid, PaymentMethod: "cash"})
	if inv.PaidAt == nil || !inv.PaidAt.Equal(fixedNow) {
		t.Errorf("expected paid_at %v, got %v", fixedNow, inv.PaidAt)
	}
}

func TestCreate_DoctorFromAppointment(t *testing.T) {
	f := newFixture()
	apptID, docID := uuid.New(), uuid.New()
	f.repo.apptDoctors[apptID] = docID

	inv := f.create(t, CreateRequest{AppointmentID: apptID.String()})
	if inv.DoctorID == nil || *inv.DoctorID != docID {
		t.Errorf("expected doctor %s, got %v", docID, inv.DoctorID)
	}
}

func TestCreate_RetriesOnCollision(t *testing.T) {
	f := newFixture()
	f.repo.collisions = 2
	f.create(t, CreateRequest{})
	if len(f.repo.invoices) != 1 {
		t.Errorf("expected one invoice, got %d", len(f.repo.invoices))
	}
}

func TestCreate_GivesUpAfterRetries(t *testing.T) {
	f := newFixture()
	f.repo.collisions = numberAttempts
	_, err := f.svc.Create(context.Background(), CreateRequest{PatientID: uuid.NewString(), Amount: 10})
	if err == nil {
		t.Fatal("expected error")
	}
	if apperr.KindOf(err) != apperr.KindUnknown {
		t.Errorf("expected unknown kind, got %v", apperr.KindOf(err))
	}
}

func TestCreate_InvalidIDs(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Create(context.Background(), CreateRequest{PatientID: uuid.NewString(), Amount: 1, DoctorID: "x"})
	if !apperr.Is(err, apperr.KindInvalidInput) {
		t.Errorf("expected invalid input, got %v", err)
	}
}

func TestPay(t *testing.T) {
	f := newFixture()
	inv := f.create(t, CreateRequest{})

	paid, err := f.svc.Pay(context.Background(), inv.ID, PayRequest{PaymentMethod: "card"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if paid.Status != StatusPaid || paid.PaidAt == nil || *paid.PaymentMethod != "card" {
		t.Errorf("unexpected invoice %+v", paid)
	}
	if f.tx.calls != 1 || f.repo.lockedForPay != 1 {
		t.Errorf("expected one locked read inside one transaction, got tx=%d lock=%d", f.tx.calls, f.repo.lockedForPay)
	}
	if got := f.events.Types(); len(got) != 1 || got[0] != events.InvoicePaid {
		t.Errorf("unexpected events %v", got)
	}
}

func TestPay_AlreadyPaid(t *testing.T) {
	f := newFixture()
	inv := f.create(t, CreateRequest{Status: StatusPaid})

	_, err := f.svc.Pay(context.Background(), inv.ID, PayRequest{PaymentMethod: "card"})
	if !apperr.Is(err, apperr.KindInvalidInput) {
		t.Errorf("expected invalid input, got %v", err)
	}
	if len(f.events.Events()) != 0 {
		t.Error("no event expected")
	}
}

func TestPay_NotFound(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Pay(context.Background(), uuid.New(), PayRequest{PaymentMethod: "card"})
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestList_DoctorScope(t *testing.T) {
	f := newFixture()
	mine, other := uuid.New(), uuid.New()
	f.create(t, CreateRequest{DoctorID: mine.String()})
	f.create(t, CreateRequest{DoctorID: other.String()})
	f.create(t, CreateRequest{})

	doc := &auth.Identity{ID: uuid.New(), Role: auth.RoleDoctor}
	f.doctors[doc.ID] = mine

	_, total, err := f.svc.List(context.Background(), doc, Filter{DoctorID: &other}, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 {
		t.Errorf("expected 1 invoice for doctor, got %d", total)
	}

	_, total, _ = f.svc.List(context.Background(), &auth.Identity{ID: uuid.New(), Role: auth.RoleDoctor}, Filter{}, 10, 0)
	if total != 0 {
		t.Errorf("doctor without profile should see nothing, got %d", total)
	}

	_, total, _ = f.svc.List(context.Background(), admin(), Filter{}, 10, 0)
	if total != 3 {
		t.Errorf("admin should see all, got %d", total)
	}
}

func TestList_StatusFilter(t *testing.T) {
	f := newFixture()
	f.create(t, CreateRequest{Status: StatusPaid})
	f.create(t, CreateRequest{})

	_, total, err := f.svc.List(context.Background(), admin(), Filter{Status: StatusPaid}, 10, 0)
	if err != nil || total != 1 {
		t.Errorf("expected 1 paid invoice, got %d (%v)", total, err)
	}
	if _, _, err := f.svc.List(context.Background(), admin(), Filter{Status: "paid"}, 10, 0); !apperr.Is(err, apperr.KindInvalidInput) {
		t.Errorf("expected invalid input for lower-case status, got %v", err)
	}
}

func TestGet_DoctorScope(t *testing.T) {
	f := newFixture()
	mine := uuid.New()
	own := f.create(t, CreateRequest{DoctorID: mine.String()})
	unassigned := f.create(t, CreateRequest{})

	doc := &auth.Identity{ID: uuid.New(), Role: auth.RoleDoctor}
	f.doctors[doc.ID] = mine

	if _, err := f.svc.Get(context.Background(), doc, own.ID); err != nil {
		t.Errorf("own invoice: %v", err)
	}
	if _, err := f.svc.Get(context.Background(), doc, unassigned.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}
