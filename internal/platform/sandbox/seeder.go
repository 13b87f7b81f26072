// Package sandbox seeds a database with reproducible demo data: staff
// accounts, doctors, patients, appointments and invoices. Records are created
// through the domain services so every validation and uniqueness rule
// applies.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/domain/account"
	"github.com/clinic/clinic/internal/domain/appointment"
	"github.com/clinic/clinic/internal/domain/billing"
	"github.com/clinic/clinic/internal/domain/doctor"
	"github.com/clinic/clinic/internal/domain/patient"
	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
)

var (
	ErrProduction    = errors.New("refusing to seed a production environment")
	ErrAlreadySeeded = errors.New("database already contains the seed admin account")
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// SeedConfig controls the volume of generated data.
type SeedConfig struct {
	Environment            string
	DoctorCount            int
	PatientCount           int
	AppointmentsPerPatient int
	// Password is shared by every seeded account.
	Password string
	Seed     int64
}

// DefaultSeedConfig returns a small, demo-sized dataset.
func DefaultSeedConfig() SeedConfig {
	return SeedConfig{
		Environment:            "development",
		DoctorCount:            4,
		PatientCount:           20,
		AppointmentsPerPatient: 2,
		Password:               "clinic-demo-1",
		Seed:                   1,
	}
}

// Seed account emails.
const (
	AdminEmail        = "admin@clinic.local"
	ReceptionistEmail = "reception@clinic.local"
	PatientEmail      = "patient@clinic.local"
)

// SeedResult summarizes a seed run.
type SeedResult struct {
	Users        int           `json:"users"`
	Doctors      int           `json:"doctors"`
	Patients     int           `json:"patients"`
	Appointments int           `json:"appointments"`
	Invoices     int           `json:"invoices"`
	Duration     time.Duration `json:"duration"`
}

// ---------------------------------------------------------------------------
// Services
// ---------------------------------------------------------------------------

type Accounts interface {
	Provision(ctx context.Context, req account.RegisterRequest, role auth.Role) (*account.User, error)
}

type Doctors interface {
	Create(ctx context.Context, req doctor.CreateRequest) (*doctor.Doctor, error)
}

type Patients interface {
	Create(ctx context.Context, createdBy uuid.UUID, req patient.CreateRequest) (*patient.Patient, error)
}

type Appointments interface {
	Create(ctx context.Context, ident *auth.Identity, req appointment.CreateRequest) (*appointment.Appointment, error)
	UpdateStatus(ctx context.Context, ident *auth.Identity, id uuid.UUID, status string) (*appointment.Appointment, error)
}

type Invoices interface {
	Create(ctx context.Context, req billing.CreateRequest) (*billing.Invoice, error)
}

// Services bundles the domain services the seeder writes through.
type Services struct {
	Accounts     Accounts
	Doctors      Doctors
	Patients     Patients
	Appointments Appointments
	Invoices     Invoices
}

// ---------------------------------------------------------------------------
// Data pools
// ---------------------------------------------------------------------------

var (
	firstNames = []string{
		"Amara", "Ben", "Chloe", "Daniel", "Elena", "Farid", "Grace", "Hiro",
		"Isla", "Jonah", "Keira", "Liam", "Maya", "Noah", "Olivia", "Priya",
		"Quinn", "Rafael", "Sofia", "Tomas", "Uma", "Victor", "Wen", "Yusuf",
	}
	lastNames = []string{
		"Adeyemi", "Baker", "Chen", "Diaz", "Evans", "Fischer", "Gupta",
		"Hansen", "Ito", "Jones", "Kowalski", "Lopez", "Mensah", "Novak",
		"Okafor", "Patel", "Rossi", "Silva", "Tanaka", "Walsh",
	}
	streets = []string{
		"12 Harbour Rd", "48 Mill Lane", "7 Orchard Close", "301 River St",
		"19 Station Ave", "88 Kings Way", "5 Elm Grove", "233 Park Terrace",
	}
	specializations = []string{
		"General Practice", "Cardiology", "Dermatology", "Pediatrics",
		"Orthopedics", "Neurology", "Gynecology", "Psychiatry",
	}
	qualifications = []string{"MBBS", "MBBS, MD", "MBBS, MS", "MD, FACP", "MBBS, DNB"}
	bloodGroups    = []string{"A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-"}
	genders        = []string{"male", "female", "other"}
	allergies      = []string{"", "", "Penicillin", "Peanuts", "Latex", "Sulfa drugs"}
	reasons        = []string{
		"Annual checkup", "Follow-up visit", "Persistent cough", "Back pain",
		"Skin rash", "Blood pressure review", "Vaccination", "Headaches",
	}
	paymentMethods = []string{"cash", "card", "insurance"}
)

// ---------------------------------------------------------------------------
// DataGenerator
// ---------------------------------------------------------------------------

// DataGenerator produces request payloads from a seeded source so runs with
// the same seed are reproducible.
type DataGenerator struct {
	rng     *rand.Rand
	counter int
}

// NewDataGenerator returns a generator for seed. If seed is 0 a time-based
// seed is chosen.
func NewDataGenerator(seed int64) *DataGenerator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &DataGenerator{rng: rand.New(rand.NewSource(seed))}
}

func (g *DataGenerator) pick(pool []string) string {
	return pool[g.rng.Intn(len(pool))]
}

func (g *DataGenerator) name() string {
	return g.pick(firstNames) + " " + g.pick(lastNames)
}

func (g *DataGenerator) randomDate(minYear, maxYear int) string {
	y := minYear + g.rng.Intn(maxYear-minYear+1)
	m := 1 + g.rng.Intn(12)
	d := 1 + g.rng.Intn(28)
	return fmt.Sprintf("%04d-%02d-%02d", y, m, d)
}

func (g *DataGenerator) randomPhone() string {
	return fmt.Sprintf("+1-%03d-%03d-%04d", 200+g.rng.Intn(800), 200+g.rng.Intn(800), g.rng.Intn(10000))
}

// Doctor returns a doctor profile request. n numbers the registration.
func (g *DataGenerator) Doctor(n int, userID uuid.UUID, fullName, email string) doctor.CreateRequest {
	available := g.rng.Intn(5) > 0
	return doctor.CreateRequest{
		UserID:             userID.String(),
		FullName:           fullName,
		Email:              email,
		Phone:              g.randomPhone(),
		Specialization:     specializations[n%len(specializations)],
		RegistrationNumber: fmt.Sprintf("REG-%05d", n+1),
		Qualifications:     g.pick(qualifications),
		ExperienceYears:    2 + g.rng.Intn(30),
		ConsultationFee:    float64(40 + 10*g.rng.Intn(12)),
		IsAvailable:        &available,
	}
}

// Patient returns a patient record request with patient_id PAT-NNNN.
func (g *DataGenerator) Patient(n int) patient.CreateRequest {
	first, last := g.pick(firstNames), g.pick(lastNames)
	return patient.CreateRequest{
		PatientID: fmt.Sprintf("PAT-%04d", n+1),
		Details: patient.Details{
			FullName:              first + " " + last,
			DateOfBirth:           g.randomDate(1945, 2020),
			Gender:                g.pick(genders),
			Phone:                 g.randomPhone(),
			Email:                 fmt.Sprintf("%s.%s.%d@example.com", strings.ToLower(first), strings.ToLower(last), n+1),
			Address:               g.pick(streets),
			BloodGroup:            g.pick(bloodGroups),
			Allergies:             g.pick(allergies),
			EmergencyContactName:  g.name(),
			EmergencyContactPhone: g.randomPhone(),
		},
	}
}

// Appointment returns a booking within 14 days either side of today on a
// half-hour slot between 09:00 and 16:30.
func (g *DataGenerator) Appointment(today time.Time, patientID, doctorID uuid.UUID) appointment.CreateRequest {
	day := today.AddDate(0, 0, g.rng.Intn(29)-14)
	slot := g.rng.Intn(16)
	return appointment.CreateRequest{
		PatientID:       patientID.String(),
		DoctorID:        doctorID.String(),
		AppointmentDate: day.Format("2006-01-02"),
		AppointmentTime: fmt.Sprintf("%02d:%02d", 9+slot/2, 30*(slot%2)),
		Reason:          g.pick(reasons),
	}
}

// PastStatus picks an outcome for an appointment that already happened.
func (g *DataGenerator) PastStatus() string {
	switch n := g.rng.Intn(10); {
	case n < 7:
		return appointment.StatusCompleted
	case n < 9:
		return appointment.StatusNoShow
	default:
		return appointment.StatusCancelled
	}
}

// ---------------------------------------------------------------------------
// Seeder
// ---------------------------------------------------------------------------

// Seeder writes a generated dataset through the domain services.
type Seeder struct {
	generator *DataGenerator
	config    SeedConfig
	svc       Services
	logger    zerolog.Logger
	now       func() time.Time
}

func NewSeeder(config SeedConfig, svc Services, logger zerolog.Logger) *Seeder {
	return &Seeder{
		generator: NewDataGenerator(config.Seed),
		config:    config,
		svc:       svc,
		logger:    logger,
		now:       time.Now,
	}
}

type seededDoctor struct {
	id  uuid.UUID
	fee float64
}

// Seed creates the dataset. It refuses to run in production and stops with
// ErrAlreadySeeded when the admin account exists.
func (s *Seeder) Seed(ctx context.Context) (*SeedResult, error) {
	if s.config.Environment == "production" {
		return nil, ErrProduction
	}
	start := s.now()
	res := &SeedResult{}

	admin, err := s.user(ctx, "Clinic Admin", AdminEmail, auth.RoleAdmin)
	if apperr.Is(err, apperr.KindDuplicate) {
		return nil, ErrAlreadySeeded
	}
	if err != nil {
		return nil, fmt.Errorf("seed admin: %w", err)
	}
	reception, err := s.user(ctx, "Front Desk", ReceptionistEmail, auth.RoleReceptionist)
	if err != nil {
		return nil, fmt.Errorf("seed receptionist: %w", err)
	}
	res.Users = 2

	doctors := make([]seededDoctor, 0, s.config.DoctorCount)
	for i := 0; i < s.config.DoctorCount; i++ {
		name := "Dr. " + s.generator.name()
		email := fmt.Sprintf("doctor%d@clinic.local", i+1)
		u, err := s.user(ctx, name, email, auth.RoleDoctor)
		if err != nil {
			return nil, fmt.Errorf("seed doctor account %d: %w", i+1, err)
		}
		d, err := s.svc.Doctors.Create(ctx, s.generator.Doctor(i, u.ID, name, email))
		if err != nil {
			return nil, fmt.Errorf("seed doctor %d: %w", i+1, err)
		}
		doctors = append(doctors, seededDoctor{id: d.ID, fee: d.ConsultationFee})
		res.Users++
		res.Doctors++
	}

	desk := reception.Identity()
	today := s.now()
	for i := 0; i < s.config.PatientCount; i++ {
		req := s.generator.Patient(i)
		if i == 0 {
			// The first patient gets a portal login.
			u, err := s.user(ctx, req.FullName, PatientEmail, auth.RolePatient)
			if err != nil {
				return nil, fmt.Errorf("seed patient account: %w", err)
			}
			req.UserID = u.ID.String()
			res.Users++
		}
		p, err := s.svc.Patients.Create(ctx, admin.ID, req)
		if err != nil {
			return nil, fmt.Errorf("seed patient %s: %w", req.PatientID, err)
		}
		res.Patients++

		if len(doctors) == 0 {
			continue
		}
		for j := 0; j < s.config.AppointmentsPerPatient; j++ {
			doc := doctors[s.generator.rng.Intn(len(doctors))]
			booked, err := s.svc.Appointments.Create(ctx, desk, s.generator.Appointment(today, p.ID, doc.id))
			if err != nil {
				return nil, fmt.Errorf("seed appointment: %w", err)
			}
			res.Appointments++

			if booked.AppointmentDate >= today.Format("2006-01-02") {
				continue
			}
			status := s.generator.PastStatus()
			if _, err := s.svc.Appointments.UpdateStatus(ctx, desk, booked.ID, status); err != nil {
				return nil, fmt.Errorf("seed appointment status: %w", err)
			}
			if status != appointment.StatusCompleted {
				continue
			}
			if err := s.invoice(ctx, booked, doc.fee); err != nil {
				return nil, err
			}
			res.Invoices++
		}
	}

	res.Duration = s.now().Sub(start)
	s.logger.Info().
		Int("users", res.Users).
		Int("doctors", res.Doctors).
		Int("patients", res.Patients).
		Int("appointments", res.Appointments).
		Int("invoices", res.Invoices).
		Dur("duration", res.Duration).
		Msg("seed complete")
	return res, nil
}

func (s *Seeder) user(ctx context.Context, name, email string, role auth.Role) (*account.User, error) {
	return s.svc.Accounts.Provision(ctx, account.RegisterRequest{
		FullName: name,
		Email:    email,
		Phone:    s.generator.randomPhone(),
		Password: s.config.Password,
	}, role)
}

// invoice bills a completed appointment; most are already paid.
func (s *Seeder) invoice(ctx context.Context, a *appointment.Appointment, fee float64) error {
	if fee <= 0 {
		fee = 50
	}
	req := billing.CreateRequest{
		PatientID:     a.PatientID.String(),
		AppointmentID: a.ID.String(),
		DoctorID:      a.DoctorID.String(),
		Amount:        fee,
		Status:        billing.StatusPending,
		Description:   "Consultation on " + a.AppointmentDate,
	}
	if s.generator.rng.Intn(4) > 0 {
		req.Status = billing.StatusPaid
		req.PaymentMethod = s.generator.pick(paymentMethods)
	}
	if _, err := s.svc.Invoices.Create(ctx, req); err != nil {
		return fmt.Errorf("seed invoice: %w", err)
	}
	return nil
}
