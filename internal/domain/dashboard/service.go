package dashboard

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
)

const (
	dateLayout    = "2006-01-02"
	patientWindow = 30 * 24 * time.Hour
	chartDays     = 7
	chartMonths   = 6
	recentLimit   = 5
)

type DoctorDirectory interface {
	DoctorIDForUser(ctx context.Context, userID uuid.UUID) (uuid.UUID, error)
}

type PatientDirectory interface {
	PatientIDForUser(ctx context.Context, userID uuid.UUID) (uuid.UUID, error)
}

// Service computes dashboard figures on every call. The queries behind one
// response are independent and may observe different snapshots.
type Service struct {
	repo     Repository
	doctors  DoctorDirectory
	patients PatientDirectory
	now      func() time.Time
}

func NewService(repo Repository, doctors DoctorDirectory, patients PatientDirectory) *Service {
	return &Service{repo: repo, doctors: doctors, patients: patients, now: time.Now}
}

// scope resolves the caller's restriction. ok is false for a doctor or
// patient login without a linked record, whose figures are all zero.
func (s *Service) scope(ctx context.Context, ident *auth.Identity) (sc Scope, ok bool, err error) {
	var id uuid.UUID
	switch ident.Role {
	case auth.RoleDoctor:
		id, err = s.doctors.DoctorIDForUser(ctx, ident.ID)
		sc.DoctorID = &id
	case auth.RolePatient:
		id, err = s.patients.PatientIDForUser(ctx, ident.ID)
		sc.PatientID = &id
	default:
		return sc, true, nil
	}
	if apperr.IsNotFound(err) {
		return Scope{}, false, nil
	}
	if err != nil {
		return Scope{}, false, err
	}
	return sc, true, nil
}

func (s *Service) Stats(ctx context.Context, ident *auth.Identity) (*Stats, error) {
	withMoney := ident.Role.Can(auth.CapDashboardRevenue)
	st := &Stats{}
	if withMoney {
		st.Revenue = new(float64)
		st.PendingInvoices = new(int)
	}

	sc, ok, err := s.scope(ctx, ident)
	if err != nil || !ok {
		return st, err
	}

	now := s.now()
	if st.TodayAppointments, err = s.repo.CountAppointmentsOn(ctx, sc, now.Format(dateLayout)); err != nil {
		return nil, err
	}
	if st.RecentPatients, err = s.repo.CountPatientsBetween(ctx, sc, now.Add(-patientWindow).Format(dateLayout), now.Format(dateLayout)); err != nil {
		return nil, err
	}
	if withMoney {
		if *st.Revenue, err = s.repo.RevenueSince(ctx, sc, now.AddDate(0, 0, -chartDays)); err != nil {
			return nil, err
		}
		if *st.PendingInvoices, err = s.repo.CountPendingInvoices(ctx, sc); err != nil {
			return nil, err
		}
	}
	return st, nil
}

// AppointmentsData returns per-status counts for the last seven days,
// oldest first, with empty days included.
func (s *Service) AppointmentsData(ctx context.Context, ident *auth.Identity) ([]DailyAppointments, error) {
	now := s.now()
	start := time.Date(now.Year(), now.Month(), now.Day()-(chartDays-1), 0, 0, 0, 0, now.Location())

	days := make([]DailyAppointments, chartDays)
	index := make(map[string]*DailyAppointments, chartDays)
	for i := range days {
		days[i].Date = start.AddDate(0, 0, i).Format(dateLayout)
		index[days[i].Date] = &days[i]
	}

	sc, ok, err := s.scope(ctx, ident)
	if err != nil || !ok {
		return days, err
	}
	counts, err := s.repo.StatusCountsSince(ctx, sc, start.Format(dateLayout))
	if err != nil {
		return nil, err
	}
	for _, c := range counts {
		d, ok := index[c.Date]
		if !ok {
			continue
		}
		switch c.Status {
		case "scheduled":
			d.Scheduled += c.Count
		case "completed":
			d.Completed += c.Count
		case "cancelled":
			d.Cancelled += c.Count
		case "no-show":
			d.NoShow += c.Count
		}
		d.Total += c.Count
	}
	return days, nil
}

// RevenueData returns paid totals for the current and previous five
// months, oldest first, with empty months included.
func (s *Service) RevenueData(ctx context.Context, ident *auth.Identity) ([]MonthlyRevenue, error) {
	if !ident.Role.Can(auth.CapDashboardRevenue) {
		return nil, apperr.Forbidden("insufficient permissions")
	}
	now := s.now()
	start := time.Date(now.Year(), now.Month()-(chartMonths-1), 1, 0, 0, 0, 0, now.Location())

	months := make([]MonthlyRevenue, chartMonths)
	index := make(map[string]*MonthlyRevenue, chartMonths)
	for i := range months {
		months[i].Month = start.AddDate(0, i, 0).Format("2006-01")
		index[months[i].Month] = &months[i]
	}

	sc, ok, err := s.scope(ctx, ident)
	if err != nil || !ok {
		return months, err
	}
	totals, err := s.repo.MonthlyRevenueSince(ctx, sc, start)
	if err != nil {
		return nil, err
	}
	for _, t := range totals {
		if m, ok := index[t.Month]; ok {
			m.Total = t.Total
		}
	}
	return months, nil
}

func (s *Service) RecentAppointments(ctx context.Context, ident *auth.Identity) ([]*RecentAppointment, error) {
	sc, ok, err := s.scope(ctx, ident)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []*RecentAppointment{}, nil
	}
	items, err := s.repo.Recent(ctx, sc, recentLimit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*RecentAppointment{}
	}
	return items, nil
}
