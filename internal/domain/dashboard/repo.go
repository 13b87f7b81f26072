package dashboard

import (
	"context"
	"time"
)

// Repository runs the aggregate queries. Dates are YYYY-MM-DD strings in
// clinic local time.
type Repository interface {
	CountAppointmentsOn(ctx context.Context, s Scope, day string) (int, error)
	// CountPatientsBetween counts distinct patients with an appointment dated
	// from through to, both inclusive.
	CountPatientsBetween(ctx context.Context, s Scope, from, to string) (int, error)
	RevenueSince(ctx context.Context, s Scope, since time.Time) (float64, error)
	CountPendingInvoices(ctx context.Context, s Scope) (int, error)
	StatusCountsSince(ctx context.Context, s Scope, day string) ([]StatusCount, error)
	MonthlyRevenueSince(ctx context.Context, s Scope, since time.Time) ([]MonthlyRevenue, error)
	Recent(ctx context.Context, s Scope, limit int) ([]*RecentAppointment, error)
}
