package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

// scoped appends the scope predicates for table alias t, numbering
// placeholders after args.
func scoped(s Scope, t string, args []interface{}) (string, []interface{}) {
	var clause string
	if s.DoctorID != nil {
		args = append(args, *s.DoctorID)
		clause += fmt.Sprintf(` AND %s.doctor_id = $%d`, t, len(args))
	}
	if s.PatientID != nil {
		args = append(args, *s.PatientID)
		clause += fmt.Sprintf(` AND %s.patient_id = $%d`, t, len(args))
	}
	return clause, args
}

func (r *repoPG) CountAppointmentsOn(ctx context.Context, s Scope, day string) (int, error) {
	clause, args := scoped(s, "a", []interface{}{day})
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM appointments a WHERE a.appointment_date = $1::date`+clause, args...).Scan(&n)
	return n, err
}

func (r *repoPG) CountPatientsBetween(ctx context.Context, s Scope, from, to string) (int, error) {
	clause, args := scoped(s, "a", []interface{}{from, to})
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(DISTINCT a.patient_id) FROM appointments a
		WHERE a.appointment_date BETWEEN $1::date AND $2::date`+clause,
		args...).Scan(&n)
	return n, err
}

func (r *repoPG) RevenueSince(ctx context.Context, s Scope, since time.Time) (float64, error) {
	clause, args := scoped(s, "i", []interface{}{since})
	var total float64
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COALESCE(SUM(i.amount), 0)::float8 FROM invoices i
		WHERE i.status = 'Paid' AND i.paid_at >= $1`+clause, args...).Scan(&total)
	return total, err
}

func (r *repoPG) CountPendingInvoices(ctx context.Context, s Scope) (int, error) {
	clause, args := scoped(s, "i", nil)
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM invoices i WHERE i.status = 'Pending'`+clause, args...).Scan(&n)
	return n, err
}

func (r *repoPG) StatusCountsSince(ctx context.Context, s Scope, day string) ([]StatusCount, error) {
	clause, args := scoped(s, "a", []interface{}{day})
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT a.appointment_date::text, a.status, COUNT(*)
		FROM appointments a
		WHERE a.appointment_date >= $1::date`+clause+`
		GROUP BY a.appointment_date, a.status
		ORDER BY a.appointment_date`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StatusCount
	for rows.Next() {
		var sc StatusCount
		if err := rows.Scan(&sc.Date, &sc.Status, &sc.Count); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (r *repoPG) MonthlyRevenueSince(ctx context.Context, s Scope, since time.Time) ([]MonthlyRevenue, error) {
	clause, args := scoped(s, "i", []interface{}{since})
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT to_char(date_trunc('month', i.paid_at), 'YYYY-MM') AS month,
			SUM(i.amount)::float8
		FROM invoices i
		WHERE i.status = 'Paid' AND i.paid_at >= $1`+clause+`
		GROUP BY month
		ORDER BY month`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MonthlyRevenue
	for rows.Next() {
		var m MonthlyRevenue
		if err := rows.Scan(&m.Month, &m.Total); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *repoPG) Recent(ctx context.Context, s Scope, limit int) ([]*RecentAppointment, error) {
	clause, args := scoped(s, "a", nil)
	args = append(args, limit)
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT a.id, p.full_name, d.full_name, a.appointment_date::text,
			to_char(a.appointment_time, 'HH24:MI'), a.status
		FROM appointments a
		JOIN patients p ON p.id = a.patient_id
		JOIN doctors d ON d.id = a.doctor_id
		WHERE 1=1`+clause+fmt.Sprintf(`
		ORDER BY a.created_at DESC
		LIMIT $%d`, len(args)), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*RecentAppointment
	for rows.Next() {
		var ra RecentAppointment
		if err := rows.Scan(&ra.ID, &ra.PatientName, &ra.DoctorName, &ra.AppointmentDate,
			&ra.AppointmentTime, &ra.Status); err != nil {
			return nil, err
		}
		out = append(out, &ra)
	}
	return out, rows.Err()
}
