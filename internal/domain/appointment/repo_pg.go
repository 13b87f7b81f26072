package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/notification"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const apptSelect = `SELECT a.id, a.patient_id, a.doctor_id, a.appointment_date::text,
	to_char(a.appointment_time, 'HH24:MI'), a.reason, a.notes, a.status, a.created_by,
	a.reminder_sent_at, a.created_at, a.updated_at, p.full_name, d.full_name
	FROM appointments a
	JOIN patients p ON p.id = a.patient_id
	JOIN doctors d ON d.id = a.doctor_id`

func (r *repoPG) scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.AppointmentDate, &a.AppointmentTime,
		&a.Reason, &a.Notes, &a.Status, &a.CreatedBy, &a.ReminderSentAt, &a.CreatedAt, &a.UpdatedAt,
		&a.PatientName, &a.DoctorName)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *repoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, appointment_date, appointment_time,
			reason, notes, status, created_by)
		VALUES ($1,$2,$3,$4::date,$5::time,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.DoctorID, a.AppointmentDate, a.AppointmentTime,
		a.Reason, a.Notes, a.Status, a.CreatedBy).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.scanAppointment(r.conn(ctx).QueryRow(ctx, apptSelect+` WHERE a.id = $1`, id))
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Appointment, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.Status != "" {
		where += fmt.Sprintf(` AND a.status = $%d`, idx)
		args = append(args, f.Status)
		idx++
	}
	if f.DoctorID != nil {
		where += fmt.Sprintf(` AND a.doctor_id = $%d`, idx)
		args = append(args, *f.DoctorID)
		idx++
	}
	if f.PatientID != nil {
		where += fmt.Sprintf(` AND a.patient_id = $%d`, idx)
		args = append(args, *f.PatientID)
		idx++
	}
	if f.Date != "" {
		where += fmt.Sprintf(` AND a.appointment_date = $%d::date`, idx)
		args = append(args, f.Date)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointments a`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := apptSelect + where + fmt.Sprintf(` ORDER BY a.appointment_date DESC, a.appointment_time DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := r.scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *repoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE appointments SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

const noticeSelect = `SELECT a.id, p.full_name, COALESCE(p.email, ''), d.full_name,
	a.appointment_date::text, to_char(a.appointment_time, 'HH24:MI')
	FROM appointments a
	JOIN patients p ON p.id = a.patient_id
	JOIN doctors d ON d.id = a.doctor_id`

func scanNotice(row pgx.Row) (*notification.AppointmentNotice, error) {
	var n notification.AppointmentNotice
	if err := row.Scan(&n.AppointmentID, &n.PatientName, &n.PatientEmail, &n.DoctorName, &n.Date, &n.Time); err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *repoPG) Notice(ctx context.Context, id uuid.UUID) (*notification.AppointmentNotice, error) {
	return scanNotice(r.conn(ctx).QueryRow(ctx, noticeSelect+` WHERE a.id = $1`, id))
}

const localTimestamp = "2006-01-02 15:04:05"

func (r *repoPG) DueForReminder(ctx context.Context, from, to time.Time) ([]*notification.AppointmentNotice, error) {
	rows, err := r.conn(ctx).Query(ctx, noticeSelect+`
		WHERE a.status = 'scheduled'
			AND a.reminder_sent_at IS NULL
			AND p.email IS NOT NULL
			AND (a.appointment_date + a.appointment_time) BETWEEN $1::timestamp AND $2::timestamp
		ORDER BY a.appointment_date, a.appointment_time`,
		from.Format(localTimestamp), to.Format(localTimestamp))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*notification.AppointmentNotice
	for rows.Next() {
		n, err := scanNotice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *repoPG) MarkReminded(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointments SET reminder_sent_at = NOW()
		WHERE id = $1 AND reminder_sent_at IS NULL`, id)
	return err
}
