package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const invoiceSelect = `SELECT i.id, i.invoice_number, i.appointment_id, i.patient_id, i.doctor_id,
	i.amount::float8, i.status, i.payment_method, i.paid_at, i.description, i.created_at,
	i.updated_at, p.full_name
	FROM invoices i
	JOIN patients p ON p.id = i.patient_id`

func (r *repoPG) scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.InvoiceNumber, &inv.AppointmentID, &inv.PatientID, &inv.DoctorID,
		&inv.Amount, &inv.Status, &inv.PaymentMethod, &inv.PaidAt, &inv.Description,
		&inv.CreatedAt, &inv.UpdatedAt, &inv.PatientName)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *repoPG) CreateIfAbsent(ctx context.Context, inv *Invoice) (bool, error) {
	inv.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO invoices (id, invoice_number, appointment_id, patient_id, doctor_id, amount,
			status, payment_method, paid_at, description)
		VALUES ($1, $2, $3, $4,
			COALESCE($5, (SELECT doctor_id FROM appointments WHERE id = $3)),
			$6, $7, $8, $9, $10)
		ON CONFLICT (invoice_number) DO NOTHING
		RETURNING doctor_id, created_at, updated_at`,
		inv.ID, inv.InvoiceNumber, inv.AppointmentID, inv.PatientID, inv.DoctorID, inv.Amount,
		inv.Status, inv.PaymentMethod, inv.PaidAt, inv.Description).
		Scan(&inv.DoctorID, &inv.CreatedAt, &inv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	return r.scanInvoice(r.conn(ctx).QueryRow(ctx, invoiceSelect+` WHERE i.id = $1`, id))
}

func (r *repoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	return r.scanInvoice(r.conn(ctx).QueryRow(ctx, invoiceSelect+` WHERE i.id = $1 FOR UPDATE OF i`, id))
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Invoice, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.Status != "" {
		where += fmt.Sprintf(` AND i.status = $%d`, idx)
		args = append(args, f.Status)
		idx++
	}
	if f.PatientID != nil {
		where += fmt.Sprintf(` AND i.patient_id = $%d`, idx)
		args = append(args, *f.PatientID)
		idx++
	}
	if f.DoctorID != nil {
		where += fmt.Sprintf(` AND i.doctor_id = $%d`, idx)
		args = append(args, *f.DoctorID)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM invoices i`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := invoiceSelect + where + fmt.Sprintf(` ORDER BY i.created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Invoice
	for rows.Next() {
		inv, err := r.scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, inv)
	}
	return items, total, rows.Err()
}

func (r *repoPG) MarkPaid(ctx context.Context, id uuid.UUID, method string, paidAt time.Time) (*Invoice, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE invoices SET status = $2, payment_method = $3, paid_at = $4, updated_at = NOW()
		WHERE id = $1`, id, StatusPaid, method, paidAt)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, pgx.ErrNoRows
	}
	return r.GetByID(ctx, id)
}
