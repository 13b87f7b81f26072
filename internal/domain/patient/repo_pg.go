package patient

import (
	"context"
	"errors"
	"fmt"

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

const patientCols = `id, patient_id, full_name, date_of_birth::text, gender, phone, email, address,
	blood_group, allergies, medical_history, emergency_contact_name, emergency_contact_phone,
	user_id, created_by, created_at, updated_at`

func (r *repoPG) scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.PatientID, &p.FullName, &p.DateOfBirth, &p.Gender, &p.Phone, &p.Email,
		&p.Address, &p.BloodGroup, &p.Allergies, &p.MedicalHistory, &p.EmergencyContactName,
		&p.EmergencyContactPhone, &p.UserID, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repoPG) CreateIfAbsent(ctx context.Context, p *Patient) (bool, error) {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (id, patient_id, full_name, date_of_birth, gender, phone, email, address,
			blood_group, allergies, medical_history, emergency_contact_name, emergency_contact_phone,
			user_id, created_by)
		VALUES ($1,$2,$3,$4::date,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (patient_id) DO NOTHING
		RETURNING created_at, updated_at`,
		p.ID, p.PatientID, p.FullName, p.DateOfBirth, p.Gender, p.Phone, p.Email, p.Address,
		p.BloodGroup, p.Allergies, p.MedicalHistory, p.EmergencyContactName, p.EmergencyContactPhone,
		p.UserID, p.CreatedBy).Scan(&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *repoPG) GetByPatientID(ctx context.Context, patientID string) (*Patient, error) {
	return r.scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE patient_id = $1`, patientID))
}

func (r *repoPG) GetByUserID(ctx context.Context, userID uuid.UUID) (*Patient, error) {
	return r.scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE user_id = $1`, userID))
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	updated, err := r.scanPatient(r.conn(ctx).QueryRow(ctx, `
		UPDATE patients SET full_name=$2, date_of_birth=$3::date, gender=$4, phone=$5, email=$6,
			address=$7, blood_group=$8, allergies=$9, medical_history=$10,
			emergency_contact_name=$11, emergency_contact_phone=$12, user_id=$13, updated_at=NOW()
		WHERE patient_id = $1
		RETURNING `+patientCols,
		p.PatientID, p.FullName, p.DateOfBirth, p.Gender, p.Phone, p.Email, p.Address,
		p.BloodGroup, p.Allergies, p.MedicalHistory, p.EmergencyContactName,
		p.EmergencyContactPhone, p.UserID))
	if err != nil {
		return err
	}
	*p = *updated
	return nil
}

func (r *repoPG) Delete(ctx context.Context, patientID string) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patients WHERE patient_id = $1`, patientID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *repoPG) Search(ctx context.Context, term string, limit, offset int) ([]*Patient, int, error) {
	query := `SELECT ` + patientCols + ` FROM patients WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM patients WHERE 1=1`
	var args []interface{}
	idx := 1

	if term != "" {
		clause := fmt.Sprintf(` AND (full_name ILIKE $%d OR patient_id ILIKE $%d)`, idx, idx)
		query += clause
		countQuery += clause
		args = append(args, db.ContainsPattern(term))
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := r.scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}
