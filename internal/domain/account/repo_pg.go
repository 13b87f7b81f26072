package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
)

type userRepoPG struct{ pool *pgxpool.Pool }

func NewUserRepoPG(pool *pgxpool.Pool) UserRepository { return &userRepoPG{pool: pool} }

func (r *userRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const userCols = `id, full_name, email, phone, role, password_hash, google_id, avatar_url,
	is_active, created_at, updated_at`

func (r *userRepoPG) scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.FullName, &u.Email, &u.Phone, &u.Role, &u.PasswordHash,
		&u.GoogleID, &u.AvatarURL, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepoPG) CreateIfAbsent(ctx context.Context, u *User) (bool, error) {
	u.ID = uuid.New()
	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO users (id, full_name, email, phone, role, password_hash, google_id, avatar_url, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (email) DO NOTHING
		RETURNING created_at, updated_at`,
		u.ID, u.FullName, u.Email, u.Phone, u.Role, u.PasswordHash, u.GoogleID, u.AvatarURL, u.IsActive)
	if err := row.Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *userRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return r.scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
}

func (r *userRepoPG) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE email = $1`, email))
}

func (r *userRepoPG) GetByGoogleID(ctx context.Context, googleID string) (*User, error) {
	return r.scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE google_id = $1`, googleID))
}

func (r *userRepoPG) LinkGoogle(ctx context.Context, id uuid.UUID, googleID string, avatarURL *string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE users SET google_id = $2, avatar_url = COALESCE($3, avatar_url), updated_at = NOW()
		WHERE id = $1`, id, googleID, avatarURL)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *userRepoPG) UpdateProfile(ctx context.Context, id uuid.UUID, fullName string, phone *string) (*User, error) {
	return r.scanUser(r.conn(ctx).QueryRow(ctx, `
		UPDATE users SET full_name = $2, phone = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING `+userCols, id, fullName, phone))
}

func (r *userRepoPG) UpdateRole(ctx context.Context, id uuid.UUID, role auth.Role) (*User, error) {
	return r.scanUser(r.conn(ctx).QueryRow(ctx, `
		UPDATE users SET role = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+userCols, id, role))
}

func (r *userRepoPG) List(ctx context.Context, role auth.Role, limit, offset int) ([]*User, int, error) {
	query := `SELECT ` + userCols + ` FROM users WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM users WHERE 1=1`
	var args []interface{}
	idx := 1

	if role != "" {
		query += fmt.Sprintf(` AND role = $%d`, idx)
		countQuery += fmt.Sprintf(` AND role = $%d`, idx)
		args = append(args, role)
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
	var items []*User
	for rows.Next() {
		u, err := r.scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, u)
	}
	return items, total, rows.Err()
}
