package doctor

import (
	"time"

	"github.com/google/uuid"
)

// Doctor maps to the doctors table. UserID links the profile to a
// doctor-role login.
type Doctor struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	UserID             *uuid.UUID `db:"user_id" json:"user_id,omitempty"`
	FullName           string     `db:"full_name" json:"full_name"`
	Email              *string    `db:"email" json:"email,omitempty"`
	Phone              *string    `db:"phone" json:"phone,omitempty"`
	Specialization     string     `db:"specialization" json:"specialization"`
	RegistrationNumber string     `db:"registration_number" json:"registration_number"`
	Qualifications     *string    `db:"qualifications" json:"qualifications,omitempty"`
	ExperienceYears    int        `db:"experience_years" json:"experience_years"`
	ConsultationFee    float64    `db:"consultation_fee" json:"consultation_fee"`
	IsAvailable        bool       `db:"is_available" json:"is_available"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

type CreateRequest struct {
	UserID             string  `json:"user_id" validate:"omitempty,uuid"`
	FullName           string  `json:"full_name" validate:"required,max=100"`
	Email              string  `json:"email" validate:"omitempty,email,max=255"`
	Phone              string  `json:"phone" validate:"omitempty,max=20"`
	Specialization     string  `json:"specialization" validate:"required,max=100"`
	RegistrationNumber string  `json:"registration_number" validate:"required,max=50"`
	Qualifications     string  `json:"qualifications" validate:"omitempty,max=500"`
	ExperienceYears    int     `json:"experience_years" validate:"min=0,max=70"`
	ConsultationFee    float64 `json:"consultation_fee" validate:"min=0"`
	IsAvailable        *bool   `json:"is_available"`
}
