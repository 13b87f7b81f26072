package patient

import (
	"time"

	"github.com/google/uuid"
)

// Patient maps to the patients table. PatientID is assigned by the clinic,
// ID by the store.
type Patient struct {
	ID                    uuid.UUID  `db:"id" json:"id"`
	PatientID             string     `db:"patient_id" json:"patient_id"`
	FullName              string     `db:"full_name" json:"full_name"`
	DateOfBirth           *string    `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Gender                *string    `db:"gender" json:"gender,omitempty"`
	Phone                 *string    `db:"phone" json:"phone,omitempty"`
	Email                 *string    `db:"email" json:"email,omitempty"`
	Address               *string    `db:"address" json:"address,omitempty"`
	BloodGroup            *string    `db:"blood_group" json:"blood_group,omitempty"`
	Allergies             *string    `db:"allergies" json:"allergies,omitempty"`
	MedicalHistory        *string    `db:"medical_history" json:"medical_history,omitempty"`
	EmergencyContactName  *string    `db:"emergency_contact_name" json:"emergency_contact_name,omitempty"`
	EmergencyContactPhone *string    `db:"emergency_contact_phone" json:"emergency_contact_phone,omitempty"`
	UserID                *uuid.UUID `db:"user_id" json:"user_id,omitempty"`
	CreatedBy             *uuid.UUID `db:"created_by" json:"created_by,omitempty"`
	CreatedAt             time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time  `db:"updated_at" json:"updated_at"`
}

// Details are the mutable patient fields shared by create and update.
type Details struct {
	FullName              string `json:"full_name" validate:"required,max=100"`
	DateOfBirth           string `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	Gender                string `json:"gender" validate:"omitempty,oneof=male female other"`
	Phone                 string `json:"phone" validate:"omitempty,max=20"`
	Email                 string `json:"email" validate:"omitempty,email,max=255"`
	Address               string `json:"address" validate:"omitempty,max=500"`
	BloodGroup            string `json:"blood_group" validate:"omitempty,oneof=A+ A- B+ B- AB+ AB- O+ O-"`
	Allergies             string `json:"allergies" validate:"omitempty,max=2000"`
	MedicalHistory        string `json:"medical_history" validate:"omitempty,max=5000"`
	EmergencyContactName  string `json:"emergency_contact_name" validate:"omitempty,max=100"`
	EmergencyContactPhone string `json:"emergency_contact_phone" validate:"omitempty,max=20"`
	UserID                string `json:"user_id" validate:"omitempty,uuid"`
}

type CreateRequest struct {
	PatientID string `json:"patient_id" validate:"required,max=50"`
	Details
}

type UpdateRequest struct {
	Details
}
