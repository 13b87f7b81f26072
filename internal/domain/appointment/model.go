package appointment

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusScheduled = "scheduled"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusNoShow    = "no-show"
)

// ValidStatus reports whether s is one of the appointment statuses.
func ValidStatus(s string) bool {
	switch s {
	case StatusScheduled, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Appointment maps to the appointments table. PatientName and DoctorName are
// joined in on reads.
type Appointment struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	PatientID       uuid.UUID  `db:"patient_id" json:"patient_id"`
	DoctorID        uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	AppointmentDate string     `db:"appointment_date" json:"appointment_date"`
	AppointmentTime string     `db:"appointment_time" json:"appointment_time"`
	Reason          *string    `db:"reason" json:"reason,omitempty"`
	Notes           *string    `db:"notes" json:"notes,omitempty"`
	Status          string     `db:"status" json:"status"`
	CreatedBy       *uuid.UUID `db:"created_by" json:"created_by,omitempty"`
	ReminderSentAt  *time.Time `db:"reminder_sent_at" json:"reminder_sent_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`

	PatientName string `db:"patient_name" json:"patient_name,omitempty"`
	DoctorName  string `db:"doctor_name" json:"doctor_name,omitempty"`
}

type CreateRequest struct {
	// PatientID is ignored for patient-role callers, who always book for
	// their own record.
	PatientID       string `json:"patient_id" validate:"omitempty,uuid"`
	DoctorID        string `json:"doctor_id" validate:"required,uuid"`
	AppointmentDate string `json:"appointment_date" validate:"required,datetime=2006-01-02"`
	AppointmentTime string `json:"appointment_time" validate:"required,clock"`
	Reason          string `json:"reason" validate:"omitempty,max=500"`
	Notes           string `json:"notes" validate:"omitempty,max=2000"`
}

type StatusRequest struct {
	Status string `json:"status" validate:"required,oneof=scheduled completed cancelled no-show"`
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	Status    string
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	Date      string
}

// StatusChange is the payload of the status_changed event.
type StatusChange struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	From          string    `json:"from"`
	To            string    `json:"to"`
	ChangedBy     uuid.UUID `json:"changed_by"`
}
