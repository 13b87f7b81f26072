package billing

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusPaid    = "Paid"
	StatusPending = "Pending"
)

// Invoice maps to the invoices table.
type Invoice struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	InvoiceNumber string     `db:"invoice_number" json:"invoice_number"`
	AppointmentID *uuid.UUID `db:"appointment_id" json:"appointment_id,omitempty"`
	PatientID     uuid.UUID  `db:"patient_id" json:"patient_id"`
	DoctorID      *uuid.UUID `db:"doctor_id" json:"doctor_id,omitempty"`
	Amount        float64    `db:"amount" json:"amount"`
	Status        string     `db:"status" json:"status"`
	PaymentMethod *string    `db:"payment_method" json:"payment_method,omitempty"`
	PaidAt        *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	Description   *string    `db:"description" json:"description,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`

	PatientName string `db:"patient_name" json:"patient_name,omitempty"`
}

type CreateRequest struct {
	PatientID     string  `json:"patient_id" validate:"required,uuid"`
	AppointmentID string  `json:"appointment_id" validate:"omitempty,uuid"`
	DoctorID      string  `json:"doctor_id" validate:"omitempty,uuid"`
	Amount        float64 `json:"amount" validate:"required,gt=0"`
	Status        string  `json:"status" validate:"omitempty,oneof=Paid Pending"`
	PaymentMethod string  `json:"payment_method" validate:"omitempty,max=50"`
	Description   string  `json:"description" validate:"omitempty,max=1000"`
}

type PayRequest struct {
	PaymentMethod string `json:"payment_method" validate:"required,max=50"`
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	Status    string
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
}

// Payment is the payload of the invoice.paid event.
type Payment struct {
	InvoiceID     uuid.UUID `json:"invoice_id"`
	InvoiceNumber string    `json:"invoice_number"`
	Amount        float64   `json:"amount"`
	PaymentMethod string    `json:"payment_method"`
	PaidAt        time.Time `json:"paid_at"`
}
