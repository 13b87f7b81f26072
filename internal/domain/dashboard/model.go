package dashboard

import "github.com/google/uuid"

// Stats is the summary card data. Revenue and PendingInvoices are only set
// for roles allowed to see money.
type Stats struct {
	TodayAppointments int      `json:"today_appointments"`
	RecentPatients    int      `json:"recent_patients"`
	Revenue           *float64 `json:"revenue,omitempty"`
	PendingInvoices   *int     `json:"pending_invoices,omitempty"`
}

// DailyAppointments holds one day of per-status counts.
type DailyAppointments struct {
	Date      string `json:"date"`
	Scheduled int    `json:"scheduled"`
	Completed int    `json:"completed"`
	Cancelled int    `json:"cancelled"`
	NoShow    int    `json:"no_show"`
	Total     int    `json:"total"`
}

// MonthlyRevenue is the sum of paid invoices for one calendar month (YYYY-MM).
type MonthlyRevenue struct {
	Month string  `json:"month"`
	Total float64 `json:"total"`
}

type RecentAppointment struct {
	ID              uuid.UUID `json:"id"`
	PatientName     string    `json:"patient_name"`
	DoctorName      string    `json:"doctor_name"`
	AppointmentDate string    `json:"appointment_date"`
	AppointmentTime string    `json:"appointment_time"`
	Status          string    `json:"status"`
}

// StatusCount is one row of the per-day status breakdown.
type StatusCount struct {
	Date   string
	Status string
	Count  int
}

// Scope restricts every query to one doctor or one patient. The zero value
// is unrestricted.
type Scope struct {
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
}
