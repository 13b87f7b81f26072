package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperr"
)

// SlotPolicy describes the bookable day of a doctor. Times are HH:MM in
// clinic local time.
type SlotPolicy struct {
	DayStart string
	DayEnd   string
	Length   time.Duration
}

// DefaultSlotPolicy is a 09:00-17:00 day split into half-hour slots.
var DefaultSlotPolicy = SlotPolicy{DayStart: "09:00", DayEnd: "17:00", Length: 30 * time.Minute}

// Slot is one bookable start time on a doctor's day.
type Slot struct {
	Time      string `json:"time"`
	Available bool   `json:"available"`
}

// DaySlots is the slot grid for one doctor and date.
type DaySlots struct {
	DoctorID uuid.UUID `json:"doctor_id"`
	Date     string    `json:"date"`
	Slots    []Slot    `json:"slots"`
	Free     int       `json:"free"`
}

// maxDayAppointments bounds the per-day read; a doctor's day never holds
// more rows than this.
const maxDayAppointments = 500

// slotGrid lays out the policy's start times and marks the ones in booked as
// taken. Booked times that fall off the grid are ignored.
func slotGrid(p SlotPolicy, booked map[string]bool) ([]Slot, error) {
	start, err := time.Parse("15:04", p.DayStart)
	if err != nil {
		return nil, fmt.Errorf("slot policy day start: %w", err)
	}
	end, err := time.Parse("15:04", p.DayEnd)
	if err != nil {
		return nil, fmt.Errorf("slot policy day end: %w", err)
	}
	if p.Length <= 0 || !end.After(start) {
		return nil, fmt.Errorf("slot policy is empty")
	}

	var out []Slot
	for t := start; !t.Add(p.Length).After(end); t = t.Add(p.Length) {
		at := t.Format("15:04")
		out = append(out, Slot{Time: at, Available: !booked[at]})
	}
	return out, nil
}

// AvailableSlots returns the slot grid of a doctor on date. Cancelled
// appointments free their slot; every other status keeps it taken.
func (s *Service) AvailableSlots(ctx context.Context, doctorID uuid.UUID, date string) (*DaySlots, error) {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, apperr.InvalidInput("date must be YYYY-MM-DD")
	}
	date = day.Format("2006-01-02")

	items, _, err := s.appointments.List(ctx, Filter{DoctorID: &doctorID, Date: date}, maxDayAppointments, 0)
	if err != nil {
		return nil, err
	}
	booked := make(map[string]bool, len(items))
	for _, a := range items {
		if a.Status != StatusCancelled {
			booked[a.AppointmentTime] = true
		}
	}

	slots, err := slotGrid(s.slots, booked)
	if err != nil {
		return nil, err
	}

	res := &DaySlots{DoctorID: doctorID, Date: date, Slots: slots}
	for _, sl := range slots {
		if sl.Available {
			res.Free++
		}
	}
	return res, nil
}
