package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperr"
)

func TestSlotGrid_Default(t *testing.T) {
	slots, err := slotGrid(DefaultSlotPolicy, map[string]bool{"09:30": true, "12:15": true})
	if err != nil {
		t.Fatal(err)
	}
	if len(slots) != 16 {
		t.Fatalf("expected 16 slots, got %d", len(slots))
	}
	if slots[0].Time != "09:00" || slots[len(slots)-1].Time != "16:30" {
		t.Errorf("unexpected bounds %s..%s", slots[0].Time, slots[len(slots)-1].Time)
	}
	if slots[1].Available {
		t.Error("09:30 should be taken")
	}
	for _, s := range slots {
		if s.Time != "09:30" && !s.Available {
			t.Errorf("%s should be free", s.Time)
		}
	}
}

func TestSlotGrid_InvalidPolicy(t *testing.T) {
	cases := []SlotPolicy{
		{DayStart: "9am", DayEnd: "17:00", Length: time.Hour},
		{DayStart: "09:00", DayEnd: "08:00", Length: time.Hour},
		{DayStart: "09:00", DayEnd: "17:00"},
	}
	for _, p := range cases {
		if _, err := slotGrid(p, nil); err == nil {
			t.Errorf("expected error for %+v", p)
		}
	}
}

func TestAvailableSlots(t *testing.T) {
	f := newFixture()
	doctorID := uuid.New()
	a := f.book(t, uuid.New(), doctorID)
	cancelled := f.book(t, uuid.New(), doctorID)
	f.repo.appointments[cancelled.ID].AppointmentTime = "10:00"
	f.repo.appointments[cancelled.ID].Status = StatusCancelled
	f.book(t, uuid.New(), uuid.New())

	day, err := f.svc.AvailableSlots(context.Background(), doctorID, a.AppointmentDate)
	if err != nil {
		t.Fatal(err)
	}
	if day.Free != 15 {
		t.Errorf("expected 15 free slots, got %d", day.Free)
	}
	for _, s := range day.Slots {
		switch s.Time {
		case "09:30":
			if s.Available {
				t.Error("booked slot reported free")
			}
		case "10:00":
			if !s.Available {
				t.Error("cancelled slot should be free")
			}
		}
	}
}

func TestAvailableSlots_CustomPolicy(t *testing.T) {
	f := newFixture()
	f.svc.WithSlotPolicy(SlotPolicy{DayStart: "08:00", DayEnd: "10:00", Length: time.Hour})

	day, err := f.svc.AvailableSlots(context.Background(), uuid.New(), "2026-11-02")
	if err != nil {
		t.Fatal(err)
	}
	if len(day.Slots) != 2 || day.Free != 2 {
		t.Errorf("unexpected grid %+v", day.Slots)
	}
}

func TestAvailableSlots_BadDate(t *testing.T) {
	f := newFixture()
	_, err := f.svc.AvailableSlots(context.Background(), uuid.New(), "02/11/2026")
	if !apperr.Is(err, apperr.KindInvalidInput) {
		t.Errorf("expected invalid input, got %v", err)
	}
}
