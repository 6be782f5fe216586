package model

import (
	"fmt"
	"strings"
	"time"

	"parking-reservation-backend/internal/calendar"
)

// Slot is the part of a working day a reservation covers.
type Slot string

const (
	SlotMorning   Slot = "MORNING"
	SlotAfternoon Slot = "AFTERNOON"
	SlotFullDay   Slot = "FULL_DAY"
)

// Half is one of the two bookable halves of a day. A FULL_DAY slot covers both.
type Half string

const (
	HalfMorning   Half = "AM"
	HalfAfternoon Half = "PM"
)

const (
	dayStartHour       = 8
	morningEndHour     = 12
	afternoonStartHour = 14
	dayEndHour         = 18

	// Reservations starting before this hour are labelled MORNING.
	labelSplitHour = 13
)

func ParseSlot(s string) (Slot, error) {
	switch slot := Slot(strings.ToUpper(strings.TrimSpace(s))); slot {
	case SlotMorning, SlotAfternoon, SlotFullDay:
		return slot, nil
	default:
		return "", fmt.Errorf("unknown time slot %q", s)
	}
}

func (s Slot) Valid() bool {
	_, err := ParseSlot(string(s))
	return err == nil
}

// Hours returns the start and end hour of the slot.
func (s Slot) Hours() (start, end int) {
	switch s {
	case SlotMorning:
		return dayStartHour, morningEndHour
	case SlotAfternoon:
		return afternoonStartHour, dayEndHour
	default:
		return dayStartHour, dayEndHour
	}
}

// Window returns the [start, end) interval of the slot on day d in loc.
func (s Slot) Window(d calendar.Date, loc *time.Location) (time.Time, time.Time) {
	start, end := s.Hours()
	return d.At(start, 0, loc), d.At(end, 0, loc)
}

func (s Slot) Halves() []Half {
	switch s {
	case SlotMorning:
		return []Half{HalfMorning}
	case SlotAfternoon:
		return []Half{HalfAfternoon}
	default:
		return []Half{HalfMorning, HalfAfternoon}
	}
}

// SlotOf labels a stored interval. Both instants must already be in the reservation's location.
func SlotOf(start, end time.Time) Slot {
	if start.Hour() == dayStartHour && start.Minute() == 0 && end.Hour() == dayEndHour && end.Minute() == 0 {
		return SlotFullDay
	}
	if start.Hour() < labelSplitHour {
		return SlotMorning
	}
	return SlotAfternoon
}

// CurrentHalf is the half-day slot a check-in at now belongs to.
func CurrentHalf(now time.Time) Slot {
	if now.Hour() < afternoonStartHour {
		return SlotMorning
	}
	return SlotAfternoon
}
