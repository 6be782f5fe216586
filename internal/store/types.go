package store

import (
	"errors"
	"time"

	"parking-reservation-backend/internal/model"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrVersionConflict = errors.New("version conflict")
	ErrSlotTaken       = errors.New("spot already claimed for this slot")
)

// ReservationFilter selects reservations. Zero-valued fields are ignored; all
// set fields are combined with AND.
type ReservationFilter struct {
	UserID   string
	SpotID   string
	GroupID  string
	Statuses []model.ReservationStatus

	// Day matches one civil date; DayFrom and DayTo bound an inclusive range.
	Day     string
	DayFrom string
	DayTo   string

	// OverlapStart and OverlapEnd select reservations intersecting [start, end).
	OverlapStart time.Time
	OverlapEnd   time.Time

	StartBefore time.Time // start_at <= StartBefore
	EndBefore   time.Time // end_at <= EndBefore
	EndAt       time.Time // end_at = EndAt

	// CheckedIn filters on the presence of a check-in time.
	CheckedIn *bool

	ExcludeID string

	// Newest sorts by start time descending instead of ascending.
	Newest bool
}

// BatchResult counts the outcome of a SaveReservations call.
type BatchResult struct {
	Selected  int
	Updated   int
	Conflicts int
}
