package model

import (
	"fmt"
	"strings"
	"time"
)

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
	StatusActive           ReservationStatus = "ACTIVE"
	StatusCheckedIn        ReservationStatus = "CHECKED_IN"
	StatusCompleted        ReservationStatus = "COMPLETED"
	StatusCancelledByUser  ReservationStatus = "CANCELLED_BY_USER"
	StatusCancelledByAdmin ReservationStatus = "CANCELLED_BY_ADMIN"
	StatusExpired          ReservationStatus = "EXPIRED"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []ReservationStatus{
	StatusActive,
	StatusCheckedIn,
	StatusCompleted,
	StatusCancelledByUser,
	StatusCancelledByAdmin,
	StatusExpired,
}

// transitions is the full state machine. Anything not listed is rejected.
var transitions = map[ReservationStatus][]ReservationStatus{
	StatusActive:    {StatusCheckedIn, StatusCancelledByUser, StatusCancelledByAdmin, StatusExpired},
	StatusCheckedIn: {StatusCompleted},
}

func ParseStatus(s string) (ReservationStatus, error) {
	want := ReservationStatus(strings.ToUpper(strings.TrimSpace(s)))
	for _, st := range AllStatuses {
		if st == want {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown reservation status %q", s)
}

// HoldsSpot reports whether a reservation in this status occupies its spot.
func (s ReservationStatus) HoldsSpot() bool {
	return s == StatusActive || s == StatusCheckedIn
}

func (s ReservationStatus) Terminal() bool {
	_, ok := transitions[s]
	return !ok
}

func (s ReservationStatus) CanTransitionTo(next ReservationStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Reservation books one spot for one slot of one working day.
// Times are persisted in UTC; Day is the civil date in the service time zone.
type Reservation struct {
	ID                 string            `gorm:"primaryKey;size:36"`
	UserID             string            `gorm:"size:36;not null;index"`
	SpotID             string            `gorm:"size:8;not null;index:idx_reservations_spot_day"`
	Day                string            `gorm:"size:10;not null;index:idx_reservations_spot_day"`
	Slot               Slot              `gorm:"type:varchar(16);not null"`
	StartAt            time.Time         `gorm:"not null"`
	EndAt              time.Time         `gorm:"not null;index"`
	Status             ReservationStatus `gorm:"type:varchar(32);not null;index"`
	CheckInTime        *time.Time
	CanceledAt         *time.Time
	GroupID            *string   `gorm:"size:36;index"`
	CancellationReason *string   `gorm:"type:text"`
	CreatedAt          time.Time `gorm:"not null;autoCreateTime:false"`
	UpdatedAt          time.Time `gorm:"not null;autoUpdateTime:false"`
	// Version is the optimistic concurrency token. Zero means not yet persisted.
	Version int64 `gorm:"not null;default:0"`
}

// Transition moves r to next or reports that the state machine forbids it.
func (r *Reservation) Transition(next ReservationStatus, at time.Time) error {
	if !r.Status.CanTransitionTo(next) {
		return fmt.Errorf("cannot move reservation from %s to %s", r.Status, next)
	}
	r.Status = next
	switch next {
	case StatusCheckedIn:
		t := at
		r.CheckInTime = &t
	case StatusCancelledByUser, StatusCancelledByAdmin, StatusExpired:
		t := at
		r.CanceledAt = &t
	}
	r.UpdatedAt = at
	return nil
}

// SpotClaim is the allocation gate for one (spot, day, half) tuple.
// ReservationID is empty when the claim has been released.
type SpotClaim struct {
	SpotID        string `gorm:"primaryKey;size:8"`
	Day           string `gorm:"primaryKey;size:10"`
	Half          Half   `gorm:"primaryKey;size:2"`
	ReservationID string `gorm:"size:36;not null;default:''"`
	Version       int64  `gorm:"not null;default:1"`
}
