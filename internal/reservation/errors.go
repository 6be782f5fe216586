package reservation

import (
	"errors"
	"fmt"

	"parking-reservation-backend/internal/store"
)

// Sentinels wrapped by the typed errors below. Compare with errors.Is.
var (
	ErrNoSpotAvailable     = errors.New("no parking spot available")
	ErrQuotaExceeded       = errors.New("reservation quota exceeded")
	ErrNotOwner            = errors.New("reservation belongs to another user")
	ErrAlreadyCheckedIn    = errors.New("already checked in")
	ErrNoActiveReservation = errors.New("no active reservation for this spot now")
	ErrInvalidTransition   = errors.New("reservation cannot change status")
	ErrNoModification      = errors.New("no modification requested")
	ErrUserNotFound        = errors.New("user not found")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrSpotNotFound        = errors.New("parking spot not found")
	ErrInvalidDateRange    = errors.New("end date is before start date")
	ErrPastDate            = errors.New("date is in the past")
	ErrWeekend             = errors.New("date is not a working day")
	ErrNoWorkingDay        = errors.New("date range contains no working day")
	ErrInvalidSlot         = errors.New("invalid time slot")
	ErrMissingID           = errors.New("identifier is required")
	ErrUnknownStatus       = errors.New("unknown reservation status")
	ErrNoChargerSpot       = errors.New("parking spot has no electric charger")
)

// BusinessError is a rule violation the caller can fix.
type BusinessError struct {
	Err    error
	Detail string
}

func (e *BusinessError) Error() string {
	if e.Detail == "" {
		return e.Err.Error()
	}
	return e.Err.Error() + ": " + e.Detail
}

func (e *BusinessError) Unwrap() error { return e.Err }

// ConcurrencyError means a concurrent write won. Retrying may succeed.
type ConcurrencyError struct {
	Err error
}

func (e *ConcurrencyError) Error() string {
	return "concurrent modification: " + e.Err.Error()
}

func (e *ConcurrencyError) Unwrap() error { return e.Err }

// InternalError wraps an unexpected failure of a dependency.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InternalError) Unwrap() error { return e.Err }

func business(err error, format string, args ...any) error {
	return &BusinessError{Err: err, Detail: fmt.Sprintf(format, args...)}
}

// fromStore classifies a store error. notFound is the sentinel reported when
// the store could not find the record.
func fromStore(op string, err error, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrVersionConflict), errors.Is(err, store.ErrSlotTaken):
		return &ConcurrencyError{Err: err}
	case errors.Is(err, store.ErrNotFound) && notFound != nil:
		return &BusinessError{Err: notFound}
	default:
		return &InternalError{Op: op, Err: err}
	}
}
