package reservation

import (
	"context"

	"parking-reservation-backend/internal/calendar"
	"parking-reservation-backend/internal/model"
	"parking-reservation-backend/internal/store"
)

// Ceiling is the number of working days a role may hold in ACTIVE status,
// both per request and cumulatively from today onward.
func Ceiling(role model.Role) int {
	switch role {
	case model.RoleEmployee:
		return 5
	case model.RoleSecretary, model.RoleManager:
		return 30
	default:
		return 0
	}
}

// ActiveWorkingDays counts the distinct working days in [from, to] on which
// userID holds an ACTIVE reservation. A zero to leaves the range open.
func (s *Service) ActiveWorkingDays(ctx context.Context, userID string, from, to calendar.Date) (int, error) {
	f := store.ReservationFilter{
		UserID:   userID,
		Statuses: []model.ReservationStatus{model.StatusActive},
		DayFrom:  from.String(),
	}
	if !to.IsZero() {
		f.DayTo = to.String()
	}

	rs, err := s.store.QueryReservations(ctx, f)
	if err != nil {
		return 0, &InternalError{Op: "count active days", Err: err}
	}

	days := make(map[string]struct{}, len(rs))
	for _, r := range rs {
		d, err := calendar.ParseDate(r.Day)
		if err != nil || !d.IsWorkingDay() {
			continue
		}
		days[r.Day] = struct{}{}
	}
	return len(days), nil
}

// checkQuota rejects a request for requested working days that would push
// the user over the ceiling of their role.
func (s *Service) checkQuota(ctx context.Context, user *model.User, today calendar.Date, requested int) error {
	ceiling := Ceiling(user.Role)
	if requested > ceiling {
		return business(ErrQuotaExceeded, "%d working days requested, %s may book at most %d", requested, user.Role, ceiling)
	}

	held, err := s.ActiveWorkingDays(ctx, user.ID, today, calendar.Date{})
	if err != nil {
		return err
	}
	if held+requested > ceiling {
		return business(ErrQuotaExceeded, "%d working days already reserved, %d more would exceed %d", held, requested, ceiling)
	}
	return nil
}
