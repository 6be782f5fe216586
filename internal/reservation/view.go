package reservation

import (
	"context"
	"errors"
	"time"

	"parking-reservation-backend/internal/calendar"
	"parking-reservation-backend/internal/model"
	"parking-reservation-backend/internal/store"
)

// View is the outward shape of a reservation.
type View struct {
	ReservationID      string                  `json:"reservationId"`
	SpotID             string                  `json:"spotId"`
	Date               string                  `json:"date"`
	Slot               model.Slot              `json:"slot"`
	Status             model.ReservationStatus `json:"status"`
	CheckInTime        *time.Time              `json:"checkInTime,omitempty"`
	CreatedAt          time.Time               `json:"createdAt"`
	OwnerDisplayName   string                  `json:"ownerDisplayName"`
	GroupID            *string                 `json:"groupId,omitempty"`
	CancellationReason *string                 `json:"cancellationReason,omitempty"`
}

// Views renders rs, resolving each owner once.
func (s *Service) Views(ctx context.Context, rs []model.Reservation) ([]View, error) {
	owners := make(map[string]string)
	out := make([]View, 0, len(rs))
	for i := range rs {
		r := &rs[i]
		name, ok := owners[r.UserID]
		if !ok {
			u, err := s.store.GetUser(ctx, r.UserID)
			switch {
			case err == nil:
				name = u.DisplayName()
			case errors.Is(err, store.ErrNotFound):
				name = ""
			default:
				return nil, &InternalError{Op: "get owner", Err: err}
			}
			owners[r.UserID] = name
		}
		out = append(out, s.view(r, name))
	}
	return out, nil
}

// View renders a single reservation.
func (s *Service) View(ctx context.Context, r *model.Reservation) (View, error) {
	views, err := s.Views(ctx, []model.Reservation{*r})
	if err != nil {
		return View{}, err
	}
	return views[0], nil
}

func (s *Service) view(r *model.Reservation, owner string) View {
	v := View{
		ReservationID:      r.ID,
		SpotID:             r.SpotID,
		Date:               r.Day,
		Slot:               model.SlotOf(r.StartAt.In(s.loc), r.EndAt.In(s.loc)),
		Status:             r.Status,
		CreatedAt:          r.CreatedAt.In(s.loc),
		OwnerDisplayName:   owner,
		GroupID:            r.GroupID,
		CancellationReason: r.CancellationReason,
	}
	if r.CheckInTime != nil {
		t := r.CheckInTime.In(s.loc)
		v.CheckInTime = &t
	}
	return v
}

// ListForUser returns the user's reservations, newest first. Zero bounds are
// open.
func (s *Service) ListForUser(ctx context.Context, userID string, from, to calendar.Date) ([]View, error) {
	f := store.ReservationFilter{UserID: userID, Newest: true}
	if !from.IsZero() {
		f.DayFrom = from.String()
	}
	if !to.IsZero() {
		f.DayTo = to.String()
	}
	return s.query(ctx, f)
}

// ListActiveForUser returns the reservations that still hold a spot from
// today onward, soonest first.
func (s *Service) ListActiveForUser(ctx context.Context, userID string) ([]View, error) {
	return s.query(ctx, store.ReservationFilter{
		UserID:   userID,
		Statuses: holdingStatuses,
		DayFrom:  s.Today().String(),
	})
}

// History lists every reservation between from and to, optionally limited
// to one status. An unrecognised status is rejected.
func (s *Service) History(ctx context.Context, from, to calendar.Date, status string) ([]View, error) {
	f := store.ReservationFilter{Newest: true}
	if !from.IsZero() {
		f.DayFrom = from.String()
	}
	if !to.IsZero() {
		f.DayTo = to.String()
	}
	if status != "" {
		st, err := model.ParseStatus(status)
		if err != nil {
			return nil, business(ErrUnknownStatus, "%q", status)
		}
		f.Statuses = []model.ReservationStatus{st}
	}
	return s.query(ctx, f)
}

func (s *Service) query(ctx context.Context, f store.ReservationFilter) ([]View, error) {
	rs, err := s.store.QueryReservations(ctx, f)
	if err != nil {
		return nil, &InternalError{Op: "query reservations", Err: err}
	}
	return s.Views(ctx, rs)
}
