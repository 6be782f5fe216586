package reservation

import (
	"context"
	"time"

	"parking-reservation-backend/internal/calendar"
	"parking-reservation-backend/internal/model"
	"parking-reservation-backend/internal/store"
)

var holdingStatuses = []model.ReservationStatus{model.StatusActive, model.StatusCheckedIn}

// Resolver answers which spots are free for a slot. It never writes.
type Resolver struct {
	store   store.Store
	catalog *Catalog
	loc     *time.Location
}

func NewResolver(s store.Store, catalog *Catalog, loc *time.Location) *Resolver {
	return &Resolver{store: s, catalog: catalog, loc: loc}
}

// Resolve picks a spot for a new reservation. With an explicit spotID it
// returns that spot if it is free; otherwise the first free spot. It returns
// nil when nothing fits.
func (r *Resolver) Resolve(ctx context.Context, date calendar.Date, slot model.Slot, requiresCharger bool, spotID string) (*model.ParkingSpot, error) {
	free, err := r.FindAvailableSpots(ctx, date, slot, requiresCharger)
	if err != nil {
		return nil, err
	}
	for i := range free {
		if spotID == "" || free[i].ID == spotID {
			spot := free[i]
			return &spot, nil
		}
	}
	return nil, nil
}

// FindAvailableSpots lists the spots with no holding reservation overlapping
// the slot on date, ordered by spot id. With requiresCharger only spots with
// an electric charger are considered.
func (r *Resolver) FindAvailableSpots(ctx context.Context, date calendar.Date, slot model.Slot, requiresCharger bool) ([]model.ParkingSpot, error) {
	spots, err := r.catalog.Spots(ctx)
	if err != nil {
		return nil, err
	}

	start, end := slot.Window(date, r.loc)
	taken, err := r.store.QueryReservations(ctx, store.ReservationFilter{
		Statuses:     holdingStatuses,
		OverlapStart: start,
		OverlapEnd:   end,
	})
	if err != nil {
		return nil, &InternalError{Op: "query reservations", Err: err}
	}

	busy := make(map[string]bool, len(taken))
	for _, res := range taken {
		busy[res.SpotID] = true
	}

	free := make([]model.ParkingSpot, 0, len(spots))
	for _, spot := range spots {
		if busy[spot.ID] {
			continue
		}
		if requiresCharger && !spot.HasElectricCharger {
			continue
		}
		free = append(free, spot)
	}
	return free, nil
}

// spotFree reports whether spotID has no holding reservation other than
// excludeID overlapping the slot on date.
func (r *Resolver) spotFree(ctx context.Context, spotID string, date calendar.Date, slot model.Slot, excludeID string) (bool, error) {
	start, end := slot.Window(date, r.loc)
	taken, err := r.store.QueryReservations(ctx, store.ReservationFilter{
		SpotID:       spotID,
		Statuses:     holdingStatuses,
		OverlapStart: start,
		OverlapEnd:   end,
		ExcludeID:    excludeID,
	})
	if err != nil {
		return false, &InternalError{Op: "query reservations", Err: err}
	}
	return len(taken) == 0, nil
}
