package reservation

import (
	"context"

	"github.com/patrickmn/go-cache"

	"parking-reservation-backend/internal/model"
	"parking-reservation-backend/internal/store"
)

const catalogKey = "spots"

// Catalog serves the spot list. The catalog does not change at runtime, so
// the first successful read is kept for the life of the process.
type Catalog struct {
	store store.Store
	cache *cache.Cache
}

func NewCatalog(s store.Store) *Catalog {
	return &Catalog{store: s, cache: cache.New(cache.NoExpiration, 0)}
}

// Spots returns every spot ordered by id. Callers must not modify the slice.
func (c *Catalog) Spots(ctx context.Context) ([]model.ParkingSpot, error) {
	if cached, found := c.cache.Get(catalogKey); found {
		return cached.([]model.ParkingSpot), nil
	}
	spots, err := c.store.ListSpots(ctx)
	if err != nil {
		return nil, &InternalError{Op: "list spots", Err: err}
	}
	c.cache.Set(catalogKey, spots, cache.NoExpiration)
	return spots, nil
}

// Spot returns one spot by id.
func (c *Catalog) Spot(ctx context.Context, id string) (*model.ParkingSpot, error) {
	spots, err := c.Spots(ctx)
	if err != nil {
		return nil, err
	}
	for i := range spots {
		if spots[i].ID == id {
			spot := spots[i]
			return &spot, nil
		}
	}
	return nil, business(ErrSpotNotFound, "%s", id)
}
