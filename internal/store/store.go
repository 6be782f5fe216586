package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"parking-reservation-backend/internal/model"
)

// Store defines the interface for all database operations.
type Store interface {
	GetUser(ctx context.Context, id string) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetSpot(ctx context.Context, id string) (*model.ParkingSpot, error)
	ListSpots(ctx context.Context) ([]model.ParkingSpot, error)

	FindReservation(ctx context.Context, id string) (*model.Reservation, error)
	QueryReservations(ctx context.Context, f ReservationFilter) ([]model.Reservation, error)
	// SaveReservation inserts r when r.Version is zero, otherwise updates it
	// only if the stored version still equals r.Version. On success r.Version
	// holds the new version.
	SaveReservation(ctx context.Context, r *model.Reservation) error
	// SaveReservations saves every row in one transaction. Rows that lost a
	// version race are skipped and counted, not treated as failures.
	SaveReservations(ctx context.Context, rs []*model.Reservation) (BatchResult, error)

	AppendAudit(ctx context.Context, entry *model.AuditLog) error

	GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error)
	ListSubscriptions(ctx context.Context, username string) ([]model.PushSubscription, error)
	PutSubscription(ctx context.Context, sub *model.PushSubscription) error
	DeleteSubscription(ctx context.Context, endpoint string) error
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&u).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (s *gormStore) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	var u model.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).Take(&u).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (s *gormStore) GetSpot(ctx context.Context, id string) (*model.ParkingSpot, error) {
	var spot model.ParkingSpot
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&spot).Error; err != nil {
		return nil, notFound(err)
	}
	return &spot, nil
}

func (s *gormStore) ListSpots(ctx context.Context) ([]model.ParkingSpot, error) {
	var spots []model.ParkingSpot
	if err := s.db.WithContext(ctx).Order("id").Find(&spots).Error; err != nil {
		return nil, fmt.Errorf("failed to list spots: %w", err)
	}
	return spots, nil
}

func (s *gormStore) FindReservation(ctx context.Context, id string) (*model.Reservation, error) {
	var r model.Reservation
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&r).Error; err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

func (s *gormStore) QueryReservations(ctx context.Context, f ReservationFilter) ([]model.Reservation, error) {
	q := s.db.WithContext(ctx).Model(&model.Reservation{})

	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.SpotID != "" {
		q = q.Where("spot_id = ?", f.SpotID)
	}
	if f.GroupID != "" {
		q = q.Where("group_id = ?", f.GroupID)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if f.Day != "" {
		q = q.Where("day = ?", f.Day)
	}
	if f.DayFrom != "" {
		q = q.Where("day >= ?", f.DayFrom)
	}
	if f.DayTo != "" {
		q = q.Where("day <= ?", f.DayTo)
	}
	if !f.OverlapStart.IsZero() && !f.OverlapEnd.IsZero() {
		q = q.Where("start_at < ? AND end_at > ?", f.OverlapEnd.UTC(), f.OverlapStart.UTC())
	}
	if !f.StartBefore.IsZero() {
		q = q.Where("start_at <= ?", f.StartBefore.UTC())
	}
	if !f.EndBefore.IsZero() {
		q = q.Where("end_at <= ?", f.EndBefore.UTC())
	}
	if !f.EndAt.IsZero() {
		q = q.Where("end_at = ?", f.EndAt.UTC())
	}
	if f.CheckedIn != nil {
		if *f.CheckedIn {
			q = q.Where("check_in_time IS NOT NULL")
		} else {
			q = q.Where("check_in_time IS NULL")
		}
	}
	if f.ExcludeID != "" {
		q = q.Where("id <> ?", f.ExcludeID)
	}

	if f.Newest {
		q = q.Order("start_at DESC").Order("spot_id")
	} else {
		q = q.Order("start_at").Order("spot_id")
	}

	var out []model.Reservation
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to query reservations: %w", err)
	}
	return out, nil
}

func (s *gormStore) SaveReservation(ctx context.Context, r *model.Reservation) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return saveReservation(tx, r)
	})
}

func (s *gormStore) SaveReservations(ctx context.Context, rs []*model.Reservation) (BatchResult, error) {
	result := BatchResult{Selected: len(rs)}
	if len(rs) == 0 {
		return result, nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, r := range rs {
			// Each row gets its own savepoint so a lost race only undoes that row.
			err := tx.Transaction(func(sp *gorm.DB) error {
				return saveReservation(sp, r)
			})
			switch {
			case err == nil:
				result.Updated++
			case errors.Is(err, ErrVersionConflict), errors.Is(err, ErrSlotTaken), errors.Is(err, ErrNotFound):
				result.Conflicts++
			default:
				return err
			}
		}
		return nil
	})
	if err != nil {
		result.Updated = 0
		return result, err
	}
	return result, nil
}

// saveReservation performs the versioned insert or update inside tx and keeps
// the spot claims in step with the reservation's status, spot and day.
func saveReservation(tx *gorm.DB, r *model.Reservation) error {
	if r.Version == 0 {
		if r.Status.HoldsSpot() {
			if err := claimSlots(tx, r); err != nil {
				return err
			}
		}
		row := normalized(*r)
		row.Version = 1
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("failed to insert reservation %s: %w", r.ID, err)
		}
		r.Version = 1
		return nil
	}

	var prev model.Reservation
	if err := tx.Where("id = ?", r.ID).Take(&prev).Error; err != nil {
		return notFound(err)
	}
	if prev.Version != r.Version {
		return ErrVersionConflict
	}

	moved := prev.SpotID != r.SpotID || prev.Day != r.Day || prev.Slot != r.Slot
	if prev.Status.HoldsSpot() && (!r.Status.HoldsSpot() || moved) {
		if err := releaseSlots(tx, &prev); err != nil {
			return err
		}
	}
	if r.Status.HoldsSpot() && (!prev.Status.HoldsSpot() || moved) {
		if err := claimSlots(tx, r); err != nil {
			return err
		}
	}

	row := normalized(*r)
	res := tx.Model(&model.Reservation{}).
		Where("id = ? AND version = ?", r.ID, r.Version).
		Updates(map[string]any{
			"spot_id":             row.SpotID,
			"day":                 row.Day,
			"slot":                row.Slot,
			"start_at":            row.StartAt,
			"end_at":              row.EndAt,
			"status":              row.Status,
			"check_in_time":       row.CheckInTime,
			"canceled_at":         row.CanceledAt,
			"cancellation_reason": row.CancellationReason,
			"updated_at":          row.UpdatedAt,
			"version":             r.Version + 1,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update reservation %s: %w", r.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	r.Version++
	return nil
}

// claimSlots takes every half-day the reservation covers. A claim that
// another reservation holds is ErrSlotTaken; a claim that changed under us is
// ErrVersionConflict.
func claimSlots(tx *gorm.DB, r *model.Reservation) error {
	for _, half := range r.Slot.Halves() {
		var claims []model.SpotClaim
		if err := tx.Where("spot_id = ? AND day = ? AND half = ?", r.SpotID, r.Day, half).
			Limit(1).Find(&claims).Error; err != nil {
			return fmt.Errorf("failed to read claim %s/%s/%s: %w", r.SpotID, r.Day, half, err)
		}

		if len(claims) == 0 {
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&model.SpotClaim{
				SpotID:        r.SpotID,
				Day:           r.Day,
				Half:          half,
				ReservationID: r.ID,
				Version:       1,
			})
			if res.Error != nil {
				return fmt.Errorf("failed to create claim %s/%s/%s: %w", r.SpotID, r.Day, half, res.Error)
			}
			if res.RowsAffected == 0 {
				return ErrVersionConflict
			}
			continue
		}

		claim := claims[0]
		if claim.ReservationID == r.ID {
			continue
		}
		if claim.ReservationID != "" {
			return ErrSlotTaken
		}

		res := tx.Model(&model.SpotClaim{}).
			Where("spot_id = ? AND day = ? AND half = ? AND version = ?", r.SpotID, r.Day, half, claim.Version).
			Updates(map[string]any{"reservation_id": r.ID, "version": claim.Version + 1})
		if res.Error != nil {
			return fmt.Errorf("failed to take claim %s/%s/%s: %w", r.SpotID, r.Day, half, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrVersionConflict
		}
	}
	return nil
}

func releaseSlots(tx *gorm.DB, r *model.Reservation) error {
	err := tx.Model(&model.SpotClaim{}).
		Where("spot_id = ? AND day = ? AND half IN ? AND reservation_id = ?", r.SpotID, r.Day, r.Slot.Halves(), r.ID).
		Updates(map[string]any{"reservation_id": "", "version": gorm.Expr("version + 1")}).Error
	if err != nil {
		return fmt.Errorf("failed to release claims of reservation %s: %w", r.ID, err)
	}
	return nil
}

func (s *gormStore) AppendAudit(ctx context.Context, entry *model.AuditLog) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (s *gormStore) GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	if err := s.db.WithContext(ctx).Where("endpoint = ?", endpoint).Take(&sub).Error; err != nil {
		return nil, notFound(err)
	}
	return &sub, nil
}

func (s *gormStore) ListSubscriptions(ctx context.Context, username string) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	if err := s.db.WithContext(ctx).Where("username = ?", username).Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to list subscriptions for %s: %w", username, err)
	}
	return subs, nil
}

// PutSubscription inserts sub or refreshes the keys of an existing endpoint.
// The owner of an existing endpoint is never changed.
func (s *gormStore) PutSubscription(ctx context.Context, sub *model.PushSubscription) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth"}),
	}).Create(sub).Error
}

func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	return s.db.WithContext(ctx).Where("endpoint = ?", endpoint).Delete(&model.PushSubscription{}).Error
}

// --- helpers ---

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// normalized returns a copy of r with every instant in UTC so that range
// comparisons behave the same on every driver.
func normalized(r model.Reservation) model.Reservation {
	r.StartAt = r.StartAt.UTC()
	r.EndAt = r.EndAt.UTC()
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	r.CheckInTime = utcPtr(r.CheckInTime)
	r.CanceledAt = utcPtr(r.CanceledAt)
	return r
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
