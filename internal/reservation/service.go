package reservation

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"parking-reservation-backend/internal/calendar"
	"parking-reservation-backend/internal/model"
	"parking-reservation-backend/internal/notification"
	"parking-reservation-backend/internal/store"
)

// Service owns every status transition of a reservation.
type Service struct {
	store    store.Store
	catalog  *Catalog
	resolver *Resolver
	producer notification.Producer
	clock    calendar.Clock
	loc      *time.Location
}

// NewService wires the lifecycle engine. All civil dates and slot windows are
// interpreted in the location of the clock.
func NewService(s store.Store, producer notification.Producer, clock calendar.Clock) *Service {
	if producer == nil {
		producer = notification.Nop{}
	}
	loc := clock.Now().Location()
	catalog := NewCatalog(s)
	return &Service{
		store:    s,
		catalog:  catalog,
		resolver: NewResolver(s, catalog, loc),
		producer: producer,
		clock:    clock,
		loc:      loc,
	}
}

func (s *Service) Catalog() *Catalog {
	return s.catalog
}

func (s *Service) Resolver() *Resolver {
	return s.resolver
}

func (s *Service) Location() *time.Location {
	return s.loc
}

// Today is the current civil date in the service location.
func (s *Service) Today() calendar.Date {
	return calendar.DateOf(s.clock.Now().In(s.loc))
}

// CreateRequest books Slot on every working day of [StartDate, EndDate].
type CreateRequest struct {
	// ActorID is who placed the request; empty means UserID.
	ActorID         string
	UserID          string
	StartDate       calendar.Date
	EndDate         calendar.Date // zero means StartDate
	Slot            model.Slot
	SpotID          string
	RequiresCharger bool
}

// Create books one reservation per working day of the request. Each day is
// committed on its own: when a later day fails, the returned slice holds the
// days already persisted alongside the error.
func (s *Service) Create(ctx context.Context, req CreateRequest) ([]model.Reservation, error) {
	if !req.Slot.Valid() {
		return nil, business(ErrInvalidSlot, "%q", req.Slot)
	}
	if req.EndDate.IsZero() {
		req.EndDate = req.StartDate
	}
	if req.ActorID == "" {
		req.ActorID = req.UserID
	}

	user, err := s.user(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().In(s.loc)
	today := calendar.DateOf(now)
	if req.StartDate.Before(today) {
		return nil, business(ErrPastDate, "%s is before %s", req.StartDate, today)
	}
	if req.EndDate.Before(req.StartDate) {
		return nil, business(ErrInvalidDateRange, "%s to %s", req.StartDate, req.EndDate)
	}

	requested := calendar.CountWorkingDays(req.StartDate, req.EndDate)
	if requested == 0 {
		return nil, business(ErrNoWorkingDay, "%s to %s", req.StartDate, req.EndDate)
	}
	if err := s.checkQuota(ctx, user, today, requested); err != nil {
		return nil, err
	}
	days := calendar.WorkingDays(req.StartDate, req.EndDate)

	if req.SpotID != "" {
		spot, err := s.catalog.Spot(ctx, req.SpotID)
		if err != nil {
			return nil, err
		}
		if req.RequiresCharger && !spot.HasElectricCharger {
			return nil, business(ErrNoChargerSpot, "%s", spot.ID)
		}
	}

	var groupID *string
	if len(days) > 1 {
		id := uuid.NewString()
		groupID = &id
	}

	created := make([]model.Reservation, 0, len(days))
	for _, day := range days {
		spot, err := s.resolver.Resolve(ctx, day, req.Slot, req.RequiresCharger, req.SpotID)
		if err != nil {
			return created, err
		}
		if spot == nil {
			if req.SpotID != "" {
				return created, business(ErrNoSpotAvailable, "%s is taken on %s (%s)", req.SpotID, day, req.Slot)
			}
			return created, business(ErrNoSpotAvailable, "%s (%s)", day, req.Slot)
		}

		start, end := req.Slot.Window(day, s.loc)
		r := model.Reservation{
			ID:        uuid.NewString(),
			UserID:    user.ID,
			SpotID:    spot.ID,
			Day:       day.String(),
			Slot:      req.Slot,
			StartAt:   start,
			EndAt:     end,
			Status:    model.StatusActive,
			GroupID:   groupID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.store.SaveReservation(ctx, &r); err != nil {
			return created, fromStore("save reservation", err, nil)
		}
		s.audit(ctx, req.ActorID, "CREATE", &r, datatypes.JSONMap{"slot": string(r.Slot)})
		created = append(created, r)
	}

	first := created[0]
	payload := s.payload(&first)
	if len(created) > 1 {
		payload[notification.FieldCount] = strconv.Itoa(len(created))
	}
	s.producer.Enqueue(ctx, notification.KindConfirmation, user.Username, payload)

	log.Printf("Created %d reservation(s) for user %s starting %s", len(created), user.ID, first.Day)
	return created, nil
}

// CheckIn confirms the caller's presence on spotID for the current half-day.
func (s *Service) CheckIn(ctx context.Context, userID, spotID string) (*model.Reservation, error) {
	if spotID == "" {
		return nil, business(ErrMissingID, "spot id")
	}
	now := s.clock.Now().In(s.loc)
	today := calendar.DateOf(now)
	slot := model.CurrentHalf(now)
	start, end := slot.Window(today, s.loc)

	rs, err := s.store.QueryReservations(ctx, store.ReservationFilter{
		SpotID:       spotID,
		Day:          today.String(),
		Statuses:     holdingStatuses,
		OverlapStart: start,
		OverlapEnd:   end,
	})
	if err != nil {
		return nil, &InternalError{Op: "find reservation to check in", Err: err}
	}
	if len(rs) == 0 {
		return nil, business(ErrNoActiveReservation, "%s on %s (%s)", spotID, today, slot)
	}

	r := &rs[0]
	if r.UserID != userID {
		return nil, &BusinessError{Err: ErrNotOwner}
	}
	if r.Status == model.StatusCheckedIn || r.CheckInTime != nil {
		return nil, &BusinessError{Err: ErrAlreadyCheckedIn}
	}

	if err := r.Transition(model.StatusCheckedIn, now); err != nil {
		return nil, business(ErrInvalidTransition, "%v", err)
	}
	if err := s.store.SaveReservation(ctx, r); err != nil {
		return nil, fromStore("save check-in", err, ErrReservationNotFound)
	}
	s.audit(ctx, userID, "CHECK_IN", r, nil)
	return r, nil
}

// Cancel lets the owner cancel one of their ACTIVE reservations.
func (s *Service) Cancel(ctx context.Context, userID, reservationID string) (*model.Reservation, error) {
	r, err := s.reservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if r.UserID != userID {
		return nil, &BusinessError{Err: ErrNotOwner}
	}
	if err := s.transition(ctx, r, model.StatusCancelledByUser); err != nil {
		return nil, err
	}

	s.audit(ctx, userID, "CANCEL", r, nil)
	s.notifyOwner(ctx, r, notification.KindCancellation, s.payload(r))
	return r, nil
}

// CancelGroup cancels every ACTIVE reservation of the group owned by userID
// and returns how many were cancelled. Members in any other status, and
// members changed concurrently, are skipped.
func (s *Service) CancelGroup(ctx context.Context, userID, groupID string) (int, error) {
	// Single-day reservations have no group; an empty id must not match them.
	if groupID == "" {
		return 0, business(ErrMissingID, "group id")
	}
	rs, err := s.store.QueryReservations(ctx, store.ReservationFilter{
		UserID:   userID,
		GroupID:  groupID,
		Statuses: []model.ReservationStatus{model.StatusActive},
	})
	if err != nil {
		return 0, &InternalError{Op: "query group", Err: err}
	}
	if len(rs) == 0 {
		return 0, nil
	}

	now := s.clock.Now()
	batch := make([]*model.Reservation, 0, len(rs))
	versions := make([]int64, 0, len(rs))
	for i := range rs {
		if err := rs[i].Transition(model.StatusCancelledByUser, now); err != nil {
			continue
		}
		batch = append(batch, &rs[i])
		versions = append(versions, rs[i].Version)
	}

	res, err := s.store.SaveReservations(ctx, batch)
	if err != nil {
		return 0, fromStore("cancel group", err, nil)
	}
	if res.Conflicts > 0 {
		log.Printf("Group %s: %d of %d reservations changed concurrently and were skipped", groupID, res.Conflicts, res.Selected)
	}
	if res.Updated == 0 {
		return 0, nil
	}

	// Rows that lost a race keep their version.
	var first *model.Reservation
	for i, r := range batch {
		if r.Version != versions[i] {
			first = r
			break
		}
	}
	if first == nil {
		return res.Updated, nil
	}
	s.audit(ctx, userID, "CANCEL_GROUP", first, datatypes.JSONMap{"groupId": groupID, "cancelled": res.Updated})
	payload := s.payload(first)
	payload[notification.FieldCount] = strconv.Itoa(res.Updated)
	s.notifyOwner(ctx, first, notification.KindCancellation, payload)
	return res.Updated, nil
}

// CancelAsAdmin cancels any ACTIVE reservation and records why.
func (s *Service) CancelAsAdmin(ctx context.Context, actorID, reservationID, reason string) (*model.Reservation, error) {
	r, err := s.reservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	r.CancellationReason = &reason
	if err := s.transition(ctx, r, model.StatusCancelledByAdmin); err != nil {
		return nil, err
	}

	s.audit(ctx, actorID, "ADMIN_CANCEL", r, datatypes.JSONMap{"reason": reason})
	payload := s.payload(r)
	payload[notification.FieldReason] = reason
	s.notifyOwner(ctx, r, notification.KindCancellation, payload)
	return r, nil
}

// ModifyRequest moves a reservation to another spot, another day, or both.
type ModifyRequest struct {
	ActorID       string
	AsAdmin       bool
	ReservationID string
	NewSpotID     *string
	NewDate       *calendar.Date
}

// Modify re-saves an ACTIVE, non-past reservation with a new spot or date.
func (s *Service) Modify(ctx context.Context, req ModifyRequest) (*model.Reservation, error) {
	r, err := s.reservation(ctx, req.ReservationID)
	if err != nil {
		return nil, err
	}
	if !req.AsAdmin && r.UserID != req.ActorID {
		return nil, &BusinessError{Err: ErrNotOwner}
	}
	if r.Status != model.StatusActive {
		return nil, business(ErrInvalidTransition, "reservation is %s", r.Status)
	}

	today := s.Today()
	day, err := calendar.ParseDate(r.Day)
	if err != nil {
		return nil, &InternalError{Op: "parse reservation day", Err: err}
	}
	if day.Before(today) {
		return nil, business(ErrPastDate, "reservation was on %s", day)
	}

	spotID := r.SpotID
	changed := false
	if req.NewSpotID != nil && *req.NewSpotID != r.SpotID {
		spot, err := s.catalog.Spot(ctx, *req.NewSpotID)
		if err != nil {
			return nil, err
		}
		spotID = spot.ID
		changed = true
	}
	if req.NewDate != nil && !req.NewDate.Equal(day) {
		if !req.NewDate.IsWorkingDay() {
			return nil, business(ErrWeekend, "%s", *req.NewDate)
		}
		if req.NewDate.Before(today) {
			return nil, business(ErrPastDate, "%s", *req.NewDate)
		}
		day = *req.NewDate
		changed = true
	}
	if !changed {
		return nil, &BusinessError{Err: ErrNoModification}
	}

	free, err := s.resolver.spotFree(ctx, spotID, day, r.Slot, r.ID)
	if err != nil {
		return nil, err
	}
	if !free {
		return nil, business(ErrNoSpotAvailable, "%s is taken on %s (%s)", spotID, day, r.Slot)
	}

	from := map[string]any{"spotId": r.SpotID, "date": r.Day}
	r.SpotID = spotID
	r.Day = day.String()
	r.StartAt, r.EndAt = r.Slot.Window(day, s.loc)
	r.UpdatedAt = s.clock.Now()
	if err := s.store.SaveReservation(ctx, r); err != nil {
		return nil, fromStore("save modification", err, ErrReservationNotFound)
	}

	s.audit(ctx, req.ActorID, "MODIFY", r, datatypes.JSONMap{"from": from})
	s.notifyOwner(ctx, r, notification.KindModification, s.payload(r))
	return r, nil
}

// --- helpers ---

func (s *Service) user(ctx context.Context, id string) (*model.User, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, fromStore("get user", err, ErrUserNotFound)
	}
	return u, nil
}

func (s *Service) reservation(ctx context.Context, id string) (*model.Reservation, error) {
	r, err := s.store.FindReservation(ctx, id)
	if err != nil {
		return nil, fromStore("find reservation", err, ErrReservationNotFound)
	}
	return r, nil
}

// transition applies a cancel-like transition and saves r.
func (s *Service) transition(ctx context.Context, r *model.Reservation, next model.ReservationStatus) error {
	if r.Status != model.StatusActive {
		return business(ErrInvalidTransition, "reservation is %s", r.Status)
	}
	if err := r.Transition(next, s.clock.Now()); err != nil {
		return business(ErrInvalidTransition, "%v", err)
	}
	if err := s.store.SaveReservation(ctx, r); err != nil {
		return fromStore("save reservation", err, ErrReservationNotFound)
	}
	return nil
}

func (s *Service) payload(r *model.Reservation) map[string]string {
	return map[string]string{
		notification.FieldReservationID: r.ID,
		notification.FieldSpotID:        r.SpotID,
		notification.FieldDate:          r.Day,
		notification.FieldTimeSlot:      string(model.SlotOf(r.StartAt.In(s.loc), r.EndAt.In(s.loc))),
	}
}

// notifyOwner looks up the owner's address and enqueues a notification.
// A failed lookup is logged and the notification dropped.
func (s *Service) notifyOwner(ctx context.Context, r *model.Reservation, kind notification.Kind, payload map[string]string) {
	owner, err := s.store.GetUser(ctx, r.UserID)
	if err != nil {
		log.Printf("Cannot notify owner %s of reservation %s: %v", r.UserID, r.ID, err)
		return
	}
	s.producer.Enqueue(ctx, kind, owner.Username, payload)
}

// audit appends a best-effort audit entry.
func (s *Service) audit(ctx context.Context, actorID, action string, r *model.Reservation, details datatypes.JSONMap) {
	if details == nil {
		details = datatypes.JSONMap{}
	}
	details["status"] = string(r.Status)
	details["spotId"] = r.SpotID
	details["date"] = r.Day

	entry := &model.AuditLog{
		Timestamp:  s.clock.Now(),
		ActorID:    actorID,
		Action:     action,
		EntityType: "RESERVATION",
		EntityID:   r.ID,
		Details:    details,
	}
	if err := s.store.AppendAudit(ctx, entry); err != nil {
		log.Printf("Failed to write audit entry %s for reservation %s: %v", action, r.ID, err)
	}
}
