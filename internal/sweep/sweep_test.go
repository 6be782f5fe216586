package sweep

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parking-reservation-backend/config"
	"parking-reservation-backend/internal/calendar"
	"parking-reservation-backend/internal/db"
	"parking-reservation-backend/internal/model"
	"parking-reservation-backend/internal/notification"
	"parking-reservation-backend/internal/reservation"
	"parking-reservation-backend/internal/store"
)

var loc = time.FixedZone("CEST", 2*60*60)

type reminderLog struct {
	mu         sync.Mutex
	recipients []string
}

func (r *reminderLog) Enqueue(_ context.Context, kind notification.Kind, recipient string, _ map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if kind == notification.KindReminder {
		r.recipients = append(r.recipients, recipient)
	}
}

// hookStore runs beforeBatch right before a batch write reaches the database.
type hookStore struct {
	store.Store
	beforeBatch func()
}

func (h *hookStore) SaveReservations(ctx context.Context, rs []*model.Reservation) (store.BatchResult, error) {
	if h.beforeBatch != nil {
		h.beforeBatch()
		h.beforeBatch = nil
	}
	return h.Store.SaveReservations(ctx, rs)
}

type fixture struct {
	store     *hookStore
	clock     *calendar.FixedClock
	svc       *reservation.Service
	sweeps    *Service
	reminders *reminderLog
	employee  *model.User
	manager   *model.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gormDB, err := db.Open(&config.DatabaseConfig{
		Driver:   "sqlite",
		DSN:      fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
		LogLevel: "silent",
	})
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	now := time.Date(2025, 6, 2, 7, 0, 0, 0, loc)
	require.NoError(t, db.Migrate(gormDB))
	require.NoError(t, db.Seed(gormDB, true, now))

	f := &fixture{
		store:     &hookStore{Store: store.NewGormStore(gormDB)},
		clock:     calendar.NewFixedClock(now),
		reminders: &reminderLog{},
	}
	f.svc = reservation.NewService(f.store, nil, f.clock)
	f.sweeps, err = NewService(config.SweepConfig{Enabled: true}, f.store, f.reminders, f.clock)
	require.NoError(t, err)

	ctx := context.Background()
	f.employee, err = f.store.GetUserByUsername(ctx, "employee@test.com")
	require.NoError(t, err)
	f.manager, err = f.store.GetUserByUsername(ctx, "manager@test.com")
	require.NoError(t, err)
	return f
}

func (f *fixture) book(t *testing.T, user *model.User, day string, slot model.Slot, spot string) model.Reservation {
	t.Helper()
	rs, err := f.svc.Create(context.Background(), reservation.CreateRequest{
		UserID: user.ID, StartDate: calendar.MustDate(day), Slot: slot, SpotID: spot,
	})
	require.NoError(t, err)
	return rs[0]
}

func (f *fixture) status(t *testing.T, id string) model.ReservationStatus {
	t.Helper()
	r, err := f.store.FindReservation(context.Background(), id)
	require.NoError(t, err)
	return r.Status
}

func TestExpireNoShows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	morning := f.book(t, f.employee, "2025-06-02", model.SlotMorning, "A01")
	afternoon := f.book(t, f.employee, "2025-06-02", model.SlotAfternoon, "A02")
	present := f.book(t, f.manager, "2025-06-02", model.SlotMorning, "A03")
	tomorrow := f.book(t, f.manager, "2025-06-03", model.SlotMorning, "A04")

	f.clock.Set(time.Date(2025, 6, 2, 9, 0, 0, 0, loc))
	_, err := f.svc.CheckIn(ctx, f.manager.ID, "A03")
	require.NoError(t, err)

	f.clock.Set(time.Date(2025, 6, 2, 11, 0, 0, 0, loc))
	res, err := f.sweeps.ExpireNoShows(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Job: JobExpire, Selected: 1, Updated: 1}, res)

	assert.Equal(t, model.StatusExpired, f.status(t, morning.ID))
	assert.Equal(t, model.StatusActive, f.status(t, afternoon.ID), "afternoon slot has not started")
	assert.Equal(t, model.StatusCheckedIn, f.status(t, present.ID))
	assert.Equal(t, model.StatusActive, f.status(t, tomorrow.ID))

	expired, err := f.store.FindReservation(ctx, morning.ID)
	require.NoError(t, err)
	require.NotNil(t, expired.CanceledAt)

	// Running again selects nothing.
	res, err = f.sweeps.ExpireNoShows(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Job: JobExpire}, res)

	// The afternoon deadline catches the afternoon no-show.
	f.clock.Set(time.Date(2025, 6, 2, 17, 0, 0, 0, loc))
	res, err = f.sweeps.RunJob(ctx, JobExpire)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, model.StatusExpired, f.status(t, afternoon.ID))

	// Expired spots are bookable again.
	f.clock.Set(time.Date(2025, 6, 2, 7, 30, 0, 0, loc))
	again := f.book(t, f.manager, "2025-06-02", model.SlotMorning, "A01")
	assert.Equal(t, "A01", again.SpotID)
}

func TestExpireNoShows_LosesToConcurrentCheckIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r := f.book(t, f.employee, "2025-06-02", model.SlotMorning, "B01")

	f.clock.Set(time.Date(2025, 6, 2, 10, 59, 0, 0, loc))
	// The check-in lands after the sweep read its candidates.
	f.store.beforeBatch = func() {
		_, err := f.svc.CheckIn(ctx, f.employee.ID, "B01")
		require.NoError(t, err)
	}

	res, err := f.sweeps.ExpireNoShows(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Job: JobExpire, Selected: 1, Updated: 0, Conflicts: 1}, res)
	assert.Equal(t, model.StatusCheckedIn, f.status(t, r.ID))
}

func TestCompleteFinished(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	morning := f.book(t, f.employee, "2025-06-02", model.SlotMorning, "C01")
	full := f.book(t, f.manager, "2025-06-02", model.SlotFullDay, "C02")
	idle := f.book(t, f.employee, "2025-06-02", model.SlotAfternoon, "C03")

	f.clock.Set(time.Date(2025, 6, 2, 8, 15, 0, 0, loc))
	_, err := f.svc.CheckIn(ctx, f.employee.ID, "C01")
	require.NoError(t, err)
	_, err = f.svc.CheckIn(ctx, f.manager.ID, "C02")
	require.NoError(t, err)

	f.clock.Set(time.Date(2025, 6, 2, 12, 15, 0, 0, loc))
	res, err := f.sweeps.CompleteFinished(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Job: JobComplete, Selected: 1, Updated: 1}, res)
	assert.Equal(t, model.StatusCompleted, f.status(t, morning.ID))
	assert.Equal(t, model.StatusCheckedIn, f.status(t, full.ID))

	f.clock.Set(time.Date(2025, 6, 2, 18, 30, 0, 0, loc))
	res, err = f.sweeps.CompleteFinished(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, model.StatusCompleted, f.status(t, full.ID))
	assert.Equal(t, model.StatusActive, f.status(t, idle.ID), "never-checked-in rows are not completed")

	res, err = f.sweeps.CompleteFinished(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Selected)
}

func TestSendReminders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Friday reminders cover Monday.
	f.clock.Set(time.Date(2025, 6, 6, 7, 0, 0, 0, loc))
	f.book(t, f.employee, "2025-06-09", model.SlotMorning, "D01")
	f.book(t, f.employee, "2025-06-09", model.SlotAfternoon, "D01")
	f.book(t, f.manager, "2025-06-10", model.SlotMorning, "D02")

	f.clock.Set(time.Date(2025, 6, 6, 17, 0, 0, 0, loc))
	res, err := f.sweeps.SendReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Job: JobRemind, Selected: 2, Updated: 2}, res)
	assert.Equal(t, []string{"employee@test.com", "employee@test.com"}, f.reminders.recipients)
}

func TestRun_DisabledReturns(t *testing.T) {
	f := newFixture(t)
	svc, err := NewService(config.SweepConfig{Enabled: false}, f.store, nil, f.clock)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		svc.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return for a disabled scheduler")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := newFixture(t)
	svc, err := NewService(config.SweepConfig{Enabled: true, ExpireAt: []string{"11:00"}}, f.store, nil, f.clock)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
