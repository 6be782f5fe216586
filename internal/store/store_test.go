package store

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"parking-reservation-backend/internal/model"
)

// A helper function to create a mock database connection.
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

// newSQLiteDB opens a private in-memory database with the full schema.
func newSQLiteDB(t *testing.T) *gorm.DB {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&model.User{},
		&model.ParkingSpot{},
		&model.Reservation{},
		&model.SpotClaim{},
		&model.PushSubscription{},
		&model.AuditLog{},
	))
	return db
}

func newReservation(spot, day string, slot model.Slot) *model.Reservation {
	d, _ := time.Parse("2006-01-02", day)
	start := d.Add(8 * time.Hour)
	end := d.Add(18 * time.Hour)
	switch slot {
	case model.SlotMorning:
		end = d.Add(12 * time.Hour)
	case model.SlotAfternoon:
		start = d.Add(14 * time.Hour)
	}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &model.Reservation{
		ID:        uuid.NewString(),
		UserID:    "u1",
		SpotID:    spot,
		Day:       day,
		Slot:      slot,
		StartAt:   start,
		EndAt:     end,
		Status:    model.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestGormStore_ListSpots(t *testing.T) {
	gormDB, mock := newMockDB(t)
	s := NewGormStore(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "parking_spots" ORDER BY id`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "row", "number", "has_electric_charger"}).
			AddRow("A01", "A", 1, true).
			AddRow("B01", "B", 1, false))

	spots, err := s.ListSpots(context.Background())
	require.NoError(t, err)
	require.Len(t, spots, 2)
	assert.Equal(t, "A01", spots[0].ID)
	assert.True(t, spots[0].HasElectricCharger)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_FindReservation_NotFound(t *testing.T) {
	gormDB, mock := newMockDB(t)
	s := NewGormStore(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "reservations" WHERE id = $1`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.FindReservation(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_SaveReservation_Versioning(t *testing.T) {
	columns := []string{"id", "user_id", "spot_id", "day", "slot", "start_at", "end_at", "status", "version"}
	start := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	end := time.Date(2025, 6, 2, 18, 0, 0, 0, time.UTC)

	testCases := []struct {
		name             string
		version          int64
		mockExpectations func(mock sqlmock.Sqlmock)
		expectedErr      error
		expectedVersion  int64
	}{
		{
			name:    "Stale version read back, should conflict without writing",
			version: 2,
			mockExpectations: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "reservations" WHERE id = $1`)).
					WillReturnRows(sqlmock.NewRows(columns).
						AddRow("r1", "u1", "A01", "2025-06-02", "FULL_DAY", start, end, "ACTIVE", 3))
				mock.ExpectRollback()
			},
			expectedErr:     ErrVersionConflict,
			expectedVersion: 2,
		},
		{
			name:    "Row changed between read and write, should conflict",
			version: 3,
			mockExpectations: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "reservations" WHERE id = $1`)).
					WillReturnRows(sqlmock.NewRows(columns).
						AddRow("r1", "u1", "A01", "2025-06-02", "FULL_DAY", start, end, "ACTIVE", 3))
				mock.ExpectExec(regexp.QuoteMeta(`UPDATE "spot_claims"`)).
					WillReturnResult(sqlmock.NewResult(0, 2))
				mock.ExpectExec(regexp.QuoteMeta(`UPDATE "reservations"`)).
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectRollback()
			},
			expectedErr:     ErrVersionConflict,
			expectedVersion: 3,
		},
		{
			name:    "Matching version, should release claims and bump version",
			version: 3,
			mockExpectations: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "reservations" WHERE id = $1`)).
					WillReturnRows(sqlmock.NewRows(columns).
						AddRow("r1", "u1", "A01", "2025-06-02", "FULL_DAY", start, end, "ACTIVE", 3))
				mock.ExpectExec(regexp.QuoteMeta(`UPDATE "spot_claims"`)).
					WillReturnResult(sqlmock.NewResult(0, 2))
				mock.ExpectExec(regexp.QuoteMeta(`UPDATE "reservations"`)).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
			expectedVersion: 4,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gormDB, mock := newMockDB(t)
			s := NewGormStore(gormDB)

			tc.mockExpectations(mock)

			r := &model.Reservation{
				ID: "r1", UserID: "u1", SpotID: "A01", Day: "2025-06-02", Slot: model.SlotFullDay,
				StartAt: start, EndAt: end, Status: model.StatusCancelledByUser, Version: tc.version,
			}
			err := s.SaveReservation(context.Background(), r)

			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tc.expectedVersion, r.Version)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestGormStore_Claims(t *testing.T) {
	ctx := context.Background()
	s := NewGormStore(newSQLiteDB(t))

	morning := newReservation("A01", "2025-06-02", model.SlotMorning)
	require.NoError(t, s.SaveReservation(ctx, morning))
	assert.Equal(t, int64(1), morning.Version)

	// The afternoon of the same spot is still free.
	afternoon := newReservation("A01", "2025-06-02", model.SlotAfternoon)
	require.NoError(t, s.SaveReservation(ctx, afternoon))

	// A full day overlaps both halves.
	full := newReservation("A01", "2025-06-02", model.SlotFullDay)
	assert.ErrorIs(t, s.SaveReservation(ctx, full), ErrSlotTaken)

	_, err := s.FindReservation(ctx, full.ID)
	assert.ErrorIs(t, err, ErrNotFound, "failed insert must not leave a row")

	// Cancelling the morning frees that half only.
	require.NoError(t, morning.Transition(model.StatusCancelledByUser, morning.UpdatedAt))
	require.NoError(t, s.SaveReservation(ctx, morning))
	assert.Equal(t, int64(2), morning.Version)

	again := newReservation("A01", "2025-06-02", model.SlotMorning)
	require.NoError(t, s.SaveReservation(ctx, again))
	assert.ErrorIs(t, s.SaveReservation(ctx, newReservation("A01", "2025-06-02", model.SlotFullDay)), ErrSlotTaken)
}

func TestGormStore_MoveReleasesOldClaim(t *testing.T) {
	ctx := context.Background()
	s := NewGormStore(newSQLiteDB(t))

	r := newReservation("A01", "2025-06-02", model.SlotFullDay)
	require.NoError(t, s.SaveReservation(ctx, r))

	r.SpotID = "B02"
	require.NoError(t, s.SaveReservation(ctx, r))

	require.NoError(t, s.SaveReservation(ctx, newReservation("A01", "2025-06-02", model.SlotFullDay)))
	assert.ErrorIs(t, s.SaveReservation(ctx, newReservation("B02", "2025-06-02", model.SlotMorning)), ErrSlotTaken)
}

func TestGormStore_StaleCopyLoses(t *testing.T) {
	ctx := context.Background()
	s := NewGormStore(newSQLiteDB(t))

	r := newReservation("C03", "2025-06-03", model.SlotFullDay)
	require.NoError(t, s.SaveReservation(ctx, r))

	first, err := s.FindReservation(ctx, r.ID)
	require.NoError(t, err)
	second, err := s.FindReservation(ctx, r.ID)
	require.NoError(t, err)

	at := time.Date(2025, 6, 3, 9, 0, 0, 0, time.UTC)
	require.NoError(t, first.Transition(model.StatusCheckedIn, at))
	require.NoError(t, second.Transition(model.StatusCancelledByUser, at))

	require.NoError(t, s.SaveReservation(ctx, first))
	assert.ErrorIs(t, s.SaveReservation(ctx, second), ErrVersionConflict)

	stored, err := s.FindReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCheckedIn, stored.Status)
	assert.Equal(t, int64(2), stored.Version)
}

func TestGormStore_ConcurrentInsertsOneWins(t *testing.T) {
	ctx := context.Background()
	s := NewGormStore(newSQLiteDB(t))

	const contenders = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     int
		failures int
	)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.SaveReservation(ctx, newReservation("D04", "2025-06-04", model.SlotFullDay))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else {
				failures++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, contenders-1, failures)
}

func TestGormStore_SaveReservations_SkipsConflicts(t *testing.T) {
	ctx := context.Background()
	s := NewGormStore(newSQLiteDB(t))

	a := newReservation("A01", "2025-06-02", model.SlotFullDay)
	b := newReservation("A02", "2025-06-02", model.SlotFullDay)
	require.NoError(t, s.SaveReservation(ctx, a))
	require.NoError(t, s.SaveReservation(ctx, b))

	stale := *b
	require.NoError(t, b.Transition(model.StatusCheckedIn, b.StartAt))
	require.NoError(t, s.SaveReservation(ctx, b))

	at := a.StartAt.Add(time.Hour)
	require.NoError(t, a.Transition(model.StatusExpired, at))
	require.NoError(t, stale.Transition(model.StatusExpired, at))

	res, err := s.SaveReservations(ctx, []*model.Reservation{a, &stale})
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Selected: 2, Updated: 1, Conflicts: 1}, res)

	stored, err := s.FindReservation(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCheckedIn, stored.Status)
}

func TestGormStore_QueryReservations(t *testing.T) {
	ctx := context.Background()
	s := NewGormStore(newSQLiteDB(t))

	r1 := newReservation("A01", "2025-06-02", model.SlotMorning)
	r2 := newReservation("A01", "2025-06-02", model.SlotAfternoon)
	r3 := newReservation("B01", "2025-06-03", model.SlotFullDay)
	r3.UserID = "u2"
	for _, r := range []*model.Reservation{r1, r2, r3} {
		require.NoError(t, s.SaveReservation(ctx, r))
	}

	got, err := s.QueryReservations(ctx, ReservationFilter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, r1.ID, got[0].ID)

	got, err = s.QueryReservations(ctx, ReservationFilter{
		SpotID:       "A01",
		OverlapStart: time.Date(2025, 6, 2, 11, 0, 0, 0, time.UTC),
		OverlapEnd:   time.Date(2025, 6, 2, 13, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, r1.ID, got[0].ID)

	got, err = s.QueryReservations(ctx, ReservationFilter{DayFrom: "2025-06-03", Newest: true})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, r3.ID, got[0].ID)

	notCheckedIn := false
	got, err = s.QueryReservations(ctx, ReservationFilter{
		Day:         "2025-06-02",
		Statuses:    []model.ReservationStatus{model.StatusActive},
		CheckedIn:   &notCheckedIn,
		StartBefore: time.Date(2025, 6, 2, 11, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, r1.ID, got[0].ID)

	got, err = s.QueryReservations(ctx, ReservationFilter{UserID: "u1", ExcludeID: r1.ID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, r2.ID, got[0].ID)

	got, err = s.QueryReservations(ctx, ReservationFilter{
		Statuses: []model.ReservationStatus{model.StatusActive},
		EndAt:    time.Date(2025, 6, 3, 18, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, r3.ID, got[0].ID)

	got, err = s.QueryReservations(ctx, ReservationFilter{EndBefore: time.Date(2025, 6, 2, 18, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestGormStore_Subscriptions(t *testing.T) {
	ctx := context.Background()
	s := NewGormStore(newSQLiteDB(t))

	sub := &model.PushSubscription{Endpoint: "https://push/1", Username: "employee@test.com", P256DH: "k1", Auth: "a1"}
	require.NoError(t, s.PutSubscription(ctx, sub))

	sub2 := &model.PushSubscription{Endpoint: "https://push/1", Username: "employee@test.com", P256DH: "k2", Auth: "a2"}
	require.NoError(t, s.PutSubscription(ctx, sub2))

	subs, err := s.ListSubscriptions(ctx, "employee@test.com")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "k2", subs[0].P256DH)

	other := &model.PushSubscription{Endpoint: "https://push/1", Username: "manager@test.com", P256DH: "k3", Auth: "a3"}
	require.NoError(t, s.PutSubscription(ctx, other))
	got, err := s.GetSubscription(ctx, "https://push/1")
	require.NoError(t, err)
	assert.Equal(t, "employee@test.com", got.Username, "upsert keeps the owner")

	require.NoError(t, s.DeleteSubscription(ctx, "https://push/1"))
	_, err = s.GetSubscription(ctx, "https://push/1")
	assert.ErrorIs(t, err, ErrNotFound)
}
