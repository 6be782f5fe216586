package db

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parking-reservation-backend/config"
	"parking-reservation-backend/internal/model"
)

func TestInit_SeedsOnce(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Driver:    "sqlite",
		DSN:       fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
		LogLevel:  "silent",
		SeedUsers: true,
	}
	now := time.Date(2025, 6, 2, 7, 0, 0, 0, time.UTC)

	gormDB, err := Init(cfg, now)
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	// A second run must not duplicate anything.
	require.NoError(t, Seed(gormDB, true, now))

	var spots int64
	require.NoError(t, gormDB.Model(&model.ParkingSpot{}).Count(&spots).Error)
	assert.Equal(t, int64(60), spots)

	var chargers int64
	require.NoError(t, gormDB.Model(&model.ParkingSpot{}).Where("has_electric_charger = ?", true).Count(&chargers).Error)
	assert.Equal(t, int64(20), chargers)

	var users []model.User
	require.NoError(t, gormDB.Order("username").Find(&users).Error)
	require.Len(t, users, 3)
	assert.Equal(t, "employee@test.com", users[0].Username)
	assert.Equal(t, model.RoleEmployee, users[0].Role)
	assert.Equal(t, model.RoleSecretary, users[2].Role)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(&config.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}
