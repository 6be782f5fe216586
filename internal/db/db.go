package db

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"parking-reservation-backend/config"
	"parking-reservation-backend/internal/model"
)

// Init opens the database, runs migrations and seeds the reference data.
func Init(cfg *config.DatabaseConfig, now time.Time) (*gorm.DB, error) {
	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}

	log.Println("Running database migrations...")
	if err := Migrate(db); err != nil {
		return nil, err
	}

	if err := Seed(db, cfg.SeedUsers, now); err != nil {
		return nil, err
	}

	log.Println("Database initialization complete.")
	return db, nil
}

// Open connects with the configured driver and applies the pool settings.
func Open(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres", "":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel(cfg.LogLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	maxOpen, maxIdle := cfg.MaxOpenConns, cfg.MaxIdleConns
	lifetime := time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute
	if cfg.Driver == "sqlite" {
		// SQLite serialises writers, and an in-memory database lives only as
		// long as its connection.
		maxOpen, maxIdle, lifetime = 1, 1, 0
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(lifetime)

	return db, nil
}

// Migrate creates or updates every table the service uses.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.User{},
		&model.ParkingSpot{},
		&model.Reservation{},
		&model.SpotClaim{},
		&model.PushSubscription{},
		&model.AuditLog{},
	); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}
	return nil
}

// DefaultUsers are the accounts seeded for a fresh installation.
var DefaultUsers = []model.User{
	{Username: "employee@test.com", FirstName: "John", Role: model.RoleEmployee},
	{Username: "manager@test.com", FirstName: "Sarah", Role: model.RoleManager},
	{Username: "secretary@test.com", FirstName: "Marie", Role: model.RoleSecretary},
}

// Seed inserts the spot catalog and, optionally, the default users. Rows that
// already exist are left untouched.
func Seed(db *gorm.DB, withUsers bool, now time.Time) error {
	spots := model.DefaultCatalog()
	for i := range spots {
		spots[i].CreatedAt = now
	}
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&spots)
	if res.Error != nil {
		return fmt.Errorf("failed to seed parking spots: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		log.Printf("Seeded %d parking spots", res.RowsAffected)
	}

	if !withUsers {
		return nil
	}

	for _, u := range DefaultUsers {
		u.ID = uuid.NewString()
		u.Active = true
		u.CreatedAt = now
		u.UpdatedAt = now
		res := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "username"}},
			DoNothing: true,
		}).Create(&u)
		if res.Error != nil {
			return fmt.Errorf("failed to seed user %s: %w", u.Username, res.Error)
		}
		if res.RowsAffected > 0 {
			log.Printf("Seeded user %s (%s)", u.Username, u.Role)
		}
	}
	return nil
}

func logLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}
