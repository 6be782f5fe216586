package model

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog records one lifecycle transition.
type AuditLog struct {
	ID         int64             `gorm:"primaryKey;autoIncrement"`
	Timestamp  time.Time         `gorm:"not null;index"`
	ActorID    string            `gorm:"size:36"`
	Action     string            `gorm:"size:50;not null"`
	EntityType string            `gorm:"size:50;not null"`
	EntityID   string            `gorm:"size:36;index"`
	Details    datatypes.JSONMap `gorm:"type:text"`
}
