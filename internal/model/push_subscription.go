package model

import "time"

// PushSubscription holds the information for a browser push subscription.
// Username is the notification address it delivers for.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	Username  string    `gorm:"size:255;not null;index"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}
