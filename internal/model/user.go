package model

import (
	"fmt"
	"strings"
	"time"
)

// Role is the closed set of user roles.
type Role string

const (
	RoleEmployee  Role = "EMPLOYEE"
	RoleSecretary Role = "SECRETARY"
	RoleManager   Role = "MANAGER"
)

// ParseRole accepts a role name in any case.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(s))); r {
	case RoleEmployee, RoleSecretary, RoleManager:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// User is consumed read-only by the reservation core. Username doubles as the notification address.
type User struct {
	ID        string    `gorm:"primaryKey;size:36"`
	Username  string    `gorm:"uniqueIndex;size:255;not null"`
	FirstName string    `gorm:"size:255"`
	Role      Role      `gorm:"type:varchar(16);not null"`
	Active    bool      `gorm:"not null;default:true"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// DisplayName falls back to the username when no first name is known.
func (u User) DisplayName() string {
	if u.FirstName != "" {
		return u.FirstName
	}
	return u.Username
}
