package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RoleAdmin    = "admin"
	RoleProctor  = "proctor"
	RoleStudent  = "student"
	RoleDetector = "detector"
)

// IsValidRole reports whether r is one of the account roles.
func IsValidRole(r string) bool {
	switch r {
	case RoleAdmin, RoleProctor, RoleStudent, RoleDetector:
		return true
	}
	return false
}

type User struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    string `gorm:"uniqueIndex"`
	FullName  string
	Email     string `gorm:"uniqueIndex"`
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.UserID == "" {
		u.UserID = uuid.NewString()
	}
	return nil
}
