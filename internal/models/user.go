package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RoleAdmin      = "admin"
	RoleInstructor = "instructor"
	RoleStudent    = "student"
)

type User struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	FullName  string
	Email     string `gorm:"uniqueIndex"`
	Password  string `json:"-"`
	Role      string `gorm:"size:32;index"`
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
