package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RoomType classifies rooms (e.g. high-fidelity simulator, skills lab).
type RoomType struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	Name      string `gorm:"uniqueIndex"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (t *RoomType) BeforeCreate(tx *gorm.DB) (err error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// Room is read-mostly reference data. Capacity and type edits never touch
// bookings already made against the room.
type Room struct {
	ID            string  `gorm:"type:uuid;primaryKey"`
	Name          string  `gorm:"uniqueIndex"`
	Capacity      int     `gorm:"not null;check:chk_rooms_capacity,capacity > 0"`
	RoomTypeIDRef *string `gorm:"type:uuid;index"`
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (r *Room) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
