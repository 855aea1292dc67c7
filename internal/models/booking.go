package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Booking reserves a room for one simulation group over [StartsAt, EndsAt).
// Overlap on the same room is rejected by the bookings_no_overlap exclusion
// constraint created in database.Migrate.
type Booking struct {
	ID              string    `gorm:"type:uuid;primaryKey"`
	RoomIDRef       string    `gorm:"type:uuid;not null;index"`
	SimulationIDRef string    `gorm:"type:uuid;not null;index"`
	GroupNumber     int       `gorm:"not null"`
	StartsAt        time.Time `gorm:"type:timestamptz;not null;index"`
	EndsAt          time.Time `gorm:"type:timestamptz;not null"`
	CreatedAt       time.Time
}

func (b *Booking) BeforeCreate(tx *gorm.DB) (err error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

// Overlaps reports whether the booking intersects [start, end). Touching
// endpoints do not overlap.
func (b Booking) Overlaps(start, end time.Time) bool {
	return b.StartsAt.Before(end) && start.Before(b.EndsAt)
}
