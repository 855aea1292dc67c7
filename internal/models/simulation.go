package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type GradeStatus string

const (
	GradePending      GradeStatus = "PENDING"
	GradeRegistered   GradeStatus = "REGISTERED"
	GradeNotEvaluable GradeStatus = "NOT_EVALUABLE"
)

// Terminal reports whether no further grade transition is allowed.
func (s GradeStatus) Terminal() bool {
	return s == GradeRegistered || s == GradeNotEvaluable
}

// Simulation is one scheduled occurrence of a practice for one group. Rooms
// and participants are not carried here; load them through the scheduler.
type Simulation struct {
	ID            string      `gorm:"type:uuid;primaryKey"`
	PracticeIDRef string      `gorm:"type:uuid;not null;index"`
	GroupNumber   int         `gorm:"not null"`
	StartsAt      time.Time   `gorm:"type:timestamptz;not null"`
	EndsAt        time.Time   `gorm:"type:timestamptz;not null"`
	Grade         *float64    `json:",omitempty"`
	GradeStatus   GradeStatus `gorm:"size:16;not null;default:'PENDING';index"`
	GradeDateTime *time.Time  `gorm:"type:timestamptz"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (s *Simulation) BeforeCreate(tx *gorm.DB) (err error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// SimulationUser maps a participant to a simulation.
type SimulationUser struct {
	ID              uint   `gorm:"primaryKey"`
	SimulationIDRef string `gorm:"type:uuid;uniqueIndex:uniq_simulation_user"`
	UserIDRef       string `gorm:"type:uuid;uniqueIndex:uniq_simulation_user;index"`
	CreatedAt       time.Time
}
