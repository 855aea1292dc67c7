package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Practice is a unit of coursework that spawns one simulation per group.
// Percentage is its weight in the class final grade.
type Practice struct {
	ID                        string `gorm:"type:uuid;primaryKey"`
	ClassIDRef                string `gorm:"type:uuid;index"`
	Name                      string
	Description               string `gorm:"type:text"`
	Type                      string `gorm:"size:64"`
	Gradeable                 bool
	SimulationDurationMinutes int
	NumberOfGroups            int
	MaxStudentsGroup          int
	Percentage                float64
	CreatedAt                 time.Time
	UpdatedAt                 time.Time
}

func (p *Practice) BeforeCreate(tx *gorm.DB) (err error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
