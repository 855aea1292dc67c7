package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Course struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	Code      string `gorm:"uniqueIndex"`
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (m *Course) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// Class is one offering of a course that students enroll in and practices
// belong to.
type Class struct {
	ID          string `gorm:"type:uuid;primaryKey"`
	CourseIDRef string `gorm:"type:uuid;index"`
	Name        string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (m *Class) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// ClassEnrollment maps a student user to a class.
type ClassEnrollment struct {
	ID         uint   `gorm:"primaryKey"`
	ClassIDRef string `gorm:"type:uuid;uniqueIndex:uniq_class_student"`
	UserIDRef  string `gorm:"type:uuid;uniqueIndex:uniq_class_student"`
	CreatedAt  time.Time
}
