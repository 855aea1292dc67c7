package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TotalEntryID identifies the designated total entry of a rubric.
const TotalEntryID = "total"

// ScaleBucket is one inclusive [Lower, Upper] band of a criteria scale.
type ScaleBucket struct {
	Lower       float64 `json:"lower"`
	Upper       float64 `json:"upper"`
	Description string  `json:"description"`
}

type Criteria struct {
	ID     string        `json:"id"`
	Name   string        `json:"name"`
	Points float64       `json:"points"`
	Scale  []ScaleBucket `json:"scale"`
}

// RubricTemplate is the reusable structure rubrics are instantiated from.
// Criteria and course ids are stored as ordered jsonb documents.
type RubricTemplate struct {
	ID        string                        `gorm:"type:uuid;primaryKey"`
	Title     string                        `gorm:"uniqueIndex"`
	Criteria  datatypes.JSONSlice[Criteria] `gorm:"type:jsonb"`
	CourseIDs datatypes.JSONSlice[string]   `gorm:"type:jsonb"`
	Archived  bool                          `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (t *RubricTemplate) BeforeCreate(tx *gorm.DB) (err error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// EvaluatedCriteria is the score given for one template criteria. A nil
// Score means not yet evaluated.
type EvaluatedCriteria struct {
	ID      string   `json:"id"`
	Comment string   `json:"comment"`
	Score   *float64 `json:"score"`
}

// Rubric is the per-simulation instantiation of a template. Pruned keeps the
// entries dropped by template reconciliation.
type Rubric struct {
	ID              string                                 `gorm:"type:uuid;primaryKey"`
	SimulationIDRef string                                 `gorm:"type:uuid;uniqueIndex"`
	TemplateIDRef   string                                 `gorm:"type:uuid;index"`
	Evaluated       datatypes.JSONSlice[EvaluatedCriteria] `gorm:"type:jsonb"`
	Total           datatypes.JSONType[EvaluatedCriteria]  `gorm:"type:jsonb"`
	Pruned          datatypes.JSONSlice[EvaluatedCriteria] `gorm:"type:jsonb"`
	FinalizedAt     *time.Time                             `gorm:"type:timestamptz"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (r *Rubric) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// HasScores reports whether any criteria has been evaluated.
func (r Rubric) HasScores() bool {
	for _, e := range r.Evaluated {
		if e.Score != nil {
			return true
		}
	}
	return false
}
