package eventbus

import "time"

const (
	SimulationCreated = "simulation_created"
	SimulationUpdated = "simulation_updated"
	SimulationDeleted = "simulation_deleted"
	GradeRegistered   = "grade_registered"
	GradeNotEvaluable = "grade_not_evaluable"
)

// SimulationEvent is published after a scheduling change commits.
type SimulationEvent struct {
	Type         string    `json:"type"`
	SimulationID string    `json:"simulation_id"`
	PracticeID   string    `json:"practice_id"`
	GroupNumber  int       `json:"group_number"`
	RoomIDs      []string  `json:"room_ids"`
	StartsAt     time.Time `json:"starts_at"`
	EndsAt       time.Time `json:"ends_at"`
}

// GradeEvent is published when a simulation's grade status changes.
type GradeEvent struct {
	Type         string    `json:"type"`
	SimulationID string    `json:"simulation_id"`
	Grade        *float64  `json:"grade,omitempty"`
	At           time.Time `json:"at"`
}
