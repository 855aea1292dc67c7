package grading

import (
	"context"

	"github.com/zaqqye/simlab_backend/internal/models"
)

// UserDirectory resolves users and class rosters.
type UserDirectory interface {
	FindUser(ctx context.Context, id string) (models.User, error)
	// FindStudentsInClass returns the enrolled students ordered by name.
	FindStudentsInClass(ctx context.Context, classID string) ([]models.User, error)
}

// Reader holds the lookups shared by Store and Tx.
type Reader interface {
	FindPractice(ctx context.Context, id string) (models.Practice, error)
	PracticesForClass(ctx context.Context, classID string) ([]models.Practice, error)
	FindSimulation(ctx context.Context, id string) (models.Simulation, error)
	ListSimulations(ctx context.Context, practiceID string) ([]models.Simulation, error)
	FindTemplate(ctx context.Context, id string) (models.RubricTemplate, error)
	FindRubric(ctx context.Context, id string) (models.Rubric, error)
	RubricForSimulation(ctx context.Context, simulationID string) (models.Rubric, error)
	RubricsForTemplate(ctx context.Context, templateID string) ([]models.Rubric, error)
}

// Tx writes grading state; all writes in one InTx call commit together.
type Tx interface {
	Reader
	CreateTemplate(ctx context.Context, t *models.RubricTemplate) error
	UpdateTemplate(ctx context.Context, t *models.RubricTemplate) error
	CreateRubric(ctx context.Context, r *models.Rubric) error
	UpdateRubric(ctx context.Context, r *models.Rubric) error
	UpdateSimulation(ctx context.Context, sim *models.Simulation) error
	UpdatePractice(ctx context.Context, p *models.Practice) error
}

// Store is the persistence the rubric engine and aggregator need.
type Store interface {
	Reader
	UserDirectory
	FindClass(ctx context.Context, id string) (models.Class, error)
	ListTemplates(ctx context.Context, includeArchived bool) ([]models.RubricTemplate, error)
	// LatestRegisteredGrade returns the grade of the student's most recent
	// REGISTERED simulation of the practice, or nil when there is none.
	LatestRegisteredGrade(ctx context.Context, studentID, practiceID string) (*float64, error)
	InTx(ctx context.Context, fn func(tx Tx) error) error
}
