package scheduling

import (
	"context"

	"github.com/zaqqye/simlab_backend/internal/models"
)

// RoomCatalog exposes room reference data.
type RoomCatalog interface {
	FindRoom(ctx context.Context, id string) (models.Room, error)
	// FindRooms returns the rooms in the order of ids and fails with
	// apperr.ErrRoomNotFound when any id is unknown.
	FindRooms(ctx context.Context, ids []string) ([]models.Room, error)
	AllRooms(ctx context.Context) ([]models.Room, error)
}

// BookingStore answers booking queries.
type BookingStore interface {
	BookingsForRoom(ctx context.Context, roomID string) ([]models.Booking, error)
	BookingsForSimulation(ctx context.Context, simulationID string) ([]models.Booking, error)
}

// Tx is the transactional view handed to Store.WithRooms. Everything written
// through it commits together or not at all.
type Tx interface {
	BookingStore
	FindSimulation(ctx context.Context, id string) (models.Simulation, error)
	CreateSimulation(ctx context.Context, sim *models.Simulation) error
	UpdateSimulation(ctx context.Context, sim *models.Simulation) error
	// DeleteSimulation removes the simulation with its bookings, participants
	// and rubric.
	DeleteSimulation(ctx context.Context, id string) error
	ReplaceBookings(ctx context.Context, simulationID string, bookings []models.Booking) error
	ReplaceUsers(ctx context.Context, simulationID string, userIDs []string) error
}

// Store is the persistence the scheduler needs.
type Store interface {
	RoomCatalog
	BookingStore
	FindPractice(ctx context.Context, id string) (models.Practice, error)
	FindSimulation(ctx context.Context, id string) (models.Simulation, error)
	ListSimulations(ctx context.Context, practiceID string) ([]models.Simulation, error)
	FindUser(ctx context.Context, id string) (models.User, error)
	SimulationUsers(ctx context.Context, simulationID string) ([]models.User, error)
	// WithRooms runs fn in one transaction holding an exclusive lock on the
	// given rooms.
	WithRooms(ctx context.Context, roomIDs []string, fn func(tx Tx) error) error
}
