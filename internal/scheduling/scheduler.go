package scheduling

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/zaqqye/simlab_backend/internal/apperr"
	"github.com/zaqqye/simlab_backend/internal/eventbus"
	"github.com/zaqqye/simlab_backend/internal/logger"
	"github.com/zaqqye/simlab_backend/internal/metrics"
	"github.com/zaqqye/simlab_backend/internal/models"
)

// CreateRequest describes a new simulation for one practice group.
type CreateRequest struct {
	PracticeID  string
	RoomIDs     []string
	Window      Window
	GroupNumber int
}

// Scheduler creates, moves and deletes simulations together with their
// bookings.
type Scheduler struct {
	store    Store
	checker  *AvailabilityChecker
	reserver RoomReserver
	events   eventbus.Publisher
	metrics  metrics.Recorder
	log      logger.Logger
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

func WithPublisher(p eventbus.Publisher) Option {
	return func(s *Scheduler) { s.events = p }
}

func WithMetrics(m metrics.Recorder) Option {
	return func(s *Scheduler) { s.metrics = m }
}

func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

func NewScheduler(store Store, reserver RoomReserver, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:    store,
		checker:  NewAvailabilityChecker(store, store),
		reserver: reserver,
		events:   eventbus.Nop{},
		metrics:  metrics.Nop{},
		log:      logger.NopLogger{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Checker exposes the read-only availability checker backing the scheduler.
func (s *Scheduler) Checker() *AvailabilityChecker { return s.checker }

// CreateSimulation validates the practice, seats and window, then commits the
// simulation and one booking per room atomically.
func (s *Scheduler) CreateSimulation(ctx context.Context, req CreateRequest) (sim models.Simulation, err error) {
	defer func() { s.observe("create", err) }()

	roomIDs := uniqueIDs(req.RoomIDs)
	if err := validateRequest(roomIDs, req.Window); err != nil {
		return sim, err
	}
	practice, err := s.store.FindPractice(ctx, req.PracticeID)
	if err != nil {
		return sim, err
	}
	if practice.NumberOfGroups > 0 && (req.GroupNumber < 1 || req.GroupNumber > practice.NumberOfGroups) {
		return sim, apperr.New(apperr.CodeInvalidGroup,
			fmt.Sprintf("group number must be within 1..%d", practice.NumberOfGroups))
	}
	if err := s.requireCapacity(ctx, roomIDs, practice.MaxStudentsGroup); err != nil {
		return sim, err
	}

	sim = models.Simulation{
		ID:            uuid.NewString(),
		PracticeIDRef: practice.ID,
		GroupNumber:   req.GroupNumber,
		StartsAt:      req.Window.Start.UTC(),
		EndsAt:        req.Window.End.UTC(),
		GradeStatus:   models.GradePending,
	}
	err = s.commit(ctx, roomIDs, func(tx Tx) error {
		free, err := s.checker.within(tx).IsAvailable(ctx, roomIDs, req.Window)
		if err != nil {
			return err
		}
		if !free {
			return apperr.ErrRoomNotAvailable
		}
		if err := tx.CreateSimulation(ctx, &sim); err != nil {
			return err
		}
		return tx.ReplaceBookings(ctx, sim.ID, bookingsFor(sim, roomIDs))
	})
	if err != nil {
		return models.Simulation{}, err
	}
	s.log.Infof("simulation %s scheduled for practice %s group %d in %d room(s)", sim.ID, sim.PracticeIDRef, sim.GroupNumber, len(roomIDs))
	s.publish(eventbus.SimulationCreated, sim, roomIDs)
	return sim, nil
}

// UpdateSimulation moves a simulation to new rooms and/or a new window. Its
// own bookings never count as conflicts.
func (s *Scheduler) UpdateSimulation(ctx context.Context, id string, roomIDs []string, w Window) (sim models.Simulation, err error) {
	defer func() { s.observe("update", err) }()

	roomIDs = uniqueIDs(roomIDs)
	if err := validateRequest(roomIDs, w); err != nil {
		return sim, err
	}
	sim, err = s.store.FindSimulation(ctx, id)
	if err != nil {
		return sim, err
	}
	practice, err := s.store.FindPractice(ctx, sim.PracticeIDRef)
	if err != nil {
		return sim, err
	}
	seats := practice.MaxStudentsGroup
	participants, err := s.store.SimulationUsers(ctx, id)
	if err != nil {
		return sim, err
	}
	if len(participants) > seats {
		seats = len(participants)
	}
	if err := s.requireCapacity(ctx, roomIDs, seats); err != nil {
		return sim, err
	}

	err = s.commit(ctx, roomIDs, func(tx Tx) error {
		current, err := tx.FindSimulation(ctx, id)
		if err != nil {
			return err
		}
		free, err := s.checker.within(tx).IsAvailableExcluding(ctx, roomIDs, w, id)
		if err != nil {
			return err
		}
		if !free {
			return apperr.ErrRoomNotAvailable
		}
		current.StartsAt = w.Start.UTC()
		current.EndsAt = w.End.UTC()
		if err := tx.UpdateSimulation(ctx, &current); err != nil {
			return err
		}
		sim = current
		return tx.ReplaceBookings(ctx, id, bookingsFor(current, roomIDs))
	})
	if err != nil {
		return models.Simulation{}, err
	}
	s.log.Infof("simulation %s moved to %s - %s", sim.ID, sim.StartsAt.Format("2006-01-02 15:04"), sim.EndsAt.Format("15:04"))
	s.publish(eventbus.SimulationUpdated, sim, roomIDs)
	return sim, nil
}

// DeleteSimulation removes the simulation and cascades its bookings.
func (s *Scheduler) DeleteSimulation(ctx context.Context, id string) (err error) {
	defer func() { s.observe("delete", err) }()

	sim, err := s.store.FindSimulation(ctx, id)
	if err != nil {
		return err
	}
	bookings, err := s.store.BookingsForSimulation(ctx, id)
	if err != nil {
		return err
	}
	roomIDs := roomsOf(bookings)
	if err := s.store.WithRooms(ctx, roomIDs, func(tx Tx) error {
		return tx.DeleteSimulation(ctx, id)
	}); err != nil {
		return err
	}
	s.log.Infof("simulation %s deleted, released %d booking(s)", id, len(bookings))
	s.publish(eventbus.SimulationDeleted, sim, roomIDs)
	return nil
}

// AssignUsers replaces the participants of a simulation. The group may not
// exceed the practice's group size nor the smallest booked room.
func (s *Scheduler) AssignUsers(ctx context.Context, simulationID string, userIDs []string) (err error) {
	defer func() { s.observe("assign_users", err) }()

	userIDs = uniqueIDs(userIDs)
	sim, err := s.store.FindSimulation(ctx, simulationID)
	if err != nil {
		return err
	}
	practice, err := s.store.FindPractice(ctx, sim.PracticeIDRef)
	if err != nil {
		return err
	}
	if practice.MaxStudentsGroup > 0 && len(userIDs) > practice.MaxStudentsGroup {
		return apperr.New(apperr.CodeRoomCapacityInsufficient,
			fmt.Sprintf("group allows at most %d students", practice.MaxStudentsGroup))
	}
	rooms, err := s.LoadRooms(ctx, simulationID)
	if err != nil {
		return err
	}
	if len(rooms) > 0 && len(userIDs) > minCapacity(rooms) {
		return apperr.ErrRoomCapacityInsufficient
	}
	for _, uid := range userIDs {
		if _, err := s.store.FindUser(ctx, uid); err != nil {
			return err
		}
	}
	return s.store.WithRooms(ctx, nil, func(tx Tx) error {
		return tx.ReplaceUsers(ctx, simulationID, userIDs)
	})
}

func (s *Scheduler) GetSimulation(ctx context.Context, id string) (models.Simulation, error) {
	return s.store.FindSimulation(ctx, id)
}

// LoadRooms hydrates the rooms booked by a simulation.
func (s *Scheduler) LoadRooms(ctx context.Context, simulationID string) ([]models.Room, error) {
	bookings, err := s.store.BookingsForSimulation(ctx, simulationID)
	if err != nil {
		return nil, err
	}
	ids := roomsOf(bookings)
	if len(ids) == 0 {
		return nil, nil
	}
	return s.store.FindRooms(ctx, ids)
}

// LoadUsers hydrates the participants of a simulation.
func (s *Scheduler) LoadUsers(ctx context.Context, simulationID string) ([]models.User, error) {
	if _, err := s.store.FindSimulation(ctx, simulationID); err != nil {
		return nil, err
	}
	return s.store.SimulationUsers(ctx, simulationID)
}

// ListSimulations returns the simulations of a practice ordered by start.
func (s *Scheduler) ListSimulations(ctx context.Context, practiceID string) ([]models.Simulation, error) {
	if _, err := s.store.FindPractice(ctx, practiceID); err != nil {
		return nil, err
	}
	return s.store.ListSimulations(ctx, practiceID)
}

func (s *Scheduler) requireCapacity(ctx context.Context, roomIDs []string, seats int) error {
	ok, err := s.checker.HasCapacity(ctx, roomIDs, seats)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.New(apperr.CodeRoomCapacityInsufficient,
			fmt.Sprintf("a group of %d does not fit the smallest requested room", seats))
	}
	return nil
}

// commit reserves the rooms, then runs fn inside a room-locked transaction.
func (s *Scheduler) commit(ctx context.Context, roomIDs []string, fn func(tx Tx) error) error {
	if err := s.reserver.TryReserve(ctx, roomIDs); err != nil {
		s.log.Warnf("room reservation lost for %v: %v", roomIDs, err)
		return err
	}
	defer s.reserver.Release(roomIDs)
	return s.store.WithRooms(ctx, roomIDs, fn)
}

func (s *Scheduler) observe(op string, err error) {
	result := "ok"
	if err != nil {
		result = string(apperr.GetCode(err))
		var appErr *apperr.Error
		if !errors.As(err, &appErr) {
			s.log.Errorf("scheduler %s: %v", op, err)
		}
	}
	s.metrics.ObserveScheduling(op, result)
}

func (s *Scheduler) publish(kind string, sim models.Simulation, roomIDs []string) {
	s.events.Publish(eventbus.SimulationEvent{
		Type:         kind,
		SimulationID: sim.ID,
		PracticeID:   sim.PracticeIDRef,
		GroupNumber:  sim.GroupNumber,
		RoomIDs:      append([]string(nil), roomIDs...),
		StartsAt:     sim.StartsAt,
		EndsAt:       sim.EndsAt,
	})
}

func validateRequest(roomIDs []string, w Window) error {
	if !w.Valid() {
		return apperr.ErrInvalidWindow
	}
	if len(roomIDs) == 0 {
		return apperr.New(apperr.CodeRoomNotFound, "at least one room is required")
	}
	return nil
}

func bookingsFor(sim models.Simulation, roomIDs []string) []models.Booking {
	out := make([]models.Booking, 0, len(roomIDs))
	for _, id := range roomIDs {
		out = append(out, models.Booking{
			ID:              uuid.NewString(),
			RoomIDRef:       id,
			SimulationIDRef: sim.ID,
			GroupNumber:     sim.GroupNumber,
			StartsAt:        sim.StartsAt,
			EndsAt:          sim.EndsAt,
		})
	}
	return out
}

func roomsOf(bookings []models.Booking) []string {
	ids := make([]string, 0, len(bookings))
	for _, b := range bookings {
		ids = append(ids, b.RoomIDRef)
	}
	return uniqueIDs(ids)
}
