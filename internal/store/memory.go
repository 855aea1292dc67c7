package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/zaqqye/simlab_backend/internal/apperr"
	"github.com/zaqqye/simlab_backend/internal/grading"
	"github.com/zaqqye/simlab_backend/internal/models"
	"github.com/zaqqye/simlab_backend/internal/scheduling"
)

// MemoryStore keeps everything in maps. Transactions run on a copy of the
// state that replaces the live one only when fn succeeds, so writers are
// serialized and a failed transaction leaves nothing behind. fn must only use
// the Tx it is given.
type MemoryStore struct {
	mu sync.RWMutex
	st *state
}

var (
	_ scheduling.Store = (*MemoryStore)(nil)
	_ grading.Store    = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{st: newState()}
}

func view[T any](m *MemoryStore, fn func(s *state) (T, error)) (T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(m.st)
}

func (m *MemoryStore) write(fn func(tx *memTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.st.clone()
	if err := fn(&memTx{state: next}); err != nil {
		return err
	}
	m.st = next
	return nil
}

// WithRooms implements scheduling.Store.
func (m *MemoryStore) WithRooms(ctx context.Context, roomIDs []string, fn func(tx scheduling.Tx) error) error {
	return m.write(func(tx *memTx) error {
		for _, id := range roomIDs {
			if _, ok := tx.rooms[id]; !ok {
				return apperr.ErrRoomNotFound.WithMeta("room_id", id)
			}
		}
		return fn(tx)
	})
}

// InTx implements grading.Store.
func (m *MemoryStore) InTx(ctx context.Context, fn func(tx grading.Tx) error) error {
	return m.write(func(tx *memTx) error { return fn(tx) })
}

// Seeding helpers. They assign an id when missing and return the stored row.

func (m *MemoryStore) PutUser(u models.User) models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	m.st.users[u.ID] = u
	return u
}

func (m *MemoryStore) PutRoom(r models.Room) models.Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	m.st.rooms[r.ID] = r
	return r
}

func (m *MemoryStore) PutClass(c models.Class) models.Class {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	m.st.classes[c.ID] = c
	return c
}

func (m *MemoryStore) PutPractice(p models.Practice) models.Practice {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	m.st.practices[p.ID] = p
	return p
}

// PutSimulation stores a simulation together with its participants, bypassing
// the scheduler.
func (m *MemoryStore) PutSimulation(sim models.Simulation, userIDs ...string) models.Simulation {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sim.ID == "" {
		sim.ID = uuid.NewString()
	}
	if sim.GradeStatus == "" {
		sim.GradeStatus = models.GradePending
	}
	m.st.simulations[sim.ID] = sim
	m.st.participants[sim.ID] = append([]string(nil), userIDs...)
	return sim
}

func (m *MemoryStore) Enroll(classID string, userIDs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.enrollments[classID] = append(m.st.enrollments[classID], userIDs...)
}

// Reads.

func (m *MemoryStore) FindRoom(ctx context.Context, id string) (models.Room, error) {
	return view(m, func(s *state) (models.Room, error) { return s.FindRoom(ctx, id) })
}

func (m *MemoryStore) FindRooms(ctx context.Context, ids []string) ([]models.Room, error) {
	return view(m, func(s *state) ([]models.Room, error) { return s.FindRooms(ctx, ids) })
}

func (m *MemoryStore) AllRooms(ctx context.Context) ([]models.Room, error) {
	return view(m, func(s *state) ([]models.Room, error) { return s.AllRooms(ctx) })
}

func (m *MemoryStore) BookingsForRoom(ctx context.Context, roomID string) ([]models.Booking, error) {
	return view(m, func(s *state) ([]models.Booking, error) { return s.BookingsForRoom(ctx, roomID) })
}

func (m *MemoryStore) BookingsForSimulation(ctx context.Context, simulationID string) ([]models.Booking, error) {
	return view(m, func(s *state) ([]models.Booking, error) { return s.BookingsForSimulation(ctx, simulationID) })
}

func (m *MemoryStore) FindPractice(ctx context.Context, id string) (models.Practice, error) {
	return view(m, func(s *state) (models.Practice, error) { return s.FindPractice(ctx, id) })
}

func (m *MemoryStore) PracticesForClass(ctx context.Context, classID string) ([]models.Practice, error) {
	return view(m, func(s *state) ([]models.Practice, error) { return s.PracticesForClass(ctx, classID) })
}

func (m *MemoryStore) FindSimulation(ctx context.Context, id string) (models.Simulation, error) {
	return view(m, func(s *state) (models.Simulation, error) { return s.FindSimulation(ctx, id) })
}

func (m *MemoryStore) ListSimulations(ctx context.Context, practiceID string) ([]models.Simulation, error) {
	return view(m, func(s *state) ([]models.Simulation, error) { return s.ListSimulations(ctx, practiceID) })
}

func (m *MemoryStore) FindUser(ctx context.Context, id string) (models.User, error) {
	return view(m, func(s *state) (models.User, error) { return s.FindUser(ctx, id) })
}

func (m *MemoryStore) SimulationUsers(ctx context.Context, simulationID string) ([]models.User, error) {
	return view(m, func(s *state) ([]models.User, error) { return s.SimulationUsers(ctx, simulationID) })
}

func (m *MemoryStore) FindStudentsInClass(ctx context.Context, classID string) ([]models.User, error) {
	return view(m, func(s *state) ([]models.User, error) { return s.FindStudentsInClass(ctx, classID) })
}

func (m *MemoryStore) FindClass(ctx context.Context, id string) (models.Class, error) {
	return view(m, func(s *state) (models.Class, error) { return s.FindClass(ctx, id) })
}

func (m *MemoryStore) FindTemplate(ctx context.Context, id string) (models.RubricTemplate, error) {
	return view(m, func(s *state) (models.RubricTemplate, error) { return s.FindTemplate(ctx, id) })
}

func (m *MemoryStore) ListTemplates(ctx context.Context, includeArchived bool) ([]models.RubricTemplate, error) {
	return view(m, func(s *state) ([]models.RubricTemplate, error) { return s.ListTemplates(ctx, includeArchived) })
}

func (m *MemoryStore) FindRubric(ctx context.Context, id string) (models.Rubric, error) {
	return view(m, func(s *state) (models.Rubric, error) { return s.FindRubric(ctx, id) })
}

func (m *MemoryStore) RubricForSimulation(ctx context.Context, simulationID string) (models.Rubric, error) {
	return view(m, func(s *state) (models.Rubric, error) { return s.RubricForSimulation(ctx, simulationID) })
}

func (m *MemoryStore) RubricsForTemplate(ctx context.Context, templateID string) ([]models.Rubric, error) {
	return view(m, func(s *state) ([]models.Rubric, error) { return s.RubricsForTemplate(ctx, templateID) })
}

func (m *MemoryStore) LatestRegisteredGrade(ctx context.Context, studentID, practiceID string) (*float64, error) {
	return view(m, func(s *state) (*float64, error) { return s.LatestRegisteredGrade(ctx, studentID, practiceID) })
}

type state struct {
	users        map[string]models.User
	rooms        map[string]models.Room
	classes      map[string]models.Class
	enrollments  map[string][]string
	practices    map[string]models.Practice
	simulations  map[string]models.Simulation
	bookings     map[string]models.Booking
	participants map[string][]string
	templates    map[string]models.RubricTemplate
	rubrics      map[string]models.Rubric
}

func newState() *state {
	return &state{
		users:        map[string]models.User{},
		rooms:        map[string]models.Room{},
		classes:      map[string]models.Class{},
		enrollments:  map[string][]string{},
		practices:    map[string]models.Practice{},
		simulations:  map[string]models.Simulation{},
		bookings:     map[string]models.Booking{},
		participants: map[string][]string{},
		templates:    map[string]models.RubricTemplate{},
		rubrics:      map[string]models.Rubric{},
	}
}

func (s *state) clone() *state {
	return &state{
		users:        copyMap(s.users),
		rooms:        copyMap(s.rooms),
		classes:      copyMap(s.classes),
		enrollments:  copyMap(s.enrollments),
		practices:    copyMap(s.practices),
		simulations:  copyMap(s.simulations),
		bookings:     copyMap(s.bookings),
		participants: copyMap(s.participants),
		templates:    copyMap(s.templates),
		rubrics:      copyMap(s.rubrics),
	}
}

// copyMap copies the map only; values holding slices share their backing
// arrays, which is fine as long as writers replace slices instead of editing
// them in place.
func copyMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (s *state) FindRoom(_ context.Context, id string) (models.Room, error) {
	r, ok := s.rooms[id]
	if !ok {
		return models.Room{}, apperr.ErrRoomNotFound.WithMeta("room_id", id)
	}
	return r, nil
}

func (s *state) FindRooms(ctx context.Context, ids []string) ([]models.Room, error) {
	out := make([]models.Room, 0, len(ids))
	for _, id := range ids {
		r, err := s.FindRoom(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *state) AllRooms(context.Context) ([]models.Room, error) {
	out := make([]models.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *state) BookingsForRoom(_ context.Context, roomID string) ([]models.Booking, error) {
	return s.filterBookings(func(b models.Booking) bool { return b.RoomIDRef == roomID }), nil
}

func (s *state) BookingsForSimulation(_ context.Context, simulationID string) ([]models.Booking, error) {
	return s.filterBookings(func(b models.Booking) bool { return b.SimulationIDRef == simulationID }), nil
}

func (s *state) filterBookings(keep func(models.Booking) bool) []models.Booking {
	var out []models.Booking
	for _, b := range s.bookings {
		if keep(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].StartsAt.Before(out[j].StartsAt)
		}
		return out[i].RoomIDRef < out[j].RoomIDRef
	})
	return out
}

func (s *state) FindPractice(_ context.Context, id string) (models.Practice, error) {
	p, ok := s.practices[id]
	if !ok {
		return models.Practice{}, apperr.ErrPracticeNotFound.WithMeta("practice_id", id)
	}
	return p, nil
}

func (s *state) PracticesForClass(_ context.Context, classID string) ([]models.Practice, error) {
	var out []models.Practice
	for _, p := range s.practices {
		if p.ClassIDRef == classID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *state) FindSimulation(_ context.Context, id string) (models.Simulation, error) {
	sim, ok := s.simulations[id]
	if !ok {
		return models.Simulation{}, apperr.ErrSimulationNotFound.WithMeta("simulation_id", id)
	}
	return sim, nil
}

func (s *state) ListSimulations(_ context.Context, practiceID string) ([]models.Simulation, error) {
	var out []models.Simulation
	for _, sim := range s.simulations {
		if sim.PracticeIDRef == practiceID {
			out = append(out, sim)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].StartsAt.Before(out[j].StartsAt)
		}
		return out[i].GroupNumber < out[j].GroupNumber
	})
	return out, nil
}

func (s *state) FindUser(_ context.Context, id string) (models.User, error) {
	u, ok := s.users[id]
	if !ok {
		return models.User{}, apperr.ErrUserNotFound.WithMeta("user_id", id)
	}
	return u, nil
}

func (s *state) SimulationUsers(_ context.Context, simulationID string) ([]models.User, error) {
	return s.usersByName(s.participants[simulationID], ""), nil
}

func (s *state) FindStudentsInClass(_ context.Context, classID string) ([]models.User, error) {
	if _, ok := s.classes[classID]; !ok {
		return nil, apperr.ErrClassNotFound.WithMeta("class_id", classID)
	}
	return s.usersByName(s.enrollments[classID], models.RoleStudent), nil
}

// usersByName resolves ids to users, optionally filtered by role, ordered by
// full name.
func (s *state) usersByName(ids []string, role string) []models.User {
	out := make([]models.User, 0, len(ids))
	for _, id := range ids {
		u, ok := s.users[id]
		if !ok || (role != "" && u.Role != role) {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FullName != out[j].FullName {
			return out[i].FullName < out[j].FullName
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *state) FindClass(_ context.Context, id string) (models.Class, error) {
	c, ok := s.classes[id]
	if !ok {
		return models.Class{}, apperr.ErrClassNotFound.WithMeta("class_id", id)
	}
	return c, nil
}

func (s *state) FindTemplate(_ context.Context, id string) (models.RubricTemplate, error) {
	t, ok := s.templates[id]
	if !ok {
		return models.RubricTemplate{}, apperr.ErrTemplateNotFound.WithMeta("template_id", id)
	}
	return t, nil
}

func (s *state) ListTemplates(_ context.Context, includeArchived bool) ([]models.RubricTemplate, error) {
	var out []models.RubricTemplate
	for _, t := range s.templates {
		if t.Archived && !includeArchived {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func (s *state) FindRubric(_ context.Context, id string) (models.Rubric, error) {
	r, ok := s.rubrics[id]
	if !ok {
		return models.Rubric{}, apperr.ErrRubricNotFound.WithMeta("rubric_id", id)
	}
	return r, nil
}

func (s *state) RubricForSimulation(_ context.Context, simulationID string) (models.Rubric, error) {
	for _, r := range s.rubrics {
		if r.SimulationIDRef == simulationID {
			return r, nil
		}
	}
	return models.Rubric{}, apperr.ErrRubricNotFound.WithMeta("simulation_id", simulationID)
}

func (s *state) RubricsForTemplate(_ context.Context, templateID string) ([]models.Rubric, error) {
	var out []models.Rubric
	for _, r := range s.rubrics {
		if r.TemplateIDRef == templateID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *state) LatestRegisteredGrade(_ context.Context, studentID, practiceID string) (*float64, error) {
	var latest *models.Simulation
	for id, sim := range s.simulations {
		if sim.PracticeIDRef != practiceID || sim.GradeStatus != models.GradeRegistered || sim.Grade == nil {
			continue
		}
		if !contains(s.participants[id], studentID) {
			continue
		}
		if latest == nil || gradedAfter(sim, *latest) {
			sim := sim
			latest = &sim
		}
	}
	if latest == nil {
		return nil, nil
	}
	g := *latest.Grade
	return &g, nil
}

func gradedAfter(a, b models.Simulation) bool {
	switch {
	case a.GradeDateTime != nil && b.GradeDateTime != nil && !a.GradeDateTime.Equal(*b.GradeDateTime):
		return a.GradeDateTime.After(*b.GradeDateTime)
	case a.GradeDateTime != nil && b.GradeDateTime == nil:
		return true
	case a.GradeDateTime == nil && b.GradeDateTime != nil:
		return false
	}
	return a.StartsAt.After(b.StartsAt)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// memTx writes into a cloned state.
type memTx struct {
	*state
}

func (tx *memTx) CreateSimulation(_ context.Context, sim *models.Simulation) error {
	if sim.ID == "" {
		sim.ID = uuid.NewString()
	}
	if sim.GradeStatus == "" {
		sim.GradeStatus = models.GradePending
	}
	tx.simulations[sim.ID] = *sim
	return nil
}

func (tx *memTx) UpdateSimulation(_ context.Context, sim *models.Simulation) error {
	if _, ok := tx.simulations[sim.ID]; !ok {
		return apperr.ErrSimulationNotFound.WithMeta("simulation_id", sim.ID)
	}
	tx.simulations[sim.ID] = *sim
	return nil
}

func (tx *memTx) DeleteSimulation(_ context.Context, id string) error {
	if _, ok := tx.simulations[id]; !ok {
		return apperr.ErrSimulationNotFound.WithMeta("simulation_id", id)
	}
	delete(tx.simulations, id)
	delete(tx.participants, id)
	for bid, b := range tx.bookings {
		if b.SimulationIDRef == id {
			delete(tx.bookings, bid)
		}
	}
	for rid, r := range tx.rubrics {
		if r.SimulationIDRef == id {
			delete(tx.rubrics, rid)
		}
	}
	return nil
}

// ReplaceBookings swaps a simulation's bookings and, like the database
// exclusion constraint, rejects any overlap with another simulation's
// booking on the same room.
func (tx *memTx) ReplaceBookings(_ context.Context, simulationID string, bookings []models.Booking) error {
	for id, b := range tx.bookings {
		if b.SimulationIDRef == simulationID {
			delete(tx.bookings, id)
		}
	}
	for _, nb := range bookings {
		for _, b := range tx.bookings {
			if b.RoomIDRef == nb.RoomIDRef && b.Overlaps(nb.StartsAt, nb.EndsAt) {
				return apperr.ErrRoomNotAvailable.WithMeta("room_id", nb.RoomIDRef)
			}
		}
		if nb.ID == "" {
			nb.ID = uuid.NewString()
		}
		nb.SimulationIDRef = simulationID
		tx.bookings[nb.ID] = nb
	}
	return nil
}

func (tx *memTx) ReplaceUsers(_ context.Context, simulationID string, userIDs []string) error {
	if _, ok := tx.simulations[simulationID]; !ok {
		return apperr.ErrSimulationNotFound.WithMeta("simulation_id", simulationID)
	}
	tx.participants[simulationID] = append([]string(nil), userIDs...)
	return nil
}

func (tx *memTx) CreateTemplate(_ context.Context, t *models.RubricTemplate) error {
	for _, other := range tx.templates {
		if other.Title == t.Title {
			return apperr.New(apperr.CodeInvalidRubric, "template title already exists")
		}
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	tx.templates[t.ID] = *t
	return nil
}

func (tx *memTx) UpdateTemplate(_ context.Context, t *models.RubricTemplate) error {
	if _, ok := tx.templates[t.ID]; !ok {
		return apperr.ErrTemplateNotFound.WithMeta("template_id", t.ID)
	}
	tx.templates[t.ID] = *t
	return nil
}

func (tx *memTx) CreateRubric(_ context.Context, r *models.Rubric) error {
	for _, other := range tx.rubrics {
		if other.SimulationIDRef == r.SimulationIDRef {
			return apperr.ErrRubricExists
		}
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	tx.rubrics[r.ID] = *r
	return nil
}

func (tx *memTx) UpdateRubric(_ context.Context, r *models.Rubric) error {
	if _, ok := tx.rubrics[r.ID]; !ok {
		return apperr.ErrRubricNotFound.WithMeta("rubric_id", r.ID)
	}
	tx.rubrics[r.ID] = *r
	return nil
}

func (tx *memTx) UpdatePractice(_ context.Context, p *models.Practice) error {
	if _, ok := tx.practices[p.ID]; !ok {
		return apperr.ErrPracticeNotFound.WithMeta("practice_id", p.ID)
	}
	tx.practices[p.ID] = *p
	return nil
}
