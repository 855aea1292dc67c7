package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/zaqqye/simlab_backend/internal/apperr"
	"github.com/zaqqye/simlab_backend/internal/grading"
	"github.com/zaqqye/simlab_backend/internal/models"
	"github.com/zaqqye/simlab_backend/internal/scheduling"
)

// GormStore persists the scheduling and grading state in Postgres.
type GormStore struct {
	queries
	lockTimeout time.Duration
}

var (
	_ scheduling.Store = (*GormStore)(nil)
	_ grading.Store    = (*GormStore)(nil)
)

// NewGormStore returns a store on db. lockTimeout bounds the wait for room
// row locks inside WithRooms; zero leaves the server default.
func NewGormStore(db *gorm.DB, lockTimeout time.Duration) *GormStore {
	return &GormStore{queries: queries{db: db}, lockTimeout: lockTimeout}
}

// WithRooms locks the room rows FOR UPDATE in id order and runs fn in the
// same transaction.
func (s *GormStore) WithRooms(ctx context.Context, roomIDs []string, fn func(tx scheduling.Tx) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(roomIDs) > 0 {
			if s.lockTimeout > 0 {
				if err := tx.Exec(fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())).Error; err != nil {
					return err
				}
			}
			ids := append([]string(nil), roomIDs...)
			sort.Strings(ids)
			var rooms []models.Room
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("id IN ?", ids).
				Order("id").
				Find(&rooms).Error; err != nil {
				return err
			}
			if len(rooms) != len(ids) {
				return apperr.ErrRoomNotFound.WithMeta("room_id", missingRoom(ids, rooms))
			}
		}
		return fn(&gormTx{queries{db: tx}})
	})
	return mapError(err)
}

// InTx runs fn in one transaction.
func (s *GormStore) InTx(ctx context.Context, fn func(tx grading.Tx) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{queries{db: tx}})
	})
	return mapError(err)
}

func missingRoom(ids []string, rooms []models.Room) string {
	found := make(map[string]struct{}, len(rooms))
	for _, r := range rooms {
		found[r.ID] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			return id
		}
	}
	return ""
}

// mapError turns Postgres constraint and lock errors into domain errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23P01", "55P03":
		// exclusion_violation on bookings_no_overlap, lock_not_available on rooms
		return apperr.ErrRoomNotAvailable.WithMeta("constraint", pgErr.ConstraintName)
	case "23505":
		switch {
		case strings.Contains(pgErr.ConstraintName, "rubrics_simulation"):
			return apperr.ErrRubricExists
		case strings.Contains(pgErr.ConstraintName, "rubric_templates_title"):
			return apperr.New(apperr.CodeInvalidRubric, "template title already exists")
		}
	case "23514":
		if pgErr.ConstraintName == "chk_bookings_window" {
			return apperr.ErrInvalidWindow
		}
	}
	return fmt.Errorf("postgres %s: %w", pgErr.Code, err)
}

// notFound maps gorm.ErrRecordNotFound to the given domain error.
func notFound(err error, nf *apperr.Error, key, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nf.WithMeta(key, id)
	}
	return err
}

// queries are the reads shared by the store and its transactions.
type queries struct {
	db *gorm.DB
}

func (q queries) FindRoom(ctx context.Context, id string) (models.Room, error) {
	var r models.Room
	err := q.db.WithContext(ctx).First(&r, "id = ?", id).Error
	return r, notFound(err, apperr.ErrRoomNotFound, "room_id", id)
}

func (q queries) FindRooms(ctx context.Context, ids []string) ([]models.Room, error) {
	var rooms []models.Room
	if err := q.db.WithContext(ctx).Where("id IN ?", ids).Find(&rooms).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]models.Room, len(rooms))
	for _, r := range rooms {
		byID[r.ID] = r
	}
	out := make([]models.Room, 0, len(ids))
	for _, id := range ids {
		r, ok := byID[id]
		if !ok {
			return nil, apperr.ErrRoomNotFound.WithMeta("room_id", id)
		}
		out = append(out, r)
	}
	return out, nil
}

func (q queries) AllRooms(ctx context.Context) ([]models.Room, error) {
	var rooms []models.Room
	err := q.db.WithContext(ctx).Order("name ASC").Find(&rooms).Error
	return rooms, err
}

func (q queries) BookingsForRoom(ctx context.Context, roomID string) ([]models.Booking, error) {
	var out []models.Booking
	err := q.db.WithContext(ctx).
		Where("room_id_ref = ?", roomID).
		Order("starts_at ASC").
		Find(&out).Error
	return out, err
}

func (q queries) BookingsForSimulation(ctx context.Context, simulationID string) ([]models.Booking, error) {
	var out []models.Booking
	err := q.db.WithContext(ctx).
		Where("simulation_id_ref = ?", simulationID).
		Order("starts_at ASC, room_id_ref ASC").
		Find(&out).Error
	return out, err
}

func (q queries) FindPractice(ctx context.Context, id string) (models.Practice, error) {
	var p models.Practice
	err := q.db.WithContext(ctx).First(&p, "id = ?", id).Error
	return p, notFound(err, apperr.ErrPracticeNotFound, "practice_id", id)
}

func (q queries) PracticesForClass(ctx context.Context, classID string) ([]models.Practice, error) {
	var out []models.Practice
	err := q.db.WithContext(ctx).
		Where("class_id_ref = ?", classID).
		Order("name ASC, id ASC").
		Find(&out).Error
	return out, err
}

func (q queries) FindSimulation(ctx context.Context, id string) (models.Simulation, error) {
	var sim models.Simulation
	err := q.db.WithContext(ctx).First(&sim, "id = ?", id).Error
	return sim, notFound(err, apperr.ErrSimulationNotFound, "simulation_id", id)
}

func (q queries) ListSimulations(ctx context.Context, practiceID string) ([]models.Simulation, error) {
	var out []models.Simulation
	err := q.db.WithContext(ctx).
		Where("practice_id_ref = ?", practiceID).
		Order("starts_at ASC, group_number ASC").
		Find(&out).Error
	return out, err
}

func (q queries) FindUser(ctx context.Context, id string) (models.User, error) {
	var u models.User
	err := q.db.WithContext(ctx).First(&u, "id = ?", id).Error
	return u, notFound(err, apperr.ErrUserNotFound, "user_id", id)
}

func (q queries) SimulationUsers(ctx context.Context, simulationID string) ([]models.User, error) {
	var out []models.User
	err := q.db.WithContext(ctx).
		Joins("JOIN simulation_users su ON su.user_id_ref = users.id").
		Where("su.simulation_id_ref = ?", simulationID).
		Order("users.full_name ASC, users.id ASC").
		Find(&out).Error
	return out, err
}

func (q queries) FindStudentsInClass(ctx context.Context, classID string) ([]models.User, error) {
	if _, err := q.FindClass(ctx, classID); err != nil {
		return nil, err
	}
	var out []models.User
	err := q.db.WithContext(ctx).
		Joins("JOIN class_enrollments ce ON ce.user_id_ref = users.id").
		Where("ce.class_id_ref = ? AND users.role = ?", classID, models.RoleStudent).
		Order("users.full_name ASC, users.id ASC").
		Find(&out).Error
	return out, err
}

func (q queries) FindClass(ctx context.Context, id string) (models.Class, error) {
	var c models.Class
	err := q.db.WithContext(ctx).First(&c, "id = ?", id).Error
	return c, notFound(err, apperr.ErrClassNotFound, "class_id", id)
}

func (q queries) FindTemplate(ctx context.Context, id string) (models.RubricTemplate, error) {
	var t models.RubricTemplate
	err := q.db.WithContext(ctx).First(&t, "id = ?", id).Error
	return t, notFound(err, apperr.ErrTemplateNotFound, "template_id", id)
}

func (q queries) ListTemplates(ctx context.Context, includeArchived bool) ([]models.RubricTemplate, error) {
	var out []models.RubricTemplate
	db := q.db.WithContext(ctx).Order("title ASC")
	if !includeArchived {
		db = db.Where("archived = ?", false)
	}
	err := db.Find(&out).Error
	return out, err
}

func (q queries) FindRubric(ctx context.Context, id string) (models.Rubric, error) {
	var r models.Rubric
	err := q.db.WithContext(ctx).First(&r, "id = ?", id).Error
	return r, notFound(err, apperr.ErrRubricNotFound, "rubric_id", id)
}

func (q queries) RubricForSimulation(ctx context.Context, simulationID string) (models.Rubric, error) {
	var r models.Rubric
	err := q.db.WithContext(ctx).First(&r, "simulation_id_ref = ?", simulationID).Error
	return r, notFound(err, apperr.ErrRubricNotFound, "simulation_id", simulationID)
}

func (q queries) RubricsForTemplate(ctx context.Context, templateID string) ([]models.Rubric, error) {
	var out []models.Rubric
	err := q.db.WithContext(ctx).
		Where("template_id_ref = ?", templateID).
		Order("id ASC").
		Find(&out).Error
	return out, err
}

func (q queries) LatestRegisteredGrade(ctx context.Context, studentID, practiceID string) (*float64, error) {
	var sims []models.Simulation
	err := q.db.WithContext(ctx).
		Joins("JOIN simulation_users su ON su.simulation_id_ref = simulations.id").
		Where("su.user_id_ref = ? AND simulations.practice_id_ref = ?", studentID, practiceID).
		Where("simulations.grade_status = ? AND simulations.grade IS NOT NULL", models.GradeRegistered).
		Order("simulations.grade_date_time DESC NULLS LAST, simulations.starts_at DESC").
		Limit(1).
		Find(&sims).Error
	if err != nil || len(sims) == 0 {
		return nil, err
	}
	return sims[0].Grade, nil
}

type gormTx struct {
	queries
}

func (tx *gormTx) CreateSimulation(ctx context.Context, sim *models.Simulation) error {
	return mapError(tx.db.WithContext(ctx).Create(sim).Error)
}

func (tx *gormTx) UpdateSimulation(ctx context.Context, sim *models.Simulation) error {
	return mapError(tx.db.WithContext(ctx).Save(sim).Error)
}

func (tx *gormTx) DeleteSimulation(ctx context.Context, id string) error {
	db := tx.db.WithContext(ctx)
	if err := db.Where("simulation_id_ref = ?", id).Delete(&models.Booking{}).Error; err != nil {
		return err
	}
	if err := db.Where("simulation_id_ref = ?", id).Delete(&models.SimulationUser{}).Error; err != nil {
		return err
	}
	if err := db.Where("simulation_id_ref = ?", id).Delete(&models.Rubric{}).Error; err != nil {
		return err
	}
	res := db.Where("id = ?", id).Delete(&models.Simulation{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.ErrSimulationNotFound.WithMeta("simulation_id", id)
	}
	return nil
}

func (tx *gormTx) ReplaceBookings(ctx context.Context, simulationID string, bookings []models.Booking) error {
	db := tx.db.WithContext(ctx)
	if err := db.Where("simulation_id_ref = ?", simulationID).Delete(&models.Booking{}).Error; err != nil {
		return err
	}
	if len(bookings) == 0 {
		return nil
	}
	rows := make([]models.Booking, len(bookings))
	for i, b := range bookings {
		b.SimulationIDRef = simulationID
		rows[i] = b
	}
	return mapError(db.Create(&rows).Error)
}

func (tx *gormTx) ReplaceUsers(ctx context.Context, simulationID string, userIDs []string) error {
	db := tx.db.WithContext(ctx)
	if err := db.Where("simulation_id_ref = ?", simulationID).Delete(&models.SimulationUser{}).Error; err != nil {
		return err
	}
	if len(userIDs) == 0 {
		return nil
	}
	rows := make([]models.SimulationUser, 0, len(userIDs))
	for _, uid := range userIDs {
		rows = append(rows, models.SimulationUser{SimulationIDRef: simulationID, UserIDRef: uid})
	}
	return mapError(db.Create(&rows).Error)
}

func (tx *gormTx) CreateTemplate(ctx context.Context, t *models.RubricTemplate) error {
	return mapError(tx.db.WithContext(ctx).Create(t).Error)
}

func (tx *gormTx) UpdateTemplate(ctx context.Context, t *models.RubricTemplate) error {
	return mapError(tx.db.WithContext(ctx).Save(t).Error)
}

func (tx *gormTx) CreateRubric(ctx context.Context, r *models.Rubric) error {
	return mapError(tx.db.WithContext(ctx).Create(r).Error)
}

func (tx *gormTx) UpdateRubric(ctx context.Context, r *models.Rubric) error {
	return mapError(tx.db.WithContext(ctx).Save(r).Error)
}

func (tx *gormTx) UpdatePractice(ctx context.Context, p *models.Practice) error {
	return mapError(tx.db.WithContext(ctx).Save(p).Error)
}
