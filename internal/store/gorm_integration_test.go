package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"

	"github.com/zaqqye/simlab_backend/internal/apperr"
	"github.com/zaqqye/simlab_backend/internal/database"
	"github.com/zaqqye/simlab_backend/internal/grading"
	"github.com/zaqqye/simlab_backend/internal/models"
	"github.com/zaqqye/simlab_backend/internal/scheduling"
)

// startPostgres launches a disposable Postgres and returns a migrated
// connection to it.
func startPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test")
	}
	if os.Getenv("DOCKER_AVAILABLE") != "true" && os.Getenv("DOCKER_AVAILABLE") != "1" {
		t.Skip("docker not available")
	}
	ctx := context.Background()
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "simlab",
				"POSTGRES_PASSWORD": "simlab",
				"POSTGRES_DB":       "simlab_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate postgres: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("host=%s port=%s user=simlab password=simlab dbname=simlab_test sslmode=disable TimeZone=UTC", host, port.Port())
	db, err := database.Open(dsn, false)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func TestGormStoreIntegration(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	st := NewGormStore(db, 500*time.Millisecond)

	roomA := models.Room{Name: "Room A", Capacity: 10, Active: true}
	roomB := models.Room{Name: "Room B", Capacity: 20, Active: true}
	require.NoError(t, db.Create(&roomA).Error)
	require.NoError(t, db.Create(&roomB).Error)
	class := models.Class{Name: "Nursing 3A"}
	require.NoError(t, db.Create(&class).Error)
	practice := models.Practice{ClassIDRef: class.ID, Name: "Triage", Gradeable: true, NumberOfGroups: 2, MaxStudentsGroup: 8, Percentage: 100}
	require.NoError(t, db.Create(&practice).Error)
	student := models.User{FullName: "Dana", Email: "dana@example.com", Role: models.RoleStudent, Active: true}
	require.NoError(t, db.Create(&student).Error)
	require.NoError(t, db.Create(&models.ClassEnrollment{ClassIDRef: class.ID, UserIDRef: student.ID}).Error)

	sched := scheduling.NewScheduler(st, scheduling.NewLocalReserver(time.Second))
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	win := func(h, m int) scheduling.Window {
		start := day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
		return scheduling.Window{Start: start, End: start.Add(time.Hour)}
	}

	sim, err := sched.CreateSimulation(ctx, scheduling.CreateRequest{
		PracticeID: practice.ID, RoomIDs: []string{roomA.ID, roomB.ID}, Window: win(9, 0), GroupNumber: 1,
	})
	require.NoError(t, err)

	t.Run("checker sees the booking", func(t *testing.T) {
		_, err := sched.CreateSimulation(ctx, scheduling.CreateRequest{
			PracticeID: practice.ID, RoomIDs: []string{roomB.ID}, Window: win(9, 30), GroupNumber: 2,
		})
		assert.True(t, errors.Is(err, apperr.ErrRoomNotAvailable), err)
		_, err = sched.CreateSimulation(ctx, scheduling.CreateRequest{
			PracticeID: practice.ID, RoomIDs: []string{roomB.ID}, Window: win(10, 0), GroupNumber: 2,
		})
		assert.NoError(t, err)
	})

	t.Run("exclusion constraint backs the checker", func(t *testing.T) {
		err := st.WithRooms(ctx, []string{roomA.ID}, func(tx scheduling.Tx) error {
			other := &models.Simulation{PracticeIDRef: practice.ID, GroupNumber: 2, StartsAt: win(9, 15).Start, EndsAt: win(9, 15).End}
			if err := tx.CreateSimulation(ctx, other); err != nil {
				return err
			}
			return tx.ReplaceBookings(ctx, other.ID, []models.Booking{
				{RoomIDRef: roomA.ID, GroupNumber: 2, StartsAt: other.StartsAt, EndsAt: other.EndsAt},
			})
		})
		assert.True(t, errors.Is(err, apperr.ErrRoomNotAvailable), err)
	})

	t.Run("participants and grading", func(t *testing.T) {
		require.NoError(t, sched.AssignUsers(ctx, sim.ID, []string{student.ID}))
		users, err := sched.LoadUsers(ctx, sim.ID)
		require.NoError(t, err)
		require.Len(t, users, 1)

		engine := grading.NewRubricEngine(st)
		tpl, err := engine.CreateTemplate(ctx, "Triage rubric", []models.Criteria{
			{ID: "a", Name: "Assessment", Points: 5, Scale: []models.ScaleBucket{{Lower: 0, Upper: 2}, {Lower: 3, Upper: 5}}},
		}, []string{"course-1"})
		require.NoError(t, err)
		_, err = engine.CreateTemplate(ctx, "Triage rubric", tpl.Criteria, nil)
		assert.True(t, errors.Is(err, apperr.ErrInvalidRubric), err)

		r, err := engine.CreateRubric(ctx, tpl.ID, sim.ID)
		require.NoError(t, err)
		_, err = engine.CreateRubric(ctx, tpl.ID, sim.ID)
		assert.True(t, errors.Is(err, apperr.ErrRubricExists), err)

		_, err = engine.ScoreCriteria(ctx, r.ID, "a", 4, "steady")
		require.NoError(t, err)
		total, err := engine.FinalizeRubric(ctx, r.ID)
		require.NoError(t, err)
		assert.InDelta(t, 4.0, total, 1e-9)

		grades, err := grading.NewAggregator(st).GetFinalGradesByClass(ctx, class.ID)
		require.NoError(t, err)
		require.Len(t, grades, 1)
		assert.InDelta(t, 4.0, grades[0].FinalGrade, 1e-9)
	})

	t.Run("delete cascades", func(t *testing.T) {
		require.NoError(t, sched.DeleteSimulation(ctx, sim.ID))
		bookings, err := st.BookingsForSimulation(ctx, sim.ID)
		require.NoError(t, err)
		assert.Empty(t, bookings)
		_, err = st.RubricForSimulation(ctx, sim.ID)
		assert.True(t, errors.Is(err, apperr.ErrRubricNotFound))
	})
}
