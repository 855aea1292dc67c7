package grading_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zaqqye/simlab_backend/internal/apperr"
	"github.com/zaqqye/simlab_backend/internal/eventbus"
	"github.com/zaqqye/simlab_backend/internal/grading"
	"github.com/zaqqye/simlab_backend/internal/models"
	"github.com/zaqqye/simlab_backend/internal/store"
)

var fixedNow = time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

func bucket(lo, hi float64) models.ScaleBucket {
	return models.ScaleBucket{Lower: lo, Upper: hi}
}

func communicationCriteria() []models.Criteria {
	return []models.Criteria{
		{ID: "communication", Name: "Communication", Points: 5,
			Scale: []models.ScaleBucket{bucket(0, 2), bucket(3, 4), bucket(5, 5)}},
		{ID: "technique", Name: "Technique", Points: 5,
			Scale: []models.ScaleBucket{bucket(0, 5)}},
	}
}

type rubricFixture struct {
	store  *store.MemoryStore
	engine *grading.RubricEngine
	bus    *eventbus.Bus
	sim    models.Simulation
	tpl    models.RubricTemplate
}

func newRubricFixture(t *testing.T) *rubricFixture {
	t.Helper()
	st := store.NewMemoryStore()
	bus := eventbus.New()
	t.Cleanup(bus.Close)
	engine := grading.NewRubricEngine(st,
		grading.WithPublisher(bus),
		grading.WithClock(func() time.Time { return fixedNow }),
	)
	practice := st.PutPractice(models.Practice{Name: "Triage", Gradeable: true})
	sim := st.PutSimulation(models.Simulation{PracticeIDRef: practice.ID, GroupNumber: 1})
	tpl, err := engine.CreateTemplate(context.Background(), "Triage rubric", communicationCriteria(), nil)
	require.NoError(t, err)
	return &rubricFixture{store: st, engine: engine, bus: bus, sim: sim, tpl: tpl}
}

func (f *rubricFixture) rubric(t *testing.T) models.Rubric {
	t.Helper()
	r, err := f.engine.CreateRubric(context.Background(), f.tpl.ID, f.sim.ID)
	require.NoError(t, err)
	return r
}

func TestCreateTemplateValidates(t *testing.T) {
	f := newRubricFixture(t)
	ctx := context.Background()

	_, err := f.engine.CreateTemplate(ctx, "Gappy", []models.Criteria{
		{ID: "a", Points: 5, Scale: []models.ScaleBucket{bucket(0, 2), bucket(4, 5)}},
	}, nil)
	assert.True(t, errors.Is(err, apperr.ErrInvalidRubric))

	_, err = f.engine.CreateTemplate(ctx, "Triage rubric", communicationCriteria(), nil)
	assert.True(t, errors.Is(err, apperr.ErrInvalidRubric), "duplicate title")

	_, err = f.engine.CreateTemplate(ctx, "  ", communicationCriteria(), nil)
	assert.True(t, errors.Is(err, apperr.ErrInvalidRubric))
}

func TestCreateRubric(t *testing.T) {
	f := newRubricFixture(t)
	ctx := context.Background()

	r := f.rubric(t)
	require.Len(t, r.Evaluated, 2)
	for _, e := range r.Evaluated {
		assert.Nil(t, e.Score)
		assert.Empty(t, e.Comment)
	}
	assert.Equal(t, models.TotalEntryID, r.Total.Data().ID)

	_, err := f.engine.CreateRubric(ctx, f.tpl.ID, f.sim.ID)
	assert.True(t, errors.Is(err, apperr.ErrRubricExists))

	_, err = f.engine.CreateRubric(ctx, "missing", f.sim.ID)
	assert.True(t, errors.Is(err, apperr.ErrTemplateNotFound))

	_, err = f.engine.CreateRubric(ctx, f.tpl.ID, "missing")
	assert.True(t, errors.Is(err, apperr.ErrSimulationNotFound))
}

func TestScoreCriteria(t *testing.T) {
	f := newRubricFixture(t)
	ctx := context.Background()
	r := f.rubric(t)

	got, err := f.engine.ScoreCriteria(ctx, r.ID, "communication", 4, "clear handover")
	require.NoError(t, err)
	require.NotNil(t, got.Evaluated[0].Score)
	assert.Equal(t, 4.0, *got.Evaluated[0].Score)
	assert.Equal(t, "clear handover", got.Evaluated[0].Comment)

	_, err = f.engine.ScoreCriteria(ctx, r.ID, "posture", 1, "")
	assert.True(t, errors.Is(err, apperr.ErrCriteriaNotFound))

	_, err = f.engine.ScoreCriteria(ctx, r.ID, "communication", 2.5, "")
	assert.True(t, errors.Is(err, apperr.ErrScoreOutOfRange), "2.5 falls between buckets")

	_, err = f.engine.ScoreCriteria(ctx, r.ID, "technique", 6, "")
	assert.True(t, errors.Is(err, apperr.ErrScoreOutOfRange))

	_, err = f.engine.ScoreCriteria(ctx, "missing", "technique", 1, "")
	assert.True(t, errors.Is(err, apperr.ErrRubricNotFound))

	stored, err := f.engine.GetRubric(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 4.0, *stored.Evaluated[0].Score, "failed scoring leaves earlier scores intact")
	assert.Nil(t, stored.Evaluated[1].Score)
}

func TestFinalizeRubric(t *testing.T) {
	f := newRubricFixture(t)
	ctx := context.Background()
	events := f.bus.Subscribe()
	r := f.rubric(t)

	_, err := f.engine.ScoreCriteria(ctx, r.ID, "communication", 4, "")
	require.NoError(t, err)

	_, err = f.engine.FinalizeRubric(ctx, r.ID)
	assert.True(t, errors.Is(err, apperr.ErrIncompleteRubric))
	sim, err := f.store.FindSimulation(ctx, f.sim.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GradePending, sim.GradeStatus)

	_, err = f.engine.ScoreCriteria(ctx, r.ID, "technique", 3, "")
	require.NoError(t, err)

	total, err := f.engine.FinalizeRubric(ctx, r.ID)
	require.NoError(t, err)
	// (4 + 3) / 10 * 5
	assert.InDelta(t, 3.5, total, 1e-9)

	sim, err = f.store.FindSimulation(ctx, f.sim.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GradeRegistered, sim.GradeStatus)
	require.NotNil(t, sim.Grade)
	assert.InDelta(t, 3.5, *sim.Grade, 1e-9)
	require.NotNil(t, sim.GradeDateTime)
	assert.True(t, fixedNow.Equal(*sim.GradeDateTime))

	stored, err := f.engine.GetRubric(ctx, r.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Total.Data().Score)
	assert.InDelta(t, 3.5, *stored.Total.Data().Score, 1e-9)

	again, err := f.engine.FinalizeRubric(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, total, again, "finalize is idempotent")

	_, err = f.engine.ScoreCriteria(ctx, r.ID, "technique", 5, "")
	assert.True(t, errors.Is(err, apperr.ErrGradeStatusTerminal))

	select {
	case ev := <-events:
		ge, ok := ev.(eventbus.GradeEvent)
		require.True(t, ok)
		assert.Equal(t, eventbus.GradeRegistered, ge.Type)
		assert.Equal(t, f.sim.ID, ge.SimulationID)
	case <-time.After(time.Second):
		t.Fatal("no grade event")
	}
}

func TestFinalizeRoundsToConfiguredScale(t *testing.T) {
	st := store.NewMemoryStore()
	engine := grading.NewRubricEngine(st, grading.WithMaxGrade(10), grading.WithDecimals(1))
	ctx := context.Background()
	practice := st.PutPractice(models.Practice{Name: "Suturing", Gradeable: true})
	sim := st.PutSimulation(models.Simulation{PracticeIDRef: practice.ID})
	tpl, err := engine.CreateTemplate(ctx, "Suturing", []models.Criteria{
		{ID: "a", Points: 3, Scale: []models.ScaleBucket{bucket(0, 3)}},
	}, nil)
	require.NoError(t, err)
	r, err := engine.CreateRubric(ctx, tpl.ID, sim.ID)
	require.NoError(t, err)
	_, err = engine.ScoreCriteria(ctx, r.ID, "a", 2, "")
	require.NoError(t, err)

	total, err := engine.FinalizeRubric(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 6.7, total)
}

func TestAbandonRubric(t *testing.T) {
	f := newRubricFixture(t)
	ctx := context.Background()
	r := f.rubric(t)

	require.NoError(t, f.engine.AbandonRubric(ctx, r.ID))
	sim, err := f.store.FindSimulation(ctx, f.sim.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GradeNotEvaluable, sim.GradeStatus)

	_, err = f.engine.FinalizeRubric(ctx, r.ID)
	assert.True(t, errors.Is(err, apperr.ErrGradeStatusTerminal))
	err = f.engine.AbandonRubric(ctx, r.ID)
	assert.True(t, errors.Is(err, apperr.ErrGradeStatusTerminal))
}

func TestUpdateTemplateCriteria(t *testing.T) {
	f := newRubricFixture(t)
	ctx := context.Background()
	r := f.rubric(t)

	next := []models.Criteria{
		communicationCriteria()[0],
		{ID: "safety", Name: "Safety", Points: 2, Scale: []models.ScaleBucket{bucket(0, 1), bucket(2, 2)}},
	}
	tpl, diffs, err := f.engine.UpdateTemplateCriteria(ctx, f.tpl.ID, next)
	require.NoError(t, err)
	assert.Len(t, tpl.Criteria, 2)
	require.Contains(t, diffs, r.ID)
	assert.Equal(t, []string{"safety"}, diffs[r.ID].Added)
	require.Len(t, diffs[r.ID].Pruned, 1)
	assert.Equal(t, "technique", diffs[r.ID].Pruned[0].ID)

	stored, err := f.engine.GetRubric(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "safety", stored.Evaluated[1].ID)

	// once scored, the template is pinned
	_, err = f.engine.ScoreCriteria(ctx, r.ID, "communication", 5, "")
	require.NoError(t, err)
	_, _, err = f.engine.UpdateTemplateCriteria(ctx, f.tpl.ID, communicationCriteria())
	assert.True(t, errors.Is(err, apperr.ErrTemplateLocked))

	// ... unless its simulation was abandoned
	require.NoError(t, f.engine.AbandonRubric(ctx, r.ID))
	_, diffs, err = f.engine.UpdateTemplateCriteria(ctx, f.tpl.ID, communicationCriteria())
	require.NoError(t, err)
	require.Contains(t, diffs, r.ID)
	stored, err = f.engine.GetRubric(ctx, r.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Pruned, 2, "pruned history accumulates")
}

func TestCloneAndArchiveTemplate(t *testing.T) {
	f := newRubricFixture(t)
	ctx := context.Background()

	clone, err := f.engine.CloneTemplate(ctx, f.tpl.ID, "Triage rubric v2")
	require.NoError(t, err)
	assert.NotEqual(t, f.tpl.ID, clone.ID)
	assert.Equal(t, []models.Criteria(f.tpl.Criteria), []models.Criteria(clone.Criteria))

	require.NoError(t, f.engine.ArchiveTemplate(ctx, f.tpl.ID))
	_, err = f.engine.CreateRubric(ctx, f.tpl.ID, f.sim.ID)
	assert.True(t, errors.Is(err, apperr.ErrTemplateLocked))

	active, err := f.engine.ListTemplates(ctx, false)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, clone.ID, active[0].ID)

	all, err := f.engine.ListTemplates(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = f.engine.CreateRubric(ctx, clone.ID, f.sim.ID)
	assert.NoError(t, err)
}
