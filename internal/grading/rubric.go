package grading

import (
	"context"
	"fmt"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
	"gorm.io/datatypes"

	"github.com/zaqqye/simlab_backend/internal/apperr"
	"github.com/zaqqye/simlab_backend/internal/eventbus"
	"github.com/zaqqye/simlab_backend/internal/models"
)

// RubricEngine manages rubric templates and the per-simulation rubrics
// instantiated from them.
type RubricEngine struct {
	store Store
	settings
}

func NewRubricEngine(store Store, opts ...Option) *RubricEngine {
	return &RubricEngine{store: store, settings: newSettings(opts)}
}

// CreateTemplate validates and stores a new template.
func (e *RubricEngine) CreateTemplate(ctx context.Context, title string, criteria []models.Criteria, courseIDs []string) (models.RubricTemplate, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return models.RubricTemplate{}, invalid("template title is required")
	}
	if err := ValidateCriteria(criteria); err != nil {
		return models.RubricTemplate{}, err
	}
	t := models.RubricTemplate{
		Title:     title,
		Criteria:  datatypes.JSONSlice[models.Criteria](copyCriteria(criteria)),
		CourseIDs: datatypes.JSONSlice[string](append([]string(nil), courseIDs...)),
	}
	if err := e.store.InTx(ctx, func(tx Tx) error {
		return tx.CreateTemplate(ctx, &t)
	}); err != nil {
		return models.RubricTemplate{}, err
	}
	e.log.Infof("rubric template %q created with %d criteria", t.Title, len(t.Criteria))
	return t, nil
}

func (e *RubricEngine) GetTemplate(ctx context.Context, id string) (models.RubricTemplate, error) {
	return e.store.FindTemplate(ctx, id)
}

func (e *RubricEngine) ListTemplates(ctx context.Context, includeArchived bool) ([]models.RubricTemplate, error) {
	return e.store.ListTemplates(ctx, includeArchived)
}

// UpdateTemplateCriteria swaps a template's criteria and reconciles every
// rubric built from it. The returned map holds the non-empty diffs keyed by
// rubric id. Templates referenced by a scored rubric of a gradeable
// simulation are locked and must be cloned instead.
func (e *RubricEngine) UpdateTemplateCriteria(ctx context.Context, templateID string, criteria []models.Criteria) (models.RubricTemplate, map[string]ReconcileDiff, error) {
	if err := ValidateCriteria(criteria); err != nil {
		return models.RubricTemplate{}, nil, err
	}
	var (
		t     models.RubricTemplate
		diffs = map[string]ReconcileDiff{}
	)
	err := e.store.InTx(ctx, func(tx Tx) error {
		var err error
		t, err = tx.FindTemplate(ctx, templateID)
		if err != nil {
			return err
		}
		if t.Archived {
			return apperr.New(apperr.CodeTemplateLocked, "archived templates are read-only")
		}
		rubrics, err := tx.RubricsForTemplate(ctx, templateID)
		if err != nil {
			return err
		}
		for _, r := range rubrics {
			locked, err := lockedBy(ctx, tx, r)
			if err != nil {
				return err
			}
			if locked {
				return apperr.ErrTemplateLocked.WithMeta("rubric_id", r.ID)
			}
		}

		t.Criteria = datatypes.JSONSlice[models.Criteria](copyCriteria(criteria))
		if err := tx.UpdateTemplate(ctx, &t); err != nil {
			return err
		}
		for _, r := range rubrics {
			next, diff := ReconcileTemplateChange(r, criteria)
			if diff.Empty() {
				continue
			}
			if err := tx.UpdateRubric(ctx, &next); err != nil {
				return err
			}
			diffs[r.ID] = diff
		}
		return nil
	})
	if err != nil {
		return models.RubricTemplate{}, nil, err
	}
	for id, d := range diffs {
		e.log.Debugw("rubric reconciled", map[string]any{
			"rubric_id": id,
			"pruned":    len(d.Pruned),
			"added":     d.Added,
		})
	}
	return t, diffs, nil
}

// lockedBy reports whether r pins its template: it carries scores and its
// simulation has not been abandoned.
func lockedBy(ctx context.Context, tx Tx, r models.Rubric) (bool, error) {
	if !r.HasScores() {
		return false, nil
	}
	sim, err := tx.FindSimulation(ctx, r.SimulationIDRef)
	if apperr.IsCode(err, apperr.CodeSimulationNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return sim.GradeStatus != models.GradeNotEvaluable, nil
}

// CloneTemplate copies a template's criteria under a new title.
func (e *RubricEngine) CloneTemplate(ctx context.Context, templateID, title string) (models.RubricTemplate, error) {
	src, err := e.store.FindTemplate(ctx, templateID)
	if err != nil {
		return models.RubricTemplate{}, err
	}
	return e.CreateTemplate(ctx, title, src.Criteria, src.CourseIDs)
}

// ArchiveTemplate hides a template from new rubrics. Existing rubrics keep
// working.
func (e *RubricEngine) ArchiveTemplate(ctx context.Context, templateID string) error {
	return e.store.InTx(ctx, func(tx Tx) error {
		t, err := tx.FindTemplate(ctx, templateID)
		if err != nil {
			return err
		}
		if t.Archived {
			return nil
		}
		t.Archived = true
		return tx.UpdateTemplate(ctx, &t)
	})
}

// CreateRubric instantiates one unscored entry per template criteria for the
// simulation.
func (e *RubricEngine) CreateRubric(ctx context.Context, templateID, simulationID string) (models.Rubric, error) {
	var r models.Rubric
	err := e.store.InTx(ctx, func(tx Tx) error {
		sim, err := tx.FindSimulation(ctx, simulationID)
		if err != nil {
			return err
		}
		if sim.GradeStatus.Terminal() {
			return apperr.ErrGradeStatusTerminal.WithMeta("simulation_id", sim.ID)
		}
		t, err := tx.FindTemplate(ctx, templateID)
		if err != nil {
			return err
		}
		if t.Archived {
			return apperr.New(apperr.CodeTemplateLocked, "archived templates cannot be used for new rubrics")
		}
		switch _, err := tx.RubricForSimulation(ctx, simulationID); {
		case err == nil:
			return apperr.ErrRubricExists
		case !apperr.IsCode(err, apperr.CodeRubricNotFound):
			return err
		}

		evaluated := make([]models.EvaluatedCriteria, 0, len(t.Criteria))
		for _, c := range t.Criteria {
			evaluated = append(evaluated, models.EvaluatedCriteria{ID: c.ID})
		}
		r = models.Rubric{
			SimulationIDRef: sim.ID,
			TemplateIDRef:   t.ID,
			Evaluated:       evaluated,
			Total:           datatypes.NewJSONType(models.EvaluatedCriteria{ID: models.TotalEntryID}),
		}
		return tx.CreateRubric(ctx, &r)
	})
	if err != nil {
		return models.Rubric{}, err
	}
	return r, nil
}

func (e *RubricEngine) GetRubric(ctx context.Context, id string) (models.Rubric, error) {
	return e.store.FindRubric(ctx, id)
}

func (e *RubricEngine) RubricForSimulation(ctx context.Context, simulationID string) (models.Rubric, error) {
	return e.store.RubricForSimulation(ctx, simulationID)
}

// ScoreCriteria records the score and comment of one criteria.
func (e *RubricEngine) ScoreCriteria(ctx context.Context, rubricID, criteriaID string, score float64, comment string) (models.Rubric, error) {
	var out models.Rubric
	err := e.store.InTx(ctx, func(tx Tx) error {
		r, sim, err := rubricWithSimulation(ctx, tx, rubricID)
		if err != nil {
			return err
		}
		if sim.GradeStatus.Terminal() {
			return apperr.ErrGradeStatusTerminal.WithMeta("simulation_id", sim.ID)
		}
		idx := -1
		for i, ev := range r.Evaluated {
			if ev.ID == criteriaID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return apperr.ErrCriteriaNotFound.WithMeta("criteria_id", criteriaID)
		}
		t, err := tx.FindTemplate(ctx, r.TemplateIDRef)
		if err != nil {
			return err
		}
		c, ok := findCriteria(t.Criteria, criteriaID)
		if !ok {
			return apperr.ErrCriteriaNotFound.WithMeta("criteria_id", criteriaID)
		}
		if err := CheckScore(c, score); err != nil {
			return err
		}

		evaluated := copyEntries(r.Evaluated)
		v := score
		evaluated[idx].Score = &v
		evaluated[idx].Comment = comment
		r.Evaluated = evaluated
		if err := tx.UpdateRubric(ctx, &r); err != nil {
			return err
		}
		out = r
		return nil
	})
	return out, err
}

// FinalizeRubric totals a fully scored rubric on the configured grade scale
// and registers the grade on its simulation. Finalizing a registered rubric
// again returns the registered total.
func (e *RubricEngine) FinalizeRubric(ctx context.Context, rubricID string) (total float64, err error) {
	defer func() {
		result := "ok"
		if err != nil {
			result = string(apperr.GetCode(err))
		}
		e.metrics.ObserveFinalize(result)
	}()

	var (
		sim     models.Simulation
		already bool
	)
	err = e.store.InTx(ctx, func(tx Tx) error {
		r, s, err := rubricWithSimulation(ctx, tx, rubricID)
		if err != nil {
			return err
		}
		sim = s
		switch sim.GradeStatus {
		case models.GradeRegistered:
			if sim.Grade != nil {
				total, already = *sim.Grade, true
				return nil
			}
		case models.GradeNotEvaluable:
			return apperr.ErrGradeStatusTerminal.WithMeta("simulation_id", sim.ID)
		}
		t, err := tx.FindTemplate(ctx, r.TemplateIDRef)
		if err != nil {
			return err
		}
		total, err = e.total(r, t)
		if err != nil {
			return err
		}

		now := e.now().UTC()
		v := total
		r.Total = datatypes.NewJSONType(models.EvaluatedCriteria{ID: models.TotalEntryID, Score: &v})
		r.FinalizedAt = &now
		if err := tx.UpdateRubric(ctx, &r); err != nil {
			return err
		}
		sim.Grade = &v
		sim.GradeStatus = models.GradeRegistered
		sim.GradeDateTime = &now
		return tx.UpdateSimulation(ctx, &sim)
	})
	if err != nil {
		return 0, err
	}
	if !already {
		e.log.Infof("rubric %s finalized, simulation %s graded %.*f", rubricID, sim.ID, e.decimals, total)
		e.events.Publish(eventbus.GradeEvent{
			Type:         eventbus.GradeRegistered,
			SimulationID: sim.ID,
			Grade:        sim.Grade,
			At:           *sim.GradeDateTime,
		})
	}
	return total, nil
}

// total normalizes the summed scores to the grade scale.
func (e *RubricEngine) total(r models.Rubric, t models.RubricTemplate) (float64, error) {
	if len(r.Evaluated) == 0 {
		return 0, apperr.New(apperr.CodeIncompleteRubric, "rubric has no criteria")
	}
	scores := make([]float64, 0, len(r.Evaluated))
	points := make([]float64, 0, len(r.Evaluated))
	for _, ev := range r.Evaluated {
		if ev.Score == nil {
			return 0, apperr.ErrIncompleteRubric.WithMeta("criteria_id", ev.ID)
		}
		c, ok := findCriteria(t.Criteria, ev.ID)
		if !ok {
			return 0, apperr.ErrCriteriaNotFound.WithMeta("criteria_id", ev.ID)
		}
		scores = append(scores, *ev.Score)
		points = append(points, c.Points)
	}
	return scalar.Round(floats.Sum(scores)/floats.Sum(points)*e.maxGrade, e.decimals), nil
}

// AbandonRubric marks the rubric's simulation as not evaluable.
func (e *RubricEngine) AbandonRubric(ctx context.Context, rubricID string) error {
	var sim models.Simulation
	err := e.store.InTx(ctx, func(tx Tx) error {
		_, s, err := rubricWithSimulation(ctx, tx, rubricID)
		if err != nil {
			return err
		}
		if s.GradeStatus.Terminal() {
			return apperr.ErrGradeStatusTerminal.WithMeta("simulation_id", s.ID)
		}
		now := e.now().UTC()
		s.GradeStatus = models.GradeNotEvaluable
		s.GradeDateTime = &now
		sim = s
		return tx.UpdateSimulation(ctx, &s)
	})
	if err != nil {
		return err
	}
	e.log.Infof("rubric %s abandoned, simulation %s not evaluable", rubricID, sim.ID)
	e.events.Publish(eventbus.GradeEvent{
		Type:         eventbus.GradeNotEvaluable,
		SimulationID: sim.ID,
		At:           *sim.GradeDateTime,
	})
	return nil
}

func rubricWithSimulation(ctx context.Context, tx Tx, rubricID string) (models.Rubric, models.Simulation, error) {
	r, err := tx.FindRubric(ctx, rubricID)
	if err != nil {
		return models.Rubric{}, models.Simulation{}, err
	}
	sim, err := tx.FindSimulation(ctx, r.SimulationIDRef)
	if err != nil {
		return models.Rubric{}, models.Simulation{}, fmt.Errorf("rubric %s: %w", rubricID, err)
	}
	return r, sim, nil
}

func findCriteria(list []models.Criteria, id string) (models.Criteria, bool) {
	for _, c := range list {
		if c.ID == id {
			return c, true
		}
	}
	return models.Criteria{}, false
}

func copyCriteria(in []models.Criteria) []models.Criteria {
	out := make([]models.Criteria, len(in))
	for i, c := range in {
		c.ID = strings.TrimSpace(c.ID)
		c.Scale = append([]models.ScaleBucket(nil), c.Scale...)
		out[i] = c
	}
	return out
}
