package grading

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"

	"github.com/zaqqye/simlab_backend/internal/apperr"
	"github.com/zaqqye/simlab_backend/internal/eventbus"
	"github.com/zaqqye/simlab_backend/internal/models"
)

// weightTolerance absorbs float error when checking that weights sum to 100.
const weightTolerance = 1e-9

// PracticeGrade is one practice's contribution to a final grade. A nil Grade
// means the student has no registered simulation for it and counts as 0.
type PracticeGrade struct {
	PracticeID   string   `json:"practice_id"`
	PracticeName string   `json:"practice_name"`
	Weight       float64  `json:"weight"`
	Grade        *float64 `json:"grade"`
}

// StudentGrade is a student's weighted final grade in a class.
type StudentGrade struct {
	StudentID   string          `json:"student_id"`
	StudentName string          `json:"student_name"`
	Practices   []PracticeGrade `json:"practices"`
	FinalGrade  float64         `json:"final_grade"`
}

// Aggregator derives final grades from registered simulation grades and
// practice weights. Nothing is cached; every call recomputes.
type Aggregator struct {
	store Store
	settings
}

func NewAggregator(store Store, opts ...Option) *Aggregator {
	return &Aggregator{store: store, settings: newSettings(opts)}
}

// ConfigureWeights sets the percentage weights of a class's practices.
// Practices left out get 0; non-gradeable practices may only carry 0. The
// weights of the gradeable practices must add up to 100.
func (a *Aggregator) ConfigureWeights(ctx context.Context, classID string, weights map[string]float64) ([]models.Practice, error) {
	if _, err := a.store.FindClass(ctx, classID); err != nil {
		return nil, err
	}
	var out []models.Practice
	err := a.store.InTx(ctx, func(tx Tx) error {
		practices, err := tx.PracticesForClass(ctx, classID)
		if err != nil {
			return err
		}
		known := make(map[string]struct{}, len(practices))
		for _, p := range practices {
			known[p.ID] = struct{}{}
		}
		for id, w := range weights {
			if _, ok := known[id]; !ok {
				return apperr.ErrPracticeNotFound.WithMeta("practice_id", id)
			}
			if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
				return apperr.New(apperr.CodeInvalidWeighting, fmt.Sprintf("weight of practice %s must be a non-negative number", id))
			}
		}

		next := make([]models.Practice, len(practices))
		for i, p := range practices {
			w := weights[p.ID]
			if !p.Gradeable && w != 0 {
				return apperr.New(apperr.CodeInvalidWeighting,
					fmt.Sprintf("practice %q is not gradeable and cannot carry weight", p.Name))
			}
			p.Percentage = w
			next[i] = p
		}
		if err := ValidateWeights(next); err != nil {
			return err
		}
		for i := range next {
			if err := tx.UpdatePractice(ctx, &next[i]); err != nil {
				return err
			}
		}
		out = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	a.log.Infof("weights configured for class %s across %d practice(s)", classID, len(out))
	return out, nil
}

// ValidateWeights checks that the gradeable practices' percentages are
// non-negative and sum to 100. A class without gradeable practices passes.
func ValidateWeights(practices []models.Practice) error {
	weights := gradeableWeights(practices)
	if len(weights) == 0 {
		return nil
	}
	for _, w := range weights {
		if w < 0 {
			return apperr.New(apperr.CodeInvalidWeighting, "weights must not be negative")
		}
	}
	if sum := floats.Sum(weights); math.Abs(sum-100) > weightTolerance {
		return apperr.New(apperr.CodeInvalidWeighting,
			fmt.Sprintf("practice weights sum to %g, expected 100", sum))
	}
	return nil
}

// MarkPracticeNotGradeable excludes a practice from grading. Its weight drops
// to 0 and every PENDING simulation of it becomes NOT_EVALUABLE; registered
// grades are left untouched. It returns the number of simulations moved.
func (a *Aggregator) MarkPracticeNotGradeable(ctx context.Context, practiceID string) (int, error) {
	var moved []models.Simulation
	err := a.store.InTx(ctx, func(tx Tx) error {
		p, err := tx.FindPractice(ctx, practiceID)
		if err != nil {
			return err
		}
		p.Gradeable = false
		p.Percentage = 0
		if err := tx.UpdatePractice(ctx, &p); err != nil {
			return err
		}
		sims, err := tx.ListSimulations(ctx, practiceID)
		if err != nil {
			return err
		}
		now := a.now().UTC()
		for _, sim := range sims {
			if sim.GradeStatus != models.GradePending {
				continue
			}
			sim.GradeStatus = models.GradeNotEvaluable
			sim.GradeDateTime = &now
			if err := tx.UpdateSimulation(ctx, &sim); err != nil {
				return err
			}
			moved = append(moved, sim)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	a.log.Warnf("practice %s marked not gradeable, %d simulation(s) not evaluable; class weights need reconfiguring", practiceID, len(moved))
	for _, sim := range moved {
		a.events.Publish(eventbus.GradeEvent{
			Type:         eventbus.GradeNotEvaluable,
			SimulationID: sim.ID,
			At:           *sim.GradeDateTime,
		})
	}
	return len(moved), nil
}

// ComputeFinalGrade returns the student's weighted final grade in a class.
func (a *Aggregator) ComputeFinalGrade(ctx context.Context, studentID, classID string) (StudentGrade, error) {
	started := time.Now()
	defer func() { a.metrics.ObserveAggregation("student", time.Since(started)) }()

	student, err := a.store.FindUser(ctx, studentID)
	if err != nil {
		return StudentGrade{}, err
	}
	practices, err := a.gradeablePractices(ctx, classID)
	if err != nil {
		return StudentGrade{}, err
	}
	return a.gradeFor(ctx, student, practices)
}

// GetFinalGradesByClass computes the final grade of every enrolled student,
// in directory order.
func (a *Aggregator) GetFinalGradesByClass(ctx context.Context, classID string) ([]StudentGrade, error) {
	started := time.Now()
	defer func() { a.metrics.ObserveAggregation("class", time.Since(started)) }()

	practices, err := a.gradeablePractices(ctx, classID)
	if err != nil {
		return nil, err
	}
	students, err := a.store.FindStudentsInClass(ctx, classID)
	if err != nil {
		return nil, err
	}

	out := make([]StudentGrade, len(students))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i, st := range students {
		i, st := i, st
		g.Go(func() error {
			sg, err := a.gradeFor(gctx, st, practices)
			if err != nil {
				return fmt.Errorf("student %s: %w", st.ID, err)
			}
			out[i] = sg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	a.log.Debugf("computed %d final grade(s) for class %s", len(out), classID)
	return out, nil
}

func (a *Aggregator) gradeablePractices(ctx context.Context, classID string) ([]models.Practice, error) {
	if _, err := a.store.FindClass(ctx, classID); err != nil {
		return nil, err
	}
	practices, err := a.store.PracticesForClass(ctx, classID)
	if err != nil {
		return nil, err
	}
	if err := ValidateWeights(practices); err != nil {
		return nil, err
	}
	out := practices[:0:0]
	for _, p := range practices {
		if p.Gradeable {
			out = append(out, p)
		}
	}
	return out, nil
}

// gradeFor applies final = Σ grade × weight / 100 with missing grades as 0.
func (a *Aggregator) gradeFor(ctx context.Context, student models.User, practices []models.Practice) (StudentGrade, error) {
	sg := StudentGrade{
		StudentID:   student.ID,
		StudentName: student.FullName,
		Practices:   make([]PracticeGrade, 0, len(practices)),
	}
	if len(practices) == 0 {
		return sg, nil
	}
	grades := make([]float64, len(practices))
	weights := make([]float64, len(practices))
	for i, p := range practices {
		g, err := a.store.LatestRegisteredGrade(ctx, student.ID, p.ID)
		if err != nil {
			return StudentGrade{}, err
		}
		if g != nil {
			grades[i] = *g
		}
		weights[i] = p.Percentage
		sg.Practices = append(sg.Practices, PracticeGrade{
			PracticeID:   p.ID,
			PracticeName: p.Name,
			Weight:       p.Percentage,
			Grade:        g,
		})
	}
	sg.FinalGrade = scalar.Round(floats.Dot(grades, weights)/100, a.decimals)
	return sg, nil
}

func gradeableWeights(practices []models.Practice) []float64 {
	var out []float64
	for _, p := range practices {
		if p.Gradeable {
			out = append(out, p.Percentage)
		}
	}
	return out
}
