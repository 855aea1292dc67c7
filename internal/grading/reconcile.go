package grading

import "github.com/zaqqye/simlab_backend/internal/models"

// ReconcileDiff records what a template change did to a rubric.
type ReconcileDiff struct {
	Pruned []models.EvaluatedCriteria `json:"pruned"`
	Added  []string                   `json:"added"`
}

// Empty reports whether the change left the rubric untouched.
func (d ReconcileDiff) Empty() bool {
	return len(d.Pruned) == 0 && len(d.Added) == 0
}

// ReconcileTemplateChange aligns a rubric's evaluated entries with a new
// criteria list. Entries whose id disappeared are returned in the diff (with
// their scores) instead of being dropped silently; new criteria get an
// unscored entry. The result follows newCriteria's order and the input
// rubric is never modified.
func ReconcileTemplateChange(rubric models.Rubric, newCriteria []models.Criteria) (models.Rubric, ReconcileDiff) {
	current := make(map[string]models.EvaluatedCriteria, len(rubric.Evaluated))
	for _, e := range rubric.Evaluated {
		current[e.ID] = e
	}
	wanted := make(map[string]struct{}, len(newCriteria))
	for _, c := range newCriteria {
		wanted[c.ID] = struct{}{}
	}

	var diff ReconcileDiff
	next := make([]models.EvaluatedCriteria, 0, len(newCriteria))
	for _, c := range newCriteria {
		if e, ok := current[c.ID]; ok {
			next = append(next, copyEntry(e))
			continue
		}
		next = append(next, models.EvaluatedCriteria{ID: c.ID})
		diff.Added = append(diff.Added, c.ID)
	}
	for _, e := range rubric.Evaluated {
		if _, ok := wanted[e.ID]; !ok {
			diff.Pruned = append(diff.Pruned, copyEntry(e))
		}
	}

	out := rubric
	out.Evaluated = next
	out.Pruned = append(copyEntries(rubric.Pruned), diff.Pruned...)
	return out, diff
}

func copyEntry(e models.EvaluatedCriteria) models.EvaluatedCriteria {
	if e.Score != nil {
		v := *e.Score
		e.Score = &v
	}
	return e
}

func copyEntries(in []models.EvaluatedCriteria) []models.EvaluatedCriteria {
	if in == nil {
		return nil
	}
	out := make([]models.EvaluatedCriteria, len(in))
	for i, e := range in {
		out[i] = copyEntry(e)
	}
	return out
}
