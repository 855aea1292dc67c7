package grading

import (
	"fmt"
	"strings"

	"github.com/zaqqye/simlab_backend/internal/apperr"
	"github.com/zaqqye/simlab_backend/internal/models"
)

// scaleStep is the widest gap allowed between consecutive scale buckets:
// buckets are contiguous on the integer grid, so [0,2] may be followed by
// [3,4] but not by [4,5].
const scaleStep = 1.0

// ValidateCriteria checks ids, points and scale buckets of a criteria list.
// Each scale must start at 0, end at the criteria's points, and have ordered
// non-overlapping buckets with no gap wider than one point.
func ValidateCriteria(list []models.Criteria) error {
	if len(list) == 0 {
		return invalid("a rubric needs at least one criteria")
	}
	seen := make(map[string]struct{}, len(list))
	for _, c := range list {
		id := strings.TrimSpace(c.ID)
		if id == "" {
			return invalid("criteria id is required")
		}
		if id == models.TotalEntryID {
			return invalid(fmt.Sprintf("criteria id %q is reserved", id))
		}
		if _, dup := seen[id]; dup {
			return invalid(fmt.Sprintf("duplicate criteria id %q", id))
		}
		seen[id] = struct{}{}
		if c.Points <= 0 {
			return invalid(fmt.Sprintf("criteria %q must have positive points", id))
		}
		if err := validateScale(c); err != nil {
			return err
		}
	}
	return nil
}

func validateScale(c models.Criteria) error {
	if len(c.Scale) == 0 {
		return invalid(fmt.Sprintf("criteria %q needs a scoring scale", c.ID))
	}
	if c.Scale[0].Lower != 0 {
		return invalid(fmt.Sprintf("criteria %q scale must start at 0", c.ID))
	}
	for i, b := range c.Scale {
		if b.Lower > b.Upper {
			return invalid(fmt.Sprintf("criteria %q bucket %d has lower above upper", c.ID, i))
		}
		if i == 0 {
			continue
		}
		prev := c.Scale[i-1]
		if b.Lower <= prev.Upper {
			return invalid(fmt.Sprintf("criteria %q buckets %d and %d overlap", c.ID, i-1, i))
		}
		if b.Lower-prev.Upper > scaleStep {
			return invalid(fmt.Sprintf("criteria %q has a gap between buckets %d and %d", c.ID, i-1, i))
		}
	}
	if last := c.Scale[len(c.Scale)-1]; last.Upper != c.Points {
		return invalid(fmt.Sprintf("criteria %q scale must end at %g points", c.ID, c.Points))
	}
	return nil
}

// CheckScore reports whether score is within [0, points] and lands in exactly
// one scale bucket.
func CheckScore(c models.Criteria, score float64) error {
	if score < 0 || score > c.Points {
		return apperr.New(apperr.CodeScoreOutOfRange,
			fmt.Sprintf("score %g outside [0, %g] for criteria %q", score, c.Points, c.ID))
	}
	hits := 0
	for _, b := range c.Scale {
		if score >= b.Lower && score <= b.Upper {
			hits++
		}
	}
	if hits != 1 {
		return apperr.New(apperr.CodeScoreOutOfRange,
			fmt.Sprintf("score %g does not fall in a scale bucket of criteria %q", score, c.ID))
	}
	return nil
}

func invalid(msg string) error {
	return apperr.New(apperr.CodeInvalidRubric, msg)
}
