package scheduling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 2, hour, minute, 0, 0, time.UTC)
}

func TestWindowValid(t *testing.T) {
	assert.True(t, Window{Start: at(9, 0), End: at(10, 0)}.Valid())
	assert.False(t, Window{Start: at(10, 0), End: at(10, 0)}.Valid())
	assert.False(t, Window{Start: at(11, 0), End: at(10, 0)}.Valid())
	assert.False(t, Window{End: at(10, 0)}.Valid())
}

func TestWindowOverlaps(t *testing.T) {
	w := Window{Start: at(9, 0), End: at(10, 0)}
	cases := []struct {
		name       string
		start, end time.Time
		want       bool
	}{
		{"same window", at(9, 0), at(10, 0), true},
		{"starts inside", at(9, 30), at(10, 30), true},
		{"ends inside", at(8, 30), at(9, 30), true},
		{"contains", at(8, 0), at(11, 0), true},
		{"inside", at(9, 15), at(9, 45), true},
		{"touches end", at(10, 0), at(11, 0), false},
		{"touches start", at(8, 0), at(9, 0), false},
		{"before", at(7, 0), at(8, 0), false},
		{"after", at(11, 0), at(12, 0), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, w.Overlaps(tc.start, tc.end))
			// the relation is symmetric
			other := Window{Start: tc.start, End: tc.end}
			assert.Equal(t, tc.want, other.Overlaps(w.Start, w.End))
		})
	}
}

func TestUniqueIDs(t *testing.T) {
	assert.Equal(t, []string{"b", "a"}, uniqueIDs([]string{"b", "", "a", "b"}))
	assert.Empty(t, uniqueIDs(nil))
}
