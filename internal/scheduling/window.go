package scheduling

import "time"

// Window is a half-open time interval [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Valid reports whether Start is strictly before End.
func (w Window) Valid() bool {
	return !w.Start.IsZero() && w.Start.Before(w.End)
}

// Overlaps reports whether w intersects [start, end). Touching endpoints do
// not overlap.
func (w Window) Overlaps(start, end time.Time) bool {
	return start.Before(w.End) && w.Start.Before(end)
}
