package metrics

import "time"

// Recorder receives scheduling and grading outcomes.
type Recorder interface {
	// ObserveScheduling counts one scheduler operation by its result code.
	ObserveScheduling(operation, result string)
	// ObserveFinalize counts one rubric finalization attempt.
	ObserveFinalize(result string)
	// ObserveAggregation records the duration of one final-grade computation.
	ObserveAggregation(scope string, d time.Duration)
}

// Nop discards all observations.
type Nop struct{}

func (Nop) ObserveScheduling(string, string)         {}
func (Nop) ObserveFinalize(string)                   {}
func (Nop) ObserveAggregation(string, time.Duration) {}
