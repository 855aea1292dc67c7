package grading

import (
	"time"

	"github.com/zaqqye/simlab_backend/internal/eventbus"
	"github.com/zaqqye/simlab_backend/internal/logger"
	"github.com/zaqqye/simlab_backend/internal/metrics"
)

const (
	DefaultMaxGrade = 5.0
	DefaultDecimals = 2
	DefaultWorkers  = 8
)

type settings struct {
	events   eventbus.Publisher
	metrics  metrics.Recorder
	log      logger.Logger
	maxGrade float64
	decimals int
	workers  int
	now      func() time.Time
}

// Option customizes a RubricEngine or an Aggregator.
type Option func(*settings)

func WithPublisher(p eventbus.Publisher) Option {
	return func(s *settings) { s.events = p }
}

func WithMetrics(m metrics.Recorder) Option {
	return func(s *settings) { s.metrics = m }
}

func WithLogger(l logger.Logger) Option {
	return func(s *settings) { s.log = l }
}

// WithMaxGrade sets the top of the scale rubric totals are normalized to.
func WithMaxGrade(v float64) Option {
	return func(s *settings) {
		if v > 0 {
			s.maxGrade = v
		}
	}
}

// WithDecimals sets the rounding precision of totals and final grades.
func WithDecimals(n int) Option {
	return func(s *settings) {
		if n >= 0 {
			s.decimals = n
		}
	}
}

// WithWorkers bounds concurrent per-student computations.
func WithWorkers(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.workers = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

func newSettings(opts []Option) settings {
	s := settings{
		events:   eventbus.Nop{},
		metrics:  metrics.Nop{},
		log:      logger.NopLogger{},
		maxGrade: DefaultMaxGrade,
		decimals: DefaultDecimals,
		workers:  DefaultWorkers,
		now:      time.Now,
	}
	for _, o := range opts {
		o(&s)
	}
	return s
}
