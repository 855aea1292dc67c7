package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PromSink records scheduling and grading events in Prometheus metrics.
type PromSink struct {
	scheduling  *prometheus.CounterVec
	finalize    *prometheus.CounterVec
	aggregation *prometheus.HistogramVec
}

// NewPromSink registers the metrics on the provided Prometheus registerer.
// If reg is nil, the default registerer is used. If the collectors are already
// registered, the existing ones are reused.
func NewPromSink(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	scheduling := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "simlab_scheduling_operations_total",
		Help: "Scheduler operations by operation and result",
	}, []string{"operation", "result"})
	finalize := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "simlab_rubric_finalizations_total",
		Help: "Rubric finalization attempts by result",
	}, []string{"result"})
	aggregation := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "simlab_grade_aggregation_seconds",
		Help:    "Time spent computing final grades",
		Buckets: prometheus.DefBuckets,
	}, []string{"scope"})

	var err error
	if scheduling, err = register(reg, scheduling); err != nil {
		return nil, err
	}
	if finalize, err = register(reg, finalize); err != nil {
		return nil, err
	}
	if aggregation, err = register(reg, aggregation); err != nil {
		return nil, err
	}
	return &PromSink{scheduling: scheduling, finalize: finalize, aggregation: aggregation}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (s *PromSink) ObserveScheduling(operation, result string) {
	s.scheduling.WithLabelValues(operation, result).Inc()
}

func (s *PromSink) ObserveFinalize(result string) {
	s.finalize.WithLabelValues(result).Inc()
}

func (s *PromSink) ObserveAggregation(scope string, d time.Duration) {
	s.aggregation.WithLabelValues(scope).Observe(d.Seconds())
}
