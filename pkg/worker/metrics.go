package worker

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors of workers. A single Metrics can
// be shared by all workers of a process; series are labeled by job type.
type Metrics struct {
	executed *prometheus.CounterVec
	duration *prometheus.HistogramVec
	resets   *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// Collectors already registered under the same names are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		executed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jobworker",
			Name:      "executed_jobs_total",
			Help:      "Counter for executed jobs.",
		}, []string{"type"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "jobworker",
			Name:      "job_processing_time_ms",
			Help:      "Histogram for job processing time in milliseconds.",
			Buckets:   prometheus.ExponentialBuckets(10, 4, 10),
		}, []string{"type"}),
		resets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jobworker",
			Name:      "job_resets_total",
			Help:      "Counter for jobs reset after a failed run.",
		}, []string{"type"}),
	}
	if reg == nil {
		return m, nil
	}

	var err error
	if m.executed, err = register(reg, m.executed); err != nil {
		return nil, err
	}
	if m.duration, err = register(reg, m.duration); err != nil {
		return nil, err
	}
	if m.resets, err = register(reg, m.resets); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *Metrics) jobExecuted(jobType string, d time.Duration) {
	if m == nil {
		return
	}
	m.executed.WithLabelValues(jobType).Inc()
	m.duration.WithLabelValues(jobType).Observe(float64(d.Milliseconds()))
}

func (m *Metrics) jobReset(jobType string) {
	if m == nil {
		return
	}
	m.resets.WithLabelValues(jobType).Inc()
}

// Stats is a snapshot of what a worker did since it was started.
type Stats struct {
	JobType            string     `json:"jobType"`
	Runner             string     `json:"runner"`
	ExecutedJobs       int64      `json:"executedJobs"`
	ResetJobs          int64      `json:"resetJobs"`
	LastJobDurationMs  int64      `json:"lastJobDurationMs"`
	JobIntervalSeconds *int64     `json:"jobIntervalSeconds,omitempty"`
	LastJobFinishedAt  *time.Time `json:"lastJobFinishedAt,omitempty"`
	Running            bool       `json:"running"`
}
