package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/archive-debouncer/internal/progress"
)

// PrometheusSink exports debouncer lifecycle metrics via Prometheus.
type PrometheusSink struct {
	submissions     prometheus.Counter
	superseded      prometheus.Counter
	jobsCompleted   *prometheus.CounterVec
	jobsPending     prometheus.Gauge
	archiveDuration *prometheus.HistogramVec
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		submissions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "archiver_submissions_total",
			Help: "Total accepted archive submissions.",
		}),
		superseded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "archiver_superseded_total",
			Help: "Pending submissions superseded by a newer one.",
		}),
		jobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "archiver_jobs_completed_total",
			Help: "Delayed actions that finished, partitioned by result.",
		}, []string{"result"}),
		jobsPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "archiver_jobs_pending",
			Help: "Delayed actions scheduled or running.",
		}),
		archiveDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "archiver_archive_duration_seconds",
			Help:    "Latency of calls to the archival service.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"result"}),
	}
	for _, collector := range []prometheus.Collector{
		s.submissions,
		s.superseded,
		s.jobsCompleted,
		s.jobsPending,
		s.archiveDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors using the provided batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageSubmitted:
		s.submissions.Inc()
		s.jobsPending.Inc()
	case progress.StageSuperseded:
		s.superseded.Inc()
	case progress.StageStale:
		s.complete("stale")
	case progress.StageArchived:
		s.complete("archived")
		s.observeDuration(evt, "archived")
	case progress.StageFailed:
		s.complete("failed")
		s.observeDuration(evt, "failed")
	}
}

func (s *PrometheusSink) complete(result string) {
	s.jobsCompleted.WithLabelValues(result).Inc()
	s.jobsPending.Dec()
}

func (s *PrometheusSink) observeDuration(evt progress.Event, result string) {
	if evt.Dur > 0 {
		s.archiveDuration.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
