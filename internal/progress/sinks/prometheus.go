package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/alymdu/shortest-plates/internal/plates"
	"github.com/alymdu/shortest-plates/internal/progress"
)

// PrometheusSink exports enumeration progress via Prometheus collectors.
type PrometheusSink struct {
	runsStarted    prometheus.Counter
	runsCompleted  *prometheus.CounterVec
	running        prometheus.Gauge
	runRuntime     *prometheus.HistogramVec
	queueRemaining prometheus.Gauge

	probes        *prometheus.CounterVec
	probeDuration *prometheus.HistogramVec
	pauseSeconds  *prometheus.CounterVec
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "platechecker_runs_started_total",
			Help: "Total enumeration runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "platechecker_runs_completed_total",
			Help: "Total enumeration runs finished, partitioned by result.",
		}, []string{"result"}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "platechecker_run_active",
			Help: "1 while an enumeration run is active.",
		}),
		runRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "platechecker_run_runtime_seconds",
			Help:    "Wall time per finished run.",
			Buckets: []float64{60, 600, 3600, 6 * 3600, 12 * 3600, 24 * 3600, 48 * 3600},
		}, []string{"result"}),
		queueRemaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "platechecker_queue_remaining",
			Help: "Codes left to probe in the current run.",
		}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "platechecker_probes_total",
			Help: "Probes completed, partitioned by classified status.",
		}, []string{"status"}),
		probeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "platechecker_probe_duration_seconds",
			Help:    "Fetch latency per probe, partitioned by classified status.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
		}, []string{"status"}),
		pauseSeconds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "platechecker_pause_seconds_total",
			Help: "Pacing delay scheduled after probes, partitioned by kind.",
		}, []string{"kind"}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.running,
		s.runRuntime,
		s.queueRemaining,
		s.probes,
		s.probeDuration,
		s.pauseSeconds,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
		s.running.Set(1)
		s.queueRemaining.Set(float64(evt.Remaining))
	case progress.StageProbeDone:
		s.handleProbe(evt)
	case progress.StageRunDone:
		s.finishRun(evt, "done")
	case progress.StageRunStopped:
		s.finishRun(evt, "stopped")
	case progress.StageRunError:
		s.finishRun(evt, "error")
	}
}

func (s *PrometheusSink) handleProbe(evt progress.Event) {
	status := string(evt.Status)
	s.probes.WithLabelValues(status).Inc()
	if evt.Dur > 0 {
		s.probeDuration.WithLabelValues(status).Observe(evt.Dur.Seconds())
	}
	if evt.Pause > 0 {
		kind := "normal"
		if evt.Status == plates.StatusBlocked {
			kind = "block"
		}
		s.pauseSeconds.WithLabelValues(kind).Add(evt.Pause.Seconds())
	}
	s.queueRemaining.Set(float64(evt.Remaining))
}

func (s *PrometheusSink) finishRun(evt progress.Event, result string) {
	s.runsCompleted.WithLabelValues(result).Inc()
	s.running.Set(0)
	if evt.Dur > 0 {
		s.runRuntime.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
