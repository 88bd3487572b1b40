// Package metrics records the timings and outcome of a run in Prometheus
// format, for scraping by the node exporter textfile collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the metrics of one run on its own registry. A nil
// Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	PhaseDuration *prometheus.GaugeVec
	Frames        *prometheus.CounterVec
	StepFailures  *prometheus.CounterVec
	Verdict       *prometheus.GaugeVec
}

// NewRecorder creates a recorder with a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		PhaseDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bridgetest_phase_duration_seconds",
			Help: "Wall time spent in each session phase",
		}, []string{"phase"}),
		Frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridgetest_frames_total",
			Help: "Frames exchanged with the bridge",
		}, []string{"phase", "direction"}),
		StepFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridgetest_step_failures_total",
			Help: "Failed steps by failure kind",
		}, []string{"kind"}),
		Verdict: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bridgetest_verdict",
			Help: "1 if the scenario passed, 0 if it failed",
		}, []string{"scenario"}),
	}
	r.registry.MustRegister(r.PhaseDuration, r.Frames, r.StepFailures, r.Verdict)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObservePhase records how long a phase took.
func (r *Recorder) ObservePhase(phase string, d time.Duration) {
	if r == nil {
		return
	}
	r.PhaseDuration.WithLabelValues(phase).Set(d.Seconds())
}

// CountFrame counts one frame; direction is "in" or "out".
func (r *Recorder) CountFrame(phase, direction string) {
	if r == nil {
		return
	}
	r.Frames.WithLabelValues(phase, direction).Inc()
}

// CountFailure counts a failed step.
func (r *Recorder) CountFailure(kind string) {
	if r == nil {
		return
	}
	r.StepFailures.WithLabelValues(kind).Inc()
}

// SetVerdict records the outcome of a scenario.
func (r *Recorder) SetVerdict(scenario string, passed bool) {
	if r == nil {
		return
	}
	v := 0.0
	if passed {
		v = 1
	}
	r.Verdict.WithLabelValues(scenario).Set(v)
}

// WriteFile writes every metric to path in the text exposition format.
// The file is replaced atomically.
func (r *Recorder) WriteFile(path string) error {
	if r == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
