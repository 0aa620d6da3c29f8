// Package metrics collects per-run counters and exports them in the
// Prometheus textfile-collector format, so short-lived orchestration runs
// can feed an existing node_exporter scrape pipeline.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"planloop/pkg/logx"
)

// Recorder owns one run's metric registry.
type Recorder struct {
	workflow string
	session  string

	registry       *prometheus.Registry
	invocations    *prometheus.CounterVec
	timeouts       *prometheus.CounterVec
	revisionCycles prometheus.Counter
	stepsCompleted prometheus.Counter
	runSeconds     prometheus.Gauge

	logger *logx.Logger
}

// NewRecorder creates a recorder for the given workflow ("planning" or
// "execution") and session name.
func NewRecorder(workflow, session string) *Recorder {
	constLabels := prometheus.Labels{"workflow": workflow, "session": session}

	r := &Recorder{
		workflow: workflow,
		session:  session,
		registry: prometheus.NewRegistry(),
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "planloop_agent_invocations_total",
			Help:        "Agent invocations by role.",
			ConstLabels: constLabels,
		}, []string{"role"}),
		timeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "planloop_agent_timeouts_total",
			Help:        "Agent invocation timeouts by role.",
			ConstLabels: constLabels,
		}, []string{"role"}),
		revisionCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "planloop_revision_cycles_total",
			Help:        "Producer rework cycles triggered by reviewer feedback.",
			ConstLabels: constLabels,
		}),
		stepsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "planloop_steps_completed_total",
			Help:        "Plan steps approved by the reviewer.",
			ConstLabels: constLabels,
		}),
		runSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "planloop_run_duration_seconds",
			Help:        "Wall-clock duration of the run.",
			ConstLabels: constLabels,
		}),
		logger: logx.NewLogger("metrics"),
	}

	r.registry.MustRegister(r.invocations, r.timeouts, r.revisionCycles, r.stepsCompleted, r.runSeconds)
	return r
}

// Invocation counts one agent invocation attempt for a role.
func (r *Recorder) Invocation(role string) {
	r.invocations.WithLabelValues(role).Inc()
}

// Timeout counts one invocation timeout for a role.
func (r *Recorder) Timeout(role string) {
	r.timeouts.WithLabelValues(role).Inc()
}

// RevisionCycle counts one rework round trip.
func (r *Recorder) RevisionCycle() {
	r.revisionCycles.Inc()
}

// StepCompleted counts one approved step.
func (r *Recorder) StepCompleted() {
	r.stepsCompleted.Inc()
}

// SetRunDuration records the total run duration in seconds.
func (r *Recorder) SetRunDuration(seconds float64) {
	r.runSeconds.Set(seconds)
}

// WriteTextfile gathers the registry and writes it to
// dir/planloop_<workflow>_<session>.prom. Best-effort at run exit; callers
// log rather than escalate failures.
func (r *Recorder) WriteTextfile(dir string) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create metrics dir %s: %w", dir, err)
	}

	families, err := r.registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("planloop_%s_%s.prom", r.workflow, r.session))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create metrics file %s: %w", path, err)
	}
	defer f.Close()

	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(f, mf); err != nil {
			return fmt.Errorf("failed to write metrics file %s: %w", path, err)
		}
	}

	r.logger.Info("Metrics written to %s", path)
	return nil
}
