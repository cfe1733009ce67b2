package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics.
//
// A nil *Metrics is valid and records nothing, so components can take one
// optionally.
type Metrics struct {
	// Temp storage metrics
	TempRegistered     *prometheus.CounterVec
	TempCleaned        prometheus.Counter
	TempDeleteFailures prometheus.Counter
	TempActive         prometheus.Gauge
	TempRenames        *prometheus.CounterVec
	TempOrphansSwept   prometheus.Counter

	// Spill buffer metrics
	SpillMigrations   prometheus.Counter
	SpillBytesWritten *prometheus.CounterVec

	// Process metrics
	ProcessRuns     *prometheus.CounterVec
	ProcessDuration *prometheus.HistogramVec
	ProcessPumped   *prometheus.CounterVec
	ProcessActive   prometheus.Gauge

	// Snapshot for reports - track current values
	snapshot Snapshot

	mu sync.RWMutex
}

// Snapshot holds current metric values for reports.
type Snapshot struct {
	TempActive      int64
	SpillMigrations int64
	RunsByState     map[string]int64
}

// NewMetrics creates a new metrics collector registered with reg. A nil
// reg means prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		snapshot: Snapshot{RunsByState: map[string]int64{}},

		// Temp storage metrics
		TempRegistered: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "execcore_temp_items_registered_total",
				Help: "Total number of temp items registered for clean up",
			},
			[]string{"kind"},
		),
		TempCleaned: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "execcore_temp_items_cleaned_total",
				Help: "Total number of temp items removed from disk",
			},
		),
		TempDeleteFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "execcore_temp_delete_failures_total",
				Help: "Total number of individual paths that could not be deleted",
			},
		),
		TempActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "execcore_temp_items_active",
				Help: "Number of temp items currently registered",
			},
		),
		TempRenames: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "execcore_temp_renames_total",
				Help: "Rename-or-copy outcomes",
			},
			[]string{"result"},
		),
		TempOrphansSwept: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "execcore_temp_orphans_swept_total",
				Help: "Temp directories left behind by earlier processes and removed",
			},
		),

		// Spill buffer metrics
		SpillMigrations: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "execcore_spill_migrations_total",
				Help: "Number of buffers that moved from memory to a file",
			},
		),
		SpillBytesWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "execcore_spill_bytes_written_total",
				Help: "Bytes written to spill buffers by storage tier",
			},
			[]string{"tier"},
		),

		// Process metrics
		ProcessRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "execcore_process_runs_total",
				Help: "Process runs by terminal state",
			},
			[]string{"state"},
		),
		ProcessDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "execcore_process_run_duration_seconds",
				Help:    "Process run duration in seconds",
				Buckets: []float64{.005, .01, .05, .1, .5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"state"},
		),
		ProcessPumped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "execcore_process_pumped_bytes_total",
				Help: "Bytes drained from child output channels",
			},
			[]string{"stream"},
		),
		ProcessActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "execcore_process_runs_active",
				Help: "Number of runs currently in the running state",
			},
		),
	}
}

// RecordTempRegistered records a new clean-up registration.
func (m *Metrics) RecordTempRegistered(kind string, active int) {
	if m == nil {
		return
	}
	m.TempRegistered.WithLabelValues(kind).Inc()
	m.setTempActive(active)
}

// RecordTempCleaned records a clean-up item leaving the registry after deletion.
func (m *Metrics) RecordTempCleaned(active int) {
	if m == nil {
		return
	}
	m.TempCleaned.Inc()
	m.setTempActive(active)
}

// RecordTempForgotten records a registration dropped without deletion.
func (m *Metrics) RecordTempForgotten(active int) {
	if m == nil {
		return
	}
	m.setTempActive(active)
}

// RecordDeleteFailure records a single path that could not be removed.
func (m *Metrics) RecordDeleteFailure() {
	if m == nil {
		return
	}
	m.TempDeleteFailures.Inc()
}

// RecordRename records a rename-or-copy outcome ("renamed", "copied", "failed").
func (m *Metrics) RecordRename(result string) {
	if m == nil {
		return
	}
	m.TempRenames.WithLabelValues(result).Inc()
}

// RecordOrphansSwept records directories removed by an orphan sweep.
func (m *Metrics) RecordOrphansSwept(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.TempOrphansSwept.Add(float64(count))
}

// RecordSpillMigration records a buffer switching to file storage.
func (m *Metrics) RecordSpillMigration() {
	if m == nil {
		return
	}
	m.SpillMigrations.Inc()
	m.mu.Lock()
	m.snapshot.SpillMigrations++
	m.mu.Unlock()
}

// RecordSpillWrite records bytes written to the given tier ("memory", "file").
func (m *Metrics) RecordSpillWrite(tier string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SpillBytesWritten.WithLabelValues(tier).Add(float64(n))
}

// RecordRunStarted marks a run as entering the running state.
func (m *Metrics) RecordRunStarted() {
	if m == nil {
		return
	}
	m.ProcessActive.Inc()
}

// RecordRunFinished records a terminal run state. wasRunning tells whether
// RecordRunStarted was called for this run.
func (m *Metrics) RecordRunFinished(state string, duration time.Duration, wasRunning bool) {
	if m == nil {
		return
	}
	if wasRunning {
		m.ProcessActive.Dec()
	}
	m.ProcessRuns.WithLabelValues(state).Inc()
	m.ProcessDuration.WithLabelValues(state).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.RunsByState[state]++
	m.mu.Unlock()
}

// RecordPumped records bytes drained from a child stream ("stdout", "stderr").
func (m *Metrics) RecordPumped(stream string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.ProcessPumped.WithLabelValues(stream).Add(float64(n))
}

// Snapshot returns a copy of the tracked values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{RunsByState: map[string]int64{}}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	runs := make(map[string]int64, len(m.snapshot.RunsByState))
	for k, v := range m.snapshot.RunsByState {
		runs[k] = v
	}
	return Snapshot{
		TempActive:      m.snapshot.TempActive,
		SpillMigrations: m.snapshot.SpillMigrations,
		RunsByState:     runs,
	}
}

func (m *Metrics) setTempActive(active int) {
	m.TempActive.Set(float64(active))
	m.mu.Lock()
	m.snapshot.TempActive = int64(active)
	m.mu.Unlock()
}
