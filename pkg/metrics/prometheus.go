// Package metrics provides Prometheus metrics for the recap pipeline.
package metrics

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the recap pipeline.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Ledger
	ingestInserted  prometheus.Counter
	ingestDuplicate prometheus.Counter

	// Canonicalizer
	canonicalRebuilds       prometheus.Counter
	canonicalRebuildSeconds prometheus.Histogram
	canonicalCreated        prometheus.Counter
	canonicalUpdated        prometheus.Counter
	canonicalRowsSkipped    prometheus.Counter

	// Windows and selection
	windowResolutions *prometheus.CounterVec
	selectionSize     prometheus.Gauge

	// Intake gate
	signalExclusions *prometheus.CounterVec
	signalInclusions prometheus.Counter

	// Artifact lifecycle
	artifactDrafts      *prometheus.CounterVec
	artifactTransitions *prometheus.CounterVec

	errorsByComponent *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "leaguerecap",
		subsystem:        "pipeline",
		histogramBuckets: prometheus.DefBuckets,
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.ingestInserted = m.counter("ingest_inserted_total", "Raw events appended to the ledger")
	m.ingestDuplicate = m.counter("ingest_duplicate_total", "Raw events ignored as (source, external id) duplicates")

	m.canonicalRebuilds = m.counter("canonical_rebuilds_total", "Committed canonical generations")
	m.canonicalRebuildSeconds = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "canonical_rebuild_duration_seconds",
		Help:        "Wall time of one canonical rebuild transaction",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	})
	m.canonicalCreated = m.counter("canonical_events_created_total", "Canonical events created across rebuilds")
	m.canonicalUpdated = m.counter("canonical_best_updated_total", "Times a later raw row displaced the best row")
	m.canonicalRowsSkipped = m.counter("canonical_rows_skipped_total", "Raw rows with an empty action fingerprint")

	m.windowResolutions = m.counterVec("window_resolutions_total", "Weekly window resolutions by mode", "mode")
	m.selectionSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "selection_size",
		Help:        "Canonical events in the most recent weekly selection",
		ConstLabels: m.constLabels,
	})

	m.signalExclusions = m.counterVec("signal_exclusions_total", "Signals excluded by the intake gate", "reason")
	m.signalInclusions = m.counter("signal_inclusions_total", "Signals included by the intake gate")

	m.artifactDrafts = m.counterVec("artifact_drafts_total", "Idempotent draft requests by outcome", "outcome")
	m.artifactTransitions = m.counterVec("artifact_transitions_total", "Artifact state transitions", "from", "to")

	m.errorsByComponent = m.counterVec("errors_total", "Operation errors by component", "component")
}

// RecordIngest counts one append attempt.
func RecordIngest(inserted bool) {
	if inserted {
		globalManager.ingestInserted.Inc()
		return
	}
	globalManager.ingestDuplicate.Inc()
}

// RecordCanonicalRebuild records a committed generation.
func RecordCanonicalRebuild(seconds float64, created, updated, skipped int) {
	globalManager.canonicalRebuilds.Inc()
	globalManager.canonicalRebuildSeconds.Observe(seconds)
	globalManager.canonicalCreated.Add(float64(created))
	globalManager.canonicalUpdated.Add(float64(updated))
	globalManager.canonicalRowsSkipped.Add(float64(skipped))
}

// RecordWindowResolution counts a resolved window by mode.
func RecordWindowResolution(mode string) {
	globalManager.windowResolutions.WithLabelValues(mode).Inc()
}

// UpdateSelectionSize sets the size of the latest selection.
func UpdateSelectionSize(n int) {
	globalManager.selectionSize.Set(float64(n))
}

// RecordSignalExclusion counts an excluded signal by reason.
func RecordSignalExclusion(reason string) {
	globalManager.signalExclusions.WithLabelValues(reason).Inc()
}

// RecordSignalInclusions counts included signals.
func RecordSignalInclusions(n int) {
	globalManager.signalInclusions.Add(float64(n))
}

// RecordArtifactDraft counts a draft request as created or noop.
func RecordArtifactDraft(created bool) {
	outcome := "noop"
	if created {
		outcome = "created"
	}
	globalManager.artifactDrafts.WithLabelValues(outcome).Inc()
}

// RecordArtifactTransition counts a committed state change.
func RecordArtifactTransition(from, to string) {
	globalManager.artifactTransitions.WithLabelValues(from, to).Inc()
}

// RecordError counts a failed operation.
func RecordError(component string) {
	globalManager.errorsByComponent.WithLabelValues(component).Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// WriteTextfile writes the current metrics in text exposition format for the
// node exporter textfile collector. The file is replaced atomically.
func WriteTextfile(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("%w: empty path", ErrExportFailed)
	}
	if err := prometheus.WriteToTextfile(path, customRegistry); err != nil {
		return fmt.Errorf("%w: %w", ErrExportFailed, err)
	}
	return nil
}
