// Package metrics holds the Prometheus collectors for forgeq. A CLI run is
// short-lived, so collectors live in a private registry that can be dumped in
// text exposition format (for node_exporter's textfile collector) on exit.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rzbill/forgeq/internal/feature"
	pebblestore "github.com/rzbill/forgeq/internal/storage/pebble"
)

const namespace = "forgeq"

// Outcome labels for claim attempts.
const (
	ClaimWon      = "won"
	ClaimAlready  = "already_claimed"
	ClaimRefused  = "refused"
	outcomeOK     = "ok"
	storageRead   = "read"
	storageWrite  = "write"
	storageCommit = "commit"
)

// Metrics is the set of forgeq collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// operations counts service operations.
	// Labels: op, outcome (ok or an error kind)
	operations *prometheus.CounterVec

	// latency measures service operation latency.
	// Labels: op
	latency *prometheus.HistogramVec

	// claims counts claim attempts by outcome.
	// Labels: outcome (won, already_claimed, refused)
	claims *prometheus.CounterVec

	// features reports backlog counts from the last stats read.
	// Labels: state (passing, in_progress, total)
	features *prometheus.GaugeVec

	// storageLatency and storageBytes observe the Pebble backend.
	// Labels: kind (read, write, commit)
	storageLatency *prometheus.HistogramVec
	storageBytes   *prometheus.CounterVec
	batchOps       prometheus.Histogram
}

// New registers every collector in a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Total feature operations by outcome",
		}, []string{"op", "outcome"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Feature operation latency in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"op"}),
		claims: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claims_total",
			Help:      "Claim attempts by outcome",
		}, []string{"outcome"}),
		features: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "features",
			Help:      "Features in the backlog by state",
		}, []string{"state"}),
		storageLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "duration_seconds",
			Help:      "Embedded storage latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 8),
		}, []string{"kind"}),
		storageBytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "bytes_total",
			Help:      "Bytes moved through embedded storage",
		}, []string{"kind"}),
		batchOps: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "batch_ops",
			Help:      "Operations per committed batch",
			Buckets:   prometheus.LinearBuckets(1, 5, 6),
		}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveOp records one finished operation.
func (m *Metrics) ObserveOp(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := outcomeOK
	if err != nil {
		outcome = feature.KindOf(err)
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// ObserveClaim records a claim attempt outcome.
func (m *Metrics) ObserveClaim(outcome string) {
	if m == nil {
		return
	}
	m.claims.WithLabelValues(outcome).Inc()
}

// SetStats publishes backlog counts.
func (m *Metrics) SetStats(s feature.Stats) {
	if m == nil {
		return
	}
	m.features.WithLabelValues("passing").Set(float64(s.Passing))
	m.features.WithLabelValues("in_progress").Set(float64(s.InProgress))
	m.features.WithLabelValues("total").Set(float64(s.Total))
}

// WriteTextfile writes every collected metric to path in text format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

// Storage returns a hook for the Pebble wrapper.
func (m *Metrics) Storage() pebblestore.MetricsHook {
	if m == nil {
		return pebblestore.NoopMetrics{}
	}
	return storageHook{m}
}

type storageHook struct{ m *Metrics }

func (h storageHook) ObserveWrite(elapsed time.Duration, bytes int) {
	h.observe(storageWrite, elapsed, bytes)
}

func (h storageHook) ObserveRead(elapsed time.Duration, bytes int) {
	h.observe(storageRead, elapsed, bytes)
}

func (h storageHook) ObserveBatchCommit(elapsed time.Duration, numOps int, bytes int) {
	h.observe(storageCommit, elapsed, bytes)
	h.m.batchOps.Observe(float64(numOps))
}

func (h storageHook) observe(kind string, elapsed time.Duration, bytes int) {
	h.m.storageLatency.WithLabelValues(kind).Observe(elapsed.Seconds())
	h.m.storageBytes.WithLabelValues(kind).Add(float64(bytes))
}
