package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every AgentFS Prometheus collector. A nil *Metrics is valid:
// every method tolerates it and becomes a no-op, so components can be built
// with metrics.New() regardless of whether InitRegistry ran.
type Metrics struct {
	chunksStored  prometheus.Gauge
	chunkBytes    prometheus.Gauge
	copyUps       *prometheus.CounterVec
	lockConflicts *prometheus.CounterVec
	eventsPublished prometheus.Counter
	eventsDropped prometheus.Counter
	cpRequests    *prometheus.CounterVec
	cpDuration    *prometheus.HistogramVec
}

// New constructs a Metrics bound to the active registry, or returns nil if
// metrics are not enabled.
func New() *Metrics {
	if !IsEnabled() {
		return nil
	}
	reg := GetRegistry()

	return &Metrics{
		chunksStored: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "agentfs_content_chunks",
			Help: "Number of distinct content-addressed chunks currently stored.",
		}),
		chunkBytes: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "agentfs_content_bytes",
			Help: "Total bytes held across all stored chunks.",
		}),
		copyUps: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "agentfs_copy_up_total",
			Help: "Total number of lower-to-upper copy-up materializations, by node kind.",
		}, []string{"kind"}),
		lockConflicts: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "agentfs_lock_conflicts_total",
			Help: "Total number of byte-range lock or share-mode admission conflicts.",
		}, []string{"reason"}),
		eventsPublished: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "agentfs_events_published_total",
			Help: "Total number of core events published to the event bus.",
		}),
		eventsDropped: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "agentfs_events_dropped_total",
			Help: "Total number of events dropped because a watcher's bounded queue overflowed.",
		}),
		cpRequests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "agentfs_controlplane_requests_total",
			Help: "Total number of control-plane requests dispatched, by op and outcome.",
		}, []string{"op", "outcome"}),
		cpDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentfs_controlplane_request_duration_seconds",
			Help:    "Control-plane request handling latency by op.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
	}
}

// SetChunkStats records the content store's current chunk count and byte total.
func (m *Metrics) SetChunkStats(chunks, bytes int64) {
	if m == nil {
		return
	}
	m.chunksStored.Set(float64(chunks))
	m.chunkBytes.Set(float64(bytes))
}

// RecordCopyUp records one copy-up materialization of the given node kind
// ("file", "dir", "symlink").
func (m *Metrics) RecordCopyUp(kind string) {
	if m == nil {
		return
	}
	m.copyUps.WithLabelValues(kind).Inc()
}

// RecordLockConflict records one admission conflict, tagged with a short
// reason ("share_mode", "byte_range").
func (m *Metrics) RecordLockConflict(reason string) {
	if m == nil {
		return
	}
	m.lockConflicts.WithLabelValues(reason).Inc()
}

// RecordEventPublished records one event handed to the bus for dispatch.
func (m *Metrics) RecordEventPublished() {
	if m == nil {
		return
	}
	m.eventsPublished.Inc()
}

// RecordEventDropped records one event dropped by a watcher's bounded queue.
func (m *Metrics) RecordEventDropped() {
	if m == nil {
		return
	}
	m.eventsDropped.Inc()
}

// RecordControlPlaneRequest records one dispatched request's op, outcome
// ("ok" or "error"), and handling duration.
func (m *Metrics) RecordControlPlaneRequest(op string, ok bool, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.cpRequests.WithLabelValues(op, outcome).Inc()
	m.cpDuration.WithLabelValues(op).Observe(d.Seconds())
}
