package surfacerelay

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the Prometheus collectors updated by a BufferRelay. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	attempts        *prometheus.CounterVec
	acquireFailures prometheus.Counter
	sideband        *prometheus.CounterVec
	returns         *prometheus.CounterVec
	detachFailures  prometheus.Counter
	untracked       prometheus.Counter
	inFlight        prometheus.Gauge
	fenceWait       prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "surfacerelay_relay_attempts_total",
			Help: "Buffers acquired from the source queue, by attach outcome.",
		}, []string{"result"}),
		acquireFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "surfacerelay_acquire_failures_total",
			Help: "Buffer-ready events for which no buffer could be acquired.",
		}),
		sideband: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "surfacerelay_sideband_blocks_total",
			Help: "Sideband extraction outcomes per relayed buffer.",
		}, []string{"result"}),
		returns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "surfacerelay_source_returns_total",
			Help: "Buffers handed back to the source queue after the sink released them.",
		}, []string{"result"}),
		detachFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "surfacerelay_detach_failures_total",
			Help: "Failed request-and-detach calls on the sink queue.",
		}),
		untracked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "surfacerelay_untracked_releases_total",
			Help: "Sink release events for buffers the relay did not have on loan.",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "surfacerelay_inflight_buffers",
			Help: "Buffers currently on loan to the sink queue.",
		}),
		fenceWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "surfacerelay_fence_wait_seconds",
			Help:    "Time spent resolving acquire fences.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
	}

	reg.MustRegister(
		m.attempts,
		m.acquireFailures,
		m.sideband,
		m.returns,
		m.detachFailures,
		m.untracked,
		m.inFlight,
		m.fenceWait,
	)
	return m
}

func (m *Metrics) attempt(attached bool) {
	if m == nil {
		return
	}
	if attached {
		m.attempts.WithLabelValues("attached").Inc()
	} else {
		m.attempts.WithLabelValues("attach_failed").Inc()
	}
}

func (m *Metrics) acquireFailed() {
	if m != nil {
		m.acquireFailures.Inc()
	}
}

func (m *Metrics) sidebandBlock(delivered bool) {
	if m == nil {
		return
	}
	if delivered {
		m.sideband.WithLabelValues("delivered").Inc()
	} else {
		m.sideband.WithLabelValues("missing").Inc()
	}
}

func (m *Metrics) returned(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.returns.WithLabelValues("returned").Inc()
	} else {
		m.returns.WithLabelValues("release_failed").Inc()
	}
}

func (m *Metrics) detachFailed() {
	if m != nil {
		m.detachFailures.Inc()
	}
}

func (m *Metrics) untrackedRelease() {
	if m != nil {
		m.untracked.Inc()
	}
}

func (m *Metrics) setInFlight(n int) {
	if m != nil {
		m.inFlight.Set(float64(n))
	}
}

func (m *Metrics) fenceWaited(d time.Duration) {
	if m != nil {
		m.fenceWait.Observe(d.Seconds())
	}
}
