package authflow

import (
	"sync/atomic"
	"time"
)

// MetricID identifies a counter or latency histogram of a [Controller].
type MetricID uint16

const (
	// MetricCredentialsSubmitted counts Login calls issued.
	MetricCredentialsSubmitted MetricID = iota
	// MetricSecondFactorRequired counts logins answered with a TOTP requirement.
	MetricSecondFactorRequired
	// MetricSecondFactorSubmitted counts VerifyTOTP calls issued.
	MetricSecondFactorSubmitted
	// MetricAuthenticated counts flows that reached the authenticated state.
	MetricAuthenticated
	// MetricCredentialRejected counts first-step failures of any reason.
	MetricCredentialRejected
	// MetricSecondFactorRejected counts second-step failures of any reason.
	MetricSecondFactorRejected
	// MetricCallTimedOut counts authenticator calls cut by the configured timeout.
	MetricCallTimedOut
	// MetricTransportFailure counts authenticator calls that failed below the service contract.
	MetricTransportFailure
	// MetricCancelled counts returns to the credentials form through cancel.
	MetricCancelled
	// MetricResponseDiscarded counts responses dropped because the flow moved on.
	MetricResponseDiscarded
	// MetricInvalidTransition counts operations refused by the state machine.
	MetricInvalidTransition
	// MetricLogout counts logouts from the authenticated state.
	MetricLogout
	// MetricLoginLatency is the latency histogram of Login calls.
	MetricLoginLatency
	// MetricVerifyLatency is the latency histogram of VerifyTOTP calls.
	MetricVerifyLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed set of lock-free counters and latency histograms.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters and, when
// latency histograms are enabled, their non-cumulative buckets.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates a Metrics value for cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether latency histograms are recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to counter id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d into histogram id. Only latency metrics accept samples.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || !isHistogram(id) {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current value of counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies all counters and histograms.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 2),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if isHistogram(id) {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		for _, id := range [...]MetricID{MetricLoginLatency, MetricVerifyLatency} {
			buckets := make([]uint64, histBucketCount)
			for i := 0; i < histBucketCount; i++ {
				buckets[i] = atomic.LoadUint64(&m.histograms[id].buckets[i])
			}
			s.Histograms[id] = buckets
		}
	}

	return s
}

func isHistogram(id MetricID) bool {
	return id == MetricLoginLatency || id == MetricVerifyLatency
}

// Buckets are upper bounds in milliseconds: 50, 100, 250, 500, 1000, 2500,
// 5000, +Inf. Authenticator calls cross the network, so the bounds are wider
// than an in-process hot path would need.
func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 50:
		return 0
	case ms <= 100:
		return 1
	case ms <= 250:
		return 2
	case ms <= 500:
		return 3
	case ms <= 1000:
		return 4
	case ms <= 2500:
		return 5
	case ms <= 5000:
		return 6
	default:
		return 7
	}
}

// MetricsSnapshot returns the controller's current metrics.
func (c *Controller) MetricsSnapshot() MetricsSnapshot {
	if c == nil || c.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return c.metrics.Snapshot()
}

func (c *Controller) metricInc(id MetricID) {
	if c == nil || c.metrics == nil {
		return
	}
	c.metrics.Inc(id)
}
