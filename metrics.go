package loginbridge

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one counter (or histogram) in a Metrics set.
type MetricID uint16

const (
	// MetricLoginStarted counts attempts handed to the identity service.
	MetricLoginStarted MetricID = iota
	// MetricLoginSucceeded counts fresh successful logins.
	MetricLoginSucceeded
	// MetricLoginAlreadyAuthenticated counts "already logged in" completions.
	MetricLoginAlreadyAuthenticated
	// MetricLoginFailed counts backend-reported failures.
	MetricLoginFailed
	// MetricLoginTimedOut counts attempts resolved by the attempt timeout.
	MetricLoginTimedOut
	// MetricLoginCancelled counts attempts resolved by Cancel or Close.
	MetricLoginCancelled
	// MetricLoginServiceUnavailable counts logins aborted because the backend
	// could not be resolved.
	MetricLoginServiceUnavailable
	// MetricLoginNoFacade counts logins rejected with no facade attached.
	MetricLoginNoFacade
	// MetricLoginInFlightRejected counts logins rejected by single-flight.
	MetricLoginInFlightRejected
	// MetricLoginBackendError counts synchronous errors from IdentityService.Login.
	MetricLoginBackendError
	// MetricStaleCompletion counts completions that arrived for no pending attempt.
	MetricStaleCompletion
	// MetricOutcomeDropped counts outcomes whose facade was gone or closed.
	MetricOutcomeDropped
	// MetricObserverPanic counts observers that panicked during a broadcast.
	MetricObserverPanic
	// MetricLoginLatency is the attempt duration histogram.
	MetricLoginLatency
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

// Metrics is a fixed set of lock-free counters. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of a Metrics set.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns a Metrics set configured by cfg.
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

// LatencyEnabled reports whether the latency histogram is recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to the counter id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the histogram id. Only MetricLoginLatency has a
// histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricLoginLatency {
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

// Snapshot copies every counter and, when enabled, the latency histogram.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricLoginLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricLoginLatency].buckets[i])
		}
		s.Histograms[MetricLoginLatency] = buckets
	}

	return s
}

// Login attempts are interactive, so buckets run from 100ms to 30s.
func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 100:
		return 0
	case ms <= 250:
		return 1
	case ms <= 500:
		return 2
	case ms <= 1000:
		return 3
	case ms <= 2500:
		return 4
	case ms <= 5000:
		return 5
	case ms <= 30000:
		return 6
	default:
		return 7
	}
}
