package crossauth

import (
	"sync/atomic"
	"time"
)

// MetricID indexes a Manager counter.
type MetricID uint16

const (
	// MetricSessionIssued counts sessions persisted by Issue.
	MetricSessionIssued MetricID = iota
	// MetricSessionIssueFailure counts Issue calls that failed to persist.
	MetricSessionIssueFailure
	// MetricSessionRevoked counts successful Revoke calls.
	MetricSessionRevoked
	// MetricRevokeAll counts RevokeAllForUser calls.
	MetricRevokeAll
	// MetricCacheHit counts validations served from the cache.
	MetricCacheHit
	// MetricCacheMiss counts validations that needed a store lookup.
	MetricCacheMiss
	// MetricValidateSuccess counts validations that resolved an identity.
	MetricValidateSuccess
	// MetricValidateUnauthenticated counts validations rejected as unauthenticated.
	MetricValidateUnauthenticated
	// MetricValidateStorageError counts validations that failed on the store.
	MetricValidateStorageError
	// MetricLoginSuccess counts successful logins.
	MetricLoginSuccess
	// MetricLoginFailure counts rejected logins.
	MetricLoginFailure
	// MetricRegisterSuccess counts created accounts.
	MetricRegisterSuccess
	// MetricRegisterFailure counts rejected registrations.
	MetricRegisterFailure
	// MetricRemoteInvalidation counts evictions requested by peer processes.
	MetricRemoteInvalidation
	// MetricValidateLatency is the Validate latency histogram.
	MetricValidateLatency
	metricIDCount
)

// ValidateLatencyBuckets are the inclusive upper bounds of the Validate latency
// histogram. Observations above the last bound land in a final overflow bucket.
var ValidateLatencyBuckets = [...]time.Duration{
	100 * time.Microsecond, // cache hits
	time.Millisecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	100 * time.Millisecond,
	500 * time.Millisecond,
}

// LatencyBucketCount is the number of histogram buckets including overflow.
const LatencyBucketCount = len(ValidateLatencyBuckets) + 1

// paddedCounter sits alone on its cache line so hot counters bumped by different
// cores do not invalidate each other.
type paddedCounter struct {
	atomic.Uint64
	_ [56]byte
}

// Metrics is a fixed set of lock-free counters. A nil *Metrics discards everything.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	latency       [LatencyBucketCount]atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of all counters. Histogram buckets are
// non-cumulative.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns counters configured by cfg.
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

// Inc adds one to counter id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	m.counters[id].Add(1)
}

// Observe records d in the histogram for id. Only MetricValidateLatency has one.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if id != MetricValidateLatency || !m.LatencyEnabled() {
		return
	}
	m.latency[latencyBucket(d)].Add(1)
}

// Value returns the current value of counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.counters[id].Load()
}

// Snapshot copies every counter. Disabled metrics yield empty maps.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
	if !m.Enabled() {
		return s
	}

	for id := range metricIDCount {
		s.Counters[id] = m.counters[id].Load()
	}
	if m.enableLatency {
		buckets := make([]uint64, LatencyBucketCount)
		for i := range buckets {
			buckets[i] = m.latency[i].Load()
		}
		s.Histograms[MetricValidateLatency] = buckets
	}
	return s
}

func latencyBucket(d time.Duration) int {
	for i, upper := range ValidateLatencyBuckets {
		if d <= upper {
			return i
		}
	}
	return len(ValidateLatencyBuckets)
}
