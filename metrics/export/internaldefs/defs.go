package internaldefs

import (
	"strconv"
	"strings"

	"github.com/MrEthical07/crossauth"
)

// CounterDef maps a Manager counter to its exported name.
type CounterDef struct {
	ID   crossauth.MetricID
	Name string
	Help string
}

// HistogramDef maps a Manager histogram to its exported name.
type HistogramDef struct {
	ID   crossauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in output order.
var CounterDefs = []CounterDef{
	{ID: crossauth.MetricSessionIssued, Name: "crossauth_session_issued_total", Help: "Sessions issued."},
	{ID: crossauth.MetricSessionIssueFailure, Name: "crossauth_session_issue_failure_total", Help: "Sessions that could not be persisted."},
	{ID: crossauth.MetricSessionRevoked, Name: "crossauth_session_revoked_total", Help: "Sessions revoked by logout."},
	{ID: crossauth.MetricRevokeAll, Name: "crossauth_revoke_all_total", Help: "Revoke-all-sessions operations."},
	{ID: crossauth.MetricCacheHit, Name: "crossauth_cache_hit_total", Help: "Validations served from the session cache."},
	{ID: crossauth.MetricCacheMiss, Name: "crossauth_cache_miss_total", Help: "Validations that required a store lookup."},
	{ID: crossauth.MetricValidateSuccess, Name: "crossauth_validate_success_total", Help: "Validations that resolved an identity."},
	{ID: crossauth.MetricValidateUnauthenticated, Name: "crossauth_validate_unauthenticated_total", Help: "Validations rejected as unauthenticated."},
	{ID: crossauth.MetricValidateStorageError, Name: "crossauth_validate_storage_error_total", Help: "Validations that failed on the credential store."},
	{ID: crossauth.MetricLoginSuccess, Name: "crossauth_login_success_total", Help: "Successful logins."},
	{ID: crossauth.MetricLoginFailure, Name: "crossauth_login_failure_total", Help: "Rejected logins."},
	{ID: crossauth.MetricRegisterSuccess, Name: "crossauth_register_success_total", Help: "Accounts created."},
	{ID: crossauth.MetricRegisterFailure, Name: "crossauth_register_failure_total", Help: "Rejected registrations."},
	{ID: crossauth.MetricRemoteInvalidation, Name: "crossauth_remote_invalidation_total", Help: "Cache evictions requested by peer processes."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: crossauth.MetricValidateLatency, Name: "crossauth_validate_latency_seconds", Help: "Validate latency histogram."},
}

// Names of series that do not come from the counter array.
const (
	AuditDroppedName = "crossauth_audit_dropped_total"
	AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."

	CachedSessionsName = "crossauth_cached_sessions"
	CachedSessionsHelp = "Live entries in the session cache."
)

// HistogramUpperBounds are the finite bucket bounds in seconds. The last bucket is +Inf.
var HistogramUpperBounds = upperBoundsSeconds()

// HistogramBounds are the bucket bounds as label values, including +Inf.
var HistogramBounds = boundLabels()

// HistogramBoundSuffix renders HistogramBounds for use inside metric names.
var HistogramBoundSuffix = boundSuffixes()

func upperBoundsSeconds() []float64 {
	out := make([]float64, len(crossauth.ValidateLatencyBuckets))
	for i, d := range crossauth.ValidateLatencyBuckets {
		out[i] = d.Seconds()
	}
	return out
}

func boundLabels() []string {
	out := make([]string, 0, crossauth.LatencyBucketCount)
	for _, s := range upperBoundsSeconds() {
		out = append(out, strconv.FormatFloat(s, 'f', -1, 64))
	}
	return append(out, "+Inf")
}

func boundSuffixes() []string {
	labels := boundLabels()
	out := make([]string, len(labels))
	for i, l := range labels {
		if l == "+Inf" {
			out[i] = "inf"
			continue
		}
		out[i] = strings.ReplaceAll(l, ".", "_")
	}
	return out
}

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
func NormalizeBuckets(raw []uint64) [crossauth.LatencyBucketCount]uint64 {
	var out [crossauth.LatencyBucketCount]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [crossauth.LatencyBucketCount]uint64) [crossauth.LatencyBucketCount]uint64 {
	var out [crossauth.LatencyBucketCount]uint64
	var running uint64
	for i, v := range raw {
		running += v
		out[i] = running
	}
	return out
}
