package internaldefs

import (
	"github.com/MrEthical07/loginbridge"
)

// CounterDef names one loginbridge counter.
type CounterDef struct {
	ID   loginbridge.MetricID
	Name string
	Help string
}

// HistogramDef names one loginbridge histogram.
type HistogramDef struct {
	ID   loginbridge.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const (
	AuditDroppedName = "loginbridge_audit_dropped_total"
	AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."
)

var CounterDefs = []CounterDef{
	{ID: loginbridge.MetricLoginStarted, Name: "loginbridge_login_started_total", Help: "Login attempts handed to the identity service."},
	{ID: loginbridge.MetricLoginSucceeded, Name: "loginbridge_login_succeeded_total", Help: "Fresh successful logins."},
	{ID: loginbridge.MetricLoginAlreadyAuthenticated, Name: "loginbridge_login_already_authenticated_total", Help: "Logins completed as already logged in."},
	{ID: loginbridge.MetricLoginFailed, Name: "loginbridge_login_failed_total", Help: "Logins failed by the identity service."},
	{ID: loginbridge.MetricLoginTimedOut, Name: "loginbridge_login_timed_out_total", Help: "Login attempts resolved by the attempt timeout."},
	{ID: loginbridge.MetricLoginCancelled, Name: "loginbridge_login_cancelled_total", Help: "Login attempts cancelled locally."},
	{ID: loginbridge.MetricLoginServiceUnavailable, Name: "loginbridge_login_service_unavailable_total", Help: "Logins skipped because the identity service was unavailable."},
	{ID: loginbridge.MetricLoginNoFacade, Name: "loginbridge_login_no_facade_total", Help: "Logins rejected with no facade attached."},
	{ID: loginbridge.MetricLoginInFlightRejected, Name: "loginbridge_login_in_flight_rejected_total", Help: "Logins rejected while another attempt was pending."},
	{ID: loginbridge.MetricLoginBackendError, Name: "loginbridge_login_backend_error_total", Help: "Synchronous errors returned by the identity service."},
	{ID: loginbridge.MetricStaleCompletion, Name: "loginbridge_stale_completion_total", Help: "Completions that matched no pending attempt."},
	{ID: loginbridge.MetricOutcomeDropped, Name: "loginbridge_outcome_dropped_total", Help: "Outcomes dropped because the facade was gone or closed."},
	{ID: loginbridge.MetricObserverPanic, Name: "loginbridge_observer_panic_total", Help: "Observers that panicked during a broadcast."},
}

var HistogramDefs = []HistogramDef{
	{ID: loginbridge.MetricLoginLatency, Name: "loginbridge_login_latency_seconds", Help: "Login attempt duration."},
}

// HistogramBounds are the finite bucket upper bounds in seconds. The last
// snapshot bucket is +Inf.
var HistogramBounds = []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 30}

// HistogramBoundSuffix names each snapshot bucket, +Inf included.
var HistogramBoundSuffix = []string{
	"0_1",
	"0_25",
	"0_5",
	"1",
	"2_5",
	"5",
	"30",
	"inf",
}

// BucketCount is the number of snapshot buckets, +Inf included.
const BucketCount = 8

// NormalizeBuckets pads or truncates raw to BucketCount entries.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
