package internaldefs

import (
	"github.com/MrEthical07/authflow"
)

// CounterDef names one controller counter for exporters.
type CounterDef struct {
	ID   authflow.MetricID
	Name string
	Help string
}

// HistogramDef names one controller latency histogram for exporters.
type HistogramDef struct {
	ID   authflow.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: authflow.MetricCredentialsSubmitted, Name: "authflow_credentials_submitted_total", Help: "Login calls issued by the flow."},
	{ID: authflow.MetricSecondFactorRequired, Name: "authflow_second_factor_required_total", Help: "Logins answered with a TOTP requirement."},
	{ID: authflow.MetricSecondFactorSubmitted, Name: "authflow_second_factor_submitted_total", Help: "VerifyTOTP calls issued by the flow."},
	{ID: authflow.MetricAuthenticated, Name: "authflow_authenticated_total", Help: "Flows that reached the authenticated state."},
	{ID: authflow.MetricCredentialRejected, Name: "authflow_credential_rejected_total", Help: "First-step failures of any reason."},
	{ID: authflow.MetricSecondFactorRejected, Name: "authflow_second_factor_rejected_total", Help: "Second-step failures of any reason."},
	{ID: authflow.MetricCallTimedOut, Name: "authflow_call_timed_out_total", Help: "Authenticator calls cut by the configured timeout."},
	{ID: authflow.MetricTransportFailure, Name: "authflow_transport_failure_total", Help: "Authenticator calls that failed without a service answer."},
	{ID: authflow.MetricCancelled, Name: "authflow_cancelled_total", Help: "Returns to the credentials form through cancel."},
	{ID: authflow.MetricResponseDiscarded, Name: "authflow_response_discarded_total", Help: "Superseded responses dropped by the flow."},
	{ID: authflow.MetricInvalidTransition, Name: "authflow_invalid_transition_total", Help: "Operations refused by the state machine."},
	{ID: authflow.MetricLogout, Name: "authflow_logout_total", Help: "Logouts from the authenticated state."},
}

var HistogramDefs = []HistogramDef{
	{ID: authflow.MetricLoginLatency, Name: "authflow_login_latency_seconds", Help: "Login call latency."},
	{ID: authflow.MetricVerifyLatency, Name: "authflow_verify_latency_seconds", Help: "VerifyTOTP call latency."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds. The last
// bucket of a snapshot is +Inf.
var HistogramUpperBounds = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

// HistogramBoundLabels are the "le" values of each bucket, +Inf included.
var HistogramBoundLabels = []string{"0.05", "0.1", "0.25", "0.5", "1", "2.5", "5", "+Inf"}

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
