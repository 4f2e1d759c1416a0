package prometheus

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrEthical07/authflow"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeSource struct {
	snapshot authflow.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() authflow.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                      { return f.dropped }

func TestCollectorEmitsCountersAndHistogram(t *testing.T) {
	c, err := NewCollectorFromSource(fakeSource{
		snapshot: authflow.MetricsSnapshot{
			Counters: map[authflow.MetricID]uint64{
				authflow.MetricAuthenticated:      7,
				authflow.MetricCredentialRejected: 2,
			},
			Histograms: map[authflow.MetricID][]uint64{
				authflow.MetricLoginLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})
	if err != nil {
		t.Fatalf("NewCollectorFromSource failed: %v", err)
	}

	expected := `
# HELP authflow_authenticated_total Flows that reached the authenticated state.
# TYPE authflow_authenticated_total counter
authflow_authenticated_total 7
# HELP authflow_audit_dropped_total Audit events dropped due to dispatcher backpressure.
# TYPE authflow_audit_dropped_total counter
authflow_audit_dropped_total 2
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"authflow_authenticated_total", "authflow_audit_dropped_total"); err != nil {
		t.Fatalf("unexpected counters: %v", err)
	}

	histogram := `
# HELP authflow_login_latency_seconds Login call latency.
# TYPE authflow_login_latency_seconds histogram
authflow_login_latency_seconds_bucket{le="0.05"} 1
authflow_login_latency_seconds_bucket{le="0.1"} 3
authflow_login_latency_seconds_bucket{le="0.25"} 6
authflow_login_latency_seconds_bucket{le="0.5"} 10
authflow_login_latency_seconds_bucket{le="1"} 15
authflow_login_latency_seconds_bucket{le="2.5"} 21
authflow_login_latency_seconds_bucket{le="5"} 28
authflow_login_latency_seconds_bucket{le="+Inf"} 36
authflow_login_latency_seconds_sum 0
authflow_login_latency_seconds_count 36
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(histogram), "authflow_login_latency_seconds"); err != nil {
		t.Fatalf("unexpected histogram: %v", err)
	}
}

func TestCollectorSkipsDisabledHistograms(t *testing.T) {
	c, err := NewCollectorFromSource(fakeSource{
		snapshot: authflow.MetricsSnapshot{
			Counters:   map[authflow.MetricID]uint64{},
			Histograms: map[authflow.MetricID][]uint64{},
		},
	})
	if err != nil {
		t.Fatalf("NewCollectorFromSource failed: %v", err)
	}
	if n := testutil.CollectAndCount(c, "authflow_login_latency_seconds"); n != 0 {
		t.Fatalf("expected no histogram series, got %d", n)
	}
	if n := testutil.CollectAndCount(c); n != 13 {
		t.Fatalf("expected 12 counters plus audit dropped, got %d", n)
	}
}

func TestCollectorFromController(t *testing.T) {
	ctrl, err := authflow.New().
		WithAuthenticator(nopAuthenticator{}).
		WithLatencyHistograms(true).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer ctrl.Close()

	if _, err := ctrl.SubmitCredentials(t.Context(), "", ""); err != nil {
		t.Fatalf("SubmitCredentials failed: %v", err)
	}

	c, err := NewCollector(ctrl)
	if err != nil {
		t.Fatalf("NewCollector failed: %v", err)
	}
	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	expected := `
# HELP authflow_credential_rejected_total First-step failures of any reason.
# TYPE authflow_credential_rejected_total counter
authflow_credential_rejected_total 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "authflow_credential_rejected_total"); err != nil {
		t.Fatalf("unexpected registry output: %v", err)
	}

	handler, err := c.Handler()
	if err != nil {
		t.Fatalf("Handler failed: %v", err)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "authflow_credential_rejected_total 1") {
		t.Fatalf("expected counter in exposition, got:\n%s", body)
	}
}

func TestNilSource(t *testing.T) {
	if _, err := NewCollector(nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
}

type nopAuthenticator struct{}

func (nopAuthenticator) Login(context.Context, string, string) (*authflow.LoginResult, error) {
	return nil, errors.New("unused")
}

func (nopAuthenticator) VerifyTOTP(context.Context, string, string) (*authflow.Session, error) {
	return nil, errors.New("unused")
}

func (nopAuthenticator) Logout(context.Context, authflow.Session) error { return nil }
