// Package prometheus exposes [authflow.Controller] metrics through
// client_golang.
//
// [NewCollector] returns a prometheus.Collector that reads
// [authflow.Controller.MetricsSnapshot] on each scrape. Counter names are
// prefixed authflow_*_total; the Login and VerifyTOTP latencies are
// authflow_login_latency_seconds and authflow_verify_latency_seconds.
//
// # What this package must NOT do
//
//   - Register into the global Prometheus registry. Callers register the
//     Collector where they want it.
//   - Mutate controller state.
package prometheus
