// Package otel publishes [authflow.Controller] metrics through an
// OpenTelemetry Meter.
//
// [NewOTelExporter] registers one Int64ObservableCounter per controller
// counter. Each latency histogram becomes a "_bucket" gauge with an "le"
// attribute per bound and a "_count" gauge. A single callback reads
// [authflow.Controller.MetricsSnapshot] on each collection.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate controller state.
package otel
