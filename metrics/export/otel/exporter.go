package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/authflow"
	"github.com/MrEthical07/authflow/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() authflow.MetricsSnapshot
	AuditDropped() uint64
}

// bucketAttrs holds one "le" attribute set per histogram bucket, built once.
var bucketAttrs = func() []metric.ObserveOption {
	out := make([]metric.ObserveOption, len(internaldefs.HistogramBoundLabels))
	for i, le := range internaldefs.HistogramBoundLabels {
		out[i] = metric.WithAttributeSet(attribute.NewSet(attribute.String("le", le)))
	}
	return out
}()

type histogramInstruments struct {
	id      authflow.MetricID
	buckets metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// OTelExporter publishes controller metrics as OTel observable instruments.
// A histogram is exported as a "<name>_bucket" gauge carrying cumulative
// counts under an "le" attribute, plus a "<name>_count" gauge.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration
	counters     map[authflow.MetricID]metric.Int64ObservableCounter
	histograms   []histogramInstruments
	auditDropped metric.Int64ObservableCounter
}

// NewOTelExporter registers observable instruments on meter that read from
// controller on every collection.
func NewOTelExporter(meter metric.Meter, controller *authflow.Controller) (*OTelExporter, error) {
	if controller == nil {
		return nil, ErrNilSource
	}
	return NewOTelExporterFromSource(meter, controller)
}

// NewOTelExporterFromSource is NewOTelExporter over any snapshot source.
func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{
		source:   source,
		counters: make(map[authflow.MetricID]metric.Int64ObservableCounter, len(internaldefs.CounterDefs)),
	}
	var instruments []metric.Observable

	for _, def := range internaldefs.CounterDefs {
		c, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", def.Name, err)
		}
		e.counters[def.ID] = c
		instruments = append(instruments, c)
	}

	for _, def := range internaldefs.HistogramDefs {
		buckets, err := meter.Int64ObservableGauge(def.Name+"_bucket",
			metric.WithDescription(def.Help+" Cumulative count per upper bound."))
		if err != nil {
			return nil, fmt.Errorf("histogram %s: %w", def.Name, err)
		}
		count, err := meter.Int64ObservableGauge(def.Name+"_count",
			metric.WithDescription(def.Help+" Total samples."))
		if err != nil {
			return nil, fmt.Errorf("histogram %s: %w", def.Name, err)
		}
		e.histograms = append(e.histograms, histogramInstruments{id: def.ID, buckets: buckets, count: count})
		instruments = append(instruments, buckets, count)
	}

	dropped, err := meter.Int64ObservableCounter("authflow_audit_dropped_total",
		metric.WithDescription("Audit events dropped due to dispatcher backpressure."))
	if err != nil {
		return nil, fmt.Errorf("audit dropped counter: %w", err)
	}
	e.auditDropped = dropped
	instruments = append(instruments, dropped)

	reg, err := meter.RegisterCallback(e.observe, instruments...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = reg
	return e, nil
}

func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()

	for id, c := range e.counters {
		o.ObserveInt64(c, int64(snap.Counters[id]))
	}

	for _, h := range e.histograms {
		raw, ok := snap.Histograms[h.id]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		for i, total := range cumulative {
			o.ObserveInt64(h.buckets, int64(total), bucketAttrs[i])
		}
		o.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]))
	}

	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
