// Package observe provides process-level observability for VVTTS:
// OpenTelemetry metric instruments, a Prometheus exporter bridge, and HTTP
// middleware tying request metrics to structured logs.
//
// These instruments are per-process telemetry. The cross-process job
// counters (jobs_completed, jobs_failed) remain in the broker's metrics
// hash, which is the system of record surfaced by /health.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name for all VVTTS metrics.
const meterName = "github.com/vietvoice/vvtts"

// Metrics holds all OpenTelemetry metric instruments. All fields are safe
// for concurrent use.
type Metrics struct {
	// HTTPRequestDuration tracks gateway request processing time. Use with
	// attributes: method, path.
	HTTPRequestDuration metric.Float64Histogram

	// SynthesisDuration tracks engine generation latency per job. Use with
	// attributes: quality, status.
	SynthesisDuration metric.Float64Histogram

	// JobsEnqueued counts jobs accepted by the gateway. Use with
	// attributes: quality, mode (sync|async).
	JobsEnqueued metric.Int64Counter

	// JobsProcessed counts jobs finished by this worker. Use with
	// attributes: quality, status.
	JobsProcessed metric.Int64Counter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// synthesis latencies of roughly one to tens of seconds.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.HTTPRequestDuration, err = m.Float64Histogram("vvtts.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if met.SynthesisDuration, err = m.Float64Histogram("vvtts.synthesis.duration",
		metric.WithDescription("Engine generation latency by quality and status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.JobsEnqueued, err = m.Int64Counter("vvtts.jobs.enqueued",
		metric.WithDescription("Jobs accepted by the gateway by quality and submission mode."),
	); err != nil {
		return nil, err
	}
	if met.JobsProcessed, err = m.Int64Counter("vvtts.jobs.processed",
		metric.WithDescription("Jobs finished by this worker by quality and terminal status."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call from the global meter provider. Tests should use
// [NewMetrics] with their own provider to avoid cross-test pollution.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordSynthesis records one engine run with the standard attribute set.
func (m *Metrics) RecordSynthesis(ctx context.Context, quality, status string, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("quality", quality),
		attribute.String("status", status),
	)
	m.SynthesisDuration.Record(ctx, seconds, attrs)
	m.JobsProcessed.Add(ctx, 1, attrs)
}

// RecordEnqueue records one accepted job with the standard attribute set.
func (m *Metrics) RecordEnqueue(ctx context.Context, quality, mode string) {
	m.JobsEnqueued.Add(ctx, 1, metric.WithAttributes(
		attribute.String("quality", quality),
		attribute.String("mode", mode),
	))
}
