// Package observe provides application-wide observability primitives for
// Cadence: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Cadence metrics.
const meterName = "github.com/veloread/cadence"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// QueryDuration tracks end-to-end process-query latency.
	QueryDuration metric.Float64Histogram

	// TrainingDuration tracks the latency of one full training pass.
	TrainingDuration metric.Float64Histogram

	// --- Reward distribution ---

	// Reward tracks the clipped per-decision reward values.
	Reward metric.Float64Histogram

	// --- Counters ---

	// Queries counts processed queries. Use with attribute:
	//   attribute.String("status", ...)
	Queries metric.Int64Counter

	// Episodes counts packaged episodes.
	Episodes metric.Int64Counter

	// TrainingPasses counts completed training passes. Use with attribute:
	//   attribute.String("trigger", "scheduled"|"forced")
	TrainingPasses metric.Int64Counter

	// --- Error counters ---

	// PersistenceErrors counts storage write failures. Use with attribute:
	//   attribute.String("artifact", "stats"|"episodes")
	PersistenceErrors metric.Int64Counter

	// --- Gauges ---

	// BufferedSteps tracks the number of experience steps in the live buffer.
	BufferedSteps metric.Int64UpDownCounter

	// RetainedEpisodes tracks the number of episodes held for training.
	RetainedEpisodes metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Queries
// are sub-millisecond in the common case; training passes run for seconds.
var latencyBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// rewardBuckets spans the clipped reward range [-1, 5].
var rewardBuckets = []float64{
	-1, -0.5, 0, 0.5, 1, 1.5, 2, 2.5, 3, 3.5, 4, 4.5, 5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.QueryDuration, err = m.Float64Histogram("cadence.query.duration",
		metric.WithDescription("End-to-end latency of one reading query."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TrainingDuration, err = m.Float64Histogram("cadence.training.duration",
		metric.WithDescription("Latency of one full training pass."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Reward, err = m.Float64Histogram("cadence.reward",
		metric.WithDescription("Clipped per-decision reward values."),
		metric.WithExplicitBucketBoundaries(rewardBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Queries, err = m.Int64Counter("cadence.queries",
		metric.WithDescription("Total processed reading queries by status."),
	); err != nil {
		return nil, err
	}
	if met.Episodes, err = m.Int64Counter("cadence.episodes",
		metric.WithDescription("Total packaged experience episodes."),
	); err != nil {
		return nil, err
	}
	if met.TrainingPasses, err = m.Int64Counter("cadence.training.passes",
		metric.WithDescription("Total completed training passes by trigger."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.PersistenceErrors, err = m.Int64Counter("cadence.persistence.errors",
		metric.WithDescription("Total storage write failures by artifact kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.BufferedSteps, err = m.Int64UpDownCounter("cadence.buffered_steps",
		metric.WithDescription("Experience steps currently held in the live buffer."),
	); err != nil {
		return nil, err
	}
	if met.RetainedEpisodes, err = m.Int64UpDownCounter("cadence.retained_episodes",
		metric.WithDescription("Episodes currently retained for training."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("cadence.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
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

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordQuery records one processed query with its latency and outcome.
func (m *Metrics) RecordQuery(ctx context.Context, seconds float64, status string) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.Queries.Add(ctx, 1, attrs)
	m.QueryDuration.Record(ctx, seconds, attrs)
}

// RecordReward records one clipped per-decision reward value.
func (m *Metrics) RecordReward(ctx context.Context, reward float64) {
	m.Reward.Record(ctx, reward)
}

// RecordTrainingPass records one completed training pass with its latency
// and trigger ("scheduled" or "forced").
func (m *Metrics) RecordTrainingPass(ctx context.Context, seconds float64, trigger string) {
	attrs := metric.WithAttributes(attribute.String("trigger", trigger))
	m.TrainingPasses.Add(ctx, 1, attrs)
	m.TrainingDuration.Record(ctx, seconds, attrs)
}

// RecordPersistenceError records one storage write failure for the given
// artifact kind ("stats" or "episodes").
func (m *Metrics) RecordPersistenceError(ctx context.Context, artifact string) {
	m.PersistenceErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("artifact", artifact)),
	)
}
