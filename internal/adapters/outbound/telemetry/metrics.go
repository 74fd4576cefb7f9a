package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/archon-research/fraud-scoring/internal/ports/outbound"
)

const meterName = "github.com/archon-research/fraud-scoring/scoring"

var _ outbound.MetricsRecorder = (*Metrics)(nil)

// Metrics implements outbound.MetricsRecorder using OpenTelemetry.
type Metrics struct {
	predictions metric.Int64Counter
	failures    metric.Int64Counter
	duration    metric.Float64Histogram
	probability metric.Float64Histogram
}

// NewMetrics creates a recorder on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return NewMetricsWithProvider(otel.GetMeterProvider())
}

// NewMetricsWithProvider creates a recorder on the given meter provider.
func NewMetricsWithProvider(provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(meterName)

	predictions, err := meter.Int64Counter(
		"fraud.predictions.total",
		metric.WithDescription("Number of committed predictions"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create fraud.predictions.total counter: %w", err)
	}

	failures, err := meter.Int64Counter(
		"fraud.scoring.failures.total",
		metric.WithDescription("Number of scoring calls that failed"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create fraud.scoring.failures.total counter: %w", err)
	}

	duration, err := meter.Float64Histogram(
		"fraud.scoring.duration",
		metric.WithDescription("Time taken to score and persist a transaction"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create fraud.scoring.duration histogram: %w", err)
	}

	probability, err := meter.Float64Histogram(
		"fraud.probability",
		metric.WithDescription("Distribution of committed fraud probabilities"),
		metric.WithExplicitBucketBoundaries(probabilityBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create fraud.probability histogram: %w", err)
	}

	return &Metrics{
		predictions: predictions,
		failures:    failures,
		duration:    duration,
		probability: probability,
	}, nil
}

// RecordPrediction counts a committed prediction and records its latency
// and probability. The probability histogram is keyed by model version only.
func (m *Metrics) RecordPrediction(ctx context.Context, decision string, modelVersion string, probability float64, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("decision", decision),
		attribute.String("model_version", modelVersion),
	)
	m.predictions.Add(ctx, 1, attrs)
	m.duration.Record(ctx, duration.Seconds(), attrs)
	m.probability.Record(ctx, probability, metric.WithAttributes(attribute.String("model_version", modelVersion)))
}

// RecordScoringFailure counts a failed scoring call.
func (m *Metrics) RecordScoringFailure(ctx context.Context, reason string) {
	m.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
