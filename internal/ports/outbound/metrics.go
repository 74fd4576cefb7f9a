package outbound

import (
	"context"
	"time"
)

// MetricsRecorder provides an interface for recording application metrics.
// This allows the services to record metrics without depending on
// specific telemetry implementations.
type MetricsRecorder interface {
	// RecordPrediction records a committed prediction.
	RecordPrediction(ctx context.Context, decision string, modelVersion string, probability float64, duration time.Duration)

	// RecordScoringFailure records a failed scoring call.
	RecordScoringFailure(ctx context.Context, reason string)
}
