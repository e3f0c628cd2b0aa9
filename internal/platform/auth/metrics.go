package auth

import (
	"context"
	"time"
)

// MetricsRecorder records verification outcomes for observability.
type MetricsRecorder interface {
	RecordVerification(ctx context.Context, kind string, success bool, reason string, duration time.Duration)
}

func recordVerification(ctx context.Context, metrics MetricsRecorder, kind string, success bool, reason string, duration time.Duration) {
	if metrics == nil {
		return
	}
	metrics.RecordVerification(ctx, kind, success, reason, duration)
}
