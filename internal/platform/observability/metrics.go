package observability

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the API's otel instruments.
type Metrics struct {
	requests      metric.Int64Counter
	duration      metric.Float64Histogram
	verifications metric.Int64Counter
	verifyLatency metric.Float64Histogram
}

// NewMetrics registers the instruments on provider, or on the global provider when nil.
func NewMetrics(provider metric.MeterProvider) (*Metrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(instrumentationName)

	requests, err := meter.Int64Counter("http.server.requests",
		metric.WithDescription("HTTP requests served"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("http.server.request.duration",
		metric.WithDescription("HTTP request latency"), metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	verifications, err := meter.Int64Counter("auth.verifications",
		metric.WithDescription("Server-to-server request verifications"))
	if err != nil {
		return nil, err
	}
	verifyLatency, err := meter.Float64Histogram("auth.verification.duration", metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &Metrics{requests: requests, duration: duration, verifications: verifications, verifyLatency: verifyLatency}, nil
}

func (m *Metrics) recordRequest(ctx context.Context, method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("http.request.method", method),
		attribute.String("http.route", route),
		attribute.String("http.response.status_code", strconv.Itoa(status)),
	)
	m.requests.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordVerification satisfies auth.MetricsRecorder.
func (m *Metrics) RecordVerification(ctx context.Context, kind string, success bool, reason string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Bool("success", success),
		attribute.String("reason", reason),
	)
	m.verifications.Add(ctx, 1, attrs)
	m.verifyLatency.Record(ctx, elapsed.Seconds(), attrs)
}
