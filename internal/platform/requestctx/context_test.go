package requestctx

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestLoggerDefaultsToNoop(t *testing.T) {
	if Logger(context.Background()) != noopLogger {
		t.Fatalf("expected noop logger")
	}
	logger := zap.NewExample()
	if Logger(WithLogger(context.Background(), logger)) != logger {
		t.Fatalf("expected stored logger")
	}
}

func TestRequestIDAndTrace(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithTrace(ctx, TraceInfo{TraceID: "abc", Sampled: true})
	if RequestID(ctx) != "req-1" || TraceID(ctx) != "abc" {
		t.Fatalf("unexpected values %q %q", RequestID(ctx), TraceID(ctx))
	}
	if RequestID(context.Background()) != "" {
		t.Fatalf("expected empty request id")
	}
}
