package embedding

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "docqa/internal/embedding"

// Metrics holds embedding provider instruments.
type Metrics struct {
	logger    *zap.Logger
	duration  metric.Float64Histogram
	fallbacks metric.Int64Counter
}

// NewMetrics creates the instruments on the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	return newMetrics(otel.Meter(instrumentationName), logger)
}

func newMetrics(meter metric.Meter, logger *zap.Logger) *Metrics {
	m := &Metrics{logger: logger}

	var err error
	m.duration, err = meter.Float64Histogram(
		"docqa.embedding.request_duration_seconds",
		metric.WithDescription("Duration of embedding provider calls in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.fallbacks, err = meter.Int64Counter(
		"docqa.embedding.fallbacks_total",
		metric.WithDescription("Texts embedded with the local fallback because the provider call failed"),
		metric.WithUnit("{text}"),
	)
	if err != nil {
		logger.Warn("failed to create fallbacks counter", zap.Error(err))
	}
	return m
}

// RecordCall records one provider call.
func (m *Metrics) RecordCall(ctx context.Context, model string, d time.Duration, err error) {
	if m.duration == nil {
		return
	}
	m.duration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("model", model),
		attribute.Bool("error", err != nil),
	))
}

// RecordFallback counts n texts that received fallback vectors.
func (m *Metrics) RecordFallback(ctx context.Context, model string, n int) {
	if m.fallbacks == nil {
		return
	}
	m.fallbacks.Add(ctx, int64(n), metric.WithAttributes(attribute.String("model", model)))
}
