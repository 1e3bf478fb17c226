package services

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "docqa/internal/services"

// Metrics holds the service-level instruments.
type Metrics struct {
	ingestionRuns     metric.Int64Counter
	ingestionDuration metric.Float64Histogram
	answerFallbacks   metric.Int64Counter
	questions         metric.Int64Counter
}

// NewMetrics creates the instruments on the global meter provider.
// Instrument creation failures are logged and the instrument is skipped.
func NewMetrics(logger *zap.Logger) *Metrics {
	return newMetrics(otel.Meter(instrumentationName), logger)
}

func newMetrics(meter metric.Meter, logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Metrics{}

	var err error
	m.ingestionRuns, err = meter.Int64Counter(
		"docqa.ingestion.runs_total",
		metric.WithDescription("Ingestion runs by final status"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		logger.Warn("failed to create ingestion runs counter", zap.Error(err))
	}

	m.ingestionDuration, err = meter.Float64Histogram(
		"docqa.ingestion.duration_seconds",
		metric.WithDescription("Duration of ingestion runs in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		logger.Warn("failed to create ingestion duration histogram", zap.Error(err))
	}

	m.answerFallbacks, err = meter.Int64Counter(
		"docqa.answer.fallbacks_total",
		metric.WithDescription("Answers replaced by the fixed error answer because generation failed"),
		metric.WithUnit("{answer}"),
	)
	if err != nil {
		logger.Warn("failed to create answer fallbacks counter", zap.Error(err))
	}

	m.questions, err = meter.Int64Counter(
		"docqa.qa.questions_total",
		metric.WithDescription("Questions answered"),
		metric.WithUnit("{question}"),
	)
	if err != nil {
		logger.Warn("failed to create questions counter", zap.Error(err))
	}
	return m
}

// RecordIngestion records one finished ingestion run.
func (m *Metrics) RecordIngestion(ctx context.Context, status string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	if m.ingestionRuns != nil {
		m.ingestionRuns.Add(ctx, 1, attrs)
	}
	if m.ingestionDuration != nil {
		m.ingestionDuration.Record(ctx, d.Seconds(), attrs)
	}
}

// RecordAnswerFallback counts one answer that fell back to the fixed error text.
func (m *Metrics) RecordAnswerFallback(ctx context.Context, model string) {
	if m == nil || m.answerFallbacks == nil {
		return
	}
	m.answerFallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("model", model)))
}

// RecordQuestion counts one answered question.
func (m *Metrics) RecordQuestion(ctx context.Context, degraded bool) {
	if m == nil || m.questions == nil {
		return
	}
	m.questions.Add(ctx, 1, metric.WithAttributes(attribute.Bool("degraded", degraded)))
}
