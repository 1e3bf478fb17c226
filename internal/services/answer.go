package services

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"docqa/internal/middleware"
	"docqa/internal/models"
	"docqa/internal/openai"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Fixed answers used when no model output is available.
const (
	NoContextAnswer       = "I couldn't find relevant information to answer your question. Please try rephrasing or check if the documents contain the information you're looking for."
	GenerationErrorAnswer = "Sorry, I encountered an error while generating the answer. Please try again."
	EmptyCompletionAnswer = "Unable to generate answer."
)

const answerSystemPrompt = "You are a helpful assistant that answers questions based on provided context. Always cite which document the information comes from when possible."

// AnswerConfig bounds answer generation.
type AnswerConfig struct {
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// DefaultAnswerConfig favours grounded, repeatable answers.
func DefaultAnswerConfig() AnswerConfig {
	return AnswerConfig{
		MaxTokens:   500,
		Temperature: 0.3,
		Timeout:     60 * time.Second,
	}
}

// Synthesis is a generated answer and its confidence.
type Synthesis struct {
	Answer     string
	Confidence float64
	// Fallback is set when generation failed and Answer is GenerationErrorAnswer.
	Fallback bool
}

// AnswerSynthesizer turns ranked chunks into an answer with a language model.
type AnswerSynthesizer struct {
	generator Generator
	config    AnswerConfig
	logger    *zap.Logger
	metrics   *Metrics
}

// NewAnswerSynthesizer creates a synthesizer. Non-positive MaxTokens or Timeout
// fall back to DefaultAnswerConfig values.
func NewAnswerSynthesizer(generator Generator, config AnswerConfig, logger *zap.Logger, metrics *Metrics) *AnswerSynthesizer {
	defaults := DefaultAnswerConfig()
	if config.MaxTokens <= 0 {
		config.MaxTokens = defaults.MaxTokens
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnswerSynthesizer{
		generator: generator,
		config:    config,
		logger:    logger.Named("answer"),
		metrics:   metrics,
	}
}

// GenerateAnswer answers question from ranked. It never fails: an empty ranking
// or a generation error yields a fixed answer with confidence 0.
func (s *AnswerSynthesizer) GenerateAnswer(ctx context.Context, question string, ranked []models.RankedChunk) Synthesis {
	if len(ranked) == 0 {
		return Synthesis{Answer: NoContextAnswer}
	}

	ctx, span := middleware.StartSpan(ctx, "AnswerSynthesizer.GenerateAnswer",
		attribute.Int("context_chunks", len(ranked)),
	)
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	answer, err := s.generator.ChatCompletion(callCtx, []openai.ChatMessage{
		{Role: "system", Content: answerSystemPrompt},
		{Role: "user", Content: BuildPrompt(question, ranked)},
	}, openai.WithMaxTokens(s.config.MaxTokens), openai.WithTemperature(s.config.Temperature))
	if err != nil {
		middleware.AddSpanError(ctx, err)
		s.logger.Warn("answer generation failed, using fallback answer",
			zap.String("model", s.config.Model),
			zap.Int("context_chunks", len(ranked)),
			zap.Error(err),
		)
		s.metrics.RecordAnswerFallback(ctx, s.config.Model)
		return Synthesis{Answer: GenerationErrorAnswer, Fallback: true}
	}

	if strings.TrimSpace(answer) == "" {
		answer = EmptyCompletionAnswer
	}

	return Synthesis{Answer: answer, Confidence: Confidence(ranked)}
}

// BuildPrompt lists the ranked chunks as numbered context followed by the question.
func BuildPrompt(question string, ranked []models.RankedChunk) string {
	parts := make([]string, len(ranked))
	for i, item := range ranked {
		parts[i] = fmt.Sprintf("[%d] From \"%s\": %s", i+1, item.DocumentTitle, item.Chunk.Content)
	}

	return fmt.Sprintf(`Based on the following context, please answer the question. If the context doesn't contain enough information to answer the question, please say so.

Context:
%s

Question: %s

Answer:`, strings.Join(parts, "\n\n"), question)
}

// Confidence is twice the mean similarity, clamped to [0, 1]. Embedding
// similarities sit well below 1 in practice; the factor is empirical.
func Confidence(ranked []models.RankedChunk) float64 {
	if len(ranked) == 0 {
		return 0
	}
	var sum float64
	for _, item := range ranked {
		sum += item.Similarity
	}
	c := sum / float64(len(ranked)) * 2
	if math.IsNaN(c) {
		return 0
	}
	return math.Max(0, math.Min(c, 1))
}
