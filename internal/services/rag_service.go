package services

import (
	"context"
	"fmt"
	"strings"

	"docqa/internal/apperr"
	"docqa/internal/middleware"
	"docqa/internal/models"

	"go.opentelemetry.io/otel/attribute"
)

/*
RETRIEVAL AUGMENTED GENERATION

  Question
    -> embed question, rank every chunk of every completed document (Retriever)
    -> build a numbered context from the top chunks
    -> ask the chat model to answer from that context only (AnswerSynthesizer)
    -> answer, confidence and the ids of the documents that were used

Nothing is persisted here; QAService records the result.
*/

// RAGService composes retrieval and answer synthesis.
type RAGService struct {
	retriever   *Retriever
	synthesizer *AnswerSynthesizer
	topK        int
}

// NewRAGService creates a new RAG service. topK <= 0 uses DefaultTopK.
func NewRAGService(retriever *Retriever, synthesizer *AnswerSynthesizer, topK int) *RAGService {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &RAGService{
		retriever:   retriever,
		synthesizer: synthesizer,
		topK:        topK,
	}
}

// Ask answers question from the completed documents, or from documentIDs only
// when it is non-empty.
func (s *RAGService) Ask(ctx context.Context, question string, documentIDs []string) (*models.Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, apperr.Validation("question is required")
	}

	ctx, span := middleware.StartSpan(ctx, "RAG.Ask",
		attribute.Int("question_length", len(question)),
		attribute.Int("top_k", s.topK),
	)
	defer span.End()

	retrieval, err := s.retriever.Retrieve(ctx, question, documentIDs, s.topK)
	if err != nil {
		middleware.AddSpanError(ctx, err)
		return nil, fmt.Errorf("failed to retrieve context: %w", err)
	}

	synthesis := s.synthesizer.GenerateAnswer(ctx, question, retrieval.Chunks)

	degraded := retrieval.QuestionDegraded || synthesis.Fallback
	relevant := make([]string, 0, len(retrieval.Chunks))
	seen := make(map[string]struct{}, len(retrieval.Chunks))
	for _, item := range retrieval.Chunks {
		degraded = degraded || item.Chunk.Degraded
		if _, ok := seen[item.Chunk.DocumentID]; ok {
			continue
		}
		seen[item.Chunk.DocumentID] = struct{}{}
		relevant = append(relevant, item.Chunk.DocumentID)
	}

	middleware.AddSpanEvent(ctx, "rag_completed",
		attribute.Int("context_chunks", len(retrieval.Chunks)),
		attribute.Int("answer_length", len(synthesis.Answer)),
		attribute.Bool("degraded", degraded),
	)

	return &models.Answer{
		Answer:              synthesis.Answer,
		Confidence:          synthesis.Confidence,
		RelevantDocumentIDs: relevant,
		Degraded:            degraded,
	}, nil
}
