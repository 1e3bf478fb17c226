package services

import (
	"context"
	"errors"
	"testing"

	"docqa/internal/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRAGService_AnswersFromCompletedDocument(t *testing.T) {
	h := newHarness(t)
	doc := h.ingest(t, "France", "Paris is the capital of France.")

	answer, err := h.rag.Ask(context.Background(), "What is the capital of France?", nil)
	require.NoError(t, err)
	assert.Equal(t, "Paris.", answer.Answer)
	assert.Equal(t, []string{doc.ID}, answer.RelevantDocumentIDs)
	assert.Greater(t, answer.Confidence, 0.0)
	assert.LessOrEqual(t, answer.Confidence, 1.0)
	assert.False(t, answer.Degraded)
}

func TestRAGService_NoCompletedDocuments(t *testing.T) {
	h := newHarness(t)
	h.addDocument(t, "pending", "Paris is the capital of France.")

	answer, err := h.rag.Ask(context.Background(), "What is the capital of France?", nil)
	require.NoError(t, err)
	assert.Equal(t, NoContextAnswer, answer.Answer)
	assert.Equal(t, 0.0, answer.Confidence)
	assert.NotNil(t, answer.RelevantDocumentIDs)
	assert.Empty(t, answer.RelevantDocumentIDs)
	assert.Equal(t, 0, h.generator.calls())
}

func TestRAGService_RejectsBlankQuestion(t *testing.T) {
	h := newHarness(t)

	for _, q := range []string{"", "   ", "\n\t"} {
		_, err := h.rag.Ask(context.Background(), q, nil)
		assert.ErrorIs(t, err, apperr.ErrValidation)
	}
	assert.Equal(t, int32(0), h.embedder.calls.Load())
}

func TestRAGService_DeduplicatesDocumentsInRankOrder(t *testing.T) {
	h := newHarness(t)
	long := ""
	for i := 0; i < 40; i++ {
		long += "rivers flow into the sea and rivers carry water. "
	}
	multi := h.ingest(t, "Rivers", long)
	single := h.ingest(t, "Lakes", "lakes hold still water")
	require.Greater(t, len(h.docs.Chunks(multi.ID)), 1)

	answer, err := h.rag.Ask(context.Background(), "rivers flow into the sea", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{multi.ID, single.ID}, answer.RelevantDocumentIDs)
}

func TestRAGService_DegradedFlag(t *testing.T) {
	h := newHarness(t)
	h.embedder.degraded = true
	h.ingest(t, "France", "Paris is the capital of France.")

	answer, err := h.rag.Ask(context.Background(), "capital of France", nil)
	require.NoError(t, err)
	assert.True(t, answer.Degraded)
}

func TestRAGService_GenerationFailureIsNotAnError(t *testing.T) {
	h := newHarness(t)
	h.ingest(t, "France", "Paris is the capital of France.")
	h.generator.err = errors.New("provider down")

	answer, err := h.rag.Ask(context.Background(), "capital of France", nil)
	require.NoError(t, err)
	assert.Equal(t, GenerationErrorAnswer, answer.Answer)
	assert.Equal(t, 0.0, answer.Confidence)
	assert.True(t, answer.Degraded)
}

func TestRAGService_RetrievalErrorPropagates(t *testing.T) {
	h := newHarness(t)
	h.ingest(t, "France", "Paris is the capital of France.")
	h.embedder.setErr(context.Canceled)

	_, err := h.rag.Ask(context.Background(), "capital of France", nil)
	assert.ErrorIs(t, err, context.Canceled)
}
